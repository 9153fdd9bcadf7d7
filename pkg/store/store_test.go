package store

import (
	"path/filepath"
	"testing"

	"github.com/harlowdata/tailorcore/pkg/domain"
)

func sampleArtifact(jobID, company string) domain.TailoringArtifact {
	return domain.TailoringArtifact{
		JobID: jobID,
		Tier:  domain.TierGold,
		JD:    domain.ExtractedJD{JobID: jobID, CompanyName: company, RoleTitle: "Staff Engineer", FitScore: 0.87},
		Grade: domain.GradeResult{Composite: 8.9, Pass: true},
	}
}

func TestSaveAndGetRoundTrips(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "artifacts.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	artifact := sampleArtifact("job-1", "Acme")
	if err := s.Save(artifact); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := s.Get("job-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.JD.CompanyName != "Acme" || got.Grade.Composite != 8.9 {
		t.Fatalf("unexpected round trip: %+v", got)
	}
}

func TestSaveUpsertsExistingJob(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "artifacts.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	if err := s.Save(sampleArtifact("job-1", "Acme")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	updated := sampleArtifact("job-1", "Acme")
	updated.Grade.Composite = 9.5
	if err := s.Save(updated); err != nil {
		t.Fatalf("Save (update): %v", err)
	}

	got, err := s.Get("job-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Grade.Composite != 9.5 {
		t.Fatalf("expected updated composite score, got %v", got.Grade.Composite)
	}
}

func TestListByCompanyFiltersAndOrders(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "artifacts.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	if err := s.Save(sampleArtifact("job-1", "Acme")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := s.Save(sampleArtifact("job-2", "Initech")); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := s.ListByCompany("Acme")
	if err != nil {
		t.Fatalf("ListByCompany: %v", err)
	}
	if len(got) != 1 || got[0].JobID != "job-1" {
		t.Fatalf("expected one Acme artifact, got %+v", got)
	}
}

func TestGetUnknownJobErrors(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "artifacts.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	if _, err := s.Get("missing"); err == nil {
		t.Fatal("expected an error for an unknown job id")
	}
}
