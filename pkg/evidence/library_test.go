package evidence

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/harlowdata/tailorcore/pkg/domain"
)

func writeCurriculum(t *testing.T, dir string) string {
	t.Helper()
	data := CurriculumData{
		Achievements: []domain.AchievementRecord{
			{
				RoleID: "acme-staff-eng", Index: 1, Title: "Cut release time",
				Company: "Acme", Role: "Staff Engineer", Timeframe: "2020-2022",
				Situation: "Legacy deploy pipeline took four hours per release",
				Task:      "Cut release time without adding headcount",
				Actions:   []string{"Rebuilt CI around parallel Kubernetes jobs"},
				Result:    "Release time dropped to 22 minutes",
				Metrics:   []string{"22 minutes", "4 hours"},
				Keywords:  []string{"kubernetes", "ci/cd", "golang"},
			},
			{
				RoleID: "acme-staff-eng", Index: 2, Title: "Reduce page volume",
				Company: "Acme", Role: "Staff Engineer", Timeframe: "2018-2020",
				Situation: "On-call load was unsustainable",
				Task:      "Reduce page volume",
				Actions:   []string{"Introduced SLO-based alerting"},
				Result:    "Pages dropped 70%",
				Metrics:   []string{"70%"},
				Keywords:  []string{"observability", "sre"},
			},
		},
		Profile: Profile{Name: "Jordan Rivera", Title: "Staff Engineer", YearsExperience: 12},
		Skills: SkillTaxonomy{
			Languages: []string{"Go", "Python"},
			Cloud:     []string{"AWS"},
			Platforms: []string{"Kubernetes"},
		},
	}

	path := filepath.Join(dir, "curriculum.json")
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestLoadValidatesRequiredFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(path, []byte(`{"achievements":[]}`), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, _, err := Load(path); err == nil {
		t.Fatal("expected validation error for empty achievements")
	}
}

func TestLoadSkipsMalformedRecordsWithWarning(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "curriculum.json")

	data := CurriculumData{
		Achievements: []domain.AchievementRecord{
			{RoleID: "acme-staff", Index: 1, Company: "Acme", Role: "Staff Engineer", Result: "Release time dropped to 22 minutes"},
			{RoleID: "acme-staff", Index: 2, Company: "Acme", Role: "Staff Engineer", Result: ""}, // missing result
			{RoleID: "", Index: 3, Company: "Acme", Role: "Staff Engineer", Result: "Pages dropped 70%"}, // missing role_id
		},
		Profile: Profile{Name: "Jordan Rivera"},
	}
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	loaded, warnings, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded.Achievements) != 1 {
		t.Fatalf("expected 1 surviving achievement, got %d", len(loaded.Achievements))
	}
	if len(warnings) != 2 {
		t.Fatalf("expected 2 warnings for the dropped records, got %d: %v", len(warnings), warnings)
	}
}

func TestOpenAndSearchRanksByKeywordAndSimilarity(t *testing.T) {
	dir := t.TempDir()
	path := writeCurriculum(t, dir)

	lib, err := Open(context.Background(), path, "", NewHashEmbedder(), nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	results, err := lib.Search(context.Background(), "kubernetes ci/cd release pipeline", []string{"kubernetes", "ci/cd"}, 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("expected at least one result")
	}
	if results[0].Achievement.ID() != "acme-staff-eng#1" {
		t.Fatalf("expected acme-staff-eng#1 to rank first, got %s", results[0].Achievement.ID())
	}
}

func TestSearchWhitelistExcludesNonMatchingAchievements(t *testing.T) {
	dir := t.TempDir()
	path := writeCurriculum(t, dir)

	lib, err := Open(context.Background(), path, "", NewHashEmbedder(), nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	results, err := lib.Search(context.Background(), "observability and paging", []string{"observability"}, 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	for _, r := range results {
		if r.Achievement.ID() == "acme-staff-eng#1" {
			t.Fatal("acme-staff-eng#1 should be excluded by whitelist")
		}
	}
}

func TestReindexSkipsUnchangedAchievements(t *testing.T) {
	dir := t.TempDir()
	path := writeCurriculum(t, dir)
	indexPath := filepath.Join(dir, "index")

	lib, err := Open(context.Background(), path, indexPath, NewHashEmbedder(), nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	// Re-opening against the same data and persisted index should not error
	// and should still find the achievement by ID.
	lib2, err := Open(context.Background(), path, indexPath, NewHashEmbedder(), nil)
	if err != nil {
		t.Fatalf("second Open: %v", err)
	}

	if _, ok := lib2.ByID("acme-staff-eng#1"); !ok {
		t.Fatal("expected acme-staff-eng#1 to be present after reopening")
	}
	_ = lib
}
