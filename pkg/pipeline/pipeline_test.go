package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/harlowdata/tailorcore/pkg/domain"
	"github.com/harlowdata/tailorcore/pkg/evidence"
	"github.com/harlowdata/tailorcore/pkg/gateway"
	"github.com/harlowdata/tailorcore/pkg/jdstructurer"
	"github.com/harlowdata/tailorcore/pkg/lessons"
	"github.com/harlowdata/tailorcore/pkg/profile"
)

func sampleCurriculumPath(t *testing.T) string {
	t.Helper()
	data := evidence.CurriculumData{
		Achievements: []domain.AchievementRecord{
			{
				RoleID: "acme-staff", Index: 1, Title: "Cut release time", Company: "Acme", Role: "Staff Engineer", Timeframe: "2022-present",
				Situation: "Legacy deploy pipeline took four hours per release",
				Task:      "Cut release time without adding headcount",
				Actions:   []string{"rebuilt CI around parallel kubernetes jobs"},
				Result:    "Release time dropped to 22 minutes after rebuilding CI on kubernetes",
				Metrics:   []string{"22 minutes", "4 hours"},
				Keywords:  []string{"kubernetes", "ci/cd", "golang"},
			},
			{
				RoleID: "acme-staff", Index: 2, Title: "Reduce on-call load", Company: "Acme", Role: "Staff Engineer", Timeframe: "2022-present",
				Situation: "On-call load was unsustainable for the team",
				Task:      "Reduce page volume without losing coverage",
				Actions:   []string{"introduced SLO-based alerting"},
				Result:    "Pages dropped 70% after introducing SLO-based alerting",
				Metrics:   []string{"70%"},
				Keywords:  []string{"observability", "sre", "kubernetes"},
			},
		},
		Profile: evidence.Profile{Name: "Jordan Rivera", Title: "Staff Platform Engineer"},
		Skills: evidence.SkillTaxonomy{
			Languages: []string{"Go", "Python"},
			Platforms: []string{"Kubernetes"},
		},
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "curriculum.json")
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func fakeStructurerServer(t *testing.T) *httptest.Server {
	t.Helper()
	extraction := `{
		"company_name": "Acme Corp",
		"role_title": "Staff Platform Engineer",
		"role_category": "platform",
		"seniority_level": "staff",
		"competency_weights": {"delivery": 0.3, "process": 0.2, "architecture": 0.4, "leadership": 0.1},
		"must_have_keywords": ["kubernetes", "golang"],
		"nice_to_have_keywords": ["terraform"],
		"responsibilities": ["Own platform reliability"],
		"qualifications": ["8+ years in infrastructure"],
		"technical_skills": ["kubernetes", "golang"],
		"soft_skills": ["communication"],
		"implied_pain_points": ["reliability at scale"],
		"success_metrics": ["deploy frequency"]
	}`
	body := fmt.Sprintf(`{"id":"m","type":"message","role":"assistant","model":"claude-sonnet-4-5-20250929","content":[{"type":"text","text":%q}],"usage":{"input_tokens":5,"output_tokens":5}}`, extraction)
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(body))
	}))
}

func malformedStructurerServer(t *testing.T) *httptest.Server {
	t.Helper()
	body := `{"id":"m","type":"message","role":"assistant","model":"claude-sonnet-4-5-20250929","content":[{"type":"text","text":"not json at all"}],"usage":{"input_tokens":5,"output_tokens":5}}`
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(body))
	}))
}

func TestRunRoutesHardSchemaFailureToSkip(t *testing.T) {
	srv := malformedStructurerServer(t)
	defer srv.Close()

	gw, err := gateway.New("test-key", option.WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("gateway.New: %v", err)
	}

	lib, err := evidence.Open(context.Background(), sampleCurriculumPath(t), "", nil, nil)
	if err != nil {
		t.Fatalf("evidence.Open: %v", err)
	}

	structurer := jdstructurer.New(gw, nil, "Jordan Rivera, Staff Platform Engineer. kubernetes golang sre")
	composer := profile.New(lib.Data.Skills, lib.Data.Achievements, nil)

	p := New(gw, lib, structurer, composer, lessons.Index{})

	job := domain.JobRecord{JobID: "job-3", RawDescription: "Staff Platform Engineer at Acme Corp."}

	artifact, err := p.Run(context.Background(), job, "Jordan Rivera", domain.RunConfig{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if artifact.Tier != domain.TierSkip {
		t.Fatalf("expected a hard schema failure to route to SKIP, got tier %s", artifact.Tier)
	}
	if artifact.IsTailored {
		t.Fatal("expected IsTailored=false after a schema-failure SKIP")
	}
	if len(artifact.Degraded) == 0 {
		t.Fatal("expected a degradation flag recording the schema failure")
	}
}

func TestRunWithForcedTierProducesTailoredArtifact(t *testing.T) {
	srv := fakeStructurerServer(t)
	defer srv.Close()

	gw, err := gateway.New("test-key", option.WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("gateway.New: %v", err)
	}

	lib, err := evidence.Open(context.Background(), sampleCurriculumPath(t), "", nil, nil)
	if err != nil {
		t.Fatalf("evidence.Open: %v", err)
	}

	structurer := jdstructurer.New(gw, nil, "Jordan Rivera, Staff Platform Engineer. kubernetes golang sre")
	composer := profile.New(lib.Data.Skills, lib.Data.Achievements, nil)

	p := New(gw, lib, structurer, composer, lessons.Index{})

	job := domain.JobRecord{JobID: "job-1", RawDescription: "Staff Platform Engineer at Acme Corp. Own platform reliability. Require kubernetes and golang."}

	artifact, err := p.Run(context.Background(), job, "Jordan Rivera", domain.RunConfig{TierOverride: domain.TierBronze})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !artifact.IsTailored {
		t.Fatal("expected a forced non-SKIP tier to produce a tailored artifact")
	}
	if artifact.Tier != domain.TierBronze {
		t.Fatalf("expected the tier override to stick, got %s", artifact.Tier)
	}
	if len(artifact.Body.Roles) == 0 {
		t.Fatal("expected at least one stitched role")
	}
	if len(artifact.Trace) == 0 {
		t.Fatal("expected a non-empty event trace")
	}
}

func TestRunSkipTierMakesNoGenerationCalls(t *testing.T) {
	srv := fakeStructurerServer(t)
	defer srv.Close()

	gw, err := gateway.New("test-key", option.WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("gateway.New: %v", err)
	}

	lib, err := evidence.Open(context.Background(), sampleCurriculumPath(t), "", nil, nil)
	if err != nil {
		t.Fatalf("evidence.Open: %v", err)
	}

	structurer := jdstructurer.New(gw, nil, "Jordan Rivera, Staff Platform Engineer. kubernetes golang sre")
	composer := profile.New(lib.Data.Skills, lib.Data.Achievements, nil)

	p := New(gw, lib, structurer, composer, lessons.Index{})

	job := domain.JobRecord{JobID: "job-2", RawDescription: "Junior Barista at a coffee shop with no overlap to this candidate's background."}

	artifact, err := p.Run(context.Background(), job, "Jordan Rivera", domain.RunConfig{TierOverride: domain.TierSkip})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if artifact.IsTailored {
		t.Fatal("expected a SKIP tier to produce an untailored artifact")
	}
	if len(artifact.Body.Roles) != 0 {
		t.Fatalf("expected no stitched roles on SKIP, got %d", len(artifact.Body.Roles))
	}
	for _, ev := range artifact.Trace {
		if ev.Layer == "bullets" || ev.Layer == "grade_and_improve" {
			t.Fatalf("expected no bullet generation or grading events on SKIP, got layer %s", ev.Layer)
		}
	}
}
