package jdstructurer

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/harlowdata/tailorcore/pkg/domain"
	"github.com/harlowdata/tailorcore/pkg/evidence"
	"github.com/harlowdata/tailorcore/pkg/gateway"
)

func fakeAnthropicServer(t *testing.T, text string) *httptest.Server {
	t.Helper()
	body := fmt.Sprintf(`{"id":"msg_1","type":"message","role":"assistant","model":"claude-haiku-4-5-20251001","content":[{"type":"text","text":%q}],"usage":{"input_tokens":20,"output_tokens":8}}`, text)
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(body))
	}))
}

func TestStructureComputesFitScore(t *testing.T) {
	extraction := `{"company_name":"Acme","role_title":"Staff Platform Engineer","role_category":"platform","seniority_level":"staff","competency_weights":{"delivery":0.3,"process":0.2,"architecture":0.4,"leadership":0.1},"must_have_keywords":["kubernetes","golang"],"nice_to_have_keywords":["terraform"],"technical_skills":["kubernetes","golang"],"responsibilities":["own the platform"],"qualifications":["8+ years"],"soft_skills":["communication"],"implied_pain_points":["reliability"],"success_metrics":["uptime"]}`
	server := fakeAnthropicServer(t, extraction)
	defer server.Close()

	gw, err := gateway.New("test-key", option.WithBaseURL(server.URL))
	if err != nil {
		t.Fatalf("gateway.New: %v", err)
	}

	s := New(gw, evidence.NewHashEmbedder(), "staff engineer kubernetes golang platform reliability")

	job := domain.JobRecord{
		JobID:          "job-1",
		Title:          "Staff Platform Engineer",
		Company:        "Acme",
		RawDescription: "We need a staff engineer fluent in kubernetes and golang to own our platform.",
		IngestedAt:     time.Now(),
	}

	jd, err := s.Structure(context.Background(), gateway.TierGold, job, []string{"kubernetes", "golang", "terraform"})
	if err != nil {
		t.Fatalf("Structure: %v", err)
	}

	if jd.CompanyName != "Acme" {
		t.Fatalf("unexpected company: %s", jd.CompanyName)
	}
	if jd.FitScoreDetail.KeywordCoverageScore != 1 {
		t.Fatalf("expected full keyword coverage, got %v", jd.FitScoreDetail.KeywordCoverageScore)
	}
	if jd.FitScore <= 0 {
		t.Fatalf("expected positive fit score, got %v", jd.FitScore)
	}
}

func TestStructureFallsBackToJobFieldsWhenExtractionOmitsThem(t *testing.T) {
	extraction := `{"must_have_keywords":[],"nice_to_have_keywords":[]}`
	server := fakeAnthropicServer(t, extraction)
	defer server.Close()

	gw, err := gateway.New("test-key", option.WithBaseURL(server.URL))
	if err != nil {
		t.Fatalf("gateway.New: %v", err)
	}

	s := New(gw, evidence.NewHashEmbedder(), "")
	job := domain.JobRecord{JobID: "job-2", Title: "Engineer", Company: "Initech", RawDescription: "short"}

	jd, err := s.Structure(context.Background(), gateway.TierBronze, job, nil)
	if err != nil {
		t.Fatalf("Structure: %v", err)
	}
	if jd.CompanyName != "Initech" || jd.RoleTitle != "Engineer" {
		t.Fatalf("expected fallback to job record fields, got %+v", jd)
	}
	if jd.FitScoreDetail.KeywordCoverageScore != 1 {
		t.Fatalf("expected coverage of 1 when there are no must-haves, got %v", jd.FitScoreDetail.KeywordCoverageScore)
	}
}

func TestKeywordCoverage(t *testing.T) {
	cov := keywordCoverage([]string{"Go", "Kubernetes", "Rust"}, []string{"go", "kubernetes"})
	if cov < 0.66 || cov > 0.67 {
		t.Fatalf("expected ~0.667, got %v", cov)
	}
}
