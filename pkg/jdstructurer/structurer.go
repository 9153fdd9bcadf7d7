// Package jdstructurer turns a raw job posting into an ExtractedJD: a
// typed summary of requirements plus a fit score the router uses to pick
// a processing tier.
package jdstructurer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/harlowdata/tailorcore/pkg/domain"
	"github.com/harlowdata/tailorcore/pkg/evidence"
	"github.com/harlowdata/tailorcore/pkg/gateway"
)

// similarityWeight and keywordWeight split the fit score between semantic
// similarity and literal must-have coverage. Documented here rather than
// derived, since nothing about the inputs implies one split over another.
const (
	similarityWeight = 0.6
	keywordWeight    = 0.4
)

type llmExtraction struct {
	CompanyName        string                   `json:"company_name"`
	RoleTitle          string                   `json:"role_title"`
	RoleCategory       string                   `json:"role_category"`
	SeniorityLevel     string                   `json:"seniority_level"`
	CompetencyWeights  domain.CompetencyWeights `json:"competency_weights"`
	MustHaveKeywords   []string                 `json:"must_have_keywords"`
	NiceToHaveKeywords []string                 `json:"nice_to_have_keywords"`
	Responsibilities   []string                 `json:"responsibilities"`
	Qualifications     []string                 `json:"qualifications"`
	TechnicalSkills    []string                 `json:"technical_skills"`
	SoftSkills         []string                 `json:"soft_skills"`
	ImpliedPainPoints  []string                 `json:"implied_pain_points"`
	SuccessMetrics     []string                 `json:"success_metrics"`
}

// Structurer extracts ExtractedJD records via the Model Gateway.
type Structurer struct {
	gw       *gateway.Gateway
	embedder evidence.Embedder
	persona  string // text describing the candidate, embedded once per run
}

// New builds a Structurer. persona is the candidate summary text (profile
// + top skills) the fit score compares postings against.
func New(gw *gateway.Gateway, embedder evidence.Embedder, persona string) *Structurer {
	if embedder == nil {
		embedder = evidence.NewHashEmbedder()
	}
	return &Structurer{gw: gw, embedder: embedder, persona: persona}
}

// Structure extracts an ExtractedJD from a raw job record. tier governs
// which model does the extraction; callers typically use a fixed
// analytical-capable tier since the router hasn't run yet at this point
// in the pipeline.
func (s *Structurer) Structure(ctx context.Context, tier gateway.Tier, job domain.JobRecord, whitelist []string) (domain.ExtractedJD, error) {
	var result domain.ExtractedJD
	result.JobID = job.JobID

	prompt := buildExtractionPrompt(job.RawDescription)

	var extraction llmExtraction
	if _, err := s.gw.Call(ctx, tier, gateway.TaskAnalytical, prompt, &extraction, gateway.Budget{MaxOutputTokens: 2048}); err != nil {
		if gateway.KindOf(err) == gateway.KindContentInsufficient {
			return result, errors.Wrap(err, "job posting had insufficient content to extract a structured JD")
		}
		return result, errors.Wrap(err, "jd extraction call failed")
	}

	result.CompanyName = firstNonEmpty(extraction.CompanyName, job.Company)
	result.RoleTitle = firstNonEmpty(extraction.RoleTitle, job.Title)
	result.RoleCategory = extraction.RoleCategory
	result.SeniorityLevel = extraction.SeniorityLevel
	result.CompetencyWeights = extraction.CompetencyWeights.Normalize()
	result.MustHaveKeywords = extraction.MustHaveKeywords
	result.NiceToHaveKeywords = extraction.NiceToHaveKeywords
	result.Responsibilities = extraction.Responsibilities
	result.Qualifications = extraction.Qualifications
	result.TechnicalSkills = extraction.TechnicalSkills
	result.SoftSkills = extraction.SoftSkills
	result.ImpliedPainPoints = extraction.ImpliedPainPoints
	result.SuccessMetrics = extraction.SuccessMetrics
	result.Dedupe()

	similarity, err := s.similarityScore(ctx, job.RawDescription)
	if err != nil {
		return result, errors.Wrap(err, "similarity scoring failed")
	}

	coverage := keywordCoverage(result.MustHaveKeywords, whitelist)

	result.FitScoreDetail = domain.FitScoreDetail{
		SimilarityScore:      similarity,
		KeywordCoverageScore: coverage,
	}
	result.FitScore = similarityWeight*similarity + keywordWeight*coverage

	return result, nil
}

func (s *Structurer) similarityScore(ctx context.Context, posting string) (float64, error) {
	if s.persona == "" {
		return 0, nil
	}
	personaVec, err := s.embedder.Embed(ctx, s.persona)
	if err != nil {
		return 0, err
	}
	postingVec, err := s.embedder.Embed(ctx, posting)
	if err != nil {
		return 0, err
	}
	return evidence.CosineSimilarity(personaVec, postingVec), nil
}

// keywordCoverage is the fraction of must-have keywords that appear,
// case-insensitively, in the candidate's whitelist of known skills and
// achievement keywords.
func keywordCoverage(mustHaves, whitelist []string) float64 {
	if len(mustHaves) == 0 {
		return 1
	}
	wl := make(map[string]bool, len(whitelist))
	for _, w := range whitelist {
		wl[strings.ToLower(w)] = true
	}
	matched := 0
	for _, m := range mustHaves {
		if wl[strings.ToLower(m)] {
			matched++
		}
	}
	return float64(matched) / float64(len(mustHaves))
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func buildExtractionPrompt(posting string) string {
	return fmt.Sprintf(`You are an expert technical recruiter structuring a job posting for downstream processing.

JOB POSTING:
%s

Extract:
1. Company name
2. Role title
3. Role category (a short closed label such as "backend", "platform", "data", "security", "management")
4. Seniority level (e.g. "senior", "staff", "director")
5. Competency weights: four non-negative numbers summing to 1, one each for delivery, process, architecture, leadership, reflecting how this posting emphasizes each
6. Must-have keywords (explicitly required, not preferred)
7. Nice-to-have keywords, ordered by importance (preferred but not required)
8. Responsibilities (bulleted duties as written)
9. Qualifications (explicit requirements: years of experience, degrees, certifications)
10. Technical skills mentioned
11. Soft skills mentioned
12. Implied pain points: problems the posting hints the hiring team is struggling with, even if not stated outright
13. Success metrics: anything suggesting how this role's performance would be measured

If the posting has too little content to extract requirements from (e.g. a placeholder or broken scrape), return must_have_keywords and nice_to_have_keywords as empty arrays rather than guessing.

Return ONLY valid JSON in this exact format (no markdown, no commentary):
{
  "company_name": "...",
  "role_title": "...",
  "role_category": "...",
  "seniority_level": "...",
  "competency_weights": {"delivery": 0.25, "process": 0.25, "architecture": 0.25, "leadership": 0.25},
  "must_have_keywords": ["..."],
  "nice_to_have_keywords": ["..."],
  "responsibilities": ["..."],
  "qualifications": ["..."],
  "technical_skills": ["..."],
  "soft_skills": ["..."],
  "implied_pain_points": ["..."],
  "success_metrics": ["..."]
}`, posting)
}

// MarshalDebug is a small helper used by tests and CLI verbose output to
// print an ExtractedJD without leaking its Go struct tags.
func MarshalDebug(jd domain.ExtractedJD) string {
	b, _ := json.MarshalIndent(jd, "", "  ")
	return string(b)
}
