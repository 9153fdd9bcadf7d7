// Package domain holds the record types that flow between Tailoring Core
// layers. Each layer only ever reads fields owned by an upstream layer and
// writes its own; nothing here mutates a struct in place once it crosses a
// layer boundary.
package domain

import (
	"sort"
	"strings"
	"time"
)

// Tier is the processing depth assigned to a job by the router.
type Tier string

const (
	TierGold   Tier = "GOLD"
	TierSilver Tier = "SILVER"
	TierBronze Tier = "BRONZE"
	TierSkip   Tier = "SKIP"
)

// Emphasis is a variant label: an alternative phrasing of the same
// underlying achievement, differing in focus rather than in fact.
type Emphasis string

const (
	EmphasisDelivery     Emphasis = "delivery"
	EmphasisArchitecture Emphasis = "architecture"
	EmphasisLeadership   Emphasis = "leadership"
	EmphasisProcess      Emphasis = "process"
)

// AchievementRecord is one atomic, verifiable career fact in the master
// curriculum.
type AchievementRecord struct {
	RoleID    string `json:"role_id"`
	Index     int    `json:"index"`
	Title     string `json:"title"`

	Situation string   `json:"situation"`
	Task      string   `json:"task"`
	Actions   []string `json:"actions"`
	Result    string   `json:"result"`
	Metrics   []string `json:"metrics"`
	Keywords  []string `json:"keywords"`
	Timeframe string   `json:"timeframe"`

	// Variants maps emphasis label to an alternative phrasing; every
	// variant's metrics must be a subset of Metrics above.
	Variants map[Emphasis]string `json:"variants,omitempty"`

	Embedding []float32 `json:"-"`

	// Company/Role supplement the source curriculum with the employment
	// entry an achievement belongs to, used by the bullet generator and
	// stitcher to group and order roles.
	Company string `json:"company"`
	Role    string `json:"role"`
}

// ID is the achievement's stable identifier, derived from its role and
// position rather than stored redundantly.
func (a AchievementRecord) ID() string {
	return a.RoleID + "#" + itoa(a.Index)
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	neg := i < 0
	if neg {
		i = -i
	}
	var buf [20]byte
	pos := len(buf)
	for i > 0 {
		pos--
		buf[pos] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		pos--
		buf[pos] = '-'
	}
	return string(buf[pos:])
}

// JobRecord is the external input contract: a posting handed to the core
// by the ingestion collaborator.
type JobRecord struct {
	JobID          string    `json:"job_id"`
	Title          string    `json:"title"`
	Company        string    `json:"company"`
	RawDescription string    `json:"raw_description"`
	URL            string    `json:"url,omitempty"`
	IngestedAt     time.Time `json:"ingested_at"`
}

// CompetencyWeights are four non-negative values summing to 1, spanning
// the emphases a bullet can be scored against.
type CompetencyWeights struct {
	Delivery     float64 `json:"delivery"`
	Process      float64 `json:"process"`
	Architecture float64 `json:"architecture"`
	Leadership   float64 `json:"leadership"`
}

// Normalize rescales the four weights to sum to 1. A posting with all
// weights at zero is treated as uniform rather than divided by zero.
func (w CompetencyWeights) Normalize() CompetencyWeights {
	sum := w.Delivery + w.Process + w.Architecture + w.Leadership
	if sum <= 0 {
		return CompetencyWeights{Delivery: 0.25, Process: 0.25, Architecture: 0.25, Leadership: 0.25}
	}
	return CompetencyWeights{
		Delivery:     w.Delivery / sum,
		Process:      w.Process / sum,
		Architecture: w.Architecture / sum,
		Leadership:   w.Leadership / sum,
	}
}

// ExtractedJD is the structured output of the JD Structurer.
type ExtractedJD struct {
	JobID               string            `json:"job_id"`
	CompanyName         string            `json:"company_name"`
	RoleTitle           string            `json:"role_title"`
	RoleCategory        string            `json:"role_category"`
	SeniorityLevel      string            `json:"seniority_level"`
	CompetencyWeights   CompetencyWeights `json:"competency_weights"`
	MustHaveKeywords    []string          `json:"must_have_keywords"`
	NiceToHaveKeywords  []string          `json:"nice_to_have_keywords"`
	Responsibilities    []string          `json:"responsibilities"`
	Qualifications      []string          `json:"qualifications"`
	TechnicalSkills     []string          `json:"technical_skills"`
	SoftSkills          []string          `json:"soft_skills"`
	ImpliedPainPoints   []string          `json:"implied_pain_points"`
	SuccessMetrics      []string          `json:"success_metrics"`
	FitScore            float64           `json:"fit_score"`
	FitScoreDetail      FitScoreDetail    `json:"fit_score_detail"`
}

// Dedupe lowercases and de-duplicates the keyword lists, per the
// structurer's invariant that keyword lists are case-insensitively unique.
func (jd *ExtractedJD) Dedupe() {
	jd.MustHaveKeywords = dedupeCaseInsensitive(jd.MustHaveKeywords)
	jd.NiceToHaveKeywords = dedupeCaseInsensitive(jd.NiceToHaveKeywords)
}

func dedupeCaseInsensitive(items []string) []string {
	seen := make(map[string]bool, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		key := strings.ToLower(strings.TrimSpace(item))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, item)
	}
	sort.Strings(out)
	return out
}

// FitScoreDetail records the two inputs to the fit score so downstream
// consumers (and tests) can see how it was composed.
type FitScoreDetail struct {
	SimilarityScore      float64 `json:"similarity_score"`
	KeywordCoverageScore float64 `json:"keyword_coverage_score"`
}

// GeneratedBullet is one tailored line of the résumé body.
type GeneratedBullet struct {
	Text                string   `json:"text"`
	SourceText          string   `json:"source_text"`
	SourceMetric        string   `json:"source_metric,omitempty"`
	Situation           string   `json:"situation"`
	Action              string   `json:"action"`
	Result              string   `json:"result"`
	AchievementID       string   `json:"achievement_id"`
	KeywordUsed         string   `json:"keyword_used,omitempty"`
	PainPointAddressed  string   `json:"pain_point_addressed,omitempty"`
	Path                string   `json:"path"` // "variant" or "llm"
	MetricsCited        []string `json:"metrics_cited"`
	Attempt             int      `json:"attempt"`
}

// RoleOutput is bullets for one career role, plus the per-role QA verdict.
type RoleOutput struct {
	RoleID           string            `json:"role_id"`
	Company          string            `json:"company"`
	Role             string            `json:"role"`
	Timeframe        string            `json:"timeframe"`
	Bullets          []GeneratedBullet `json:"bullets"`
	Passed           bool              `json:"passed"`
	FlaggedBulletIDs []string          `json:"flagged_bullet_ids,omitempty"`
	Issues           []string          `json:"issues,omitempty"`
	Degraded         bool              `json:"degraded"`
	DroppedSource    []string          `json:"dropped_source_ids,omitempty"`
}

// DeduplicationEntry records one cross-role duplicate resolution.
type DeduplicationEntry struct {
	KeptAchievementID     string  `json:"kept_achievement_id"`
	RemovedAchievementID  string  `json:"removed_achievement_id"`
	RemovedFromRole       string  `json:"removed_from_role"`
	Similarity            float64 `json:"similarity"`
	Reason                string  `json:"reason"`
}

// StitchedBody is all role outputs after cross-role deduplication, most
// recent role first.
type StitchedBody struct {
	Roles              []RoleOutput          `json:"roles"`
	DeduplicationLog   []DeduplicationEntry  `json:"deduplication_log,omitempty"`
	MergedPairs        int                   `json:"merged_pairs"`
	RemovedBullets      int                  `json:"removed_bullets"`
}

// SkillsSection is one labeled, whitelisted group of skills with the
// evidence bullets backing each entry.
type SkillsSection struct {
	Label  string   `json:"label"`
	Skills []string `json:"skills"`
}

// KeyAchievement is one headline highlight with its provenance pointer.
type KeyAchievement struct {
	Text          string `json:"text"`
	AchievementID string `json:"achievement_id"`
}

// ProfileOutput is the composed header and skills block.
type ProfileOutput struct {
	Headline         string           `json:"headline"`
	Tagline          string           `json:"tagline"`
	KeyAchievements  []KeyAchievement `json:"key_achievements"`
	CoreCompetencies []string         `json:"core_competencies"`
	SkillsSections   []SkillsSection  `json:"skills_sections"`
}

// SkillsSelected flattens every skill across sections, used by callers
// that only need the whitelist-membership check rather than the section
// structure.
func (p ProfileOutput) SkillsSelected() []string {
	var out []string
	for _, s := range p.SkillsSections {
		out = append(out, s.Skills...)
	}
	return out
}

// GradeResult is one grading pass's verdict.
type GradeResult struct {
	ATS               float64  `json:"ats"`
	ImpactClarity     float64  `json:"impact_clarity"`
	JDAlignment       float64  `json:"jd_alignment"`
	ExecutivePresence float64  `json:"executive_presence"`
	AntiHallucination float64  `json:"anti_hallucination"`
	Composite         float64  `json:"composite"`
	Pass              bool     `json:"pass"`
	WeakestDimensions []string `json:"weakest_dimensions,omitempty"`
	Notes             []string `json:"notes,omitempty"`
	Iteration         int      `json:"iteration"`
}

// TraceEvent is one structured entry emitted to the event stream.
type TraceEvent struct {
	JobID           string    `json:"job_id"`
	Layer           string    `json:"layer"`
	Status          string    `json:"status"` // started, completed, degraded, failed
	At              time.Time `json:"at"`
	DurationMS      int64     `json:"duration_ms"`
	Tokens          int       `json:"tokens"`
	CostUSD         float64   `json:"cost_usd"`
	Retries         int       `json:"retries,omitempty"`
	DegradationFlag string    `json:"degradation_flag,omitempty"`
}

// TailoringArtifact is the terminal aggregate: the full record of
// processing one job.
type TailoringArtifact struct {
	JobID        string        `json:"job_id"`
	Tier         Tier          `json:"tier"`
	IsTailored   bool          `json:"is_tailored"`
	Partial      bool          `json:"partial"`
	JD           ExtractedJD   `json:"jd"`
	Body         StitchedBody  `json:"body"`
	Profile      ProfileOutput `json:"profile"`
	Grade        GradeResult   `json:"grade"`
	GradeHistory []GradeResult `json:"grade_history,omitempty"`
	Trace        []TraceEvent  `json:"trace,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	Degraded     []string      `json:"degraded,omitempty"`
}

// RunConfig carries the per-run overrides described by the external
// interface contract.
type RunConfig struct {
	TierOverride   Tier           `json:"tier_override,omitempty"`
	BudgetTokens   int            `json:"budget_tokens"`
	BudgetSeconds  int            `json:"budget_seconds"`
	ProviderLimits map[string]int `json:"provider_limits,omitempty"`
}
