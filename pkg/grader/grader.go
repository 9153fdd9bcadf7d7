// Package grader scores a tailored application against five weighted
// dimensions and runs the bounded, monotonic improvement loop described
// for the Grader/Improver component.
package grader

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/pkg/errors"

	"github.com/harlowdata/tailorcore/pkg/domain"
	"github.com/harlowdata/tailorcore/pkg/gateway"
)

// Weights sum to 1.0 and match the dimension split this grader scores
// against: ATS 0.20, impact & clarity 0.25, JD alignment 0.25, executive
// presence 0.15, anti-hallucination 0.15.
const (
	WeightATS               = 0.20
	WeightImpactClarity     = 0.25
	WeightJDAlignment       = 0.25
	WeightExecutivePresence = 0.15
	WeightAntiHallucination = 0.15

	// CompositeThreshold is the bar an artifact must clear to be
	// considered ready without further improvement passes.
	CompositeThreshold = 8.5
)

type llmDimensions struct {
	ATS               float64  `json:"ats"`
	ImpactClarity     float64  `json:"impact_clarity"`
	JDAlignment       float64  `json:"jd_alignment"`
	ExecutivePresence float64  `json:"executive_presence"`
	AntiHallucination float64  `json:"anti_hallucination"`
	Notes             []string `json:"notes"`
}

// Grader evaluates a stitched/composed application via the Model Gateway.
type Grader struct {
	gw *gateway.Gateway
}

// New builds a Grader.
func New(gw *gateway.Gateway) *Grader {
	return &Grader{gw: gw}
}

// Grade scores body+profile against jd, verifying every cited metric
// traces to a source achievement before trusting the model's own
// anti-hallucination self-report: a model grading its own hallucination
// dimension is exactly the failure mode this invariant exists to catch.
func (g *Grader) Grade(ctx context.Context, tier gateway.Tier, jd domain.ExtractedJD, body domain.StitchedBody, profile domain.ProfileOutput, sourceAchievements []domain.AchievementRecord, iteration int) (domain.GradeResult, error) {
	var result domain.GradeResult
	result.Iteration = iteration

	groundingViolations := checkGrounding(body, sourceAchievements)
	weakQuant := checkWeakQuantifications(body)

	prompt := buildGradingPrompt(jd, body, profile)

	var dims llmDimensions
	if _, err := g.gw.Call(ctx, tier, gateway.TaskAnalytical, prompt, &dims, gateway.Budget{MaxOutputTokens: 2048}); err != nil {
		return result, errors.Wrap(err, "grading call failed")
	}

	result.ATS = clamp10(dims.ATS)
	impactClarity := clamp10(dims.ImpactClarity)
	if len(weakQuant) > 0 {
		impactClarity -= 0.5 * float64(len(weakQuant))
		if impactClarity < 0 {
			impactClarity = 0
		}
		for _, w := range weakQuant {
			result.Notes = append(result.Notes, fmt.Sprintf("weak quantification %q reads as a headcount, not an outcome", w))
		}
	}
	result.ImpactClarity = impactClarity
	result.JDAlignment = clamp10(dims.JDAlignment)
	result.ExecutivePresence = clamp10(dims.ExecutivePresence)
	result.Notes = append(result.Notes, dims.Notes...)

	// Anti-hallucination is never taken purely from the model: every
	// traced violation drags the dimension down regardless of what the
	// model self-reported, and a clean grounding check can only raise the
	// model's score, never fabricate a perfect one out of silence.
	antiHallu := clamp10(dims.AntiHallucination)
	if len(groundingViolations) > 0 {
		penalty := 2.0 * float64(len(groundingViolations))
		antiHallu -= penalty
		if antiHallu < 0 {
			antiHallu = 0
		}
		result.Notes = append(result.Notes, groundingViolations...)
	}
	result.AntiHallucination = antiHallu

	result.Composite = WeightATS*result.ATS +
		WeightImpactClarity*result.ImpactClarity +
		WeightJDAlignment*result.JDAlignment +
		WeightExecutivePresence*result.ExecutivePresence +
		WeightAntiHallucination*result.AntiHallucination

	result.Pass = result.Composite >= CompositeThreshold
	result.WeakestDimensions = weakestDimensions(result)

	return result, nil
}

// weakestDimensions orders the five dimension names ascending by score, so
// the Improver (and lessons retriever) can bias a revision toward whatever
// is actually dragging the composite down.
func weakestDimensions(r domain.GradeResult) []string {
	type scored struct {
		name  string
		value float64
	}
	dims := []scored{
		{"ats", r.ATS},
		{"impact_clarity", r.ImpactClarity},
		{"jd_alignment", r.JDAlignment},
		{"executive_presence", r.ExecutivePresence},
		{"anti_hallucination", r.AntiHallucination},
	}
	sort.SliceStable(dims, func(i, j int) bool { return dims[i].value < dims[j].value })
	names := make([]string, len(dims))
	for i, d := range dims {
		names[i] = d.name
	}
	return names
}

// checkGrounding verifies every metric cited in a generated bullet
// appears in its source achievement's metrics, within 15% tolerance for
// numeric values, and exact match after whitespace/case normalization for
// textual ones.
func checkGrounding(body domain.StitchedBody, sources []domain.AchievementRecord) []string {
	byID := make(map[string]domain.AchievementRecord, len(sources))
	for _, a := range sources {
		byID[a.ID()] = a
	}

	var violations []string
	for _, role := range body.Roles {
		for _, b := range role.Bullets {
			src, ok := byID[b.AchievementID]
			if !ok {
				violations = append(violations, fmt.Sprintf("bullet cites unknown source achievement %s", b.AchievementID))
				continue
			}
			for _, metric := range b.MetricsCited {
				if !metricGrounded(metric, src.Metrics) {
					violations = append(violations, fmt.Sprintf("ungrounded metric %q in bullet for %s", metric, src.ID()))
				}
			}
		}
	}
	return violations
}

// checkWeakQuantifications flags bullets that cite a small headcount-style
// number (team size, cluster count) rather than an outcome metric: these
// read as busywork rather than impact even when technically grounded.
func checkWeakQuantifications(body domain.StitchedBody) []string {
	var flagged []string
	for _, role := range body.Roles {
		for _, b := range role.Bullets {
			flagged = append(flagged, FlagWeakQuantifications(b.Text)...)
		}
	}
	return flagged
}

func clamp10(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 10 {
		return 10
	}
	return v
}

// MarshalForDebug is a small helper for CLI verbose output.
func MarshalForDebug(g domain.GradeResult) string {
	b, _ := json.MarshalIndent(g, "", "  ")
	return string(b)
}

func buildGradingPrompt(jd domain.ExtractedJD, body domain.StitchedBody, profile domain.ProfileOutput) string {
	bodyJSON, _ := json.MarshalIndent(body, "", "  ")
	profileJSON, _ := json.MarshalIndent(profile, "", "  ")
	jdJSON, _ := json.MarshalIndent(jd, "", "  ")

	return fmt.Sprintf(`You are a skeptical hiring-manager-turned-editor grading a tailored application. You are NOT the writer. Your job is to find weaknesses, not defend the draft.

STRUCTURED JOB REQUIREMENTS:
%s

CANDIDATE HEADER AND SKILLS:
%s

CANDIDATE EXPERIENCE SECTION:
%s

Score each dimension from 0.0 to 10.0:
1. ats: would an applicant-tracking-system keyword match find this posting's must-have terms in the document?
2. impact_clarity: are bullets concrete, quantified, and easy to scan, or vague and wordy?
3. jd_alignment: does the document foreground the experience this specific posting cares about?
4. executive_presence: does the document read as written by someone operating at the seniority this posting implies?
5. anti_hallucination: on a first read, does anything look like an invented number, invented industry, or invented technical domain? (This is a sanity check; a separate grounding pass verifies the actual source data.)

Return ONLY valid JSON in this exact format (no markdown, no commentary):
{
  "ats": 0.0,
  "impact_clarity": 0.0,
  "jd_alignment": 0.0,
  "executive_presence": 0.0,
  "anti_hallucination": 0.0,
  "notes": ["specific, actionable observations"]
}`, jdJSON, profileJSON, bodyJSON)
}
