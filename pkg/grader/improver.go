package grader

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"

	"github.com/harlowdata/tailorcore/pkg/domain"
	"github.com/harlowdata/tailorcore/pkg/gateway"
	"github.com/harlowdata/tailorcore/pkg/lessons"
)

// MaxImproveIterations bounds the Improver loop. A monotonic loop with no
// bound can spin forever chasing a threshold a posting's evidence simply
// can't support.
const MaxImproveIterations = 3

type revisionResponse struct {
	Body    domain.StitchedBody  `json:"body"`
	Profile domain.ProfileOutput `json:"profile"`
}

// Improver runs the bounded, monotonic improvement loop: each iteration's
// composite score is compared to the last accepted one, and a regression
// is discarded in favor of keeping the prior version.
type Improver struct {
	grader *Grader
	gw     *gateway.Gateway
}

// NewImprover builds an Improver sharing a Grader's gateway.
func NewImprover(g *Grader, gw *gateway.Gateway) *Improver {
	return &Improver{grader: g, gw: gw}
}

// Result is the outcome of running the improvement loop to completion
// (either the composite cleared CompositeThreshold, or the iteration
// budget ran out).
type Result struct {
	Body    domain.StitchedBody
	Profile domain.ProfileOutput
	Grade   domain.GradeResult
	History []domain.GradeResult
}

// Improve runs fixups then up to MaxImproveIterations model-backed
// revision passes, biased by guidance toward whichever dimension has
// historically been weakest for this role level.
func (imp *Improver) Improve(ctx context.Context, tier gateway.Tier, jd domain.ExtractedJD, body domain.StitchedBody, profile domain.ProfileOutput, sources []domain.AchievementRecord, guidance lessons.Guidance) (Result, error) {
	body = applyFixupsToBody(body)

	grade, err := imp.grader.Grade(ctx, tier, jd, body, profile, sources, 0)
	if err != nil {
		return Result{}, errors.Wrap(err, "initial grading failed")
	}

	best := Result{Body: body, Profile: profile, Grade: grade, History: []domain.GradeResult{grade}}

	if best.Grade.Composite >= CompositeThreshold {
		return best, nil
	}

	for iter := 1; iter <= MaxImproveIterations; iter++ {
		prompt := buildImprovementPrompt(jd, best.Body, best.Profile, best.Grade, guidance)

		var rev revisionResponse
		if _, err := imp.gw.Call(ctx, tier, gateway.TaskComplex, prompt, &rev, gateway.Budget{MaxOutputTokens: 4096}); err != nil {
			if gateway.KindOf(err) == gateway.KindBudgetExhausted {
				return best, nil // stop quietly, keep the best version so far
			}
			return best, errors.Wrap(err, "improvement revision call failed")
		}

		candidateBody := applyFixupsToBody(rev.Body)
		candidateGrade, err := imp.grader.Grade(ctx, tier, jd, candidateBody, rev.Profile, sources, iter)
		if err != nil {
			return best, errors.Wrap(err, "post-revision grading failed")
		}

		best.History = append(best.History, candidateGrade)

		if candidateGrade.Composite > best.Grade.Composite {
			best.Body = candidateBody
			best.Profile = rev.Profile
			best.Grade = candidateGrade
		}
		// A regression is silently discarded: best.Body/Profile/Grade stay
		// on the last accepted version, guaranteeing monotonic output.

		if best.Grade.Composite >= CompositeThreshold {
			break
		}
	}

	return best, nil
}

func applyFixupsToBody(body domain.StitchedBody) domain.StitchedBody {
	for ri, role := range body.Roles {
		for bi, bullet := range role.Bullets {
			fixed, _ := ApplyFixups(bullet.Text)
			body.Roles[ri].Bullets[bi].Text = fixed
		}
	}
	return body
}

func buildImprovementPrompt(jd domain.ExtractedJD, body domain.StitchedBody, profile domain.ProfileOutput, grade domain.GradeResult, guidance lessons.Guidance) string {
	bodyJSON, _ := json.MarshalIndent(body, "", "  ")
	profileJSON, _ := json.MarshalIndent(profile, "", "  ")
	jdJSON, _ := json.MarshalIndent(jd, "", "  ")

	focus := "the lowest-scoring dimension below"
	if guidance.WeakestDimension != "" {
		focus = fmt.Sprintf("%s (this has been the most common weak point for similar roles)", guidance.WeakestDimension)
	}

	return fmt.Sprintf(`You are revising a tailored application that scored below the acceptance bar. Improve it without inventing anything not already present in the body or profile you're given.

JOB REQUIREMENTS:
%s

CURRENT GRADE (0-10 per dimension, composite is the weighted score):
ats=%.2f impact_clarity=%.2f jd_alignment=%.2f executive_presence=%.2f anti_hallucination=%.2f composite=%.2f
Notes: %v

Focus your revision on: %s

CURRENT EXPERIENCE SECTION:
%s

CURRENT HEADER/SKILLS:
%s

Rewrite bullets and the header/skills selection to address the weak dimension. You may reword, reorder, and re-select from what's already present, but every metric you keep or add must already appear in the bullet it came from — do not introduce a new number or claim.

Return ONLY valid JSON in this exact format (no markdown, no commentary):
{
  "body": { "roles": [...], "deduplication_log": [...], "merged_pairs": 0, "removed_bullets": 0 },
  "profile": { "headline": "...", "tagline": "...", "key_achievements": [{"text": "...", "achievement_id": "..."}], "core_competencies": ["..."], "skills_sections": [{"label": "...", "skills": ["..."]}] }
}`, jdJSON, grade.ATS, grade.ImpactClarity, grade.JDAlignment, grade.ExecutivePresence, grade.AntiHallucination, grade.Composite, grade.Notes, focus, bodyJSON, profileJSON)
}
