package bullets

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/harlowdata/tailorcore/pkg/domain"
	"github.com/harlowdata/tailorcore/pkg/gateway"
)

type llmBulletResponse struct {
	Bullets []llmBullet `json:"bullets"`
}

type llmBullet struct {
	Text               string `json:"text"`
	Situation          string `json:"situation"`
	Action             string `json:"action"`
	Result             string `json:"result"`
	SourceMetric       string `json:"source_metric"`
	KeywordUsed        string `json:"keyword_used"`
	PainPointAddressed string `json:"pain_point_addressed"`
}

// tailorWithLLM is the fallback path: when the pre-written variants for a
// role don't cover enough of the posting's keywords/pain points, ask the
// model to write new bullets under explicit guardrails, grounded strictly
// in the achievement's own source fields.
func tailorWithLLM(ctx context.Context, gw *gateway.Gateway, tier gateway.Tier, achievements []domain.AchievementRecord, jd domain.ExtractedJD, emphasis domain.Emphasis, n int) ([]domain.GeneratedBullet, error) {
	prompt := buildTailoringPrompt(achievements, jd, emphasis, n)

	var resp llmBulletResponse
	if _, err := gw.Call(ctx, tier, gateway.TaskComplex, prompt, &resp, gateway.Budget{MaxOutputTokens: 2048}); err != nil {
		return nil, errors.Wrap(err, "bullet tailoring call failed")
	}

	byKeywordID := make(map[string]domain.AchievementRecord, len(achievements))
	for _, a := range achievements {
		byKeywordID[a.ID()] = a
	}

	out := make([]domain.GeneratedBullet, 0, len(resp.Bullets))
	for _, lb := range resp.Bullets {
		src := matchAchievementByText(achievements, lb.Result)
		b := domain.GeneratedBullet{
			Text:               strings.TrimSpace(lb.Text),
			SourceText:         src.Result,
			SourceMetric:       lb.SourceMetric,
			Situation:          lb.Situation,
			Action:             lb.Action,
			Result:             lb.Result,
			AchievementID:      src.ID(),
			KeywordUsed:        lb.KeywordUsed,
			PainPointAddressed: lb.PainPointAddressed,
			Path:               "llm",
			MetricsCited:       extractMetricTokens(lb.Text),
		}
		out = append(out, b)
	}
	return out, nil
}

// matchAchievementByText finds the source achievement whose result text
// most closely matches result, falling back to the first achievement when
// nothing matches (the quality gate will catch a genuinely ungrounded
// bullet downstream).
func matchAchievementByText(achievements []domain.AchievementRecord, result string) domain.AchievementRecord {
	best := achievements[0]
	bestScore := 0
	for _, a := range achievements {
		score := sharedWordCount(a.Result, result)
		if score > bestScore {
			best, bestScore = a, score
		}
	}
	return best
}

func sharedWordCount(a, b string) int {
	bSet := lowerSet(strings.Fields(b))
	count := 0
	for _, w := range strings.Fields(strings.ToLower(a)) {
		if bSet[w] {
			count++
		}
	}
	return count
}

func buildTailoringPrompt(achievements []domain.AchievementRecord, jd domain.ExtractedJD, emphasis domain.Emphasis, n int) string {
	var sb strings.Builder
	for _, a := range achievements {
		fmt.Fprintf(&sb, "- role=%s index=%d title=%q\n  situation: %s\n  task: %s\n  actions: %s\n  result: %s\n  metrics: %v\n  keywords: %v\n",
			a.RoleID, a.Index, a.Title, a.Situation, a.Task, strings.Join(a.Actions, "; "), a.Result, a.Metrics, a.Keywords)
	}

	emphasisNote := "Write in a balanced tone across delivery, process, architecture and leadership."
	if emphasis != "" {
		emphasisNote = fmt.Sprintf("Emphasize the %s dimension of these achievements over the others.", emphasis)
	}

	return fmt.Sprintf(`You are writing resume bullets for one career role, strictly grounded in the achievement records below. Do not invent facts.

ACHIEVEMENT RECORDS FOR THIS ROLE:
%s

POSTING MUST-HAVE KEYWORDS: %v
POSTING PAIN POINTS: %v

%s

Guardrails, all mandatory:
1. Every metric you cite must appear verbatim (or within normal rounding) in that achievement's "metrics" list. Never introduce a number absent from metrics.
2. Every action verb must be lexically or closely semantically supported by that achievement's "actions" list.
3. Each bullet must name the keyword_used (one must-have keyword it addresses, or empty string if none apply) and pain_point_addressed (one implied pain point it speaks to, or empty string).
4. Target 20-35 words per bullet.
5. Produce at most %d bullets, at most one per achievement.

Return ONLY valid JSON in this exact format (no markdown, no commentary):
{
  "bullets": [
    {"text": "...", "situation": "...", "action": "...", "result": "...", "source_metric": "...", "keyword_used": "...", "pain_point_addressed": "..."}
  ]
}`, sb.String(), jd.MustHaveKeywords, jd.ImpliedPainPoints, emphasisNote, n)
}
