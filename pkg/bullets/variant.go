// Package bullets implements the Per-Role Bullet Generator: for each
// career role it selects or tailors 2-6 GeneratedBullets faithful to
// that role's AchievementRecords, then runs the per-role quality gate.
package bullets

import (
	"sort"
	"strings"

	"github.com/harlowdata/tailorcore/pkg/domain"
)

// VariantWeights are the α/β/γ/δ coefficients for scoring a pre-written
// variant: keyword match, pain-point match, competency-weight alignment,
// and recency boost for the current role. Documented here since the
// source material gives no canonical split.
type VariantWeights struct {
	Keyword    float64
	PainPoint  float64
	Competency float64
	Recency    float64
}

// DefaultVariantWeights favors keyword match and pain-point alignment
// over recency, reflecting that a posting's explicit requirements matter
// more than which job happened most recently.
func DefaultVariantWeights() VariantWeights {
	return VariantWeights{Keyword: 0.35, PainPoint: 0.30, Competency: 0.25, Recency: 0.10}
}

// KeywordOverlapThreshold bounds the diversity constraint: two selected
// bullets may not share more than this fraction of their keyword sets.
const KeywordOverlapThreshold = 0.5

// ZeroMetricDeliveryCeiling bounds when a metric-free variant is still
// admissible: a posting that doesn't lean heavily on delivery can be
// served by a qualitative bullet, but a delivery-weighted posting needs
// the number.
const ZeroMetricDeliveryCeiling = 0.25

// admissible rejects a variant that cites no metric at all unless the
// posting's delivery weight falls below ZeroMetricDeliveryCeiling: a
// delivery-heavy posting is exactly the case a bare qualitative claim
// fails to serve.
func admissible(v scoredVariant, weight domain.CompetencyWeights) bool {
	if len(extractMetricTokens(v.text)) > 0 {
		return true
	}
	return weight.Delivery < ZeroMetricDeliveryCeiling
}

// scoredVariant is one candidate phrasing of an achievement, scored
// against a posting, ready for top-k selection.
type scoredVariant struct {
	achievement domain.AchievementRecord
	emphasis    domain.Emphasis
	text        string
	keywords    []string
	score       float64
	isCurrent   bool
}

// selectVariants scores every pre-written variant (plus the achievement's
// base phrasing, treated as its own candidate) for one role against the
// posting, then greedily picks the top candidates subject to the
// keyword-overlap diversity constraint. It returns at most maxBullets
// candidates, one achievement represented at most once.
func selectVariants(achievements []domain.AchievementRecord, jd domain.ExtractedJD, currentRoleID string, weights VariantWeights, maxBullets int) []scoredVariant {
	mustHave := lowerSet(jd.MustHaveKeywords)
	painPoints := lowerSet(jd.ImpliedPainPoints)
	weight := jd.CompetencyWeights.Normalize()

	candidates := make([]scoredVariant, 0, len(achievements)*2)
	for _, a := range achievements {
		isCurrent := a.RoleID == currentRoleID

		base := scoredVariant{
			achievement: a,
			emphasis:    "",
			text:        a.Result,
			keywords:    a.Keywords,
			isCurrent:   isCurrent,
		}
		base.score = scoreVariant(base, a, mustHave, painPoints, weight, weights)
		candidates = append(candidates, base)

		for emphasis, text := range a.Variants {
			v := scoredVariant{
				achievement: a,
				emphasis:    emphasis,
				text:        text,
				keywords:    a.Keywords,
				isCurrent:   isCurrent,
			}
			v.score = scoreVariant(v, a, mustHave, painPoints, weight, weights)
			v.score += emphasisAlignmentBonus(emphasis, weight)
			candidates = append(candidates, v)
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })

	var selected []scoredVariant
	seenAchievement := make(map[string]bool)
	for _, c := range candidates {
		if !admissible(c, weight) {
			continue
		}
		id := c.achievement.ID()
		if seenAchievement[id] {
			continue
		}
		if tooSimilarToSelected(c, selected) {
			continue
		}
		selected = append(selected, c)
		seenAchievement[id] = true
		if len(selected) >= maxBullets {
			break
		}
	}
	return selected
}

func scoreVariant(v scoredVariant, a domain.AchievementRecord, mustHave, painPoints map[string]bool, weight domain.CompetencyWeights, w VariantWeights) float64 {
	kwScore := keywordMatchRatio(v.keywords, mustHave)
	ppScore := painPointMatchRatio(a, painPoints)
	compScore := competencyAlignment(v.emphasis, weight)
	recencyScore := 0.0
	if v.isCurrent {
		recencyScore = 1.0
	}

	return w.Keyword*kwScore + w.PainPoint*ppScore + w.Competency*compScore + w.Recency*recencyScore
}

func keywordMatchRatio(keywords []string, mustHave map[string]bool) float64 {
	if len(mustHave) == 0 {
		return 0
	}
	hits := 0
	for _, k := range keywords {
		if mustHave[strings.ToLower(k)] {
			hits++
		}
	}
	return float64(hits) / float64(len(mustHave))
}

func painPointMatchRatio(a domain.AchievementRecord, painPoints map[string]bool) float64 {
	if len(painPoints) == 0 {
		return 0
	}
	haystack := strings.ToLower(a.Situation + " " + a.Task + " " + a.Result)
	hits := 0
	for pp := range painPoints {
		if strings.Contains(haystack, pp) {
			hits++
		}
	}
	return float64(hits) / float64(len(painPoints))
}

// competencyAlignment returns the posting's weight for whichever emphasis
// a variant carries; the base (un-emphasized) phrasing gets the mean of
// all four weights, i.e. no particular alignment either way.
func competencyAlignment(emphasis domain.Emphasis, w domain.CompetencyWeights) float64 {
	switch emphasis {
	case domain.EmphasisDelivery:
		return w.Delivery
	case domain.EmphasisProcess:
		return w.Process
	case domain.EmphasisArchitecture:
		return w.Architecture
	case domain.EmphasisLeadership:
		return w.Leadership
	default:
		return (w.Delivery + w.Process + w.Architecture + w.Leadership) / 4
	}
}

// emphasisAlignmentBonus nudges a variant further when its emphasis is
// the posting's single dominant competency, breaking ties among variants
// that otherwise score identically on keyword/pain-point match.
func emphasisAlignmentBonus(emphasis domain.Emphasis, w domain.CompetencyWeights) float64 {
	dominant := domain.EmphasisDelivery
	best := w.Delivery
	for e, v := range map[domain.Emphasis]float64{
		domain.EmphasisProcess:      w.Process,
		domain.EmphasisArchitecture: w.Architecture,
		domain.EmphasisLeadership:   w.Leadership,
	} {
		if v > best {
			dominant, best = e, v
		}
	}
	if emphasis == dominant {
		return 0.05
	}
	return 0
}

func tooSimilarToSelected(c scoredVariant, selected []scoredVariant) bool {
	for _, s := range selected {
		if keywordOverlapRatio(c.keywords, s.keywords) > KeywordOverlapThreshold {
			return true
		}
	}
	return false
}

func keywordOverlapRatio(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	bSet := lowerSet(b)
	hits := 0
	for _, k := range a {
		if bSet[strings.ToLower(k)] {
			hits++
		}
	}
	smaller := len(a)
	if len(b) < smaller {
		smaller = len(b)
	}
	return float64(hits) / float64(smaller)
}

func lowerSet(items []string) map[string]bool {
	out := make(map[string]bool, len(items))
	for _, i := range items {
		out[strings.ToLower(strings.TrimSpace(i))] = true
	}
	return out
}
