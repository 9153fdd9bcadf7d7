package bullets

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/harlowdata/tailorcore/pkg/domain"
	"github.com/harlowdata/tailorcore/pkg/gateway"
)

// MinBulletsPerRole and MaxBulletsPerRole bound how many bullets a role
// output carries; below the minimum the role is marked degraded rather
// than padded with weak content.
const (
	MinBulletsPerRole = 2
	MaxBulletsPerRole = 6
)

// goldPasses are the three distinct emphases the GOLD tier runs
// independently before a synthesis pass picks the best bullet per
// achievement.
var goldPasses = []domain.Emphasis{domain.EmphasisDelivery, domain.EmphasisArchitecture, domain.EmphasisProcess}

// Generator produces RoleOutputs from the evidence library's achievements
// and a structured posting, running one independent sub-task per role
// with bounded worker-pool parallelism.
type Generator struct {
	gw      *gateway.Gateway
	weights VariantWeights
}

// New builds a Generator sharing a Model Gateway with the rest of the
// pipeline.
func New(gw *gateway.Gateway) *Generator {
	return &Generator{gw: gw, weights: DefaultVariantWeights()}
}

// roleGroup is one career role's achievements plus its identity fields.
type roleGroup struct {
	roleID    string
	company   string
	role      string
	timeframe string
	records   []domain.AchievementRecord
}

// GenerateAll runs the bullet generator for every role present in
// achievements, honoring plan.Passes/Synthesize, with up to
// workerPoolSize roles processed concurrently. Roles are returned in the
// order their groups were first observed in achievements; the Stitcher is
// responsible for final recency ordering.
func (g *Generator) GenerateAll(ctx context.Context, achievements []domain.AchievementRecord, jd domain.ExtractedJD, passes int, synthesize bool, tier gateway.Tier, workerPoolSize int) ([]domain.RoleOutput, error) {
	groups := groupByRole(achievements)
	outputs := make([]domain.RoleOutput, len(groups))

	if workerPoolSize <= 0 {
		workerPoolSize = 4
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(workerPoolSize)

	for i, grp := range groups {
		i, grp := i, grp
		eg.Go(func() error {
			out, err := g.generateRole(egCtx, grp, jd, passes, synthesize, tier)
			if err != nil {
				return errors.Wrapf(err, "role %s", grp.roleID)
			}
			outputs[i] = out
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return outputs, nil
}

func groupByRole(achievements []domain.AchievementRecord) []roleGroup {
	order := make([]string, 0)
	byID := make(map[string]*roleGroup)
	for _, a := range achievements {
		grp, ok := byID[a.RoleID]
		if !ok {
			grp = &roleGroup{roleID: a.RoleID, company: a.Company, role: a.Role, timeframe: a.Timeframe}
			byID[a.RoleID] = grp
			order = append(order, a.RoleID)
		}
		grp.records = append(grp.records, a)
	}
	out := make([]roleGroup, 0, len(order))
	for _, id := range order {
		out = append(out, *byID[id])
	}
	return out
}

// generateRole runs the preferred variant-selection path, falls back to
// LLM tailoring when variants don't cover enough of the role, applies the
// quality gate with a single regeneration attempt for failures, and (for
// multi-pass tiers) synthesizes across passes before returning.
func (g *Generator) generateRole(ctx context.Context, grp roleGroup, jd domain.ExtractedJD, passes int, synthesize bool, tier gateway.Tier) (domain.RoleOutput, error) {
	byID := make(map[string]domain.AchievementRecord, len(grp.records))
	for _, a := range grp.records {
		byID[a.ID()] = a
	}

	out := domain.RoleOutput{
		RoleID:    grp.roleID,
		Company:   grp.company,
		Role:      grp.role,
		Timeframe: grp.timeframe,
	}

	if passes <= 0 {
		// SKIP tier: template-only, no bullet generation at all.
		out.Passed = true
		return out, nil
	}

	passEmphases := passEmphasesFor(passes)
	var allPassing []domain.GeneratedBullet

	for _, emphasis := range passEmphases {
		candidates := g.candidatesForPass(ctx, grp, jd, emphasis, tier)

		verdict := runQualityGate(candidates, byID, jd)
		passing := verdict.passingBullets

		if len(verdict.failedBullets) > 0 {
			regenerated, err := g.regenerateFailed(ctx, grp, jd, emphasis, tier, len(verdict.failedBullets))
			if err == nil {
				regenVerdict := runQualityGate(regenerated, byID, jd)
				passing = append(passing, regenVerdict.passingBullets...)
				out.Issues = append(out.Issues, regenVerdict.issues...)
			}
		}
		out.Issues = append(out.Issues, verdict.issues...)
		allPassing = append(allPassing, passing...)
	}

	final := allPassing
	if synthesize && len(passEmphases) > 1 {
		final = synthesizeBestPerAchievement(allPassing)
	}

	final = capBullets(final, MaxBulletsPerRole)

	out.Bullets = final

	if len(final) < MinBulletsPerRole {
		out.Degraded = true
		out.Issues = append(out.Issues, fmt.Sprintf("role has fewer than %d passing bullets", MinBulletsPerRole))
	}
	out.Passed = !out.Degraded && len(out.Issues) == 0

	return out, nil
}

func passEmphasesFor(passes int) []domain.Emphasis {
	if passes <= 0 {
		return nil
	}
	if passes > len(goldPasses) {
		passes = len(goldPasses)
	}
	return goldPasses[:passes]
}

// candidatesForPass tries the variant-selection path first (zero
// hallucination risk); if fewer than MinBulletsPerRole variants clear the
// keyword/pain-point bar, it supplements with LLM tailoring.
func (g *Generator) candidatesForPass(ctx context.Context, grp roleGroup, jd domain.ExtractedJD, emphasis domain.Emphasis, tier gateway.Tier) []domain.GeneratedBullet {
	selected := selectVariants(grp.records, jd, grp.roleID, g.weights, MaxBulletsPerRole)

	candidates := make([]domain.GeneratedBullet, 0, len(selected))
	for _, v := range selected {
		candidates = append(candidates, domain.GeneratedBullet{
			Text:          v.text,
			SourceText:    v.achievement.Result,
			AchievementID: v.achievement.ID(),
			Situation:     v.achievement.Situation,
			Action:        strings.Join(v.achievement.Actions, "; "),
			Result:        v.achievement.Result,
			Path:          "variant",
			MetricsCited:  extractMetricTokens(v.text),
		})
	}

	if len(candidates) >= MinBulletsPerRole {
		return candidates
	}

	llmBullets, err := tailorWithLLM(ctx, g.gw, tier, grp.records, jd, emphasis, MaxBulletsPerRole-len(candidates))
	if err != nil {
		return candidates // content insufficiency: the quality gate / degraded flag downstream handles this
	}
	return append(candidates, llmBullets...)
}

// regenerateFailed gives failed bullets one more attempt under the LLM
// path with tighter constraints (fewer requested bullets, same
// achievements); persistent failures are simply not retried again.
func (g *Generator) regenerateFailed(ctx context.Context, grp roleGroup, jd domain.ExtractedJD, emphasis domain.Emphasis, tier gateway.Tier, n int) ([]domain.GeneratedBullet, error) {
	if n > MaxBulletsPerRole {
		n = MaxBulletsPerRole
	}
	out, err := tailorWithLLM(ctx, g.gw, tier, grp.records, jd, emphasis, n)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Attempt = 1
	}
	return out, nil
}

// synthesizeBestPerAchievement implements the GOLD ensemble's synthesis
// step: across all passes, keep the single highest-scoring bullet per
// source achievement, favoring metric richness over narrative polish on
// ties.
func synthesizeBestPerAchievement(bullets []domain.GeneratedBullet) []domain.GeneratedBullet {
	best := make(map[string]domain.GeneratedBullet)
	for _, b := range bullets {
		existing, ok := best[b.AchievementID]
		if !ok || bulletRichness(b) > bulletRichness(existing) {
			best[b.AchievementID] = b
		}
	}

	out := make([]domain.GeneratedBullet, 0, len(best))
	for _, b := range best {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AchievementID < out[j].AchievementID })
	return out
}

// bulletRichness scores metric density first (favoring more distinct
// numeric tokens), then length, matching the tie-break the Stitcher uses
// for cross-role duplicates.
func bulletRichness(b domain.GeneratedBullet) float64 {
	return float64(len(b.MetricsCited))*1000 + float64(len(b.Text))
}

func capBullets(bullets []domain.GeneratedBullet, max int) []domain.GeneratedBullet {
	if len(bullets) <= max {
		return bullets
	}
	sort.SliceStable(bullets, func(i, j int) bool { return bulletRichness(bullets[i]) > bulletRichness(bullets[j]) })
	return bullets[:max]
}
