// Package tier maps a job's fit score to a processing tier and the
// per-task model plan that tier uses.
package tier

import (
	"github.com/harlowdata/tailorcore/pkg/domain"
	"github.com/harlowdata/tailorcore/pkg/gateway"
)

// Plan is the router's decision for one job: which tier, and how many
// generation/synthesis passes the bullet generator should run.
type Plan struct {
	Tier       domain.Tier
	GatewayTier gateway.Tier
	Passes     int // generation passes per role before any synthesis step
	Synthesize bool
}

// Route assigns a tier from fit score. Boundaries are inclusive on the
// lower edge: a score exactly at 0.8 gets GOLD, exactly at 0.6 gets
// SILVER, exactly at 0.4 gets BRONZE.
func Route(fitScore float64, override domain.Tier) Plan {
	t := override
	if t == "" {
		switch {
		case fitScore >= 0.8:
			t = domain.TierGold
		case fitScore >= 0.6:
			t = domain.TierSilver
		case fitScore >= 0.4:
			t = domain.TierBronze
		default:
			t = domain.TierSkip
		}
	}

	switch t {
	case domain.TierGold:
		return Plan{Tier: t, GatewayTier: gateway.TierGold, Passes: 3, Synthesize: true}
	case domain.TierSilver:
		return Plan{Tier: t, GatewayTier: gateway.TierSilver, Passes: 2, Synthesize: true}
	case domain.TierBronze:
		return Plan{Tier: t, GatewayTier: gateway.TierBronze, Passes: 1, Synthesize: false}
	default:
		return Plan{Tier: domain.TierSkip, Passes: 0, Synthesize: false}
	}
}
