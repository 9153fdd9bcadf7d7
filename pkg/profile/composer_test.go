package profile

import (
	"strings"
	"testing"

	"github.com/harlowdata/tailorcore/pkg/domain"
	"github.com/harlowdata/tailorcore/pkg/evidence"
)

func sampleBody() domain.StitchedBody {
	return domain.StitchedBody{
		Roles: []domain.RoleOutput{
			{
				RoleID: "acme-2023",
				Bullets: []domain.GeneratedBullet{
					{AchievementID: "a1", Text: "Cut release time to 22 minutes using kubernetes and golang", MetricsCited: []string{"22"}, PainPointAddressed: "reliability at scale"},
					{AchievementID: "a2", Text: "Reduced pages 70% via SRE alerting", MetricsCited: []string{"70"}},
				},
			},
			{
				RoleID: "initech-2020",
				Bullets: []domain.GeneratedBullet{
					{AchievementID: "a3", Text: "Migrated billing system with zero downtime using golang"},
				},
			},
		},
	}
}

func sampleJD() domain.ExtractedJD {
	return domain.ExtractedJD{
		RoleTitle:         "Staff Platform Engineer",
		MustHaveKeywords:  []string{"kubernetes", "golang"},
		ImpliedPainPoints: []string{"reliability at scale"},
		CompetencyWeights: domain.CompetencyWeights{Delivery: 0.4, Process: 0.1, Architecture: 0.4, Leadership: 0.1},
	}
}

func sampleTaxonomy() evidence.SkillTaxonomy {
	return evidence.SkillTaxonomy{
		Languages: []string{"Go", "Python"},
		Cloud:     []string{"AWS"},
		Platforms: []string{"Kubernetes"},
	}
}

func sampleAchievements() []domain.AchievementRecord {
	return []domain.AchievementRecord{
		{RoleID: "acme-2023", Keywords: []string{"golang", "kubernetes"}},
		{RoleID: "initech-2020", Keywords: []string{"golang"}},
	}
}

func TestComposeProducesKeyAchievementsGroundedInBody(t *testing.T) {
	c := New(sampleTaxonomy(), sampleAchievements(), nil)
	out := c.Compose(sampleBody(), sampleJD(), "Jordan Rivera")

	if len(out.KeyAchievements) == 0 {
		t.Fatal("expected at least one key achievement")
	}
	validIDs := map[string]bool{"a1": true, "a2": true, "a3": true}
	for _, ka := range out.KeyAchievements {
		if !validIDs[ka.AchievementID] {
			t.Fatalf("key achievement %q references unknown achievement id %s", ka.Text, ka.AchievementID)
		}
	}
	if out.KeyAchievements[0].AchievementID != "a1" {
		t.Fatalf("expected pain-point-matching, current-role bullet to rank first, got %s", out.KeyAchievements[0].AchievementID)
	}
}

func TestComposeOnlyEmitsWhitelistedSkills(t *testing.T) {
	c := New(sampleTaxonomy(), sampleAchievements(), nil)
	out := c.Compose(sampleBody(), sampleJD(), "Jordan Rivera")

	whitelist := map[string]bool{"go": true, "python": true, "aws": true, "kubernetes": true}
	for _, section := range out.SkillsSections {
		for _, skill := range section.Skills {
			if !whitelist[strings.ToLower(skill)] {
				t.Fatalf("emitted skill %q outside whitelist", skill)
			}
		}
	}
	if len(out.SkillsSections) > MaxSkillsSections {
		t.Fatalf("expected at most %d skills sections, got %d", MaxSkillsSections, len(out.SkillsSections))
	}
}

func TestNewWhitelistIncludesAchievementKeywords(t *testing.T) {
	achievements := []domain.AchievementRecord{
		{RoleID: "r1", Keywords: []string{"Terraform", "GraphQL"}},
	}
	c := New(evidence.SkillTaxonomy{}, achievements, nil)
	if !c.whitelist["terraform"] || !c.whitelist["graphql"] {
		t.Fatal("expected whitelist to include achievement keywords not present in the taxonomy")
	}
}

func TestRankSkillsDropsZeroEvidenceEntries(t *testing.T) {
	whitelist := map[string]bool{"go": true, "python": true}
	mustHave := map[string]bool{}
	evidenceCount := map[string]int{"go": 3}

	ranked := rankSkills([]string{"Go", "Python"}, whitelist, mustHave, evidenceCount)
	if len(ranked) != 1 || ranked[0] != "Go" {
		t.Fatalf("expected only the skill with evidence to survive, got %v", ranked)
	}
}

func TestPadToMinimumFillsShortSectionFromTaxonomy(t *testing.T) {
	whitelist := map[string]bool{"go": true, "python": true, "rust": true}
	candidates := []string{"Go", "Python", "Rust"}
	ranked := []string{"Go"}

	padded := padToMinimum(ranked, candidates, whitelist, map[string]int{})
	if len(padded) < MinSkillsPerSection && len(padded) != len(candidates) {
		t.Fatalf("expected padding to exhaust the whitelisted candidate pool, got %v", padded)
	}
	if padded[0] != "Go" {
		t.Fatalf("expected scored entries to stay ahead of padding, got %v", padded)
	}
}
