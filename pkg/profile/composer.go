// Package profile implements the Header/Skills Composer: headline,
// tagline, key-achievement highlights, core competencies, and up to four
// labeled skills sections, all grounded in the stitched body.
package profile

import (
	"sort"
	"strings"

	"github.com/harlowdata/tailorcore/pkg/domain"
	"github.com/harlowdata/tailorcore/pkg/evidence"
)

// Key-achievement scoring weights, named per §4.6 rather than inlined.
const (
	PainPointWeight         = 2.0
	AnnotationBoostWeight   = 3.0
	KeywordMatchWeight      = 0.5
	CandidateStrengthWeight = 1.5
	RecencyCurrentBonus     = 1.0
	RecencyPreviousBonus    = 0.5
)

// MinKeyAchievements and MaxKeyAchievements bound the headline highlight
// list.
const (
	MinKeyAchievements = 5
	MaxKeyAchievements = 6
)

// MaxSkillsSections and per-section bounds mirror the fixed skills
// taxonomy scoring policy.
const (
	MaxSkillsSections  = 4
	MinSkillsPerSection = 6
	MaxSkillsPerSection = 8
)

// Annotator reports whether an external annotator flagged a bullet as
// particularly strong for this candidate — an optional signal; a nil
// Annotator means no bullet gets the boost.
type Annotator interface {
	IsAnnotated(achievementID string) bool
}

// Composer builds a ProfileOutput from a stitched body, the structured
// posting, and the skill taxonomy/whitelist from the evidence library.
type Composer struct {
	taxonomy  evidence.SkillTaxonomy
	whitelist map[string]bool
	annotator Annotator
}

// New builds a Composer. The skill whitelist is the union of the fixed
// taxonomy and every keyword attached to a curriculum achievement, so a
// candidate's hands-on keywords can surface even when the taxonomy
// itself didn't anticipate them. annotator may be nil.
func New(taxonomy evidence.SkillTaxonomy, achievements []domain.AchievementRecord, annotator Annotator) *Composer {
	wl := make(map[string]bool)
	for _, s := range taxonomy.All() {
		wl[strings.ToLower(s)] = true
	}
	for _, a := range achievements {
		for _, k := range a.Keywords {
			wl[strings.ToLower(k)] = true
		}
	}
	return &Composer{taxonomy: taxonomy, whitelist: wl, annotator: annotator}
}

// Compose produces headline, tagline, key achievements, core
// competencies, and skills sections from the stitched body.
func (c *Composer) Compose(body domain.StitchedBody, jd domain.ExtractedJD, candidateTitle string) domain.ProfileOutput {
	var out domain.ProfileOutput
	out.Headline = headline(candidateTitle, jd)
	out.Tagline = tagline(jd)
	out.KeyAchievements = c.selectKeyAchievements(body, jd)
	out.CoreCompetencies = coreCompetencies(jd)
	out.SkillsSections = c.selectSkillsSections(body, jd)
	return out
}

func headline(candidateTitle string, jd domain.ExtractedJD) string {
	if jd.RoleTitle != "" {
		return candidateTitle + " — " + jd.RoleTitle
	}
	return candidateTitle
}

func tagline(jd domain.ExtractedJD) string {
	if len(jd.ImpliedPainPoints) == 0 {
		return ""
	}
	return "Focused on " + strings.Join(jd.ImpliedPainPoints[:min(2, len(jd.ImpliedPainPoints))], " and ")
}

func coreCompetencies(jd domain.ExtractedJD) []string {
	type weighted struct {
		name  string
		value float64
	}
	ws := []weighted{
		{"Delivery", jd.CompetencyWeights.Delivery},
		{"Process & Operations", jd.CompetencyWeights.Process},
		{"Architecture", jd.CompetencyWeights.Architecture},
		{"Leadership", jd.CompetencyWeights.Leadership},
	}
	sort.SliceStable(ws, func(i, j int) bool { return ws[i].value > ws[j].value })
	out := make([]string, 0, len(ws))
	for _, w := range ws {
		if w.value > 0 {
			out = append(out, w.name)
		}
	}
	return out
}

type scoredAchievement struct {
	bullet domain.GeneratedBullet
	roleID string
	score  float64
}

// selectKeyAchievements scores every stitched bullet and picks the
// top 5-6 with a diversity constraint requiring distinct source
// achievements (the Open Question resolution for key-achievement ties).
func (c *Composer) selectKeyAchievements(body domain.StitchedBody, jd domain.ExtractedJD) []domain.KeyAchievement {
	mustHave := lowerSet(jd.MustHaveKeywords)
	painPoints := lowerSet(jd.ImpliedPainPoints)

	var scored []scoredAchievement
	for roleIdx, role := range body.Roles {
		for _, b := range role.Bullets {
			score := c.scoreKeyAchievement(b, mustHave, painPoints, roleIdx)
			scored = append(scored, scoredAchievement{bullet: b, roleID: role.RoleID, score: score})
		}
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].score > scored[j].score })

	seen := make(map[string]bool)
	var out []domain.KeyAchievement
	for _, s := range scored {
		if seen[s.bullet.AchievementID] {
			continue
		}
		seen[s.bullet.AchievementID] = true
		out = append(out, domain.KeyAchievement{Text: s.bullet.Text, AchievementID: s.bullet.AchievementID})
		if len(out) >= MaxKeyAchievements {
			break
		}
	}
	return out
}

func (c *Composer) scoreKeyAchievement(b domain.GeneratedBullet, mustHave, painPoints map[string]bool, roleIndex int) float64 {
	score := 0.0

	if painPoints[strings.ToLower(b.PainPointAddressed)] || containsAny(b.Text, painPoints) {
		score += PainPointWeight
	}
	if c.annotator != nil && c.annotator.IsAnnotated(b.AchievementID) {
		score += AnnotationBoostWeight
	}

	hits := 0
	for kw := range mustHave {
		if strings.Contains(strings.ToLower(b.Text), kw) {
			hits++
		}
	}
	score += KeywordMatchWeight * float64(hits)

	score += CandidateStrengthWeight * float64(len(b.MetricsCited)) / 3.0 // more grounded metrics => stronger claim

	switch roleIndex {
	case 0:
		score += RecencyCurrentBonus
	case 1:
		score += RecencyPreviousBonus
	}

	return score
}

func containsAny(text string, set map[string]bool) bool {
	lower := strings.ToLower(text)
	for s := range set {
		if s != "" && strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

// selectSkillsSections scores the fixed taxonomy's categories against the
// posting, keeps the top four, and within each ranks entries by
// keyword-match x evidence-count, filtered to the whitelist and truncated
// to 6-8 entries.
func (c *Composer) selectSkillsSections(body domain.StitchedBody, jd domain.ExtractedJD) []domain.SkillsSection {
	categories := map[string][]string{
		"Languages": c.taxonomy.Languages,
		"Cloud":     c.taxonomy.Cloud,
		"Platforms": c.taxonomy.Platforms,
		"Security":  c.taxonomy.Security,
		"Databases": c.taxonomy.Databases,
		"Practices": c.taxonomy.Practices,
	}

	evidenceCount := evidenceCountByKeyword(body)
	mustHave := lowerSet(jd.MustHaveKeywords)

	type scoredCategory struct {
		label string
		score float64
	}
	var cats []scoredCategory
	for label, skills := range categories {
		if len(skills) == 0 {
			continue
		}
		total := 0.0
		for _, s := range skills {
			total += categoryScore(s, mustHave, evidenceCount)
		}
		cats = append(cats, scoredCategory{label: label, score: total})
	}
	sort.SliceStable(cats, func(i, j int) bool { return cats[i].score > cats[j].score })
	if len(cats) > MaxSkillsSections {
		cats = cats[:MaxSkillsSections]
	}

	var sections []domain.SkillsSection
	for _, cat := range cats {
		skills := categories[cat.label]
		ranked := rankSkills(skills, c.whitelist, mustHave, evidenceCount)
		if len(ranked) == 0 {
			continue
		}
		ranked = padToMinimum(ranked, skills, c.whitelist, evidenceCount)
		if len(ranked) > MaxSkillsPerSection {
			ranked = ranked[:MaxSkillsPerSection]
		}
		sections = append(sections, domain.SkillsSection{Label: cat.label, Skills: ranked})
	}
	return sections
}

func categoryScore(skill string, mustHave map[string]bool, evidenceCount map[string]int) float64 {
	s := strings.ToLower(skill)
	score := float64(evidenceCount[s])
	if mustHave[s] {
		score += 1.0
	}
	return score
}

// rankSkills ranks whitelisted skills by keyword-match x evidence-count
// and drops any skill with zero supporting bullets: a skill with no
// evidence behind it has no provenance to stand on and is never emitted.
func rankSkills(skills []string, whitelist, mustHave map[string]bool, evidenceCount map[string]int) []string {
	type scored struct {
		skill string
		score float64
	}
	var out []scored
	for _, s := range skills {
		lower := strings.ToLower(s)
		if !whitelist[lower] {
			continue // never emit a skill outside the candidate's own whitelist
		}
		if evidenceCount[lower] == 0 {
			continue // no supporting bullet, no provenance
		}
		matchBonus := 1.0
		if mustHave[lower] {
			matchBonus = 2.0
		}
		score := matchBonus * float64(evidenceCount[lower])
		out = append(out, scored{skill: s, score: score})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].score > out[j].score })

	result := make([]string, 0, len(out))
	for _, o := range out {
		result = append(result, o.skill)
	}
	return result
}

// padToMinimum fills a section back up to MinSkillsPerSection from the
// category's whitelisted remainder when the provenance filter in
// rankSkills leaves it short. Padding entries carry no evidence and are
// always appended after the scored ones, in taxonomy order.
func padToMinimum(ranked, candidates []string, whitelist map[string]bool, evidenceCount map[string]int) []string {
	if len(ranked) >= MinSkillsPerSection {
		return ranked
	}
	present := make(map[string]bool, len(ranked))
	for _, s := range ranked {
		present[strings.ToLower(s)] = true
	}
	for _, s := range candidates {
		if len(ranked) >= MinSkillsPerSection {
			break
		}
		lower := strings.ToLower(s)
		if !whitelist[lower] || present[lower] {
			continue
		}
		ranked = append(ranked, s)
		present[lower] = true
	}
	return ranked
}

func evidenceCountByKeyword(body domain.StitchedBody) map[string]int {
	counts := make(map[string]int)
	for _, role := range body.Roles {
		for _, b := range role.Bullets {
			for _, w := range strings.Fields(strings.ToLower(b.Text)) {
				w = strings.Trim(w, ".,;:()%")
				if len(w) >= 3 {
					counts[w]++
				}
			}
		}
	}
	return counts
}

func lowerSet(items []string) map[string]bool {
	out := make(map[string]bool, len(items))
	for _, i := range items {
		out[strings.ToLower(strings.TrimSpace(i))] = true
	}
	return out
}
