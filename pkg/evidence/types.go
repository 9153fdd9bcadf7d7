package evidence

import "github.com/harlowdata/tailorcore/pkg/domain"

// CurriculumData is the master curriculum: every achievement a tailoring
// run can draw bullets from, plus the profile and skill taxonomy used by
// the Header/Skills Composer.
type CurriculumData struct {
	Achievements       []domain.AchievementRecord `json:"achievements"`
	Profile            Profile                    `json:"profile"`
	Skills             SkillTaxonomy              `json:"skills"`
	OpensourceProjects []Project                  `json:"opensource_projects"`
}

// Profile is the candidate's static identity block.
type Profile struct {
	Name           string            `json:"name"`
	Title          string            `json:"title"`
	Location       string            `json:"location"`
	YearsExperience int              `json:"years_experience"`
	Links          map[string]string `json:"links"`
}

// SkillTaxonomy groups whitelisted skill labels by category; nothing
// outside these lists may appear in a generated skills section.
type SkillTaxonomy struct {
	Languages  []string `json:"languages"`
	Cloud      []string `json:"cloud"`
	Platforms  []string `json:"platforms"`
	Security   []string `json:"security"`
	Databases  []string `json:"databases"`
	Practices  []string `json:"practices"`
}

// All flattens the taxonomy into one whitelist for keyword-coverage and
// fabrication checks.
func (s SkillTaxonomy) All() []string {
	out := make([]string, 0, 64)
	out = append(out, s.Languages...)
	out = append(out, s.Cloud...)
	out = append(out, s.Platforms...)
	out = append(out, s.Security...)
	out = append(out, s.Databases...)
	out = append(out, s.Practices...)
	return out
}

// Project is an open-source or side contribution usable as supplementary
// evidence when an achievement alone doesn't cover a JD requirement.
type Project struct {
	Name        string `json:"name"`
	URL         string `json:"url"`
	Description string `json:"description"`
	Recognition string `json:"recognition,omitempty"`
}
