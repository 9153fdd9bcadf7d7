package grader

import (
	"regexp"
)

// Fixup is a deterministic, zero-token-cost text repair. These run before
// the model-backed improvement pass since they resolve some flagged
// issues for free; anything they can't fix still reaches the Improver.
type Fixup struct {
	Name    string
	Pattern *regexp.Regexp
	Apply   func(match []string) string
}

var patternMatchingFixups = []Fixup{
	{
		Name:    "drop-mirrors-language",
		Pattern: regexp.MustCompile(`(?i)\b(this mirrors|similar to|directly translates to)\b[^.]*\.`),
		Apply:   func([]string) string { return "" },
	},
}

var weakQuantificationPattern = regexp.MustCompile(`\b([2-9]|1[0-9])\s+(clusters|regions|team members|engineers|services|continents)\b`)

// ApplyFixups runs the deterministic repair set over text and reports
// which fixups fired, so the caller can log what was resolved without a
// model call.
func ApplyFixups(text string) (fixed string, applied []string) {
	fixed = text
	for _, f := range patternMatchingFixups {
		if f.Pattern.MatchString(fixed) {
			fixed = f.Pattern.ReplaceAllStringFunc(fixed, func(m string) string {
				return f.Apply(f.Pattern.FindStringSubmatch(m))
			})
			applied = append(applied, f.Name)
		}
	}
	return fixed, applied
}

// FlagWeakQuantifications returns every substring matching a weak
// quantification (a number under 20 paired with a unit that undermines
// credibility at that scale) without rewriting anything: these are
// candidates for the model-backed improvement pass to rephrase with
// real supporting detail rather than a blind regex substitution.
func FlagWeakQuantifications(text string) []string {
	matches := weakQuantificationPattern.FindAllString(text, -1)
	return matches
}
