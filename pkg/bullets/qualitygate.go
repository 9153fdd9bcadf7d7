package bullets

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/harlowdata/tailorcore/pkg/domain"
)

// STARCompletenessThreshold is the fraction of a role's bullets that must
// exhibit situation+action+result for the role to pass without
// regeneration.
const STARCompletenessThreshold = 0.8

// KeywordCoverageThreshold is the fraction of the posting's must-have
// keywords relevant to a role's era that must appear across its bullets.
const KeywordCoverageThreshold = 0.8

// PhraseGroundingThreshold is the minimum shared-word ratio a sampled
// noun phrase must clear against its source achievement's text.
const PhraseGroundingThreshold = 0.3

var metricTokenPattern = regexp.MustCompile(`-?\d+(\.\d+)?%?`)

// gateVerdict is the outcome of running the quality gate over one role's
// candidate bullets.
type gateVerdict struct {
	passingBullets []domain.GeneratedBullet
	failedBullets  []domain.GeneratedBullet
	issues         []string
}

// runQualityGate checks STAR completeness, metric verification, phrase
// grounding, and keyword coverage over a role's candidate bullets,
// partitioning them into passing and failing sets.
func runQualityGate(bullets []domain.GeneratedBullet, byID map[string]domain.AchievementRecord, jd domain.ExtractedJD) gateVerdict {
	var v gateVerdict

	starPass := 0
	for _, b := range bullets {
		issues := bulletIssues(b, byID)
		if len(issues) == 0 {
			v.passingBullets = append(v.passingBullets, b)
		} else {
			v.failedBullets = append(v.failedBullets, b)
			v.issues = append(v.issues, issues...)
		}
		if hasSTARCompleteness(b) {
			starPass++
		}
	}

	if len(bullets) > 0 && float64(starPass)/float64(len(bullets)) < STARCompletenessThreshold {
		v.issues = append(v.issues, "STAR completeness below threshold for role")
	}

	coverage := keywordCoverageAcrossBullets(v.passingBullets, jd.MustHaveKeywords)
	if coverage < KeywordCoverageThreshold {
		v.issues = append(v.issues, "must-have keyword coverage below threshold for role")
	}

	return v
}

func bulletIssues(b domain.GeneratedBullet, byID map[string]domain.AchievementRecord) []string {
	var issues []string

	src, ok := byID[b.AchievementID]
	if !ok {
		return []string{"bullet cites unknown source achievement"}
	}

	for _, metric := range metricTokenPattern.FindAllString(b.Text, -1) {
		if !metricGroundedIn(metric, src.Metrics) {
			issues = append(issues, "ungrounded metric in bullet text: "+metric)
		}
	}

	if !phraseGrounded(b.Text, src) {
		issues = append(issues, "bullet text not phrase-grounded in source achievement")
	}

	return issues
}

func hasSTARCompleteness(b domain.GeneratedBullet) bool {
	return strings.TrimSpace(b.Situation) != "" && strings.TrimSpace(b.Action) != "" && strings.TrimSpace(b.Result) != ""
}

func keywordCoverageAcrossBullets(bullets []domain.GeneratedBullet, mustHave []string) float64 {
	if len(mustHave) == 0 {
		return 1
	}
	text := strings.ToLower(joinBulletText(bullets))
	hits := 0
	for _, kw := range mustHave {
		if strings.Contains(text, strings.ToLower(kw)) {
			hits++
		}
	}
	return float64(hits) / float64(len(mustHave))
}

func joinBulletText(bullets []domain.GeneratedBullet) string {
	var sb strings.Builder
	for _, b := range bullets {
		sb.WriteString(b.Text)
		sb.WriteString(" ")
	}
	return sb.String()
}

// phraseGrounded is a cheap stand-in for semantic similarity: it checks
// that a meaningful fraction of the bullet's content words also appear in
// the source achievement's combined text. Tokens shorter than 3 runes are
// ignored as too common to carry grounding signal.
func phraseGrounded(text string, src domain.AchievementRecord) bool {
	sourceText := strings.ToLower(strings.Join(append([]string{src.Situation, src.Task, src.Result}, src.Actions...), " "))
	sourceWords := lowerSet(strings.Fields(sourceText))

	words := strings.Fields(strings.ToLower(text))
	var relevant, grounded int
	for _, w := range words {
		w = strings.Trim(w, ".,;:()%")
		if len(w) < 3 || metricTokenPattern.MatchString(w) {
			continue
		}
		relevant++
		if sourceWords[w] {
			grounded++
		}
	}
	if relevant == 0 {
		return true
	}
	return float64(grounded)/float64(relevant) >= PhraseGroundingThreshold
}

func metricGroundedIn(cited string, sourceMetrics []string) bool {
	citedNum, citedIsNum := firstNumber(cited)
	for _, src := range sourceMetrics {
		if citedIsNum {
			srcNum, srcIsNum := firstNumber(src)
			if srcIsNum && withinTolerance(citedNum, srcNum, 0.15) {
				return true
			}
			continue
		}
		if normalize(cited) == normalize(src) {
			return true
		}
	}
	return false
}

func firstNumber(s string) (float64, bool) {
	match := metricTokenPattern.FindString(s)
	if match == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.TrimSuffix(match, "%"), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func withinTolerance(a, b, tolerance float64) bool {
	if b == 0 {
		return a == 0
	}
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	return diff/b <= tolerance
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func extractMetricTokens(text string) []string {
	return metricTokenPattern.FindAllString(text, -1)
}
