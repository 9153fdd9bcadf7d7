// Package stitch concatenates per-role bullet outputs into one
// chronological body and resolves cross-role duplicate bullets.
package stitch

import (
	"strconv"
	"strings"

	"github.com/harlowdata/tailorcore/pkg/domain"
)

// SimilarityThreshold is the composite duplicate-detection cutoff; pairs
// scoring at or above this are treated as the same underlying fact told
// twice. Named here per the open question on overlapping thresholds
// across layers rather than hard-coded at each call site.
const SimilarityThreshold = 0.75

// Composite weights split the duplicate-detection score across its three
// signals: longest-common-substring ratio, shared-keyword ratio, and an
// identical-metric flag.
const (
	lcsWeight             = 0.4
	keywordOverlapWeight  = 0.4
	identicalMetricWeight = 0.2
)

// Stitch concatenates roles most-recent-first — callers are expected to
// hand roles in that order, since RoleOutput carries no parseable date,
// only a free-text timeframe — and removes cross-role duplicate bullets.
func Stitch(roles []domain.RoleOutput) domain.StitchedBody {
	body := domain.StitchedBody{Roles: make([]domain.RoleOutput, len(roles))}
	copy(body.Roles, roles)

	for i := 0; i < len(body.Roles); i++ {
		for j := i + 1; j < len(body.Roles); j++ {
			removeDuplicatesBetween(&body, i, j)
		}
	}

	return body
}

// removeDuplicatesBetween compares every bullet in role i against every
// bullet in role j (i is more recent than j) and drops the older role's
// bullet whenever the pair is a duplicate.
func removeDuplicatesBetween(body *domain.StitchedBody, i, j int) {
	newer := &body.Roles[i]
	older := &body.Roles[j]

	var keptOlder []domain.GeneratedBullet
	for _, ob := range older.Bullets {
		dup := false
		for _, nb := range newer.Bullets {
			sim := similarity(nb, ob)
			if sim >= SimilarityThreshold {
				dup = true
				body.DeduplicationLog = append(body.DeduplicationLog, domain.DeduplicationEntry{
					KeptAchievementID:    nb.AchievementID,
					RemovedAchievementID: ob.AchievementID,
					RemovedFromRole:      older.RoleID,
					Similarity:           sim,
					Reason:               "similarity>" + strconv.FormatFloat(SimilarityThreshold, 'f', -1, 64),
				})
				body.RemovedBullets++
				break
			}
		}
		if !dup {
			keptOlder = append(keptOlder, ob)
		}
	}
	if len(keptOlder) != len(older.Bullets) {
		body.MergedPairs++
	}
	older.Bullets = keptOlder
}

// similarity composes the three duplicate-detection signals into one
// score in [0, 1].
func similarity(a, b domain.GeneratedBullet) float64 {
	lcs := lcsRatio(a.Text, b.Text)
	kw := keywordOverlap(a, b)
	metric := 0.0
	if identicalMetric(a, b) {
		metric = 1.0
	}
	return lcsWeight*lcs + keywordOverlapWeight*kw + identicalMetricWeight*metric
}

func lcsRatio(a, b string) float64 {
	longest := longestCommonSubstring(strings.ToLower(a), strings.ToLower(b))
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	if maxLen == 0 {
		return 0
	}
	return float64(longest) / float64(maxLen)
}

// longestCommonSubstring runs the classic O(n*m) dynamic-programming
// substring match; résumé bullets are short enough that this never
// becomes a hot path.
func longestCommonSubstring(a, b string) int {
	if a == "" || b == "" {
		return 0
	}
	prev := make([]int, len(b)+1)
	longest := 0
	for i := 1; i <= len(a); i++ {
		curr := make([]int, len(b)+1)
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				curr[j] = prev[j-1] + 1
				if curr[j] > longest {
					longest = curr[j]
				}
			}
		}
		prev = curr
	}
	return longest
}

func keywordOverlap(a, b domain.GeneratedBullet) float64 {
	aWords := contentWords(a.Text)
	bWords := contentWords(b.Text)
	if len(aWords) == 0 || len(bWords) == 0 {
		return 0
	}
	bSet := make(map[string]bool, len(bWords))
	for _, w := range bWords {
		bSet[w] = true
	}
	hits := 0
	for _, w := range aWords {
		if bSet[w] {
			hits++
		}
	}
	smaller := len(aWords)
	if len(bWords) < smaller {
		smaller = len(bWords)
	}
	return float64(hits) / float64(smaller)
}

func contentWords(text string) []string {
	var out []string
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,;:()%")
		if len(w) >= 4 {
			out = append(out, w)
		}
	}
	return out
}

func identicalMetric(a, b domain.GeneratedBullet) bool {
	if len(a.MetricsCited) == 0 || len(b.MetricsCited) == 0 {
		return false
	}
	bSet := make(map[string]bool, len(b.MetricsCited))
	for _, m := range b.MetricsCited {
		bSet[normalizeMetric(m)] = true
	}
	for _, m := range a.MetricsCited {
		if bSet[normalizeMetric(m)] {
			return true
		}
	}
	return false
}

func normalizeMetric(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), "")
}
