package grader

import (
	"regexp"
	"strconv"
	"strings"
)

var numericPattern = regexp.MustCompile(`-?\d+(\.\d+)?`)

// metricGrounded reports whether cited appears to derive from one of the
// source metrics. Numeric values must be within 15% of a source value;
// non-numeric text must match a source string exactly after normalizing
// case and whitespace.
func metricGrounded(cited string, sourceMetrics []string) bool {
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
	match := numericPattern.FindString(s)
	if match == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(match, 64)
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
