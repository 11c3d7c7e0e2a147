package review

import (
	"math"
	"regexp"
	"strings"
)

var fenceRe = regexp.MustCompile("(?i)```(?:json)?")

// ExtractJSON strips markdown fences and returns the outermost {...} span.
// Text without a brace pair is returned trimmed.
func ExtractJSON(raw string) string {
	s := strings.TrimSpace(fenceRe.ReplaceAllString(raw, ""))
	first := strings.Index(s, "{")
	last := strings.LastIndex(s, "}")
	if first != -1 && last > first {
		return s[first : last+1]
	}
	return s
}

// NormalizeScore maps a 0-1 fraction to a percentage and clamps anything else to 0..100
func NormalizeScore(s float64) int {
	if s > 0 && s <= 1 {
		return int(math.Round(s * 100))
	}
	return int(math.Max(0, math.Min(100, math.Round(s))))
}
