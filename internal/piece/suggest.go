package piece

import (
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

// suggestTargetName picks the closest existing name for a lookup miss,
// or "" when nothing is close enough. Distance is Levenshtein over the
// lowercased strings, so case-only slips still match; a candidate is
// eligible within a budget of 1 + len(name)/4 runes. Candidates arrive
// sorted, and strict improvement keeps the first best, so ties go to
// the lexicographically smaller name.
func suggestTargetName(name string, candidates []string) string {
	if name == "" || len(candidates) == 0 {
		return ""
	}
	budget := 1 + utf8.RuneCountInString(name)/4
	lower := strings.ToLower(name)
	best := ""
	bestDist := budget + 1
	for _, cand := range candidates {
		dist := levenshtein.ComputeDistance(lower, strings.ToLower(cand))
		if dist < bestDist {
			bestDist = dist
			best = cand
		}
	}
	return best
}
