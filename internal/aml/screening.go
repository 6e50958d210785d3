package aml

import (
	"math"
	"regexp"
	"strings"

	"github.com/agnivade/levenshtein"
)

// screeningMatchThreshold is the minimum normalized similarity for a list
// hit. Exact matches score 1.0.
const screeningMatchThreshold = 0.85

var nameCleaner = regexp.MustCompile(`[^a-z0-9\s]`)

// ScreeningList is a normalized name list used for PEP and sanctions
// screening. Matching is fuzzy so transliteration variants still hit.
type ScreeningList struct {
	names []string
}

// NewScreeningList normalizes and stores the given names. Empty entries are
// dropped.
func NewScreeningList(names []string) *ScreeningList {
	list := &ScreeningList{names: make([]string, 0, len(names))}
	for _, name := range names {
		if normalized := normalizeName(name); normalized != "" {
			list.names = append(list.names, normalized)
		}
	}
	return list
}

// Match returns the best list entry whose similarity to the candidate
// reaches the screening threshold.
func (l *ScreeningList) Match(name string) (string, float64, bool) {
	candidate := normalizeName(name)
	if candidate == "" || len(l.names) == 0 {
		return "", 0, false
	}

	var bestName string
	var bestScore float64
	for _, entry := range l.names {
		if score := nameSimilarity(candidate, entry); score > bestScore {
			bestName, bestScore = entry, score
		}
	}
	if bestScore < screeningMatchThreshold {
		return "", 0, false
	}
	return bestName, bestScore, true
}

// normalizeName lowercases, strips punctuation and collapses whitespace so
// similarity is measured on the name itself.
func normalizeName(name string) string {
	name = strings.ToLower(name)
	name = nameCleaner.ReplaceAllString(name, "")
	return strings.Join(strings.Fields(name), " ")
}

// nameSimilarity maps Levenshtein distance onto [0, 1], where 1 is an exact
// match.
func nameSimilarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	maxLen := math.Max(float64(len(a)), float64(len(b)))
	if maxLen == 0 {
		return 1.0
	}
	return 1.0 - float64(levenshtein.ComputeDistance(a, b))/maxLen
}
