package match

import (
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"

	"github.com/rollcall/rollcall/internal/normalize"
)

// Similarity scores two normalized names on [0, 1]. Token alignment is
// order-insensitive, so swapped given and family names still align fully.
//
// Composition: 60% greedy token alignment, 20% first-token similarity,
// 20% last-token similarity. The first/last components reflect that people
// drop or abbreviate middle parts of their names far more often than the
// leading given name or trailing family name.
func Similarity(a, b string) float64 {
	if a == b {
		return 1.0
	}

	ta := normalize.Tokens(a)
	tb := normalize.Tokens(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	align := alignTokens(ta, tb)
	first := tokenSimilarity(ta[0], tb[0])
	last := tokenSimilarity(ta[len(ta)-1], tb[len(tb)-1])

	return 0.6*align + 0.2*first + 0.2*last
}

// tokenSimilarity scores a single token pair. Initials ("g" vs "ghanem") and
// nickname prefixes ("sam" vs "samuel") score high without being treated as
// exact matches.
func tokenSimilarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	if isInitialOf(a, b) || isInitialOf(b, a) {
		return 0.85
	}
	if len(a) >= 3 && len(b) >= 3 && (strings.HasPrefix(a, b) || strings.HasPrefix(b, a)) {
		return 0.9
	}
	return levenshteinSimilarity(a, b)
}

// isInitialOf reports whether short is a single character matching the first
// character of long.
func isInitialOf(short, long string) bool {
	if utf8.RuneCountInString(short) != 1 || long == "" {
		return false
	}
	sr, _ := utf8.DecodeRuneInString(short)
	lr, _ := utf8.DecodeRuneInString(long)
	return sr == lr
}

// levenshteinSimilarity is 1 - dist/maxLen over runes.
func levenshteinSimilarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	if a == "" || b == "" {
		return 0
	}
	dist := levenshtein.ComputeDistance(a, b)
	maxLen := utf8.RuneCountInString(a)
	if l := utf8.RuneCountInString(b); l > maxLen {
		maxLen = l
	}
	return 1.0 - float64(dist)/float64(maxLen)
}

// alignTokens greedily pairs each token of the shorter list with its best
// unused counterpart in the longer list and averages over the longer length,
// so unmatched extra tokens dilute the score.
func alignTokens(a, b []string) float64 {
	short, long := a, b
	if len(short) > len(long) {
		short, long = long, short
	}

	used := make([]bool, len(long))
	var sum float64
	for _, s := range short {
		best := -1
		bestScore := 0.0
		for j, l := range long {
			if used[j] {
				continue
			}
			if score := tokenSimilarity(s, l); score > bestScore {
				bestScore = score
				best = j
			}
		}
		if best >= 0 {
			used[best] = true
			sum += bestScore
		}
	}

	return sum / float64(len(long))
}
