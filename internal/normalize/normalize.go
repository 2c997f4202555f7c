// Package normalize reduces raw participant display names to comparable
// canonical keys. Conferencing platforms let people type anything: "Sam G.",
// " samuel  GHANEM ", "Sam Ghanem (Guest)", "José💻". Everything downstream
// (alias index, resolver, dedup keys) operates on the normalized form.
package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// accentFolder decomposes characters and strips combining marks, so
// "José" and "Jose" normalize to the same key.
var accentFolder = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Platform-appended annotations: "(Guest)", "[External]", "{via phone}".
var parentheticalPattern = regexp.MustCompile(`\([^)]*\)|\[[^\]]*\]|\{[^}]*\}`)

// Name reduces a raw display name to its normalized key: lower-cased,
// accent-folded, parenthetical suffixes and punctuation stripped, whitespace
// collapsed. Pure and deterministic; Name(Name(x)) == Name(x).
//
// An empty result means the input carried no usable name content (empty,
// whitespace-only, or emoji/punctuation-only). Callers must route those to
// review, never attach or drop them.
func Name(raw string) string {
	s := parentheticalPattern.ReplaceAllString(raw, " ")

	if folded, _, err := transform.String(accentFolder, s); err == nil {
		s = folded
	}

	s = strings.ToLower(s)

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case r == '\'' || r == '’':
			// Apostrophes vanish entirely: "O'Brien" -> "obrien".
		default:
			b.WriteRune(' ')
		}
	}

	return strings.Join(strings.Fields(b.String()), " ")
}

// Tokens splits a normalized name into its tokens.
func Tokens(normalized string) []string {
	return strings.Fields(normalized)
}
