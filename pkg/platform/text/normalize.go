// Package text provides the normalization every comparison in the engine
// goes through: diacritics stripped, case folded, whitespace collapsed.
package text

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// StripDiacritics removes combining marks, so "Peña" becomes "Pena".
func StripDiacritics(s string) string {
	// Transformers keep state; build one per call so callers can share nothing.
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// CollapseSpaces trims s and replaces every run of whitespace with one space.
func CollapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Normalize case-folds, strips diacritics and collapses whitespace.
//
// Example:
//
//	Normalize("  JOSÉ   Peña ")
//	// Returns: "jose pena"
func Normalize(s string) string {
	folded := cases.Fold().String(StripDiacritics(s))
	return CollapseSpaces(folded)
}

// Compact is Normalize with separators removed. Account numbers and
// identifiers are compared this way so "0012-3456 78" equals "0012345678".
func Compact(s string) string {
	n := Normalize(s)
	return strings.Map(func(r rune) rune {
		switch {
		case unicode.IsSpace(r), r == '-', r == '.', r == '/', r == '_':
			return -1
		}
		return r
	}, n)
}

// Identifier upper-cases s and keeps only letters and digits. RFC and CURP
// values go through this before any comparison.
func Identifier(s string) string {
	n := StripDiacritics(s)
	var b strings.Builder
	b.Grow(len(n))
	for _, r := range n {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	return b.String()
}

// Tokens splits a normalized string into words.
func Tokens(s string) []string {
	return strings.Fields(Normalize(s))
}
