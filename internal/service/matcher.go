package service

import (
	"strings"
	"unicode"
)

var legalSuffixes = map[string]struct{}{
	"limited": {},
	"ltd":     {},
	"private": {},
	"pvt":     {},
}

// NormalizeCompanyName lower-cases name, drops punctuation, whitespace and the
// legal-entity words limited/ltd/private/pvt, and concatenates what is left.
func NormalizeCompanyName(name string) string {
	fields := strings.FieldsFunc(strings.ToLower(name), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	var b strings.Builder
	for _, f := range fields {
		if _, ok := legalSuffixes[f]; ok {
			continue
		}
		b.WriteString(f)
	}
	return b.String()
}

// namesMatch compares two normalized names: equal, or one contains the other.
// Empty names never match.
func namesMatch(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return a == b || strings.Contains(a, b) || strings.Contains(b, a)
}

// generatedSymbol derives a display symbol for offerings first seen on an
// exchange that keys by numeric code. It is cut to 20 characters.
func generatedSymbol(normalized string) string {
	out := []rune(strings.ToUpper(normalized))
	if len(out) > 20 {
		out = out[:20]
	}
	return string(out)
}
