// Package partnum normalizes and classifies Mercedes part numbers.
//
// A normalized part number is uppercase alphanumeric with every other
// character stripped (A 309 601 02 57 → A3096010257). Normalization is
// pure and idempotent; every other package keys records by its output.
package partnum

import (
	"regexp"
	"strings"
)

// excludedPattern matches the all-zero placeholder ids that appear in
// the upstream catalog data (A followed by ten or more zero digits).
// These are data artifacts, never real parts.
var excludedPattern = regexp.MustCompile(`^A0{10,}$`)

// Normalize uppercases raw and strips every character outside [A-Z0-9].
// Empty input yields the empty string; callers must reject empty results.
func Normalize(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range strings.ToUpper(raw) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// IsAllowed reports whether id starts with any of the configured
// prefixes. Prefixes are normalized before comparison, so callers may
// pass them in display form ("a309", "A 309").
func IsAllowed(id string, prefixes []string) bool {
	for _, p := range prefixes {
		np := Normalize(p)
		if np != "" && strings.HasPrefix(id, np) {
			return true
		}
	}
	return false
}

// IsExcluded reports whether id is a reserved all-zero placeholder.
// Excluded ids are dropped unconditionally, even when a configured
// prefix matches them.
func IsExcluded(id string) bool {
	return excludedPattern.MatchString(id)
}
