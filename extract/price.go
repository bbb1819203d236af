package extract

import (
	"regexp"
	"strings"
)

// PricePattern matches German-formatted currency amounts: digits
// grouped by dot thousands separators, two comma decimals, optional
// € or EUR suffix.
var PricePattern = regexp.MustCompile(`\d{1,3}(?:\.\d{3})*,\d{2}\s*(?:€|EUR)?`)

// FindPrice returns the first currency amount in s, trimmed, or "".
// The matched formatting is kept verbatim; no currency is invented
// when the page did not print one.
func FindPrice(s string) string {
	return strings.Join(strings.Fields(PricePattern.FindString(s)), " ")
}
