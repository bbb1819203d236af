package extract

import (
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/tbielich/mb-parts/partnum"
)

// GenericPartPattern matches bare catalog ids when no prefixes are
// configured: "A" followed by 9–14 digits.
var GenericPartPattern = regexp.MustCompile(`(?i)\bA[0-9]{9,14}\b`)

// minIDDigits is the minimum digit count after the prefix for a token
// match to count as a part number. Keeps "A309" alone (a search term,
// not an id) from matching itself.
const minIDDigits = 6

var (
	prefixPatternsMu sync.Mutex
	prefixPatterns   = make(map[string]*regexp.Regexp)
)

// prefixPattern compiles (and caches) a separator-tolerant pattern for
// one normalized prefix: each prefix character may be followed by a
// space, dot, dash, or slash, then 6–14 more digits with the same
// tolerance. Matches display forms like "A 309 601 02 57".
func prefixPattern(np string) *regexp.Regexp {
	prefixPatternsMu.Lock()
	defer prefixPatternsMu.Unlock()
	if re, ok := prefixPatterns[np]; ok {
		return re
	}
	var b strings.Builder
	b.WriteString(`(?i)`)
	for _, r := range np {
		b.WriteString(regexp.QuoteMeta(string(r)))
		b.WriteString(`[ .\-/]?`)
	}
	b.WriteString(`(?:[0-9][ .\-/]?){` + strconv.Itoa(minIDDigits) + `,14}`)
	re := regexp.MustCompile(b.String())
	prefixPatterns[np] = re
	return re
}

// FindPartID returns the first prefix-anchored part-number token in s,
// normalized, or "". With no prefixes configured it falls back to the
// generic pattern.
func FindPartID(s string, prefixes []string) string {
	for _, p := range prefixes {
		np := partnum.Normalize(p)
		if np == "" {
			continue
		}
		if m := prefixPattern(np).FindString(s); m != "" {
			id := partnum.Normalize(m)
			if len(id) >= len(np)+minIDDigits && !partnum.IsExcluded(id) {
				return id
			}
		}
	}
	if len(prefixes) == 0 {
		if m := GenericPartPattern.FindString(s); m != "" {
			id := partnum.Normalize(m)
			if !partnum.IsExcluded(id) {
				return id
			}
		}
	}
	return ""
}

// normalizeCandidate normalizes an explicitly-declared id (data
// attribute, structured-data sku), dropping placeholders. No length
// requirement: declared ids are trusted as-is.
func normalizeCandidate(raw string) string {
	id := partnum.Normalize(raw)
	if id == "" || partnum.IsExcluded(id) {
		return ""
	}
	return id
}
