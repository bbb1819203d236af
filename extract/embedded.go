package extract

import (
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/tbielich/mb-parts/snapshot"
)

// Field probe tables for the embedded-state strategy, in priority
// order per field class. Data, not logic: client-side state shapes are
// empirical and these tables may over- or under-match when the site's
// bundle changes.
var (
	embeddedIDFields = []string{
		"partNumber", "partNo", "part_number", "articleNumber",
		"articleNo", "artNr", "sku", "productNumber", "mpn",
	}
	embeddedNameFields  = []string{"name", "title", "productName", "label"}
	embeddedPriceFields = []string{"price", "displayPrice", "priceFormatted", "unitPrice"}
	embeddedURLFields   = []string{"url", "link", "href", "detailUrl"}
	embeddedAvailFields = []string{"availability", "stockStatus", "deliveryStatus"}
)

// assignPattern locates `name = {` / `name = [` assignments in inline
// scripts; the blob itself is brace-matched from the opening bracket.
var assignPattern = regexp.MustCompile(`=\s*[\[{]`)

// Blob scanning bounds. Inline bundles can be huge; past these limits
// a page is not going to yield listing state.
const (
	maxBlobsPerScript = 16
	maxBlobBytes      = 1 << 20
)

// fromEmbeddedState scans inline script bodies for JSON-parseable
// state and walks it breadth-first, treating any object with a
// part-like identifier field as a candidate record.
func fromEmbeddedState(doc *html.Node, base *url.URL) []snapshot.PartRecord {
	var out []snapshot.PartRecord
	for _, script := range findAllByTag(doc, atom.Script) {
		typ := getAttr(script, "type")
		if typ != "" && !strings.Contains(strings.ToLower(typ), "javascript") {
			continue
		}
		for _, blob := range jsonBlobs(scriptText(script)) {
			var root any
			if err := json.Unmarshal([]byte(blob), &root); err != nil {
				continue
			}
			out = append(out, walkEmbedded(root, base)...)
		}
	}
	return out
}

// jsonBlobs extracts JSON candidates from a script body: the whole
// body when it parses as JSON, otherwise every brace-matched blob on
// the right-hand side of an assignment.
func jsonBlobs(s string) []string {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return nil
	}
	if (strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[")) && json.Valid([]byte(trimmed)) {
		return []string{trimmed}
	}

	var blobs []string
	offset := 0
	for len(blobs) < maxBlobsPerScript {
		loc := assignPattern.FindStringIndex(s[offset:])
		if loc == nil {
			break
		}
		start := offset + loc[1] - 1 // position of the opening bracket
		blob := bracketSlice(s, start)
		offset = start + 1
		if blob == "" || len(blob) > maxBlobBytes {
			continue
		}
		if json.Valid([]byte(blob)) {
			blobs = append(blobs, blob)
		}
	}
	return blobs
}

// bracketSlice returns the balanced {...} or [...] starting at start,
// respecting string literals and escapes. Empty when unbalanced.
func bracketSlice(s string, start int) string {
	if start >= len(s) {
		return ""
	}
	open := s[start]
	var closing byte
	switch open {
	case '{':
		closing = '}'
	case '[':
		closing = ']'
	default:
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case closing:
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

// walkEmbedded walks a decoded blob breadth-first collecting candidate
// records.
func walkEmbedded(root any, base *url.URL) []snapshot.PartRecord {
	var out []snapshot.PartRecord
	queue := []any{root}
	for len(queue) > 0 {
		v := queue[0]
		queue = queue[1:]
		switch t := v.(type) {
		case map[string]any:
			if r, ok := embeddedRecord(t, base); ok {
				out = append(out, r)
			}
			for _, child := range t {
				queue = append(queue, child)
			}
		case []any:
			queue = append(queue, t...)
		}
	}
	return out
}

// embeddedRecord resolves the most specific available fields from one
// object carrying a part-like identifier.
func embeddedRecord(m map[string]any, base *url.URL) (snapshot.PartRecord, bool) {
	id := normalizeCandidate(probeString(m, embeddedIDFields...))
	if id == "" {
		return snapshot.PartRecord{}, false
	}
	return snapshot.PartRecord{
		PartNumber:   id,
		Name:         probeString(m, embeddedNameFields...),
		Price:        embeddedPrice(m),
		URL:          resolveHref(base, probeString(m, embeddedURLFields...)),
		Availability: embeddedAvailability(m),
	}, true
}

func embeddedPrice(m map[string]any) string {
	for _, k := range embeddedPriceFields {
		switch t := m[k].(type) {
		case string:
			if s := strings.TrimSpace(t); s != "" {
				return s
			}
		case float64:
			return strings.Replace(fmt.Sprintf("%.2f", t), ".", ",", 1)
		}
	}
	return ""
}

func embeddedAvailability(m map[string]any) snapshot.Availability {
	for _, k := range embeddedAvailFields {
		if s, ok := m[k].(string); ok && strings.TrimSpace(s) != "" {
			return Classify(s)
		}
	}
	// Boolean stock flags are common in client state.
	if b, ok := m["inStock"].(bool); ok {
		if b {
			return snapshot.Availability{Status: snapshot.StatusInStock, Label: "inStock"}
		}
		return snapshot.Availability{Status: snapshot.StatusOutOfStock, Label: "inStock"}
	}
	return snapshot.Unknown()
}
