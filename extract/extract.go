// Package extract pulls structured part records out of heterogeneous
// shop page markup.
//
// Three strategies run in a fixed fallback order, accumulating results:
//
//  1. Container heuristic: product-listing containers with class or
//     data-attribute hints, or a generic anchor fallback. Cheap and
//     accurate when the page has semantic markup.
//  2. Structured data: embedded JSON-LD product metadata. Authoritative
//     when present.
//  3. Embedded state: inline script JSON scanning. Last resort for
//     client-rendered pages, used only when the first two strategies
//     together yield fewer than three results.
//
// Results are candidates for one page; cross-page deduplication is the
// crawler's job.
package extract

import (
	"bytes"
	"net/url"

	"golang.org/x/net/html"

	"github.com/tbielich/mb-parts/partnum"
	"github.com/tbielich/mb-parts/snapshot"
)

// embeddedThreshold gates the embedded-state strategy: it runs only
// when the markup strategies produced fewer results than this.
const embeddedThreshold = 3

// Options configures one extraction pass.
type Options struct {
	// BaseURL is the resolved URL of the page; relative links are
	// resolved against it.
	BaseURL string
	// Prefixes restricts candidates to matching part numbers. Empty
	// means no prefix filter (embedded ids are still excluded-pattern
	// checked).
	Prefixes []string
}

// Extract parses page markup and returns candidate part records.
// Malformed fragments are skipped, never fatal: an unusable page
// yields zero candidates.
func Extract(body []byte, opts Options) []snapshot.PartRecord {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil
	}
	base, _ := url.Parse(opts.BaseURL)

	var out []snapshot.PartRecord
	seen := make(map[string]bool)
	add := func(records []snapshot.PartRecord) {
		for _, r := range records {
			if r.PartNumber == "" || partnum.IsExcluded(r.PartNumber) {
				continue
			}
			if len(opts.Prefixes) > 0 && !partnum.IsAllowed(r.PartNumber, opts.Prefixes) {
				continue
			}
			if seen[r.PartNumber] {
				continue
			}
			seen[r.PartNumber] = true
			out = append(out, r)
		}
	}

	add(fromContainers(doc, base, opts.Prefixes))
	add(fromJSONLD(doc, base))
	if len(out) < embeddedThreshold {
		add(fromEmbeddedState(doc, base))
	}
	return out
}

// resolveHref resolves href against base, returning "" for unusable links.
func resolveHref(base *url.URL, href string) string {
	if href == "" {
		return ""
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if base != nil {
		u = base.ResolveReference(u)
	}
	if u.Scheme != "" && u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	return u.String()
}
