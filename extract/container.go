package extract

import (
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/tbielich/mb-parts/snapshot"
)

// ContainerClassHint matches class names typical of product listings.
// Exposed as data: the shop's markup conventions shift and the hint
// table is tuned against fixtures, not logic.
var ContainerClassHint = regexp.MustCompile(`(?i)(product|artikel|article|item|card|result|tile|listing)`)

// IDAttrs are the data attributes probed for an explicit part id, in
// priority order.
var IDAttrs = []string{
	"data-part-number",
	"data-partnumber",
	"data-artnum",
	"data-sku",
	"data-product-id",
}

// AnchorDenylist filters navigation and service links out of the
// generic anchor fallback. Lower-cased substring match on link text
// and target.
var AnchorDenylist = []string{
	"impressum", "kontakt", "datenschutz", "agb", "widerruf",
	"versand", "hilfe", "newsletter", "login", "account",
	"warenkorb", "cart", "checkout", "merkliste",
}

// maxNameLen bounds the display name taken from container text.
const maxNameLen = 160

// fromContainers is the container heuristic: scan for listing-like
// containers, derive an id from data attributes, block text, or the
// link target (in that priority order), and read price/availability
// from the block text.
func fromContainers(doc *html.Node, base *url.URL, prefixes []string) []snapshot.PartRecord {
	containers := findContainers(doc)
	if len(containers) == 0 {
		containers = fallbackAnchors(doc)
	}

	var out []snapshot.PartRecord
	for _, n := range containers {
		context := collectText(n)
		if context == "" {
			continue
		}
		href := firstHref(n)

		id := dataAttrID(n)
		if id == "" {
			id = FindPartID(context, prefixes)
		}
		if id == "" && href != "" {
			id = FindPartID(linkPath(href), prefixes)
		}
		if id == "" {
			continue
		}

		name := firstTextBlock(n)
		if len(name) > maxNameLen {
			name = strings.TrimSpace(name[:maxNameLen])
		}

		out = append(out, snapshot.PartRecord{
			PartNumber:   id,
			Name:         name,
			Price:        FindPrice(context),
			URL:          resolveHref(base, href),
			Availability: Classify(context),
		})
	}
	return out
}

// findContainers returns listing-like elements: <article>, or
// list/block elements carrying a class hint or an id data attribute.
// Matched subtrees are not descended into, so nested hits collapse to
// the outermost container.
func findContainers(doc *html.Node) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && isContainer(n) {
			out = append(out, n)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return out
}

func isContainer(n *html.Node) bool {
	switch n.DataAtom {
	case atom.Article:
		return true
	case atom.Li, atom.Div, atom.Section:
		if ContainerClassHint.MatchString(getAttr(n, "class")) {
			return true
		}
		for _, attr := range IDAttrs {
			if getAttr(n, attr) != "" {
				return true
			}
		}
	}
	return false
}

// fallbackAnchors returns plain product-ish anchors when the page has
// no recognizable containers. The denylist is heuristic; it may still
// admit navigation links the shop does not name conventionally.
func fallbackAnchors(doc *html.Node) []*html.Node {
	var out []*html.Node
	for _, a := range findAllByTag(doc, atom.A) {
		href := getAttr(a, "href")
		if href == "" || strings.HasPrefix(href, "#") ||
			strings.HasPrefix(href, "javascript:") ||
			strings.HasPrefix(href, "mailto:") ||
			strings.HasPrefix(href, "tel:") {
			continue
		}
		probe := strings.ToLower(collectText(a) + " " + href)
		denied := false
		for _, d := range AnchorDenylist {
			if strings.Contains(probe, d) {
				denied = true
				break
			}
		}
		if denied {
			continue
		}
		out = append(out, a)
	}
	return out
}

// dataAttrID probes the container and its descendants for an explicit
// id data attribute, normalized.
func dataAttrID(n *html.Node) string {
	var found string
	var walk func(*html.Node) bool
	walk = func(n *html.Node) bool {
		if n.Type == html.ElementNode {
			for _, attr := range IDAttrs {
				if v := getAttr(n, attr); v != "" {
					found = v
					return true
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if walk(c) {
				return true
			}
		}
		return false
	}
	walk(n)
	return normalizeCandidate(found)
}

// linkPath strips query and fragment from a link target so token
// matching sees only the path.
func linkPath(href string) string {
	if u, err := url.Parse(href); err == nil {
		return u.Path
	}
	return href
}
