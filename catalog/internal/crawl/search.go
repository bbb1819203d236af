package crawl

import (
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// termVariants derives the query terms tried for one prefix. The shop's
// server-side matching is inconsistent between exact, wildcard, and
// "starts with" semantics, so all three spellings are attempted.
func termVariants(prefix string) []string {
	return []string{prefix, prefix + "*", prefix + " "}
}

// searchURL builds the page-1 search URL for a term.
func (c *Crawler) searchURL(term string) string {
	u, err := url.Parse(c.cfg.SearchURL)
	if err != nil {
		return ""
	}
	q := u.Query()
	q.Set(c.cfg.QueryParam, term)
	u.RawQuery = q.Encode()
	return u.String()
}

// looksLikeSearch reports whether target still points at the search
// surface: same host (or relative) and the search path as a prefix.
// A redirect anywhere else means the shop bounced the term.
func (c *Crawler) looksLikeSearch(target *url.URL) bool {
	base, err := url.Parse(c.cfg.SearchURL)
	if err != nil {
		return false
	}
	if target.Host != "" && !strings.EqualFold(target.Host, base.Host) {
		return false
	}
	return strings.HasPrefix(target.Path, base.Path)
}

// nextPageURL locates the following results page: an explicit
// rel="next" hint wins; otherwise the smallest same-path link whose
// page parameter is numerically greater than the current page's.
func (c *Crawler) nextPageURL(doc *html.Node, current *url.URL) string {
	if href := relNextHref(doc); href != "" {
		return resolveURL(current, href)
	}

	curPage := pageNumber(current, c.cfg.PageParam)
	best := ""
	bestPage := 0
	for _, href := range anchorHrefs(doc) {
		u, err := url.Parse(href)
		if err != nil {
			continue
		}
		u = current.ResolveReference(u)
		if u.Host != current.Host || u.Path != current.Path {
			continue
		}
		p := pageNumber(u, c.cfg.PageParam)
		if p <= curPage {
			continue
		}
		if best == "" || p < bestPage {
			best = u.String()
			bestPage = p
		}
	}
	return best
}

// pageNumber reads the pagination parameter from u, defaulting to 1.
func pageNumber(u *url.URL, param string) int {
	n, err := strconv.Atoi(u.Query().Get(param))
	if err != nil || n < 1 {
		return 1
	}
	return n
}

func resolveURL(base *url.URL, href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return base.ResolveReference(u).String()
}

// relNextHref finds an <a rel="next"> or <link rel="next"> target.
func relNextHref(doc *html.Node) string {
	var found string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if found != "" {
			return
		}
		if n.Type == html.ElementNode && (n.DataAtom == atom.A || n.DataAtom == atom.Link) {
			rel := strings.ToLower(nodeAttr(n, "rel"))
			if rel == "next" || strings.Contains(" "+rel+" ", " next ") {
				if href := nodeAttr(n, "href"); href != "" {
					found = href
					return
				}
			}
		}
		for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
			walk(ch)
		}
	}
	walk(doc)
	return found
}

func anchorHrefs(doc *html.Node) []string {
	var out []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.A {
			if href := nodeAttr(n, "href"); href != "" {
				out = append(out, href)
			}
		}
		for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
			walk(ch)
		}
	}
	walk(doc)
	return out
}

func nodeAttr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
