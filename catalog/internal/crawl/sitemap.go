package crawl

import (
	"bufio"
	"bytes"
	"context"
	"encoding/xml"
	"net/url"
	"path"
	"strings"

	"github.com/tbielich/mb-parts/extract"
	"github.com/tbielich/mb-parts/snapshot"
)

// sitemapDoc covers both index documents (<sitemapindex><sitemap>) and
// leaf documents (<urlset><url>). Unknown elements are ignored.
type sitemapDoc struct {
	Sitemaps []locEntry `xml:"sitemap"`
	URLs     []locEntry `xml:"url"`
}

type locEntry struct {
	Loc string `xml:"loc"`
}

// sitemapSeeds returns the traversal entry points: well-known paths
// plus any Sitemap: directives from robots.txt.
func (c *Crawler) sitemapSeeds(ctx context.Context) []string {
	base, err := url.Parse(c.cfg.BaseURL)
	if err != nil {
		return nil
	}
	seeds := []string{
		base.ResolveReference(&url.URL{Path: "/sitemap.xml"}).String(),
		base.ResolveReference(&url.URL{Path: "/sitemap_index.xml"}).String(),
	}
	robots := base.ResolveReference(&url.URL{Path: "/robots.txt"}).String()
	res, err := c.fetcher.Get(ctx, robots)
	if err != nil {
		return seeds
	}
	sc := bufio.NewScanner(bytes.NewReader(res.Body))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if len(line) < 8 || !strings.EqualFold(line[:8], "sitemap:") {
			continue
		}
		if loc := strings.TrimSpace(line[8:]); loc != "" {
			seeds = append(seeds, loc)
		}
	}
	return seeds
}

// crawlSitemaps walks the sitemap queue breadth-first, deriving part
// numbers from leaf URL paths. Stops at the visited-sitemap ceiling or
// when the result budget is gone.
func (c *Crawler) crawlSitemaps(ctx context.Context, seen map[string]bool, budget int) []snapshot.PartRecord {
	var out []snapshot.PartRecord
	queue := c.sitemapSeeds(ctx)
	fetched := 0

	for len(queue) > 0 && fetched < c.cfg.MaxSitemaps && len(out) < budget {
		u := queue[0]
		queue = queue[1:]
		if c.visited[u] {
			continue
		}
		c.visited[u] = true

		res, err := c.fetcher.Get(ctx, u)
		if err != nil {
			c.logger.Debug("sitemap fetch failed", "url", u, "error", err)
			continue
		}
		fetched++

		var doc sitemapDoc
		if err := xml.Unmarshal(res.Body, &doc); err != nil {
			c.logger.Debug("sitemap parse failed", "url", u, "error", err)
			continue
		}

		for _, sm := range doc.Sitemaps {
			if loc := strings.TrimSpace(sm.Loc); loc != "" {
				queue = append(queue, loc)
			}
		}
		for _, e := range doc.URLs {
			loc := strings.TrimSpace(e.Loc)
			if loc == "" {
				continue
			}
			// Some indexes list nested sitemaps inside a urlset.
			if isSitemapURL(loc) {
				queue = append(queue, loc)
				continue
			}
			r, ok := recordFromLoc(loc, c.cfg.Prefixes)
			if !ok || seen[r.PartNumber] {
				continue
			}
			seen[r.PartNumber] = true
			out = append(out, r)
			if len(out) >= budget {
				break
			}
		}
	}
	return out
}

func isSitemapURL(loc string) bool {
	p := strings.ToLower(loc)
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	return strings.HasSuffix(p, ".xml") || strings.HasSuffix(p, ".xml.gz")
}

// recordFromLoc derives a part record from a product URL. No markup
// was parsed, so the name is slug-cased from the path and availability
// stays unknown.
func recordFromLoc(loc string, prefixes []string) (snapshot.PartRecord, bool) {
	u, err := url.Parse(loc)
	if err != nil {
		return snapshot.PartRecord{}, false
	}
	id := extract.FindPartID(u.Path, prefixes)
	if id == "" {
		return snapshot.PartRecord{}, false
	}
	return snapshot.PartRecord{
		PartNumber:   id,
		Name:         slugName(u.Path, id),
		URL:          loc,
		Availability: snapshot.Unknown(),
	}, true
}

// slugName turns the last path segment into a display name: extension
// and part-number tokens dropped, hyphen/underscore words title-cased.
func slugName(p, id string) string {
	seg := path.Base(p)
	if i := strings.LastIndexByte(seg, '.'); i > 0 {
		seg = seg[:i]
	}
	words := strings.FieldsFunc(seg, func(r rune) bool {
		return r == '-' || r == '_'
	})
	var kept []string
	for _, w := range words {
		if extract.FindPartID(w, nil) != "" || strings.EqualFold(w, id) {
			continue
		}
		if len(w) > 0 {
			kept = append(kept, strings.ToUpper(w[:1])+w[1:])
		}
	}
	return strings.Join(kept, " ")
}
