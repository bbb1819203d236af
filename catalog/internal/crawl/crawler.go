// Package crawl implements catalog discovery against the shop.
//
// Two acquisition paths run in sequence: paginated search traversal
// per prefix (Path A), then a sitemap fallback (Path B) when search
// produced at most one record. Part numbers are deduplicated across
// the whole run and every page or sitemap URL is visited at most once.
package crawl

import (
	"bytes"
	"context"
	"log/slog"
	"net/url"
	"time"

	"golang.org/x/net/html"

	"github.com/tbielich/mb-parts/catalog/internal/fetch"
	"github.com/tbielich/mb-parts/catalog/internal/pool"
	"github.com/tbielich/mb-parts/extract"
	"github.com/tbielich/mb-parts/snapshot"
)

// sitemapFallbackThreshold: Path B runs only when Path A yielded at
// most this many records.
const sitemapFallbackThreshold = 1

// Config configures one crawl run.
type Config struct {
	// BaseURL is the shop root, used for robots.txt and sitemap seeds.
	BaseURL string
	// SearchURL is the search endpoint; the query term is set on
	// QueryParam.
	SearchURL string
	// QueryParam carries the search term. Default: "q".
	QueryParam string
	// PageParam carries the page number in pagination links. Default: "page".
	PageParam string
	// Prefixes are processed in order; every output part number starts
	// with one of them.
	Prefixes []string
	// Limit caps the total record count. Default: 500.
	Limit int
	// MaxPages bounds search pagination per term variant. Default: 20.
	MaxPages int
	// MaxSitemaps bounds sitemap fetches in Path B. Default: 50.
	MaxSitemaps int
	// DetailWorkers bounds concurrent detail-page fetches during
	// enrichment. Default: pool.DefaultWorkers.
	DetailWorkers int
	// EnrichDetails fetches detail pages for records that came back
	// without a price, refining price and availability.
	EnrichDetails bool
}

func (c *Config) defaults() {
	if c.QueryParam == "" {
		c.QueryParam = "q"
	}
	if c.PageParam == "" {
		c.PageParam = "page"
	}
	if c.Limit <= 0 {
		c.Limit = 500
	}
	if c.MaxPages <= 0 {
		c.MaxPages = 20
	}
	if c.MaxSitemaps <= 0 {
		c.MaxSitemaps = 50
	}
	if c.DetailWorkers <= 0 {
		c.DetailWorkers = pool.DefaultWorkers
	}
}

// Crawler drives one discovery run.
type Crawler struct {
	cfg     Config
	fetcher *fetch.Fetcher
	memo    *fetch.Memo
	logger  *slog.Logger

	visited map[string]bool // page and sitemap URLs, run-wide
}

// New creates a Crawler. A nil logger falls back to slog.Default.
func New(cfg Config, f *fetch.Fetcher, logger *slog.Logger) *Crawler {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Crawler{
		cfg:     cfg,
		fetcher: f,
		memo:    fetch.NewMemo(f),
		logger:  logger.With("component", "crawler"),
		visited: make(map[string]bool),
	}
}

// Run executes both acquisition paths and returns a fresh base
// snapshot. Per-page failures degrade locally; only a completely
// unusable configuration is an error.
func (c *Crawler) Run(ctx context.Context) (*snapshot.BaseSnapshot, error) {
	if _, err := url.Parse(c.cfg.SearchURL); err != nil || c.cfg.SearchURL == "" {
		return nil, ErrNoSearchURL
	}

	seen := make(map[string]bool)
	var items []snapshot.PartRecord

	for _, prefix := range c.cfg.Prefixes {
		for _, term := range termVariants(prefix) {
			if len(items) >= c.cfg.Limit {
				break
			}
			got := c.crawlTerm(ctx, prefix, term, seen, c.cfg.Limit-len(items))
			items = append(items, got...)
		}
	}
	c.logger.Info("search traversal done", "records", len(items))

	if len(items) <= sitemapFallbackThreshold && len(items) < c.cfg.Limit {
		got := c.crawlSitemaps(ctx, seen, c.cfg.Limit-len(items))
		c.logger.Info("sitemap fallback done", "records", len(got))
		items = append(items, got...)
	}

	if c.cfg.EnrichDetails {
		c.enrichDetails(ctx, items)
	}

	return &snapshot.BaseSnapshot{
		Prefixes:    c.cfg.Prefixes,
		Limit:       c.cfg.Limit,
		Count:       len(items),
		GeneratedAt: time.Now().UTC(),
		Items:       items,
	}, nil
}

// crawlTerm runs the bounded pagination loop for one term variant.
// Pages are fetched without automatic redirects; a redirect off the
// search surface abandons the variant.
func (c *Crawler) crawlTerm(ctx context.Context, prefix, term string, seen map[string]bool, budget int) []snapshot.PartRecord {
	var out []snapshot.PartRecord
	pageURL := c.searchURL(term)

	for page := 0; page < c.cfg.MaxPages && pageURL != ""; page++ {
		if c.visited[pageURL] {
			// Cycle guard: pagination pointed back at a known page.
			break
		}
		c.visited[pageURL] = true

		res, err := c.fetcher.GetNoRedirect(ctx, pageURL)
		if err != nil {
			c.logger.Debug("search page fetch failed", "url", pageURL, "error", err)
			break
		}
		if res.Redirected() {
			cur, _ := url.Parse(pageURL)
			target, err := url.Parse(res.Location)
			if err != nil || cur == nil {
				break
			}
			target = cur.ResolveReference(target)
			if !c.looksLikeSearch(target) {
				c.logger.Debug("redirect off search surface", "term", term, "target", target.String())
				break
			}
			pageURL = target.String()
			page--
			continue
		}

		records := extract.Extract(res.Body, extract.Options{
			BaseURL:  res.FinalURL,
			Prefixes: []string{prefix},
		})
		for _, r := range records {
			if seen[r.PartNumber] {
				continue
			}
			seen[r.PartNumber] = true
			out = append(out, r)
			if len(out) >= budget {
				return out
			}
		}

		doc, err := html.Parse(bytes.NewReader(res.Body))
		if err != nil {
			break
		}
		cur, err := url.Parse(pageURL)
		if err != nil {
			break
		}
		pageURL = c.nextPageURL(doc, cur)
	}
	return out
}

// enrichDetails fetches detail pages for records missing a price,
// chunk by chunk. A failed or unparseable detail page leaves the
// record as crawled.
func (c *Crawler) enrichDetails(ctx context.Context, items []snapshot.PartRecord) {
	var targets []int
	for i, r := range items {
		if r.Price == "" && r.URL != "" {
			targets = append(targets, i)
		}
	}
	if len(targets) == 0 {
		return
	}
	c.logger.Info("detail enrichment", "items", len(targets))

	pool.Run(len(targets), c.cfg.DetailWorkers, func(ti int) {
		i := targets[ti]
		res, err := c.memo.Get(ctx, items[i].URL)
		if err != nil {
			c.logger.Debug("detail fetch failed", "url", items[i].URL, "error", err)
			return
		}
		for _, r := range extract.Extract(res.Body, extract.Options{
			BaseURL:  res.FinalURL,
			Prefixes: c.cfg.Prefixes,
		}) {
			if r.PartNumber != items[i].PartNumber {
				continue
			}
			if r.Price != "" {
				items[i].Price = r.Price
			}
			if r.Availability.Status != snapshot.StatusUnknown {
				items[i].Availability = r.Availability
			}
			if items[i].Name == "" && r.Name != "" {
				items[i].Name = r.Name
			}
			break
		}
	})
}
