// Package refresh implements incremental price/availability refresh.
//
// Two selection modes feed the same fetch path: direct mode takes an
// explicit part-number list (capped, deduplicated), rotating-batch
// mode sweeps the base snapshot circularly from a persisted cursor,
// picking only entries whose price data is missing or stale. Fetched
// results replace prior price entries unconditionally.
package refresh

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tbielich/mb-parts/catalog/internal/fetch"
	"github.com/tbielich/mb-parts/catalog/internal/pool"
	"github.com/tbielich/mb-parts/extract"
	"github.com/tbielich/mb-parts/partnum"
	"github.com/tbielich/mb-parts/snapshot"
)

// directCap bounds direct-mode request lists. Oversized lists are
// truncated, not rejected.
const directCap = 100

// Config configures a Refresher.
type Config struct {
	// BasePath is the base snapshot document.
	BasePath string
	// PricePath is the price snapshot document, created when absent.
	PricePath string
	// CursorPath is the rotating-batch cursor document.
	CursorPath string
	// Staleness is the entry age past which rotating-batch mode
	// re-fetches. Default: 7 days.
	Staleness time.Duration
	// Workers bounds concurrent detail fetches. Default: pool.DefaultWorkers.
	Workers int
}

func (c *Config) defaults() {
	if c.Staleness <= 0 {
		c.Staleness = 7 * 24 * time.Hour
	}
	if c.Workers <= 0 {
		c.Workers = pool.DefaultWorkers
	}
}

// Refresher refreshes price snapshot entries from detail pages.
type Refresher struct {
	cfg     Config
	fetcher *fetch.Fetcher
	logger  *slog.Logger

	now func() time.Time
}

// New creates a Refresher. A nil logger falls back to slog.Default.
func New(cfg Config, f *fetch.Fetcher, logger *slog.Logger) *Refresher {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Refresher{
		cfg:     cfg,
		fetcher: f,
		logger:  logger.With("component", "refresher"),
		now:     time.Now,
	}
}

// RefreshItems refreshes an explicit part-number list (direct mode):
// ids are normalized, deduplicated, capped, and resolved against the
// base snapshot; resolved items are fetched unconditionally. Returns
// the number of price entries written.
func (r *Refresher) RefreshItems(ctx context.Context, ids []string) (int, error) {
	base, err := snapshot.LoadBase(r.cfg.BasePath)
	if err != nil {
		return 0, err
	}
	byID := indexItems(base.Items)

	seen := make(map[string]bool)
	var targets []snapshot.PartRecord
	for _, raw := range ids {
		id := partnum.Normalize(raw)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		if rec, ok := byID[id]; ok {
			targets = append(targets, rec)
		}
		if len(seen) >= directCap {
			break
		}
	}
	r.logger.Info("direct refresh", "requested", len(ids), "resolved", len(targets))
	return r.fetchAndMerge(ctx, base.Prefixes, targets)
}

// RefreshBatch refreshes up to batchSize stale items (rotating-batch
// mode), advancing the persisted cursor past everything scanned so
// repeated calls sweep the whole catalog. Returns the number of price
// entries written.
func (r *Refresher) RefreshBatch(ctx context.Context, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = 20
	}
	base, err := snapshot.LoadBase(r.cfg.BasePath)
	if err != nil {
		return 0, err
	}
	if len(base.Items) == 0 {
		return 0, nil
	}
	prices, err := snapshot.LoadPrices(r.cfg.PricePath)
	if err != nil {
		return 0, err
	}
	cursor, err := snapshot.LoadCursor(r.cfg.CursorPath)
	if err != nil {
		return 0, err
	}

	// The scan stops at the list end; the wrap to the front happens on
	// the next invocation. Scanning circularly within one call would
	// revisit just-refreshed items when the tail underfills the batch,
	// and the cursor would never complete a clean rotation.
	start := cursor.Cursor % len(base.Items)
	var targets []snapshot.PartRecord
	scanned := 0
	for i := start; i < len(base.Items); i++ {
		rec := base.Items[i]
		scanned = i - start + 1
		if e, ok := prices.Prices[rec.PartNumber]; ok && r.isFresh(e) {
			continue
		}
		targets = append(targets, rec)
		if len(targets) >= batchSize {
			break
		}
	}

	r.logger.Info("batch refresh", "scanned", scanned, "selected", len(targets), "cursor", start)
	n, err := r.fetchAndMerge(ctx, base.Prefixes, targets)
	if err != nil {
		return n, err
	}

	cursor.Cursor = (start + scanned) % len(base.Items)
	if err := snapshot.SaveCursor(r.cfg.CursorPath, cursor); err != nil {
		return n, fmt.Errorf("save cursor: %w", err)
	}
	return n, nil
}

func (r *Refresher) isFresh(e snapshot.PriceEntry) bool {
	return r.now().Sub(e.UpdatedAt) < r.cfg.Staleness
}

// fetchAndMerge fetches every target's detail page through a bounded
// worker pool and writes the results into the price snapshot. A failed
// item degrades to {no price, unknown}; the batch never aborts.
func (r *Refresher) fetchAndMerge(ctx context.Context, prefixes []string, targets []snapshot.PartRecord) (int, error) {
	if len(targets) == 0 {
		return 0, nil
	}

	memo := fetch.NewMemo(r.fetcher)
	entries := make([]snapshot.PriceEntry, len(targets))
	pool.Run(len(targets), r.cfg.Workers, func(i int) {
		entries[i] = r.fetchOne(ctx, memo, prefixes, targets[i])
	})

	prices, err := snapshot.LoadPrices(r.cfg.PricePath)
	if err != nil {
		return 0, err
	}
	now := r.now().UTC()
	for i, t := range targets {
		e := entries[i]
		e.UpdatedAt = now
		prices.Prices[t.PartNumber] = e
	}
	if err := snapshot.SavePrices(r.cfg.PricePath, prices); err != nil {
		return 0, fmt.Errorf("save prices: %w", err)
	}
	return len(targets), nil
}

// fetchOne refreshes a single record. Any failure degrades to an
// unknown-availability entry rather than an error.
func (r *Refresher) fetchOne(ctx context.Context, memo *fetch.Memo, prefixes []string, rec snapshot.PartRecord) snapshot.PriceEntry {
	unknown := func() snapshot.PriceEntry {
		a := snapshot.Unknown()
		return snapshot.PriceEntry{Availability: &a}
	}
	if rec.URL == "" {
		return unknown()
	}
	res, err := memo.Get(ctx, rec.URL)
	if err != nil {
		r.logger.Debug("detail fetch failed", "part", rec.PartNumber, "error", err)
		return unknown()
	}
	for _, cand := range extract.Extract(res.Body, extract.Options{
		BaseURL:  res.FinalURL,
		Prefixes: prefixes,
	}) {
		if cand.PartNumber != rec.PartNumber {
			continue
		}
		a := cand.Availability
		return snapshot.PriceEntry{Price: cand.Price, Availability: &a}
	}
	return unknown()
}

func indexItems(items []snapshot.PartRecord) map[string]snapshot.PartRecord {
	m := make(map[string]snapshot.PartRecord, len(items))
	for _, it := range items {
		if _, ok := m[it.PartNumber]; !ok {
			m[it.PartNumber] = it
		}
	}
	return m
}
