// Package migrate folds the base and price snapshots into the
// canonical newline-delimited record stream the chunk builder consumes.
//
// One JSON object per line. The enrichment block is filled from the
// price snapshot where an entry exists and left as a placeholder
// (null price, availability from the crawl, null lastCheckedAt)
// everywhere else. The hierarchy block is a placeholder for group
// assignment done outside this pipeline.
package migrate

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/tbielich/mb-parts/snapshot"
)

// Record is one canonical stream line.
type Record struct {
	PartNumber string     `json:"partNumber"`
	Name       string     `json:"name"`
	URL        string     `json:"url"`
	Hierarchy  Hierarchy  `json:"hierarchy"`
	Enrichment Enrichment `json:"enrichment"`
}

// Hierarchy carries group assignments. Always present, empty until a
// grouping stage fills it.
type Hierarchy struct {
	Groups []string `json:"groups"`
}

// Enrichment is the per-record price/availability block. Price and
// LastCheckedAt are explicit nulls until the refresher has observed
// the item.
type Enrichment struct {
	Price         *string         `json:"price"`
	Availability  snapshot.Status `json:"availability"`
	LastCheckedAt *time.Time      `json:"lastCheckedAt"`
}

// Run reads the base snapshot (required) and price snapshot (optional)
// and writes the canonical stream to outPath atomically. Returns the
// record count. Any failure aborts the whole pass; a partial stream is
// unsafe for the chunk builder.
func Run(basePath, pricePath, outPath string) (int, error) {
	base, err := snapshot.LoadBase(basePath)
	if err != nil {
		return 0, err
	}
	prices, err := snapshot.LoadPrices(pricePath)
	if err != nil {
		return 0, err
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0755); err != nil {
		return 0, fmt.Errorf("create output dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(outPath), ".migrate-*")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	fail := func(e error) (int, error) {
		tmp.Close()
		os.Remove(tmpName)
		return 0, e
	}

	w := bufio.NewWriter(tmp)
	enc := json.NewEncoder(w)
	count := 0
	for _, item := range base.Items {
		rec := fold(item, prices.Prices)
		if err := enc.Encode(rec); err != nil {
			return fail(fmt.Errorf("encode record %s: %w", item.PartNumber, err))
		}
		count++
	}
	if err := w.Flush(); err != nil {
		return fail(fmt.Errorf("flush stream: %w", err))
	}
	if err := tmp.Close(); err != nil {
		return fail(fmt.Errorf("close temp file: %w", err))
	}
	if err := os.Rename(tmpName, outPath); err != nil {
		os.Remove(tmpName)
		return 0, fmt.Errorf("replace %s: %w", outPath, err)
	}
	return count, nil
}

// fold merges one crawled record with its price entry, if any. The
// price entry always wins: it is the more recent observation, even
// when it only says unknown.
func fold(item snapshot.PartRecord, prices map[string]snapshot.PriceEntry) Record {
	rec := Record{
		PartNumber: item.PartNumber,
		Name:       item.Name,
		URL:        item.URL,
		Hierarchy:  Hierarchy{Groups: []string{}},
		Enrichment: Enrichment{Availability: item.Availability.Status},
	}
	if rec.Enrichment.Availability == "" {
		rec.Enrichment.Availability = snapshot.StatusUnknown
	}

	e, ok := prices[item.PartNumber]
	if !ok {
		// No refresh yet: the enrichment block stays a placeholder.
		// Crawl-time prices are not carried; a non-null price here
		// would read as a verified observation.
		return rec
	}
	if e.Price != "" {
		p := e.Price
		rec.Enrichment.Price = &p
	}
	if e.Availability != nil {
		rec.Enrichment.Availability = e.Availability.Status
	}
	if !e.UpdatedAt.IsZero() {
		ts := e.UpdatedAt
		rec.Enrichment.LastCheckedAt = &ts
	}
	return rec
}
