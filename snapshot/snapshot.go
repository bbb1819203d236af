// Package snapshot defines the whole-document catalog artifacts and
// their on-disk representation.
//
// Each document (base snapshot, price snapshot, cursor state) is read
// fully into memory, mutated, and rewritten atomically as a whole file.
// There is no partial patching; regeneration replaces a document
// wholesale. Concurrent writers are not supported; every pipeline
// stage assumes single-writer, run-to-completion semantics.
package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ErrMissing is returned when a required snapshot file does not exist.
var ErrMissing = errors.New("snapshot: file missing")

// Status classifies part availability.
type Status string

const (
	StatusInStock    Status = "in_stock"
	StatusOutOfStock Status = "out_of_stock"
	StatusUnknown    Status = "unknown"
)

// Availability is a tagged status plus the human label it was derived
// from. A failed or absent signal always yields StatusUnknown; a known
// status is never silently downgraded by a failed fetch, only by an
// explicit overwrite.
type Availability struct {
	Status Status `json:"status"`
	Label  string `json:"label,omitempty"`
}

// Unknown returns the default availability.
func Unknown() Availability {
	return Availability{Status: StatusUnknown}
}

// PartRecord is one catalog entry. Identity is the normalized part
// number; later writes for the same key overwrite earlier fields.
type PartRecord struct {
	PartNumber   string       `json:"partNumber"`
	Name         string       `json:"name"`
	Price        string       `json:"price,omitempty"`
	URL          string       `json:"url"`
	Availability Availability `json:"availability"`
}

// BaseSnapshot is the full crawl output. Immutable for the duration of
// a crawl run; superseded by full replacement, never patched.
type BaseSnapshot struct {
	Prefixes    []string     `json:"prefixes"`
	Limit       int          `json:"limit"`
	Count       int          `json:"count"`
	GeneratedAt time.Time    `json:"generatedAt"`
	Items       []PartRecord `json:"items"`
}

// PriceEntry is one refreshed price/availability observation.
type PriceEntry struct {
	Price        string        `json:"price,omitempty"`
	Availability *Availability `json:"availability,omitempty"`
	UpdatedAt    time.Time     `json:"updatedAt"`
}

// PriceSnapshot maps part numbers to their latest enrichment result.
// Key count grows monotonically; entries are replaced in place.
type PriceSnapshot struct {
	UpdatedAt time.Time             `json:"updatedAt"`
	Count     int                   `json:"count"`
	Prices    map[string]PriceEntry `json:"prices"`
}

// CursorState persists the rotating refresh offset so repeated runs
// sweep the whole catalog instead of rechecking the same prefix.
// Invariant: 0 <= Cursor < item count (0 for an empty catalog).
type CursorState struct {
	Cursor    int       `json:"cursor"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// LoadBase reads a base snapshot. A missing file is an error naming
// the expected path; downstream stages cannot proceed without it.
func LoadBase(path string) (*BaseSnapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: base snapshot expected at %s", ErrMissing, path)
		}
		return nil, fmt.Errorf("read base snapshot: %w", err)
	}
	var s BaseSnapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse base snapshot %s: %w", path, err)
	}
	return &s, nil
}

// SaveBase writes a base snapshot atomically.
func SaveBase(path string, s *BaseSnapshot) error {
	s.Count = len(s.Items)
	return writeDoc(path, s)
}

// LoadPrices reads a price snapshot. A missing file yields an empty
// snapshot: the refresher grows it from nothing on first run.
func LoadPrices(path string) (*PriceSnapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &PriceSnapshot{Prices: make(map[string]PriceEntry)}, nil
		}
		return nil, fmt.Errorf("read price snapshot: %w", err)
	}
	var s PriceSnapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse price snapshot %s: %w", path, err)
	}
	if s.Prices == nil {
		s.Prices = make(map[string]PriceEntry)
	}
	return &s, nil
}

// SavePrices writes a price snapshot atomically, refreshing its
// document-level count and timestamp.
func SavePrices(path string, s *PriceSnapshot) error {
	s.Count = len(s.Prices)
	s.UpdatedAt = time.Now().UTC()
	return writeDoc(path, s)
}

// LoadCursor reads the cursor state. Missing file starts at zero.
func LoadCursor(path string) (*CursorState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &CursorState{}, nil
		}
		return nil, fmt.Errorf("read cursor state: %w", err)
	}
	var c CursorState
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse cursor state %s: %w", path, err)
	}
	if c.Cursor < 0 {
		c.Cursor = 0
	}
	return &c, nil
}

// SaveCursor writes the cursor state atomically.
func SaveCursor(path string, c *CursorState) error {
	c.UpdatedAt = time.Now().UTC()
	return writeDoc(path, c)
}

// writeDoc marshals v and replaces path atomically (temp file in the
// same directory, then rename).
func writeDoc(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".snapshot-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
