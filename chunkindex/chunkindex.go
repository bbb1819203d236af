// Package chunkindex partitions the canonical record stream into
// bounded chunk files with prefix-based inverted indexes.
//
// The chunk layer is a derived, disposable artifact: it holds no state
// the pipeline depends on for correctness, only for lookup performance,
// and is recomputed whenever the canonical stream changes. Chunk
// membership follows stream order, not part-number order.
package chunkindex

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/tbielich/mb-parts/partnum"
)

// DefaultChunkSize is the record count per chunk file.
const DefaultChunkSize = 200

// maxNamePrefixes caps how many distinct name-token prefixes one
// record registers.
const maxNamePrefixes = 8

// minTokenLen is the shortest name token that gets indexed.
const minTokenLen = 3

// ChunkMeta describes a single chunk within a manifest.
type ChunkMeta struct {
	ID              int    `json:"id"`
	File            string `json:"file"`
	Count           int    `json:"count"`
	FirstPartNumber string `json:"firstPartNumber"`
	LastPartNumber  string `json:"lastPartNumber"`
}

// Manifest describes the chunked record stream.
type Manifest struct {
	VehicleKey     string      `json:"vehicleKey"`
	GeneratedAt    time.Time   `json:"generatedAt"`
	Source         string      `json:"source"`
	ChunkSizeLines int         `json:"chunkSizeLines"`
	ChunkCount     int         `json:"chunkCount"`
	TotalParts     int         `json:"totalParts"`
	Chunks         []ChunkMeta `json:"chunks"`
}

// IndexMap holds the two prefix indexes. Each key maps to the sorted
// unique list of chunk ids containing at least one matching record.
type IndexMap struct {
	VehicleKey    string           `json:"vehicleKey"`
	GeneratedAt   time.Time        `json:"generatedAt"`
	ByPartPrefix4 map[string][]int `json:"byPartPrefix4"`
	ByNamePrefix3 map[string][]int `json:"byNamePrefix3"`
}

// PartChunks returns the chunk ids indexed under a part number's
// 4-character prefix.
func (ix *IndexMap) PartChunks(partNumber string) []int {
	return ix.ByPartPrefix4[partPrefix(partnum.Normalize(partNumber))]
}

// NameChunks returns the chunk ids indexed under a name token's
// 3-character prefix.
func (ix *IndexMap) NameChunks(token string) []int {
	prefixes := namePrefixes(token)
	if len(prefixes) == 0 {
		return nil
	}
	return ix.ByNamePrefix3[prefixes[0]]
}

// Options configures one build pass.
type Options struct {
	// VehicleKey tags the manifest and indexes. Default: "default".
	VehicleKey string
	// Source identifies the record stream in the manifest.
	Source string
	// ChunkSize is the record count per chunk. Default: DefaultChunkSize.
	ChunkSize int
	// OutDir receives chunk files, manifest.json, and index.json.
	OutDir string
}

func (o *Options) defaults() {
	if o.VehicleKey == "" {
		o.VehicleKey = "default"
	}
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}
}

// canonicalRecord is the subset of the record line the builder needs;
// the line itself is stored verbatim.
type canonicalRecord struct {
	PartNumber string `json:"partNumber"`
	Name       string `json:"name"`
}

// BuildFile chunks the newline-delimited record file at srcPath.
func BuildFile(srcPath string, opts Options) (*Manifest, *IndexMap, error) {
	src, err := os.Open(srcPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open record stream: %w", err)
	}
	defer src.Close()
	if opts.Source == "" {
		opts.Source = filepath.Base(srcPath)
	}
	return Build(src, opts)
}

// Build consumes an ordered stream of canonical records (one JSON
// object per line) and writes chunk files, manifest, and indexes into
// opts.OutDir.
//
// A malformed line is fatal: the builder trusts the migration stage to
// have produced one valid record per line, and partial chunk output is
// unsafe to serve.
func Build(r io.Reader, opts Options) (*Manifest, *IndexMap, error) {
	opts.defaults()
	if err := os.MkdirAll(opts.OutDir, 0755); err != nil {
		return nil, nil, fmt.Errorf("create output dir: %w", err)
	}

	manifest := &Manifest{
		VehicleKey:     opts.VehicleKey,
		GeneratedAt:    time.Now().UTC(),
		Source:         opts.Source,
		ChunkSizeLines: opts.ChunkSize,
		Chunks:         make([]ChunkMeta, 0),
	}
	partIndex := make(map[string]map[int]bool)
	nameIndex := make(map[string]map[int]bool)

	var (
		buf   bytes.Buffer
		open  bool
		meta  ChunkMeta
		total int
	)
	closeChunk := func() error {
		if !open {
			return nil
		}
		if err := os.WriteFile(filepath.Join(opts.OutDir, meta.File), buf.Bytes(), 0644); err != nil {
			return fmt.Errorf("write chunk %d: %w", meta.ID, err)
		}
		manifest.Chunks = append(manifest.Chunks, meta)
		buf.Reset()
		open = false
		return nil
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := sc.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		var rec canonicalRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			return nil, nil, fmt.Errorf("malformed record at line %d: %w", lineNo, err)
		}
		id := partnum.Normalize(rec.PartNumber)
		if id == "" {
			continue
		}

		if !open {
			meta = ChunkMeta{
				ID:              len(manifest.Chunks),
				File:            fmt.Sprintf("chunk_%05d.ndjson", len(manifest.Chunks)),
				FirstPartNumber: id,
			}
			open = true
		}
		buf.WriteString(line)
		buf.WriteByte('\n')
		meta.Count++
		meta.LastPartNumber = id
		total++

		register(partIndex, partPrefix(id), meta.ID)
		for _, p := range namePrefixes(rec.Name) {
			register(nameIndex, p, meta.ID)
		}

		if meta.Count >= opts.ChunkSize {
			if err := closeChunk(); err != nil {
				return nil, nil, err
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, nil, fmt.Errorf("read record stream: %w", err)
	}
	if err := closeChunk(); err != nil {
		return nil, nil, err
	}

	manifest.ChunkCount = len(manifest.Chunks)
	manifest.TotalParts = total

	index := &IndexMap{
		VehicleKey:    opts.VehicleKey,
		GeneratedAt:   manifest.GeneratedAt,
		ByPartPrefix4: sortedIndex(partIndex),
		ByNamePrefix3: sortedIndex(nameIndex),
	}

	if err := writeJSON(filepath.Join(opts.OutDir, "manifest.json"), manifest); err != nil {
		return nil, nil, err
	}
	if err := writeJSON(filepath.Join(opts.OutDir, "index.json"), index); err != nil {
		return nil, nil, err
	}
	return manifest, index, nil
}

// LoadManifest reads manifest.json from a chunk directory.
func LoadManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, "manifest.json"))
	if err != nil {
		return nil, fmt.Errorf("read manifest.json: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest.json: %w", err)
	}
	return &m, nil
}

// LoadIndex reads index.json from a chunk directory.
func LoadIndex(dir string) (*IndexMap, error) {
	data, err := os.ReadFile(filepath.Join(dir, "index.json"))
	if err != nil {
		return nil, fmt.Errorf("read index.json: %w", err)
	}
	var ix IndexMap
	if err := json.Unmarshal(data, &ix); err != nil {
		return nil, fmt.Errorf("parse index.json: %w", err)
	}
	return &ix, nil
}

// partPrefix is the part-number index key: the first 4 characters, or
// the whole id when shorter.
func partPrefix(id string) string {
	if len(id) > 4 {
		return id[:4]
	}
	return id
}

// namePrefixes returns up to maxNamePrefixes distinct 3-character
// prefixes of the lower-cased name tokens. Tokens are runs of letters
// or digits (diacritics included) of length >= minTokenLen.
func namePrefixes(name string) []string {
	seen := make(map[string]bool)
	var out []string
	var token []rune
	flush := func() {
		if len(token) >= minTokenLen && len(out) < maxNamePrefixes {
			p := string(token[:minTokenLen])
			if !seen[p] {
				seen[p] = true
				out = append(out, p)
			}
		}
		token = token[:0]
	}
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			token = append(token, r)
			continue
		}
		flush()
	}
	flush()
	return out
}

func register(index map[string]map[int]bool, key string, chunkID int) {
	if key == "" {
		return
	}
	set, ok := index[key]
	if !ok {
		set = make(map[int]bool)
		index[key] = set
	}
	set[chunkID] = true
}

func sortedIndex(index map[string]map[int]bool) map[string][]int {
	out := make(map[string][]int, len(index))
	for key, set := range index {
		ids := make([]int, 0, len(set))
		for id := range set {
			ids = append(ids, id)
		}
		sort.Ints(ids)
		out[key] = ids
	}
	return out
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}
