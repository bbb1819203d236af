package chunkindex

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func recordLine(id, name string) string {
	return fmt.Sprintf(`{"partNumber":%q,"name":%q,"url":"https://shop.example.test/teile/%s","hierarchy":{"groups":[]},"enrichment":{"price":null,"availability":"unknown","lastCheckedAt":null}}`,
		id, name, strings.ToLower(id))
}

func buildStream(n int) []string {
	lines := make([]string, n)
	for i := 0; i < n; i++ {
		lines[i] = recordLine(fmt.Sprintf("A309%07d", i), fmt.Sprintf("Teil Nummer %d", i))
	}
	return lines
}

func TestBuild_ChunkCountAndConcatenation(t *testing.T) {
	// WHAT: N records with chunk size S yield ceil(N/S) chunks, and the
	// chunk files concatenated in id order reproduce the input stream.
	lines := buildStream(25)
	dir := t.TempDir()

	m, _, err := Build(strings.NewReader(strings.Join(lines, "\n")+"\n"), Options{
		ChunkSize: 10,
		OutDir:    dir,
		Source:    "test-stream",
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if m.ChunkCount != 3 {
		t.Fatalf("chunks: got %d, want ceil(25/10)=3", m.ChunkCount)
	}
	if m.TotalParts != 25 {
		t.Errorf("totalParts: got %d, want 25", m.TotalParts)
	}
	if m.Chunks[0].Count != 10 || m.Chunks[2].Count != 5 {
		t.Errorf("chunk counts: %+v", m.Chunks)
	}

	var concat []string
	for _, cm := range m.Chunks {
		data, err := os.ReadFile(filepath.Join(dir, cm.File))
		if err != nil {
			t.Fatalf("read chunk %d: %v", cm.ID, err)
		}
		concat = append(concat, strings.Split(strings.TrimRight(string(data), "\n"), "\n")...)
	}
	if len(concat) != len(lines) {
		t.Fatalf("concatenated lines: got %d, want %d", len(concat), len(lines))
	}
	for i := range lines {
		if concat[i] != lines[i] {
			t.Fatalf("line %d not verbatim:\n got %s\nwant %s", i, concat[i], lines[i])
		}
	}
}

func TestBuild_ChunkMetaBoundaries(t *testing.T) {
	lines := buildStream(7)
	dir := t.TempDir()

	m, _, err := Build(strings.NewReader(strings.Join(lines, "\n")), Options{ChunkSize: 3, OutDir: dir})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if m.Chunks[0].FirstPartNumber != "A3090000000" || m.Chunks[0].LastPartNumber != "A3090000002" {
		t.Errorf("chunk 0 boundaries: %+v", m.Chunks[0])
	}
	if m.Chunks[2].FirstPartNumber != "A3090000006" || m.Chunks[2].LastPartNumber != "A3090000006" {
		t.Errorf("chunk 2 boundaries: %+v", m.Chunks[2])
	}
	for i, cm := range m.Chunks {
		if cm.ID != i {
			t.Errorf("chunk ids not contiguous: %+v", cm)
		}
		if cm.File != fmt.Sprintf("chunk_%05d.ndjson", i) {
			t.Errorf("chunk file name: %q", cm.File)
		}
	}
}

func TestBuild_IndexInvariants(t *testing.T) {
	// Mixed prefixes so chunks and index keys interleave.
	var lines []string
	for i := 0; i < 6; i++ {
		lines = append(lines,
			recordLine(fmt.Sprintf("A309%07d", i), "Ölfilter Einsatz"),
			recordLine(fmt.Sprintf("A310%07d", i), "Bremsscheibe vorn"))
	}
	dir := t.TempDir()
	m, ix, err := Build(strings.NewReader(strings.Join(lines, "\n")), Options{ChunkSize: 4, OutDir: dir})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	// Every chunk appears under its records' part prefixes.
	for _, key := range []string{"A309", "A310"} {
		ids := ix.ByPartPrefix4[key]
		if len(ids) == 0 {
			t.Fatalf("no chunks under part prefix %s", key)
		}
		for i := 1; i < len(ids); i++ {
			if ids[i] <= ids[i-1] {
				t.Errorf("chunk ids for %s not sorted unique: %v", key, ids)
			}
		}
		if ids[len(ids)-1] >= m.ChunkCount {
			t.Errorf("chunk id out of range for %s: %v", key, ids)
		}
	}

	// Name tokens: lower-cased, diacritics kept, 3-char prefixes.
	if ids := ix.ByNamePrefix3["ölf"]; len(ids) == 0 {
		t.Error("no chunks under name prefix ölf")
	}
	if ids := ix.ByNamePrefix3["bre"]; len(ids) == 0 {
		t.Error("no chunks under name prefix bre")
	}
	// "vorn" indexes as "vor"; two-letter tokens never appear.
	if _, ok := ix.ByNamePrefix3["vo"]; ok {
		t.Error("short key leaked into name index")
	}

	if got := ix.PartChunks("a309-000-00-00"); len(got) == 0 {
		t.Error("PartChunks must normalize before lookup")
	}

	// NameChunks lower-cases the token and keys on its 3-char prefix.
	if got := ix.NameChunks("Ölfilter"); len(got) != len(ix.ByNamePrefix3["ölf"]) {
		t.Errorf("NameChunks(Ölfilter): got %v, want %v", got, ix.ByNamePrefix3["ölf"])
	}
	if got := ix.NameChunks("ab"); got != nil {
		t.Errorf("NameChunks on a short token: got %v, want nil", got)
	}
}

func TestBuild_MalformedLineIsFatal(t *testing.T) {
	stream := recordLine("A3090000001", "ok") + "\n{not json}\n"
	_, _, err := Build(strings.NewReader(stream), Options{OutDir: t.TempDir()})
	if err == nil {
		t.Fatal("expected fatal error for malformed line")
	}
	if !strings.Contains(err.Error(), "line 2") {
		t.Errorf("error should name the line: %v", err)
	}
}

func TestBuild_SkipsEmptyPartNumbers(t *testing.T) {
	stream := strings.Join([]string{
		recordLine("A3090000001", "eins"),
		recordLine("---", "junk id"),
		recordLine("A3090000002", "zwei"),
	}, "\n")
	m, _, err := Build(strings.NewReader(stream), Options{OutDir: t.TempDir()})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if m.TotalParts != 2 {
		t.Errorf("totalParts: got %d, want 2 (junk id skipped)", m.TotalParts)
	}
}

func TestBuild_NamePrefixCap(t *testing.T) {
	name := "alpha bravo charlie delta echo foxtrot golf hotel india juliett"
	stream := recordLine("A3090000001", name)
	_, ix, err := Build(strings.NewReader(stream), Options{OutDir: t.TempDir()})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(ix.ByNamePrefix3) != maxNamePrefixes {
		t.Errorf("name prefixes: got %d, want cap %d", len(ix.ByNamePrefix3), maxNamePrefixes)
	}
}

func TestLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	lines := buildStream(5)
	m, ix, err := Build(strings.NewReader(strings.Join(lines, "\n")), Options{
		VehicleKey: "w461",
		ChunkSize:  2,
		OutDir:     dir,
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	m2, err := LoadManifest(dir)
	if err != nil {
		t.Fatalf("LoadManifest: %v", err)
	}
	if m2.VehicleKey != "w461" || m2.ChunkCount != m.ChunkCount || m2.TotalParts != m.TotalParts {
		t.Errorf("manifest round trip: %+v", m2)
	}

	ix2, err := LoadIndex(dir)
	if err != nil {
		t.Fatalf("LoadIndex: %v", err)
	}
	if len(ix2.ByPartPrefix4) != len(ix.ByPartPrefix4) {
		t.Errorf("index round trip: %d keys, want %d", len(ix2.ByPartPrefix4), len(ix.ByPartPrefix4))
	}
}
