package catalog

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tbielich/mb-parts/catalog/internal/store"
	"github.com/tbielich/mb-parts/chunkindex"
	"github.com/tbielich/mb-parts/snapshot"
)

// newTestShop serves a minimal two-part shop: one search page and one
// detail page per part.
func newTestShop(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/suche", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><ul>
<li class="product-item"><a href="/teile/a3091234567">Ölfilter Einsatz</a><span>A3091234567</span><span>24,90 €</span><span>sofort lieferbar</span></li>
<li class="product-item"><a href="/teile/a3097654321">Bremsscheibe</a><span>A3097654321</span><span>89,00 €</span><span>auf Lager</span></li>
</ul></body></html>`)
	})
	mux.HandleFunc("/teile/", func(w http.ResponseWriter, r *http.Request) {
		id := strings.ToUpper(strings.TrimPrefix(r.URL.Path, "/teile/"))
		fmt.Fprintf(w, `<html><body>
<div class="product-detail" data-part-number="%s">
  <h1>Detail %s</h1><span>19,90 €</span><span>nicht lieferbar</span>
</div></body></html>`, id, id)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestService(t *testing.T, srv *httptest.Server) (*Service, *Config) {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Site.BaseURL = srv.URL
	cfg.Site.SearchURL = srv.URL + "/suche"
	cfg.Crawl.Prefixes = []string{"A309"}
	cfg.Data.Dir = t.TempDir()
	cfg.Data.ChunkSize = 1

	svc, err := New(cfg, nil, WithRunStore(store.OpenMemory(t)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return svc, cfg
}

func TestService_Pipeline(t *testing.T) {
	// WHAT: full pass over the pipeline: crawl, direct refresh,
	// chunk build, run history.
	srv := newTestShop(t)
	svc, cfg := newTestService(t, srv)
	ctx := context.Background()

	snap, err := svc.Crawl(ctx, CrawlParams{})
	if err != nil {
		t.Fatalf("Crawl: %v", err)
	}
	if snap.Count != 2 {
		t.Fatalf("crawl records: got %d, want 2", snap.Count)
	}
	if _, err := os.Stat(cfg.BasePath()); err != nil {
		t.Fatalf("base snapshot not written: %v", err)
	}

	n, err := svc.RefreshItems(ctx, []string{"a309-123-45-67"})
	if err != nil {
		t.Fatalf("RefreshItems: %v", err)
	}
	if n != 1 {
		t.Fatalf("refreshed: got %d, want 1", n)
	}
	prices, err := snapshot.LoadPrices(cfg.PricePath())
	if err != nil {
		t.Fatalf("load prices: %v", err)
	}
	e := prices.Prices["A3091234567"]
	if e.Price != "19,90 €" {
		t.Errorf("refreshed price: %q", e.Price)
	}
	if e.Availability == nil || e.Availability.Status != snapshot.StatusOutOfStock {
		t.Errorf("refreshed availability: %+v", e.Availability)
	}

	m, err := svc.BuildChunks(ctx)
	if err != nil {
		t.Fatalf("BuildChunks: %v", err)
	}
	if m.ChunkCount != 2 || m.TotalParts != 2 {
		t.Errorf("manifest: %+v", m)
	}
	ix, err := chunkindex.LoadIndex(cfg.ChunksDir())
	if err != nil {
		t.Fatalf("load index: %v", err)
	}
	if got := ix.PartChunks("A3091234567"); len(got) == 0 {
		t.Error("part prefix missing from index")
	}

	runs, err := svc.RecentRuns(ctx, 10)
	if err != nil {
		t.Fatalf("RecentRuns: %v", err)
	}
	// crawl, refresh-items, migrate (via BuildChunks), chunk.
	if len(runs) != 4 {
		t.Fatalf("run history: got %d entries, want 4", len(runs))
	}
	for _, r := range runs {
		if r.Status != "ok" {
			t.Errorf("run %s status %s (%s)", r.Kind, r.Status, r.Error)
		}
	}
	if runs[len(runs)-1].Kind != "crawl" {
		t.Errorf("oldest run should be crawl: %+v", runs)
	}
}

func TestService_RefreshBatchSweep(t *testing.T) {
	srv := newTestShop(t)
	svc, cfg := newTestService(t, srv)
	ctx := context.Background()

	if _, err := svc.Crawl(ctx, CrawlParams{}); err != nil {
		t.Fatalf("Crawl: %v", err)
	}
	n, err := svc.RefreshBatch(ctx, 1)
	if err != nil {
		t.Fatalf("RefreshBatch: %v", err)
	}
	if n != 1 {
		t.Fatalf("first batch: got %d, want 1", n)
	}
	cur, err := snapshot.LoadCursor(cfg.CursorPath())
	if err != nil {
		t.Fatalf("load cursor: %v", err)
	}
	if cur.Cursor != 1 {
		t.Errorf("cursor: got %d, want 1", cur.Cursor)
	}
}

func TestService_RefreshItemsEmpty(t *testing.T) {
	srv := newTestShop(t)
	svc, _ := newTestService(t, srv)
	if _, err := svc.RefreshItems(context.Background(), nil); err != ErrNoItems {
		t.Errorf("expected ErrNoItems, got %v", err)
	}
}

func TestService_MigrateWithoutBaseFails(t *testing.T) {
	srv := newTestShop(t)
	svc, _ := newTestService(t, srv)
	if _, err := svc.Migrate(context.Background()); err == nil {
		t.Fatal("expected error without base snapshot")
	}
}

func TestService_StreamIsChunkable(t *testing.T) {
	srv := newTestShop(t)
	svc, cfg := newTestService(t, srv)
	ctx := context.Background()

	if _, err := svc.Crawl(ctx, CrawlParams{}); err != nil {
		t.Fatalf("Crawl: %v", err)
	}
	if _, err := svc.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	data, err := os.ReadFile(cfg.StreamPath())
	if err != nil {
		t.Fatalf("read stream: %v", err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("stream lines: got %d, want 2", len(lines))
	}
	for _, l := range lines {
		if !strings.Contains(l, `"hierarchy"`) || !strings.Contains(l, `"enrichment"`) {
			t.Errorf("canonical blocks missing: %s", l)
		}
	}
	if _, err := os.Stat(filepath.Join(cfg.ChunksDir(), "manifest.json")); err == nil {
		t.Error("chunks should not exist before BuildChunks")
	}
}
