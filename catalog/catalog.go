// Package catalog orchestrates the acquisition pipeline: discovery
// crawl, enrichment refresh, migration to the canonical stream, and
// chunk/index building.
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/tbielich/mb-parts/catalog/internal/crawl"
	"github.com/tbielich/mb-parts/catalog/internal/fetch"
	"github.com/tbielich/mb-parts/catalog/internal/refresh"
	"github.com/tbielich/mb-parts/catalog/internal/store"
	"github.com/tbielich/mb-parts/chunkindex"
	"github.com/tbielich/mb-parts/migrate"
	"github.com/tbielich/mb-parts/snapshot"
)

// Service is the pipeline orchestrator. One Service serves many runs;
// each run is single-writer over the snapshot documents.
type Service struct {
	cfg     *Config
	fetcher *fetch.Fetcher
	logger  *slog.Logger
	runs    *store.Store // optional run history

	activeRun atomic.Int64 // current run id for fetch logging, 0 when idle
}

// ServiceOption customises a Service.
type ServiceOption func(*Service)

// WithRunStore records run history and per-run fetch logs.
func WithRunStore(st *store.Store) ServiceOption {
	return func(s *Service) { s.runs = st }
}

// New creates a Service. A nil logger falls back to slog.Default.
func New(cfg *Config, logger *slog.Logger, opts ...ServiceOption) (*Service, error) {
	if cfg == nil {
		return nil, fmt.Errorf("catalog: nil config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	svc := &Service{cfg: cfg, logger: logger.With("component", "catalog")}
	for _, opt := range opts {
		opt(svc)
	}

	svc.fetcher = fetch.New(fetch.Config{
		Timeout:   cfg.Fetch.Timeout(),
		MaxBytes:  cfg.Fetch.MaxBytes,
		UserAgent: cfg.Fetch.UserAgent,
		OnFetch:   svc.logFetch,
	})
	return svc, nil
}

// OpenRunStore opens the run-history database at the configured path
// and attaches it. Convenience for callers that do not manage the
// store themselves.
func (s *Service) OpenRunStore() error {
	st, err := store.Open(s.cfg.RunsDBPath())
	if err != nil {
		return err
	}
	s.runs = st
	return nil
}

// Close releases the run store, if attached.
func (s *Service) Close() error {
	if s.runs != nil {
		return s.runs.Close()
	}
	return nil
}

// CrawlParams are per-invocation overrides; zero values fall back to
// the configured defaults.
type CrawlParams struct {
	Prefixes []string
	Limit    int
}

// Crawl runs discovery and replaces the base snapshot. Returns the
// snapshot that was written.
func (s *Service) Crawl(ctx context.Context, p CrawlParams) (*snapshot.BaseSnapshot, error) {
	prefixes := p.Prefixes
	if len(prefixes) == 0 {
		prefixes = s.cfg.Crawl.Prefixes
	}
	if len(prefixes) == 0 {
		return nil, ErrNoPrefixes
	}
	limit := p.Limit
	if limit <= 0 {
		limit = s.cfg.Crawl.Limit
	}
	done := s.beginRun(ctx, "crawl", prefixes)

	c := crawl.New(crawl.Config{
		BaseURL:       s.cfg.Site.BaseURL,
		SearchURL:     s.cfg.Site.SearchURL,
		QueryParam:    s.cfg.Site.QueryParam,
		PageParam:     s.cfg.Site.PageParam,
		Prefixes:      prefixes,
		Limit:         limit,
		MaxPages:      s.cfg.Crawl.MaxPages,
		MaxSitemaps:   s.cfg.Crawl.MaxSitemaps,
		DetailWorkers: s.cfg.Refresh.Workers,
		EnrichDetails: s.cfg.Crawl.EnrichDetails,
	}, s.fetcher, s.logger)

	snap, err := c.Run(ctx)
	if err != nil {
		done(0, err)
		return nil, err
	}
	if err := snapshot.SaveBase(s.cfg.BasePath(), snap); err != nil {
		done(0, err)
		return nil, fmt.Errorf("save base snapshot: %w", err)
	}
	s.logger.Info("crawl complete", "records", snap.Count)
	done(snap.Count, nil)
	return snap, nil
}

// RefreshBatch runs one rotating-batch refresh sweep. Returns the
// number of price entries written.
func (s *Service) RefreshBatch(ctx context.Context, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = s.cfg.Refresh.BatchSize
	}
	done := s.beginRun(ctx, "refresh", s.cfg.Crawl.Prefixes)
	n, err := s.newRefresher().RefreshBatch(ctx, batchSize)
	done(n, err)
	return n, err
}

// RefreshItems refreshes an explicit part-number list (just-in-time
// refresh for items about to be displayed).
func (s *Service) RefreshItems(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, ErrNoItems
	}
	done := s.beginRun(ctx, "refresh-items", nil)
	n, err := s.newRefresher().RefreshItems(ctx, ids)
	done(n, err)
	return n, err
}

// Migrate folds the base and price snapshots into the canonical
// record stream.
func (s *Service) Migrate(ctx context.Context) (int, error) {
	done := s.beginRun(ctx, "migrate", nil)
	n, err := migrate.Run(s.cfg.BasePath(), s.cfg.PricePath(), s.cfg.StreamPath())
	if err == nil {
		s.logger.Info("migration complete", "records", n)
	}
	done(n, err)
	return n, err
}

// BuildChunks chunks the canonical stream and writes manifest and
// indexes. Runs Migrate first so the stream is current.
func (s *Service) BuildChunks(ctx context.Context) (*chunkindex.Manifest, error) {
	if _, err := s.Migrate(ctx); err != nil {
		return nil, err
	}
	done := s.beginRun(ctx, "chunk", nil)
	m, _, err := chunkindex.BuildFile(s.cfg.StreamPath(), chunkindex.Options{
		VehicleKey: s.cfg.Data.VehicleKey,
		ChunkSize:  s.cfg.Data.ChunkSize,
		OutDir:     s.cfg.ChunksDir(),
	})
	if err != nil {
		done(0, err)
		return nil, err
	}
	s.logger.Info("chunk build complete", "chunks", m.ChunkCount, "records", m.TotalParts)
	done(m.TotalParts, nil)
	return m, nil
}

// RecentRuns lists recorded runs, newest first. Empty without a run store.
func (s *Service) RecentRuns(ctx context.Context, limit int) ([]store.Run, error) {
	if s.runs == nil {
		return nil, nil
	}
	return s.runs.RecentRuns(ctx, limit)
}

func (s *Service) newRefresher() *refresh.Refresher {
	return refresh.New(refresh.Config{
		BasePath:   s.cfg.BasePath(),
		PricePath:  s.cfg.PricePath(),
		CursorPath: s.cfg.CursorPath(),
		Staleness:  time.Duration(s.cfg.Refresh.StalenessDays) * 24 * time.Hour,
		Workers:    s.cfg.Refresh.Workers,
	}, s.fetcher, s.logger)
}

// beginRun opens a run record when a store is attached and returns the
// closer. Without a store both are no-ops.
func (s *Service) beginRun(ctx context.Context, kind string, prefixes []string) func(count int, err error) {
	if s.runs == nil {
		return func(int, error) {}
	}
	id, err := s.runs.BeginRun(ctx, kind, prefixes)
	if err != nil {
		s.logger.Warn("run history unavailable", "error", err)
		return func(int, error) {}
	}
	s.activeRun.Store(id)
	return func(count int, runErr error) {
		s.activeRun.Store(0)
		if err := s.runs.FinishRun(ctx, id, count, runErr); err != nil {
			s.logger.Warn("run history update failed", "error", err)
		}
	}
}

// logFetch feeds the fetcher's observation hook into the run store.
func (s *Service) logFetch(url string, statusCode, bytes int) {
	if s.runs == nil {
		return
	}
	id := s.activeRun.Load()
	if id == 0 {
		return
	}
	if err := s.runs.LogFetch(context.Background(), id, url, statusCode, bytes); err != nil {
		s.logger.Debug("fetch log write failed", "error", err)
	}
}
