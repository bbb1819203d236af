// Package store persists crawl run history and the per-run fetch log
// in SQLite.
//
// The snapshot documents are the pipeline's source of truth; the store
// is operational metadata only: when runs happened, what they touched,
// and how they ended. Losing it never loses catalog data.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	kind         TEXT NOT NULL,
	prefixes     TEXT NOT NULL DEFAULT '',
	started_at   TEXT NOT NULL,
	finished_at  TEXT,
	record_count INTEGER NOT NULL DEFAULT 0,
	status       TEXT NOT NULL DEFAULT 'running',
	error        TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS fetch_log (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id      INTEGER NOT NULL REFERENCES runs(id),
	url         TEXT NOT NULL,
	status_code INTEGER NOT NULL,
	bytes       INTEGER NOT NULL,
	fetched_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_fetch_log_run ON fetch_log(run_id);
`

// Run is one recorded pipeline invocation.
type Run struct {
	ID          int64
	Kind        string // "crawl", "refresh", "refresh-items"
	Prefixes    []string
	StartedAt   time.Time
	FinishedAt  time.Time // zero while running
	RecordCount int
	Status      string // "running", "ok", "failed"
	Error       string
}

// Store wraps the run-history database.
type Store struct {
	DB *sql.DB
}

// Open opens (creating if needed) the run-history database at path
// with WAL journaling and the schema applied.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("store: mkdir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("store: %s: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: schema: %w", err)
	}
	return &Store{DB: db}, nil
}

// OpenMemory opens an in-memory store for tests. MaxOpenConns(1)
// keeps every query on the same in-memory database.
func OpenMemory(t testing.TB) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("store.OpenMemory: %v", err)
	}
	s.DB.SetMaxOpenConns(1)
	t.Cleanup(func() { s.Close() })
	return s
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.DB.Close()
}

// BeginRun records the start of a pipeline invocation and returns its id.
func (s *Store) BeginRun(ctx context.Context, kind string, prefixes []string) (int64, error) {
	res, err := s.DB.ExecContext(ctx,
		`INSERT INTO runs (kind, prefixes, started_at) VALUES (?, ?, ?)`,
		kind, strings.Join(prefixes, ","), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("store: begin run: %w", err)
	}
	return res.LastInsertId()
}

// FinishRun closes a run record. A nil runErr marks it ok.
func (s *Store) FinishRun(ctx context.Context, id int64, recordCount int, runErr error) error {
	status, msg := "ok", ""
	if runErr != nil {
		status, msg = "failed", runErr.Error()
	}
	_, err := s.DB.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, record_count = ?, status = ?, error = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339), recordCount, status, msg, id)
	if err != nil {
		return fmt.Errorf("store: finish run: %w", err)
	}
	return nil
}

// LogFetch appends one fetch observation to a run's log.
func (s *Store) LogFetch(ctx context.Context, runID int64, url string, statusCode, bytes int) error {
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO fetch_log (run_id, url, status_code, bytes, fetched_at) VALUES (?, ?, ?, ?, ?)`,
		runID, url, statusCode, bytes, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("store: log fetch: %w", err)
	}
	return nil
}

// FetchCount returns the number of logged fetches for a run.
func (s *Store) FetchCount(ctx context.Context, runID int64) (int, error) {
	var n int
	err := s.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM fetch_log WHERE run_id = ?`, runID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("store: fetch count: %w", err)
	}
	return n, nil
}

// RecentRuns lists the newest runs, most recent first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, kind, prefixes, started_at, COALESCE(finished_at, ''), record_count, status, error
		 FROM runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: recent runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		var prefixes, started, finished string
		if err := rows.Scan(&r.ID, &r.Kind, &prefixes, &started, &finished, &r.RecordCount, &r.Status, &r.Error); err != nil {
			return nil, fmt.Errorf("store: scan run: %w", err)
		}
		if prefixes != "" {
			r.Prefixes = strings.Split(prefixes, ",")
		}
		r.StartedAt, _ = time.Parse(time.RFC3339, started)
		if finished != "" {
			r.FinishedAt, _ = time.Parse(time.RFC3339, finished)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
