// Package server exposes the pipeline's trigger operations over HTTP.
//
// The serving layer proper (paged catalog browsing from the chunk
// files) lives with the client; this surface only starts pipeline work
// and reports run history.
package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/tbielich/mb-parts/catalog"
	"github.com/tbielich/mb-parts/snapshot"
)

// Server wires the catalog Service to HTTP handlers.
type Server struct {
	svc    *catalog.Service
	logger *slog.Logger
}

// New creates a Server. A nil logger falls back to slog.Default.
func New(svc *catalog.Service, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{svc: svc, logger: logger.With("component", "server")}
}

// Router builds the HTTP routing table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Post("/api/crawl", s.handleCrawl)
	r.Post("/api/prices/refresh", s.handleRefresh)
	r.Post("/api/prices/refresh-visible", s.handleRefreshVisible)
	r.Post("/api/chunks/build", s.handleBuildChunks)
	r.Get("/api/runs", s.handleRuns)

	return r
}

type triggerResponse struct {
	OK    bool   `json:"ok"`
	Count int    `json:"count"`
	Error string `json:"error,omitempty"`
}

type crawlRequest struct {
	Prefixes []string `json:"prefixes"`
	Limit    int      `json:"limit"`
}

func (s *Server) handleCrawl(w http.ResponseWriter, r *http.Request) {
	var req crawlRequest
	if !s.decode(w, r, &req) {
		return
	}
	snap, err := s.svc.Crawl(r.Context(), catalog.CrawlParams{
		Prefixes: req.Prefixes,
		Limit:    req.Limit,
	})
	if err != nil {
		s.fail(w, r, "crawl", err)
		return
	}
	s.ok(w, snap.Count)
}

type refreshRequest struct {
	BatchSize int `json:"batchSize"`
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !s.decode(w, r, &req) {
		return
	}
	n, err := s.svc.RefreshBatch(r.Context(), req.BatchSize)
	if err != nil {
		s.fail(w, r, "refresh", err)
		return
	}
	s.ok(w, n)
}

type refreshVisibleRequest struct {
	PartNumbers []string `json:"partNumbers"`
}

func (s *Server) handleRefreshVisible(w http.ResponseWriter, r *http.Request) {
	var req refreshVisibleRequest
	if !s.decode(w, r, &req) {
		return
	}
	n, err := s.svc.RefreshItems(r.Context(), req.PartNumbers)
	if err != nil {
		s.fail(w, r, "refresh-visible", err)
		return
	}
	s.ok(w, n)
}

func (s *Server) handleBuildChunks(w http.ResponseWriter, r *http.Request) {
	m, err := s.svc.BuildChunks(r.Context())
	if err != nil {
		s.fail(w, r, "chunk build", err)
		return
	}
	s.ok(w, m.TotalParts)
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.svc.RecentRuns(r.Context(), 50)
	if err != nil {
		s.fail(w, r, "run history", err)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

// decode reads an optional JSON body. An empty body leaves v zeroed;
// malformed JSON is a 400.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Body == nil || r.ContentLength == 0 {
		return true
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, triggerResponse{Error: "malformed request body"})
		return false
	}
	return true
}

func (s *Server) ok(w http.ResponseWriter, count int) {
	writeJSON(w, http.StatusOK, triggerResponse{OK: true, Count: count})
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	s.logger.Error(op+" failed", "error", err, "request_id", middleware.GetReqID(r.Context()))
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, catalog.ErrNoItems), errors.Is(err, catalog.ErrNoPrefixes):
		status = http.StatusBadRequest
	case errors.Is(err, snapshot.ErrMissing):
		// The crawl has not produced a base snapshot yet.
		status = http.StatusConflict
	}
	writeJSON(w, status, triggerResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
