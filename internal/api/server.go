// SPDX-License-Identifier: MIT

// Package api exposes the daemon's HTTP surface: health probes,
// Prometheus metrics, the rendered XMLTV document and a manual
// refresh trigger.
package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/domevanzy/Zattoo-EPG/internal/health"
	"github.com/domevanzy/Zattoo-EPG/internal/jobs"
	"github.com/domevanzy/Zattoo-EPG/internal/log"
)

// RefreshFunc runs one guide acquisition and returns its statistics.
// The daemon injects the same function it uses for scheduled runs.
type RefreshFunc func(ctx context.Context) (*jobs.RunStats, error)

// Config carries the server's listen address and serving paths.
type Config struct {
	// Listen is the address the HTTP server binds to, e.g. ":8080".
	Listen string

	// GuidePath is the XMLTV file served under /guide.xml. Empty means
	// the guide endpoint always answers 404 (socket-only delivery).
	GuidePath string

	// RefreshTimeout bounds a manual refresh. The run is detached from
	// the request context so a closed client connection cannot abort a
	// half-finished grab. Defaults to 15 minutes.
	RefreshTimeout time.Duration

	// RefreshPerMinute is the per-IP rate limit on POST /api/refresh.
	// Defaults to 4.
	RefreshPerMinute int
}

// Server is the daemon's HTTP front end. It tracks the outcome of the
// most recent run (scheduled or manual) so the readiness probe can
// report staleness and failures.
type Server struct {
	cfg     Config
	health  *health.Manager
	refresh RefreshFunc

	refreshing atomic.Bool
	httpSrv    *http.Server

	mu        sync.RWMutex
	lastRun   time.Time
	lastError string
}

// New builds a server. The health manager owns the probe endpoints;
// refresh is invoked synchronously by POST /api/refresh.
func New(cfg Config, healthMgr *health.Manager, refresh RefreshFunc) *Server {
	if cfg.RefreshTimeout <= 0 {
		cfg.RefreshTimeout = 15 * time.Minute
	}
	if cfg.RefreshPerMinute <= 0 {
		cfg.RefreshPerMinute = 4
	}

	s := &Server{
		cfg:     cfg,
		health:  healthMgr,
		refresh: refresh,
	}
	s.httpSrv = &http.Server{
		Addr:              cfg.Listen,
		Handler:           s.router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	return s
}

func (s *Server) router() chi.Router {
	r := chi.NewRouter()
	r.Use(recoverer)
	r.Use(requestID)
	r.Use(tracing("zattoo-epg-api"))
	r.Use(requestLogger)

	r.Get("/healthz", s.health.ServeHealth)
	r.Get("/readyz", s.health.ServeReady)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Get("/guide.xml", s.handleGuide)
	r.With(refreshRateLimit(s.cfg.RefreshPerMinute)).
		Post("/api/refresh", s.handleRefresh)
	return r
}

// Start serves HTTP until the listener fails or Shutdown is called.
// A clean shutdown returns nil.
func (s *Server) Start() error {
	logger := log.WithComponent("api")
	logger.Info().
		Str("event", "api.listening").
		Str("addr", s.cfg.Listen).
		Msg("HTTP server listening")

	err := s.httpSrv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

// RecordRun stores the outcome of a completed run. The daemon loop
// calls it after every scheduled run; manual refreshes record
// themselves. A nil error clears a previously stored failure.
func (s *Server) RecordRun(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastRun = time.Now()
	if err != nil {
		s.lastError = err.Error()
		return
	}
	s.lastError = ""
}

// LastRun reports the time and error of the most recent run. It feeds
// the readiness checker; a zero time means no run has completed yet.
func (s *Server) LastRun() (time.Time, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastRun, s.lastError
}
