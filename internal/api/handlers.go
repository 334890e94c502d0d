// SPDX-License-Identifier: MIT

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"time"

	"github.com/domevanzy/Zattoo-EPG/internal/log"
)

type errorBody struct {
	Error  string `json:"error"`
	Detail string `json:"detail"`
}

// refreshResponse is the JSON view of a completed manual refresh.
type refreshResponse struct {
	Result          string    `json:"result"`
	Channels        int       `json:"channels"`
	Programmes      int       `json:"programmes"`
	WindowsFailed   int       `json:"windows_failed,omitempty"`
	DetailsEnriched int       `json:"details_enriched,omitempty"`
	DetailsDegraded int       `json:"details_degraded,omitempty"`
	Delivered       bool      `json:"delivered,omitempty"`
	FinishedAt      time.Time `json:"finished_at"`
}

// handleGuide serves the most recently written XMLTV file.
func (s *Server) handleGuide(w http.ResponseWriter, r *http.Request) {
	logger := log.WithComponentFromContext(r.Context(), "api")

	if s.cfg.GuidePath == "" {
		http.Error(w, "guide not available", http.StatusNotFound)
		return
	}

	info, err := os.Stat(s.cfg.GuidePath)
	switch {
	case os.IsNotExist(err):
		logger.Warn().
			Str("event", "guide.not_ready").
			Str("path", s.cfg.GuidePath).
			Msg("guide file does not exist yet")
		http.Error(w, "guide not available", http.StatusNotFound)
		return
	case err != nil:
		logger.Error().
			Str("event", "guide.stat_failed").
			Err(err).
			Msg("cannot stat guide file")
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	case info.IsDir():
		http.Error(w, "guide not available", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.Header().Set("Cache-Control", "public, max-age=300")
	http.ServeFile(w, r, s.cfg.GuidePath)
}

// handleRefresh triggers one synchronous guide acquisition. Concurrent
// requests are rejected with 409 so only a single grab hits the
// provider at a time.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	logger := log.WithComponentFromContext(r.Context(), "api")

	if !s.refreshing.CompareAndSwap(false, true) {
		w.Header().Set("Retry-After", "30")
		writeJSON(w, http.StatusConflict, errorBody{
			Error:  "conflict",
			Detail: "a refresh is already in progress",
		})
		return
	}
	defer s.refreshing.Store(false)

	// The run is detached from the request context: a client that
	// gives up must not abort a grab that is already consuming the
	// provider's rate budget.
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.RefreshTimeout)
	defer cancel()
	ctx = log.ContextWithRequestID(ctx, log.RequestIDFromContext(r.Context()))

	start := time.Now()
	stats, err := s.refresh(ctx)
	s.RecordRun(err)

	if err != nil {
		logger.Error().
			Str("event", "refresh.failed").
			Err(err).
			Int64("duration_ms", time.Since(start).Milliseconds()).
			Msg("manual refresh failed")
		writeJSON(w, http.StatusInternalServerError, errorBody{
			Error:  "refresh_failed",
			Detail: "the refresh did not complete, see server logs",
		})
		return
	}

	result := "success"
	if stats.Degraded {
		result = "degraded"
	}
	logger.Info().
		Str("event", "refresh.complete").
		Str("result", result).
		Int("channels", stats.Channels).
		Int("programmes", stats.Programmes).
		Int64("duration_ms", time.Since(start).Milliseconds()).
		Msg("manual refresh completed")

	writeJSON(w, http.StatusOK, refreshResponse{
		Result:          result,
		Channels:        stats.Channels,
		Programmes:      stats.Programmes,
		WindowsFailed:   stats.WindowsFailed,
		DetailsEnriched: stats.DetailsEnriched,
		DetailsDegraded: stats.DetailsDegraded,
		Delivered:       stats.Delivered,
		FinishedAt:      stats.FinishedAt,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
