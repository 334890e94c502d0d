// SPDX-License-Identifier: MIT

// Package health exposes liveness and readiness state for the grabber
// daemon. Docker HEALTHCHECK and Kubernetes probes consume the JSON
// responses; readiness flips once a guide document has been produced.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"time"

	"github.com/domevanzy/Zattoo-EPG/internal/log"
)

// Status grades a component or the whole process.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// CheckResult is the outcome of one component check.
type CheckResult struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// HealthResponse is the liveness payload.
type HealthResponse struct {
	Status    Status                 `json:"status"`
	Version   string                 `json:"version,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// ReadinessResponse is the readiness payload.
type ReadinessResponse struct {
	Ready     bool                   `json:"ready"`
	Status    Status                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// Checker is one named component check.
type Checker interface {
	Name() string
	Check(ctx context.Context) CheckResult
}

// Manager aggregates component checks into probe responses.
type Manager struct {
	version  string
	checkers []Checker
}

func NewManager(version string) *Manager {
	return &Manager{version: version}
}

// RegisterChecker adds a component check. Not safe for concurrent use;
// register everything before serving.
func (m *Manager) RegisterChecker(checker Checker) {
	m.checkers = append(m.checkers, checker)
}

// Health reports liveness. The process being able to answer is the check;
// component states are attached only in verbose mode.
func (m *Manager) Health(ctx context.Context, verbose bool) HealthResponse {
	resp := HealthResponse{
		Status:    StatusHealthy,
		Version:   m.version,
		Timestamp: time.Now(),
	}
	if verbose && len(m.checkers) > 0 {
		resp.Checks, resp.Status = m.runChecks(ctx)
	}
	return resp
}

// Ready reports readiness: false while any component is unhealthy, which
// includes the time before the first successful grab.
func (m *Manager) Ready(ctx context.Context) ReadinessResponse {
	resp := ReadinessResponse{
		Ready:     true,
		Status:    StatusHealthy,
		Timestamp: time.Now(),
	}
	if len(m.checkers) == 0 {
		return resp
	}
	resp.Checks, resp.Status = m.runChecks(ctx)
	resp.Ready = resp.Status != StatusUnhealthy
	return resp
}

func (m *Manager) runChecks(ctx context.Context) (map[string]CheckResult, Status) {
	checks := make(map[string]CheckResult, len(m.checkers))
	status := StatusHealthy
	for _, checker := range m.checkers {
		result := checker.Check(ctx)
		checks[checker.Name()] = result
		switch result.Status {
		case StatusUnhealthy:
			status = StatusUnhealthy
		case StatusDegraded:
			if status == StatusHealthy {
				status = StatusDegraded
			}
		}
	}
	return checks, status
}

// ServeHealth answers liveness probes. Always 200 while the process runs.
func (m *Manager) ServeHealth(w http.ResponseWriter, r *http.Request) {
	logger := log.WithComponentFromContext(r.Context(), "health")
	verbose := r.URL.Query().Get("verbose") == "true"

	resp := m.Health(r.Context(), verbose)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.Error().Err(err).Str("event", "health.encode_error").Msg("failed to encode health response")
	}
}

// ServeReady answers readiness probes with 503 until the grabber has
// produced a guide.
func (m *Manager) ServeReady(w http.ResponseWriter, r *http.Request) {
	logger := log.WithComponentFromContext(r.Context(), "health")

	resp := m.Ready(r.Context())

	w.Header().Set("Content-Type", "application/json")
	if resp.Ready {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.Error().Err(err).Str("event", "readiness.encode_error").Msg("failed to encode readiness response")
	}

	logger.Debug().
		Str("event", "readiness.checked").
		Str("status", string(resp.Status)).
		Bool("ready", resp.Ready).
		Msg("readiness check performed")
}

// GuideFileChecker verifies the XMLTV output: present, non-empty and fresh.
type GuideFileChecker struct {
	path     string
	staleAge time.Duration
}

// NewGuideFileChecker watches the guide file at path. A zero staleAge
// disables the freshness check. An empty path (socket-only delivery)
// reports healthy.
func NewGuideFileChecker(path string, staleAge time.Duration) *GuideFileChecker {
	return &GuideFileChecker{path: path, staleAge: staleAge}
}

func (c *GuideFileChecker) Name() string { return "guide_file" }

func (c *GuideFileChecker) Check(_ context.Context) CheckResult {
	if c.path == "" {
		return CheckResult{Status: StatusHealthy, Message: "not configured (socket-only delivery)"}
	}

	info, err := os.Stat(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return CheckResult{Status: StatusUnhealthy, Error: "guide file not found", Message: c.path}
		}
		return CheckResult{Status: StatusUnhealthy, Error: err.Error()}
	}
	if info.IsDir() {
		return CheckResult{Status: StatusUnhealthy, Error: "expected file, got directory"}
	}
	if info.Size() == 0 {
		return CheckResult{Status: StatusDegraded, Message: "guide file is empty"}
	}
	if c.staleAge > 0 {
		if age := time.Since(info.ModTime()); age > c.staleAge {
			return CheckResult{
				Status:  StatusDegraded,
				Message: "guide file stale: last written " + age.Truncate(time.Minute).String() + " ago",
			}
		}
	}
	return CheckResult{Status: StatusHealthy, Message: "guide file present and fresh"}
}

// LastRunChecker inspects the most recent acquisition run. getLastRun
// returns the zero time while no run has completed, and the failure text of
// the last run, empty on success.
type LastRunChecker struct {
	staleAge   time.Duration
	getLastRun func() (time.Time, string)
}

func NewLastRunChecker(staleAge time.Duration, getLastRun func() (time.Time, string)) *LastRunChecker {
	return &LastRunChecker{staleAge: staleAge, getLastRun: getLastRun}
}

func (c *LastRunChecker) Name() string { return "last_run" }

func (c *LastRunChecker) Check(_ context.Context) CheckResult {
	lastRun, lastError := c.getLastRun()

	if lastRun.IsZero() {
		return CheckResult{Status: StatusUnhealthy, Message: "no completed run yet"}
	}
	if lastError != "" {
		return CheckResult{Status: StatusUnhealthy, Error: lastError, Message: "last run failed"}
	}
	if c.staleAge > 0 {
		if age := time.Since(lastRun); age > c.staleAge {
			return CheckResult{
				Status:  StatusDegraded,
				Message: "last successful run " + age.Truncate(time.Minute).String() + " ago",
			}
		}
	}
	return CheckResult{Status: StatusHealthy, Message: "last run successful"}
}
