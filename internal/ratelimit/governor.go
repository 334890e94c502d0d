// SPDX-License-Identifier: MIT

// Package ratelimit paces outbound provider requests. The Governor starts at
// a configured rate, halves it whenever the provider signals throttling and
// slowly works its way back up after a quiet period, so a long detail run
// settles at whatever rate the provider sustains.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"
)

var (
	governorRate = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "zattoo_epg",
			Name:      "governor_rate",
			Help:      "Current permitted request rate in requests per second",
		},
	)
	governorWaitSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "zattoo_epg",
			Name:      "governor_wait_seconds",
			Help:      "Time spent waiting for a request slot",
			Buckets:   []float64{.005, .05, .25, 1, 2.5, 5, 10, 30},
		},
	)
	governorDecreases = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "zattoo_epg",
			Name:      "governor_decreases_total",
			Help:      "Total rate reductions triggered by throttle signals",
		},
	)
	governorRecoveries = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "zattoo_epg",
			Name:      "governor_recoveries_total",
			Help:      "Total rate recovery steps after quiet periods",
		},
	)
)

// Config holds governor tuning.
type Config struct {
	// InitialRate is the starting and maximum request rate. Recovery never
	// raises the rate beyond it.
	InitialRate rate.Limit
	Burst       int

	// MinRate is the floor; throttle signals never push the rate below it.
	MinRate rate.Limit

	// DecreaseFactor scales the rate down on a throttle signal (0 < f < 1).
	DecreaseFactor float64

	// RecoveryFactor scales the rate back up (> 1), at most once per
	// RecoveryAfter of throttle-free operation.
	RecoveryFactor float64
	RecoveryAfter  time.Duration

	// Coalesce treats throttle signals arriving within this window of the
	// last decrease as one event: a burst of in-flight requests that all hit
	// a 429 must not collapse the rate to the floor in one step.
	Coalesce time.Duration
}

// DefaultConfig returns the tuning used against the production API.
func DefaultConfig() Config {
	return Config{
		InitialRate:    2,
		Burst:          1,
		MinRate:        0.1, // one request per 10s
		DecreaseFactor: 0.5,
		RecoveryFactor: 2,
		RecoveryAfter:  30 * time.Second,
		Coalesce:       2 * time.Second,
	}
}

// Governor is an adaptive outbound rate limiter. All methods are safe for
// concurrent use.
type Governor struct {
	cfg     Config
	limiter *rate.Limiter

	mu           sync.Mutex
	pauseUntil   time.Time // upstream Retry-After, honored before the next slot
	lastThrottle time.Time
	lastDecrease time.Time
	lastRecovery time.Time

	now func() time.Time
}

// New creates a Governor. Zero or invalid config fields fall back to the
// defaults.
func New(cfg Config) *Governor {
	def := DefaultConfig()
	if cfg.InitialRate <= 0 {
		cfg.InitialRate = def.InitialRate
	}
	if cfg.Burst <= 0 {
		cfg.Burst = def.Burst
	}
	if cfg.MinRate <= 0 || cfg.MinRate > cfg.InitialRate {
		cfg.MinRate = def.MinRate
	}
	if cfg.DecreaseFactor <= 0 || cfg.DecreaseFactor >= 1 {
		cfg.DecreaseFactor = def.DecreaseFactor
	}
	if cfg.RecoveryFactor <= 1 {
		cfg.RecoveryFactor = def.RecoveryFactor
	}
	if cfg.RecoveryAfter <= 0 {
		cfg.RecoveryAfter = def.RecoveryAfter
	}
	if cfg.Coalesce <= 0 {
		cfg.Coalesce = def.Coalesce
	}
	governorRate.Set(float64(cfg.InitialRate))
	return &Governor{
		cfg:     cfg,
		limiter: rate.NewLimiter(cfg.InitialRate, cfg.Burst),
		now:     time.Now,
	}
}

// Acquire blocks until the caller may send one request, or until ctx is done.
// Every outbound provider request goes through here.
func (g *Governor) Acquire(ctx context.Context) error {
	g.maybeRecover()

	if wait := g.pauseRemaining(); wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	started := time.Now()
	err := g.limiter.Wait(ctx)
	governorWaitSeconds.Observe(time.Since(started).Seconds())
	return err
}

// ReportThrottled records an upstream throttle signal: the rate drops by
// DecreaseFactor (down to MinRate) and, when the upstream sent a Retry-After
// hint, the next Acquire additionally waits it out. Signals inside the
// coalesce window of the previous decrease only extend the pause.
func (g *Governor) ReportThrottled(hint time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	g.lastThrottle = now
	if hint > 0 {
		until := now.Add(hint)
		if until.After(g.pauseUntil) {
			g.pauseUntil = until
		}
	}

	if !g.lastDecrease.IsZero() && now.Sub(g.lastDecrease) < g.cfg.Coalesce {
		return
	}
	g.lastDecrease = now

	current := g.limiter.Limit()
	next := current * rate.Limit(g.cfg.DecreaseFactor)
	if next < g.cfg.MinRate {
		next = g.cfg.MinRate
	}
	if next >= current {
		return
	}
	g.limiter.SetLimit(next)
	governorRate.Set(float64(next))
	governorDecreases.Inc()
}

// ReportSuccess notes a successful provider call. Once the throttle-free
// interval exceeds RecoveryAfter, the rate climbs one multiplicative step
// toward the ceiling.
func (g *Governor) ReportSuccess() {
	g.maybeRecover()
}

// Rate returns the currently permitted request rate.
func (g *Governor) Rate() rate.Limit {
	return g.limiter.Limit()
}

func (g *Governor) maybeRecover() {
	g.mu.Lock()
	defer g.mu.Unlock()

	current := g.limiter.Limit()
	if current >= g.cfg.InitialRate || g.lastThrottle.IsZero() {
		return
	}
	now := g.now()
	if now.Sub(g.lastThrottle) < g.cfg.RecoveryAfter {
		return
	}
	if !g.lastRecovery.IsZero() && now.Sub(g.lastRecovery) < g.cfg.RecoveryAfter {
		return
	}
	g.lastRecovery = now

	next := current * rate.Limit(g.cfg.RecoveryFactor)
	if next > g.cfg.InitialRate {
		next = g.cfg.InitialRate
	}
	g.limiter.SetLimit(next)
	governorRate.Set(float64(next))
	governorRecoveries.Inc()
}

func (g *Governor) pauseRemaining() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	remaining := g.pauseUntil.Sub(g.now())
	if remaining <= 0 {
		return 0
	}
	return remaining
}
