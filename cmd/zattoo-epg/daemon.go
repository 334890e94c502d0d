// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"github.com/domevanzy/Zattoo-EPG/internal/api"
	"github.com/domevanzy/Zattoo-EPG/internal/config"
	"github.com/domevanzy/Zattoo-EPG/internal/health"
	"github.com/domevanzy/Zattoo-EPG/internal/jobs"
	zlog "github.com/domevanzy/Zattoo-EPG/internal/log"
)

func newRunID() string {
	return uuid.NewString()
}

// jittered spreads scheduled runs by ±10% so restarts of several
// instances do not hammer the provider in lockstep.
func jittered(d time.Duration) time.Duration {
	spread := float64(d) * 0.1
	return d + time.Duration((rand.Float64()*2-1)*spread)
}

// runDaemon keeps the guide fresh: one grab at startup, one per refresh
// interval, plus manual refreshes through the HTTP API. Exits on
// SIGINT/SIGTERM after draining the HTTP server.
func runDaemon(ctx context.Context, cfg config.Config, configPath string) int {
	logger := zlog.WithComponent("daemon")

	holder := config.NewHolder(cfg, configPath)
	if err := holder.StartWatcher(ctx); err != nil {
		logger.Warn().
			Err(err).
			Str("event", "config.watch_failed").
			Msg("config file watching disabled")
	}
	defer holder.Stop()

	// Each refresh resolves its options from the holder, so edits to the
	// config file apply from the next run onward without a restart.
	refresh := func(ctx context.Context) (*jobs.RunStats, error) {
		current := holder.Get()
		deps, err := buildDeps(current)
		if err != nil {
			return nil, err
		}
		ctx = zlog.ContextWithRunID(ctx, newRunID())
		return jobs.Run(ctx, deps, runOptions(current))
	}

	staleAge := 2*cfg.RefreshInterval + time.Hour

	healthMgr := health.NewManager(version)
	srv := api.New(api.Config{
		Listen:    cfg.Listen,
		GuidePath: cfg.Output,
	}, healthMgr, refresh)

	if cfg.Output != "" {
		healthMgr.RegisterChecker(health.NewGuideFileChecker(cfg.Output, staleAge))
	}
	healthMgr.RegisterChecker(health.NewLastRunChecker(staleAge, srv.LastRun))

	srvErr := make(chan error, 1)
	go func() { srvErr <- srv.Start() }()

	runAndRecord := func(trigger string) {
		start := time.Now()
		stats, err := refresh(ctx)
		srv.RecordRun(err)
		if err != nil {
			logger.Error().
				Err(err).
				Str("event", "daemon.run_failed").
				Str("trigger", trigger).
				Msg("scheduled guide run failed")
			return
		}
		logger.Info().
			Str("event", "daemon.run_complete").
			Str("trigger", trigger).
			Int("channels", stats.Channels).
			Int("programmes", stats.Programmes).
			Dur("elapsed", time.Since(start)).
			Msg("scheduled guide run finished")
	}

	runAndRecord("startup")

	timer := time.NewTimer(jittered(holder.Get().RefreshInterval))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Str("event", "daemon.stopping").Msg("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			err := srv.Shutdown(shutdownCtx)
			cancel()
			if err != nil {
				logger.Warn().Err(err).Msg("HTTP server shutdown failed")
				return 1
			}
			return 0

		case err := <-srvErr:
			if err != nil {
				logger.Error().
					Err(err).
					Str("event", "daemon.server_failed").
					Msg("HTTP server failed")
				return 1
			}
			return 0

		case <-timer.C:
			runAndRecord("interval")
			timer.Reset(jittered(holder.Get().RefreshInterval))
		}
	}
}
