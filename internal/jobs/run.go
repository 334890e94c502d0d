// SPDX-License-Identifier: MIT

package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/domevanzy/Zattoo-EPG/internal/deliver"
	"github.com/domevanzy/Zattoo-EPG/internal/epg"
	"github.com/domevanzy/Zattoo-EPG/internal/guide"
	"github.com/domevanzy/Zattoo-EPG/internal/log"
	"github.com/domevanzy/Zattoo-EPG/internal/metrics"
	"github.com/domevanzy/Zattoo-EPG/internal/telemetry"
	"github.com/domevanzy/Zattoo-EPG/internal/zattoo"
)

const tracerName = "zattoo-epg/jobs"

// stage runs one pipeline stage inside a span and records its duration.
func stage(ctx context.Context, name string, fn func(context.Context) error) error {
	ctx, span := telemetry.Tracer(tracerName).Start(ctx, "guide."+name,
		trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()

	begin := time.Now()
	err := fn(ctx)
	metrics.ObserveStage(name, time.Since(begin))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, name+" failed")
	}
	return err
}

// Run executes one acquisition cycle: authenticate, fetch the channel
// catalog, fetch all schedule windows, optionally enrich programmes with
// details, assemble and render the XMLTV document, then write the file
// and/or push it to TVHeadend. Window and detail failures degrade the run;
// authentication, catalog and output failures abort it.
func Run(ctx context.Context, deps Deps, opts Options) (*RunStats, error) {
	opts = opts.normalized()
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if opts.TVHeadendOnly && opts.TVHeadendSocket == "" {
		return nil, errors.New("tvheadend-only mode needs a socket path")
	}

	ctx, runSpan := telemetry.Tracer(tracerName).Start(ctx, "guide.run",
		trace.WithSpanKind(trace.SpanKindInternal))
	defer runSpan.End()

	logger := log.WithComponentFromContext(ctx, "jobs")
	stats := &RunStats{StartedAt: deps.Clock()}

	abort := func(err error) (*RunStats, error) {
		runSpan.RecordError(err)
		runSpan.SetStatus(codes.Error, "run aborted")
		metrics.RecordRun("failure")
		return nil, err
	}

	logger.Info().
		Str("event", "run.start").
		Int("days", opts.Days).
		Bool("details", opts.WithDetails).
		Msg("starting guide acquisition")

	var session *zattoo.Session
	err := stage(ctx, "login", func(ctx context.Context) error {
		var err error
		session, err = deps.Client.Login(ctx)
		return err
	})
	if err != nil {
		return abort(fmt.Errorf("login: %w", err))
	}
	logger.Info().
		Str("event", "run.authenticated").
		Str("country", session.Country).
		Msg("session established")

	var catalog []zattoo.Channel
	err = stage(ctx, "catalog", func(ctx context.Context) error {
		var err error
		catalog, err = deps.Client.Channels(ctx)
		return err
	})
	if err != nil {
		return abort(fmt.Errorf("channel catalog: %w", err))
	}
	if len(catalog) == 0 {
		return abort(errors.New("channel catalog: provider returned no channels"))
	}
	channels := make([]guide.Channel, 0, len(catalog))
	for i, ch := range catalog {
		channels = append(channels, guide.Channel{
			ID:      ch.ID,
			Name:    ch.Title,
			LogoURL: ch.LogoURL,
			Number:  i + 1,
		})
	}
	stats.Channels = len(channels)

	var sched scheduleResult
	err = stage(ctx, "schedule", func(ctx context.Context) error {
		var err error
		sched, err = fetchSchedule(ctx, deps, opts)
		return err
	})
	if err != nil {
		return abort(fmt.Errorf("schedule: %w", err))
	}
	stats.WindowsTotal = sched.windowsTotal
	stats.WindowsFailed = sched.windowsFailed

	if opts.WithDetails && len(sched.slots) > 0 {
		var details detailStats
		err = stage(ctx, "details", func(ctx context.Context) error {
			var err error
			details, err = enrichDetails(ctx, deps, opts, sched.slots)
			return err
		})
		if err != nil {
			return abort(fmt.Errorf("details: %w", err))
		}
		stats.DetailsRequested = details.requested
		stats.DetailsEnriched = details.enriched
		stats.DetailsDegraded = details.degraded
		stats.EnrichmentStopped = details.stopped
	}

	doc := guide.Assemble(channels, sched.slots)
	stats.Programmes = doc.ProgramCount()

	var payload []byte
	err = stage(ctx, "render", func(context.Context) error {
		var err error
		payload, err = epg.Render(epg.FromDocument(doc, epg.Options{
			Language:  opts.Language,
			Location:  opts.Location,
			Generator: opts.Generator,
		}))
		return err
	})
	if err != nil {
		return abort(fmt.Errorf("render XMLTV: %w", err))
	}

	if !opts.TVHeadendOnly && opts.OutputPath != "" {
		err = stage(ctx, "write", func(ctx context.Context) error {
			return writeGuide(ctx, opts.OutputPath, payload)
		})
		if err != nil {
			return abort(fmt.Errorf("write guide: %w", err))
		}
	}

	if opts.TVHeadendSocket != "" {
		err = stage(ctx, "deliver", func(ctx context.Context) error {
			return deliver.Push(ctx, opts.TVHeadendSocket, payload)
		})
		switch {
		case err == nil:
			stats.Delivered = true
		case opts.TVHeadendOnly:
			return abort(fmt.Errorf("deliver to tvheadend: %w", err))
		default:
			logger.Warn().
				Str("event", "run.delivery_failed").
				Str("socket", opts.TVHeadendSocket).
				Err(err).
				Msg("guide written but tvheadend push failed")
			stats.Degraded = true
		}
	}

	stats.FinishedAt = deps.Clock()
	stats.Degraded = stats.Degraded || stats.WindowsFailed > 0 || stats.DetailsDegraded > 0 || stats.EnrichmentStopped
	metrics.RecordGuide(stats.FinishedAt, stats.Channels, stats.Programmes)

	result := "success"
	if stats.Degraded {
		result = "degraded"
	}
	metrics.RecordRun(result)
	runSpan.SetAttributes(telemetry.GuideAttributes(opts.Days, stats.Channels, stats.Programmes, result)...)

	logger.Info().
		Str("event", "run.complete").
		Str("result", result).
		Int("channels", stats.Channels).
		Int("programmes", stats.Programmes).
		Int("windows_failed", stats.WindowsFailed).
		Int("details_enriched", stats.DetailsEnriched).
		Int("details_degraded", stats.DetailsDegraded).
		Dur("elapsed", stats.FinishedAt.Sub(stats.StartedAt)).
		Msg("guide acquisition finished")
	return stats, nil
}
