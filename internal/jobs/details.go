// SPDX-License-Identifier: MIT
package jobs

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/domevanzy/Zattoo-EPG/internal/guide"
	"github.com/domevanzy/Zattoo-EPG/internal/log"
	"github.com/domevanzy/Zattoo-EPG/internal/metrics"
	"github.com/domevanzy/Zattoo-EPG/internal/zattoo"
)

type detailStats struct {
	requested int
	enriched  int
	degraded  int
	stopped   bool
}

// enrichDetails fetches per-programme metadata in ID batches and merges it
// into the slot arena in place. Batches partition distinct programme IDs, so
// concurrent workers touch disjoint slots. A failed batch degrades (its
// slots stay minimal); DetailFailureLimit consecutive failures stop the
// stage early to avoid provider blocking. Only cancellation returns an
// error.
func enrichDetails(ctx context.Context, deps Deps, opts Options, slots []guide.ProgramSlot) (detailStats, error) {
	logger := log.WithComponentFromContext(ctx, "jobs")

	// The same programme may sit in several slots when windows overlap, so
	// the arena index keeps a slice per ID.
	index := make(map[int64][]int, len(slots))
	for i, s := range slots {
		index[s.ProgramID] = append(index[s.ProgramID], i)
	}
	ids := make([]int64, 0, len(index))
	for id := range index {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	stats := detailStats{requested: len(ids)}
	if len(ids) == 0 {
		return stats, nil
	}

	var batches [][]int64
	for start := 0; start < len(ids); start += opts.DetailBatchSize {
		batches = append(batches, ids[start:min(start+opts.DetailBatchSize, len(ids))])
	}

	var (
		mu          sync.Mutex // guards stats
		consecutive atomic.Int64
		stopped     atomic.Bool
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.DetailWorkers)
	for _, batch := range batches {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			if stopped.Load() {
				mu.Lock()
				stats.degraded += len(batch)
				mu.Unlock()
				metrics.AddDegradedDetails(len(batch))
				return nil
			}

			details, err := fetchDetailBatch(gctx, deps, batch, opts.DetailRetries)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				streak := consecutive.Add(1)
				mu.Lock()
				stats.degraded += len(batch)
				mu.Unlock()
				metrics.AddDegradedDetails(len(batch))
				logger.Warn().
					Str("event", "details.batch_failed").
					Int("batch", len(batch)).
					Int64("streak", streak).
					Err(err).
					Msg("detail batch degraded after retries")
				if int(streak) >= opts.DetailFailureLimit && !stopped.Swap(true) {
					logger.Warn().
						Str("event", "details.stopped").
						Int("limit", opts.DetailFailureLimit).
						Msg("stopping enrichment after consecutive batch failures")
				}
				return nil
			}

			consecutive.Store(0)
			enriched := 0
			for id, det := range details {
				targets, ok := index[id]
				if !ok {
					continue
				}
				for _, slotIdx := range targets {
					applyDetail(&slots[slotIdx], det)
				}
				enriched++
			}
			mu.Lock()
			stats.enriched += enriched
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return stats, err
	}
	stats.stopped = stopped.Load()
	return stats, nil
}

func fetchDetailBatch(ctx context.Context, deps Deps, ids []int64, retries int) (map[int64]zattoo.ProgramDetail, error) {
	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			if err := sleepBackoff(ctx, attempt, lastErr); err != nil {
				return nil, err
			}
		}
		if err := deps.Governor.Acquire(ctx); err != nil {
			return nil, err
		}

		details, err := deps.Client.ProgramDetails(ctx, ids)
		if err == nil {
			deps.Governor.ReportSuccess()
			return details, nil
		}
		lastErr = err
		if zattoo.IsThrottle(err) {
			hint, _ := zattoo.RetryAfterHint(err)
			deps.Governor.ReportThrottled(hint)
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

// applyDetail merges enrichment into one slot. Fields only gain values;
// empty detail fields never erase what the window response carried.
func applyDetail(slot *guide.ProgramSlot, det zattoo.ProgramDetail) {
	if det.EpisodeTitle != "" {
		slot.Subtitle = det.EpisodeTitle
	}
	if det.Description != "" {
		slot.Description = det.Description
	}
	if len(det.Genres) > 0 {
		slot.Categories = det.Genres
	}
	if c := credits(det.Credits); len(c) > 0 {
		slot.Credits = c
	}
	if det.Season > 0 {
		slot.Season = det.Season
	}
	if det.Episode > 0 {
		slot.Episode = det.Episode
	}
	if det.Year > 0 {
		slot.Year = det.Year
	}
	if det.Country != "" {
		slot.Country = det.Country
	}
	if det.Rating != "" {
		slot.Rating = string(det.Rating)
	}
	if url := zattoo.ImageURL(det.ImageToken); url != "" {
		slot.ImageURLs = []string{url}
	}
}
