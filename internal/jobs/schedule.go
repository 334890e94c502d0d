// SPDX-License-Identifier: MIT
package jobs

import (
	"context"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/domevanzy/Zattoo-EPG/internal/guide"
	"github.com/domevanzy/Zattoo-EPG/internal/log"
	"github.com/domevanzy/Zattoo-EPG/internal/metrics"
	"github.com/domevanzy/Zattoo-EPG/internal/zattoo"
)

const (
	// The upstream anchors guide days at 06:00 local and serves them in
	// quarter-day windows.
	guideDayStartHour = 6
	windowsPerDay     = 4
	windowLength      = 6 * time.Hour

	backoffStep   = 500 * time.Millisecond
	backoffJitter = 250 * time.Millisecond
)

// window is one schedule fetch unit: a quarter guide day, all channels.
type window struct {
	start time.Time
	end   time.Time
	day   int
	index int
}

// scheduleWindows splits the horizon into quarter-day windows starting at
// today 06:00 local.
func scheduleWindows(now time.Time, loc *time.Location, days int) []window {
	local := now.In(loc)
	base := time.Date(local.Year(), local.Month(), local.Day(), guideDayStartHour, 0, 0, 0, loc)

	out := make([]window, 0, days*windowsPerDay)
	for day := 0; day < days; day++ {
		dayStart := base.AddDate(0, 0, day)
		for q := 0; q < windowsPerDay; q++ {
			start := dayStart.Add(time.Duration(q) * windowLength)
			out = append(out, window{start: start, end: start.Add(windowLength), day: day, index: q})
		}
	}
	return out
}

type scheduleResult struct {
	slots         []guide.ProgramSlot
	windowsTotal  int
	windowsFailed int
}

// fetchSchedule pulls every window through a bounded pool. A window that
// exhausts its retries degrades to an empty slot set; only cancellation
// aborts the stage.
func fetchSchedule(ctx context.Context, deps Deps, opts Options) (scheduleResult, error) {
	logger := log.WithComponentFromContext(ctx, "jobs")
	windows := scheduleWindows(deps.Clock(), opts.Location, opts.Days)

	results := make([][]guide.ProgramSlot, len(windows))
	var failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.ScheduleWorkers)
	for i, w := range windows {
		g.Go(func() error {
			slots, err := fetchWindow(gctx, deps, w, opts.ScheduleRetries)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				failed.Add(1)
				metrics.IncScheduleWindowFailure()
				logger.Warn().
					Str("event", "schedule.window_failed").
					Int("day", w.day).
					Int("window", w.index).
					Err(err).
					Msg("window degraded to empty after retries")
				return nil
			}
			results[i] = slots
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return scheduleResult{}, err
	}

	var slots []guide.ProgramSlot
	for _, part := range results {
		slots = append(slots, part...)
	}
	return scheduleResult{
		slots:         slots,
		windowsTotal:  len(windows),
		windowsFailed: int(failed.Load()),
	}, nil
}

func fetchWindow(ctx context.Context, deps Deps, w window, retries int) ([]guide.ProgramSlot, error) {
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

		channels, err := deps.Client.PowerGuide(ctx, w.start, w.end)
		if err == nil {
			deps.Governor.ReportSuccess()
			return windowSlots(channels), nil
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

// sleepBackoff waits quadratically longer per attempt, stretched to any
// upstream Retry-After hint, with jitter so parallel workers spread out.
func sleepBackoff(ctx context.Context, attempt int, lastErr error) error {
	delay := time.Duration(attempt*attempt) * backoffStep
	if hint, ok := zattoo.RetryAfterHint(lastErr); ok && hint > delay {
		delay = hint
	}
	delay += rand.N(backoffJitter)

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// windowSlots converts one window response, dropping malformed entries.
func windowSlots(channels []zattoo.ChannelPrograms) []guide.ProgramSlot {
	var out []guide.ProgramSlot
	dropped := 0
	for _, ch := range channels {
		for _, p := range ch.Programs {
			if p.Title == "" || p.Start <= 0 || p.End <= p.Start {
				dropped++
				continue
			}
			out = append(out, newSlot(ch.ChannelID, p))
		}
	}
	if dropped > 0 {
		metrics.AddDroppedSlots("malformed", dropped)
		logger := log.WithComponent("jobs")
		logger.Warn().
			Str("event", "schedule.invalid_slots").
			Int("count", dropped).
			Msg("dropped malformed guide entries")
	}
	return out
}

// newSlot seeds a slot from a window programme, keeping whatever detail
// fields the window response already carried.
func newSlot(cid string, p zattoo.Program) guide.ProgramSlot {
	slot := guide.ProgramSlot{
		ChannelID:   cid,
		ProgramID:   p.ID,
		Start:       time.Unix(p.Start, 0).UTC(),
		Stop:        time.Unix(p.End, 0).UTC(),
		Title:       p.Title,
		Description: p.Description,
		Subtitle:    p.EpisodeTitle,
		Year:        p.Year,
		Country:     p.Country,
		Categories:  p.Genres,
		Season:      p.Season,
		Episode:     p.Episode,
		Rating:      string(p.Rating),
	}
	if url := zattoo.ImageURL(p.ImageToken); url != "" {
		slot.ImageURLs = []string{url}
	}
	slot.Credits = credits(p.Credits)
	return slot
}

func credits(c zattoo.Credits) []guide.Credit {
	if len(c.Directors) == 0 && len(c.Actors) == 0 {
		return nil
	}
	out := make([]guide.Credit, 0, len(c.Directors)+len(c.Actors))
	for _, d := range c.Directors {
		out = append(out, guide.Credit{Role: guide.RoleDirector, Name: d})
	}
	for _, a := range c.Actors {
		out = append(out, guide.Credit{Role: guide.RoleActor, Name: a})
	}
	return out
}
