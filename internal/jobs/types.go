// SPDX-License-Identifier: MIT

// Package jobs runs the acquisition pipeline: login, catalog, schedule
// windows, optional detail enrichment, assembly, rendering and delivery.
package jobs

import (
	"context"
	"time"

	"github.com/domevanzy/Zattoo-EPG/internal/zattoo"
)

// Client is the provider surface the pipeline consumes. *zattoo.Client
// implements it; tests substitute failure-injecting fakes.
type Client interface {
	Login(ctx context.Context) (*zattoo.Session, error)
	Channels(ctx context.Context) ([]zattoo.Channel, error)
	PowerGuide(ctx context.Context, start, end time.Time) ([]zattoo.ChannelPrograms, error)
	ProgramDetails(ctx context.Context, ids []int64) (map[int64]zattoo.ProgramDetail, error)
}

// Governor paces outbound calls. *ratelimit.Governor implements it.
type Governor interface {
	Acquire(ctx context.Context) error
	ReportThrottled(hint time.Duration)
	ReportSuccess()
}

// Deps holds the collaborators of one run.
type Deps struct {
	Client   Client
	Governor Governor
	Clock    func() time.Time // nil = time.Now
}

// Options controls one run.
type Options struct {
	Days        int  // guide horizon, clamped to [1,14]
	WithDetails bool // fetch per-programme enrichment

	Language  string         // language tag for rendered text elements
	Location  *time.Location // guide day boundaries and timestamp rendering
	Generator string         // overrides the generator-info-name attribute

	OutputPath      string // XMLTV file target, "" skips the file
	TVHeadendSocket string // unix socket target, "" skips delivery
	TVHeadendOnly   bool   // deliver without writing the file

	ScheduleWorkers int
	ScheduleRetries int // extra attempts per window after the first

	DetailWorkers      int
	DetailBatchSize    int
	DetailRetries      int // extra attempts per batch after the first
	DetailFailureLimit int // consecutive failed batches before enrichment stops
}

// DefaultOptions mirrors the standalone grabber's defaults.
func DefaultOptions() Options {
	return Options{
		Days:               7,
		WithDetails:        true,
		Language:           "de",
		OutputPath:         "zattoo_epg.xml",
		ScheduleWorkers:    4,
		ScheduleRetries:    2,
		DetailWorkers:      2,
		DetailBatchSize:    20,
		DetailRetries:      3,
		DetailFailureLimit: 5,
	}
}

// normalized clamps option values into their working ranges.
func (o Options) normalized() Options {
	def := DefaultOptions()
	if o.Days < 1 {
		o.Days = 1
	}
	if o.Days > 14 {
		o.Days = 14
	}
	if o.Language == "" {
		o.Language = def.Language
	}
	if o.Location == nil {
		o.Location = time.Local
	}
	if o.ScheduleWorkers < 1 {
		o.ScheduleWorkers = def.ScheduleWorkers
	}
	if o.ScheduleRetries < 0 {
		o.ScheduleRetries = def.ScheduleRetries
	}
	if o.DetailWorkers < 1 {
		o.DetailWorkers = def.DetailWorkers
	}
	if o.DetailBatchSize < 1 {
		o.DetailBatchSize = def.DetailBatchSize
	}
	if o.DetailRetries < 0 {
		o.DetailRetries = def.DetailRetries
	}
	if o.DetailFailureLimit < 1 {
		o.DetailFailureLimit = def.DetailFailureLimit
	}
	return o
}

// RunStats summarizes one completed run.
type RunStats struct {
	StartedAt  time.Time
	FinishedAt time.Time

	Channels   int
	Programmes int

	WindowsTotal  int
	WindowsFailed int

	DetailsRequested  int // programmes submitted for enrichment
	DetailsEnriched   int
	DetailsDegraded   int // programmes whose enrichment was given up
	EnrichmentStopped bool

	Delivered bool
	Degraded  bool
}
