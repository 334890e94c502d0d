// SPDX-License-Identifier: MIT

// Package metrics exposes the Prometheus collectors of the grabber.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	apiRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zattoo_epg_api_requests_total",
		Help: "Upstream API requests by operation and HTTP status code",
	}, []string{"operation", "code"})

	apiRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "zattoo_epg_api_request_duration_seconds",
		Help:    "Upstream API request latency by operation",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	throttleSignalsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "zattoo_epg_throttle_signals_total",
		Help: "Throttle responses observed from the upstream API",
	})

	scheduleWindowFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "zattoo_epg_schedule_window_failures_total",
		Help: "Guide windows that degraded to an empty slot set",
	})

	detailsDegradedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "zattoo_epg_details_degraded_total",
		Help: "Programme slots left without detail enrichment",
	})

	slotsDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zattoo_epg_slots_dropped_total",
		Help: "Programme slots dropped during sanitising by reason",
	}, []string{"reason"}) // reason=malformed|overlap|orphan

	stageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "zattoo_epg_stage_duration_seconds",
		Help:    "Duration of each pipeline stage",
		Buckets: []float64{.1, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	}, []string{"stage"}) // stage=login|catalog|schedule|details|assemble|write|deliver

	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zattoo_epg_runs_total",
		Help: "Grab runs by result",
	}, []string{"result"}) // result=success|degraded|failure

	lastRunTimestamp = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "zattoo_epg_last_run_timestamp_seconds",
		Help: "Completion time of the last successful grab run",
	})

	channelsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "zattoo_epg_channels",
		Help: "Channels in the last assembled guide",
	})

	programmesGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "zattoo_epg_programmes",
		Help: "Programme slots in the last assembled guide",
	})
)

func RecordAPIRequest(operation string, status int, elapsed time.Duration) {
	apiRequestsTotal.WithLabelValues(operation, strconv.Itoa(status)).Inc()
	apiRequestDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

func IncThrottleSignal() { throttleSignalsTotal.Inc() }

func IncScheduleWindowFailure() { scheduleWindowFailures.Inc() }

func AddDegradedDetails(n int) { detailsDegradedTotal.Add(float64(n)) }

func AddDroppedSlots(reason string, n int) {
	if n > 0 {
		slotsDroppedTotal.WithLabelValues(reason).Add(float64(n))
	}
}

func ObserveStage(stage string, elapsed time.Duration) {
	stageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
}

func RecordRun(result string) { runsTotal.WithLabelValues(result).Inc() }

// RecordGuide publishes the size of the last assembled guide.
func RecordGuide(completedAt time.Time, channels, programmes int) {
	lastRunTimestamp.Set(float64(completedAt.Unix()))
	channelsGauge.Set(float64(channels))
	programmesGauge.Set(float64(programmes))
}
