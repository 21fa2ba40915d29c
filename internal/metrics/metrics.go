// Package metrics provides Prometheus metrics for the disclosure monitor.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "disclosure_monitor"

var (
	// CyclesTotal counts cycle runs by trigger and outcome.
	CyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Total number of monitoring cycles",
		},
		[]string{"trigger", "status"},
	)

	// CycleDuration measures how long a cycle takes.
	CycleDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Duration of monitoring cycles in seconds",
			Buckets:   []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"trigger"},
	)

	// ItemsTotal counts items by the stage they reached.
	ItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_total",
			Help:      "Feed items by processing stage",
		},
		[]string{"stage"},
	)

	// EnrichFailuresTotal counts best-effort enrichment step failures.
	EnrichFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enrich_failures_total",
			Help:      "Enrichment step failures",
		},
		[]string{"step"},
	)

	// ErrorsTotal counts errors by operation.
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Total number of errors",
		},
		[]string{"operation"},
	)

	// CatchUpsTotal counts catch-up runs requested after a heartbeat gap.
	CatchUpsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catch_ups_total",
			Help:      "Catch-up cycles requested after a suspected suspension",
		},
	)

	// SkippedTriggersTotal counts triggers dropped because a cycle was in flight.
	SkippedTriggersTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "skipped_triggers_total",
			Help:      "Cycle triggers skipped while another cycle was running",
		},
	)

	// LastHeartbeat exposes the last written heartbeat as a unix timestamp.
	LastHeartbeat = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_heartbeat_timestamp_seconds",
			Help:      "Unix time of the last heartbeat",
		},
	)
)

// Item stages.
const (
	StageFetched   = "fetched"
	StageMatched   = "matched"
	StageDuplicate = "duplicate"
	StageNotified  = "notified"
	StageFailed    = "failed"
)

// RecordCycle records a finished cycle.
func RecordCycle(trigger string, err error, duration time.Duration) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	CyclesTotal.WithLabelValues(trigger, status).Inc()
	CycleDuration.WithLabelValues(trigger).Observe(duration.Seconds())
}

// AddItems adds n items to stage.
func AddItems(stage string, n int) {
	if n <= 0 {
		return
	}
	ItemsTotal.WithLabelValues(stage).Add(float64(n))
}

// RecordEnrichFailure records a failed enrichment step.
func RecordEnrichFailure(step string) {
	EnrichFailuresTotal.WithLabelValues(step).Inc()
}

// RecordError records an error.
func RecordError(operation string) {
	ErrorsTotal.WithLabelValues(operation).Inc()
}

// RecordCatchUp records a catch-up request.
func RecordCatchUp() {
	CatchUpsTotal.Inc()
}

// RecordSkippedTrigger records a dropped trigger.
func RecordSkippedTrigger() {
	SkippedTriggersTotal.Inc()
}

// SetHeartbeat publishes the latest heartbeat time.
func SetHeartbeat(at time.Time) {
	LastHeartbeat.Set(float64(at.Unix()))
}
