package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingestion metrics
	ReadingsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alert_engine_readings_processed_total",
			Help: "Total number of sensor readings processed",
		},
		[]string{"status"}, // accepted, rejected, duplicate, failed
	)

	EvaluationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "alert_engine_evaluation_duration_seconds",
			Help:    "End-to-end latency of one reading evaluation",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)

	// Alert lifecycle metrics
	AlertsCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alert_engine_alerts_created_total",
			Help: "Total number of alerts created, by rule type",
		},
		[]string{"type"},
	)

	AlertsResolvedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alert_engine_alerts_resolved_total",
			Help: "Total number of alerts resolved, by rule type",
		},
		[]string{"type"},
	)

	AlertsSuppressedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alert_engine_alerts_suppressed_total",
			Help: "Fire verdicts suppressed by the dedup/unresolved check",
		},
		[]string{"type"},
	)

	// Replication sink metrics
	ReplicationFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alert_engine_replication_failures_total",
			Help: "Best-effort mirror writes that failed, by operation",
		},
		[]string{"op"}, // reading, alert, resolution
	)

	// Outbox metrics
	OutboxPending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "alert_engine_outbox_pending",
			Help: "Alert-created events waiting to be published",
		},
	)

	OutboxPublishedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "alert_engine_outbox_published_total",
			Help: "Alert-created events successfully published",
		},
	)

	OutboxPublishRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "alert_engine_outbox_publish_retries_total",
			Help: "Publish attempts that failed and will be retried",
		},
	)
)
