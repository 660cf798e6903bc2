package observer

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricsEnabled = true // Flag to control metric collection

	// Labels for inbound update metrics
	updateLabels = []string{"bot_id", "update_kind"}
	// Labels for ingestion outcome metrics
	ingestLabels = []string{"bot_id", "event_type", "result"}

	// Inbound update counters and durations
	UpdatesReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_core_updates_received_total",
			Help: "Total number of platform updates received, labeled by update kind.",
		},
		updateLabels,
	)
	UpdatesFailedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_core_updates_failed_total",
			Help: "Total number of updates that failed processing.",
		},
		updateLabels,
	)
	UpdateProcessingDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bot_core_update_processing_duration_seconds",
			Help:    "Histogram of update processing durations.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~20s
		},
		updateLabels,
	)

	// Ingestion pipeline outcomes (created, dedup_skip, window_skip, error)
	IngestResultsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_core_ingest_results_total",
			Help: "Total number of ingestion attempts, labeled by classified event type and result.",
		},
		ingestLabels,
	)

	// Stream publication outcomes
	StreamPublishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_core_stream_publish_total",
			Help: "Total number of event stream publish attempts, labeled by status.",
		},
		[]string{"event_type", "status"},
	)
)

// Metrics related to outbound webhook delivery
var (
	webhookLabels = []string{"bot_id", "outcome"}

	WebhookAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_core_webhook_attempts_total",
			Help: "Total number of outbound webhook delivery attempts, labeled by outcome.",
		},
		webhookLabels,
	)
	WebhookAttemptDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bot_core_webhook_attempt_duration_seconds",
			Help:    "Histogram of outbound webhook attempt durations.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
		},
		webhookLabels,
	)
)

// Labels for database operations
var (
	dbOperationLabels = []string{"operation", "entity", "status"}

	DatabaseOperationDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bot_core_db_operation_duration_seconds",
			Help:    "Histogram of database operation durations.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~16s
		},
		dbOperationLabels,
	)
)

// --- Broadcast worker pool metrics ---
var (
	broadcastLabels = []string{"bot_id", "status"}

	broadcastMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_core_broadcast_messages_total",
			Help: "Total number of broadcast messages processed by the worker pool, labeled by final status.",
		},
		broadcastLabels,
	)
	broadcastWorkersActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bot_core_broadcast_workers_active",
		Help: "Current number of active worker goroutines in the broadcast pool.",
	})
	broadcastQueueLength = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bot_core_broadcast_queue_length",
		Help: "Approximate number of recipients waiting in the broadcast worker pool queue.",
	})
)

// --- Owner notification metrics ---
var (
	notificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_core_notifications_total",
			Help: "Total number of owner notification attempts, labeled by status.",
		},
		[]string{"bot_id", "status"},
	)
)

// InitMetrics initializes the Prometheus metrics if enabled.
// Call this function during application startup.
func InitMetrics(enabled bool) {
	metricsEnabled = enabled
}

// IncUpdatesReceived increments the received counter for an update kind.
func IncUpdatesReceived(botID, updateKind string) {
	if !metricsEnabled {
		return
	}
	UpdatesReceivedTotal.WithLabelValues(botID, updateKind).Inc()
}

// IncUpdatesFailed increments the failed counter for an update kind.
func IncUpdatesFailed(botID, updateKind string) {
	if !metricsEnabled {
		return
	}
	UpdatesFailedTotal.WithLabelValues(botID, updateKind).Inc()
}

// ObserveUpdateProcessingDuration records the total time spent handling an update.
func ObserveUpdateProcessingDuration(botID, updateKind string, duration time.Duration) {
	if !metricsEnabled {
		return
	}
	UpdateProcessingDurationSeconds.WithLabelValues(botID, updateKind).Observe(duration.Seconds())
}

// IncIngestResult increments the ingestion outcome counter.
func IncIngestResult(botID, eventType, result string) {
	if !metricsEnabled {
		return
	}
	IngestResultsTotal.WithLabelValues(botID, eventType, result).Inc()
}

// IncStreamPublish increments the stream publish counter for a status.
func IncStreamPublish(eventType, status string) {
	if !metricsEnabled {
		return
	}
	StreamPublishTotal.WithLabelValues(eventType, status).Inc()
}

// IncWebhookAttempt increments the webhook attempt counter for an outcome.
func IncWebhookAttempt(botID, outcome string) {
	if !metricsEnabled {
		return
	}
	WebhookAttemptsTotal.WithLabelValues(botID, outcome).Inc()
}

// ObserveWebhookAttemptDuration records the duration of one delivery attempt.
func ObserveWebhookAttemptDuration(botID, outcome string, duration time.Duration) {
	if !metricsEnabled {
		return
	}
	WebhookAttemptDurationSeconds.WithLabelValues(botID, outcome).Observe(duration.Seconds())
}

// ObserveDbOperationDuration records the duration for a database operation.
func ObserveDbOperationDuration(operation, entity string, duration time.Duration, err error) {
	if !metricsEnabled {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	DatabaseOperationDurationSeconds.WithLabelValues(operation, entity, status).Observe(duration.Seconds())
}

// IncBroadcastMessage increments the broadcast message counter for a final status.
func IncBroadcastMessage(botID, status string) {
	if !metricsEnabled {
		return
	}
	broadcastMessagesTotal.WithLabelValues(botID, status).Inc()
}

// SetBroadcastWorkersActive updates the broadcast worker gauge.
func SetBroadcastWorkersActive(count int) {
	if !metricsEnabled {
		return
	}
	broadcastWorkersActive.Set(float64(count))
}

// SetBroadcastQueueLength updates the broadcast queue gauge.
func SetBroadcastQueueLength(length int) {
	if !metricsEnabled {
		return
	}
	broadcastQueueLength.Set(float64(length))
}

// IncNotification increments the owner notification counter for a status.
func IncNotification(botID, status string) {
	if !metricsEnabled {
		return
	}
	notificationsTotal.WithLabelValues(botID, status).Inc()
}

// SanitizeErrorType maps specific errors onto a coarse category.
// Keep this simple to avoid high cardinality.
func SanitizeErrorType(errStr string) string {
	if errStr == "" || errStr == "none" {
		return "none"
	}

	switch {
	case strings.Contains(errStr, "database"), strings.Contains(errStr, "SQL"), strings.Contains(errStr, "duplicate key"), strings.Contains(errStr, "constraint"), strings.Contains(errStr, "connection"):
		return "database"
	case strings.Contains(errStr, "validation failed"), strings.Contains(errStr, "bad request"), strings.Contains(errStr, "invalid"), strings.Contains(errStr, "missing field"):
		return "validation"
	case strings.Contains(errStr, "not found"), strings.Contains(errStr, "no rows"):
		return "not_found"
	case strings.Contains(errStr, "nats"), strings.Contains(errStr, "jetstream"):
		return "nats"
	case strings.Contains(errStr, "ssrf"), strings.Contains(errStr, "rejected"):
		return "ssrf"
	case strings.Contains(errStr, "timeout"), strings.Contains(errStr, "deadline exceeded"):
		return "timeout"
	case strings.Contains(errStr, "unmarshal"), strings.Contains(errStr, "json"):
		return "unmarshal"
	case strings.Contains(errStr, "panic"):
		return "panic"
	default:
		return "unknown"
	}
}
