package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "messaging"

var (
	// MessagesSent messages persisted by SendMessage
	MessagesSent = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "messages_sent_total",
		Help:      "Messages appended to threads.",
	})

	// MarkReadFallbacks bulk mark-read failures that fell back to per-row upserts
	MarkReadFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "mark_read_fallback_total",
		Help:      "Bulk receipt operations that fell back to per-message upserts, by outcome.",
	}, []string{"outcome"})

	// DegradedReads read paths that returned empty data with a notice
	DegradedReads = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "degraded_reads_total",
		Help:      "Read operations answered with empty data after a storage failure.",
	}, []string{"operation"})

	// FeedEvents change events by direction and entity
	FeedEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "feed_events_total",
		Help:      "Change feed events published or delivered.",
	}, []string{"direction", "entity"})

	// SyncRefetches sync client refetches by view
	SyncRefetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sync_refetch_total",
		Help:      "Realtime sync client view refetches.",
	}, []string{"view", "result"})

	// TelemetryDropped telemetry events dropped because the sink queue was full
	TelemetryDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "telemetry_dropped_total",
		Help:      "Telemetry events dropped by a full sink queue.",
	})

	// StoreLatency store operation latency
	StoreLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "store_operation_seconds",
		Help:      "Message store operation latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"})
)
