package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingestion metrics
	EventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "centrallog_events_total",
			Help: "Total number of raw events processed",
		},
		[]string{"source", "status"},
	)

	BatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "centrallog_ingest_batch_size",
			Help:    "Number of events per batch request",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		},
	)

	// Normalization metrics
	NormalizationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "centrallog_normalization_duration_seconds",
			Help:    "Duration of event normalization in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	NormalizationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "centrallog_normalization_errors_total",
			Help: "Total number of normalization errors by kind",
		},
		[]string{"kind"},
	)

	// Storage metrics
	StorageDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "centrallog_storage_duration_seconds",
			Help:    "Duration of log event writes in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	StorageErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "centrallog_storage_errors_total",
			Help: "Total number of log event write failures",
		},
	)

	// Correlation metrics
	CorrelationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "centrallog_correlation_errors_total",
			Help: "Total number of correlation rule failures",
		},
		[]string{"rule"},
	)

	AlertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "centrallog_alerts_total",
			Help: "Alert lifecycle transitions by rule and action",
		},
		[]string{"rule", "action"},
	)

	// Downstream metrics
	ConsumerMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "centrallog_consumer_messages_total",
			Help: "Kafka messages consumed by outcome",
		},
		[]string{"status"},
	)

	IndexErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "centrallog_index_errors_total",
			Help: "Total number of search index write failures",
		},
	)

	NotifyErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "centrallog_notify_errors_total",
			Help: "Total number of alert notification publish failures",
		},
	)
)
