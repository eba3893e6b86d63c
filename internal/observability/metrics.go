package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for pipeline self-monitoring. It uses
// a custom registry to avoid polluting the global default, so an embedding
// application can mount it under its own path without collisions.
type Metrics struct {
	Registry *prometheus.Registry

	// Queue metrics
	QueueDepth       prometheus.Gauge
	QueueRetriable   prometheus.Gauge
	QueueExpired     prometheus.Gauge
	QueueBytes       prometheus.Gauge
	EventsQueued     prometheus.Counter
	EventsSent       prometheus.Counter
	EventsDropped    *prometheus.CounterVec
	EventsExpired    prometheus.Counter
	EventsFailed     prometheus.Counter
	EncryptionFallen prometheus.Gauge

	// Circuit breaker metrics
	BreakerState *prometheus.GaugeVec

	// Transport metrics
	TransportRequestDuration prometheus.Histogram
	TransportRequestTotal    *prometheus.CounterVec
	CompressionRatio         prometheus.Gauge

	// Flush cycle metrics
	FlushDuration prometheus.Histogram

	// Observer metrics
	ObserverNotificationsDropped prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all Prometheus metrics
// registered on a fresh, private registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,

		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "luxanalytics_queue_depth",
			Help: "Current number of events held in the queue.",
		}),
		QueueRetriable: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "luxanalytics_queue_retriable",
			Help: "Current number of queued events eligible for the next batch.",
		}),
		QueueExpired: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "luxanalytics_queue_expired",
			Help: "Current number of queued events already past their TTL but not yet swept.",
		}),
		QueueBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "luxanalytics_queue_bytes",
			Help: "Approximate serialized size of the queue in bytes.",
		}),
		EventsQueued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "luxanalytics_events_queued_total",
			Help: "Total number of events accepted by track().",
		}),
		EventsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "luxanalytics_events_sent_total",
			Help: "Total number of events successfully delivered.",
		}),
		EventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "luxanalytics_events_dropped_total",
			Help: "Total number of events dropped, by reason.",
		}, []string{"reason"}),
		EventsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "luxanalytics_events_expired_total",
			Help: "Total number of events removed by TTL sweep.",
		}),
		EventsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "luxanalytics_events_failed_total",
			Help: "Total number of events included in a failed delivery attempt.",
		}),
		EncryptionFallen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "luxanalytics_encryption_degraded",
			Help: "1 if the queue is currently persisting unencrypted because the key store is unavailable.",
		}),

		BreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "luxanalytics_breaker_state",
			Help: "Circuit breaker state per endpoint (0=closed, 1=half_open, 2=open).",
		}, []string{"endpoint"}),

		TransportRequestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "luxanalytics_transport_request_duration_seconds",
			Help:    "Duration of outbound delivery HTTP requests in seconds.",
			Buckets: prometheus.DefBuckets,
		}),
		TransportRequestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "luxanalytics_transport_requests_total",
			Help: "Total number of delivery HTTP requests, by outcome.",
		}, []string{"outcome"}),
		CompressionRatio: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "luxanalytics_compression_ratio",
			Help: "Most recent compressed/original body size ratio.",
		}),

		FlushDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "luxanalytics_flush_duration_seconds",
			Help:    "Duration of flush() calls in seconds.",
			Buckets: prometheus.DefBuckets,
		}),

		ObserverNotificationsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "luxanalytics_observer_notifications_dropped_total",
			Help: "Total number of observer notifications dropped because an observer's buffer was full.",
		}),
	}

	reg.MustRegister(
		m.QueueDepth,
		m.QueueRetriable,
		m.QueueExpired,
		m.QueueBytes,
		m.EventsQueued,
		m.EventsSent,
		m.EventsDropped,
		m.EventsExpired,
		m.EventsFailed,
		m.EncryptionFallen,
		m.BreakerState,
		m.TransportRequestDuration,
		m.TransportRequestTotal,
		m.CompressionRatio,
		m.FlushDuration,
		m.ObserverNotificationsDropped,
	)

	return m
}

// BreakerStateValue maps a breaker state name to the numeric gauge value.
func BreakerStateValue(state string) float64 {
	switch state {
	case "closed":
		return 0
	case "half_open":
		return 1
	case "open":
		return 2
	default:
		return -1
	}
}
