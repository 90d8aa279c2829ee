// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Channel metrics
	ChannelState        prometheus.Gauge
	ChannelConnects     prometheus.Counter
	ReconnectsScheduled prometheus.Counter

	// Message metrics
	MessagesReceived prometheus.Counter
	MessagesDropped  *prometheus.CounterVec
	EventsPublished  *prometheus.CounterVec
	FeedSize         prometheus.Gauge
	EventsArchived   prometheus.Counter

	// Analysis request metrics
	RequestLatency *prometheus.HistogramVec
	RequestErrors  *prometheus.CounterVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "pert_dashboard"
	}

	return &Metrics{
		ChannelState: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "channel",
			Name:      "state",
			Help:      "Current channel state (0=disconnected, 1=connecting, 2=connected, 3=reconnecting)",
		}),
		ChannelConnects: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "channel",
			Name:      "connects_total",
			Help:      "Total number of successful channel opens",
		}),
		ReconnectsScheduled: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "channel",
			Name:      "reconnects_scheduled_total",
			Help:      "Total number of reconnect timers scheduled",
		}),

		MessagesReceived: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "messages_received_total",
			Help:      "Total number of raw push messages received",
		}),
		MessagesDropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "messages_dropped_total",
			Help:      "Total number of messages dropped by reason",
		}, []string{"reason"}),
		EventsPublished: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "events_published_total",
			Help:      "Total number of normalized events appended to the feed by kind",
		}, []string{"kind"}),
		FeedSize: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "size",
			Help:      "Current number of events in the update feed",
		}),
		EventsArchived: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "archive",
			Name:      "events_total",
			Help:      "Total number of events written to the event archive",
		}),

		RequestLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "request_latency_seconds",
			Help:      "Analysis engine request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		RequestErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "request_errors_total",
			Help:      "Total number of failed analysis engine requests",
		}, []string{"operation"}),

		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// SetChannelState records the current channel state.
func SetChannelState(state int) {
	DefaultMetrics.ChannelState.Set(float64(state))
}

// RecordConnect increments the successful connect counter.
func RecordConnect() {
	DefaultMetrics.ChannelConnects.Inc()
}

// RecordReconnectScheduled increments the reconnect timer counter.
func RecordReconnectScheduled() {
	DefaultMetrics.ReconnectsScheduled.Inc()
}

// RecordMessageReceived increments the raw message counter.
func RecordMessageReceived() {
	DefaultMetrics.MessagesReceived.Inc()
}

// RecordMessageDropped records a dropped message.
func RecordMessageDropped(reason string) {
	DefaultMetrics.MessagesDropped.WithLabelValues(reason).Inc()
}

// RecordEventPublished records a feed append.
func RecordEventPublished(kind string, feedSize int) {
	DefaultMetrics.EventsPublished.WithLabelValues(kind).Inc()
	DefaultMetrics.FeedSize.Set(float64(feedSize))
}

// UpdateFeedSize updates the feed size gauge.
func UpdateFeedSize(size int) {
	DefaultMetrics.FeedSize.Set(float64(size))
}

// RecordEventArchived increments the archive counter.
func RecordEventArchived() {
	DefaultMetrics.EventsArchived.Inc()
}

// RecordRequest records analysis request latency and failures.
func RecordRequest(operation string, seconds float64, err error) {
	DefaultMetrics.RequestLatency.WithLabelValues(operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.RequestErrors.WithLabelValues(operation).Inc()
	}
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
