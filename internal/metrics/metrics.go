// Package metrics provides Prometheus metrics for the tradewatch dashboard
// client: signal stream health, event decoding, notification dispatch, and
// refresh fetch activity. Metrics are exposed via the /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the dashboard client.
type Metrics struct {
	// Stream metrics
	StreamReconnects prometheus.Counter // Reconnection attempts scheduled
	StreamExhausted  prometheus.Counter // Times the retry budget was consumed
	ConnectionState  prometheus.Gauge   // Current connection state (enum ordinal)

	// Event metrics
	EventsReceived prometheus.Counter // Push frames decoded successfully
	DecodeErrors   prometheus.Counter // Push frames rejected by the decoder

	// Signal store metrics
	SignalsActive   prometheus.Gauge   // Records currently held by the store
	SignalEvictions prometheus.Counter // Records dropped by the retention bound

	// Notification metrics
	Notifications prometheus.Counter // User-facing notifications dispatched

	// Refresh fetch metrics
	RefreshFetches  prometheus.Counter   // Periodic refresh fetches issued
	RefreshErrors   prometheus.Counter   // Refresh fetches that failed
	RefreshDuration prometheus.Histogram // Refresh fetch round-trip time
}

// New creates and registers all metrics using the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics with a custom registry (useful for testing).
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		StreamReconnects: factory.NewCounter(prometheus.CounterOpts{
			Name: "stream_reconnects_total",
			Help: "Total number of signal stream reconnection attempts",
		}),
		StreamExhausted: factory.NewCounter(prometheus.CounterOpts{
			Name: "stream_exhausted_total",
			Help: "Total number of times the reconnect budget was exhausted",
		}),
		ConnectionState: factory.NewGauge(prometheus.GaugeOpts{
			Name: "stream_connection_state",
			Help: "Current connection state (0=disconnected 1=connecting 2=connected 3=reconnecting 4=exhausted)",
		}),
		EventsReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "stream_events_received_total",
			Help: "Total number of push events decoded successfully",
		}),
		DecodeErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "stream_decode_errors_total",
			Help: "Total number of push messages rejected by the decoder",
		}),
		SignalsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "signals_active",
			Help: "Number of signal records currently held",
		}),
		SignalEvictions: factory.NewCounter(prometheus.CounterOpts{
			Name: "signal_evictions_total",
			Help: "Total number of signal records evicted by the retention bound",
		}),
		Notifications: factory.NewCounter(prometheus.CounterOpts{
			Name: "notifications_total",
			Help: "Total number of user-facing notifications dispatched",
		}),
		RefreshFetches: factory.NewCounter(prometheus.CounterOpts{
			Name: "refresh_fetches_total",
			Help: "Total number of periodic signal refresh fetches issued",
		}),
		RefreshErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "refresh_errors_total",
			Help: "Total number of refresh fetches that failed",
		}),
		RefreshDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "refresh_duration_seconds",
			Help:    "Refresh fetch round-trip time in seconds",
			Buckets: prometheus.DefBuckets,
		}),
	}
}
