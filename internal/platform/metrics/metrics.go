package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the watcher pipeline.
type Metrics struct {
	MessagesProcessed prometheus.Counter
	MessagesDropped   prometheus.Counter
	TransientFailures prometheus.Counter
	GroupsEmitted     prometheus.Counter
	EventsDispatched  prometheus.Counter
	SinkDeliveries    *prometheus.CounterVec
	SinkFailures      *prometheus.CounterVec
	NamingFallbacks   prometheus.Counter
	NamingBreakerOpen prometheus.Gauge
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		MessagesProcessed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "iam_watcher_messages_processed_total",
			Help: "Total number of recognized messages processed to completion",
		}),
		MessagesDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "iam_watcher_messages_dropped_total",
			Help: "Total number of unparsable or unrecognized messages dropped",
		}),
		TransientFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "iam_watcher_messages_transient_failures_total",
			Help: "Total number of messages that failed processing and were handed back for redelivery",
		}),
		GroupsEmitted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "iam_watcher_change_groups_emitted_total",
			Help: "Total number of change groups emitted by the delta engines",
		}),
		EventsDispatched: promauto.NewCounter(prometheus.CounterOpts{
			Name: "iam_watcher_events_dispatched_total",
			Help: "Total number of change events handed to the destination layer",
		}),
		SinkDeliveries: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "iam_watcher_sink_deliveries_total",
			Help: "Total number of successful deliveries per destination",
		}, []string{"destination"}),
		SinkFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "iam_watcher_sink_failures_total",
			Help: "Total number of failed deliveries per destination",
		}, []string{"destination"}),
		NamingFallbacks: promauto.NewCounter(prometheus.CounterOpts{
			Name: "iam_watcher_naming_fallbacks_total",
			Help: "Total number of resource name lookups that degraded to fallback values",
		}),
		NamingBreakerOpen: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "iam_watcher_naming_breaker_open",
			Help: "Whether the naming lookup circuit breaker is open (1) or closed (0)",
		}),
	}
}

// The Inc*/Set* helpers are nil-safe so tests can pass a nil *Metrics without
// re-registering collectors on the default registry.

// IncProcessed increments the processed-message counter.
func (m *Metrics) IncProcessed() {
	if m != nil {
		m.MessagesProcessed.Inc()
	}
}

// IncDropped increments the dropped-message counter.
func (m *Metrics) IncDropped() {
	if m != nil {
		m.MessagesDropped.Inc()
	}
}

// IncTransientFailure increments the transient-failure counter.
func (m *Metrics) IncTransientFailure() {
	if m != nil {
		m.TransientFailures.Inc()
	}
}

// AddGroupsEmitted adds to the emitted change-group counter.
func (m *Metrics) AddGroupsEmitted(n int) {
	if m != nil {
		m.GroupsEmitted.Add(float64(n))
	}
}

// IncEventsDispatched increments the dispatched-event counter.
func (m *Metrics) IncEventsDispatched() {
	if m != nil {
		m.EventsDispatched.Inc()
	}
}

// IncSinkDelivery increments the delivery counter for a destination.
func (m *Metrics) IncSinkDelivery(dest string) {
	if m != nil {
		m.SinkDeliveries.WithLabelValues(dest).Inc()
	}
}

// IncSinkFailure increments the failure counter for a destination.
func (m *Metrics) IncSinkFailure(dest string) {
	if m != nil {
		m.SinkFailures.WithLabelValues(dest).Inc()
	}
}

// IncNamingFallback increments the naming-fallback counter.
func (m *Metrics) IncNamingFallback() {
	if m != nil {
		m.NamingFallbacks.Inc()
	}
}

// SetNamingBreakerOpen records the naming circuit breaker state.
func (m *Metrics) SetNamingBreakerOpen(open bool) {
	if m == nil {
		return
	}
	if open {
		m.NamingBreakerOpen.Set(1)
	} else {
		m.NamingBreakerOpen.Set(0)
	}
}
