package metrics

import (
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "reqflow"

// Metrics groups the workflow collectors.
type Metrics struct {
	registry *prometheus.Registry

	requestsCreated    prometheus.Counter
	transitions        *prometheus.CounterVec
	operationDuration  *prometheus.HistogramVec
	operationErrors    *prometheus.CounterVec
	eventsPublished    *prometheus.CounterVec
	eventsDropped      *prometheus.CounterVec
	sinkFailures       *prometheus.CounterVec
	notifications      *prometheus.CounterVec
	outboxPending      prometheus.Gauge
	subscribersCurrent prometheus.Gauge
}

// New builds a Metrics value with a private registry that also carries the
// Go runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requestsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_created_total",
			Help:      "Requests created.",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      "Committed request transitions by target department and status.",
		}, []string{"department", "status"}),
		operationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Duration of workflow operations including lock wait.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		operationErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operation_errors_total",
			Help:      "Failed workflow operations by error kind.",
		}, []string{"operation", "kind"}),
		eventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Events published by kind.",
		}, []string{"kind"}),
		eventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Events dropped because a subscriber buffer was full.",
		}, []string{"scope"}),
		sinkFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_sink_failures_total",
			Help:      "Events an external sink failed to deliver.",
		}, []string{"sink"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Outbox notification attempts by kind and outcome.",
		}, []string{"kind", "outcome"}),
		outboxPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "outbox_pending",
			Help:      "Undelivered outbox messages.",
		}),
		subscribersCurrent: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "event_subscribers",
			Help:      "Live event stream subscribers.",
		}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requestsCreated,
		m.transitions,
		m.operationDuration,
		m.operationErrors,
		m.eventsPublished,
		m.eventsDropped,
		m.sinkFailures,
		m.notifications,
		m.outboxPending,
		m.subscribersCurrent,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) RequestCreated() {
	if m == nil {
		return
	}
	m.requestsCreated.Inc()
}

// Transition counts a committed move into department/status.
func (m *Metrics) Transition(department, status string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(department, status).Inc()
}

// ObserveOperation records how long operation took and, on failure, the
// error kind.
func (m *Metrics) ObserveOperation(operation string, started time.Time, errKind string) {
	if m == nil {
		return
	}
	m.operationDuration.WithLabelValues(operation).Observe(time.Since(started).Seconds())
	if errKind != "" {
		m.operationErrors.WithLabelValues(operation, errKind).Inc()
	}
}

// Notification counts an outbox delivery attempt. outcome is one of
// delivered, retry or failed.
func (m *Metrics) Notification(kind, outcome string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) SetOutboxPending(n int) {
	if m == nil {
		return
	}
	m.outboxPending.Set(float64(n))
}

// SubscriberJoined and SubscriberLeft track live stream clients.
func (m *Metrics) SubscriberJoined() {
	if m == nil {
		return
	}
	m.subscribersCurrent.Inc()
}

func (m *Metrics) SubscriberLeft() {
	if m == nil {
		return
	}
	m.subscribersCurrent.Dec()
}

// EventPublished implements events.Observer.
func (m *Metrics) EventPublished(kind string) {
	if m == nil {
		return
	}
	m.eventsPublished.WithLabelValues(kind).Inc()
}

// EventDropped implements events.Observer. The channel is reduced to its
// scope so request ids never become label values.
func (m *Metrics) EventDropped(channel string) {
	if m == nil {
		return
	}
	m.eventsDropped.WithLabelValues(channelScope(channel)).Inc()
}

// SinkFailed implements events.Observer.
func (m *Metrics) SinkFailed(sink string) {
	if m == nil {
		return
	}
	m.sinkFailures.WithLabelValues(sink).Inc()
}

func channelScope(channel string) string {
	if scope, _, ok := strings.Cut(channel, ":"); ok {
		return scope
	}
	return channel
}
