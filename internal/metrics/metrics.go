// Package metrics exposes the console's own sync-layer telemetry: push
// channel health, decode failures, bus handler failures and REST outcomes.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	connectAttempts prometheus.Counter
	reconnects      prometheus.Counter
	phase           prometheus.Gauge
	decodeErrors    *prometheus.CounterVec
	messages        *prometheus.CounterVec
	handlerFailures *prometheus.CounterVec
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	actionRetries   prometheus.Counter
	staleFetches    *prometheus.CounterVec
}

// New registers every collector on a fresh registry owned by the returned
// Metrics.
func New(namespace string) *Metrics {
	r := prometheus.NewRegistry()
	r.MustRegister(collectors.NewGoCollector())

	m := &Metrics{
		registry:        r,
		connectAttempts: prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "push_connect_attempts_total"}),
		reconnects:      prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "push_reconnects_scheduled_total"}),
		phase:           prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "push_phase", Help: "0 disconnected, 1 connecting, 2 connected"}),
		decodeErrors:    prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "push_decode_errors_total"}, []string{"topic"}),
		messages:        prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "push_messages_total"}, []string{"topic"}),
		handlerFailures: prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "bus_handler_failures_total"}, []string{"kind"}),
		requests:        prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "api_requests_total"}, []string{"method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: namespace, Name: "api_request_duration_seconds"}, []string{"method", "route"}),
		actionRetries:   prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "action_retries_total"}),
		staleFetches:    prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "stale_fetches_dropped_total"}, []string{"resource"}),
	}
	r.MustRegister(
		m.connectAttempts, m.reconnects, m.phase, m.decodeErrors, m.messages,
		m.handlerFailures, m.requests, m.requestDuration, m.actionRetries, m.staleFetches,
	)
	return m
}

func (m *Metrics) ConnectAttempt()     { m.connectAttempts.Inc() }
func (m *Metrics) ReconnectScheduled() { m.reconnects.Inc() }
func (m *Metrics) SetPhase(p int)      { m.phase.Set(float64(p)) }

func (m *Metrics) DecodeError(topic string) { m.decodeErrors.WithLabelValues(topic).Inc() }
func (m *Metrics) Message(topic string)     { m.messages.WithLabelValues(topic).Inc() }

func (m *Metrics) HandlerFailure(kind string) { m.handlerFailures.WithLabelValues(kind).Inc() }

func (m *Metrics) Request(method, route string, status int, since time.Time) {
	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(method, route).Observe(time.Since(since).Seconds())
}

func (m *Metrics) ActionRetry() { m.actionRetries.Inc() }

func (m *Metrics) StaleFetch(resource string) { m.staleFetches.WithLabelValues(resource).Inc() }

// Value sums every series of the named family. It returns 0 for unknown
// names.
func (m *Metrics) Value(name string) float64 {
	families, err := m.registry.Gather()
	if err != nil {
		return 0
	}
	var sum float64
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			switch {
			case metric.GetCounter() != nil:
				sum += metric.GetCounter().GetValue()
			case metric.GetGauge() != nil:
				sum += metric.GetGauge().GetValue()
			}
		}
	}
	return sum
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
