// Package metrics holds the Prometheus collectors of the service.
//
// Every method is safe on a nil *Metrics so components can run without them.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Ingest outcomes used as the "outcome" label.
const (
	OutcomeStored       = "stored"
	OutcomeMalformed    = "malformed"
	OutcomeUnrecognized = "unrecognized"
	OutcomePersistError = "persist_error"
)

type Metrics struct {
	registry *prometheus.Registry

	messagesTotal     *prometheus.CounterVec
	commandsTotal     *prometheus.CounterVec
	httpRequestsTotal *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
	busConnected      prometheus.Gauge
}

// New builds the collectors on a private registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		messagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ambient_messages_total",
			Help: "MQTT messages handled by the subscriber, by record kind and outcome.",
		}, []string{"kind", "outcome"}),
		commandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ambient_commands_total",
			Help: "LED commands requested, by result.",
		}, []string{"result"}),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total count of HTTP requests processed by route and status.",
		}, []string{"route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request durations by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		busConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ambient_bus_connected",
			Help: "1 while the MQTT connection is up.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.messagesTotal,
		m.commandsTotal,
		m.httpRequestsTotal,
		m.httpDuration,
		m.busConnected,
	)
	return m
}

// Registry exposes the registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the exposition format for this registry only.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// MessageHandled counts one subscriber message. kind may be empty when the
// topic was not recognized.
func (m *Metrics) MessageHandled(kind, outcome string) {
	if m == nil {
		return
	}
	if kind == "" {
		kind = "none"
	}
	m.messagesTotal.WithLabelValues(kind, outcome).Inc()
}

// CommandSent counts one LED command by result ("published", "invalid", "failed").
func (m *Metrics) CommandSent(result string) {
	if m == nil {
		return
	}
	m.commandsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) SetBusConnected(up bool) {
	if m == nil {
		return
	}
	if up {
		m.busConnected.Set(1)
	} else {
		m.busConnected.Set(0)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

// WrapHandler records count and latency of every request to route.
func (m *Metrics) WrapHandler(route string, next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(recorder, r)

		m.httpRequestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}
