package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics wraps a private Prometheus registry. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry        *prometheus.Registry
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	errors          *prometheus.CounterVec
	authOutcomes    *prometheus.CounterVec
	sweepRemoved    *prometheus.CounterVec
	connections     prometheus.Gauge
	deliveries      *prometheus.CounterVec
}

// NewMetrics registers all collectors on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by route, method and status.",
		}, []string{"path", "method", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"path", "method"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "HTTP error responses by error code.",
		}, []string{"path", "method", "code"}),
		authOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_outcomes_total",
			Help: "Token lifecycle outcomes by operation and result.",
		}, []string{"operation", "result"}),
		sweepRemoved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_sweep_removed_total",
			Help: "Entries removed by the periodic sweep.",
		}, []string{"store"}),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "realtime_connections",
			Help: "Principals with a registered realtime connection.",
		}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "realtime_deliveries_total",
			Help: "Targeted event deliveries by event and outcome.",
		}, []string{"event", "outcome"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests, m.requestDuration, m.errors, m.authOutcomes,
		m.sweepRemoved, m.connections, m.deliveries,
	)
	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(path, method, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(path, method).Observe(duration.Seconds())
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(path, method, code).Inc()
}

// RecordAuth counts a lifecycle outcome such as ("refresh", "revoked").
func (m *Metrics) RecordAuth(operation, result string) {
	if m == nil {
		return
	}
	m.authOutcomes.WithLabelValues(operation, result).Inc()
}

// RecordSweep adds the number of rows a sweep removed from store.
func (m *Metrics) RecordSweep(store string, removed int) {
	if m == nil || removed <= 0 {
		return
	}
	m.sweepRemoved.WithLabelValues(store).Add(float64(removed))
}

// SetConnections reports the current registry size.
func (m *Metrics) SetConnections(n int) {
	if m == nil {
		return
	}
	m.connections.Set(float64(n))
}

// RecordDelivery counts an emit outcome.
func (m *Metrics) RecordDelivery(event, outcome string) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(event, outcome).Inc()
}
