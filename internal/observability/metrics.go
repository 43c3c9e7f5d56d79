package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service's prometheus collectors.
// Each instance owns its registry, so several servers (or tests) can coexist
// in one process.
type Metrics struct {
	RequestCount      *prometheus.CounterVec
	RequestDuration   *prometheus.HistogramVec
	ResponseSize      *prometheus.HistogramVec
	ActiveConnections prometheus.Gauge
	HealthStatus      prometheus.Gauge
	BuildInfo         *prometheus.GaugeVec

	registry *prometheus.Registry
	handler  http.Handler
}

func NewMetrics() *Metrics {
	m := &Metrics{
		RequestCount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint", "status_code"},
		),
		ResponseSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: prometheus.ExponentialBuckets(16, 4, 6),
			},
			[]string{"method", "endpoint", "status_code"},
		),
		ActiveConnections: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_active_connections",
				Help: "Number of active HTTP connections",
			},
		),
		HealthStatus: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "app_health_status",
				Help: "Application health status (1 = healthy, 0 = unhealthy)",
			},
		),
		BuildInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "app_build_info",
				Help: "Constant 1 labelled with the running version and environment",
			},
			[]string{"version", "environment"},
		),
		registry: prometheus.NewRegistry(),
	}

	m.registry.MustRegister(
		m.RequestCount,
		m.RequestDuration,
		m.ResponseSize,
		m.ActiveConnections,
		m.HealthStatus,
		m.BuildInfo,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m.handler = promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})

	return m
}

func (m *Metrics) RecordRequest(method, endpoint string, statusCode int, duration time.Duration, responseSize int64) {
	status := strconv.Itoa(statusCode)
	m.RequestCount.WithLabelValues(method, endpoint, status).Inc()
	m.RequestDuration.WithLabelValues(method, endpoint, status).Observe(duration.Seconds())
	m.ResponseSize.WithLabelValues(method, endpoint, status).Observe(float64(responseSize))
}

func (m *Metrics) SetHealthStatus(healthy bool) {
	if healthy {
		m.HealthStatus.Set(1)
	} else {
		m.HealthStatus.Set(0)
	}
}

func (m *Metrics) SetBuildInfo(version, environment string) {
	m.BuildInfo.Reset()
	m.BuildInfo.WithLabelValues(version, environment).Set(1)
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return m.handler
}
