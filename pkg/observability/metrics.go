package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the service
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Session metrics
	SessionsCreatedTotal prometheus.Counter
	SessionsRotatedTotal prometheus.Counter
	SessionsRevokedTotal prometheus.Counter

	// Login metrics
	LoginsTotal *prometheus.CounterVec

	// RBAC cache metrics
	CacheHitsTotal      prometheus.Counter
	CacheMissesTotal    prometheus.Counter
	CacheRefreshesTotal *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rbacd_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rbacd_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		SessionsCreatedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "rbacd_sessions_created_total",
				Help: "Total number of session token pairs created",
			},
		),
		SessionsRotatedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "rbacd_sessions_rotated_total",
				Help: "Total number of sessions rotated via refresh token",
			},
		),
		SessionsRevokedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "rbacd_sessions_revoked_total",
				Help: "Total number of sessions revoked by logout",
			},
		),
		LoginsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rbacd_logins_total",
				Help: "Total number of login attempts by outcome",
			},
			[]string{"outcome"},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "rbacd_rbac_cache_hits_total",
				Help: "Total number of RBAC cache hits",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "rbacd_rbac_cache_misses_total",
				Help: "Total number of RBAC cache misses",
			},
		),
		CacheRefreshesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rbacd_rbac_cache_refreshes_total",
				Help: "Total number of RBAC cache refreshes by trigger",
			},
			[]string{"trigger"},
		),
		registry: registry,
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.SessionsCreatedTotal,
		m.SessionsRotatedTotal,
		m.SessionsRevokedTotal,
		m.LoginsTotal,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.CacheRefreshesTotal,
	)

	return m
}

// Handler returns the HTTP handler exposing the metrics registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRequest records a completed HTTP request
func (m *Metrics) ObserveRequest(method, path string, status int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}
