package prometheus

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RequestCounter counts all HTTP requests with labels
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"service", "method", "path", "status"},
	)

	// RequestDurationHistogram records request duration in seconds
	RequestDurationHistogram = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "method", "path", "status"},
	)

	// AccessDecisionCounter counts authorization decisions by outcome
	AccessDecisionCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "access_decisions_total",
			Help: "Total number of authorization decisions",
		},
		[]string{"service", "feature", "allowed"},
	)

	// PropagationRunCounter counts propagation runs by final status
	PropagationRunCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "propagation_runs_total",
			Help: "Total number of propagation runs by status",
		},
		[]string{"service", "scope_kind", "status"},
	)

	// PropagationTargetCounter counts per-target outcomes
	PropagationTargetCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "propagation_targets_total",
			Help: "Total number of propagation target outcomes",
		},
		[]string{"service", "result"},
	)

	// PropagationRejectionCounter counts rejected propagation requests
	PropagationRejectionCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "propagation_rejections_total",
			Help: "Total number of rejected propagation requests by kind",
		},
		[]string{"service", "kind"},
	)
)

// HTTPMetrics holds configuration and state for HTTP metrics collection
type HTTPMetrics struct {
	ServiceName string
	initialized bool
}

// NewHTTPMetrics creates a new HTTP metrics collector for a specific service
func NewHTTPMetrics(serviceName string) *HTTPMetrics {
	m := &HTTPMetrics{
		ServiceName: serviceName,
	}
	m.register()
	return m
}

// register registers the prometheus metrics if they haven't been registered already
func (m *HTTPMetrics) register() {
	if !m.initialized {
		prometheus.MustRegister(RequestCounter)
		prometheus.MustRegister(RequestDurationHistogram)
		prometheus.MustRegister(AccessDecisionCounter)
		prometheus.MustRegister(PropagationRunCounter)
		prometheus.MustRegister(PropagationTargetCounter)
		prometheus.MustRegister(PropagationRejectionCounter)
		m.initialized = true
	}
}

// Middleware creates an Echo middleware function that records HTTP request metrics
func (m *HTTPMetrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			// Record metrics after the request is processed
			status := c.Response().Status
			method := c.Request().Method
			path := c.Path()
			statusStr := strconv.Itoa(status)

			RequestCounter.WithLabelValues(m.ServiceName, method, path, statusStr).Inc()

			duration := time.Since(start).Seconds()
			RequestDurationHistogram.WithLabelValues(m.ServiceName, method, path, statusStr).Observe(duration)

			return err
		}
	}
}

// GetPrometheusHandler returns an HTTP handler for exposing Prometheus metrics
func GetPrometheusHandler() http.Handler {
	return promhttp.Handler()
}
