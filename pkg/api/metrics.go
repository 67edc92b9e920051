package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

// Metrics holds all Prometheus metrics for the API. Each instance owns its
// registry so several servers can live in one process.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP request metrics
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight *prometheus.GaugeVec

	// Store operation metrics
	dbOperationsTotal   *prometheus.CounterVec
	dbOperationDuration *prometheus.HistogramVec
	dbKeysTotal         prometheus.Gauge
	dbDataSizeBytes     prometheus.Gauge
	dbDeadBytes         prometheus.Gauge

	authRequestsTotal *prometheus.CounterVec
	healthChecksTotal *prometheus.CounterVec
}

// NewMetrics creates a registry and registers all metrics on it
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "actionkv_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),

		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "actionkv_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		httpRequestsInFlight: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "actionkv_http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed",
			},
			[]string{"method", "endpoint"},
		),

		dbOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "actionkv_db_operations_total",
				Help: "Total number of store operations",
			},
			[]string{"operation", "status"},
		),

		dbOperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "actionkv_db_operation_duration_seconds",
				Help:    "Store operation duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),

		dbKeysTotal: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "actionkv_db_keys_total",
				Help: "Number of live keys in the store",
			},
		),

		dbDataSizeBytes: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "actionkv_db_data_size_bytes",
				Help: "Size of the data file in bytes",
			},
		),

		dbDeadBytes: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "actionkv_db_dead_bytes",
				Help: "Bytes in the data file held by superseded records",
			},
		),

		authRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "actionkv_auth_requests_total",
				Help: "Total number of authentication requests",
			},
			[]string{"status"},
		),

		healthChecksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "actionkv_health_checks_total",
				Help: "Total number of health checks",
			},
			[]string{"status"},
		),
	}
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the registry backing these metrics
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint string, statusCode int, duration time.Duration) {
	statusCodeStr := strconv.Itoa(statusCode)

	m.httpRequestsTotal.WithLabelValues(method, endpoint, statusCodeStr).Inc()
	m.httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordDBOperation records a store operation
func (m *Metrics) RecordDBOperation(operation string, success bool, duration time.Duration) {
	m.dbOperationsTotal.WithLabelValues(operation, status(success)).Inc()
	m.dbOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// UpdateDBStats updates store statistics
func (m *Metrics) UpdateDBStats(keys int, dataSize, deadBytes int64) {
	m.dbKeysTotal.Set(float64(keys))
	m.dbDataSizeBytes.Set(float64(dataSize))
	m.dbDeadBytes.Set(float64(deadBytes))
}

// RecordAuthRequest records an authentication request
func (m *Metrics) RecordAuthRequest(success bool) {
	m.authRequestsTotal.WithLabelValues(status(success)).Inc()
}

// RecordHealthCheck records a health check
func (m *Metrics) RecordHealthCheck(success bool) {
	m.healthChecksTotal.WithLabelValues(status(success)).Inc()
}

func status(success bool) string {
	if success {
		return statusSuccess
	}
	return statusError
}

// InstrumentHandler instruments an HTTP handler with metrics
func (m *Metrics) InstrumentHandler(method, endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		gauge := m.httpRequestsInFlight.WithLabelValues(method, endpoint)
		gauge.Inc()
		defer gauge.Dec()

		// Capture the status code
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		handler(rw, r)

		m.RecordHTTPRequest(method, endpoint, rw.statusCode, time.Since(start))
	}
}

// InstrumentAuthMiddleware instruments the authentication middleware
func (m *Metrics) InstrumentAuthMiddleware(next func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hasAPIKey := r.Header.Get("X-API-Key") != ""

			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next(h).ServeHTTP(rw, r)

			if hasAPIKey {
				m.RecordAuthRequest(rw.statusCode != http.StatusUnauthorized)
			}
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
