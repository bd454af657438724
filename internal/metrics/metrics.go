// Package metrics provides Prometheus instrumentation for the position engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// WorkflowsTotal counts accounting workflows, partitioned by operation
	// and outcome.
	WorkflowsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stocksense_workflows_total",
		Help: "Total accounting workflows executed",
	}, []string{"operation", "status"})

	// AllocationRejections counts option trades rejected because their
	// premium allocation proportions did not sum to 1.0.
	AllocationRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stocksense_allocation_rejections_total",
		Help: "Option trades rejected by premium allocation validation",
	})

	// SnapshotLatency tracks lot snapshot replay latency in seconds.
	SnapshotLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "stocksense_snapshot_latency_seconds",
		Help:    "Lot snapshot replay latency in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// OpenOptionPositions tracks the number of currently open short
	// option positions.
	OpenOptionPositions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "stocksense_open_option_positions",
		Help: "Number of currently open short option positions",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "stocksense_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stocksense_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "stocksense_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Use the route pattern for path label to avoid high cardinality.
		path := r.URL.Path
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
