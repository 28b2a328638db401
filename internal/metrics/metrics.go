// Package metrics provides Prometheus metrics for the dirsync client and server.
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
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dirsync_http_requests_total",
			Help: "Requests served, by route pattern and status",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dirsync_http_request_duration_seconds",
			Help:    "Time to serve a request; uploads dominate the upper buckets",
			Buckets: prometheus.ExponentialBuckets(0.005, 4, 9),
		},
		[]string{"method", "path"},
	)

	// Receiver metrics
	filesReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dirsync_files_received_total",
			Help: "Total number of uploaded files processed by the receiver",
		},
		[]string{"status"},
	)

	bytesReceivedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dirsync_bytes_received_total",
			Help: "Total bytes written to storage by the receiver",
		},
	)

	collisionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dirsync_collisions_total",
			Help: "Uploads stored under a timestamped name because the target already existed",
		},
	)

	timestampFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dirsync_timestamp_failures_total",
			Help: "Stored files whose timestamps could not be applied",
		},
	)

	// Alert metrics
	alertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dirsync_alerts_total",
			Help: "Operator alerts by delivery result",
		},
		[]string{"result"},
	)

	// Storage metrics
	storageOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dirsync_storage_operation_duration_seconds",
			Help:    "Storage backend operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend", "operation"},
	)

	storageOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dirsync_storage_operations_total",
			Help: "Total storage backend operations",
		},
		[]string{"backend", "operation", "status"},
	)

	// Client run metrics
	runsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dirsync_runs_total",
			Help: "Transfer runs by result",
		},
		[]string{"result"},
	)

	runDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dirsync_run_duration_seconds",
			Help:    "Duration of completed transfer runs",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 14),
		},
	)

	filesUploadedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dirsync_files_uploaded_total",
			Help: "Per-file upload outcomes on the client",
		},
		[]string{"outcome"},
	)

	ticksDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dirsync_ticks_dropped_total",
			Help: "Scheduler ticks dropped because a run was already active",
		},
	)

	runActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dirsync_run_active",
			Help: "1 while a transfer run is in progress",
		},
	)
)

// Handler serves the default registry for scraping.
func Handler() http.Handler {
	return promhttp.Handler()
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

func recordRequest(method, path string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordFileReceived records one stored (or failed) upload on the server.
func RecordFileReceived(bytes int64, success bool) {
	if bytes > 0 {
		bytesReceivedTotal.Add(float64(bytes))
	}
	filesReceivedTotal.WithLabelValues(statusLabel(success)).Inc()
}

// RecordCollision records an upload renamed to avoid overwriting.
func RecordCollision() {
	collisionsTotal.Inc()
}

// RecordTimestampFailure records a failure to restore file times.
func RecordTimestampFailure() {
	timestampFailuresTotal.Inc()
}

// RecordAlert records an alert delivery attempt.
func RecordAlert(delivered bool) {
	result := "sent"
	if !delivered {
		result = "failed"
	}
	alertsTotal.WithLabelValues(result).Inc()
}

// RecordStorageOperation records a storage backend operation.
func RecordStorageOperation(backend, operation string, duration time.Duration, success bool) {
	storageOperationDuration.WithLabelValues(backend, operation).Observe(duration.Seconds())
	storageOperationsTotal.WithLabelValues(backend, operation, statusLabel(success)).Inc()
}

// RecordRun records a finished transfer run.
func RecordRun(succeeded, failed int, duration time.Duration, aborted bool) {
	result := "completed"
	if aborted {
		result = "aborted"
	}
	runsTotal.WithLabelValues(result).Inc()
	runDuration.Observe(duration.Seconds())
	filesUploadedTotal.WithLabelValues("success").Add(float64(succeeded))
	filesUploadedTotal.WithLabelValues("failure").Add(float64(failed))
}

// RecordTickDropped records a scheduler tick dropped by the run guard.
func RecordTickDropped() {
	ticksDroppedTotal.Inc()
}

// SetRunActive flags whether a run is in progress.
func SetRunActive(active bool) {
	if active {
		runActive.Set(1)
	} else {
		runActive.Set(0)
	}
}

type statusWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *statusWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Middleware counts and times every request passing through next.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		// The mux fills in r.Pattern; unmatched paths share one label.
		path := r.Pattern
		if path == "" {
			path = "unmatched"
		}
		recordRequest(r.Method, path, rw.statusCode, time.Since(start))
	})
}
