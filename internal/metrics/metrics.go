package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Posts submitted for ingest
	PostsReceived = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "postreach_posts_received_total",
			Help: "Total number of posts received for ingest",
		},
	)

	// Posts written, per backend
	PostsStored = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "postreach_posts_stored_total",
			Help: "Total number of posts written to a storage backend",
		},
		[]string{"backend"}, // backend: db, csv
	)

	// Posts rejected as already stored
	PostsDuplicate = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "postreach_posts_duplicate_total",
			Help: "Total number of posts skipped as duplicates",
		},
	)

	// Backend write failures
	StorageWriteErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "postreach_storage_write_errors_total",
			Help: "Total number of failed batch writes per backend",
		},
		[]string{"backend"},
	)

	// Outbound mail outcomes
	EmailsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "postreach_emails_processed_total",
			Help: "Total number of outbound emails attempted",
		},
		[]string{"path", "status"}, // path: sync, job; status: sent, failed
	)

	// Background job runs by terminal state
	EmailJobRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "postreach_email_job_runs_total",
			Help: "Total number of background email job runs",
		},
		[]string{"result"}, // result: completed, failed
	)

	// HTTP request latency (seconds)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"method", "path", "status"},
	)
)

// RecordBatch counts the outcome of one ingested batch
func RecordBatch(received, duplicates int, stored map[string]int) {
	PostsReceived.Add(float64(received))
	PostsDuplicate.Add(float64(duplicates))
	for backend, n := range stored {
		PostsStored.WithLabelValues(backend).Add(float64(n))
	}
}

// IncrementStorageWriteError counts a failed write to backend
func IncrementStorageWriteError(backend string) {
	StorageWriteErrors.WithLabelValues(backend).Inc()
}

// IncrementEmail counts one delivery attempt
func IncrementEmail(path, status string) {
	EmailsProcessed.WithLabelValues(path, status).Inc()
}

// IncrementJobRun counts a finished background job
func IncrementJobRun(result string) {
	EmailJobRuns.WithLabelValues(result).Inc()
}

// RecordHTTPRequestDuration records HTTP request latency
func RecordHTTPRequestDuration(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}
