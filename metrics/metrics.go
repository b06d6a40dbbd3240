// Package metrics holds the Prometheus collectors for generation jobs and the HTTP API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	GenerationJobs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mediastudio",
			Subsystem: "generation",
			Name:      "jobs_total",
			Help:      "Total number of generation jobs by outcome.",
		},
		[]string{"provider", "type", "status"},
	)

	GenerationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mediastudio",
			Subsystem: "generation",
			Name:      "duration_seconds",
			Help:      "Wall time of generation jobs, submission to result.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10), // 0.5s to ~4m
		},
		[]string{"provider", "type"},
	)

	PollAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mediastudio",
			Subsystem: "generation",
			Name:      "poll_attempts_total",
			Help:      "Total number of job status polls sent to providers.",
		},
		[]string{"provider"},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mediastudio",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "status"},
	)
)

func init() {
	Registry.MustRegister(GenerationJobs, GenerationDuration, PollAttempts, httpRequests)
}

// ObserveJob records the outcome of one generation job.
func ObserveJob(provider, mediaType string, started time.Time, err error) {
	status := "succeeded"
	if err != nil {
		status = "failed"
	}
	GenerationJobs.WithLabelValues(provider, mediaType, status).Inc()
	GenerationDuration.WithLabelValues(provider, mediaType).Observe(time.Since(started).Seconds())
}

// Handler exposes the registry.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// InstrumentHandler counts requests by method and status code.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		httpRequests.WithLabelValues(r.Method, strconv.Itoa(rec.status)).Inc()
	})
}
