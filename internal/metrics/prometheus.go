// Package metrics records crack job and relay metrics with Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Job outcomes used as the "outcome" label
const (
	OutcomeFound    = "found"
	OutcomeNotFound = "not_found"
	OutcomeError    = "error"
)

// Recorder implements relay.Observer and the job manager's metrics hooks
type Recorder struct {
	gatherer prometheus.Gatherer

	jobsTotal     *prometheus.CounterVec
	jobDuration   prometheus.Histogram
	jobsActive    prometheus.Gauge
	relayLines    prometheus.Counter
	relayFailures prometheus.Counter
}

// NewRecorder registers the worker metrics on reg. Pass a fresh
// prometheus.NewRegistry() in tests.
func NewRecorder(reg *prometheus.Registry) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		gatherer: reg,
		jobsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jwtworker_jobs_total",
				Help: "Total number of finished crack jobs by outcome",
			},
			[]string{"outcome"},
		),
		jobDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "jwtworker_job_duration_seconds",
				Help:    "Duration of crack jobs in seconds",
				Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 3600},
			},
		),
		jobsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "jwtworker_jobs_active",
				Help: "Number of crack jobs currently running",
			},
		),
		relayLines: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "jwtworker_relay_lines_total",
				Help: "Total number of output lines delivered to the backend",
			},
		),
		relayFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "jwtworker_relay_failures_total",
				Help: "Total number of output lines the backend did not accept",
			},
		),
	}
}

// JobStarted marks a job as active
func (r *Recorder) JobStarted() {
	r.jobsActive.Inc()
}

// JobFinished records a finished job
func (r *Recorder) JobFinished(outcome string, duration time.Duration) {
	r.jobsActive.Dec()
	r.jobsTotal.WithLabelValues(outcome).Inc()
	r.jobDuration.Observe(duration.Seconds())
}

// RelayDelivered implements relay.Observer
func (r *Recorder) RelayDelivered() {
	r.relayLines.Inc()
}

// RelayFailed implements relay.Observer
func (r *Recorder) RelayFailed() {
	r.relayFailures.Inc()
}

// Handler serves the registry in the Prometheus exposition format
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})
}
