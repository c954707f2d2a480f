package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Histogram bucket definitions.
var (
	httpDurationBuckets   = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	commitDurationBuckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}
)

// Metrics holds all Prometheus metric instruments for the service.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Draft lifecycle metrics
	DraftsCreatedTotal    prometheus.Counter
	DraftExpirationsTotal prometheus.Counter

	// Phase commit metrics
	PhaseCommitsTotal   *prometheus.CounterVec
	PhaseCommitDuration *prometheus.HistogramVec

	// Upload metrics
	UploadsTotal *prometheus.CounterVec

	// Backend metrics
	BackendCircuitBreakerState prometheus.Gauge
}

// NewMetrics creates and registers all metric instruments on a private
// registry, alongside the standard Go and process collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "listingd_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path_pattern", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "listingd_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: httpDurationBuckets,
		}, []string{"method", "path_pattern"}),

		DraftsCreatedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "listingd_drafts_created_total",
			Help: "Total number of drafts created.",
		}),
		DraftExpirationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "listingd_draft_expirations_total",
			Help: "Total number of drafts marked expired.",
		}),

		PhaseCommitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "listingd_phase_commits_total",
			Help: "Total number of phase commit attempts.",
		}, []string{"step", "status"}),
		PhaseCommitDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "listingd_phase_commit_duration_seconds",
			Help:    "Phase commit duration in seconds, upstream call included.",
			Buckets: commitDurationBuckets,
		}, []string{"step"}),

		UploadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "listingd_uploads_total",
			Help: "Total number of asset upload attempts.",
		}, []string{"status"}),

		BackendCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "listingd_backend_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.DraftsCreatedTotal,
		m.DraftExpirationsTotal,
		m.PhaseCommitsTotal,
		m.PhaseCommitDuration,
		m.UploadsTotal,
		m.BackendCircuitBreakerState,
	)

	return m
}

// Handler returns the Prometheus scrape handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordHTTPRequest records per-request metrics keyed by route pattern.
func (m *Metrics) RecordHTTPRequest(method, pathPattern string, status int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, pathPattern, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, pathPattern).Observe(duration.Seconds())
}

// RecordDraftCreated records a new draft.
func (m *Metrics) RecordDraftCreated() {
	m.DraftsCreatedTotal.Inc()
}

// RecordDraftExpired records a draft transitioned to the expired phase.
func (m *Metrics) RecordDraftExpired() {
	m.DraftExpirationsTotal.Inc()
}

// RecordPhaseCommit records one commit attempt for a workflow step.
// status is "ok" or "failed".
func (m *Metrics) RecordPhaseCommit(step int, status string, duration time.Duration) {
	label := strconv.Itoa(step)
	m.PhaseCommitsTotal.WithLabelValues(label, status).Inc()
	m.PhaseCommitDuration.WithLabelValues(label).Observe(duration.Seconds())
}

// RecordUpload records one asset upload attempt. status is "ok" or "failed".
func (m *Metrics) RecordUpload(status string) {
	m.UploadsTotal.WithLabelValues(status).Inc()
}

// SetCircuitBreakerState publishes the backend breaker state.
func (m *Metrics) SetCircuitBreakerState(state float64) {
	m.BackendCircuitBreakerState.Set(state)
}
