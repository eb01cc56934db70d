// Package metrics exposes Prometheus metrics for turns and the HTTP API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/easeaico/project-nudge/internal/pipeline"
)

var (
	httpDurationBuckets = []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10}
	scoreBuckets        = []float64{1, 2, 3, 4, 5}
)

// Manager owns a registry and the collectors registered on it. A disabled Manager accepts every
// call and records nothing.
type Manager struct {
	registry *prometheus.Registry
	enabled  bool

	turns         *prometheus.CounterVec
	tones         *prometheus.CounterVec
	scores        prometheus.Histogram
	degradations  *prometheus.CounterVec
	conflictRetry prometheus.Counter
	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
}

// NewManager returns a Manager. When enabled is false nothing is registered.
func NewManager(enabled bool) *Manager {
	if !enabled {
		return &Manager{}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Manager{registry: registry, enabled: true}
	m.turns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nudge_turns_total",
		Help: "Turns processed, by outcome and reason.",
	}, []string{"outcome", "reason"})
	m.tones = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nudge_tone_total",
		Help: "Emitted tactic nudges by tone.",
	}, []string{"tone"})
	m.scores = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "nudge_score",
		Help:    "Nudging score per turn.",
		Buckets: scoreBuckets,
	})
	m.degradations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nudge_degradations_total",
		Help: "Turns that continued without a failed component.",
	}, []string{"component"})
	m.conflictRetry = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "nudge_conflict_retries_total",
		Help: "Ledger steps retried after a concurrent modification.",
	})
	m.httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests.",
	}, []string{"method", "route", "status"})
	m.httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request duration in seconds.",
		Buckets: httpDurationBuckets,
	}, []string{"method", "route"})

	registry.MustRegister(m.turns, m.tones, m.scores, m.degradations, m.conflictRetry, m.httpRequests, m.httpDuration)
	return m
}

// Enabled reports whether metrics are collected.
func (m *Manager) Enabled() bool {
	return m.enabled
}

// Registry returns the underlying registry, or nil when disabled.
func (m *Manager) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Manager) Handler() http.Handler {
	if !m.enabled {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveTurn implements pipeline.Recorder.
func (m *Manager) ObserveTurn(res pipeline.Result) {
	if !m.enabled {
		return
	}
	outcome := "emitted"
	if res.Outcome.Suppressed {
		outcome = "suppressed"
	}
	m.turns.WithLabelValues(outcome, string(res.Outcome.Reason)).Inc()
	if res.Outcome.Tone != "" {
		m.tones.WithLabelValues(string(res.Outcome.Tone)).Inc()
	}
	m.scores.Observe(float64(res.Score))
}

// ObserveDegradation implements pipeline.Recorder.
func (m *Manager) ObserveDegradation(component string) {
	if !m.enabled {
		return
	}
	m.degradations.WithLabelValues(component).Inc()
}

// ObserveConflictRetry implements pipeline.Recorder.
func (m *Manager) ObserveConflictRetry() {
	if !m.enabled {
		return
	}
	m.conflictRetry.Inc()
}

// RecordHTTPRequest records one served request. route is the matched route pattern, not the
// raw path, to keep label cardinality bounded.
func (m *Manager) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	if !m.enabled {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
