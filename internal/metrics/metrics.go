// Package metrics exposes Prometheus collectors for pipeline runs.
//
// All methods are safe on a nil *Metrics, so callers that run without
// metrics pass nil instead of a no-op implementation.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "evoc"

// Metrics holds the pipeline collectors.
type Metrics struct {
	registry prometheus.Gatherer

	// StagesTotal counts finished agent stages.
	// Labels: agent, outcome (succeeded, failed)
	StagesTotal *prometheus.CounterVec

	// StageDuration measures wall time per agent stage, including retries.
	// Labels: agent
	StageDuration *prometheus.HistogramVec

	// RetriesTotal counts retries by kind (gateway, parse).
	// Labels: agent, kind
	RetriesTotal *prometheus.CounterVec

	// TokensTotal counts tokens billed per agent.
	// Labels: agent
	TokensTotal *prometheus.CounterVec

	// TruncationsTotal counts contexts that had to be cut to fit the ceiling.
	// Labels: agent
	TruncationsTotal *prometheus.CounterVec

	// PipelinesTotal counts sessions reaching a terminal state.
	// Labels: state (completed, failed, cancelled)
	PipelinesTotal *prometheus.CounterVec

	// ActivePipelines tracks sessions currently driven by a goroutine.
	ActivePipelines prometheus.Gauge

	// SummariesTotal counts rolling summaries produced.
	SummariesTotal prometheus.Counter
}

// New creates the collectors and registers them with reg. A nil reg uses a
// fresh private registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		StagesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "stages_total",
			Help:      "Agent stages finished, by agent and outcome",
		}, []string{"agent", "outcome"}),
		StageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Wall time of an agent stage including retries",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40, 80, 160},
		}, []string{"agent"}),
		RetriesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "retries_total",
			Help:      "Retries by agent and kind (gateway, parse)",
		}, []string{"agent", "kind"}),
		TokensTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "tokens_total",
			Help:      "Tokens billed per agent",
		}, []string{"agent"}),
		TruncationsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "context",
			Name:      "truncations_total",
			Help:      "Contexts truncated to fit the token ceiling",
		}, []string{"agent"}),
		PipelinesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "sessions_total",
			Help:      "Pipeline sessions by terminal state",
		}, []string{"state"}),
		ActivePipelines: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "active_sessions",
			Help:      "Pipeline sessions currently running",
		}),
		SummariesTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "context",
			Name:      "summaries_total",
			Help:      "Rolling context summaries produced",
		}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Stage records a finished stage.
func (m *Metrics) Stage(agent string, ok bool, d time.Duration, tokens int) {
	if m == nil {
		return
	}
	outcome := "succeeded"
	if !ok {
		outcome = "failed"
	}
	m.StagesTotal.WithLabelValues(agent, outcome).Inc()
	m.StageDuration.WithLabelValues(agent).Observe(d.Seconds())
	if tokens > 0 {
		m.TokensTotal.WithLabelValues(agent).Add(float64(tokens))
	}
}

// Retry records n retries of kind for agent.
func (m *Metrics) Retry(agent, kind string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.RetriesTotal.WithLabelValues(agent, kind).Add(float64(n))
}

// Truncated records a truncated context.
func (m *Metrics) Truncated(agent string) {
	if m == nil {
		return
	}
	m.TruncationsTotal.WithLabelValues(agent).Inc()
}

// Summarized records a new rolling summary.
func (m *Metrics) Summarized() {
	if m == nil {
		return
	}
	m.SummariesTotal.Inc()
}

// SessionStarted increments the active session gauge.
func (m *Metrics) SessionStarted() {
	if m == nil {
		return
	}
	m.ActivePipelines.Inc()
}

// SessionStopped decrements the active session gauge.
func (m *Metrics) SessionStopped() {
	if m == nil {
		return
	}
	m.ActivePipelines.Dec()
}

// SessionEnded counts a session reaching a terminal state.
func (m *Metrics) SessionEnded(state string) {
	if m == nil {
		return
	}
	m.PipelinesTotal.WithLabelValues(state).Inc()
}
