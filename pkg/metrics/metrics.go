package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the sync counters exported to Prometheus.
type Metrics struct {
	registry *prometheus.Registry

	ChangesTotal *prometheus.CounterVec
	PullSteps    *prometheus.CounterVec
	PassDuration *prometheus.HistogramVec
	QueueLength  prometheus.Gauge
	Backend      *prometheus.GaugeVec
}

// NewMetrics creates the sync metrics on a fresh registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,

		ChangesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "word_sync_changes_total",
				Help: "Queued changes processed by push passes, by outcome",
			},
			[]string{"table", "action", "outcome"},
		),

		PullSteps: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "word_sync_pull_steps_total",
				Help: "Pull steps attempted, by table and result",
			},
			[]string{"table", "result"},
		),

		PassDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "word_sync_pass_duration_seconds",
				Help:    "Duration of pull and push passes",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"pass"},
		),

		QueueLength: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "word_sync_queue_length",
				Help: "Entries waiting in the local change queue after the last pass",
			},
		),

		Backend: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "word_sync_local_backend",
				Help: "Local store backend in use (1 for the active one)",
			},
			[]string{"backend"},
		),
	}
}

// Registry exposes the underlying registry for gathering in tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) RecordChange(table, action, outcome string) {
	if m == nil {
		return
	}
	m.ChangesTotal.WithLabelValues(table, action, outcome).Inc()
}

func (m *Metrics) RecordPullStep(table string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.PullSteps.WithLabelValues(table, result).Inc()
}

func (m *Metrics) ObservePass(pass string, seconds float64) {
	if m == nil {
		return
	}
	m.PassDuration.WithLabelValues(pass).Observe(seconds)
}

func (m *Metrics) SetQueueLength(n int64) {
	if m == nil {
		return
	}
	m.QueueLength.Set(float64(n))
}

func (m *Metrics) SetBackend(backend string) {
	if m == nil {
		return
	}
	m.Backend.Reset()
	m.Backend.WithLabelValues(backend).Set(1)
}
