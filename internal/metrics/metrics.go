// Package metrics exposes Prometheus instruments for the memory engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the engine.
type Metrics struct {
	Retrievals       prometheus.Counter
	Injections       *prometheus.CounterVec
	Summaries        *prometheus.CounterVec
	TriggerFires     *prometheus.CounterVec
	PipelineFailures *prometheus.CounterVec
	SearchLatency    prometheus.Histogram
}

// New registers the instruments with reg. Tests pass a fresh
// prometheus.NewRegistry so engines do not collide.
func New(namespace string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Retrievals: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retrievals_total",
			Help:      "Vector searches run against the memory store.",
		}),
		Injections: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "injections_total",
			Help:      "Memory injections by method.",
		}, []string{"method"}),
		Summaries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "summaries_total",
			Help:      "Summarization pipeline runs by outcome.",
		}, []string{"outcome"}),
		TriggerFires: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trigger_fires_total",
			Help:      "Summarization triggers by source.",
		}, []string{"source"}),
		PipelineFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_failures_total",
			Help:      "Pipeline failures by stage.",
		}, []string{"stage"}),
		SearchLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_latency_ms",
			Help:      "Vector search latency in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 10000},
		}),
	}
}

// NewDefault registers with the process-global registry.
func NewDefault(namespace string) *Metrics {
	return New(namespace, prometheus.DefaultRegisterer)
}

func Handler() http.Handler {
	return promhttp.Handler()
}
