// Package metrics exposes Prometheus counters and histograms for reloads and
// publication passes.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors of one runtime. Each instance owns its
// registry so several runtimes can live in one process.
type Metrics struct {
	registry *prometheus.Registry

	ReloadsTotal   *prometheus.CounterVec
	ReloadDuration *prometheus.HistogramVec

	PublishPasses   prometheus.Counter
	PublishDuration prometheus.Histogram
	PublishedTotal  prometheus.Counter
}

// New creates and registers the collectors.
//
// Metrics:
//   - raido_reloads_total{outcome,kind} - reload attempts by result
//   - raido_reload_duration_seconds{outcome} - reload attempt latency
//   - raido_publish_passes_total - completed evaluation passes
//   - raido_publish_duration_seconds - evaluation pass latency
//   - raido_published_projects_total - projects persisted by passes
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		ReloadsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "raido_reloads_total",
				Help: "Total number of reload attempts",
			},
			[]string{"outcome", "kind"},
		),
		ReloadDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "raido_reload_duration_seconds",
				Help:    "Duration of reload attempts in seconds",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
			},
			[]string{"outcome"},
		),

		PublishPasses: factory.NewCounter(prometheus.CounterOpts{
			Name: "raido_publish_passes_total",
			Help: "Total number of evaluation passes",
		}),
		PublishDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "raido_publish_duration_seconds",
			Help:    "Duration of evaluation passes in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
		PublishedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "raido_published_projects_total",
			Help: "Total number of project evaluations persisted",
		}),
	}
}

// ObserveReload records one reload attempt. kind is empty unless the
// attempt failed.
func (m *Metrics) ObserveReload(outcome, kind string, took time.Duration) {
	m.ReloadsTotal.WithLabelValues(outcome, kind).Inc()
	m.ReloadDuration.WithLabelValues(outcome).Observe(took.Seconds())
}

// ObservePass records one completed evaluation pass.
func (m *Metrics) ObservePass(projects int, took time.Duration) {
	m.PublishPasses.Inc()
	m.PublishDuration.Observe(took.Seconds())
	m.PublishedTotal.Add(float64(projects))
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
