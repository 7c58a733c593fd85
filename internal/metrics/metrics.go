// Package metrics exposes Prometheus counters for classification and
// enrichment activity.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every trove metric.
const Namespace = "trove"

// Metrics holds the collectors. A nil *Metrics is valid and records nothing,
// so callers never need to check before recording.
type Metrics struct {
	registry *prometheus.Registry

	Classifications     *prometheus.CounterVec
	StageTransitions    *prometheus.CounterVec
	MetadataMerges      *prometheus.CounterVec
	AssetDeleteFailures prometheus.Counter
	ScrapeDuration      prometheus.Histogram
}

// New creates a private registry with process and Go collectors plus the
// trove metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		Classifications: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "classifications_total",
				Help:      "Classification decisions committed, by resulting type",
			},
			[]string{"type"},
		),
		StageTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "stage_transitions_total",
				Help:      "Processing stage state changes",
			},
			[]string{"stage", "status"},
		),
		MetadataMerges: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "metadata_merges_total",
				Help:      "Link metadata merges, by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		AssetDeleteFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "asset_delete_failures_total",
				Help:      "Superseded assets that could not be removed from blob storage",
			},
		),
		ScrapeDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "scrape_duration_seconds",
				Help:      "Time spent fetching and parsing link previews",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
			},
		),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) Classified(cardType string) {
	if m == nil {
		return
	}
	m.Classifications.WithLabelValues(cardType).Inc()
}

func (m *Metrics) StageTransition(stage, status string) {
	if m == nil {
		return
	}
	m.StageTransitions.WithLabelValues(stage, status).Inc()
}

func (m *Metrics) MetadataMerged(kind, outcome string) {
	if m == nil {
		return
	}
	m.MetadataMerges.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) AssetDeleteFailed() {
	if m == nil {
		return
	}
	m.AssetDeleteFailures.Inc()
}

func (m *Metrics) ObserveScrape(d time.Duration) {
	if m == nil {
		return
	}
	m.ScrapeDuration.Observe(d.Seconds())
}
