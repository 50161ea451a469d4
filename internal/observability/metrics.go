package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "moodlist"

// Metrics groups all Prometheus instruments used by the service.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry prometheus.Gatherer

	ChatRequests     *prometheus.CounterVec
	AnalysisOutcomes *prometheus.CounterVec
	CatalogSearches  *prometheus.CounterVec
	FeatureFetches   *prometheus.CounterVec
	Deliveries       *prometheus.CounterVec
	UpstreamErrors   *prometheus.CounterVec
	StageLatency     *prometheus.HistogramVec
}

// NewMetrics registers the instruments on reg. Pass prometheus.NewRegistry()
// in tests to avoid duplicate registration.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		ChatRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_requests_total",
			Help:      "Chat messages by outcome.",
		}, []string{"outcome"}),
		AnalysisOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analysis_outcomes_total",
			Help:      "Model analyses by result kind.",
		}, []string{"kind"}),
		CatalogSearches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catalog_searches_total",
			Help:      "Catalog searches by outcome.",
		}, []string{"outcome"}),
		FeatureFetches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feature_fetches_total",
			Help:      "Audio-feature fetches by outcome.",
		}, []string{"outcome"}),
		Deliveries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Payload deliveries by sink and outcome.",
		}, []string{"sink", "outcome"}),
		UpstreamErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_errors_total",
			Help:      "Upstream errors by provider and kind.",
		}, []string{"provider", "kind"}),
		StageLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_latency_ms",
			Help:      "Pipeline stage latency in milliseconds.",
			Buckets:   []float64{50, 100, 250, 500, 1000, 2000, 4000, 8000, 15000},
		}, []string{"stage"}),
	}
}

func (m *Metrics) ObserveChat(outcome string) {
	if m == nil {
		return
	}
	m.ChatRequests.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveAnalysis(kind string) {
	if m == nil {
		return
	}
	m.AnalysisOutcomes.WithLabelValues(kind).Inc()
}

func (m *Metrics) ObserveSearch(outcome string) {
	if m == nil {
		return
	}
	m.CatalogSearches.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveFeatureFetch(outcome string) {
	if m == nil {
		return
	}
	m.FeatureFetches.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveDelivery(sink, outcome string) {
	if m == nil {
		return
	}
	m.Deliveries.WithLabelValues(sink, outcome).Inc()
}

func (m *Metrics) ObserveUpstreamError(provider, kind string) {
	if m == nil {
		return
	}
	m.UpstreamErrors.WithLabelValues(provider, kind).Inc()
}

func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.StageLatency.WithLabelValues(stage).Observe(float64(d.Milliseconds()))
}

// Handler serves the registry this Metrics was built on.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
