// Package metrics defines the Prometheus collectors used by docshelf and
// exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the site. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	SearchQueriesTotal   *prometheus.CounterVec
	SearchLatency        prometheus.Histogram
	SearchResultsCount   prometheus.Histogram
	CacheHitsTotal       prometheus.Counter
	CacheMissesTotal     prometheus.Counter
	FeedLoadsTotal       *prometheus.CounterVec
	FeedLoadDuration     prometheus.Histogram
	CatalogDocuments     prometheus.Gauge
	DocumentViewsTotal   *prometheus.CounterVec
}

// New creates all collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		SearchQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "search_queries_total",
				Help: "Total search queries by result type (match, zero_result, empty_query, error).",
			},
			[]string{"result_type"},
		),
		SearchLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "search_latency_seconds",
				Help:    "Time spent ranking and paginating one search.",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
			},
		),
		SearchResultsCount: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "search_results_count",
				Help:    "Number of matching documents per search.",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 500},
			},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "catalog_cache_hits_total",
				Help: "Catalog snapshots served from the cache.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "catalog_cache_misses_total",
				Help: "Catalog loads that had to fetch the feeds.",
			},
		),
		FeedLoadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "feed_loads_total",
				Help: "Catalog feed batch loads by status.",
			},
			[]string{"status"},
		),
		FeedLoadDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "feed_load_duration_seconds",
				Help:    "Wall time of one feed batch load.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
		),
		CatalogDocuments: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "catalog_documents",
				Help: "Documents in the most recent successful load.",
			},
		),
		DocumentViewsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "document_views_total",
				Help: "Document page requests by outcome (found, not_found, malformed, error).",
			},
			[]string{"outcome"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.SearchQueriesTotal,
		m.SearchLatency,
		m.SearchResultsCount,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.FeedLoadsTotal,
		m.FeedLoadDuration,
		m.CatalogDocuments,
		m.DocumentViewsTotal,
	)

	return m
}

// ObserveFeedLoad records one batch load.
func (m *Metrics) ObserveFeedLoad(err error, took time.Duration, docs int) {
	if m == nil {
		return
	}
	m.FeedLoadDuration.Observe(took.Seconds())
	if err != nil {
		m.FeedLoadsTotal.WithLabelValues("error").Inc()
		return
	}
	m.FeedLoadsTotal.WithLabelValues("ok").Inc()
	m.CatalogDocuments.Set(float64(docs))
}

// ObserveCache records a catalog cache lookup.
func (m *Metrics) ObserveCache(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheHitsTotal.Inc()
	} else {
		m.CacheMissesTotal.Inc()
	}
}

// ObserveSearch records one search by outcome.
func (m *Metrics) ObserveSearch(resultType string, took time.Duration, matches int) {
	if m == nil {
		return
	}
	m.SearchQueriesTotal.WithLabelValues(resultType).Inc()
	if resultType == "match" || resultType == "zero_result" {
		m.SearchLatency.Observe(took.Seconds())
		m.SearchResultsCount.Observe(float64(matches))
	}
}

// ObserveView records a document page request.
func (m *Metrics) ObserveView(outcome string) {
	if m == nil {
		return
	}
	m.DocumentViewsTotal.WithLabelValues(outcome).Inc()
}

// Handler returns the Prometheus scrape HTTP handler for the default gatherer.
func Handler() http.Handler {
	return promhttp.Handler()
}

// HandlerFor returns a scrape handler for a specific gatherer.
func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
