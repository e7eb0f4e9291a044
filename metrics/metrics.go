// Package metrics bundles the Prometheus collectors for the pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics registers all pipeline collectors on a dedicated registry.
// All methods are safe on a nil receiver so instrumentation stays optional.
type Metrics struct {
	Registry *prometheus.Registry

	PagesFetched     *prometheus.CounterVec
	FetchDuration    prometheus.Histogram
	ItemsScraped     *prometheus.CounterVec
	RetriesTotal     prometheus.Counter
	ErrorsTotal      *prometheus.CounterVec
	EntriesCreated   prometheus.Counter
	EntriesUpdated   prometheus.Counter
	Observations     prometheus.Counter
	BatchesSkipped   prometheus.Counter
	CompareCacheHits *prometheus.CounterVec
}

// New constructs and registers all metrics.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	pages := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricegear_pages_fetched_total",
			Help: "Result pages fetched, by shop and outcome.",
		},
		[]string{"shop", "outcome"},
	)
	fetchDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pricegear_fetch_duration_seconds",
			Help:    "Page fetch latency across all adapters.",
			Buckets: prometheus.DefBuckets,
		},
	)
	items := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricegear_items_scraped_total",
			Help: "Raw listing cards extracted, by shop.",
		},
		[]string{"shop"},
	)
	retries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pricegear_retries_total",
			Help: "Page retry attempts scheduled by the crawler.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricegear_errors_total",
			Help: "Fetch errors by shop and type.",
		},
		[]string{"shop", "error_type"},
	)
	created := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pricegear_entries_created_total",
			Help: "Catalog entries created by the merger.",
		},
	)
	updated := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pricegear_entries_updated_total",
			Help: "Catalog entries updated by the merger.",
		},
	)
	observations := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pricegear_price_observations_total",
			Help: "Price history rows written (change events only).",
		},
	)
	skipped := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pricegear_batches_skipped_total",
			Help: "Ingestion batches dropped after exhausting retries.",
		},
	)
	cache := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricegear_compare_cache_total",
			Help: "Comparison cache lookups by result.",
		},
		[]string{"result"},
	)

	registry.MustRegister(pages, fetchDuration, items, retries, errorsTotal,
		created, updated, observations, skipped, cache)

	return &Metrics{
		Registry:         registry,
		PagesFetched:     pages,
		FetchDuration:    fetchDuration,
		ItemsScraped:     items,
		RetriesTotal:     retries,
		ErrorsTotal:      errorsTotal,
		EntriesCreated:   created,
		EntriesUpdated:   updated,
		Observations:     observations,
		BatchesSkipped:   skipped,
		CompareCacheHits: cache,
	}
}

// IncPage records one page fetch outcome ("ok", "empty", "failed").
func (m *Metrics) IncPage(shop, outcome string) {
	if m == nil {
		return
	}
	m.PagesFetched.WithLabelValues(shop, outcome).Inc()
}

// ObserveFetch records a page fetch duration.
func (m *Metrics) ObserveFetch(d time.Duration) {
	if m == nil {
		return
	}
	m.FetchDuration.Observe(d.Seconds())
}

// AddItems records extracted cards for a shop.
func (m *Metrics) AddItems(shop string, n int) {
	if m == nil {
		return
	}
	m.ItemsScraped.WithLabelValues(shop).Add(float64(n))
}

// IncRetry records a scheduled page retry.
func (m *Metrics) IncRetry() {
	if m == nil {
		return
	}
	m.RetriesTotal.Inc()
}

// IncError records a classified fetch error.
func (m *Metrics) IncError(shop, errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(shop, errorType).Inc()
}

// AddCreated records catalog entries created.
func (m *Metrics) AddCreated(n int) {
	if m == nil {
		return
	}
	m.EntriesCreated.Add(float64(n))
}

// AddUpdated records catalog entries updated.
func (m *Metrics) AddUpdated(n int) {
	if m == nil {
		return
	}
	m.EntriesUpdated.Add(float64(n))
}

// AddObservations records price history rows written.
func (m *Metrics) AddObservations(n int) {
	if m == nil {
		return
	}
	m.Observations.Add(float64(n))
}

// IncSkippedBatch records an ingestion batch dropped after retries.
func (m *Metrics) IncSkippedBatch() {
	if m == nil {
		return
	}
	m.BatchesSkipped.Inc()
}

// IncCache records a comparison cache lookup ("hit" or "miss").
func (m *Metrics) IncCache(result string) {
	if m == nil {
		return
	}
	m.CompareCacheHits.WithLabelValues(result).Inc()
}
