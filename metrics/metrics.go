// Package metrics exposes the Prometheus instruments shared by the pipeline.
// A nil *Metrics is valid and records nothing, so libraries can be used
// without a registry.
package metrics

import (
	"database/sql"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "scout"

// Search outcomes
const (
	OutcomeSuccess   = "success"
	OutcomeNoResults = "no_results"
	OutcomeUpstream  = "upstream_error"
	OutcomeConfig    = "configuration_error"
	OutcomeError     = "error"
)

// Metrics holds every collector registered by New
type Metrics struct {
	searches            *prometheus.CounterVec
	searchResults       prometheus.Histogram
	fallbacks           *prometheus.CounterVec
	cacheLookups        *prometheus.CounterVec
	persistenceFailures prometheus.Counter
	llmRequests         *prometheus.CounterVec
	llmDuration         *prometheus.HistogramVec
	snapshots           prometheus.Counter
	httpDuration        *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		searches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_total",
			Help:      "Live social searches by outcome.",
		}, []string{"outcome"}),
		searchResults: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_results",
			Help:      "Threads returned per successful search.",
			Buckets:   []float64{0, 1, 3, 5, 10, 15, 20, 30},
		}),
		fallbacks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallbacks_total",
			Help:      "Pipeline stages that degraded to fallback content.",
		}, []string{"stage"}),
		cacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analysis_cache_lookups_total",
			Help:      "Analysis cache lookups by result.",
		}, []string{"result"}),
		persistenceFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analysis_persistence_failures_total",
			Help:      "Analysis records that could not be written to the store.",
		}),
		llmRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_total",
			Help:      "LLM completions by operation and outcome.",
		}, []string{"operation", "outcome"}),
		llmDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_request_duration_seconds",
			Help:      "LLM completion latency.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40, 80},
		}, []string{"operation"}),
		snapshots: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_archived_total",
			Help:      "Rendered pages archived after extraction found nothing.",
		}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "API request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method", "status"}),
	}
}

// RegisterDBStats exposes database/sql pool statistics for db under name
func RegisterDBStats(reg prometheus.Registerer, db *sql.DB, name string) error {
	return reg.Register(collectors.NewDBStatsCollector(db, name))
}

// ObserveSearch records the outcome of one live search
func (m *Metrics) ObserveSearch(outcome string, results int) {
	if m == nil {
		return
	}
	m.searches.WithLabelValues(outcome).Inc()
	if outcome == OutcomeSuccess {
		m.searchResults.Observe(float64(results))
	}
}

// Fallback counts a stage that served fallback content
func (m *Metrics) Fallback(stage string) {
	if m == nil {
		return
	}
	m.fallbacks.WithLabelValues(stage).Inc()
}

// CacheLookup records "hit", "miss" or "error"
func (m *Metrics) CacheLookup(result string) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// PersistenceFailure counts a failed analysis write
func (m *Metrics) PersistenceFailure() {
	if m == nil {
		return
	}
	m.persistenceFailures.Inc()
}

// ObserveLLM records one completion call
func (m *Metrics) ObserveLLM(operation string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeError
	}
	m.llmRequests.WithLabelValues(operation, outcome).Inc()
	m.llmDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// SnapshotArchived counts an archived rendered page
func (m *Metrics) SnapshotArchived() {
	if m == nil {
		return
	}
	m.snapshots.Inc()
}

// ObserveHTTP records one served API request
func (m *Metrics) ObserveHTTP(route, method string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpDuration.WithLabelValues(route, method, strconv.Itoa(status)).Observe(elapsed.Seconds())
}
