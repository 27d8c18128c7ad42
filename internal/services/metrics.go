package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all custom Prometheus metrics for the caching subsystem
type Metrics struct {
	// Result cache
	CacheHits   *prometheus.CounterVec
	CacheMisses *prometheus.CounterVec
	CacheWrites *prometheus.CounterVec

	// Timeline
	TimelineAppends      prometheus.Counter
	TimelineQueryEntries prometheus.Histogram

	// Maintenance
	InvalidatedKeys *prometheus.CounterVec
	WarmResults     *prometheus.CounterVec
}

var globalMetrics *Metrics

// InitMetrics initializes the Prometheus metrics
func InitMetrics() *Metrics {
	if globalMetrics != nil {
		return globalMetrics
	}

	metrics := &Metrics{
		CacheHits: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "arcanum_cache_hits_total",
			Help: "Result cache hits by engine",
		}, []string{"engine"}),

		CacheMisses: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "arcanum_cache_misses_total",
			Help: "Result cache misses by engine",
		}, []string{"engine"}),

		// outcome: "cached" or "skipped"
		CacheWrites: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "arcanum_cache_writes_total",
			Help: "Result cache write attempts by engine and outcome",
		}, []string{"engine", "outcome"}),

		TimelineAppends: promauto.NewCounter(prometheus.CounterOpts{
			Name: "arcanum_timeline_appends_total",
			Help: "Timeline entries appended",
		}),

		// Timeline queries scan every key under the user prefix, so the
		// scanned-entry distribution is the early warning for users whose
		// timelines are outgrowing the full-scan design.
		TimelineQueryEntries: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "arcanum_timeline_query_scanned_entries",
			Help:    "Entries scanned per timeline query",
			Buckets: []float64{10, 50, 100, 500, 1000, 5000, 10000},
		}),

		// scope: "engine" or "user"
		InvalidatedKeys: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "arcanum_cache_invalidated_keys_total",
			Help: "Cache keys removed by invalidation sweeps",
		}, []string{"scope"}),

		// outcome: "warmed", "failed" or "skipped"
		WarmResults: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "arcanum_cache_warm_results_total",
			Help: "Cache warming outcomes by engine",
		}, []string{"engine", "outcome"}),
	}

	globalMetrics = metrics
	return metrics
}

// GetMetrics returns the global metrics instance (may be nil if not initialized)
func GetMetrics() *Metrics {
	return globalMetrics
}
