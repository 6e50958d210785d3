package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "balance_cache_hits_total",
			Help: "Total number of balance cache hits by tier",
		},
		[]string{"tier"},
	)
	cacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "balance_cache_misses_total",
			Help: "Total number of balance cache misses across all tiers",
		},
	)
	cacheWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "balance_cache_writes_total",
			Help: "Total number of balance cache writes by tier",
		},
		[]string{"tier"},
	)
	cacheInvalidations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "balance_cache_invalidations_total",
			Help: "Total number of balance cache invalidations",
		},
	)
	cacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "balance_cache_errors_total",
			Help: "Total number of balance cache tier errors by tier and operation",
		},
		[]string{"tier", "operation"},
	)
	cacheLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "balance_cache_operation_latency_seconds",
			Help:    "Latency of balance cache operations",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		},
		[]string{"operation"},
	)
)
