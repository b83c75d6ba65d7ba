package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits counts fresh entries served.
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "contesthub_cache_hits_total",
			Help: "Total number of query cache hits",
		},
	)

	// CacheMisses counts lookups that found nothing fresh.
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "contesthub_cache_misses_total",
			Help: "Total number of query cache misses",
		},
	)

	// CacheInvalidations counts keys removed by resource invalidation.
	CacheInvalidations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "contesthub_cache_invalidations_total",
			Help: "Total number of query cache keys invalidated after mutations",
		},
	)

	// CacheErrors counts failed cache operations.
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contesthub_cache_errors_total",
			Help: "Total number of query cache operation errors",
		},
		[]string{"operation"}, // "get", "set", "delete", "invalidate"
	)
)
