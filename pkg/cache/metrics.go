package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks cache hits by loader route
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drinks_cache_hits_total",
			Help: "Total number of loader payload cache hits",
		},
		[]string{"route"},
	)

	// CacheMisses tracks cache misses by loader route
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drinks_cache_misses_total",
			Help: "Total number of loader payload cache misses",
		},
		[]string{"route"},
	)

	// CacheLoads tracks loader invocations after a miss
	CacheLoads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drinks_cache_loads_total",
			Help: "Total number of loader invocations on cache miss",
		},
		[]string{"route"},
	)

	// BytesWritten counts payload bytes written to the cache
	BytesWritten = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "drinks_cache_bytes_written_total",
			Help: "Total bytes of loader payloads written to the cache",
		},
	)

	// NotModifiedResponses tracks 304 responses answered from ETags
	NotModifiedResponses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "drinks_cache_not_modified_total",
			Help: "Total number of 304 Not Modified responses",
		},
	)

	// PurgedEntries tracks entries evicted through surrogate keys
	PurgedEntries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "drinks_cache_purged_entries_total",
			Help: "Total number of cache entries evicted by surrogate key",
		},
	)

	// CacheErrors tracks cache operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drinks_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "get", "set", "delete", "purge"
	)
)
