package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks cache hits by backend
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vidmeta_cache_hits_total",
			Help: "Total number of record cache hits",
		},
		[]string{"backend"},
	)

	// CacheMisses tracks cache misses by backend
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vidmeta_cache_misses_total",
			Help: "Total number of record cache misses",
		},
		[]string{"backend"},
	)

	// CacheWrittenBytes tracks bytes written to Redis
	CacheWrittenBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vidmeta_cache_written_bytes_total",
			Help: "Total bytes of record data written to the cache",
		},
	)

	// CacheErrors tracks cache operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vidmeta_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "get", "set", "delete"
	)
)
