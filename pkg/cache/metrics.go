package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks cache hits by layer (memory, redis)
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "news_cache_hits_total",
			Help: "Total number of page cache hits",
		},
		[]string{"layer"},
	)

	// CacheMisses tracks cache misses by layer
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "news_cache_misses_total",
			Help: "Total number of page cache misses",
		},
		[]string{"layer"},
	)

	// CacheEntries tracks the number of cached pages by layer
	CacheEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "news_cache_entries",
			Help: "Number of pages currently cached",
		},
		[]string{"layer"},
	)

	// CacheErrors tracks cache backend errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "news_cache_errors_total",
			Help: "Total number of page cache backend errors",
		},
		[]string{"layer", "operation"}, // "get", "set", "clear", "len"
	)
)
