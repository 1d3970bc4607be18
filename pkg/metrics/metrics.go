// Package metrics exposes the Prometheus registry used by the newsfeed client.
// Metrics are defined in their respective packages (transport, cache,
// inflight, client, pagination, ratelimit) and registered via promauto.
//
// This package provides the scrape handler and a reference for all metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by the newsfeed client.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the gatherer paired with Registry.
var Gatherer = prometheus.DefaultGatherer

// Handler returns the /metrics scrape handler for Gatherer.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Transport Metrics (pkg/transport):
//   - news_transport_requests_total{status} (Counter): Page requests by HTTP status or failure kind
//   - news_transport_request_duration_seconds (Histogram): Single request duration
//
// Rate Limit Metrics (pkg/ratelimit):
//   - news_rate_limit_wait_seconds (Histogram): Time spent waiting for pacing or cooldown
//   - news_rate_limit_cooldowns_total (Counter): Retry-After cooldowns applied
//
// Cache Metrics (pkg/cache):
//   - news_cache_hits_total{layer} (Counter): Page cache hits by layer (memory, redis)
//   - news_cache_misses_total{layer} (Counter): Page cache misses by layer
//   - news_cache_entries{layer} (Gauge): Pages currently cached
//   - news_cache_errors_total{layer, operation} (Counter): Backend errors
//
// In-Flight Metrics (pkg/inflight):
//   - news_inflight_pages (Gauge): Pages currently being fetched
//
// Orchestrator Metrics (pkg/client):
//   - news_page_requests_total{source} (Counter): GetPage calls by source (cache, network, shared, error)
//   - news_page_request_duration_seconds (Histogram): GetPage duration including retries
//   - news_fetch_errors_total{class} (Counter): Failed attempts by error class
//   - news_retries_total{error_class} (Counter): Retry attempts by error class
//   - news_retry_backoff_seconds{error_class} (Histogram): Backoff waits by error class
//   - news_retry_exhausted_total{error_class} (Counter): Fetches that used every attempt
//
// Pagination Metrics (pkg/pagination):
//   - news_pagination_loads_total{result} (Counter): Driver loads by result (success, error, discarded)
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(news_cache_hits_total[5m])) /
//   (sum(rate(news_cache_hits_total[5m])) + sum(rate(news_cache_misses_total[5m])))
//
//   # Duplicate fetches avoided
//   rate(news_page_requests_total{source="shared"}[5m])
//
//   # P95 page latency including retries
//   histogram_quantile(0.95, rate(news_page_request_duration_seconds_bucket[5m]))
