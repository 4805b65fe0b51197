// Package metrics exposes the Prometheus registry of drinks.fyi.
// All metrics are defined in their respective packages (cache, cdn, ratelimit,
// loader, prime, search, webhook) to maintain modularity and avoid circular
// dependencies.
//
// This package provides the scrape handler and a reference of all metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the Prometheus registry used by drinks.fyi.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the source served by Handler.
var Gatherer = prometheus.DefaultGatherer

// Handler returns the /metrics scrape handler.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Cache Metrics (pkg/cache):
//   - drinks_cache_hits_total{route} (Counter): Payload cache hits
//   - drinks_cache_misses_total{route} (Counter): Payload cache misses
//   - drinks_cache_loads_total{route} (Counter): Loader runs after a miss (singleflight-deduplicated)
//   - drinks_cache_bytes_written_total (Counter): Bytes written to the cache
//   - drinks_cache_not_modified_total (Counter): 304 Not Modified responses
//   - drinks_cache_purged_entries_total (Counter): Entries evicted by surrogate key
//   - drinks_cache_errors_total{operation} (Counter): Cache operation errors
//
// CDN Metrics (pkg/cdn):
//   - drinks_cdn_requests_total{operation, status} (Counter): Fastly API requests
//   - drinks_cdn_request_duration_seconds{operation} (Histogram): Fastly API latency
//   - drinks_cdn_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network)
//   - drinks_cdn_purged_keys_total (Counter): Surrogate keys purged
//   - drinks_cdn_retries_total{error_class} (Counter): Retry attempts by error class
//   - drinks_cdn_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - drinks_cdn_retry_exhausted_total{error_class} (Counter): Purges that exhausted max retries
//
// Rate Limit Metrics (pkg/ratelimit):
//   - drinks_cdn_rate_limit_remaining (Gauge): Remaining Fastly API budget
//   - drinks_cdn_rate_limit_blocks_total (Counter): Purges blocked in the critical zone
//   - drinks_cdn_rate_limit_throttles_total (Counter): Purges delayed in the warning zone
//
// Pipeline Metrics (pkg/loader, pkg/prime, pkg/webhook):
//   - drinks_loader_duration_seconds{route} (Histogram): Payload build time
//   - drinks_prime_runs_total{scope} (Counter): Prime runs (change, all)
//   - drinks_prime_routes_total{result} (Counter): Routes primed, skipped or failed
//   - drinks_prime_duration_seconds (Histogram): Prime run duration
//   - drinks_webhook_deliveries_total{event, result} (Counter): Webhook deliveries
//
// Search Metrics (pkg/search):
//   - drinks_search_queries_total (Counter): Search queries
//   - drinks_search_index_documents (Gauge): Indexed drinks
//   - drinks_search_index_build_seconds (Histogram): Index build time
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(drinks_cache_hits_total[5m])) /
//   (sum(rate(drinks_cache_hits_total[5m])) + sum(rate(drinks_cache_misses_total[5m])))
//
//   # Purge failures
//   rate(drinks_cdn_errors_total[5m])
//
//   # Routes failing to prime
//   rate(drinks_prime_routes_total{result="failed"}[15m])
//
//   # P95 Loader Latency
//   histogram_quantile(0.95, rate(drinks_loader_duration_seconds_bucket[5m]))
