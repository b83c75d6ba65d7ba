// Package metrics exposes the Prometheus metrics of the contest hub client.
// Metrics are defined next to the code that records them (client, cache,
// ratelimit, pagination) and registered with the default registry via
// promauto; this package serves them and documents them.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the registerer every package's metrics are registered with.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the source Handler reads from.
var Gatherer = prometheus.DefaultGatherer

// Handler serves all registered metrics in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - contesthub_requests_total{endpoint, status} (Counter): Requests by endpoint and HTTP status
//   - contesthub_request_duration_seconds{endpoint} (Histogram): Request duration by endpoint
//   - contesthub_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network, cancelled)
//
// Retry Metrics (pkg/client):
//   - contesthub_retries_total{error_class} (Counter): Retry attempts by error class
//   - contesthub_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - contesthub_retry_exhausted_total{error_class} (Counter): Calls that used up their attempts
//
// Rate Limit Metrics (pkg/ratelimit):
//   - contesthub_rate_limit_remaining (Gauge): Backend requests left in the current window
//   - contesthub_rate_limit_blocks_total (Counter): Requests refused locally
//   - contesthub_rate_limit_throttles_total (Counter): Requests delayed in the warning band
//
// Cache Metrics (pkg/cache):
//   - contesthub_cache_hits_total (Counter): Fresh list pages served from Redis
//   - contesthub_cache_misses_total (Counter): Lookups that found nothing fresh
//   - contesthub_cache_invalidations_total (Counter): Keys dropped after mutations
//   - contesthub_cache_errors_total{operation} (Counter): Failed cache operations
//
// List Query Metrics (pkg/pagination):
//   - contesthub_queries_opened_total{resource} (Counter): List queries opened
//   - contesthub_pages_fetched_total{resource} (Counter): Pages fetched from the backend
//   - contesthub_query_errors_total{resource} (Counter): Queries that ended in the error state
//   - contesthub_queries_superseded_total (Counter): Queries closed with a fetch in flight
//   - contesthub_batch_pages_fetched_total (Counter): Pages fetched by BatchFetcher
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(contesthub_cache_hits_total[5m])) /
//   (sum(rate(contesthub_cache_hits_total[5m])) + sum(rate(contesthub_cache_misses_total[5m])))
//
//   # Backend Budget
//   contesthub_rate_limit_remaining < 10
//
//   # Superseded Queries per Opened Query
//   rate(contesthub_queries_superseded_total[5m]) / sum(rate(contesthub_queries_opened_total[5m]))
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(contesthub_request_duration_seconds_bucket[5m]))
