// Package metrics exposes the Prometheus registry shared by the vidmeta packages.
// All metrics are defined in their respective packages (jobs, pool, ratelimit,
// cache, dataapi) to maintain modularity and avoid circular dependencies.
//
// This package provides the exposition handler and a reference of all metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the Prometheus registerer used by vidmeta.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the source Handler serves from.
var Gatherer = prometheus.DefaultGatherer

// Handler returns the /metrics exposition handler.
func Handler() http.Handler {
	return promhttp.InstrumentMetricHandler(
		Registry,
		promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{}),
	)
}

// Metrics Documentation
//
// Job Metrics (pkg/jobs):
//   - vidmeta_jobs_total{status} (Counter): Jobs reaching a terminal status
//   - vidmeta_jobs_active (Gauge): Jobs whose driver is running
//   - vidmeta_jobs_evicted_total (Counter): Terminal jobs removed by TTL or size bound
//
// Pool Metrics (pkg/pool):
//   - vidmeta_pool_in_flight{backend} (Gauge): Backend calls in flight
//   - vidmeta_fetch_duration_seconds{backend} (Histogram): Duration of one backend call
//   - vidmeta_items_total{backend, outcome} (Counter): Items by outcome (ok or error class)
//
// Rate Limit Metrics (pkg/ratelimit):
//   - vidmeta_ratelimit_wait_seconds{limiter} (Histogram): Time spent waiting for a token
//   - vidmeta_quota_used_units (Gauge): API quota units used today
//   - vidmeta_quota_rejections_total (Counter): Calls refused because the daily budget is spent
//   - vidmeta_quota_throttles_total (Counter): Reservations made above the warning threshold
//
// Cache Metrics (pkg/cache):
//   - vidmeta_cache_hits_total{backend} (Counter): Records served from Redis
//   - vidmeta_cache_misses_total{backend} (Counter): Records not in Redis
//   - vidmeta_cache_written_bytes_total (Counter): Bytes written to Redis
//   - vidmeta_cache_errors_total{operation} (Counter): Cache operation errors
//
// Data API Metrics (pkg/dataapi):
//   - vidmeta_api_requests_total{status} (Counter): Requests by HTTP status
//   - vidmeta_api_request_duration_seconds (Histogram): Request duration
//   - vidmeta_api_errors_total{class} (Counter): Errors by class
//   - vidmeta_api_retries_total{error_class} (Counter): Retry attempts by error class
//   - vidmeta_api_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - vidmeta_api_retry_exhausted_total{error_class} (Counter): Requests that exhausted max retries
//
// Example Prometheus Queries:
//
//   # Item failure ratio per backend
//   sum by (backend) (rate(vidmeta_items_total{outcome!="ok"}[5m])) /
//   sum by (backend) (rate(vidmeta_items_total[5m]))
//
//   # Quota headroom
//   10000 - vidmeta_quota_used_units
//
//   # Cache Hit Rate
//   sum(rate(vidmeta_cache_hits_total[5m])) /
//   (sum(rate(vidmeta_cache_hits_total[5m])) + sum(rate(vidmeta_cache_misses_total[5m])))
//
//   # P95 fetch latency
//   histogram_quantile(0.95, sum by (le, backend) (rate(vidmeta_fetch_duration_seconds_bucket[5m])))
