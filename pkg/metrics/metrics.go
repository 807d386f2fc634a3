// Package metrics provides the Prometheus registry and HTTP handler for people-pager.
// All metrics are defined in their respective packages (pagination, source, ratelimit)
// to maintain modularity and avoid circular dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by people-pager.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the gatherer matching Registry.
var Gatherer = prometheus.DefaultGatherer

// Handler returns the /metrics handler for Gatherer.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Controller Metrics (pkg/pagination):
//   - pager_fetch_attempts_total{outcome} (Counter): Attempts by outcome (success, failure)
//   - pager_fetch_duration_seconds{result} (Histogram): FetchNext duration from start to callback
//   - pager_retries_total (Counter): Retry attempts after a failed fetch
//   - pager_retry_backoff_seconds (Histogram): Backoff waited before a retry
//   - pager_retry_exhausted_total (Counter): Fetches that used up all retries
//   - pager_suppressed_requests_total (Counter): FetchNext calls ignored while a fetch was in flight
//   - pager_stale_responses_total (Counter): Responses dropped after Reset or Close
//   - pager_fetches_in_flight (Gauge): Fetches currently in flight
//
// Source Metrics (pkg/source):
//   - pager_source_requests_total{source, status} (Counter): Requests by source and HTTP status
//   - pager_source_request_duration_seconds{source} (Histogram): Request duration by source
//   - pager_source_errors_total{source, class} (Counter): Errors by class (client, server, rate_limit, network, decode)
//
// Rate Limit Metrics (pkg/ratelimit):
//   - pager_rate_limit_remaining{source} (Gauge): Requests remaining in the window
//   - pager_rate_limit_blocks_total{source} (Counter): Fetches blocked at the critical threshold
//   - pager_rate_limit_throttles_total{source} (Counter): Fetches delayed at the warning threshold
//
// Example Prometheus Queries:
//
//   # Retry Ratio
//   rate(pager_retries_total[5m]) / sum(rate(pager_fetch_attempts_total[5m]))
//
//   # Terminal Failures
//   rate(pager_retry_exhausted_total[5m])
//
//   # Rate Limit Status
//   pager_rate_limit_remaining < 20
//
//   # P95 Page Latency
//   histogram_quantile(0.95, rate(pager_fetch_duration_seconds_bucket[5m]))
