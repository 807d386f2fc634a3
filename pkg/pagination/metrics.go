package pagination

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for paging operations.
var (
	fetchAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pager_fetch_attempts_total",
		Help: "Total page fetch attempts by outcome",
	}, []string{"outcome"}) // "success", "failure"

	fetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pager_fetch_duration_seconds",
		Help:    "Duration of a logical page fetch including retries",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"result"}) // "success", "failure"

	retriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pager_retries_total",
		Help: "Total number of page fetch retries",
	})

	retryBackoffSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pager_retry_backoff_seconds",
		Help:    "Backoff applied before a page fetch retry",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
	})

	retryExhaustedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pager_retry_exhausted_total",
		Help: "Total number of fetches that surfaced an error after exhausting retries",
	})

	suppressedRequestsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pager_suppressed_requests_total",
		Help: "Total FetchNext calls rejected because a fetch was already in flight",
	})

	staleResponsesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pager_stale_responses_total",
		Help: "Total fetch results discarded because the controller was reset or closed",
	})

	inFlightGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pager_fetches_in_flight",
		Help: "Number of page fetches currently in flight",
	})
)
