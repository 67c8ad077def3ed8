/**
 * @description
 * Prometheus instrumentation for the HTTP layer. Counters and histograms are
 * registered once at package init via promauto and labelled per endpoint.
 *
 * @dependencies
 * - github.com/prometheus/client_golang/prometheus: Metric types.
 * - github.com/prometheus/client_golang/prometheus/promauto: Auto-registration.
 */

package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	settlementRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_http_requests_total",
		Help: "Total HTTP requests processed, labelled by endpoint and outcome.",
	}, []string{"endpoint", "outcome"})

	settlementRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "settlement_http_request_duration_seconds",
		Help:    "HTTP request latency in seconds, labelled by endpoint.",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})

	purchasesByStatus = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_purchases_total",
		Help: "Purchases observed by the API, labelled by synchronous status.",
	}, []string{"status"})
)
