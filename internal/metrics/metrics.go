// Package metrics exposes the Prometheus collectors used across the API.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "okrhub",
		Name:      "http_requests_total",
		Help:      "HTTP requests by method, route and status code.",
	}, []string{"method", "route", "status"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "okrhub",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by method and route.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})

	GraphBuildDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "okrhub",
		Name:      "hierarchy_graph_build_seconds",
		Help:      "Time spent building an alignment hierarchy graph.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
	})

	GraphNodes = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "okrhub",
		Name:      "hierarchy_graph_nodes",
		Help:      "Number of nodes in built hierarchy graphs.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 14),
	})

	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "okrhub",
		Name:      "cache_lookups_total",
		Help:      "Objective cache lookups by cache and result (hit or miss).",
	}, []string{"cache", "result"})

	DegradedResolutions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "okrhub",
		Name:      "hierarchy_degraded_resolutions_total",
		Help:      "Root/path resolutions that stopped early on a failed parent lookup.",
	})
)

func CacheHit(cache string) {
	CacheLookups.WithLabelValues(cache, "hit").Inc()
}

func CacheMiss(cache string) {
	CacheLookups.WithLabelValues(cache, "miss").Inc()
}

func Handler() http.Handler {
	return promhttp.Handler()
}
