// Package metrics exposes the Prometheus instrumentation points for the
// cache, upstream fetcher, search engine, and transport layer.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Cache metrics.
	CacheHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "geosearch_cache_hits_total",
			Help: "Total number of cache hits on cell tokens",
		},
	)

	CacheMissesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "geosearch_cache_misses_total",
			Help: "Total number of cache misses on cell tokens",
		},
	)

	CacheCorruptedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "geosearch_cache_corrupted_total",
			Help: "Total number of cache reads that hit a poisoned value",
		},
	)

	CacheOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "geosearch_cache_operation_duration_seconds",
			Help:    "Duration of cache get/set/lock operations in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation"},
	)

	// Upstream fetcher metrics.
	UpstreamCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geosearch_upstream_calls_total",
			Help: "Total number of upstream places API calls",
		},
		[]string{"outcome"},
	)

	UpstreamCallDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "geosearch_upstream_call_duration_seconds",
			Help:    "Duration of a single upstream places API call",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Search engine metrics.
	SearchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "geosearch_search_duration_seconds",
			Help:    "Duration of a full search(region) invocation",
			Buckets: prometheus.DefBuckets,
		},
	)

	SearchPlacesReturned = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "geosearch_search_places_returned",
			Help:    "Number of places returned per search(region) invocation",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250},
		},
	)

	// Transport / WebSocket metrics.
	WebSocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "geosearch_websocket_connections_active",
			Help: "Number of active WebSocket connections",
		},
	)

	WebSocketMessagesOut = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geosearch_websocket_messages_out_total",
			Help: "Total number of WebSocket messages sent",
		},
		[]string{"type"},
	)

	WebSocketMessagesIn = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geosearch_websocket_messages_in_total",
			Help: "Total number of WebSocket messages received",
		},
		[]string{"type"},
	)

	WebSocketErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "geosearch_websocket_errors_total",
			Help: "Total number of WebSocket errors",
		},
	)

	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "geosearch_active_sessions",
			Help: "Number of connected client sessions",
		},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "geosearch_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geosearch_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)
)
