// Package observability holds the service's Prometheus instrumentation.
package observability

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~20s
		},
		[]string{"method", "route", "status"},
	)

	upstreamLatencySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstream_latency_seconds",
			Help:    "Latency of upstream data API calls in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		[]string{"endpoint"},
	)

	cacheOps = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cache_op_duration_seconds",
			Help:    "Duration of cache operations in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
		[]string{"op", "outcome"},
	)

	cacheResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_results_total",
			Help: "Cache results by outcome.",
		},
		[]string{"outcome"},
	)

	refreshRounds = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "refresh_rounds_total",
			Help: "Refresh rounds by trigger source.",
		},
		[]string{"trigger"},
	)

	refreshDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "refresh_round_duration_seconds",
			Help:    "Duration of a full refresh round in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		},
	)

	refreshLayerErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "refresh_layer_errors_total",
			Help: "Per-layer refresh failures.",
		},
		[]string{"layer"},
	)

	staleDrops = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "refresh_stale_drops_total",
			Help: "Fetch results discarded because a newer round superseded them.",
		},
		[]string{"layer"},
	)

	transformSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transform_skipped_records_total",
			Help: "Records excluded from GeoJSON output for malformed coordinates.",
		},
		[]string{"category"},
	)

	layerOps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "layer_manager_ops_total",
			Help: "Layer manager operations by kind and outcome.",
		},
		[]string{"op", "outcome"},
	)

	realtimeEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_events_total",
			Help: "Change notifications by op and outcome.",
		},
		[]string{"op", "outcome"},
	)

	realtimeLagSeconds = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "realtime_event_lag_seconds",
			Help: "Age of the most recently consumed change notification.",
		},
	)

	wsClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ws_clients",
			Help: "Currently connected WebSocket clients.",
		},
	)

	wsDroppedMessages = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ws_dropped_messages_total",
			Help: "Broadcast messages dropped because a client send buffer was full.",
		},
	)

	buildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_build_info",
			Help: "Build information for the binary.",
		},
		[]string{"version"},
	)
)

func ObserveHTTP(method, route string, status int, durationSeconds float64) {
	st := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, route, st).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route, st).Observe(durationSeconds)
}

func ObserveUpstreamLatency(endpoint string, durationSeconds float64) {
	upstreamLatencySeconds.WithLabelValues(endpoint).Observe(durationSeconds)
}

func ObserveCacheOp(op string, err error, durationSeconds float64) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	cacheOps.WithLabelValues(op, outcome).Observe(durationSeconds)
}

func AddCacheHits(n int) {
	cacheResults.WithLabelValues("hit").Add(float64(n))
}

func AddCacheMisses(n int) {
	cacheResults.WithLabelValues("miss").Add(float64(n))
}

func IncRefreshRound(trigger string) {
	refreshRounds.WithLabelValues(trigger).Inc()
}

func ObserveRefreshRound(durationSeconds float64) {
	refreshDurationSeconds.Observe(durationSeconds)
}

func IncRefreshLayerError(layer string) {
	refreshLayerErrors.WithLabelValues(layer).Inc()
}

func IncStaleDrop(layer string) {
	staleDrops.WithLabelValues(layer).Inc()
}

func AddTransformSkipped(category string, n int) {
	if n > 0 {
		transformSkipped.WithLabelValues(category).Add(float64(n))
	}
}

func IncLayerOp(op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	layerOps.WithLabelValues(op, outcome).Inc()
}

func IncRealtimeEvent(op string, err error) {
	if op == "" {
		op = "unknown"
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	realtimeEvents.WithLabelValues(op, outcome).Inc()
}

func SetRealtimeLagSeconds(lag float64) {
	realtimeLagSeconds.Set(lag)
}

func SetWSClients(n int) {
	wsClients.Set(float64(n))
}

func IncWSDropped() {
	wsDroppedMessages.Inc()
}

func ExposeBuildInfo(version string) {
	if version == "" {
		version = "dev"
	}
	buildInfo.WithLabelValues(version).Set(1)
}
