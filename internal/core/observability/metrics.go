package observability

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
		},
		[]string{"method", "route", "status"},
	)

	tileResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tile_results_total",
			Help: "Tile requests by cache outcome and encoding.",
		},
		[]string{"outcome", "encoding"},
	)

	tileGenerationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tile_generation_seconds",
			Help:    "Time to query and encode one tile on a cache miss.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
		},
		[]string{"tileset", "result"},
	)

	cacheOpTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_op_total",
			Help: "Cache backend operations by result.",
		},
		[]string{"backend", "op", "result"},
	)

	cacheOpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cache_op_duration_seconds",
			Help:    "Latency of cache backend operations.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 16),
		},
		[]string{"backend", "op"},
	)

	invalidationEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invalidation_events_total",
			Help: "Invalidation events by op and result.",
		},
		[]string{"op", "result"},
	)

	invalidationKeys = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invalidation_keys_total",
			Help: "Cache keys removed by invalidation.",
		},
		[]string{"op"},
	)
)

// Init registers the service collectors on reg. Registering on the same
// registry twice is a no-op.
func Init(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range []prometheus.Collector{
		httpRequestsTotal,
		httpRequestDurationSeconds,
		tileResults,
		tileGenerationSeconds,
		cacheOpTotal,
		cacheOpDurationSeconds,
		invalidationEvents,
		invalidationKeys,
	} {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			panic(err)
		}
	}
}

func ObserveHTTP(method, route string, status int, durationSeconds float64) {
	st := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, route, st).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route, st).Observe(durationSeconds)
}

// IncTileResult counts one served tile. outcome is hit, miss, shared or error.
func IncTileResult(outcome string, compressed bool) {
	enc := "identity"
	if compressed {
		enc = "gzip"
	}
	tileResults.WithLabelValues(outcome, enc).Inc()
}

func ObserveGeneration(tileset string, err error, durationSeconds float64) {
	tileGenerationSeconds.WithLabelValues(tileset, result(err)).Observe(durationSeconds)
}

func ObserveCacheOp(backend, op string, err error, durationSeconds float64) {
	cacheOpTotal.WithLabelValues(backend, op, result(err)).Inc()
	cacheOpDurationSeconds.WithLabelValues(backend, op).Observe(durationSeconds)
}

func ObserveInvalidation(op string, keys int, err error) {
	if op == "" {
		op = "unknown"
	}
	invalidationEvents.WithLabelValues(op, result(err)).Inc()
	if err == nil && keys > 0 {
		invalidationKeys.WithLabelValues(op).Add(float64(keys))
	}
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
