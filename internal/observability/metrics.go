package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry *prometheus.Registry

	// HTTP request rate. Watch for: sudden drops (service down) or spikes (traffic surge).
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency per request. Watch for: p95/p99 latency increases.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight.
	HTTPRequestsInFlight prometheus.Gauge

	// Provider HTTP calls by source and status label (success, client_error, server_error, error).
	SourceCallsTotal *prometheus.CounterVec

	// Provider latency per call. Watch for: one slow source holding COLLECT open until its timeout.
	SourceCallDuration *prometheus.HistogramVec

	// Retry attempts per source. Watch for: high retries = unstable upstream.
	SourceRetriesTotal *prometheus.CounterVec

	// Final per-request outcome for each source after retries (success, empty, permanent, transient, open).
	SourceOutcomesTotal *prometheus.CounterVec

	// Cache hits and misses per request kind (current, daily, hourly).
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec

	// Cache backend errors by operation. Errors are never fatal to a request.
	CacheErrorsTotal *prometheus.CounterVec

	// Entries removed by the startup version sweep.
	CacheSweptEntriesTotal prometheus.Counter

	// Fallback paths taken (daily -> history provider, hourly -> daily).
	FallbacksTotal *prometheus.CounterVec

	// Number of sources that contributed to a merged result.
	MergeContributingSources *prometheus.HistogramVec

	// Per-source circuit breaker state: 0=closed, 1=half_open, 2=open.
	CircuitBreakerState *prometheus.GaugeVec

	// Rate limit denials on the HTTP API.
	RateLimitDeniedTotal prometheus.Counter

	// Cache warming runs and failed runs.
	CacheWarmingTotal       prometheus.Counter
	CacheWarmingErrorsTotal prometheus.Counter
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpRequestsTotal",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "HTTP request latency in seconds (per request)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "httpRequestsInFlight",
			Help: "Number of HTTP requests currently being served",
		},
	)
	SourceCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sourceCallsTotal",
			Help: "Total number of weather provider HTTP calls",
		},
		[]string{"source", "status"},
	)
	SourceCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sourceCallDurationSeconds",
			Help:    "Weather provider latency in seconds (per call)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"source", "status"},
	)
	SourceRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sourceRetriesTotal",
			Help: "Total number of retry attempts per source",
		},
		[]string{"source"},
	)
	SourceOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sourceOutcomesTotal",
			Help: "Per-request source outcome after retries",
		},
		[]string{"source", "kind", "outcome"},
	)
	CacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheHitsTotal",
			Help: "Total number of cache hits by request kind",
		},
		[]string{"kind"},
	)
	CacheMissesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheMissesTotal",
			Help: "Total number of cache misses by request kind",
		},
		[]string{"kind"},
	)
	CacheErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheErrorsTotal",
			Help: "Cache backend errors by operation",
		},
		[]string{"op"},
	)
	CacheSweptEntriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cacheSweptEntriesTotal",
			Help: "Cache entries deleted because their version tag is stale",
		},
	)
	FallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fallbacksTotal",
			Help: "Fallback paths taken when no source produced data",
		},
		[]string{"kind"},
	)
	MergeContributingSources = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mergeContributingSources",
			Help:    "Number of sources contributing to a merged result",
			Buckets: []float64{0, 1, 2, 3, 4, 5},
		},
		[]string{"kind"},
	)
	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuitBreakerState",
			Help: "Circuit breaker state per source: 0=closed, 1=half_open, 2=open",
		},
		[]string{"source"},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of requests denied by rate limiter (429)",
		},
	)
	CacheWarmingTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cacheWarmingTotal",
			Help: "Total number of cache warming runs",
		},
	)
	CacheWarmingErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cacheWarmingErrorsTotal",
			Help: "Cache warming runs with at least one failed coordinate",
		},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		SourceCallsTotal, SourceCallDuration, SourceRetriesTotal, SourceOutcomesTotal,
		CacheHitsTotal, CacheMissesTotal, CacheErrorsTotal, CacheSweptEntriesTotal,
		FallbacksTotal, MergeContributingSources, CircuitBreakerState,
		RateLimitDeniedTotal, CacheWarmingTotal, CacheWarmingErrorsTotal,
	)
}

// CircuitBreakerStateValue maps a breaker state name to the gauge value.
func CircuitBreakerStateValue(state string) float64 {
	switch state {
	case "half-open", "half_open":
		return 1
	case "open":
		return 2
	default:
		return 0
	}
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
