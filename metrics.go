package reqwrap

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector provides Prometheus metrics for the request lifecycle,
// the retry loop, proxy rotation and the response cache. All record methods
// are nil-receiver safe, so the client can call them unconditionally.
type MetricsCollector struct {
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	requestsInFlight *prometheus.GaugeVec

	retriesTotal   *prometheus.CounterVec
	retryExhausted *prometheus.CounterVec

	cacheHits          *prometheus.CounterVec
	cacheMisses        *prometheus.CounterVec
	cacheSize          *prometheus.GaugeVec
	cacheStoreFailures *prometheus.CounterVec

	proxySelections *prometheus.CounterVec

	errorsTotal *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetricsCollector creates a metrics collector on the default registerer.
func NewMetricsCollector() *MetricsCollector {
	return NewMetricsCollectorWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsCollectorWithRegistry creates a collector using supplied registerer.
func NewMetricsCollectorWithRegistry(registry prometheus.Registerer) *MetricsCollector {
	mc := &MetricsCollector{
		requestsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "reqwrap_requests_total",
				Help: "Total number of HTTP requests dispatched",
			},
			[]string{"method", "status_code", "endpoint"},
		),
		requestDuration: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "reqwrap_request_duration_seconds",
				Help:    "Duration of logical requests in seconds, retries included",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "status_code", "endpoint"},
		),
		requestsInFlight: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "reqwrap_requests_in_flight",
				Help: "Number of logical requests currently in flight",
			},
			[]string{"method", "endpoint"},
		),
		retriesTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "reqwrap_retries_total",
				Help: "Total number of retry attempts",
			},
			[]string{"method", "endpoint", "attempt"},
		),
		retryExhausted: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "reqwrap_retry_exhausted_total",
				Help: "Total number of requests that exhausted their retry budget",
			},
			[]string{"method", "endpoint"},
		),
		cacheHits: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "reqwrap_cache_hits_total",
				Help: "Total number of response cache hits",
			},
			[]string{"method", "endpoint"},
		),
		cacheMisses: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "reqwrap_cache_misses_total",
				Help: "Total number of response cache misses",
			},
			[]string{"method", "endpoint"},
		),
		cacheSize: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "reqwrap_cache_size",
				Help: "Current number of entries in the response cache",
			},
			[]string{"backend"},
		),
		cacheStoreFailures: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "reqwrap_cache_store_failures_total",
				Help: "Total number of swallowed cache store failures",
			},
			[]string{"method", "endpoint"},
		),
		proxySelections: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "reqwrap_proxy_selections_total",
				Help: "Total number of attempts dispatched through each proxy",
			},
			[]string{"proxy"},
		),
		errorsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "reqwrap_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type", "method", "endpoint"},
		),
	}

	if r, ok := registry.(*prometheus.Registry); ok {
		mc.registry = r
	}
	return mc
}

// RecordRequest records request count and duration.
func (mc *MetricsCollector) RecordRequest(method, endpoint string, statusCode int, duration time.Duration) {
	if mc == nil {
		return
	}

	statusCodeStr := strconv.Itoa(statusCode)
	mc.requestsTotal.WithLabelValues(method, statusCodeStr, endpoint).Inc()
	mc.requestDuration.WithLabelValues(method, statusCodeStr, endpoint).Observe(duration.Seconds())
}

// RecordRequestStart increments in-flight gauge.
func (mc *MetricsCollector) RecordRequestStart(method, endpoint string) {
	if mc == nil {
		return
	}

	mc.requestsInFlight.WithLabelValues(method, endpoint).Inc()
}

// RecordRequestEnd decrements in-flight gauge.
func (mc *MetricsCollector) RecordRequestEnd(method, endpoint string) {
	if mc == nil {
		return
	}

	mc.requestsInFlight.WithLabelValues(method, endpoint).Dec()
}

// RecordRetry increments retry counter for an attempt.
func (mc *MetricsCollector) RecordRetry(method, endpoint string, attempt int) {
	if mc == nil {
		return
	}

	mc.retriesTotal.WithLabelValues(method, endpoint, strconv.Itoa(attempt)).Inc()
}

// RecordRetryExhausted increments the exhaustion counter.
func (mc *MetricsCollector) RecordRetryExhausted(method, endpoint string) {
	if mc == nil {
		return
	}

	mc.retryExhausted.WithLabelValues(method, endpoint).Inc()
}

// RecordCacheHit increments cache hit counter.
func (mc *MetricsCollector) RecordCacheHit(method, endpoint string) {
	if mc == nil {
		return
	}

	mc.cacheHits.WithLabelValues(method, endpoint).Inc()
}

// RecordCacheMiss increments cache miss counter.
func (mc *MetricsCollector) RecordCacheMiss(method, endpoint string) {
	if mc == nil {
		return
	}

	mc.cacheMisses.WithLabelValues(method, endpoint).Inc()
}

// RecordCacheSize sets cache size gauge.
func (mc *MetricsCollector) RecordCacheSize(backend string, size int) {
	if mc == nil {
		return
	}

	mc.cacheSize.WithLabelValues(backend).Set(float64(size))
}

// RecordCacheStoreFailure increments the swallowed store-failure counter.
func (mc *MetricsCollector) RecordCacheStoreFailure(method, endpoint string) {
	if mc == nil {
		return
	}

	mc.cacheStoreFailures.WithLabelValues(method, endpoint).Inc()
}

// RecordProxySelection increments the per-proxy dispatch counter.
func (mc *MetricsCollector) RecordProxySelection(proxy string) {
	if mc == nil {
		return
	}

	mc.proxySelections.WithLabelValues(proxy).Inc()
}

// RecordError increments error counter by type.
func (mc *MetricsCollector) RecordError(errorType, method, endpoint string) {
	if mc == nil {
		return
	}

	mc.errorsTotal.WithLabelValues(errorType, method, endpoint).Inc()
}

// GetRegistry exposes the underlying prometheus registry, when the collector
// was built on one.
func (mc *MetricsCollector) GetRegistry() *prometheus.Registry {
	return mc.registry
}
