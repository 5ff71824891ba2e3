package reqwrap

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetricsCollectorWithRegistry(t *testing.T) {
	registry := prometheus.NewRegistry()
	mc := NewMetricsCollectorWithRegistry(registry)

	if mc == nil {
		t.Fatal("Expected a collector, got nil")
	}
	if mc.GetRegistry() != registry {
		t.Error("Expected the supplied registry exposed")
	}
}

func TestMetricsCollectorNilSafe(t *testing.T) {
	var mc *MetricsCollector

	// None of these may panic on a nil receiver.
	mc.RecordRequest("GET", "example.com/", 200, time.Second)
	mc.RecordRequestStart("GET", "example.com/")
	mc.RecordRequestEnd("GET", "example.com/")
	mc.RecordRetry("GET", "example.com/", 1)
	mc.RecordRetryExhausted("GET", "example.com/")
	mc.RecordCacheHit("GET", "example.com/")
	mc.RecordCacheMiss("GET", "example.com/")
	mc.RecordCacheSize("disk", 3)
	mc.RecordCacheStoreFailure("GET", "example.com/")
	mc.RecordProxySelection("direct")
	mc.RecordError("timeout", "GET", "example.com/")
}

func TestMetricsCollectorCounters(t *testing.T) {
	registry := prometheus.NewRegistry()
	mc := NewMetricsCollectorWithRegistry(registry)

	mc.RecordRequest("GET", "example.com/", 200, 100*time.Millisecond)
	mc.RecordRetry("GET", "example.com/", 1)
	mc.RecordRetry("GET", "example.com/", 2)
	mc.RecordCacheHit("GET", "example.com/")
	mc.RecordCacheMiss("GET", "example.com/")
	mc.RecordCacheSize("disk", 7)
	mc.RecordProxySelection("direct")
	mc.RecordError("timeout", "GET", "example.com/")

	if got := testutil.ToFloat64(mc.requestsTotal.WithLabelValues("GET", "200", "example.com/")); got != 1 {
		t.Errorf("Expected requests total 1, got %v", got)
	}
	retries := testutil.ToFloat64(mc.retriesTotal.WithLabelValues("GET", "example.com/", "1")) +
		testutil.ToFloat64(mc.retriesTotal.WithLabelValues("GET", "example.com/", "2"))
	if retries != 2 {
		t.Errorf("Expected 2 retries recorded, got %v", retries)
	}
	if got := testutil.ToFloat64(mc.cacheHits.WithLabelValues("GET", "example.com/")); got != 1 {
		t.Errorf("Expected 1 cache hit, got %v", got)
	}
	if got := testutil.ToFloat64(mc.cacheMisses.WithLabelValues("GET", "example.com/")); got != 1 {
		t.Errorf("Expected 1 cache miss, got %v", got)
	}
	if got := testutil.ToFloat64(mc.cacheSize.WithLabelValues("disk")); got != 7 {
		t.Errorf("Expected cache size 7, got %v", got)
	}
	if got := testutil.ToFloat64(mc.proxySelections.WithLabelValues("direct")); got != 1 {
		t.Errorf("Expected 1 proxy selection, got %v", got)
	}
	if got := testutil.ToFloat64(mc.errorsTotal.WithLabelValues("timeout", "GET", "example.com/")); got != 1 {
		t.Errorf("Expected 1 error recorded, got %v", got)
	}
}

func TestMetricsCollectorInFlight(t *testing.T) {
	registry := prometheus.NewRegistry()
	mc := NewMetricsCollectorWithRegistry(registry)

	mc.RecordRequestStart("GET", "example.com/")
	if got := testutil.ToFloat64(mc.requestsInFlight.WithLabelValues("GET", "example.com/")); got != 1 {
		t.Errorf("Expected 1 in flight, got %v", got)
	}
	mc.RecordRequestEnd("GET", "example.com/")
	if got := testutil.ToFloat64(mc.requestsInFlight.WithLabelValues("GET", "example.com/")); got != 0 {
		t.Errorf("Expected 0 in flight, got %v", got)
	}
}

func TestClientRecordsDispatchMetrics(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := hits.Add(1)
		if n == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	registry := prometheus.NewRegistry()
	mc := NewMetricsCollectorWithRegistry(registry)
	client := newTestClient(t, nil, WithRetryCount(1), WithMetricsCollector(mc))

	if _, err := client.Get(context.Background(), server.URL, nil); err != nil {
		t.Fatalf("Request failed: %v", err)
	}

	endpoint := endpointFromURL(server.URL)
	if got := testutil.ToFloat64(mc.requestsTotal.WithLabelValues("GET", "200", endpoint)); got != 1 {
		t.Errorf("Expected the logical request recorded once with the final status, got %v", got)
	}
	if got := testutil.ToFloat64(mc.retriesTotal.WithLabelValues("GET", endpoint, "1")); got != 1 {
		t.Errorf("Expected one retry recorded, got %v", got)
	}
	if got := testutil.ToFloat64(mc.proxySelections.WithLabelValues("direct")); got != 2 {
		t.Errorf("Expected 2 direct selections, got %v", got)
	}
	if got := testutil.ToFloat64(mc.requestsInFlight.WithLabelValues("GET", endpoint)); got != 0 {
		t.Errorf("Expected nothing left in flight, got %v", got)
	}
}

func TestClientRecordsCacheMetrics(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	registry := prometheus.NewRegistry()
	mc := NewMetricsCollectorWithRegistry(registry)
	client := newTestClient(t, nil, WithCache(t.TempDir()), WithMetricsCollector(mc))

	ctx := context.Background()
	if _, err := client.Get(ctx, server.URL, nil); err != nil {
		t.Fatalf("First request failed: %v", err)
	}
	if _, err := client.Get(ctx, server.URL, nil); err != nil {
		t.Fatalf("Second request failed: %v", err)
	}

	endpoint := endpointFromURL(server.URL)
	if got := testutil.ToFloat64(mc.cacheMisses.WithLabelValues("GET", endpoint)); got != 1 {
		t.Errorf("Expected 1 cache miss, got %v", got)
	}
	if got := testutil.ToFloat64(mc.cacheHits.WithLabelValues("GET", endpoint)); got != 1 {
		t.Errorf("Expected 1 cache hit, got %v", got)
	}
	if got := testutil.ToFloat64(mc.cacheSize.WithLabelValues("disk")); got != 1 {
		t.Errorf("Expected cache size gauge 1, got %v", got)
	}
}

func TestClientRecordsRetryExhausted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	registry := prometheus.NewRegistry()
	mc := NewMetricsCollectorWithRegistry(registry)
	client := newTestClient(t, nil, WithRetryCount(1), WithMetricsCollector(mc))

	if _, err := client.Get(context.Background(), server.URL, nil); err == nil {
		t.Fatal("Expected exhaustion")
	}

	endpoint := endpointFromURL(server.URL)
	if got := testutil.ToFloat64(mc.retryExhausted.WithLabelValues("GET", endpoint)); got != 1 {
		t.Errorf("Expected 1 exhaustion recorded, got %v", got)
	}
}
