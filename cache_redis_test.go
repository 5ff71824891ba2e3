package reqwrap

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// newTestRedisCache connects to the Redis instance named by REDIS_ADDR, or
// skips the test when none is configured.
func newTestRedisCache(t *testing.T, opts RedisCacheOptions) *RedisCache {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set, skipping Redis cache tests")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("Redis at %s not reachable: %v", addr, err)
	}
	t.Cleanup(func() {
		cache := NewRedisCache(client, RedisCacheOptions{Enabled: true})
		_ = cache.Clear(context.Background())
		_ = client.Close()
	})
	return NewRedisCache(client, opts)
}

func TestRedisCacheRoundTrip(t *testing.T) {
	cache := newTestRedisCache(t, RedisCacheOptions{Enabled: true})
	ctx := context.Background()
	spec := testSpec("https://example.com/data")

	if err := cache.Store(ctx, spec, testResponse()); err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	entry, err := cache.Get(ctx, spec)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if entry == nil {
		t.Fatal("Expected a cache hit, got a miss")
	}
	if entry.Response.StatusCode != 200 || string(entry.Response.Body) != `{"ok":true}` {
		t.Errorf("Expected stored response, got %d %q", entry.Response.StatusCode, entry.Response.Body)
	}
	if entry.Method != "GET" || entry.URL != "https://example.com/data" {
		t.Errorf("Expected request identity round-tripped, got %s %s", entry.Method, entry.URL)
	}
}

func TestRedisCacheMiss(t *testing.T) {
	cache := newTestRedisCache(t, RedisCacheOptions{Enabled: true})

	entry, err := cache.Get(context.Background(), testSpec("https://example.com/never-stored"))
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if entry != nil {
		t.Error("Expected a miss for a never-stored request")
	}
}

func TestRedisCacheDeleteAndClear(t *testing.T) {
	cache := newTestRedisCache(t, RedisCacheOptions{Enabled: true})
	ctx := context.Background()
	spec := testSpec("https://example.com/data")

	if err := cache.Store(ctx, spec, testResponse()); err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	removed, err := cache.Delete(ctx, spec)
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if !removed {
		t.Error("Expected Delete of a present entry to report true")
	}

	if err := cache.Store(ctx, spec, testResponse()); err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	if err := cache.Clear(ctx); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if size := cache.Size(ctx); size != 0 {
		t.Errorf("Expected size 0 after Clear, got %d", size)
	}
}

func TestRedisCacheExpiry(t *testing.T) {
	cache := newTestRedisCache(t, RedisCacheOptions{Enabled: true, Expiry: time.Second})
	ctx := context.Background()
	spec := testSpec("https://example.com/data")

	if err := cache.Store(ctx, spec, testResponse()); err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	time.Sleep(1500 * time.Millisecond)

	entry, err := cache.Get(ctx, spec)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if entry != nil {
		t.Error("Expected Redis TTL to expire the entry")
	}
}

func TestRedisCacheDisabled(t *testing.T) {
	cache := NewRedisCache(nil, RedisCacheOptions{})
	ctx := context.Background()
	spec := testSpec("https://example.com/data")

	// A disabled cache never touches the client, so nil is safe here.
	if cache.Enabled() {
		t.Error("Expected cache to report disabled")
	}
	if err := cache.Store(ctx, spec, testResponse()); err != nil {
		t.Errorf("Store on a disabled cache should be a no-op, got %v", err)
	}
	entry, err := cache.Get(ctx, spec)
	if err != nil || entry != nil {
		t.Errorf("Expected (nil, nil) from a disabled cache, got (%v, %v)", entry, err)
	}
	if size := cache.Size(ctx); size != 0 {
		t.Errorf("Expected size 0 from a disabled cache, got %d", size)
	}
}
