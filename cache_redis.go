package reqwrap

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisKeyPrefix namespaces reqwrap entries inside a shared Redis instance.
const redisKeyPrefix = "reqwrap:cache:"

// RedisCache is a ResponseCache backend on Redis, for sharing one response
// cache across processes or hosts. Expiry is delegated to Redis TTLs, so
// expired entries disappear without a reaper.
type RedisCache struct {
	client  *redis.Client
	enabled bool
	expiry  time.Duration
}

// RedisCacheOptions configures a RedisCache.
type RedisCacheOptions struct {
	Enabled bool
	Expiry  time.Duration // zero means entries never expire
}

// NewRedisCache wraps an existing Redis client. The caller owns the client's
// lifecycle.
func NewRedisCache(client *redis.Client, opts RedisCacheOptions) *RedisCache {
	return &RedisCache{client: client, enabled: opts.Enabled, expiry: opts.Expiry}
}

// Enabled implements ResponseCache.
func (c *RedisCache) Enabled() bool { return c.enabled }

func redisKey(spec *RequestSpec) string {
	return redisKeyPrefix + ComputeFingerprint(spec).String()
}

// redisEntry is the JSON wire form of a CacheEntry.
type redisEntry struct {
	StatusCode      int               `json:"status_code"`
	Reason          string            `json:"reason"`
	ResponseHeaders map[string]string `json:"response_headers"`
	ResponseBody    []byte            `json:"response_body"`
	RequestHeaders  map[string]string `json:"request_headers"`
	RequestBody     []byte            `json:"request_body"`
	Method          string            `json:"method"`
	URL             string            `json:"url"`
	Timestamp       float64           `json:"timestamp"`
}

// Get implements ResponseCache. A present but undecodable entry is an error,
// not a miss.
func (c *RedisCache) Get(ctx context.Context, spec *RequestSpec) (*CacheEntry, error) {
	if !c.enabled {
		return nil, nil
	}

	key := redisKey(spec)
	raw, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, &CacheError{Op: CacheOpRead, Path: key, Err: err}
	}

	var e redisEntry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, &CacheError{Op: CacheOpRead, Path: key, Err: err}
	}

	return &CacheEntry{
		Response: &Response{
			StatusCode: e.StatusCode,
			Reason:     e.Reason,
			Headers:    e.ResponseHeaders,
			Body:       e.ResponseBody,
		},
		RequestHeaders: e.RequestHeaders,
		RequestBody:    e.RequestBody,
		Method:         e.Method,
		URL:            e.URL,
		StoredAt:       time.Unix(0, int64(e.Timestamp*float64(time.Second))),
	}, nil
}

// Store implements ResponseCache. A SET is atomic on the Redis side, so
// readers never observe a partial entry.
func (c *RedisCache) Store(ctx context.Context, spec *RequestSpec, resp *Response) error {
	if !c.enabled {
		return nil
	}

	e := redisEntry{
		StatusCode:      resp.StatusCode,
		Reason:          resp.Reason,
		ResponseHeaders: nonNilMap(resp.Headers),
		ResponseBody:    resp.Body,
		RequestHeaders:  nonNilMap(spec.Headers),
		RequestBody:     spec.Body,
		Method:          spec.Method,
		URL:             spec.URL,
		Timestamp:       float64(time.Now().UnixNano()) / float64(time.Second),
	}
	raw, err := json.Marshal(e)
	if err != nil {
		return &CacheError{Op: CacheOpWrite, Path: redisKey(spec), Err: err}
	}

	if err := c.client.Set(ctx, redisKey(spec), raw, c.expiry).Err(); err != nil {
		return &CacheError{Op: CacheOpWrite, Path: redisKey(spec), Err: err}
	}
	return nil
}

// Delete implements ResponseCache.
func (c *RedisCache) Delete(ctx context.Context, spec *RequestSpec) (bool, error) {
	if !c.enabled {
		return false, nil
	}
	removed, err := c.client.Del(ctx, redisKey(spec)).Result()
	if err != nil {
		return false, &CacheError{Op: CacheOpDelete, Path: redisKey(spec), Err: err}
	}
	return removed > 0, nil
}

// Clear implements ResponseCache: it removes every reqwrap-owned key without
// touching the rest of the instance.
func (c *RedisCache) Clear(ctx context.Context) error {
	if !c.enabled {
		return nil
	}

	iter := c.client.Scan(ctx, 0, redisKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return &CacheError{Op: CacheOpClear, Path: iter.Val(), Err: err}
		}
	}
	if err := iter.Err(); err != nil {
		return &CacheError{Op: CacheOpClear, Err: err}
	}
	return nil
}

// Size implements ResponseCache.
func (c *RedisCache) Size(ctx context.Context) int {
	if !c.enabled {
		return 0
	}
	count := 0
	iter := c.client.Scan(ctx, 0, redisKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		count++
	}
	if iter.Err() != nil {
		return 0
	}
	return count
}
