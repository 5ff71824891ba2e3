package reqwrap

import (
	"context"
	"hash/fnv"
	"sync"
	"time"
)

const memoryCacheShards = 16

// MemoryCache is a sharded in-memory ResponseCache backend. It honors the
// same expiry and enabled semantics as DiskCache but keeps entries in the
// process, which suits tests and short-lived tools.
type MemoryCache struct {
	shards  []*memoryShard
	enabled bool
	expiry  time.Duration

	now func() time.Time
}

type memoryShard struct {
	mu    sync.RWMutex
	store map[Fingerprint]*CacheEntry
}

// MemoryCacheOptions configures a MemoryCache.
type MemoryCacheOptions struct {
	Enabled bool
	Expiry  time.Duration // zero means entries never expire
}

// NewMemoryCache returns an in-memory cache. Construction cannot fail.
func NewMemoryCache(opts MemoryCacheOptions) *MemoryCache {
	shards := make([]*memoryShard, memoryCacheShards)
	for i := range shards {
		shards[i] = &memoryShard{store: make(map[Fingerprint]*CacheEntry)}
	}
	return &MemoryCache{
		shards:  shards,
		enabled: opts.Enabled,
		expiry:  opts.Expiry,
		now:     time.Now,
	}
}

// Enabled implements ResponseCache.
func (c *MemoryCache) Enabled() bool { return c.enabled }

func (c *MemoryCache) shard(fp Fingerprint) *memoryShard {
	h := fnv.New32a()
	h.Write(fp[:])
	return c.shards[h.Sum32()%memoryCacheShards]
}

// Get implements ResponseCache.
func (c *MemoryCache) Get(ctx context.Context, spec *RequestSpec) (*CacheEntry, error) {
	if !c.enabled {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fp := ComputeFingerprint(spec)
	shard := c.shard(fp)
	shard.mu.RLock()
	entry, exists := shard.store[fp]
	shard.mu.RUnlock()
	if !exists {
		return nil, nil
	}

	if c.expiry > 0 && c.now().Sub(entry.StoredAt) > c.expiry {
		shard.mu.Lock()
		// Re-check under the write lock: a fresher entry may have landed.
		if cur, ok := shard.store[fp]; ok && c.now().Sub(cur.StoredAt) > c.expiry {
			delete(shard.store, fp)
		}
		shard.mu.Unlock()
		return nil, nil
	}

	return entry, nil
}

// Store implements ResponseCache. Entries are deep-copied in so later caller
// mutation of the response cannot alter cache contents.
func (c *MemoryCache) Store(ctx context.Context, spec *RequestSpec, resp *Response) error {
	if !c.enabled {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	fp := ComputeFingerprint(spec)
	entry := &CacheEntry{
		Response: &Response{
			StatusCode: resp.StatusCode,
			Reason:     resp.Reason,
			Headers:    copyStringMap(resp.Headers),
			Body:       append([]byte(nil), resp.Body...),
		},
		RequestHeaders: copyStringMap(spec.Headers),
		RequestBody:    append([]byte(nil), spec.Body...),
		Method:         spec.Method,
		URL:            spec.URL,
		StoredAt:       c.now(),
	}

	shard := c.shard(fp)
	shard.mu.Lock()
	shard.store[fp] = entry
	shard.mu.Unlock()
	return nil
}

// Delete implements ResponseCache.
func (c *MemoryCache) Delete(ctx context.Context, spec *RequestSpec) (bool, error) {
	if !c.enabled {
		return false, nil
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	fp := ComputeFingerprint(spec)
	shard := c.shard(fp)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	if _, exists := shard.store[fp]; !exists {
		return false, nil
	}
	delete(shard.store, fp)
	return true, nil
}

// Clear implements ResponseCache.
func (c *MemoryCache) Clear(ctx context.Context) error {
	if !c.enabled {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, shard := range c.shards {
		shard.mu.Lock()
		shard.store = make(map[Fingerprint]*CacheEntry)
		shard.mu.Unlock()
	}
	return nil
}

// Size implements ResponseCache. Expired entries still resident count until
// a Get evicts them, matching the disk backend's lazy expiry.
func (c *MemoryCache) Size(ctx context.Context) int {
	if !c.enabled {
		return 0
	}
	total := 0
	for _, shard := range c.shards {
		shard.mu.RLock()
		total += len(shard.store)
		shard.mu.RUnlock()
	}
	return total
}
