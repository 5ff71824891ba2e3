package reqwrap

import (
	"context"
	"time"
)

// CacheEntry is the durable record of one request/response pair keyed by
// fingerprint. The request side is kept for audit and debugging; Get returns
// an entry only when it was fully written.
type CacheEntry struct {
	Response       *Response
	RequestHeaders map[string]string
	RequestBody    []byte
	Method         string
	URL            string
	StoredAt       time.Time
}

// ResponseCache persists and retrieves response data keyed by request
// fingerprint. Implementations must be safe for concurrent use and must
// never let a reader observe a partially written entry.
//
// A disabled cache returns absent from Get, makes Store a no-op and reports
// Size 0; this lets callers hold a cache unconditionally.
type ResponseCache interface {
	// Get returns the entry for the request, or (nil, nil) when absent or
	// expired. A structural failure reading a present, non-expired entry
	// returns a *CacheError with Op CacheOpRead: a corrupt present entry is
	// an error, not a miss.
	Get(ctx context.Context, spec *RequestSpec) (*CacheEntry, error)

	// Store persists the request/response pair atomically. Failures return a
	// *CacheError with Op CacheOpWrite; callers treat them as a degraded
	// warning, never as a failure of the request itself.
	Store(ctx context.Context, spec *RequestSpec, resp *Response) error

	// Delete removes one entry and reports whether it existed.
	Delete(ctx context.Context, spec *RequestSpec) (bool, error)

	// Clear removes all entries and recreates the empty backing store.
	Clear(ctx context.Context) error

	// Size returns the count of currently stored entries. It never fails:
	// a disabled or missing store reports 0.
	Size(ctx context.Context) int

	// Enabled reports whether the cache participates in request dispatch.
	Enabled() bool
}
