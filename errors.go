package reqwrap

import (
	"fmt"
)

// InvalidArgumentError reports a bad constructor or call parameter. It is
// raised before the retry state machine starts and never consumes an attempt.
type InvalidArgumentError struct {
	Name     string
	Value    any
	Expected string
}

// Error implements error.
func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("reqwrap: invalid argument %q: got %v, expected %s", e.Name, e.Value, e.Expected)
}

// ProxyConfigError reports a malformed proxy URL.
type ProxyConfigError struct {
	Proxy  string
	Reason string
}

// Error implements error.
func (e *ProxyConfigError) Error() string {
	return fmt.Sprintf("reqwrap: invalid proxy %q: %s", e.Proxy, e.Reason)
}

// SecureChannelError reports a TLS or certificate failure. It is always
// fatal: the dispatcher surfaces it immediately, bypassing any remaining
// retry budget. Certificate and identity failures are not assumed to be
// transient.
type SecureChannelError struct {
	URL string
	Err error
}

// Error implements error.
func (e *SecureChannelError) Error() string {
	return fmt.Sprintf("reqwrap: secure channel failure for %s: %v", e.URL, e.Err)
}

// Unwrap returns the underlying TLS error.
func (e *SecureChannelError) Unwrap() error { return e.Err }

// CacheOp identifies the cache operation that failed.
type CacheOp string

const (
	CacheOpCreate CacheOp = "create"
	CacheOpRead   CacheOp = "read"
	CacheOpWrite  CacheOp = "write"
	CacheOpDelete CacheOp = "delete"
	CacheOpClear  CacheOp = "clear"
)

// CacheError reports a cache subsystem failure. Write and clear failures are
// logged and swallowed by the dispatcher; a read failure on a present but
// unreadable entry propagates to the caller.
type CacheError struct {
	Op   CacheOp
	Path string
	Err  error
}

// Error implements error.
func (e *CacheError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("reqwrap: cache %s failed at %s: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("reqwrap: cache %s failed: %v", e.Op, e.Err)
}

// Unwrap returns the underlying I/O error.
func (e *CacheError) Unwrap() error { return e.Err }

// Is matches any *CacheError with the same Op, so callers can test for an
// operation class without knowing the path.
func (e *CacheError) Is(target error) bool {
	t, ok := target.(*CacheError)
	if !ok {
		return false
	}
	return e.Op == t.Op
}

// RetryExhaustedError is the terminal state of the retry state machine. It
// carries the target URL, the configured retry budget and the last observed
// outcome so failures can be diagnosed without inspecting logs.
type RetryExhaustedError struct {
	URL            string
	MaxRetries     int
	LastStatusCode int // 0 when no response was ever received
	LastErr        error
}

// Error implements error.
func (e *RetryExhaustedError) Error() string {
	msg := fmt.Sprintf("reqwrap: max retries (%d) exceeded for %s", e.MaxRetries, e.URL)
	if e.LastStatusCode > 0 {
		msg += fmt.Sprintf(" (last status: %d)", e.LastStatusCode)
	}
	if e.LastErr != nil {
		msg += fmt.Sprintf(" (last error: %v)", e.LastErr)
	}
	return msg
}

// Unwrap returns the last transport error observed before exhaustion, if any.
func (e *RetryExhaustedError) Unwrap() error { return e.LastErr }
