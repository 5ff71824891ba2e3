// Package reqwrap provides a resilient HTTP client façade that layers three
// orthogonal behaviors over an injected transport:
//
//   - Automatic retries with capped exponential backoff, driven by a mutable
//     set of retryable status codes
//   - Round-robin proxy rotation (http, https and socks5 proxies)
//   - A content-addressed response cache keyed by a request fingerprint, with
//     disk, in-memory and Redis backends, optional compression and expiry
//
// Design goals:
//   - Small surface area: functional options configure everything
//   - Explicit, typed errors that carry enough context to diagnose without logs
//   - Safe concurrent use of a single *Client instance
//   - Extensibility via pluggable cache, transport, logger and metrics
//
// Typical usage:
//
//	client := reqwrap.New(
//	    reqwrap.WithRetryCount(3),
//	    reqwrap.WithProxies("http://proxy1:8080", "socks5://proxy2:1080"),
//	    reqwrap.WithCache("httpcache"),
//	    reqwrap.WithCacheExpiry(time.Hour),
//	)
//	resp, err := client.Get(ctx, "https://api.example.com/data", nil)
//
// Retries are driven purely by the configured status-code set: a response
// whose status is outside the set is returned to the caller as-is, even when
// it is a 4xx or 5xx. Secure-channel (TLS/certificate) failures are never
// retried. A cache hit short-circuits the retry loop entirely; only
// successful responses to GET and HEAD requests are persisted.
package reqwrap
