package reqwrap

import (
	"net/url"
	"strings"
	"sync"
)

// ProxyConfig is a validated proxy endpoint. Construct with ParseProxy.
type ProxyConfig struct {
	url *url.URL
}

// ParseProxy validates a proxy URL. Supported schemes are http, https and
// socks5; anything else, or a URL without a host, is a *ProxyConfigError.
func ParseProxy(raw string) (*ProxyConfig, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, &ProxyConfigError{Proxy: raw, Reason: "empty proxy URL"}
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, &ProxyConfigError{Proxy: raw, Reason: err.Error()}
	}
	switch u.Scheme {
	case "http", "https", "socks5":
	default:
		return nil, &ProxyConfigError{Proxy: raw, Reason: "unsupported scheme " + u.Scheme}
	}
	if u.Host == "" {
		return nil, &ProxyConfigError{Proxy: raw, Reason: "missing host"}
	}
	return &ProxyConfig{url: u}, nil
}

// URL returns a copy of the parsed proxy URL.
func (p *ProxyConfig) URL() *url.URL {
	u := *p.url
	return &u
}

// Scheme returns the proxy scheme (http, https or socks5).
func (p *ProxyConfig) Scheme() string { return p.url.Scheme }

// String returns the proxy URL with any credentials intact. Use Redacted for
// log output.
func (p *ProxyConfig) String() string { return p.url.String() }

// Redacted returns the proxy URL with the password masked.
func (p *ProxyConfig) Redacted() string { return p.url.Redacted() }

// key identifies the proxy inside the transport pool.
func (p *ProxyConfig) key() string {
	if p == nil {
		return "direct"
	}
	return p.url.String()
}

// ProxyRotator yields proxies round-robin. The cursor is client-owned state
// guarded by a mutex so concurrent dispatches still observe a well-defined
// rotation sequence.
type ProxyRotator struct {
	mu     sync.Mutex
	pool   []*ProxyConfig
	cursor int
}

// NewProxyRotator copies the pool defensively: later mutation of the
// caller's slice cannot alter rotation.
func NewProxyRotator(pool []*ProxyConfig) *ProxyRotator {
	return &ProxyRotator{pool: append([]*ProxyConfig(nil), pool...)}
}

// Next returns the proxy at the cursor and advances it modulo the pool size,
// or nil when the pool is empty. The K-th call returns pool[K mod N].
func (r *ProxyRotator) Next() *ProxyConfig {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.pool) == 0 {
		return nil
	}
	p := r.pool[r.cursor]
	r.cursor = (r.cursor + 1) % len(r.pool)
	return p
}

// Size returns the number of proxies in the pool.
func (r *ProxyRotator) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pool)
}
