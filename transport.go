package reqwrap

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"sync"

	xproxy "golang.org/x/net/proxy"
)

type contextKey string

const (
	proxyContextKey     contextKey = "reqwrap_proxy"
	verifySSLContextKey contextKey = "reqwrap_verify_ssl"
	requestIDContextKey contextKey = "reqwrap_request_id"
)

// withAttemptSettings attaches the effective proxy and TLS-verification flag
// for one attempt, where both the default transport pool and any custom
// transport can read them.
func withAttemptSettings(ctx context.Context, proxy *ProxyConfig, verifySSL bool) context.Context {
	ctx = context.WithValue(ctx, proxyContextKey, proxy)
	return context.WithValue(ctx, verifySSLContextKey, verifySSL)
}

// ProxyFromContext returns the proxy selected for the current attempt.
// Custom transports injected via WithTransport use this to honor rotation.
func ProxyFromContext(ctx context.Context) (*ProxyConfig, bool) {
	p, ok := ctx.Value(proxyContextKey).(*ProxyConfig)
	return p, ok && p != nil
}

// VerifySSLFromContext returns the TLS-verification flag for the current
// attempt; the second result is false outside a dispatch.
func VerifySSLFromContext(ctx context.Context) (bool, bool) {
	v, ok := ctx.Value(verifySSLContextKey).(bool)
	return v, ok
}

// RequestIDFromContext returns the dispatcher-assigned request ID, when the
// call is inside a dispatch.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestIDContextKey).(string)
	return id, ok && id != ""
}

// transportPool is the default transport: one tuned *http.Transport per
// (proxy, TLS-verification) combination, built lazily and reused so
// connection pooling is preserved per proxy.
type transportPool struct {
	mu         sync.Mutex
	transports map[transportKey]*http.Transport
}

type transportKey struct {
	proxy     string
	verifySSL bool
}

func newTransportPool() *transportPool {
	return &transportPool{transports: make(map[transportKey]*http.Transport)}
}

// RoundTrip implements http.RoundTripper using the attempt settings carried
// in the request context.
func (tp *transportPool) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	proxy, _ := ctx.Value(proxyContextKey).(*ProxyConfig)
	verifySSL := true
	if v, ok := ctx.Value(verifySSLContextKey).(bool); ok {
		verifySSL = v
	}

	tr, err := tp.get(proxy, verifySSL)
	if err != nil {
		return nil, err
	}
	return tr.RoundTrip(req)
}

func (tp *transportPool) get(proxy *ProxyConfig, verifySSL bool) (*http.Transport, error) {
	key := transportKey{proxy: proxy.key(), verifySSL: verifySSL}

	tp.mu.Lock()
	defer tp.mu.Unlock()
	if tr, ok := tp.transports[key]; ok {
		return tr, nil
	}

	tr, err := buildTransport(proxy, verifySSL)
	if err != nil {
		return nil, err
	}
	tp.transports[key] = tr
	return tr, nil
}

// CloseIdleConnections releases pooled connections across all transports.
func (tp *transportPool) CloseIdleConnections() {
	tp.mu.Lock()
	defer tp.mu.Unlock()
	for _, tr := range tp.transports {
		tr.CloseIdleConnections()
	}
}

// buildTransport derives a transport from net/http defaults for the given
// proxy. HTTP and HTTPS proxies go through http.ProxyURL; socks5 through a
// golang.org/x/net/proxy dialer.
func buildTransport(proxy *ProxyConfig, verifySSL bool) (*http.Transport, error) {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	if !verifySSL {
		if tr.TLSClientConfig == nil {
			tr.TLSClientConfig = &tls.Config{}
		}
		tr.TLSClientConfig.InsecureSkipVerify = true
	}

	if proxy == nil {
		tr.Proxy = nil
		return tr, nil
	}

	u := proxy.URL()
	switch u.Scheme {
	case "http", "https":
		tr.Proxy = http.ProxyURL(u)
	case "socks5":
		var auth *xproxy.Auth
		if u.User != nil {
			password, _ := u.User.Password()
			auth = &xproxy.Auth{User: u.User.Username(), Password: password}
		}
		dialer, err := xproxy.SOCKS5("tcp", u.Host, auth, xproxy.Direct)
		if err != nil {
			return nil, &ProxyConfigError{Proxy: proxy.Redacted(), Reason: err.Error()}
		}
		tr.Proxy = nil
		if cd, ok := dialer.(xproxy.ContextDialer); ok {
			tr.DialContext = cd.DialContext
		} else {
			tr.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
				return dialer.Dial(network, addr)
			}
		}
	}
	return tr, nil
}
