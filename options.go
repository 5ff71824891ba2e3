package reqwrap

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config is the fully enumerated client configuration. Every knob the
// original dynamic keyword surface exposed is an explicit field here with a
// documented default; per-call deviations go through RequestOptions instead.
type Config struct {
	// RetryCount bounds retries per logical request: total attempts are at
	// most RetryCount+1. Default 3.
	RetryCount int `validate:"gte=0"`

	// RetryStatusCodes is the set of response statuses treated as transient.
	// Default: 500, 502, 503, 504, 520, 521, 522, 523, 524.
	RetryStatusCodes []int `validate:"dive,gte=100,lte=599"`

	// Proxies is the ordered rotation pool. Default empty (direct).
	Proxies []string

	// CacheEnabled turns on the response cache. Default false.
	CacheEnabled bool

	// CacheDir is the disk cache directory. Default "httpcache".
	CacheDir string `validate:"required"`

	// CacheCompress gzips cached response bodies. Default false.
	CacheCompress bool

	// CacheExpiry bounds cache entry lifetime; zero means never expire.
	CacheExpiry time.Duration `validate:"gte=0"`

	// Timeout bounds each attempt, not the whole retry sequence. Default 30s.
	Timeout time.Duration `validate:"gt=0"`

	// VerifySSL controls TLS certificate verification. Default true.
	VerifySSL bool

	// UserAgent is sent when the caller supplies no User-Agent header.
	UserAgent string
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		RetryCount:       3,
		RetryStatusCodes: []int{500, 502, 503, 504, 520, 521, 522, 523, 524},
		Proxies:          nil,
		CacheEnabled:     false,
		CacheDir:         "httpcache",
		CacheCompress:    false,
		CacheExpiry:      0,
		Timeout:          30 * time.Second,
		VerifySSL:        true,
		UserAgent:        defaultUserAgent(),
	}
}

var validate = validator.New()

// Validate checks the configuration against its declared constraints.
func (c Config) Validate() error {
	return validate.Struct(c)
}

// Option configures a Client at construction time.
type Option func(*Client)

// WithConfig replaces the whole configuration. Slices are copied
// defensively, so later mutation of cfg by the caller has no effect.
func WithConfig(cfg Config) Option {
	return func(c *Client) {
		cfg.RetryStatusCodes = append([]int(nil), cfg.RetryStatusCodes...)
		cfg.Proxies = append([]string(nil), cfg.Proxies...)
		c.cfg = cfg
	}
}

// WithRetryCount sets the retry budget per logical request.
func WithRetryCount(n int) Option {
	return func(c *Client) {
		c.cfg.RetryCount = n
	}
}

// WithRetryStatusCodes replaces the retryable status-code set.
func WithRetryStatusCodes(codes ...int) Option {
	return func(c *Client) {
		c.cfg.RetryStatusCodes = append([]int(nil), codes...)
	}
}

// WithProxies sets the rotation pool. Each entry must be an http, https or
// socks5 URL; malformed entries surface as a *ProxyConfigError from
// ValidationError and the first request.
func WithProxies(proxies ...string) Option {
	return func(c *Client) {
		c.cfg.Proxies = append([]string(nil), proxies...)
	}
}

// WithCache enables the disk cache at dir.
func WithCache(dir string) Option {
	return func(c *Client) {
		c.cfg.CacheEnabled = true
		if dir != "" {
			c.cfg.CacheDir = dir
		}
	}
}

// WithCacheCompression gzips cached response bodies.
func WithCacheCompression() Option {
	return func(c *Client) {
		c.cfg.CacheCompress = true
	}
}

// WithCacheExpiry bounds cache entry lifetime.
func WithCacheExpiry(d time.Duration) Option {
	return func(c *Client) {
		c.cfg.CacheExpiry = d
	}
}

// WithCustomCache sets a custom cache backend (e.g. a MemoryCache or
// RedisCache) in place of the disk cache.
func WithCustomCache(cache ResponseCache) Option {
	return func(c *Client) {
		c.customCache = cache
		c.cfg.CacheEnabled = cache != nil && cache.Enabled()
	}
}

// WithTimeout sets the per-attempt timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.cfg.Timeout = d
	}
}

// WithVerifySSL controls TLS certificate verification. Disabling it makes
// every attempt skip verification; secure-channel errors can then only come
// from protocol-level failures.
func WithVerifySSL(verify bool) Option {
	return func(c *Client) {
		c.cfg.VerifySSL = verify
	}
}

// WithUserAgent sets the default User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.cfg.UserAgent = ua
	}
}

// WithTransport injects a custom transport in place of the built-in proxy
// transport pool. The effective proxy for each attempt is available to it
// via ProxyFromContext.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		c.transport = rt
	}
}

// WithHTTPClient dispatches attempts through an existing *http.Client,
// keeping its redirect policy and cookie jar. Its transport replaces the
// built-in proxy pool, so proxy rotation only applies if that transport
// honors ProxyFromContext.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
		if hc != nil && hc.Transport != nil {
			c.transport = hc.Transport
		}
	}
}

// WithLogger sets the logger the dispatcher speaks through.
func WithLogger(logger Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithSimpleLogger enables console logging.
func WithSimpleLogger() Option {
	return func(c *Client) {
		c.logger = NewSimpleLogger()
	}
}

// WithMetrics enables Prometheus metrics collection on the default registry.
func WithMetrics() Option {
	return func(c *Client) {
		c.metrics = NewMetricsCollector()
	}
}

// WithMetricsCollector sets a custom metrics collector.
func WithMetricsCollector(collector *MetricsCollector) Option {
	return func(c *Client) {
		c.metrics = collector
	}
}

// WithRequestIDGenerator sets a custom per-call request ID generator.
func WithRequestIDGenerator(gen func() string) Option {
	return func(c *Client) {
		c.requestIDGen = gen
	}
}

// WithBackoffUnit rescales the backoff schedule: waits become
// min(2^attempt, 10) units of d instead of seconds. Mainly for tests and
// latency-sensitive embedders.
func WithBackoffUnit(d time.Duration) Option {
	return func(c *Client) {
		c.backoff.Unit = d
	}
}
