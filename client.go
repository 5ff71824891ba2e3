package reqwrap

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/egdose/reqwrap/internal/backoff"
)

// Client is the request dispatcher: it composes the fingerprint cache, the
// proxy rotator, the retry state machine and a transport into one "perform
// this request reliably" operation. It is safe for concurrent use; the
// rotation cursor and the retryable status set are the only shared mutable
// state and both are internally synchronized.
type Client struct {
	cfg         Config
	customCache ResponseCache

	retrySet     *retrySet
	rotator      *ProxyRotator
	cache        ResponseCache
	transport    http.RoundTripper
	httpClient   *http.Client
	pool         *transportPool
	logger       Logger
	metrics      *MetricsCollector
	requestIDGen func() string
	backoff      backoff.Exponential
	sleep        func(ctx context.Context, d time.Duration) error

	validationError error
}

// New constructs a Client from functional options. Construction never fails;
// configuration problems (malformed proxy URLs, invalid ranges) are recorded
// and surface from ValidationError and the first dispatch.
func New(options ...Option) *Client {
	c := &Client{
		cfg:          DefaultConfig(),
		backoff:      backoff.Default(),
		requestIDGen: uuid.NewString,
		sleep:        sleepContext,
	}

	for _, option := range options {
		option(c)
	}

	c.retrySet = newRetrySet(c.cfg.RetryStatusCodes)

	pool := make([]*ProxyConfig, 0, len(c.cfg.Proxies))
	for _, raw := range c.cfg.Proxies {
		p, err := ParseProxy(raw)
		if err != nil {
			c.recordValidationError(err)
			continue
		}
		pool = append(pool, p)
	}
	c.rotator = NewProxyRotator(pool)

	if c.customCache != nil {
		c.cache = c.customCache
	} else {
		disk, err := NewDiskCache(DiskCacheOptions{
			Dir:      c.cfg.CacheDir,
			Enabled:  c.cfg.CacheEnabled,
			Compress: c.cfg.CacheCompress,
			Expiry:   c.cfg.CacheExpiry,
		})
		if err != nil {
			c.recordValidationError(err)
			disk, _ = NewDiskCache(DiskCacheOptions{Dir: c.cfg.CacheDir, Enabled: false})
		}
		c.cache = disk
	}

	if c.transport == nil {
		c.pool = newTransportPool()
		c.transport = c.pool
	}

	if err := c.cfg.Validate(); err != nil {
		c.recordValidationError(err)
	}

	return c
}

func (c *Client) recordValidationError(err error) {
	if c.validationError == nil {
		c.validationError = err
	}
}

// IsValid reports whether configuration validation passed at construction.
func (c *Client) IsValid() bool { return c.validationError == nil }

// ValidationError returns the configuration validation error, if any.
func (c *Client) ValidationError() error { return c.validationError }

// Request performs one logical request: cache lookup, then the retry loop
// with proxy rotation and capped exponential backoff. opts may be nil; any
// nil field falls back to the client default.
func (c *Client) Request(ctx context.Context, spec *RequestSpec, opts *RequestOptions) (*Response, error) {
	if c.validationError != nil {
		return nil, c.validationError
	}
	if spec == nil {
		return nil, &InvalidArgumentError{Name: "spec", Value: nil, Expected: "non-nil request"}
	}
	if err := spec.validate(); err != nil {
		return nil, err
	}
	req, err := spec.normalized()
	if err != nil {
		return nil, err
	}

	call, err := c.resolveCall(opts)
	if err != nil {
		return nil, err
	}

	requestID := c.requestIDGen()
	ctx = context.WithValue(ctx, requestIDContextKey, requestID)
	endpoint := endpointFromURL(req.URL)
	start := time.Now()
	finalStatus := 0

	c.metrics.RecordRequestStart(req.Method, endpoint)
	defer func() {
		c.metrics.RecordRequestEnd(req.Method, endpoint)
		c.metrics.RecordRequest(req.Method, endpoint, finalStatus, time.Since(start))
	}()

	c.logInfo("starting request",
		"requestID", requestID, "method", req.Method, "url", req.URL, "maxRetries", call.retryCount)

	cacheable := call.useCache && isCacheableMethod(req.Method)
	if cacheable {
		entry, err := c.cache.Get(ctx, req)
		if err != nil {
			// A present but unreadable entry is an error, not a miss.
			return nil, err
		}
		if entry != nil {
			c.metrics.RecordCacheHit(req.Method, endpoint)
			finalStatus = entry.Response.StatusCode
			c.logInfo("cache hit",
				"requestID", requestID, "url", req.URL, "path", c.cacheEntryPath(req))
			return entry.Response, nil
		}
		c.metrics.RecordCacheMiss(req.Method, endpoint)
	}

	var lastResp *Response
	var lastErr error

	for attempt := 0; attempt <= call.retryCount; attempt++ {
		proxy := call.proxy
		if proxy == nil {
			proxy = c.rotator.Next()
		}
		c.metrics.RecordProxySelection(proxyLabel(proxy))
		if proxy != nil {
			c.logDebug("using proxy", "requestID", requestID, "proxy", proxy.Redacted())
		}
		if attempt > 0 {
			c.metrics.RecordRetry(req.Method, endpoint, attempt)
		}

		resp, err := c.doAttempt(ctx, req, proxy, call)

		var outcome attemptOutcome
		if err != nil {
			outcome = classifyError(ctx, err, req.URL)
		} else {
			outcome = classifyResponse(resp, c.retrySet)
		}

		switch outcome.kind {
		case outcomeSuccess:
			if attempt > 0 {
				c.logInfo("request succeeded after retries", "requestID", requestID, "retries", attempt)
			}
			if cacheable && resp.StatusCode < 400 {
				if storeErr := c.cache.Store(ctx, req, resp); storeErr != nil {
					// A failed store degrades the cache, never the request.
					c.metrics.RecordCacheStoreFailure(req.Method, endpoint)
					c.logWarn("cache store failed",
						"requestID", requestID, "url", req.URL, "error", storeErr)
				} else if c.metrics != nil {
					c.metrics.RecordCacheSize(cacheBackendName(c.cache), c.cache.Size(ctx))
				}
			}
			finalStatus = resp.StatusCode
			return resp, nil

		case outcomeFatal:
			c.metrics.RecordError(outcome.reason, req.Method, endpoint)
			c.logError("fatal failure, not retrying",
				"requestID", requestID, "url", req.URL, "reason", outcome.reason, "error", outcome.err)
			return nil, outcome.err

		case outcomeRetryable:
			if outcome.resp != nil {
				lastResp = outcome.resp
				c.logWarn("attempt failed",
					"requestID", requestID, "status", outcome.resp.StatusCode,
					"attempt", attempt+1, "maxAttempts", call.retryCount+1)
			} else {
				lastErr = outcome.err
				c.logWarn("attempt failed",
					"requestID", requestID, "error", outcome.err,
					"attempt", attempt+1, "maxAttempts", call.retryCount+1)
			}
			c.metrics.RecordError(outcome.reason, req.Method, endpoint)
		}

		if attempt < call.retryCount {
			delay := c.backoff.Delay(attempt)
			c.logInfo("retrying", "requestID", requestID, "wait", delay)
			if err := c.sleep(ctx, delay); err != nil {
				return nil, err
			}
		}
	}

	c.metrics.RecordRetryExhausted(req.Method, endpoint)
	lastStatus := 0
	if lastResp != nil {
		lastStatus = lastResp.StatusCode
	}
	exhausted := &RetryExhaustedError{
		URL:            req.URL,
		MaxRetries:     call.retryCount,
		LastStatusCode: lastStatus,
		LastErr:        lastErr,
	}
	c.logError("retries exhausted",
		"requestID", requestID, "url", req.URL,
		"maxRetries", call.retryCount, "lastStatus", lastStatus, "lastError", lastErr)
	return nil, exhausted
}

// Get performs a GET request.
func (c *Client) Get(ctx context.Context, url string, opts *RequestOptions) (*Response, error) {
	return c.Request(ctx, &RequestSpec{Method: http.MethodGet, URL: url}, opts)
}

// Head performs a HEAD request.
func (c *Client) Head(ctx context.Context, url string, opts *RequestOptions) (*Response, error) {
	return c.Request(ctx, &RequestSpec{Method: http.MethodHead, URL: url}, opts)
}

// Post performs a POST request with a raw body.
func (c *Client) Post(ctx context.Context, url string, body []byte, opts *RequestOptions) (*Response, error) {
	return c.Request(ctx, &RequestSpec{Method: http.MethodPost, URL: url, Body: body}, opts)
}

// PostJSON performs a POST request with a JSON payload.
func (c *Client) PostJSON(ctx context.Context, url string, payload any, opts *RequestOptions) (*Response, error) {
	return c.Request(ctx, &RequestSpec{Method: http.MethodPost, URL: url, JSON: payload}, opts)
}

// AddRetryStatusCode adds a status code to the retryable set at runtime.
func (c *Client) AddRetryStatusCode(code int) error {
	return c.retrySet.add(code)
}

// RemoveRetryStatusCode removes a status code from the retryable set.
func (c *Client) RemoveRetryStatusCode(code int) {
	c.retrySet.remove(code)
}

// RetryStatusCodes returns the retryable status codes, sorted ascending.
func (c *Client) RetryStatusCodes() []int {
	return c.retrySet.snapshot()
}

// Cache returns the response cache backend.
func (c *Client) Cache() ResponseCache { return c.cache }

// ClearCache removes all cached entries.
func (c *Client) ClearCache(ctx context.Context) error {
	return c.cache.Clear(ctx)
}

// CacheSize returns the number of cached entries.
func (c *Client) CacheSize(ctx context.Context) int {
	return c.cache.Size(ctx)
}

// Close releases idle transport connections. The client remains usable.
func (c *Client) Close() {
	if c.pool != nil {
		c.pool.CloseIdleConnections()
		return
	}
	type idleCloser interface{ CloseIdleConnections() }
	if closer, ok := c.transport.(idleCloser); ok {
		closer.CloseIdleConnections()
	}
}

// callSettings are the per-call effective values after merging overrides
// against the client defaults. Resolved once, applied to every attempt.
type callSettings struct {
	retryCount int
	proxy      *ProxyConfig // nil means rotate
	timeout    time.Duration
	verifySSL  bool
	useCache   bool
}

func (c *Client) resolveCall(opts *RequestOptions) (callSettings, error) {
	call := callSettings{
		retryCount: c.cfg.RetryCount,
		timeout:    c.cfg.Timeout,
		verifySSL:  c.cfg.VerifySSL,
		useCache:   c.cache != nil && c.cache.Enabled(),
	}
	if opts == nil {
		return call, nil
	}
	if opts.RetryCount != nil {
		if *opts.RetryCount < 0 {
			return call, &InvalidArgumentError{Name: "retryCount", Value: *opts.RetryCount, Expected: "non-negative integer"}
		}
		call.retryCount = *opts.RetryCount
	}
	if opts.Timeout != nil {
		if *opts.Timeout <= 0 {
			return call, &InvalidArgumentError{Name: "timeout", Value: *opts.Timeout, Expected: "positive duration"}
		}
		call.timeout = *opts.Timeout
	}
	if opts.VerifySSL != nil {
		call.verifySSL = *opts.VerifySSL
	}
	if opts.UseCache != nil {
		call.useCache = *opts.UseCache && c.cache != nil && c.cache.Enabled()
	}
	call.proxy = opts.Proxy
	return call, nil
}

// doAttempt executes one transport attempt under a per-attempt deadline.
func (c *Client) doAttempt(ctx context.Context, spec *RequestSpec, proxy *ProxyConfig, call callSettings) (*Response, error) {
	attemptCtx := withAttemptSettings(ctx, proxy, call.verifySSL)
	if call.timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(attemptCtx, call.timeout)
		defer cancel()
	}

	httpReq, err := c.buildHTTPRequest(attemptCtx, spec)
	if err != nil {
		return nil, err
	}

	httpClient := c.httpClient
	if httpClient == nil {
		httpClient = &http.Client{Transport: c.transport}
	}
	httpResp, err := httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, err
	}

	return &Response{
		StatusCode: httpResp.StatusCode,
		Reason:     reasonPhrase(httpResp),
		Headers:    flattenHeader(httpResp.Header),
		Body:       body,
	}, nil
}

func (c *Client) buildHTTPRequest(ctx context.Context, spec *RequestSpec) (*http.Request, error) {
	target, err := url.Parse(spec.URL)
	if err != nil {
		return nil, &InvalidArgumentError{Name: "url", Value: spec.URL, Expected: "valid URL"}
	}
	if len(spec.Params) > 0 {
		query := target.Query()
		for k, v := range spec.Params {
			query.Set(k, v)
		}
		target.RawQuery = query.Encode()
	}

	var body io.Reader
	if len(spec.Body) > 0 {
		body = bytes.NewReader(spec.Body)
	}

	req, err := http.NewRequestWithContext(ctx, spec.Method, target.String(), body)
	if err != nil {
		return nil, err
	}
	for k, v := range spec.Headers {
		req.Header.Set(k, v)
	}
	if req.Header.Get("User-Agent") == "" && c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}
	return req, nil
}

// cacheEntryPath returns the on-disk location backing the entry, for the
// cache-hit log line. Non-disk backends report the fingerprint instead.
func (c *Client) cacheEntryPath(spec *RequestSpec) string {
	if disk, ok := c.cache.(*DiskCache); ok {
		return filepath.Join(disk.Dir(), ComputeFingerprint(spec).String())
	}
	return ComputeFingerprint(spec).String()
}

func (c *Client) logDebug(msg string, keysAndValues ...any) {
	if c.logger != nil {
		c.logger.Debug(msg, keysAndValues...)
	}
}

func (c *Client) logInfo(msg string, keysAndValues ...any) {
	if c.logger != nil {
		c.logger.Info(msg, keysAndValues...)
	}
}

func (c *Client) logWarn(msg string, keysAndValues ...any) {
	if c.logger != nil {
		c.logger.Warn(msg, keysAndValues...)
	}
}

func (c *Client) logError(msg string, keysAndValues ...any) {
	if c.logger != nil {
		c.logger.Error(msg, keysAndValues...)
	}
}

// isCacheableMethod limits cache participation to the side-effect-free read
// methods.
func isCacheableMethod(method string) bool {
	return method == http.MethodGet || method == http.MethodHead
}

// sleepContext blocks for d or until ctx is done, whichever comes first.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// endpointFromURL extracts host+path for metric labels.
func endpointFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "unknown"
	}

	var builder strings.Builder
	builder.WriteString(u.Host)
	if u.Path != "" && u.Path != "/" {
		builder.WriteString(u.Path)
	} else {
		builder.WriteByte('/')
	}
	return builder.String()
}

func proxyLabel(p *ProxyConfig) string {
	if p == nil {
		return "direct"
	}
	return p.Redacted()
}

func cacheBackendName(cache ResponseCache) string {
	switch cache.(type) {
	case *DiskCache:
		return "disk"
	case *MemoryCache:
		return "memory"
	case *RedisCache:
		return "redis"
	default:
		return "custom"
	}
}

// reasonPhrase strips the numeric code from the status line, e.g.
// "200 OK" -> "OK".
func reasonPhrase(resp *http.Response) string {
	prefix := strconv.Itoa(resp.StatusCode)
	return strings.TrimSpace(strings.TrimPrefix(resp.Status, prefix))
}

func flattenHeader(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, values := range h {
		out[k] = strings.Join(values, ", ")
	}
	return out
}
