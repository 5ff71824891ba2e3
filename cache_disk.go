package reqwrap

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	fileRequestBody     = "request_body"
	fileRequestHeaders  = "request_headers"
	fileResponseBody    = "response_body"
	fileResponseBodyGz  = "response_body.gz"
	fileResponseHeaders = "response_headers"
	fileMeta            = "meta"
)

// diskMeta is the JSON metadata stored alongside each entry. The timestamp
// is unix seconds so entries are portable across implementations.
type diskMeta struct {
	Timestamp  float64 `json:"timestamp"`
	Method     string  `json:"method"`
	URL        string  `json:"url"`
	StatusCode int     `json:"status_code"`
	Reason     string  `json:"reason"`
}

// DiskCacheOptions configures a DiskCache.
type DiskCacheOptions struct {
	// Dir is the backing directory; one subdirectory per fingerprint.
	Dir string
	// Enabled turns the cache on. A disabled cache always misses, ignores
	// stores and reports size 0.
	Enabled bool
	// Compress gzips the response body payload. Transparent to readers:
	// Get always returns the uncompressed bytes, and entries written with
	// either setting remain readable after the flag is toggled.
	Compress bool
	// Expiry bounds entry lifetime; zero means entries never expire.
	Expiry time.Duration
}

// DiskCache is the canonical ResponseCache backend: a content-addressed
// directory tree, one directory per fingerprint, published atomically so a
// concurrent reader never observes a partially written entry.
type DiskCache struct {
	dir      string
	enabled  bool
	compress bool
	expiry   time.Duration

	now func() time.Time
}

// NewDiskCache creates the backing directory when the cache is enabled and
// returns a ready DiskCache. Directory creation failure is a *CacheError
// with Op CacheOpCreate.
func NewDiskCache(opts DiskCacheOptions) (*DiskCache, error) {
	c := &DiskCache{
		dir:      opts.Dir,
		enabled:  opts.Enabled,
		compress: opts.Compress,
		expiry:   opts.Expiry,
		now:      time.Now,
	}
	if c.dir == "" {
		c.dir = "httpcache"
	}
	if c.enabled {
		if err := os.MkdirAll(c.dir, 0o755); err != nil {
			return nil, &CacheError{Op: CacheOpCreate, Path: c.dir, Err: err}
		}
	}
	return c, nil
}

// Dir returns the backing directory path.
func (c *DiskCache) Dir() string { return c.dir }

// Enabled implements ResponseCache.
func (c *DiskCache) Enabled() bool { return c.enabled }

// entryPath returns the directory holding the entry for spec.
func (c *DiskCache) entryPath(spec *RequestSpec) string {
	return filepath.Join(c.dir, ComputeFingerprint(spec).String())
}

// Get implements ResponseCache. Absent, partial and expired entries read
// back as misses; a present, fresh entry that cannot be read is an error.
func (c *DiskCache) Get(ctx context.Context, spec *RequestSpec) (*CacheEntry, error) {
	if !c.enabled {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dir := c.entryPath(spec)
	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}

	meta, ok := c.readMeta(dir)
	if !ok || c.isExpired(meta) {
		// Unreadable metadata fails safe toward a miss.
		return nil, nil
	}

	bodyPath, compressed, ok := responseBodyPath(dir)
	if !ok {
		return nil, nil // partial entry: body never published
	}
	if _, err := os.Stat(filepath.Join(dir, fileResponseHeaders)); errors.Is(err, fs.ErrNotExist) {
		return nil, nil // partial entry: headers never published
	}

	body, err := readBody(bodyPath, compressed)
	if err != nil {
		return nil, &CacheError{Op: CacheOpRead, Path: bodyPath, Err: err}
	}

	headersRaw, err := os.ReadFile(filepath.Join(dir, fileResponseHeaders))
	if err != nil {
		return nil, &CacheError{Op: CacheOpRead, Path: filepath.Join(dir, fileResponseHeaders), Err: err}
	}
	var headers map[string]string
	if err := json.Unmarshal(headersRaw, &headers); err != nil {
		return nil, &CacheError{Op: CacheOpRead, Path: filepath.Join(dir, fileResponseHeaders), Err: err}
	}

	entry := &CacheEntry{
		Response: &Response{
			StatusCode: meta.StatusCode,
			Reason:     meta.Reason,
			Headers:    headers,
			Body:       body,
		},
		Method:   meta.Method,
		URL:      meta.URL,
		StoredAt: time.Unix(0, int64(meta.Timestamp*float64(time.Second))),
	}

	// Request side is audit data; load best-effort.
	if raw, err := os.ReadFile(filepath.Join(dir, fileRequestHeaders)); err == nil {
		var reqHeaders map[string]string
		if json.Unmarshal(raw, &reqHeaders) == nil {
			entry.RequestHeaders = reqHeaders
		}
	}
	if raw, err := os.ReadFile(filepath.Join(dir, fileRequestBody)); err == nil {
		entry.RequestBody = raw
	}

	return entry, nil
}

// Store implements ResponseCache. The whole quintet is written into a
// scratch directory and renamed into place, so readers see all of it or
// none of it. Losing a same-fingerprint publish race counts as success.
func (c *DiskCache) Store(ctx context.Context, spec *RequestSpec, resp *Response) error {
	if !c.enabled {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	tmp, err := os.MkdirTemp(c.dir, ".tmp-")
	if err != nil {
		return &CacheError{Op: CacheOpWrite, Path: c.dir, Err: err}
	}
	defer os.RemoveAll(tmp)

	meta := diskMeta{
		Timestamp:  float64(c.now().UnixNano()) / float64(time.Second),
		Method:     spec.Method,
		URL:        spec.URL,
		StatusCode: resp.StatusCode,
		Reason:     resp.Reason,
	}

	if err := c.writeEntryFiles(tmp, spec, resp, meta); err != nil {
		return &CacheError{Op: CacheOpWrite, Path: tmp, Err: err}
	}

	final := c.entryPath(spec)
	_ = os.RemoveAll(final)
	if err := os.Rename(tmp, final); err != nil {
		if _, statErr := os.Stat(final); statErr == nil {
			return nil // a concurrent writer published the same fingerprint
		}
		return &CacheError{Op: CacheOpWrite, Path: final, Err: err}
	}
	return nil
}

func (c *DiskCache) writeEntryFiles(dir string, spec *RequestSpec, resp *Response, meta diskMeta) error {
	reqHeaders, err := json.Marshal(nonNilMap(spec.Headers))
	if err != nil {
		return err
	}
	respHeaders, err := json.Marshal(nonNilMap(resp.Headers))
	if err != nil {
		return err
	}
	metaRaw, err := json.Marshal(meta)
	if err != nil {
		return err
	}

	if err := os.WriteFile(filepath.Join(dir, fileRequestHeaders), reqHeaders, 0o644); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, fileRequestBody), spec.Body, 0o644); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, fileResponseHeaders), respHeaders, 0o644); err != nil {
		return err
	}
	if err := c.writeResponseBody(dir, resp.Body); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, fileMeta), metaRaw, 0o644)
}

func (c *DiskCache) writeResponseBody(dir string, body []byte) error {
	if !c.compress {
		return os.WriteFile(filepath.Join(dir, fileResponseBody), body, 0o644)
	}
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(body); err != nil {
		return err
	}
	if err := gz.Close(); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, fileResponseBodyGz), buf.Bytes(), 0o644)
}

// Delete implements ResponseCache.
func (c *DiskCache) Delete(ctx context.Context, spec *RequestSpec) (bool, error) {
	if !c.enabled {
		return false, nil
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	dir := c.entryPath(spec)
	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err := os.RemoveAll(dir); err != nil {
		return false, &CacheError{Op: CacheOpDelete, Path: dir, Err: err}
	}
	return true, nil
}

// Clear implements ResponseCache: it removes every entry and recreates the
// empty backing store.
func (c *DiskCache) Clear(ctx context.Context) error {
	if !c.enabled {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := os.RemoveAll(c.dir); err != nil {
		return &CacheError{Op: CacheOpClear, Path: c.dir, Err: err}
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return &CacheError{Op: CacheOpClear, Path: c.dir, Err: err}
	}
	return nil
}

// Size implements ResponseCache: the count of top-level entry directories.
// Scratch directories (dot-prefixed) are invisible.
func (c *DiskCache) Size(ctx context.Context) int {
	if !c.enabled {
		return 0
	}
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return 0
	}
	count := 0
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			count++
		}
	}
	return count
}

func (c *DiskCache) readMeta(dir string) (diskMeta, bool) {
	raw, err := os.ReadFile(filepath.Join(dir, fileMeta))
	if err != nil {
		return diskMeta{}, false
	}
	var meta diskMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return diskMeta{}, false
	}
	return meta, true
}

func (c *DiskCache) isExpired(meta diskMeta) bool {
	if c.expiry <= 0 {
		return false
	}
	storedAt := time.Unix(0, int64(meta.Timestamp*float64(time.Second)))
	return c.now().Sub(storedAt) > c.expiry
}

// responseBodyPath locates the stored body, compressed or not, so entries
// survive toggling the compress flag.
func responseBodyPath(dir string) (path string, compressed, ok bool) {
	plain := filepath.Join(dir, fileResponseBody)
	if _, err := os.Stat(plain); err == nil {
		return plain, false, true
	}
	gz := filepath.Join(dir, fileResponseBodyGz)
	if _, err := os.Stat(gz); err == nil {
		return gz, true, true
	}
	return "", false, false
}

func readBody(path string, compressed bool) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if !compressed {
		return raw, nil
	}
	gz, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	defer gz.Close()
	return io.ReadAll(gz)
}

func nonNilMap(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
