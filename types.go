package reqwrap

import (
	"encoding/json"
	"net/textproto"
	"strings"
	"time"
)

// RequestSpec describes one logical HTTP request. It is normalized (method
// upper-cased, maps defensively copied) before any use, so the instance a
// caller passes in is never mutated.
type RequestSpec struct {
	Method  string
	URL     string
	Params  map[string]string
	Headers map[string]string
	Body    []byte

	// JSON, when non-nil and Body is nil, is marshaled into the request body
	// and Content-Type is set to application/json unless already present.
	JSON any
}

// normalized returns a copy with the method upper-cased and nil maps replaced
// by empty ones. The JSON payload, if any, is marshaled into Body here so the
// fingerprint and the wire both see the same bytes.
func (s *RequestSpec) normalized() (*RequestSpec, error) {
	n := &RequestSpec{
		Method:  strings.ToUpper(strings.TrimSpace(s.Method)),
		URL:     s.URL,
		Params:  copyStringMap(s.Params),
		Headers: copyStringMap(s.Headers),
	}
	if s.Body != nil {
		n.Body = append([]byte(nil), s.Body...)
	} else if s.JSON != nil {
		body, err := json.Marshal(s.JSON)
		if err != nil {
			return nil, &InvalidArgumentError{Name: "json", Value: s.JSON, Expected: "JSON-marshalable value"}
		}
		n.Body = body
		if _, ok := headerValue(n.Headers, "Content-Type"); !ok {
			n.Headers["Content-Type"] = "application/json"
		}
	}
	return n, nil
}

// validate enforces the parameters the dispatcher requires before the state
// machine starts.
func (s *RequestSpec) validate() error {
	if strings.TrimSpace(s.Method) == "" {
		return &InvalidArgumentError{Name: "method", Value: s.Method, Expected: "non-empty string"}
	}
	if strings.TrimSpace(s.URL) == "" {
		return &InvalidArgumentError{Name: "url", Value: s.URL, Expected: "non-empty string"}
	}
	return nil
}

// Response is a fully buffered HTTP response.
type Response struct {
	StatusCode int
	Reason     string
	Headers    map[string]string
	Body       []byte
}

// Text returns the response body as a string.
func (r *Response) Text() string { return string(r.Body) }

// JSON unmarshals the response body into v.
func (r *Response) JSON(v any) error { return json.Unmarshal(r.Body, v) }

// Header returns the value for key using case-insensitive matching, and
// whether it was present.
func (r *Response) Header(key string) (string, bool) {
	return headerValue(r.Headers, key)
}

// RequestOptions carries per-call overrides. A nil field means "use the
// client's configured default". Merge semantics are explicit: overrides are
// resolved once at the start of the call and apply to every attempt.
type RequestOptions struct {
	RetryCount *int
	Proxy      *ProxyConfig
	Timeout    *time.Duration
	VerifySSL  *bool
	UseCache   *bool
}

// Int returns a pointer to v, for use in RequestOptions.
func Int(v int) *int { return &v }

// Bool returns a pointer to v, for use in RequestOptions.
func Bool(v bool) *bool { return &v }

// Duration returns a pointer to v, for use in RequestOptions.
func Duration(v time.Duration) *time.Duration { return &v }

func copyStringMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func headerValue(headers map[string]string, key string) (string, bool) {
	canonical := textproto.CanonicalMIMEHeaderKey(key)
	for k, v := range headers {
		if textproto.CanonicalMIMEHeaderKey(k) == canonical {
			return v, true
		}
	}
	return "", false
}
