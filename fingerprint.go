package reqwrap

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
)

// Fingerprint is a collision-resistant digest identifying a logically-equal
// request. It addresses the response cache.
type Fingerprint [sha256.Size]byte

// String returns the hex digest, which is also the on-disk directory name of
// the cache entry.
func (f Fingerprint) String() string { return hex.EncodeToString(f[:]) }

// canonicalRequest is the shape digested for fingerprinting. Field order is
// fixed and map keys are sorted by encoding/json, so insertion order of the
// input maps never affects the result.
type canonicalRequest struct {
	Body    string            `json:"body"`
	Headers map[string]string `json:"headers"`
	Method  string            `json:"method"`
	Params  map[string]string `json:"params"`
	URL     string            `json:"url"`
}

// ComputeFingerprint derives the stable identifier for a request from its
// method, URL, headers, body and query parameters. It is a pure function:
// two field-wise equal requests (after method normalization) yield
// bit-identical fingerprints. The body is hex-encoded so empty and absent
// bodies digest identically.
func ComputeFingerprint(spec *RequestSpec) Fingerprint {
	headers := spec.Headers
	if headers == nil {
		headers = map[string]string{}
	}
	params := spec.Params
	if params == nil {
		params = map[string]string{}
	}

	canonical := canonicalRequest{
		Body:    hex.EncodeToString(spec.Body),
		Headers: headers,
		Method:  strings.ToUpper(spec.Method),
		Params:  params,
		URL:     spec.URL,
	}

	// Marshaling a map[string]string cannot fail.
	data, _ := json.Marshal(canonical)
	return sha256.Sum256(data)
}
