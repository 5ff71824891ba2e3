package reqwrap

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"io"
	"net"
	"net/url"
	"os"
	"sort"
	"strings"
	"sync"
	"syscall"
)

// outcomeKind classifies one attempt for the retry state machine. Outcomes
// are a tagged value consumed by the dispatch loop rather than errors used
// as control flow; error propagation is reserved for terminal conditions.
type outcomeKind int

const (
	outcomeSuccess outcomeKind = iota
	outcomeRetryable
	outcomeFatal
)

type attemptOutcome struct {
	kind   outcomeKind
	resp   *Response
	err    error
	reason string
}

// classifyResponse maps a received response onto the state machine. Retry is
// purely status-code-set driven: any status outside the retryable set is a
// success from the dispatcher's perspective, including 4xx/5xx statuses the
// caller chose not to retry.
func classifyResponse(resp *Response, retryable *retrySet) attemptOutcome {
	if retryable.contains(resp.StatusCode) {
		return attemptOutcome{kind: outcomeRetryable, resp: resp, reason: "retryable status"}
	}
	return attemptOutcome{kind: outcomeSuccess, resp: resp}
}

// classifyError maps a transport failure onto the state machine. Timeouts,
// connection failures and proxy failures are transient; secure-channel
// failures and everything else are fatal.
func classifyError(ctx context.Context, err error, targetURL string) attemptOutcome {
	if isSecureChannelError(err) {
		return attemptOutcome{
			kind:   outcomeFatal,
			err:    &SecureChannelError{URL: targetURL, Err: err},
			reason: "secure channel failure",
		}
	}

	// A canceled parent context aborts the whole call; a per-attempt
	// deadline is just a timed-out attempt.
	if ctx.Err() != nil && errors.Is(ctx.Err(), context.Canceled) {
		return attemptOutcome{kind: outcomeFatal, err: ctx.Err(), reason: "canceled"}
	}

	if isTimeoutError(err) {
		return attemptOutcome{kind: outcomeRetryable, err: err, reason: "timeout"}
	}
	if isProxyError(err) {
		return attemptOutcome{kind: outcomeRetryable, err: err, reason: "proxy failure"}
	}
	if isConnectionError(err) {
		return attemptOutcome{kind: outcomeRetryable, err: err, reason: "connection failure"}
	}

	return attemptOutcome{kind: outcomeFatal, err: err, reason: "non-retryable transport failure"}
}

// isSecureChannelError reports whether err is a TLS or certificate failure.
func isSecureChannelError(err error) bool {
	var certVerify *tls.CertificateVerificationError
	if errors.As(err, &certVerify) {
		return true
	}
	var recordHeader tls.RecordHeaderError
	if errors.As(err, &recordHeader) {
		return true
	}
	var unknownAuthority x509.UnknownAuthorityError
	if errors.As(err, &unknownAuthority) {
		return true
	}
	var hostname x509.HostnameError
	if errors.As(err, &hostname) {
		return true
	}
	var invalid x509.CertificateInvalidError
	if errors.As(err, &invalid) {
		return true
	}
	var systemRoots x509.SystemRootsError
	if errors.As(err, &systemRoots) {
		return true
	}
	return false
}

func isTimeoutError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// isProxyError recognizes failures establishing the proxy hop. net/http
// reports HTTP proxy dial failures under the "proxyconnect" op; the socks5
// dialer prefixes its errors with the scheme.
func isProxyError(err error) bool {
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Op == "proxyconnect" {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "socks connect") || strings.Contains(msg, "proxyconnect")
}

func isConnectionError(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNABORTED) || errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.EHOSTUNREACH) || errors.Is(err, syscall.ENETUNREACH) ||
		errors.Is(err, syscall.ETIMEDOUT) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		var syscallErr *os.SyscallError
		if errors.As(opErr.Err, &syscallErr) {
			return true
		}
		// Dial failures that carry no syscall detail are still connection
		// establishment problems.
		return opErr.Op == "dial" || opErr.Op == "read" || opErr.Op == "write"
	}
	return false
}

// retrySet is the mutable, client-owned set of retryable status codes. The
// input collection is defensively copied on construction, so later external
// mutation of the caller's slice cannot alter client behavior.
type retrySet struct {
	mu    sync.RWMutex
	codes map[int]struct{}
}

func newRetrySet(codes []int) *retrySet {
	s := &retrySet{codes: make(map[int]struct{}, len(codes))}
	for _, code := range codes {
		s.codes[code] = struct{}{}
	}
	return s
}

func (s *retrySet) contains(code int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.codes[code]
	return ok
}

func (s *retrySet) add(code int) error {
	if code < 100 || code > 599 {
		return &InvalidArgumentError{Name: "status_code", Value: code, Expected: "integer between 100 and 599"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[code] = struct{}{}
	return nil
}

func (s *retrySet) remove(code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.codes, code)
}

// snapshot returns the codes sorted ascending.
func (s *retrySet) snapshot() []int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]int, 0, len(s.codes))
	for code := range s.codes {
		out = append(out, code)
	}
	sort.Ints(out)
	return out
}
