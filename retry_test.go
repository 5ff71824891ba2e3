package reqwrap

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"reflect"
	"syscall"
	"testing"
)

func TestClassifyResponse(t *testing.T) {
	set := newRetrySet([]int{500, 502, 503})

	tests := []struct {
		status int
		want   outcomeKind
	}{
		{200, outcomeSuccess},
		{201, outcomeSuccess},
		{301, outcomeSuccess},
		// Statuses outside the retryable set are successes, even errors.
		{404, outcomeSuccess},
		{418, outcomeSuccess},
		{501, outcomeSuccess},
		{500, outcomeRetryable},
		{502, outcomeRetryable},
		{503, outcomeRetryable},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("status %d", tt.status), func(t *testing.T) {
			outcome := classifyResponse(&Response{StatusCode: tt.status}, set)
			if outcome.kind != tt.want {
				t.Errorf("Expected kind %d for status %d, got %d", tt.want, tt.status, outcome.kind)
			}
			if outcome.resp == nil {
				t.Error("Expected the outcome to carry the response")
			}
		})
	}
}

type timeoutNetError struct{}

func (timeoutNetError) Error() string   { return "i/o timeout" }
func (timeoutNetError) Timeout() bool   { return true }
func (timeoutNetError) Temporary() bool { return true }

func TestClassifyError(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		err  error
		want outcomeKind
	}{
		{"deadline exceeded", context.DeadlineExceeded, outcomeRetryable},
		{"net timeout", &url.Error{Op: "Get", URL: "https://x", Err: timeoutNetError{}}, outcomeRetryable},
		{"proxyconnect", &url.Error{Op: "proxyconnect", URL: "https://x", Err: errors.New("connection refused")}, outcomeRetryable},
		{"socks connect", errors.New("socks connect tcp 127.0.0.1:1080->example.com:443: connection refused"), outcomeRetryable},
		{"connection refused", &net.OpError{Op: "dial", Err: os.NewSyscallError("connect", syscall.ECONNREFUSED)}, outcomeRetryable},
		{"connection reset", &url.Error{Op: "Get", URL: "https://x", Err: syscall.ECONNRESET}, outcomeRetryable},
		{"dns failure", &net.DNSError{Err: "no such host", Name: "nope.example.com"}, outcomeRetryable},
		{"unknown authority", &url.Error{Op: "Get", URL: "https://x", Err: x509.UnknownAuthorityError{}}, outcomeFatal},
		{"hostname mismatch", x509.HostnameError{Host: "wrong.example.com"}, outcomeFatal},
		{"cert verification", &url.Error{Op: "Get", URL: "https://x", Err: &tls.CertificateVerificationError{Err: x509.UnknownAuthorityError{}}}, outcomeFatal},
		{"tls record header", tls.RecordHeaderError{Msg: "not TLS"}, outcomeFatal},
		{"arbitrary error", errors.New("something odd"), outcomeFatal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome := classifyError(ctx, tt.err, "https://example.com")
			if outcome.kind != tt.want {
				t.Errorf("Expected kind %d, got %d (reason %q)", tt.want, outcome.kind, outcome.reason)
			}
		})
	}
}

func TestClassifyErrorSecureChannelWrapping(t *testing.T) {
	cause := &url.Error{Op: "Get", URL: "https://x", Err: x509.UnknownAuthorityError{}}
	outcome := classifyError(context.Background(), cause, "https://example.com")

	if outcome.kind != outcomeFatal {
		t.Fatalf("Expected a fatal outcome, got %d", outcome.kind)
	}
	var scErr *SecureChannelError
	if !errors.As(outcome.err, &scErr) {
		t.Fatalf("Expected a *SecureChannelError, got %T", outcome.err)
	}
	if scErr.URL != "https://example.com" {
		t.Errorf("Expected the target URL carried, got %q", scErr.URL)
	}
	var authErr x509.UnknownAuthorityError
	if !errors.As(scErr, &authErr) {
		t.Error("Expected the certificate error reachable through Unwrap")
	}
}

func TestClassifyErrorParentCancellationIsFatal(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcome := classifyError(ctx, context.Canceled, "https://example.com")
	if outcome.kind != outcomeFatal {
		t.Errorf("Expected caller cancellation to be fatal, got kind %d", outcome.kind)
	}
	if !errors.Is(outcome.err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", outcome.err)
	}
}

func TestClassifyErrorAttemptDeadlineIsRetryable(t *testing.T) {
	// The parent context is alive; only the per-attempt deadline fired.
	outcome := classifyError(context.Background(),
		&url.Error{Op: "Get", URL: "https://x", Err: context.DeadlineExceeded}, "https://example.com")
	if outcome.kind != outcomeRetryable {
		t.Errorf("Expected a per-attempt deadline to be retryable, got kind %d", outcome.kind)
	}
}

func TestRetrySetAddValidation(t *testing.T) {
	set := newRetrySet(nil)

	tests := []struct {
		code    int
		wantErr bool
	}{
		{100, false},
		{404, false},
		{599, false},
		{99, true},
		{600, true},
		{0, true},
		{-1, true},
	}

	for _, tt := range tests {
		err := set.add(tt.code)
		if tt.wantErr && err == nil {
			t.Errorf("Expected error adding %d", tt.code)
		}
		if !tt.wantErr && err != nil {
			t.Errorf("Unexpected error adding %d: %v", tt.code, err)
		}
		if tt.wantErr {
			var argErr *InvalidArgumentError
			if !errors.As(err, &argErr) {
				t.Errorf("Expected *InvalidArgumentError for %d, got %T", tt.code, err)
			}
		}
	}
}

func TestRetrySetAddRemoveContains(t *testing.T) {
	set := newRetrySet([]int{500})

	if !set.contains(500) {
		t.Error("Expected 500 in the initial set")
	}
	if set.contains(404) {
		t.Error("Did not expect 404 in the initial set")
	}

	if err := set.add(404); err != nil {
		t.Fatalf("add(404) failed: %v", err)
	}
	if !set.contains(404) {
		t.Error("Expected 404 after add")
	}

	set.remove(404)
	if set.contains(404) {
		t.Error("Did not expect 404 after remove")
	}
	set.remove(404) // removing an absent code is a no-op
}

func TestRetrySetSnapshotSorted(t *testing.T) {
	set := newRetrySet([]int{503, 500, 502})
	got := set.snapshot()
	want := []int{500, 502, 503}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

func TestRetrySetCopiesInput(t *testing.T) {
	codes := []int{500}
	set := newRetrySet(codes)
	codes[0] = 404
	if set.contains(404) {
		t.Error("Expected the set to be isolated from caller slice mutation")
	}
	if !set.contains(500) {
		t.Error("Expected the original code retained")
	}
}

func TestIsTimeoutError(t *testing.T) {
	if !isTimeoutError(context.DeadlineExceeded) {
		t.Error("Expected DeadlineExceeded to be a timeout")
	}
	if !isTimeoutError(timeoutNetError{}) {
		t.Error("Expected a net.Error with Timeout() true to be a timeout")
	}
	if isTimeoutError(errors.New("nope")) {
		t.Error("Did not expect an arbitrary error to be a timeout")
	}
}
