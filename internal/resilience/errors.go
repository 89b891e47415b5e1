package resilience

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// TransientError wraps a provider transport failure that is safe to retry
// (408, 5xx, network timeout).
type TransientError struct {
	Err        error
	StatusCode int
}

func (e *TransientError) Error() string {
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// NewTransientError wraps an error as transient with an optional HTTP status code.
func NewTransientError(err error, statusCode int) *TransientError {
	return &TransientError{Err: err, StatusCode: statusCode}
}

// RateLimitedError is returned when a provider answers 429. RetryAfter is
// zero when the provider gave no hint.
type RateLimitedError struct {
	Provider   string
	RetryAfter time.Duration
	Err        error
}

func (e *RateLimitedError) Error() string {
	msg := fmt.Sprintf("%s: rate limited", e.Provider)
	if e.RetryAfter > 0 {
		msg += fmt.Sprintf(" (retry after %s)", e.RetryAfter)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RateLimitedError) Unwrap() error {
	return e.Err
}

// IsRateLimited reports whether err carries a RateLimitedError and returns it.
func IsRateLimited(err error) (*RateLimitedError, bool) {
	var rl *RateLimitedError
	if err != nil && errors.As(err, &rl) {
		return rl, true
	}
	return nil, false
}

// IsTransient returns true if the error chain holds a TransientError or
// matches a common network failure (timeout, reset, DNS).
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var te *TransientError
	if errors.As(err, &te) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

var transientPatterns = []string{
	"connection reset by peer",
	"broken pipe",
	"temporary failure in name resolution",
	"no such host",
	"tls handshake timeout",
	"i/o timeout",
	"server closed idle connection",
	"transport connection broken",
}

// IsRetryable reports whether a failed call may be attempted again.
func IsRetryable(err error) bool {
	if _, ok := IsRateLimited(err); ok {
		return true
	}
	return IsTransient(err)
}

// IsTransientHTTPStatus returns true for status codes that indicate a
// temporary server-side problem.
func IsTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// ClassifyStatus turns a non-2xx provider response into the error taxonomy:
// 429 becomes a RateLimitedError, 408 and 5xx a TransientError, anything
// else a plain error. retryAfter is the raw Retry-After header value.
func ClassifyStatus(provider string, statusCode int, retryAfter string, body string) error {
	base := fmt.Errorf("%s: http %d: %s", provider, statusCode, truncate(body, 200))
	switch {
	case statusCode == http.StatusTooManyRequests:
		return &RateLimitedError{Provider: provider, RetryAfter: ParseRetryAfter(retryAfter), Err: base}
	case statusCode == http.StatusRequestTimeout || statusCode >= 500:
		return NewTransientError(base, statusCode)
	default:
		return base
	}
}

// ParseRetryAfter reads a Retry-After header in either delta-seconds or
// HTTP-date form. Unparseable values yield zero.
func ParseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
