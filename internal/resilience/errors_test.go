package resilience

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"syscall"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsTransient(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"explicit", NewTransientError(errors.New("overloaded"), 503), true},
		{"wrapped", eris.Wrap(NewTransientError(errors.New("bad gateway"), 502), "hunter: call"), true},
		{"plain", errors.New("invalid input: missing field"), false},
		{"conn reset", fmt.Errorf("write tcp: %w", syscall.ECONNRESET), true},
		{"conn refused", fmt.Errorf("dial tcp: %w", syscall.ECONNREFUSED), true},
		{"net timeout", &net.DNSError{IsTimeout: true, Err: "timeout"}, true},
		{"tls pattern", errors.New("net/http: TLS handshake timeout"), true},
		{"broken pipe", errors.New("write: broken pipe"), true},
		{"rate limited is not transient", &RateLimitedError{Provider: "apollo"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestIsRateLimited(t *testing.T) {
	t.Parallel()
	inner := &RateLimitedError{Provider: "hunter", RetryAfter: 2 * time.Second}
	wrapped := eris.Wrap(inner, "waterfall: domain search")

	rl, ok := IsRateLimited(wrapped)
	require.True(t, ok)
	assert.Equal(t, "hunter", rl.Provider)
	assert.Equal(t, 2*time.Second, rl.RetryAfter)
	assert.True(t, IsRetryable(wrapped))

	_, ok = IsRateLimited(errors.New("nope"))
	assert.False(t, ok)
	_, ok = IsRateLimited(nil)
	assert.False(t, ok)
}

func TestRateLimitedError_Message(t *testing.T) {
	t.Parallel()
	err := &RateLimitedError{Provider: "apollo", RetryAfter: 3 * time.Second, Err: errors.New("slow down")}
	assert.Equal(t, "apollo: rate limited (retry after 3s): slow down", err.Error())
	assert.Equal(t, "apollo: rate limited", (&RateLimitedError{Provider: "apollo"}).Error())
}

func TestIsTransientHTTPStatus(t *testing.T) {
	t.Parallel()
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		assert.True(t, IsTransientHTTPStatus(code), "HTTP %d", code)
	}
	for _, code := range []int{200, 201, 400, 401, 403, 404, 409, 422} {
		assert.False(t, IsTransientHTTPStatus(code), "HTTP %d", code)
	}
}

func TestClassifyStatus(t *testing.T) {
	t.Parallel()

	err := ClassifyStatus("hunter", http.StatusTooManyRequests, "5", "quota")
	rl, ok := IsRateLimited(err)
	require.True(t, ok)
	assert.Equal(t, 5*time.Second, rl.RetryAfter)

	err = ClassifyStatus("hunter", http.StatusServiceUnavailable, "", "down")
	var te *TransientError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, 503, te.StatusCode)

	err = ClassifyStatus("hunter", http.StatusRequestTimeout, "", "")
	assert.True(t, IsTransient(err))

	err = ClassifyStatus("hunter", http.StatusUnauthorized, "", "bad key")
	assert.False(t, IsRetryable(err))
	assert.Contains(t, err.Error(), "http 401")
}

func TestParseRetryAfter(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 10*time.Second, ParseRetryAfter("10"))
	assert.Zero(t, ParseRetryAfter(""))
	assert.Zero(t, ParseRetryAfter("-3"))
	assert.Zero(t, ParseRetryAfter("soon"))

	future := time.Now().Add(90 * time.Second).UTC().Format(http.TimeFormat)
	d := ParseRetryAfter(future)
	assert.Greater(t, d, 60*time.Second)
	assert.LessOrEqual(t, d, 90*time.Second)
}

func TestTransientError_Unwrap(t *testing.T) {
	t.Parallel()
	inner := errors.New("root cause")
	te := NewTransientError(inner, 500)
	assert.True(t, errors.Is(te, inner))
	assert.Equal(t, "root cause", te.Error())
}
