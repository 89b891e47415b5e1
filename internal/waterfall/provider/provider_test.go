package provider

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/prospect-cli/internal/config"
	"github.com/sells-group/prospect-cli/internal/resilience"
)

type stubClient struct{ name string }

func (s *stubClient) Name() string { return s.name }
func (s *stubClient) Call(_ context.Context, _ Params) (*Response, error) {
	return &Response{Success: true}, nil
}

func TestRegistry(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	assert.Empty(t, r.List())
	assert.Nil(t, r.Get("hunter"))

	r.Register(&stubClient{name: "neverbounce"})
	r.Register(&stubClient{name: "hunter"})
	r.Register(&stubClient{name: "hunter"})

	assert.Equal(t, []string{"hunter", "neverbounce"}, r.List())
	assert.Equal(t, "hunter", r.Get("hunter").Name())

	var nilReg *Registry
	assert.Nil(t, nilReg.Get("hunter"))
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			r.Register(&stubClient{name: "apollo"})
		}()
		go func() {
			defer wg.Done()
			_ = r.Get("apollo")
			_ = r.List()
		}()
	}
	wg.Wait()
	assert.Len(t, r.List(), 1)
}

func newTestClient(t *testing.T, h http.HandlerFunc) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewHTTPClient("hunter", config.ProviderConfig{BaseURL: srv.URL, Key: "secret", TimeoutSecs: 5})
}

func TestHTTPClient_Envelope(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		var params map[string]any
		require.NoError(t, json.Unmarshal(body, &params))
		assert.Equal(t, "acme.com", params["domain"])

		_, _ = w.Write([]byte(`{"success":true,"cost":0.034,"data":{"emails":[{"value":"jane@acme.com"}]}}`))
	})

	resp, err := c.Call(context.Background(), Params{"domain": "acme.com"})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.True(t, resp.CostKnown)
	assert.InDelta(t, 0.034, resp.Cost, 1e-9)
	assert.JSONEq(t, `{"emails":[{"value":"jane@acme.com"}]}`, string(resp.Data))
	assert.Equal(t, "hunter", c.Name())
}

func TestHTTPClient_BareBody(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status":"active"}`))
	})
	resp, err := c.Call(context.Background(), Params{})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.False(t, resp.CostKnown)
	assert.JSONEq(t, `{"status":"active"}`, string(resp.Data))
}

func TestHTTPClient_ProviderFailure(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"success":false,"error":"domain not found"}`))
	})
	resp, err := c.Call(context.Background(), Params{})
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Nil(t, resp.Data)
}

func TestHTTPClient_StatusMapping(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name        string
		status      int
		rateLimited bool
		transient   bool
	}{
		{"429", http.StatusTooManyRequests, true, false},
		{"503", http.StatusServiceUnavailable, false, true},
		{"408", http.StatusRequestTimeout, false, true},
		{"400", http.StatusBadRequest, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Retry-After", "2")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"error":"nope"}`))
			})
			_, err := c.Call(context.Background(), Params{})
			require.Error(t, err)
			rl, ok := resilience.IsRateLimited(err)
			assert.Equal(t, tt.rateLimited, ok)
			if ok {
				assert.Equal(t, 2*time.Second, rl.RetryAfter)
			}
			assert.Equal(t, tt.transient, resilience.IsTransient(err))
		})
	}
}

func TestHTTPClient_InvalidJSON(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html>`))
	})
	_, err := c.Call(context.Background(), Params{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid JSON")
}

func TestHTTPClient_ContextCancelled(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(`{}`))
	})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.Call(ctx, Params{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestFromConfig(t *testing.T) {
	t.Parallel()
	r := FromConfig(config.ProvidersConfig{
		Hunter: config.ProviderConfig{BaseURL: "http://hunter.local"},
		Apollo: config.ProviderConfig{BaseURL: "http://apollo.local"},
	})
	assert.Equal(t, []string{"apollo", "hunter"}, r.List())
}
