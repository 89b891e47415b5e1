package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-cli/internal/config"
	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/internal/resilience"
)

const maxResponseBytes = 4 << 20

// HTTPClient is a generic JSON-over-HTTP enrichment client. It POSTs the
// params and reads a {success, data, cost} envelope. A body without the
// envelope is treated as the data itself.
type HTTPClient struct {
	name    string
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewHTTPClient creates a client for one provider gateway.
func NewHTTPClient(name string, cfg config.ProviderConfig) *HTTPClient {
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{
		name:    name,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.Key,
		http: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

func (c *HTTPClient) Name() string { return c.name }

// Call posts params and decodes the response. 429 maps to
// resilience.RateLimitedError, 408 and 5xx to resilience.TransientError.
func (c *HTTPClient) Call(ctx context.Context, params Params) (*Response, error) {
	body, err := json.Marshal(params)
	if err != nil {
		return nil, eris.Wrapf(err, "%s: marshal params", c.name)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrapf(err, "%s: build request", c.name)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "%s: request", c.name)
	}
	defer resp.Body.Close() //nolint:errcheck

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrapf(err, "%s: read body", c.name), resp.StatusCode)
	}

	zap.L().Debug("provider: call finished",
		zap.String("provider", c.name),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, resilience.ClassifyStatus(c.name, resp.StatusCode, resp.Header.Get("Retry-After"), string(raw))
	}
	if !gjson.ValidBytes(raw) {
		return nil, eris.Errorf("%s: invalid JSON response", c.name)
	}

	out := &Response{Success: true, Data: json.RawMessage(raw)}
	if s := gjson.GetBytes(raw, "success"); s.Exists() {
		out.Success = s.Bool()
		if d := gjson.GetBytes(raw, "data"); d.Exists() {
			out.Data = json.RawMessage(d.Raw)
		} else {
			out.Data = nil
		}
	}
	if cost := gjson.GetBytes(raw, "cost"); cost.Exists() && cost.Type == gjson.Number {
		out.Cost = cost.Float()
		out.CostKnown = true
	}
	return out, nil
}

// FromConfig registers an HTTPClient for every enrichment provider with a
// base URL. Names match the model.SourceID of the provider.
func FromConfig(cfg config.ProvidersConfig) *Registry {
	r := NewRegistry()
	for _, p := range []struct {
		name model.SourceID
		cfg  config.ProviderConfig
	}{
		{model.SourceHunter, cfg.Hunter},
		{model.SourceNeverBounce, cfg.NeverBounce},
		{model.SourceApollo, cfg.Apollo},
		{model.SourceStateRegistry, cfg.StateRegistry},
	} {
		if p.cfg.BaseURL == "" {
			continue
		}
		r.Register(NewHTTPClient(string(p.name), p.cfg))
	}
	return r
}
