// Package foursquare is a minimal Places API place search client.
package foursquare

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/prospect-cli/internal/resilience"
)

const defaultBaseURL = "https://api.foursquare.com/v3"

// fields limits the response to what the normalizer reads.
const fields = "fsq_id,name,location,tel,website,email,categories"

// maxLimit is the largest page the search endpoint accepts.
const maxLimit = 50

// Client searches Foursquare places.
type Client interface {
	Search(ctx context.Context, req SearchRequest) (*SearchResponse, error)
}

// SearchRequest holds the query parameters of a place search.
type SearchRequest struct {
	Query string
	Near  string
	Limit int
}

// SearchResponse holds raw place results.
type SearchResponse struct {
	Results []json.RawMessage `json:"results"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = u
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates a Foursquare Places client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) Search(ctx context.Context, in SearchRequest) (*SearchResponse, error) {
	if in.Query == "" {
		return nil, eris.New("foursquare: query is required")
	}

	q := url.Values{}
	q.Set("query", in.Query)
	if in.Near != "" {
		q.Set("near", in.Near)
	}
	if in.Limit > 0 {
		q.Set("limit", strconv.Itoa(min(in.Limit, maxLimit)))
	}
	q.Set("fields", fields)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/places/search?"+q.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "foursquare: create request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "foursquare: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, eris.Wrap(err, "foursquare: read response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, resilience.ClassifyStatus("foursquare", resp.StatusCode, resp.Header.Get("Retry-After"), string(body))
	}

	var result SearchResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "foursquare: unmarshal response")
	}
	return &result, nil
}
