package discovery

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/prospect-cli/internal/config"
	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/pkg/foursquare"
	"github.com/sells-group/prospect-cli/pkg/google"
)

// googlePageSize is the largest page Places text search returns.
const googlePageSize = 20

// SearchClient runs one search against one provider. Zero results is an
// empty slice, not an error.
type SearchClient interface {
	Source() model.SourceID
	CostPerSearch() float64
	Search(ctx context.Context, query, location string, maxResults int) ([]json.RawMessage, error)
}

// GoogleSearch adapts the Places text search client. Each Search is a
// single billed request.
type GoogleSearch struct {
	client google.Client
	cost   float64
}

// NewGoogleSearch wraps a Places client priced at cost per request.
func NewGoogleSearch(c google.Client, cost float64) *GoogleSearch {
	return &GoogleSearch{client: c, cost: cost}
}

// Source implements SearchClient.
func (g *GoogleSearch) Source() model.SourceID { return model.SourceGooglePlaces }

// CostPerSearch implements SearchClient.
func (g *GoogleSearch) CostPerSearch() float64 { return g.cost }

// Search implements SearchClient.
func (g *GoogleSearch) Search(ctx context.Context, query, location string, maxResults int) ([]json.RawMessage, error) {
	text := Query{Term: query, Location: location}.Text()
	size := googlePageSize
	if maxResults > 0 && maxResults < size {
		size = maxResults
	}

	resp, err := g.client.TextSearch(ctx, google.TextSearchRequest{TextQuery: text, PageSize: size})
	if err != nil {
		return nil, eris.Wrap(err, "discovery: google text search")
	}
	return truncate(resp.Places, maxResults), nil
}

// FoursquareSearch adapts the Foursquare place search client.
type FoursquareSearch struct {
	client foursquare.Client
	cost   float64
}

// NewFoursquareSearch wraps a Foursquare client priced at cost per request.
func NewFoursquareSearch(c foursquare.Client, cost float64) *FoursquareSearch {
	return &FoursquareSearch{client: c, cost: cost}
}

// Source implements SearchClient.
func (f *FoursquareSearch) Source() model.SourceID { return model.SourceFoursquare }

// CostPerSearch implements SearchClient.
func (f *FoursquareSearch) CostPerSearch() float64 { return f.cost }

// Search implements SearchClient.
func (f *FoursquareSearch) Search(ctx context.Context, query, location string, maxResults int) ([]json.RawMessage, error) {
	resp, err := f.client.Search(ctx, foursquare.SearchRequest{Query: query, Near: location, Limit: maxResults})
	if err != nil {
		return nil, eris.Wrap(err, "discovery: foursquare search")
	}
	return truncate(resp.Results, maxResults), nil
}

func truncate(items []json.RawMessage, n int) []json.RawMessage {
	if items == nil {
		return []json.RawMessage{}
	}
	if n > 0 && len(items) > n {
		return items[:n]
	}
	return items
}

// ClientsFromConfig builds search clients for the configured sources that
// have an API key. Unknown sources are an error; keyless ones are skipped.
func ClientsFromConfig(cfg config.DiscoveryConfig, providers config.ProvidersConfig, pricing config.PricingConfig) ([]SearchClient, error) {
	var out []SearchClient
	for _, name := range cfg.Sources {
		switch model.SourceID(name) {
		case model.SourceGooglePlaces:
			pc := providers.GooglePlaces
			if pc.Key == "" {
				continue
			}
			var opts []google.Option
			if pc.BaseURL != "" {
				opts = append(opts, google.WithBaseURL(pc.BaseURL))
			}
			if pc.TimeoutSecs > 0 {
				opts = append(opts, google.WithHTTPClient(httpClient(pc.TimeoutSecs)))
			}
			out = append(out, NewGoogleSearch(google.NewClient(pc.Key, opts...), pricing.GooglePlacesPerSearch))
		case model.SourceFoursquare:
			pc := providers.Foursquare
			if pc.Key == "" {
				continue
			}
			var opts []foursquare.Option
			if pc.BaseURL != "" {
				opts = append(opts, foursquare.WithBaseURL(pc.BaseURL))
			}
			if pc.TimeoutSecs > 0 {
				opts = append(opts, foursquare.WithHTTPClient(httpClient(pc.TimeoutSecs)))
			}
			out = append(out, NewFoursquareSearch(foursquare.NewClient(pc.Key, opts...), pricing.FoursquarePerSearch))
		default:
			return nil, eris.Errorf("discovery: unsupported source %q", name)
		}
	}
	return out, nil
}

func httpClient(timeoutSecs int) *http.Client {
	return &http.Client{Timeout: time.Duration(timeoutSecs) * time.Second}
}
