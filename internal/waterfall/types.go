package waterfall

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/prospect-cli/internal/model"
)

// StageSet is the set of stages a caller allows. A nil set allows all.
type StageSet map[model.StageName]bool

// AllStages returns a set with every stage enabled.
func AllStages() StageSet {
	s := make(StageSet, len(model.StageOrder))
	for _, name := range model.StageOrder {
		s[name] = true
	}
	return s
}

// ParseStageSet builds a set from stage names. An empty list means all.
func ParseStageSet(names []string) (StageSet, error) {
	if len(names) == 0 {
		return AllStages(), nil
	}
	s := make(StageSet, len(names))
	for _, n := range names {
		name := model.StageName(strings.TrimSpace(n))
		if model.StageIndex(name) < 0 {
			return nil, eris.Errorf("waterfall: unknown stage %q", n)
		}
		s[name] = true
	}
	return s, nil
}

// Has reports whether the stage is enabled.
func (s StageSet) Has(name model.StageName) bool {
	if s == nil {
		return true
	}
	return s[name]
}

// Outcome is the result of one record's waterfall.
type Outcome struct {
	Status  model.WaterfallStatus    `json:"status"`
	Results []model.EnrichmentResult `json:"results"`
	Spent   float64                  `json:"spent"`
}

// WebsiteProber checks whether a website answers.
type WebsiteProber interface {
	Probe(ctx context.Context, url string) (bool, error)
}

// HTTPProber issues a HEAD request and falls back to GET when the server
// rejects HEAD. Any status below 400 counts as reachable.
type HTTPProber struct {
	client *http.Client
}

// NewHTTPProber creates a prober with the given timeout.
func NewHTTPProber(timeout time.Duration) *HTTPProber {
	return &HTTPProber{client: &http.Client{Timeout: timeout}}
}

func (p *HTTPProber) Probe(ctx context.Context, rawURL string) (bool, error) {
	url := strings.TrimSpace(rawURL)
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		url = "https://" + url
	}
	status, err := p.do(ctx, http.MethodHead, url)
	if err == nil && (status == http.StatusMethodNotAllowed || status == http.StatusNotImplemented) {
		status, err = p.do(ctx, http.MethodGet, url)
	}
	if err != nil {
		return false, err
	}
	return status < 400, nil
}

func (p *HTTPProber) do(ctx context.Context, method, url string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return 0, eris.Wrapf(err, "waterfall: probe request %s", url)
	}
	req.Header.Set("User-Agent", "prospect-cli/1.0")
	resp, err := p.client.Do(req)
	if err != nil {
		return 0, eris.Wrapf(err, "waterfall: probe %s", url)
	}
	resp.Body.Close() //nolint:errcheck
	return resp.StatusCode, nil
}
