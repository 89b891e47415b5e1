// Package normalize maps raw provider payloads onto the canonical
// BusinessRecord. Nothing downstream reads a provider payload directly.
package normalize

import (
	"encoding/json"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-cli/internal/model"
)

var (
	// ErrMissingName is returned when no name alias resolves.
	ErrMissingName = eris.New("normalize: missing name")
	// ErrInvalidPayload is returned when the payload is not a JSON object.
	ErrInvalidPayload = eris.New("normalize: invalid payload")
	// ErrUnknownSource is returned for a source with no schema.
	ErrUnknownSource = eris.New("normalize: unknown source")
)

// Drop reasons recorded in BatchStats.
const (
	ReasonMissingName    = "missing_name"
	ReasonInvalidPayload = "invalid_payload"
	ReasonUnknownSource  = "unknown_source"
)

// contactBonus is added to the base confidence per populated contact field.
const contactBonus = 5

// RawItem is one provider response item awaiting normalization.
type RawItem struct {
	Source  model.SourceID  `json:"source"`
	Payload json.RawMessage `json:"payload"`
}

// Drop records an item that was not passed downstream.
type Drop struct {
	Source model.SourceID `json:"source"`
	Index  int            `json:"index"`
	Reason string         `json:"reason"`
}

// BatchStats counts what happened to a batch.
type BatchStats struct {
	Received int    `json:"received"`
	Accepted int    `json:"accepted"`
	Drops    []Drop `json:"drops,omitempty"`
	// WebsitesCleared counts accepted records whose website pointed at a
	// directory listing.
	WebsitesCleared int `json:"websites_cleared,omitempty"`
}

// Normalizer converts provider payloads using per-source schemas.
type Normalizer struct {
	schemas   map[model.SourceID]Schema
	blocklist []string
	newID     func() string
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithWebsiteBlocklist clears websites hosted on any of hosts (or their
// subdomains). Listing sites such as yelp.com stand in for the business
// and would send enrichment to the wrong domain.
func WithWebsiteBlocklist(hosts []string) Option {
	return func(n *Normalizer) { n.blocklist = hosts }
}

// New creates a Normalizer. A nil schema map uses DefaultSchemas.
func New(schemas map[model.SourceID]Schema, opts ...Option) *Normalizer {
	if schemas == nil {
		schemas = DefaultSchemas()
	}
	n := &Normalizer{schemas: schemas, newID: uuid.NewString}
	for _, o := range opts {
		o(n)
	}
	return n
}

// Normalize maps one payload onto a BusinessRecord. The payload is copied
// into RawPayload so later mutation of the caller's buffer has no effect.
// A directory website is cleared here, before the record is built, so the
// record is final when it is returned.
func (n *Normalizer) Normalize(source model.SourceID, raw json.RawMessage) (model.BusinessRecord, error) {
	rec, _, err := n.normalize(source, raw)
	return rec, err
}

func (n *Normalizer) normalize(source model.SourceID, raw json.RawMessage) (model.BusinessRecord, bool, error) {
	schema, ok := n.schemas[source]
	if !ok {
		return model.BusinessRecord{}, false, eris.Wrapf(ErrUnknownSource, "source %q", source)
	}
	if !gjson.ValidBytes(raw) || !gjson.ParseBytes(raw).IsObject() {
		return model.BusinessRecord{}, false, ErrInvalidPayload
	}

	doc := gjson.ParseBytes(raw)
	rec := model.BusinessRecord{
		Name:    first(doc, schema.Name),
		Address: first(doc, schema.Address),
		Phone:   first(doc, schema.Phone),
		Website: first(doc, schema.Website),
		Email:   strings.ToLower(first(doc, schema.Email)),
		Source:  source,
	}
	if rec.Name == "" {
		return model.BusinessRecord{}, false, ErrMissingName
	}

	cleared := false
	if rec.Website != "" && isDirectoryURL(rec.Website, n.blocklist) {
		rec.Website = ""
		cleared = true
	}

	rec.ID = n.newID()
	rec.SourceConfidence = confidence(doc, schema, rec)
	rec.RawPayload = append(json.RawMessage(nil), raw...)
	return rec, cleared, nil
}

// NormalizeBatch normalizes every item, counting drops. Items are never
// retried.
func (n *Normalizer) NormalizeBatch(items []RawItem) ([]model.BusinessRecord, BatchStats) {
	stats := BatchStats{Received: len(items)}
	out := make([]model.BusinessRecord, 0, len(items))

	for i, item := range items {
		rec, cleared, err := n.normalize(item.Source, item.Payload)
		if err != nil {
			reason := dropReason(err)
			stats.Drops = append(stats.Drops, Drop{Source: item.Source, Index: i, Reason: reason})
			zap.L().Debug("normalize: dropped item",
				zap.String("source", string(item.Source)),
				zap.Int("index", i),
				zap.String("reason", reason),
			)
			continue
		}
		if cleared {
			stats.WebsitesCleared++
		}
		out = append(out, rec)
	}

	stats.Accepted = len(out)
	return out, stats
}

func dropReason(err error) string {
	switch {
	case eris.Is(err, ErrMissingName):
		return ReasonMissingName
	case eris.Is(err, ErrUnknownSource):
		return ReasonUnknownSource
	default:
		return ReasonInvalidPayload
	}
}

// isDirectoryURL checks if a URL's hostname matches any entry in the blocklist.
func isDirectoryURL(website string, blocklist []string) bool {
	if len(blocklist) == 0 {
		return false
	}
	if !strings.Contains(website, "://") {
		website = "https://" + website
	}
	u, err := url.Parse(website)
	if err != nil {
		return false
	}

	host := strings.ToLower(u.Hostname())
	host = strings.TrimPrefix(host, "www.")

	for _, blocked := range blocklist {
		blocked = strings.ToLower(blocked)
		if host == blocked || strings.HasSuffix(host, "."+blocked) {
			return true
		}
	}
	return false
}

func first(doc gjson.Result, paths []string) string {
	for _, p := range paths {
		if v := strings.TrimSpace(doc.Get(p).String()); v != "" {
			return v
		}
	}
	return ""
}

func confidence(doc gjson.Result, schema Schema, rec model.BusinessRecord) float64 {
	for _, p := range schema.Confidence {
		if v := doc.Get(p); v.Exists() && v.Type == gjson.Number {
			return clamp(v.Float())
		}
	}

	c := schema.BaseConfidence
	for _, f := range []string{rec.Address, rec.Phone, rec.Website, rec.Email} {
		if f != "" {
			c += contactBonus
		}
	}
	return clamp(c)
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}
