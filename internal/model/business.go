package model

import (
	"encoding/json"
	"regexp"
	"strings"
)

// SourceID identifies the provider a record came from.
type SourceID string

const (
	SourceGooglePlaces  SourceID = "google_places"
	SourceFoursquare    SourceID = "foursquare"
	SourceHunter        SourceID = "hunter"
	SourceNeverBounce   SourceID = "neverbounce"
	SourceApollo        SourceID = "apollo"
	SourceSECEdgar      SourceID = "sec_edgar"
	SourceStateRegistry SourceID = "state_registry"
	SourceManual        SourceID = "manual"
)

// Valid reports whether s is a known provider.
func (s SourceID) Valid() bool {
	switch s {
	case SourceGooglePlaces, SourceFoursquare, SourceHunter, SourceNeverBounce,
		SourceApollo, SourceSECEdgar, SourceStateRegistry, SourceManual:
		return true
	default:
		return false
	}
}

// BusinessRecord is a single provider's view of a business after
// normalization, which includes clearing a directory-listing website.
// Records are passed by value and never modified once built.
type BusinessRecord struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	Address          string          `json:"address,omitempty"`
	Phone            string          `json:"phone,omitempty"`
	Website          string          `json:"website,omitempty"`
	Email            string          `json:"email,omitempty"`
	Source           SourceID        `json:"source"`
	SourceConfidence float64         `json:"source_confidence"`
	RawPayload       json.RawMessage `json:"raw_payload,omitempty"`
}

// FieldCount returns the number of populated identity/contact fields.
func (r BusinessRecord) FieldCount() int {
	n := 0
	for _, v := range []string{r.Name, r.Address, r.Phone, r.Website, r.Email} {
		if strings.TrimSpace(v) != "" {
			n++
		}
	}
	return n
}

// SourceContribution records how one BusinessRecord joined a merged entity.
type SourceContribution struct {
	Source        SourceID          `json:"source"`
	RecordID      string            `json:"record_id"`
	CrossPlatform bool              `json:"cross_platform"`
	MatchScore    float64           `json:"match_score"`
	MatchedOn     []string          `json:"matched_on,omitempty"`
	Conflicts     map[string]string `json:"conflicts,omitempty"`
	Record        BusinessRecord    `json:"record"`
}

// EmailCandidate is an address discovered for a business, with provenance.
type EmailCandidate struct {
	Address            string `json:"address"`
	Confidence         int    `json:"confidence"`
	Source             string `json:"source"`
	Verified           bool   `json:"verified"`
	VerificationResult string `json:"verification_result,omitempty"`
	PatternGenerated   bool   `json:"pattern_generated,omitempty"`
	Type               string `json:"type,omitempty"` // "generic" or "personal"
	FirstName          string `json:"first_name,omitempty"`
	LastName           string `json:"last_name,omitempty"`
	Position           string `json:"position,omitempty"`
}

// LocalPart returns the lower-cased part before the '@'.
func (e EmailCandidate) LocalPart() string {
	at := strings.LastIndex(e.Address, "@")
	if at < 0 {
		return strings.ToLower(e.Address)
	}
	return strings.ToLower(e.Address[:at])
}

var denyLocalRe = regexp.MustCompile(`(^|[._+\-])(test|example|noreply|no-reply)([._+\-0-9]|$)`)

// DenyListedEmail reports whether the local part marks a throwaway address
// (test, example, noreply, no-reply). Such addresses never enter a record.
func DenyListedEmail(address string) bool {
	return denyLocalRe.MatchString(EmailCandidate{Address: address}.LocalPart())
}

// MergedBusinessRecord is one resolved real-world business. The identity
// fields hold the union of the contributing records, preferring Primary.
type MergedBusinessRecord struct {
	ID                 string               `json:"id"`
	Primary            BusinessRecord       `json:"primary"`
	Contributing       []SourceContribution `json:"contributing_sources"`
	CrossPlatformMatch bool                 `json:"cross_platform_match"`

	Name    string `json:"name"`
	Address string `json:"address,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Website string `json:"website,omitempty"`
	Email   string `json:"email,omitempty"`

	Emails            []EmailCandidate `json:"emails,omitempty"`
	EmailPattern      string           `json:"email_pattern,omitempty"`
	OwnerName         string           `json:"owner_name,omitempty"`
	OwnerTitle        string           `json:"owner_title,omitempty"`
	OwnerEmail        string           `json:"owner_email,omitempty"`
	RegistryStatus    string           `json:"registry_status,omitempty"`
	RegistryEntityID  string           `json:"registry_entity_id,omitempty"`
	WebsiteAccessible *bool            `json:"website_accessible,omitempty"`

	FreeScore QualityScore       `json:"free_score"`
	Score     QualityScore       `json:"score"`
	History   []EnrichmentResult `json:"history,omitempty"`
	Status    WaterfallStatus    `json:"status"`
}

// Sources returns the distinct sources in contribution order.
func (m *MergedBusinessRecord) Sources() []SourceID {
	seen := make(map[SourceID]bool, len(m.Contributing))
	var out []SourceID
	for _, c := range m.Contributing {
		if !seen[c.Source] {
			seen[c.Source] = true
			out = append(out, c.Source)
		}
	}
	return out
}

// Domain returns the bare host of the website (no scheme, no www, no path).
func (m *MergedBusinessRecord) Domain() string {
	return NormalizeDomain(m.Website)
}

// OwnerEmailCandidate returns the candidate matching OwnerEmail, if any.
func (m *MergedBusinessRecord) OwnerEmailCandidate() (EmailCandidate, bool) {
	if m.OwnerEmail == "" {
		return EmailCandidate{}, false
	}
	for _, e := range m.Emails {
		if strings.EqualFold(e.Address, m.OwnerEmail) {
			return e, true
		}
	}
	return EmailCandidate{}, false
}

// UpsertEmail adds a candidate or merges it into an existing entry with the
// same address. Verification results and higher confidence win; an existing
// provider-found address never becomes pattern-generated. Deny-listed
// addresses are ignored.
func (m *MergedBusinessRecord) UpsertEmail(c EmailCandidate) {
	c.Address = strings.ToLower(strings.TrimSpace(c.Address))
	if c.Address == "" || DenyListedEmail(c.Address) {
		return
	}
	for i := range m.Emails {
		e := &m.Emails[i]
		if e.Address != c.Address {
			continue
		}
		if c.Confidence > e.Confidence {
			e.Confidence = c.Confidence
		}
		if c.VerificationResult != "" {
			e.Verified = c.Verified
			e.VerificationResult = c.VerificationResult
		}
		if !c.PatternGenerated {
			e.PatternGenerated = false
		}
		if e.Source == "" {
			e.Source = c.Source
		}
		if e.Position == "" {
			e.Position = c.Position
		}
		if e.FirstName == "" {
			e.FirstName, e.LastName = c.FirstName, c.LastName
		}
		return
	}
	m.Emails = append(m.Emails, c)
}

// RemoveEmail drops a candidate by address.
func (m *MergedBusinessRecord) RemoveEmail(address string) {
	out := m.Emails[:0]
	for _, e := range m.Emails {
		if !strings.EqualFold(e.Address, address) {
			out = append(out, e)
		}
	}
	m.Emails = out
	if strings.EqualFold(m.Email, address) {
		m.Email = ""
	}
	if strings.EqualFold(m.OwnerEmail, address) {
		m.OwnerEmail = ""
	}
}

// ApplyFields merges stage output into the working record. Only non-empty
// values are applied; the append-only history is handled separately.
func (m *MergedBusinessRecord) ApplyFields(fields map[string]any) {
	for key, v := range fields {
		switch key {
		case FieldEmails:
			if cands, ok := v.([]EmailCandidate); ok {
				for _, c := range cands {
					m.UpsertEmail(c)
				}
			}
			continue
		case FieldWebsiteAccessible:
			if b, ok := v.(bool); ok {
				m.WebsiteAccessible = &b
			}
			continue
		}

		s, ok := v.(string)
		if !ok || strings.TrimSpace(s) == "" {
			continue
		}
		if (key == FieldEmail || key == FieldOwnerEmail) && DenyListedEmail(s) {
			continue
		}
		switch key {
		case FieldEmail:
			m.Email = s
		case FieldEmailPattern:
			m.EmailPattern = s
		case FieldOwnerName:
			m.OwnerName = s
		case FieldOwnerTitle:
			m.OwnerTitle = s
		case FieldOwnerEmail:
			m.OwnerEmail = s
		case FieldRegistryStatus:
			m.RegistryStatus = s
		case FieldRegistryEntityID:
			m.RegistryEntityID = s
		case FieldPhone:
			m.Phone = s
		case FieldWebsite:
			m.Website = s
		case FieldAddress:
			m.Address = s
		}
	}
}

// Field keys used in EnrichmentResult.FieldsAdded.
const (
	FieldEmail             = "email"
	FieldEmails            = "emails"
	FieldEmailPattern      = "email_pattern"
	FieldOwnerName         = "owner_name"
	FieldOwnerTitle        = "owner_title"
	FieldOwnerEmail        = "owner_email"
	FieldRegistryStatus    = "registry_status"
	FieldRegistryEntityID  = "registry_entity_id"
	FieldWebsiteAccessible = "website_accessible"
	FieldPhone             = "phone"
	FieldWebsite           = "website"
	FieldAddress           = "address"
)

// NormalizeDomain strips protocol, www prefix, path and port from a URL.
func NormalizeDomain(rawURL string) string {
	d := strings.ToLower(strings.TrimSpace(rawURL))
	d = strings.TrimPrefix(d, "https://")
	d = strings.TrimPrefix(d, "http://")
	d = strings.TrimPrefix(d, "www.")
	if i := strings.IndexAny(d, "/?#"); i >= 0 {
		d = d[:i]
	}
	if i := strings.LastIndex(d, ":"); i >= 0 {
		d = d[:i]
	}
	return d
}
