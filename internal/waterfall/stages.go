package waterfall

import (
	"encoding/json"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/sells-group/prospect-cli/internal/config"
	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/internal/quality"
	"github.com/sells-group/prospect-cli/internal/waterfall/provider"
)

// stage is one paid enrichment step. prepare may make free edits to the
// record (such as deny-list drops) and reports whether a call is needed.
type stage interface {
	prepare(rec *model.MergedBusinessRecord) bool
	cacheInputs(rec *model.MergedBusinessRecord) []string
	params(rec *model.MergedBusinessRecord) provider.Params
	estimate(rec *model.MergedBusinessRecord, sc StageConfig) float64
	// apply merges provider data into rec and returns what it added.
	// storedAt is non-zero when data came from the cache.
	apply(rec *model.MergedBusinessRecord, data json.RawMessage, storedAt time.Time) map[string]any
}

// stageEnv carries the settings the stages share.
type stageEnv struct {
	quality           config.QualityConfig
	decay             DecayConfig
	patternConfidence int
	now               func() time.Time
}

const seedEmailConfidence = 50

var (
	ownerTitleRe = regexp.MustCompile(`(?i)\b(owner|co-owner|founder|co-founder|ceo|chief executive|president|principal|proprietor|managing partner|managing member)\b`)
	stateRe      = regexp.MustCompile(`\b([A-Z]{2})\b(?:\s+\d{5}(?:-\d{4})?)?\s*$`)
	nameCharRe   = regexp.MustCompile(`[^a-z0-9]`)
)

var genericLocals = map[string]bool{
	"info": true, "contact": true, "sales": true, "support": true, "admin": true,
	"office": true, "hello": true, "service": true, "team": true, "billing": true,
	"enquiries": true, "inquiries": true, "mail": true, "help": true,
}

// emailType classifies an address as generic (role mailbox) or personal.
func emailType(address string) string {
	local := model.EmailCandidate{Address: address}.LocalPart()
	if genericLocals[local] || IsDenyListed(address) {
		return "generic"
	}
	return "personal"
}

// IsDenyListed reports whether the local part marks a throwaway address.
func IsDenyListed(address string) bool {
	return model.DenyListedEmail(address)
}

// GenerateEmail fills a provider email pattern such as "{first}.{last}"
// for a person at domain. It returns "" when the pattern cannot be filled.
func GenerateEmail(pattern, first, last, domain string) string {
	first = nameCharRe.ReplaceAllString(strings.ToLower(first), "")
	last = nameCharRe.ReplaceAllString(strings.ToLower(last), "")
	if pattern == "" || domain == "" || first == "" {
		return ""
	}
	if last == "" && (strings.Contains(pattern, "{last}") || strings.Contains(pattern, "{l}")) {
		return ""
	}
	local := strings.NewReplacer(
		"{first}", first,
		"{last}", last,
		"{f}", first[:1],
		"{l}", firstChar(last),
	).Replace(strings.ToLower(pattern))
	if local == "" || strings.ContainsAny(local, "{}@ ") {
		return ""
	}
	return local + "@" + domain
}

func firstChar(s string) string {
	if s == "" {
		return ""
	}
	return s[:1]
}

// splitName returns the first and last token of a full name.
func splitName(full string) (string, string) {
	parts := strings.Fields(full)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	default:
		return parts[0], parts[len(parts)-1]
	}
}

// stateOf extracts a two-letter state code from the end of an address.
func stateOf(address string) string {
	if m := stateRe.FindStringSubmatch(strings.TrimSpace(address)); m != nil {
		return m[1]
	}
	return ""
}

func firstString(r gjson.Result, paths ...string) string {
	for _, p := range paths {
		if v := strings.TrimSpace(r.Get(p).String()); v != "" {
			return v
		}
	}
	return ""
}

func hasPersonalEmail(rec *model.MergedBusinessRecord) bool {
	for _, e := range rec.Emails {
		if !e.PatternGenerated && e.Type == "personal" {
			return true
		}
	}
	return false
}

// synthesizeOwnerEmail generates an owner address from the domain pattern
// when the owner is known but has no email.
func synthesizeOwnerEmail(rec *model.MergedBusinessRecord, confidence int) map[string]any {
	if rec.OwnerName == "" || rec.OwnerEmail != "" || rec.EmailPattern == "" {
		return nil
	}
	first, last := splitName(rec.OwnerName)
	addr := GenerateEmail(rec.EmailPattern, first, last, rec.Domain())
	if addr == "" {
		return nil
	}
	cand := model.EmailCandidate{
		Address:          addr,
		Confidence:       confidence,
		Source:           "pattern",
		PatternGenerated: true,
		Type:             "personal",
		FirstName:        first,
		LastName:         last,
		Position:         rec.OwnerTitle,
	}
	fields := map[string]any{
		model.FieldEmails:     []model.EmailCandidate{cand},
		model.FieldOwnerEmail: addr,
	}
	rec.ApplyFields(fields)
	return fields
}

func mergeFields(dst, src map[string]any) map[string]any {
	if len(src) == 0 {
		return dst
	}
	if dst == nil {
		dst = make(map[string]any, len(src))
	}
	for k, v := range src {
		if k == model.FieldEmails {
			prev, _ := dst[k].([]model.EmailCandidate)
			add, _ := v.([]model.EmailCandidate)
			dst[k] = append(prev, add...)
			continue
		}
		dst[k] = v
	}
	return dst
}

// domainEmailDiscovery searches the business domain for addresses and the
// mailbox naming pattern.
type domainEmailDiscovery struct{ env stageEnv }

func (s domainEmailDiscovery) prepare(rec *model.MergedBusinessRecord) bool {
	if rec.Domain() == "" {
		return false
	}
	return rec.EmailPattern == "" || !hasPersonalEmail(rec)
}

func (s domainEmailDiscovery) cacheInputs(rec *model.MergedBusinessRecord) []string {
	return []string{rec.Domain()}
}

func (s domainEmailDiscovery) params(rec *model.MergedBusinessRecord) provider.Params {
	return provider.Params{"action": "domain-search", "domain": rec.Domain(), "limit": 10}
}

func (s domainEmailDiscovery) estimate(_ *model.MergedBusinessRecord, sc StageConfig) float64 {
	return sc.EstimatedCost
}

func (s domainEmailDiscovery) apply(rec *model.MergedBusinessRecord, data json.RawMessage, storedAt time.Time) map[string]any {
	root := gjson.ParseBytes(data)
	fields := make(map[string]any)

	var cands []model.EmailCandidate
	var owner *model.EmailCandidate
	root.Get("emails").ForEach(func(_, e gjson.Result) bool {
		addr := strings.ToLower(firstString(e, "value", "email", "address"))
		if addr == "" || !strings.Contains(addr, "@") || IsDenyListed(addr) {
			return true
		}
		conf := int(e.Get("confidence").Int())
		if !storedAt.IsZero() {
			conf = DecayEmailConfidence(conf, storedAt, s.env.now(), s.env.decay)
		}
		typ := e.Get("type").String()
		if typ == "" {
			typ = emailType(addr)
		}
		c := model.EmailCandidate{
			Address:    addr,
			Confidence: min(max(conf, 0), 100),
			Source:     string(model.SourceHunter),
			Type:       typ,
			FirstName:  e.Get("first_name").String(),
			LastName:   e.Get("last_name").String(),
			Position:   e.Get("position").String(),
		}
		cands = append(cands, c)
		if owner == nil && c.FirstName != "" && ownerTitleRe.MatchString(c.Position) {
			owner = &c
		}
		return true
	})
	sort.SliceStable(cands, func(i, j int) bool { return cands[i].Confidence > cands[j].Confidence })

	if len(cands) > 0 {
		fields[model.FieldEmails] = cands
		if rec.Email == "" {
			fields[model.FieldEmail] = bestEmail(cands)
		}
	}
	if p := root.Get("pattern").String(); p != "" && rec.EmailPattern == "" {
		fields[model.FieldEmailPattern] = p
	}
	if owner != nil && rec.OwnerName == "" {
		fields[model.FieldOwnerName] = strings.TrimSpace(owner.FirstName + " " + owner.LastName)
		fields[model.FieldOwnerTitle] = owner.Position
		if rec.OwnerEmail == "" {
			fields[model.FieldOwnerEmail] = owner.Address
		}
	}
	rec.ApplyFields(fields)
	return mergeFields(fields, synthesizeOwnerEmail(rec, s.env.patternConfidence))
}

// bestEmail prefers personal addresses, then higher confidence. cands is
// sorted by confidence.
func bestEmail(cands []model.EmailCandidate) string {
	for _, c := range cands {
		if c.Type == "personal" {
			return c.Address
		}
	}
	return cands[0].Address
}

// emailVerification runs a deliverability check on unverified candidates.
type emailVerification struct{ env stageEnv }

func (s emailVerification) pending(rec *model.MergedBusinessRecord) []string {
	var out []string
	for _, e := range rec.Emails {
		if e.VerificationResult == "" {
			out = append(out, e.Address)
		}
	}
	sort.Strings(out)
	return out
}

// prepare drops deny-listed addresses without spend. Stages already refuse
// them on the way in; this catches records built by hand.
func (s emailVerification) prepare(rec *model.MergedBusinessRecord) bool {
	var denied []string
	for _, e := range rec.Emails {
		if IsDenyListed(e.Address) {
			denied = append(denied, e.Address)
		}
	}
	for _, addr := range denied {
		rec.RemoveEmail(addr)
	}
	return len(s.pending(rec)) > 0
}

func (s emailVerification) cacheInputs(rec *model.MergedBusinessRecord) []string {
	return s.pending(rec)
}

func (s emailVerification) params(rec *model.MergedBusinessRecord) provider.Params {
	return provider.Params{"action": "verify-batch", "emails": s.pending(rec)}
}

func (s emailVerification) estimate(rec *model.MergedBusinessRecord, sc StageConfig) float64 {
	return sc.EstimatedCost * float64(len(s.pending(rec)))
}

func (s emailVerification) apply(rec *model.MergedBusinessRecord, data json.RawMessage, _ time.Time) map[string]any {
	var verified, removed []string
	gjson.GetBytes(data, "results").ForEach(func(_, r gjson.Result) bool {
		addr := strings.ToLower(firstString(r, "email", "address"))
		result := strings.ToLower(r.Get("result").String())
		if addr == "" || result == "" {
			return true
		}
		if _, ok := findEmail(rec, addr); !ok {
			return true
		}
		var flags []string
		r.Get("flags").ForEach(func(_, f gjson.Result) bool {
			flags = append(flags, f.String())
			return true
		})

		switch result {
		case "invalid", "disposable":
			rec.RemoveEmail(addr)
			removed = append(removed, addr)
		default:
			rec.UpsertEmail(model.EmailCandidate{
				Address:            addr,
				Confidence:         VerificationConfidence(result, flags),
				Verified:           result == "valid",
				VerificationResult: result,
			})
			if result == "valid" {
				verified = append(verified, addr)
			}
		}
		return true
	})

	fields := make(map[string]any)
	if len(verified) > 0 {
		fields["verified_emails"] = verified
		if rec.Email == "" {
			rec.Email = verified[0]
			fields[model.FieldEmail] = verified[0]
		}
	}
	if len(removed) > 0 {
		fields["removed_emails"] = removed
	}
	return fields
}

// VerificationConfidence maps a deliverability result and its flags to a
// 0-100 confidence.
func VerificationConfidence(result string, flags []string) int {
	var c int
	switch result {
	case "valid":
		c = 95
	case "catchall":
		c = 75
	case "unknown":
		c = 50
	case "disposable":
		c = 10
	case "invalid":
		c = 5
	}
	for _, f := range flags {
		switch f {
		case "has_dns", "has_dns_mx":
			c += 5
		case "smtp_connectable":
			c += 10
		case "role_account":
			c -= 10
		case "free_email_host":
			c -= 5
		}
	}
	return min(max(c, 0), 100)
}

// personEnrichment looks up the owner or an executive of the business.
type personEnrichment struct{ env stageEnv }

func (s personEnrichment) prepare(rec *model.MergedBusinessRecord) bool {
	if rec.Domain() == "" && rec.Name == "" {
		return false
	}
	return !quality.OwnerQualified(rec, s.env.quality)
}

func (s personEnrichment) cacheInputs(rec *model.MergedBusinessRecord) []string {
	return []string{rec.Domain(), rec.Name, rec.OwnerName}
}

func (s personEnrichment) params(rec *model.MergedBusinessRecord) provider.Params {
	p := provider.Params{
		"action":            "person-enrich",
		"domain":            rec.Domain(),
		"organization_name": rec.Name,
		"titles":            []string{"owner", "founder", "ceo", "president"},
	}
	if rec.OwnerName != "" {
		p["name"] = rec.OwnerName
	}
	return p
}

func (s personEnrichment) estimate(_ *model.MergedBusinessRecord, sc StageConfig) float64 {
	return sc.EstimatedCost
}

func (s personEnrichment) apply(rec *model.MergedBusinessRecord, data json.RawMessage, _ time.Time) map[string]any {
	root := gjson.ParseBytes(data)
	person := root.Get("person")
	if !person.Exists() {
		person = root.Get("people.0")
	}
	if !person.Exists() {
		person = root
	}

	name := firstString(person, "name")
	if name == "" {
		name = strings.TrimSpace(person.Get("first_name").String() + " " + person.Get("last_name").String())
	}
	title := person.Get("title").String()
	email := strings.ToLower(person.Get("email").String())

	fields := make(map[string]any)
	if name != "" && rec.OwnerName == "" {
		fields[model.FieldOwnerName] = name
		fields[model.FieldOwnerTitle] = title
	}
	if email != "" && strings.Contains(email, "@") && !IsDenyListed(email) {
		first, last := splitName(name)
		conf := 60
		if strings.EqualFold(person.Get("email_status").String(), "verified") {
			conf = 90
		}
		fields[model.FieldEmails] = []model.EmailCandidate{{
			Address:    email,
			Confidence: conf,
			Source:     string(model.SourceApollo),
			Type:       emailType(email),
			FirstName:  first,
			LastName:   last,
			Position:   title,
		}}
		if rec.OwnerEmail == "" {
			fields[model.FieldOwnerEmail] = email
		}
	}
	rec.ApplyFields(fields)
	return mergeFields(fields, synthesizeOwnerEmail(rec, s.env.patternConfidence))
}

// registryLookup confirms the entity with a state registry.
type registryLookup struct{ env stageEnv }

func (s registryLookup) prepare(rec *model.MergedBusinessRecord) bool {
	return rec.RegistryStatus == "" && rec.Name != ""
}

func (s registryLookup) cacheInputs(rec *model.MergedBusinessRecord) []string {
	return []string{rec.Name, stateOf(rec.Address)}
}

func (s registryLookup) params(rec *model.MergedBusinessRecord) provider.Params {
	return provider.Params{
		"action":  "registry-lookup",
		"name":    rec.Name,
		"state":   stateOf(rec.Address),
		"address": rec.Address,
	}
}

func (s registryLookup) estimate(_ *model.MergedBusinessRecord, sc StageConfig) float64 {
	return sc.EstimatedCost
}

func (s registryLookup) apply(rec *model.MergedBusinessRecord, data json.RawMessage, _ time.Time) map[string]any {
	root := gjson.ParseBytes(data)
	fields := make(map[string]any)
	if status := strings.ToLower(firstString(root, "status", "entity_status")); status != "" {
		fields[model.FieldRegistryStatus] = status
	}
	if id := firstString(root, "entity_id", "id", "registration_number"); id != "" {
		fields[model.FieldRegistryEntityID] = id
	}
	if rec.OwnerName == "" {
		var officer gjson.Result
		root.Get("officers").ForEach(func(_, o gjson.Result) bool {
			if !officer.Exists() {
				officer = o
			}
			if ownerTitleRe.MatchString(o.Get("title").String()) {
				officer = o
				return false
			}
			return true
		})
		if n := officer.Get("name").String(); n != "" {
			fields[model.FieldOwnerName] = n
			fields[model.FieldOwnerTitle] = officer.Get("title").String()
		}
	}
	rec.ApplyFields(fields)
	return mergeFields(fields, synthesizeOwnerEmail(rec, s.env.patternConfidence))
}
