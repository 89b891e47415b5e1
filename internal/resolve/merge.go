package resolve

import (
	"strings"

	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/internal/similarity"
)

// fieldGetter pairs a union field with its accessor and comparison key.
type fieldGetter struct {
	name string
	get  func(r *model.BusinessRecord) string
	key  func(v string) string
}

var unionFields = []fieldGetter{
	{"name", func(r *model.BusinessRecord) string { return r.Name }, similarity.CleanName},
	{"address", func(r *model.BusinessRecord) string { return r.Address }, foldKey},
	{"phone", func(r *model.BusinessRecord) string { return r.Phone }, phoneKey},
	{"website", func(r *model.BusinessRecord) string { return r.Website }, model.NormalizeDomain},
	{"email", func(r *model.BusinessRecord) string { return r.Email }, foldKey},
}

func foldKey(v string) string {
	return strings.Join(strings.Fields(strings.ToLower(v)), " ")
}

func phoneKey(v string) string {
	d := similarity.PhoneDigits(v)
	if len(d) > 10 {
		return d[len(d)-10:]
	}
	return d
}

// build derives the merged record: union fields come from the primary, then
// from members in arrival order, never overwriting a non-empty value.
// Members holding a different non-empty value keep it in Conflicts.
func (r *Resolver) build(c *cluster) *model.MergedBusinessRecord {
	primary := c.primaryRec()
	m := &model.MergedBusinessRecord{
		ID:      r.newID(),
		Primary: *primary,
		Status:  model.WaterfallPending,
	}

	union := make(map[string]string, len(unionFields))
	for _, f := range unionFields {
		v := strings.TrimSpace(f.get(primary))
		if v == "" {
			for i := range c.members {
				if mv := strings.TrimSpace(f.get(&c.members[i].rec)); mv != "" {
					v = mv
					break
				}
			}
		}
		union[f.name] = v
	}
	m.Name = union["name"]
	m.Address = union["address"]
	m.Phone = union["phone"]
	m.Website = union["website"]
	m.Email = union["email"]

	sources := make(map[model.SourceID]bool)
	for i := range c.members {
		rec := c.members[i].rec
		sources[rec.Source] = true

		contrib := model.SourceContribution{
			Source:        rec.Source,
			RecordID:      rec.ID,
			CrossPlatform: rec.Source != primary.Source,
			Record:        rec,
		}
		if i == c.primary {
			contrib.MatchScore = 1
		} else {
			res := similarity.Compare(primary, &rec, r.cfg)
			contrib.MatchScore = res.Score
			contrib.MatchedOn = res.MatchedOn
			contrib.Conflicts = conflicts(&rec, union)
		}
		m.Contributing = append(m.Contributing, contrib)
	}
	m.CrossPlatformMatch = len(sources) >= 2

	return m
}

func conflicts(rec *model.BusinessRecord, union map[string]string) map[string]string {
	var out map[string]string
	for _, f := range unionFields {
		v := strings.TrimSpace(f.get(rec))
		if v == "" || union[f.name] == "" {
			continue
		}
		if f.key(v) == f.key(union[f.name]) {
			continue
		}
		if out == nil {
			out = make(map[string]string)
		}
		out[f.name] = v
	}
	return out
}
