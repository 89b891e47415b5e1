// Package resolve clusters normalized provider records into one
// MergedBusinessRecord per real-world business.
package resolve

import (
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-cli/internal/config"
	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/internal/similarity"
)

// Resolver deduplicates records with the similarity engine.
type Resolver struct {
	cfg   config.SimilarityConfig
	newID func() string
}

// NewResolver creates a Resolver using the given match thresholds.
func NewResolver(cfg config.SimilarityConfig) *Resolver {
	return &Resolver{cfg: cfg, newID: uuid.NewString}
}

type member struct {
	rec model.BusinessRecord
	seq int
}

type cluster struct {
	members []member // arrival order
	primary int      // index into members
}

func (c *cluster) primaryRec() *model.BusinessRecord {
	return &c.members[c.primary].rec
}

// Resolve clusters records in arrival order. Each record joins the first
// cluster whose primary it matches, or starts a new one. A consolidation
// pass then merges clusters whose primaries match until none do. Resolve
// never fails; an unmatched record is a singleton.
func (r *Resolver) Resolve(records []model.BusinessRecord) []*model.MergedBusinessRecord {
	var clusters []*cluster
	for i, rec := range records {
		clusters = r.place(clusters, member{rec: rec, seq: i})
	}

	clusters = r.consolidate(clusters, len(records))

	out := make([]*model.MergedBusinessRecord, 0, len(clusters))
	for _, c := range clusters {
		out = append(out, r.build(c))
	}

	zap.L().Debug("resolve: clustered records",
		zap.Int("records", len(records)),
		zap.Int("clusters", len(out)),
	)
	return out
}

// place adds m to the first cluster whose primary matches it, or appends a
// new singleton cluster.
func (r *Resolver) place(clusters []*cluster, m member) []*cluster {
	for _, c := range clusters {
		if similarity.Compare(c.primaryRec(), &m.rec, r.cfg).Match {
			r.join(c, m)
			return clusters
		}
	}
	return append(clusters, &cluster{members: []member{m}})
}

// join appends m (which already matched the primary) and promotes it to
// primary when it outranks the current one and matches every member.
func (r *Resolver) join(c *cluster, m member) {
	c.members = append(c.members, m)
	sort.SliceStable(c.members, func(i, j int) bool { return c.members[i].seq < c.members[j].seq })

	current := c.members[c.primary].seq
	var candidate int
	for i := range c.members {
		if c.members[i].seq == m.seq {
			candidate = i
		}
		if c.members[i].seq == current {
			c.primary = i
		}
	}

	if !outranks(c.members[candidate], c.members[c.primary]) {
		return
	}
	for i := range c.members {
		if i == candidate {
			continue
		}
		if !similarity.Compare(&c.members[candidate].rec, &c.members[i].rec, r.cfg).Match {
			return
		}
	}
	c.primary = candidate
}

// outranks reports whether a should be primary over b: higher source
// confidence, then more populated fields, then earlier arrival.
func outranks(a, b member) bool {
	if a.rec.SourceConfidence != b.rec.SourceConfidence {
		return a.rec.SourceConfidence > b.rec.SourceConfidence
	}
	if fa, fb := a.rec.FieldCount(), b.rec.FieldCount(); fa != fb {
		return fa > fb
	}
	return a.seq < b.seq
}

// consolidate merges clusters whose primaries match. Members of the absorbed
// cluster that do not match the absorbing primary are placed again. The loop
// is capped so a pathological input cannot spin forever.
func (r *Resolver) consolidate(clusters []*cluster, n int) []*cluster {
	maxRounds := n + 1
	for round := 0; round < maxRounds; round++ {
		i, j, found := r.findMatchingPair(clusters)
		if !found {
			return clusters
		}

		absorbing, absorbed := clusters[i], clusters[j]
		clusters = append(clusters[:j], clusters[j+1:]...)

		var leftovers []member
		for _, m := range absorbed.members {
			if similarity.Compare(absorbing.primaryRec(), &m.rec, r.cfg).Match {
				r.join(absorbing, m)
			} else {
				leftovers = append(leftovers, m)
			}
		}
		for _, m := range leftovers {
			clusters = r.place(clusters, m)
		}
	}

	zap.L().Warn("resolve: consolidation did not reach a fixpoint",
		zap.Int("rounds", maxRounds),
		zap.Int("clusters", len(clusters)),
	)
	return clusters
}

func (r *Resolver) findMatchingPair(clusters []*cluster) (int, int, bool) {
	for i := 0; i < len(clusters); i++ {
		for j := i + 1; j < len(clusters); j++ {
			if similarity.Compare(clusters[i].primaryRec(), clusters[j].primaryRec(), r.cfg).Match {
				return i, j, true
			}
		}
	}
	return 0, 0, false
}
