package discovery

import (
	"context"
	"encoding/json"
	"math"

	"github.com/rotisserie/eris"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/prospect-cli/internal/config"
	"github.com/sells-group/prospect-cli/internal/cost"
	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/internal/normalize"
	"github.com/sells-group/prospect-cli/internal/resilience"
)

// providerIDPaths are the payload paths that hold a provider's place ID.
var providerIDPaths = []string{"id", "place_id", "fsq_id", "fsq_place_id"}

// Scheduler drains a query queue across every search client until the
// target count is met, the budget runs out, or the queue is empty.
type Scheduler struct {
	cfg        config.DiscoveryConfig
	clients    []SearchClient
	ledger     *cost.Ledger
	normalizer *normalize.Normalizer
	retry      resilience.RetryConfig
	limiter    *resilience.Limiter
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithRetry sets the retry policy for search calls.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(s *Scheduler) { s.retry = cfg }
}

// WithLimiter bounds concurrent and per-second search calls.
func WithLimiter(l *resilience.Limiter) Option {
	return func(s *Scheduler) { s.limiter = l }
}

// NewScheduler creates a Scheduler. Results are normalized with the
// configured directory blocklist, so listing-site websites never reach a
// record. Search spend is booked on ledger under the discovery
// pseudo-record; a nil ledger means spend is unbounded.
func NewScheduler(cfg config.DiscoveryConfig, clients []SearchClient, ledger *cost.Ledger, opts ...Option) *Scheduler {
	if ledger == nil {
		ledger = cost.NewLedger(math.MaxFloat64, 0)
	}
	s := &Scheduler{
		cfg:        cfg,
		clients:    clients,
		ledger:     ledger,
		normalizer: normalize.New(nil, normalize.WithWebsiteBlocklist(cfg.DirectoryBlocklist)),
		retry:      resilience.DefaultRetryConfig(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// sourceHits is what one client returned for one query.
type sourceHits struct {
	items   []json.RawMessage
	spent   float64
	err     error
	skipped bool
}

// Run discovers businesses matching term near location. Provider failures
// are logged and counted per query; they never end the run.
func (s *Scheduler) Run(ctx context.Context, term, location string) (*Result, error) {
	if len(s.clients) == 0 {
		return nil, eris.New("discovery: no search clients configured")
	}
	queries := BuildQueries(term, location, s.cfg.Modifiers)
	if len(queries) == 0 {
		return nil, eris.New("discovery: search term is required")
	}

	log := zap.L().With(zap.String("component", "discovery"), zap.String("term", term), zap.String("location", location))

	queue := NewQueue(s.cfg.MaxQueries)
	for _, q := range queries {
		queue.Push(q)
	}

	res := &Result{Records: []model.BusinessRecord{}, Queries: []QueryStat{}}
	seen := make(map[string]bool)
	exhausted := make(map[model.SourceID]bool)

	for {
		if ctx.Err() != nil {
			res.StopReason = StopInterrupted
			break
		}
		if s.cfg.TargetCount > 0 && len(res.Records) >= s.cfg.TargetCount {
			res.StopReason = StopTargetMet
			break
		}
		if len(exhausted) == len(s.clients) {
			res.StopReason = StopBudgetExhausted
			break
		}
		q, ok := queue.Pop()
		if !ok {
			res.StopReason = StopQueueEmpty
			break
		}

		hits := s.runQuery(ctx, q, exhausted)
		if allSkipped(hits) {
			continue
		}
		stat := QueryStat{Query: q.Text()}
		for i, h := range hits {
			src := s.clients[i].Source()
			stat.Spent += h.spent
			switch {
			case h.skipped:
				stat.Skipped = append(stat.Skipped, src)
				continue
			case h.err != nil:
				stat.Failed = append(stat.Failed, src)
				log.Warn("search failed", zap.String("source", string(src)), zap.String("query", q.Text()), zap.Error(h.err))
				continue
			}
			stat.Found += len(h.items)
			stat.New += s.collect(res, seen, src, h.items)
		}

		res.Spent += stat.Spent
		res.Queries = append(res.Queries, stat)
		log.Info("query complete",
			zap.String("query", stat.Query),
			zap.Int("found", stat.Found),
			zap.Int("new", stat.New),
			zap.Int("total", len(res.Records)),
			zap.Float64("spent", stat.Spent),
		)
	}

	res.Spent = math.Round(res.Spent*10000) / 10000
	log.Info("discovery complete",
		zap.String("stop_reason", string(res.StopReason)),
		zap.Int("queries", res.QueriesRun()),
		zap.Int("records", len(res.Records)),
		zap.Float64("spent", res.Spent),
	)
	return res, nil
}

// runQuery fans one query out across every client. Budget is reserved
// before each call; a source the budget can no longer cover is marked
// exhausted for the rest of the run.
func (s *Scheduler) runQuery(ctx context.Context, q Query, exhausted map[model.SourceID]bool) []sourceHits {
	hits := make([]sourceHits, len(s.clients))

	var g errgroup.Group
	for i, c := range s.clients {
		if exhausted[c.Source()] {
			hits[i].skipped = true
			continue
		}
		price := c.CostPerSearch()
		reservation, err := s.ledger.Reserve(cost.DiscoveryRecordID, model.StageDiscovery, price)
		if err != nil {
			hits[i].skipped = true
			if eris.Is(err, cost.ErrBudgetExhausted) {
				exhausted[c.Source()] = true
			}
			continue
		}

		g.Go(func() error {
			items, err := s.search(ctx, c, q)
			if err != nil {
				reservation.Release()
				hits[i].err = err
				return nil
			}
			hits[i].spent = reservation.Commit(price).Cost
			hits[i].items = items
			return nil
		})
	}
	_ = g.Wait()
	return hits
}

func allSkipped(hits []sourceHits) bool {
	for _, h := range hits {
		if !h.skipped {
			return false
		}
	}
	return true
}

func (s *Scheduler) search(ctx context.Context, c SearchClient, q Query) ([]json.RawMessage, error) {
	retry := s.retry
	retry.OnRetry = resilience.RetryLogger(string(c.Source()), string(model.StageDiscovery))

	return resilience.DoVal(ctx, retry, func(ctx context.Context) ([]json.RawMessage, error) {
		if s.limiter != nil {
			release, err := s.limiter.Acquire(ctx)
			if err != nil {
				return nil, eris.Wrap(err, "discovery: acquire limiter")
			}
			defer release()
		}

		items, err := c.Search(ctx, q.Term, q.Location, s.cfg.MaxResultsPerQuery)
		if s.limiter != nil {
			if _, ok := resilience.IsRateLimited(err); ok {
				s.limiter.Backoff()
			} else if err == nil {
				s.limiter.OnSuccess()
			}
		}
		return items, err
	})
}

// collect normalizes one source's items into res and returns how many were
// new to the run.
func (s *Scheduler) collect(res *Result, seen map[string]bool, src model.SourceID, items []json.RawMessage) int {
	raw := make([]normalize.RawItem, len(items))
	for i, it := range items {
		raw[i] = normalize.RawItem{Source: src, Payload: it}
	}
	records, stats := s.normalizer.NormalizeBatch(raw)
	res.Stats.Received += stats.Received
	res.Stats.Accepted += stats.Accepted
	res.Stats.Drops = append(res.Stats.Drops, stats.Drops...)
	res.Stats.WebsitesCleared += stats.WebsitesCleared
	res.Filtered += stats.WebsitesCleared

	added := 0
	for _, rec := range records {
		key := dedupKey(rec, providerID(rec.RawPayload))
		if seen[key] {
			continue
		}
		seen[key] = true
		res.Records = append(res.Records, rec)
		added++
	}
	return added
}

func providerID(raw json.RawMessage) string {
	doc := gjson.ParseBytes(raw)
	for _, p := range providerIDPaths {
		if v := doc.Get(p).String(); v != "" {
			return v
		}
	}
	return ""
}
