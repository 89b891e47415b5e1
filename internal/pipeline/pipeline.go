// Package pipeline runs a prospecting session: normalize raw provider
// items, resolve them into entities, and push each entity through the
// enrichment waterfall under one shared budget.
package pipeline

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/prospect-cli/internal/cache"
	"github.com/sells-group/prospect-cli/internal/calibrate"
	"github.com/sells-group/prospect-cli/internal/config"
	"github.com/sells-group/prospect-cli/internal/cost"
	"github.com/sells-group/prospect-cli/internal/discovery"
	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/internal/normalize"
	"github.com/sells-group/prospect-cli/internal/quality"
	"github.com/sells-group/prospect-cli/internal/resilience"
	"github.com/sells-group/prospect-cli/internal/resolve"
	"github.com/sells-group/prospect-cli/internal/waterfall"
	"github.com/sells-group/prospect-cli/internal/waterfall/provider"
)

// Deps are the external collaborators of a Pipeline. Nil fields are built
// from configuration.
type Deps struct {
	Cache         cache.Cache
	Registry      *provider.Registry
	Prober        waterfall.WebsiteProber
	Stages        *waterfall.Config
	SearchClients []discovery.SearchClient
}

// Pipeline holds everything a session needs. It is safe to run several
// sessions from one Pipeline; each gets its own ledger.
type Pipeline struct {
	cfg        *config.Config
	normalizer *normalize.Normalizer
	resolver   *resolve.Resolver
	scorer     *quality.Scorer
	controller *waterfall.Controller
	limiters   *resilience.Limiters
	retry      resilience.RetryConfig
	search     []discovery.SearchClient
}

// New wires a Pipeline from configuration.
func New(cfg *config.Config, deps Deps) (*Pipeline, error) {
	if cfg == nil {
		return nil, eris.New("pipeline: config is required")
	}
	if err := quality.ValidateConfig(cfg.Quality); err != nil {
		return nil, eris.Wrap(err, "pipeline: quality config")
	}

	stages := deps.Stages
	if stages == nil {
		var err error
		stages, err = waterfall.LoadConfigOrDefault(cfg.Waterfall.StagesPath, waterfall.DefaultConfig(cfg.Pricing, cfg.Waterfall))
		if err != nil {
			return nil, eris.Wrap(err, "pipeline: load waterfall stages")
		}
	}
	registry := deps.Registry
	if registry == nil {
		registry = provider.FromConfig(cfg.Providers)
	}
	prober := deps.Prober
	if prober == nil && cfg.Waterfall.ProbeWebsite {
		prober = waterfall.NewHTTPProber(time.Duration(cfg.Waterfall.ProbeTimeoutSecs) * time.Second)
	}

	retry, breakerCfg := resilience.FromConfig(cfg.Resilience)
	limiters := resilience.NewLimiters(cfg.Concurrency)
	scorer := quality.NewScorer(cfg.Quality)

	controller := waterfall.NewController(stages, cfg.Waterfall, waterfall.Deps{
		Scorer:   scorer,
		Registry: registry,
		Cache:    deps.Cache,
		Limiters: limiters,
		Breakers: resilience.NewProviderBreakers(breakerCfg),
		Retry:    retry,
		Prober:   prober,
	})

	return &Pipeline{
		cfg:        cfg,
		normalizer: normalize.New(nil),
		resolver:   resolve.NewResolver(cfg.Similarity),
		scorer:     scorer,
		controller: controller,
		limiters:   limiters,
		retry:      retry,
		search:     deps.SearchClients,
	}, nil
}

// Session is the full output of one run.
type Session struct {
	ID          string                        `json:"id"`
	StartedAt   time.Time                     `json:"started_at"`
	FinishedAt  time.Time                     `json:"finished_at"`
	Records     []*model.MergedBusinessRecord `json:"records"`
	Normalize   normalize.BatchStats          `json:"normalize"`
	Discovery   *discovery.Result             `json:"discovery,omitempty"`
	Ledger      cost.Summary                  `json:"ledger"`
	Summary     Summary                       `json:"summary"`
	Calibration calibrate.Result              `json:"calibration"`
}

// Run processes raw items through normalize, resolve and the waterfall.
// Individual record failures never fail the session.
func (p *Pipeline) Run(ctx context.Context, items []normalize.RawItem, stages waterfall.StageSet) (*Session, error) {
	sess, ledger := p.newSession()
	return p.run(ctx, sess, ledger, items, stages)
}

// Discover searches for term near location, then runs the found records
// through the waterfall. Search and enrichment share the session budget.
func (p *Pipeline) Discover(ctx context.Context, term, location string, stages waterfall.StageSet) (*Session, error) {
	if len(p.search) == 0 {
		return nil, eris.New("pipeline: no search providers configured")
	}
	sess, ledger := p.newSession()

	sched := discovery.NewScheduler(p.cfg.Discovery, p.search, ledger,
		discovery.WithRetry(p.retry),
		discovery.WithLimiter(p.limiters.For(resilience.CategoryPaidAPI)),
	)
	found, err := sched.Run(ctx, term, location)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: discovery")
	}
	sess.Discovery = found
	sess.Normalize = found.Stats

	return p.runRecords(ctx, sess, ledger, found.Records, stages)
}

// Score normalizes and resolves items and computes free scores only. It
// spends nothing.
func (p *Pipeline) Score(items []normalize.RawItem) *Session {
	sess, ledger := p.newSession()
	records, stats := p.normalizer.NormalizeBatch(items)
	sess.Normalize = stats
	sess.Records = p.resolver.Resolve(records)
	for _, rec := range sess.Records {
		rec.FreeScore = p.scorer.ScoreFree(rec)
		rec.Score = rec.FreeScore
	}
	p.finish(sess, ledger)
	return sess
}

func (p *Pipeline) newSession() (*Session, *cost.Ledger) {
	sess := &Session{ID: uuid.NewString(), StartedAt: time.Now().UTC()}
	ledger := cost.NewLedger(p.cfg.Budget.SessionCeiling, p.cfg.Budget.PerRecordCap)
	return sess, ledger
}

func (p *Pipeline) run(ctx context.Context, sess *Session, ledger *cost.Ledger, items []normalize.RawItem, stages waterfall.StageSet) (*Session, error) {
	records, stats := p.normalizer.NormalizeBatch(items)
	sess.Normalize = stats
	return p.runRecords(ctx, sess, ledger, records, stages)
}

// runRecords resolves records and fans the waterfall out across entities.
// Results keep the resolver's order regardless of completion order.
func (p *Pipeline) runRecords(ctx context.Context, sess *Session, ledger *cost.Ledger, records []model.BusinessRecord, stages waterfall.StageSet) (*Session, error) {
	log := zap.L().With(zap.String("session_id", sess.ID))

	if timeout := time.Duration(p.cfg.Waterfall.SessionTimeoutSecs) * time.Second; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	merged := p.resolver.Resolve(records)
	log.Info("pipeline: resolved records",
		zap.Int("records", len(records)),
		zap.Int("entities", len(merged)),
		zap.Int("dropped", len(sess.Normalize.Drops)),
	)

	limit := p.cfg.Concurrency.MaxConcurrentRecords
	if limit < 1 {
		limit = 1
	}

	var g errgroup.Group
	g.SetLimit(limit)
	for _, rec := range merged {
		g.Go(func() error {
			p.controller.Run(ctx, rec, ledger, stages)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "pipeline: waterfall")
	}

	sess.Records = merged
	p.finish(sess, ledger)

	log.Info("pipeline: session complete",
		zap.Int("entities", sess.Summary.Entities),
		zap.Int("completed", sess.Summary.Completed),
		zap.Int("budget_exhausted", sess.Summary.BudgetExhausted),
		zap.Float64("spent", sess.Ledger.Spent),
		zap.Float64("average_score", sess.Summary.AverageScore),
	)
	return sess, nil
}

func (p *Pipeline) finish(sess *Session, ledger *cost.Ledger) {
	sess.Ledger = ledger.Summarize()
	sess.Summary = Summarize(sess.Records, p.cfg.Quality)

	samples := make([]calibrate.Sample, len(sess.Records))
	for i, rec := range sess.Records {
		samples[i] = calibrate.Sample{Score: rec.Score.Total, Cost: ledger.RecordSpent(rec.ID)}
	}
	sess.Calibration = calibrate.CalibrateBatch(samples, p.cfg.Calibrate.TargetRate, p.cfg.Calibrate)
	sess.FinishedAt = time.Now().UTC()
}

// Summary counts outcomes across a session.
type Summary struct {
	Entities          int                            `json:"entities"`
	CrossPlatform     int                            `json:"cross_platform"`
	Completed         int                            `json:"completed"`
	BudgetExhausted   int                            `json:"budget_exhausted"`
	QualityGateFailed int                            `json:"quality_gate_failed"`
	Interrupted       int                            `json:"interrupted"`
	OwnerQualified    int                            `json:"owner_qualified"`
	AverageScore      float64                        `json:"average_score"`
	Recommendations   map[quality.Recommendation]int `json:"recommendations"`
}

// Summarize tallies statuses and recommendations for records.
func Summarize(records []*model.MergedBusinessRecord, qcfg config.QualityConfig) Summary {
	s := Summary{Entities: len(records), Recommendations: make(map[quality.Recommendation]int)}
	total := 0.0
	for _, rec := range records {
		switch rec.Status {
		case model.WaterfallCompleted:
			s.Completed++
		case model.WaterfallBudgetExhausted:
			s.BudgetExhausted++
		case model.WaterfallQualityGateFailed:
			s.QualityGateFailed++
		case model.WaterfallInterrupted:
			s.Interrupted++
		}
		if rec.CrossPlatformMatch {
			s.CrossPlatform++
		}
		if quality.OwnerQualified(rec, qcfg) {
			s.OwnerQualified++
		}
		s.Recommendations[quality.Recommend(rec.Score, qcfg)]++
		total += rec.Score.Total
	}
	if len(records) > 0 {
		s.AverageScore = math.Round(total/float64(len(records))*100) / 100
	}
	return s
}
