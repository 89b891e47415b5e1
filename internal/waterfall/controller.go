// Package waterfall runs the cost-bounded enrichment cascade for merged
// business records.
package waterfall

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-cli/internal/cache"
	"github.com/sells-group/prospect-cli/internal/config"
	"github.com/sells-group/prospect-cli/internal/cost"
	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/internal/quality"
	"github.com/sells-group/prospect-cli/internal/resilience"
	"github.com/sells-group/prospect-cli/internal/waterfall/provider"
)

// Deps are the collaborators a Controller calls. Nil fields get inert
// defaults in NewController.
type Deps struct {
	Scorer   *quality.Scorer
	Registry *provider.Registry
	Cache    cache.Cache
	Limiters *resilience.Limiters
	Breakers *resilience.ProviderBreakers
	Retry    resilience.RetryConfig
	Prober   WebsiteProber
}

// Controller runs the waterfall for one record at a time. It is safe for
// concurrent use; all shared state lives in the ledger, limiters and
// breakers.
type Controller struct {
	cfg    *Config
	wcfg   config.WaterfallConfig
	deps   Deps
	stages map[model.StageName]stage
	now    func() time.Time
}

// NewController creates a waterfall controller.
func NewController(cfg *Config, wcfg config.WaterfallConfig, deps Deps) *Controller {
	if cfg == nil {
		cfg = &Config{}
	}
	if deps.Scorer == nil {
		deps.Scorer = quality.NewScorer(quality.DefaultQualityConfig())
	}
	if deps.Registry == nil {
		deps.Registry = provider.NewRegistry()
	}
	if deps.Cache == nil {
		deps.Cache = cache.Nop{}
	}
	if deps.Limiters == nil {
		deps.Limiters = resilience.NewLimiters(config.ConcurrencyConfig{Website: 10, PaidAPI: 3, Registry: 2})
	}
	if deps.Breakers == nil {
		deps.Breakers = resilience.NewProviderBreakers(resilience.DefaultCircuitBreakerConfig())
	}
	if deps.Retry.MaxAttempts == 0 {
		deps.Retry = resilience.DefaultRetryConfig()
	}
	if wcfg.PatternEmailConfidence == 0 {
		wcfg.PatternEmailConfidence = 40
	}
	if cfg.Decay.HalfLifeDays == 0 {
		cfg.Decay.HalfLifeDays = wcfg.EmailHalfLifeDays
	}

	c := &Controller{cfg: cfg, wcfg: wcfg, deps: deps, now: time.Now}
	env := stageEnv{
		quality:           deps.Scorer.Config(),
		decay:             cfg.Decay,
		patternConfidence: wcfg.PatternEmailConfidence,
		now:               func() time.Time { return c.now() },
	}
	c.stages = map[model.StageName]stage{
		model.StageDomainEmailDiscovery: domainEmailDiscovery{env: env},
		model.StageEmailVerification:    emailVerification{env: env},
		model.StagePersonEnrichment:     personEnrichment{env: env},
		model.StageRegistryLookup:       registryLookup{env: env},
	}
	return c
}

// WithNow sets a fixed clock for testing.
func (c *Controller) WithNow(t time.Time) *Controller {
	c.now = func() time.Time { return t }
	return c
}

// Run drives rec through the stages in order until a stop condition. It
// never returns an error: provider failures are recorded as failed stage
// results and the cascade moves on. The outcome is also appended to the
// record's History and Status.
func (c *Controller) Run(ctx context.Context, rec *model.MergedBusinessRecord, ledger *cost.Ledger, enabled StageSet) Outcome {
	log := zap.L().With(zap.String("record_id", rec.ID), zap.String("name", rec.Name))
	out := Outcome{Status: model.WaterfallCompleted}
	spentBefore := ledger.RecordSpent(rec.ID)

	rec.FreeScore = c.deps.Scorer.ScoreFree(rec)
	if len(rec.Score.Breakdown) == 0 {
		rec.Score = rec.FreeScore
	}

	for i, name := range model.StageOrder {
		sc := c.cfg.Stage(name)

		if ctx.Err() != nil {
			out.Results = append(out.Results, c.deadlineSkips(model.StageOrder[i:], enabled)...)
			out.Status = model.WaterfallInterrupted
			log.Info("waterfall: session deadline reached", zap.String("next_stage", string(name)))
			break
		}

		if !c.stageEnabled(name, sc, enabled) {
			out.Results = append(out.Results, c.result(name, sc, model.StageSkippedDisabled))
			log.Debug("waterfall: stage disabled, stopping", zap.String("stage", string(name)))
			break
		}

		if name == model.StageFreeValidation {
			res := c.freeValidation(ctx, rec, sc)
			out.Results = append(out.Results, res)
			if rec.FreeScore.Total < c.wcfg.QualityFloor {
				out.Status = model.WaterfallQualityGateFailed
				log.Info("waterfall: below quality floor",
					zap.Float64("free_score", rec.FreeScore.Total),
					zap.Float64("floor", c.wcfg.QualityFloor),
				)
				break
			}
			continue
		}

		if c.targetMet(rec) {
			log.Debug("waterfall: target score met", zap.Float64("score", rec.Score.Total))
			break
		}

		res, stop := c.runPaid(ctx, rec, name, sc, ledger, log)
		out.Results = append(out.Results, res)
		if stop != "" {
			out.Status = stop
			break
		}
	}

	out.Spent = round4(ledger.RecordSpent(rec.ID) - spentBefore)
	rec.History = append(rec.History, out.Results...)
	rec.Status = out.Status

	log.Debug("waterfall: done",
		zap.String("status", string(out.Status)),
		zap.Float64("score", rec.Score.Total),
		zap.Float64("spent", out.Spent),
	)
	return out
}

// stageEnabled checks the caller set, the stage file and, for paid stages,
// that a client is registered for the configured provider.
func (c *Controller) stageEnabled(name model.StageName, sc StageConfig, enabled StageSet) bool {
	if !enabled.Has(name) || !sc.IsEnabled() {
		return false
	}
	if name == model.StageFreeValidation {
		return true
	}
	return c.deps.Registry.Get(sc.Provider) != nil
}

// deadlineSkips marks the remaining stages up to the first disabled one.
func (c *Controller) deadlineSkips(rest []model.StageName, enabled StageSet) []model.EnrichmentResult {
	var out []model.EnrichmentResult
	for _, name := range rest {
		sc := c.cfg.Stage(name)
		if !c.stageEnabled(name, sc, enabled) {
			break
		}
		out = append(out, c.result(name, sc, model.StageSkippedDeadline))
	}
	return out
}

// targetMet is the natural stop. A free-only score never meets it, since
// the paid stages are what add contact evidence.
func (c *Controller) targetMet(rec *model.MergedBusinessRecord) bool {
	return c.wcfg.TargetScore > 0 &&
		rec.Score.Tier != model.TierFreeOnly &&
		rec.Score.Total >= c.wcfg.TargetScore
}

func (c *Controller) result(name model.StageName, sc StageConfig, status model.StageStatus) model.EnrichmentResult {
	return model.EnrichmentResult{
		Stage:    name,
		Status:   status,
		Provider: sc.Provider,
		At:       c.now(),
	}
}

// freeValidation drops a deny-listed source email, seeds the record's own
// email as a candidate, optionally
// probes the website, and computes the free score.
func (c *Controller) freeValidation(ctx context.Context, rec *model.MergedBusinessRecord, sc StageConfig) model.EnrichmentResult {
	res := c.result(model.StageFreeValidation, sc, model.StageRan)
	res.Success = true
	fields := make(map[string]any)

	if rec.Email != "" && IsDenyListed(rec.Email) {
		fields["removed_emails"] = []string{rec.Email}
		rec.RemoveEmail(rec.Email)
	}
	if rec.Email != "" {
		if _, ok := findEmail(rec, rec.Email); !ok {
			fields[model.FieldEmails] = []model.EmailCandidate{{
				Address:    rec.Email,
				Confidence: seedEmailConfidence,
				Source:     string(rec.Primary.Source),
				Type:       emailType(rec.Email),
			}}
		}
	}

	if c.wcfg.ProbeWebsite && c.deps.Prober != nil && rec.Website != "" && rec.WebsiteAccessible == nil {
		fields[model.FieldWebsiteAccessible] = c.probe(ctx, rec.Website, sc)
	}

	rec.ApplyFields(fields)
	rec.FreeScore = c.deps.Scorer.ScoreFree(rec)
	rec.Score = rec.FreeScore
	if len(fields) > 0 {
		res.FieldsAdded = fields
	}
	return res
}

func (c *Controller) probe(ctx context.Context, website string, sc StageConfig) bool {
	lim := c.deps.Limiters.For(resilience.CategoryWebsite)
	probeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sc.Timeout())
	defer cancel()

	release, err := lim.Acquire(probeCtx)
	if err != nil {
		return false
	}
	defer release()

	ok, err := c.deps.Prober.Probe(probeCtx, website)
	if err != nil {
		zap.L().Debug("waterfall: website probe failed", zap.String("website", website), zap.Error(err))
		return false
	}
	lim.OnSuccess()
	return ok
}

// runPaid runs one paid stage. A non-empty status stops the waterfall.
func (c *Controller) runPaid(ctx context.Context, rec *model.MergedBusinessRecord, name model.StageName, sc StageConfig, ledger *cost.Ledger, log *zap.Logger) (model.EnrichmentResult, model.WaterfallStatus) {
	res := c.result(name, sc, model.StageRan)
	st := c.stages[name]
	client := c.deps.Registry.Get(sc.Provider)

	if !st.prepare(rec) {
		res.Status = model.StageSkippedNotNeed
		return res, ""
	}

	key := cache.Key(sc.Provider, string(name), st.cacheInputs(rec)...)
	if sc.CacheTTL() > 0 {
		if data, storedAt, ok := cache.GetJSON[json.RawMessage](ctx, c.deps.Cache, key); ok {
			res.Success = true
			res.Cached = true
			c.applyAndRescore(rec, &res, st.apply(rec, data, storedAt))
			log.Debug("waterfall: cache hit", zap.String("stage", string(name)))
			return res, ""
		}
	}

	estimate := st.estimate(rec, sc)
	resv, err := ledger.Reserve(rec.ID, name, estimate)
	if err != nil {
		if eris.Is(err, cost.ErrBudgetExhausted) {
			res.Status = model.StageSkippedBudget
			log.Info("waterfall: budget exhausted",
				zap.String("stage", string(name)),
				zap.Float64("estimate", estimate),
				zap.Float64("remaining", ledger.Remaining()),
			)
			return res, model.WaterfallBudgetExhausted
		}
		res.Status = model.StageFailed
		res.Error = err.Error()
		return res, ""
	}

	resp, err := c.call(ctx, client, name, sc, st.params(rec))
	if err != nil {
		resv.Release()
		res.Status = model.StageFailed
		res.Error = err.Error()
		log.Warn("waterfall: stage failed", zap.String("stage", string(name)), zap.Error(err))
		return res, ""
	}

	actual := estimate
	if resp.CostKnown {
		actual = resp.Cost
	}
	entry := resv.Commit(actual)
	res.Cost = entry.Cost

	if !resp.Success {
		res.Status = model.StageFailed
		res.Error = fmt.Sprintf("%s: no result", client.Name())
		return res, ""
	}

	res.Success = true
	if sc.CacheTTL() > 0 && len(resp.Data) > 0 {
		cache.SetJSON(ctx, c.deps.Cache, key, resp.Data, sc.CacheTTL())
	}
	c.applyAndRescore(rec, &res, st.apply(rec, resp.Data, time.Time{}))
	return res, ""
}

// call runs the provider under the category limiter, the provider's
// breaker and the retry policy. The call outlives the session deadline up
// to the stage timeout.
func (c *Controller) call(ctx context.Context, client provider.Client, name model.StageName, sc StageConfig, params provider.Params) (*provider.Response, error) {
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sc.Timeout())
	defer cancel()

	lim := c.deps.Limiters.For(sc.Category)
	breaker := c.deps.Breakers.Get(client.Name())
	retry := c.deps.Retry
	retry.OnRetry = resilience.RetryLogger(client.Name(), string(name))

	return resilience.DoVal(callCtx, retry, func(ctx context.Context) (*provider.Response, error) {
		release, err := lim.Acquire(ctx)
		if err != nil {
			return nil, eris.Wrap(err, "waterfall: acquire limiter")
		}
		defer release()

		resp, err := resilience.ExecuteVal(ctx, breaker, func(ctx context.Context) (*provider.Response, error) {
			return safeCall(ctx, client, params)
		})
		if err != nil {
			if _, ok := resilience.IsRateLimited(err); ok {
				lim.Backoff()
			}
			return nil, err
		}
		lim.OnSuccess()
		return resp, nil
	})
}

// safeCall turns a provider panic into an error.
func safeCall(ctx context.Context, client provider.Client, params provider.Params) (resp *provider.Response, err error) {
	defer func() {
		if r := recover(); r != nil {
			resp = nil
			err = eris.Errorf("%s: panic: %v", client.Name(), r)
		}
	}()
	resp, err = client.Call(ctx, params)
	if err == nil && resp == nil {
		err = eris.Errorf("%s: empty response", client.Name())
	}
	return resp, err
}

func (c *Controller) applyAndRescore(rec *model.MergedBusinessRecord, res *model.EnrichmentResult, fields map[string]any) {
	prev := rec.Score.Total
	rec.Score = c.deps.Scorer.ScorePaid(rec)
	res.ConfidenceDelta = math.Round((rec.Score.Total-prev)*100) / 100
	if len(fields) > 0 {
		res.FieldsAdded = fields
	}
}

func findEmail(rec *model.MergedBusinessRecord, address string) (model.EmailCandidate, bool) {
	for _, e := range rec.Emails {
		if strings.EqualFold(e.Address, address) {
			return e, true
		}
	}
	return model.EmailCandidate{}, false
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
