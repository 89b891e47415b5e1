package quality

import (
	"github.com/sells-group/prospect-cli/internal/config"
	"github.com/sells-group/prospect-cli/internal/model"
)

// Recommendation is a coarse label derived only from the score total.
type Recommendation string

const (
	RecommendHighQuality Recommendation = "high-quality"
	RecommendGood        Recommendation = "good"
	RecommendMarginal    Recommendation = "marginal"
	RecommendLowQuality  Recommendation = "low-quality"
)

// Action tells callers what to do with a record.
type Action string

const (
	ActionKeep    Action = "keep"
	ActionEnrich  Action = "enrich"
	ActionDiscard Action = "discard"
)

// Recommend maps a score to a label. It is pure.
func Recommend(score model.QualityScore, cfg config.QualityConfig) Recommendation {
	switch {
	case score.Total >= cfg.HighQualityThreshold:
		return RecommendHighQuality
	case score.Total >= cfg.GoodThreshold:
		return RecommendGood
	case score.Total >= cfg.MarginalThreshold:
		return RecommendMarginal
	default:
		return RecommendLowQuality
	}
}

// Action returns keep for high-quality, enrich for good or marginal, and
// discard otherwise.
func (r Recommendation) Action() Action {
	switch r {
	case RecommendHighQuality:
		return ActionKeep
	case RecommendGood, RecommendMarginal:
		return ActionEnrich
	default:
		return ActionDiscard
	}
}
