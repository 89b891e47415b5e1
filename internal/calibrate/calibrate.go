// Package calibrate suggests a qualification threshold from a finished
// batch's scores. The output is advisory and never applied to the batch
// it was computed from.
package calibrate

import (
	"fmt"
	"math"
	"sort"

	"github.com/sells-group/prospect-cli/internal/config"
)

// Sample is one record's final score and total enrichment spend.
type Sample struct {
	Score float64 `json:"score"`
	Cost  float64 `json:"cost"`
}

// Result is the suggested threshold and what it would have done to the
// batch it was computed from.
type Result struct {
	SuggestedThreshold float64              `json:"suggested_threshold"`
	TargetRate         float64              `json:"target_rate"`
	ProjectedRate      int                  `json:"projected_rate"`
	Clamped            bool                 `json:"clamped"`
	Report             CostEfficiencyReport `json:"report"`
}

// CostEfficiencyReport summarizes score spread and spend for a batch.
type CostEfficiencyReport struct {
	Records                int     `json:"records"`
	AverageScore           float64 `json:"average_score"`
	HighestScore           float64 `json:"highest_score"`
	LowestScore            float64 `json:"lowest_score"`
	TotalCost              float64 `json:"total_cost"`
	AverageCostPerRecord   float64 `json:"average_cost_per_record"`
	CostPerQualifiedRecord float64 `json:"cost_per_qualified_record"`
	Qualified              int     `json:"qualified"`
	Advisory               string  `json:"advisory"`
}

// DefaultConfig returns the built-in band and fallback.
func DefaultConfig() config.CalibrateConfig {
	return config.CalibrateConfig{
		MinThreshold: 45,
		MaxThreshold: 75,
		Fallback:     58,
		TargetRate:   30,
	}
}

// Calibrate computes the threshold for scores alone.
func Calibrate(scores []float64, targetRate float64, cfg config.CalibrateConfig) Result {
	samples := make([]Sample, len(scores))
	for i, s := range scores {
		samples[i] = Sample{Score: s}
	}
	return CalibrateBatch(samples, targetRate, cfg)
}

// CalibrateBatch sorts scores descending and picks the score at index
// ceil(n*rate/100)-1, clamped into [MinThreshold, MaxThreshold]. The
// projected rate is the share of the batch at or above that threshold.
// An empty batch yields the fallback threshold and a projected rate of 0.
func CalibrateBatch(samples []Sample, targetRate float64, cfg config.CalibrateConfig) Result {
	cfg = withDefaults(cfg)
	targetRate = math.Max(0, math.Min(100, targetRate))
	res := Result{TargetRate: targetRate}

	n := len(samples)
	if n == 0 {
		res.SuggestedThreshold = cfg.Fallback
		res.Report.Advisory = "no records to analyze"
		return res
	}

	scores := make([]float64, n)
	for i, s := range samples {
		scores[i] = s.Score
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(scores)))

	idx := int(math.Ceil(float64(n)*targetRate/100)) - 1
	idx = max(0, min(idx, n-1))
	raw := scores[idx]

	threshold := math.Max(cfg.MinThreshold, math.Min(cfg.MaxThreshold, raw))
	res.SuggestedThreshold = threshold
	res.Clamped = threshold != raw
	res.ProjectedRate = projectedRate(scores, threshold)
	res.Report = report(samples, scores, threshold, targetRate)
	return res
}

func withDefaults(cfg config.CalibrateConfig) config.CalibrateConfig {
	def := DefaultConfig()
	if cfg.MinThreshold == 0 && cfg.MaxThreshold == 0 {
		cfg.MinThreshold, cfg.MaxThreshold = def.MinThreshold, def.MaxThreshold
	}
	if cfg.Fallback == 0 {
		cfg.Fallback = def.Fallback
	}
	return cfg
}

func projectedRate(scores []float64, threshold float64) int {
	return int(math.Round(100 * float64(countAtOrAbove(scores, threshold)) / float64(len(scores))))
}

func countAtOrAbove(scores []float64, threshold float64) int {
	n := 0
	for _, s := range scores {
		if s >= threshold {
			n++
		}
	}
	return n
}

// report expects scores sorted descending.
func report(samples []Sample, scores []float64, threshold, targetRate float64) CostEfficiencyReport {
	n := len(samples)
	var sum, totalCost float64
	for _, s := range samples {
		sum += s.Score
		totalCost += s.Cost
	}
	qualified := countAtOrAbove(scores, threshold)

	r := CostEfficiencyReport{
		Records:              n,
		AverageScore:         round2(sum / float64(n)),
		HighestScore:         scores[0],
		LowestScore:          scores[n-1],
		TotalCost:            round4(totalCost),
		AverageCostPerRecord: round4(totalCost / float64(n)),
		Qualified:            qualified,
		Advisory:             advisory(threshold, targetRate),
	}
	if qualified > 0 {
		r.CostPerQualifiedRecord = round4(totalCost / float64(qualified))
	}
	return r
}

func advisory(threshold, targetRate float64) string {
	switch {
	case threshold < 50:
		return "threshold very low, lead quality may suffer"
	case threshold > 70:
		return "threshold high, qualification rate may drop significantly"
	default:
		return fmt.Sprintf("balanced threshold for a %.0f%% qualification rate", targetRate)
	}
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

func round4(v float64) float64 { return math.Round(v*10000) / 10000 }
