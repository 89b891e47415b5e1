package calibrate

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/prospect-cli/internal/config"
)

func TestCalibrate_TopThirtyPercent(t *testing.T) {
	t.Parallel()
	scores := []float64{90, 80, 70, 60, 50, 40, 30, 20, 10, 0}

	res := Calibrate(scores, 30, DefaultConfig())

	assert.InDelta(t, 70, res.SuggestedThreshold, 1e-9)
	assert.Equal(t, 30, res.ProjectedRate)
	assert.False(t, res.Clamped)
	assert.Equal(t, 3, res.Report.Qualified)
	assert.InDelta(t, 45, res.Report.AverageScore, 1e-9)
	assert.InDelta(t, 90, res.Report.HighestScore, 1e-9)
	assert.InDelta(t, 0, res.Report.LowestScore, 1e-9)
	assert.Contains(t, res.Report.Advisory, "30%")
}

func TestCalibrate_OrderIndependent(t *testing.T) {
	t.Parallel()
	a := Calibrate([]float64{0, 50, 90, 20, 70, 10, 80, 30, 60, 40}, 30, DefaultConfig())
	b := Calibrate([]float64{90, 80, 70, 60, 50, 40, 30, 20, 10, 0}, 30, DefaultConfig())
	assert.Equal(t, b, a)
}

func TestCalibrate_Clamps(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()

	high := Calibrate([]float64{99, 98, 97, 96}, 25, cfg)
	assert.InDelta(t, 75, high.SuggestedThreshold, 1e-9)
	assert.True(t, high.Clamped)
	assert.Equal(t, 100, high.ProjectedRate)
	assert.Contains(t, high.Report.Advisory, "high")

	low := Calibrate([]float64{30, 20, 10}, 100, cfg)
	assert.InDelta(t, 45, low.SuggestedThreshold, 1e-9)
	assert.True(t, low.Clamped)
	assert.Equal(t, 0, low.ProjectedRate)
	assert.Contains(t, low.Report.Advisory, "low")
}

func TestCalibrate_Empty(t *testing.T) {
	t.Parallel()
	res := Calibrate(nil, 30, DefaultConfig())
	assert.InDelta(t, 58, res.SuggestedThreshold, 1e-9)
	assert.Zero(t, res.ProjectedRate)
	assert.Zero(t, res.Report.Records)
}

func TestCalibrate_IndexBounds(t *testing.T) {
	t.Parallel()
	scores := []float64{72, 64, 58, 51}

	// A zero rate picks the top score; a full rate picks the lowest.
	assert.InDelta(t, 72, Calibrate(scores, 0, DefaultConfig()).SuggestedThreshold, 1e-9)
	assert.InDelta(t, 51, Calibrate(scores, 100, DefaultConfig()).SuggestedThreshold, 1e-9)
	// Out-of-range rates are clamped.
	assert.InDelta(t, 51, Calibrate(scores, 250, DefaultConfig()).SuggestedThreshold, 1e-9)
}

func TestCalibrate_ZeroConfigUsesDefaults(t *testing.T) {
	t.Parallel()
	res := Calibrate([]float64{99}, 50, config.CalibrateConfig{})
	assert.InDelta(t, 75, res.SuggestedThreshold, 1e-9)
	assert.InDelta(t, 58, Calibrate(nil, 50, config.CalibrateConfig{}).SuggestedThreshold, 1e-9)
}

func TestCalibrateBatch_CostReport(t *testing.T) {
	t.Parallel()
	samples := []Sample{
		{Score: 82, Cost: 1.05},
		{Score: 71, Cost: 0.05},
		{Score: 60, Cost: 0.034},
		{Score: 35, Cost: 0},
	}

	res := CalibrateBatch(samples, 50, DefaultConfig())

	assert.InDelta(t, 71, res.SuggestedThreshold, 1e-9)
	assert.Equal(t, 50, res.ProjectedRate)
	assert.Equal(t, 4, res.Report.Records)
	assert.Equal(t, 2, res.Report.Qualified)
	assert.InDelta(t, 1.134, res.Report.TotalCost, 1e-9)
	assert.InDelta(t, 0.2835, res.Report.AverageCostPerRecord, 1e-9)
	assert.InDelta(t, 0.567, res.Report.CostPerQualifiedRecord, 1e-9)
	assert.InDelta(t, 62, res.Report.AverageScore, 1e-9)
}
