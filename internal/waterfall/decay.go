package waterfall

import (
	"math"
	"time"
)

// EffectiveConfidence computes the time-decayed confidence of a cached
// data point: max(floor, raw * 2^(-ageDays / halfLifeDays)).
func EffectiveConfidence(raw float64, asOf, now time.Time, decay DecayConfig) float64 {
	if raw <= 0 {
		return 0
	}
	if asOf.IsZero() {
		return raw
	}

	ageDays := now.Sub(asOf).Hours() / 24
	if ageDays <= 0 {
		return raw
	}

	halfLife := float64(decay.HalfLifeDays)
	if halfLife <= 0 {
		halfLife = 180
	}

	return math.Max(decay.Floor, raw*math.Pow(2, -ageDays/halfLife))
}

// DecayEmailConfidence applies EffectiveConfidence to a 0-100 email
// confidence read from a cached provider response.
func DecayEmailConfidence(confidence int, storedAt, now time.Time, decay DecayConfig) int {
	return int(math.Round(EffectiveConfidence(float64(confidence), storedAt, now, decay)))
}
