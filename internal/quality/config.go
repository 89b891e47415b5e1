// Package quality scores merged business records from free signals and,
// once paid enrichment has run, from contact and registry evidence.
package quality

import (
	"fmt"
	"math"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/prospect-cli/internal/config"
)

// DefaultQualityConfig returns a config.QualityConfig with sensible defaults.
// Free weights sum to 100.
func DefaultQualityConfig() config.QualityConfig {
	return config.QualityConfig{
		// Free weights (sum = 100).
		NameWeight:    25,
		AddressWeight: 25,
		PhoneWeight:   25,
		WebsiteWeight: 25,

		// Paid weights.
		VerifiedEmailWeight:   25,
		UnverifiedEmailWeight: 10,
		PatternEmailWeight:    3,
		OwnerContactWeight:    10,
		RegistryActiveWeight:  10,
		RegistryOtherWeight:   3,

		OwnerVerifiedConfidence: 70,
		OwnerFallbackConfidence: 60,

		// Recommendation thresholds.
		HighQualityThreshold: 70,
		GoodThreshold:        55,
		MarginalThreshold:    40,
	}
}

// FreeWeightSum returns the sum of the free factor weights.
func FreeWeightSum(c config.QualityConfig) float64 {
	return c.NameWeight + c.AddressWeight + c.PhoneWeight + c.WebsiteWeight
}

// ValidateConfig checks that a QualityConfig is internally consistent.
func ValidateConfig(c config.QualityConfig) error {
	var errs []string

	weights := map[string]float64{
		"name_weight":             c.NameWeight,
		"address_weight":          c.AddressWeight,
		"phone_weight":            c.PhoneWeight,
		"website_weight":          c.WebsiteWeight,
		"verified_email_weight":   c.VerifiedEmailWeight,
		"unverified_email_weight": c.UnverifiedEmailWeight,
		"pattern_email_weight":    c.PatternEmailWeight,
		"owner_contact_weight":    c.OwnerContactWeight,
		"registry_active_weight":  c.RegistryActiveWeight,
		"registry_other_weight":   c.RegistryOtherWeight,
	}
	for name, w := range weights {
		if w < 0 {
			errs = append(errs, fmt.Sprintf("%s must be >= 0", name))
		}
	}

	// Free weights should be close to 100 (allow tolerance for floating-point).
	if sum := FreeWeightSum(c); math.Abs(sum-100) > 1 {
		errs = append(errs, fmt.Sprintf("free weights should sum to 100, got %.1f", sum))
	}

	// A verified address must always outweigh a guessed one.
	if c.VerifiedEmailWeight <= c.UnverifiedEmailWeight || c.UnverifiedEmailWeight < c.PatternEmailWeight {
		errs = append(errs, "email weights must satisfy verified > unverified >= pattern")
	}

	if c.OwnerFallbackConfidence < 0 || c.OwnerFallbackConfidence > 100 {
		errs = append(errs, "owner_fallback_confidence must be between 0 and 100")
	}
	if c.OwnerVerifiedConfidence < 0 || c.OwnerVerifiedConfidence > 100 {
		errs = append(errs, "owner_verified_confidence must be between 0 and 100")
	}

	if !(c.HighQualityThreshold >= c.GoodThreshold && c.GoodThreshold >= c.MarginalThreshold) {
		errs = append(errs, "thresholds must satisfy high_quality >= good >= marginal")
	}

	if len(errs) > 0 {
		return eris.Errorf("quality: config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
