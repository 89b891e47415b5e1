package cost

import (
	"github.com/sells-group/prospect-cli/internal/config"
	"github.com/sells-group/prospect-cli/internal/model"
)

// Calculator prices provider calls from the configured rate card.
type Calculator struct {
	rates config.PricingConfig
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates config.PricingConfig) *Calculator {
	return &Calculator{rates: rates}
}

// Rates returns the rate card.
func (c *Calculator) Rates() config.PricingConfig {
	return c.rates
}

// Search returns the cost of one discovery search against source.
func (c *Calculator) Search(source model.SourceID) float64 {
	switch source {
	case model.SourceGooglePlaces:
		return c.rates.GooglePlacesPerSearch
	case model.SourceFoursquare:
		return c.rates.FoursquarePerSearch
	default:
		return 0
	}
}

// DomainSearch returns the cost of one domain email search.
func (c *Calculator) DomainSearch() float64 {
	return c.rates.HunterPerSearch
}

// Verification returns the cost of verifying n email addresses.
func (c *Calculator) Verification(n int) float64 {
	if n <= 0 {
		return 0
	}
	return float64(n) * c.rates.NeverBouncePerEmail
}

// PersonEnrichment returns the cost of one person enrichment.
func (c *Calculator) PersonEnrichment() float64 {
	return c.rates.ApolloPerPerson
}

// RegistryLookup returns the cost of one registry lookup.
func (c *Calculator) RegistryLookup() float64 {
	return c.rates.RegistryPerLookup
}

// DefaultRates returns the default pricing rates.
func DefaultRates() config.PricingConfig {
	return config.PricingConfig{
		GooglePlacesPerSearch: 0.032,
		FoursquarePerSearch:   0.0,
		HunterPerSearch:       0.034,
		NeverBouncePerEmail:   0.008,
		ApolloPerPerson:       1.00,
		RegistryPerLookup:     0.0,
	}
}
