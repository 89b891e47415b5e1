package normalize

import "github.com/sells-group/prospect-cli/internal/model"

// Schema lists, per canonical field, the gjson paths that may hold it in a
// provider payload. The first non-empty path wins.
type Schema struct {
	Name       []string
	Address    []string
	Phone      []string
	Website    []string
	Email      []string
	Confidence []string

	// BaseConfidence is used when no confidence path resolves.
	BaseConfidence float64
}

// DefaultSchemas returns the field aliases for every known provider.
func DefaultSchemas() map[model.SourceID]Schema {
	return map[model.SourceID]Schema{
		model.SourceGooglePlaces: {
			Name:           []string{"name", "displayName.text", "businessName"},
			Address:        []string{"formatted_address", "formattedAddress", "vicinity"},
			Phone:          []string{"formatted_phone_number", "international_phone_number", "nationalPhoneNumber"},
			Website:        []string{"website", "websiteUri"},
			BaseConfidence: 80,
		},
		model.SourceFoursquare: {
			Name:           []string{"name"},
			Address:        []string{"location.formatted_address", "location.address"},
			Phone:          []string{"tel", "phone"},
			Website:        []string{"website"},
			Email:          []string{"email"},
			BaseConfidence: 70,
		},
		model.SourceHunter: {
			Name:           []string{"organization", "name"},
			Website:        []string{"domain", "website"},
			Email:          []string{"emails.0.value", "email"},
			Phone:          []string{"phone_number", "phone"},
			BaseConfidence: 60,
		},
		model.SourceNeverBounce: {
			Name:           []string{"name", "businessName"},
			Email:          []string{"email"},
			BaseConfidence: 50,
		},
		model.SourceApollo: {
			Name:           []string{"organization.name", "name"},
			Address:        []string{"organization.raw_address", "raw_address"},
			Phone:          []string{"organization.phone", "phone"},
			Website:        []string{"organization.website_url", "website_url"},
			Email:          []string{"email"},
			BaseConfidence: 65,
		},
		model.SourceSECEdgar: {
			Name:           []string{"entityName", "name"},
			Address:        []string{"addresses.business.street1", "address"},
			Phone:          []string{"phone"},
			Website:        []string{"website"},
			BaseConfidence: 90,
		},
		model.SourceStateRegistry: {
			Name:           []string{"entity_name", "name"},
			Address:        []string{"principal_address", "address"},
			Phone:          []string{"phone"},
			BaseConfidence: 85,
		},
		model.SourceManual: {
			Name:           []string{"name", "businessName", "business_name", "company"},
			Address:        []string{"address", "fullAddress", "full_address"},
			Phone:          []string{"phone", "phoneNumber", "phone_number"},
			Website:        []string{"website", "url", "domain"},
			Email:          []string{"email", "companyEmail", "company_email"},
			Confidence:     []string{"source_confidence", "confidence"},
			BaseConfidence: 50,
		},
	}
}
