package discovery

import (
	"strings"

	"github.com/sells-group/prospect-cli/internal/model"
)

// dedupKey identifies a discovered business across queries: the provider's
// own place ID when present, else folded name and address.
func dedupKey(rec model.BusinessRecord, providerID string) string {
	if providerID != "" {
		return string(rec.Source) + ":" + providerID
	}
	fold := func(s string) string {
		return strings.Join(strings.Fields(strings.ToLower(s)), " ")
	}
	return "name:" + string(rec.Source) + ":" + fold(rec.Name) + "|" + fold(rec.Address)
}
