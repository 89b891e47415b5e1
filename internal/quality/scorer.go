package quality

import (
	"math"
	"strings"

	"github.com/sells-group/prospect-cli/internal/config"
	"github.com/sells-group/prospect-cli/internal/model"
)

// Factor names used as QualityScore.Breakdown keys.
const (
	FactorName     = "business_name"
	FactorAddress  = "address"
	FactorPhone    = "phone"
	FactorWebsite  = "website"
	FactorEmail    = "email"
	FactorOwner    = "owner_contact"
	FactorRegistry = "registry"
)

// Scorer computes weighted quality scores.
type Scorer struct {
	cfg config.QualityConfig
}

// NewScorer creates a Scorer with the given weights.
func NewScorer(cfg config.QualityConfig) *Scorer {
	return &Scorer{cfg: cfg}
}

// Config returns the scorer's weights.
func (s *Scorer) Config() config.QualityConfig {
	return s.cfg
}

// ScoreFree scores a record from zero-cost signals only. Each factor's
// 0-100 sub-score is scaled to its weight.
func (s *Scorer) ScoreFree(rec *model.MergedBusinessRecord) model.QualityScore {
	breakdown := s.freeBreakdown(rec)
	return model.QualityScore{
		Total:     total(breakdown),
		Breakdown: breakdown,
		Tier:      model.TierFreeOnly,
	}
}

// ScorePaid re-derives the score after enrichment. The free factors are
// recomputed from the current record, then email, owner and registry
// evidence is added on top. The total is clamped to 100.
func (s *Scorer) ScorePaid(rec *model.MergedBusinessRecord) model.QualityScore {
	breakdown := s.freeBreakdown(rec)
	breakdown[FactorEmail] = round2(s.emailFactor(rec))
	breakdown[FactorOwner] = round2(s.ownerFactor(rec))
	breakdown[FactorRegistry] = round2(s.registryFactor(rec))

	tier := model.TierFreeOnly
	switch {
	case breakdown[FactorRegistry] > 0:
		tier = model.TierExternallyValidated
	case breakdown[FactorEmail] > 0 || breakdown[FactorOwner] > 0:
		tier = model.TierContactEnriched
	}

	return model.QualityScore{
		Total:     total(breakdown),
		Breakdown: breakdown,
		Tier:      tier,
	}
}

func (s *Scorer) freeBreakdown(rec *model.MergedBusinessRecord) map[string]float64 {
	return map[string]float64{
		FactorName:    round2(NameScore(rec.Name) / 100 * s.cfg.NameWeight),
		FactorAddress: round2(AddressScore(rec.Address) / 100 * s.cfg.AddressWeight),
		FactorPhone:   round2(PhoneScore(rec.Phone) / 100 * s.cfg.PhoneWeight),
		FactorWebsite: round2(WebsiteScore(rec.Website) / 100 * s.cfg.WebsiteWeight),
	}
}

// emailFactor scores the best candidate: a deliverable address beats a
// provider-found one, which beats a pattern guess.
func (s *Scorer) emailFactor(rec *model.MergedBusinessRecord) float64 {
	best := 0.0
	for _, e := range rec.Emails {
		var w float64
		switch {
		case e.Verified:
			w = s.cfg.VerifiedEmailWeight
		case e.PatternGenerated:
			w = s.cfg.PatternEmailWeight
		default:
			w = s.cfg.UnverifiedEmailWeight
		}
		if w > best {
			best = w
		}
	}
	return best
}

// ownerFactor gives full weight to a qualified owner contact and half
// weight to a known owner name or a provider-found owner email. A
// pattern-guessed owner email alone earns nothing.
func (s *Scorer) ownerFactor(rec *model.MergedBusinessRecord) float64 {
	if OwnerQualified(rec, s.cfg) {
		return s.cfg.OwnerContactWeight
	}
	if strings.TrimSpace(rec.OwnerName) != "" {
		return s.cfg.OwnerContactWeight / 2
	}
	if rec.OwnerEmail != "" {
		if owner, ok := rec.OwnerEmailCandidate(); !ok || !owner.PatternGenerated {
			return s.cfg.OwnerContactWeight / 2
		}
	}
	return 0
}

func (s *Scorer) registryFactor(rec *model.MergedBusinessRecord) float64 {
	status := strings.ToLower(strings.TrimSpace(rec.RegistryStatus))
	switch {
	case status == "":
		return 0
	case status == "active" || status == "good standing" || status == "in good standing":
		return s.cfg.RegistryActiveWeight
	default:
		return s.cfg.RegistryOtherWeight
	}
}

// OwnerQualified applies the owner-contact rule in precedence order:
//  1. a verified, non-pattern owner email
//  2. an owner name plus a verified company email
//  3. a non-pattern owner email at or above OwnerFallbackConfidence
//
// "Verified" means a deliverability check passed, or a non-pattern address
// at or above OwnerVerifiedConfidence.
func OwnerQualified(rec *model.MergedBusinessRecord, cfg config.QualityConfig) bool {
	owner, hasOwnerEmail := rec.OwnerEmailCandidate()
	if hasOwnerEmail && verifiedEmail(owner, cfg) {
		return true
	}

	if strings.TrimSpace(rec.OwnerName) != "" {
		for _, e := range rec.Emails {
			if hasOwnerEmail && strings.EqualFold(e.Address, owner.Address) {
				continue
			}
			if verifiedEmail(e, cfg) {
				return true
			}
		}
	}

	return hasOwnerEmail && !owner.PatternGenerated && owner.Confidence >= cfg.OwnerFallbackConfidence
}

func verifiedEmail(e model.EmailCandidate, cfg config.QualityConfig) bool {
	if e.Verified {
		return true
	}
	return !e.PatternGenerated && e.Confidence >= cfg.OwnerVerifiedConfidence
}

func total(breakdown map[string]float64) float64 {
	sum := 0.0
	for _, v := range breakdown {
		sum += v
	}
	return math.Min(100, round2(sum))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
