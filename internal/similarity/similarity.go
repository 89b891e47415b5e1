// Package similarity compares business identity fingerprints (name, phone,
// address) and decides whether two provider records describe the same entity.
package similarity

import (
	"strings"

	"github.com/agext/levenshtein"

	"github.com/sells-group/prospect-cli/internal/config"
	"github.com/sells-group/prospect-cli/internal/model"
)

// Signals reported in Result.MatchedOn.
const (
	SignalPhone         = "phone"
	SignalName          = "name"
	SignalNameContains  = "name_containment"
	SignalAddressStrong = "address_street_number"
	SignalAddressWeak   = "address_tokens"
)

// AddressSignal grades address corroboration.
type AddressSignal int

const (
	AddressNone AddressSignal = iota
	AddressWeak
	AddressStrong
)

func (a AddressSignal) String() string {
	switch a {
	case AddressStrong:
		return "strong"
	case AddressWeak:
		return "weak"
	default:
		return "none"
	}
}

// Result is the outcome of comparing two records.
type Result struct {
	Score          float64
	Match          bool
	MatchedOn      []string
	NameSimilarity float64
	PhoneMatch     bool
	Address        AddressSignal
}

// DefaultConfig returns the default match thresholds.
func DefaultConfig() config.SimilarityConfig {
	return config.SimilarityConfig{
		Cutoff:             0.78,
		StrongName:         0.85,
		ContainmentScore:   0.9,
		ContainmentMinLen:  4,
		StrongAddressBonus: 0.10,
		WeakAddressBonus:   0.05,
		MinSharedTokens:    2,
		MinTokenLen:        4,
	}
}

// Compare scores a pair of records. A phone match on the last 10 digits is
// authoritative. Otherwise the name must clear StrongName on its own, or
// clear Cutoff with address corroboration. Empty fields skip their signal.
// Compare panics on nil input.
func Compare(a, b *model.BusinessRecord, cfg config.SimilarityConfig) Result {
	if a == nil || b == nil {
		panic("similarity: Compare called with nil record")
	}

	var res Result

	if pa, pb := lastTen(a.Phone), lastTen(b.Phone); pa != "" && pa == pb {
		res.PhoneMatch = true
		res.MatchedOn = append(res.MatchedOn, SignalPhone)
	}

	haveName := false
	if na, nb := CleanName(a.Name), CleanName(b.Name); na != "" && nb != "" {
		haveName = true
		sim, contained := NameSimilarity(na, nb, cfg)
		res.NameSimilarity = sim
		if contained {
			res.MatchedOn = append(res.MatchedOn, SignalNameContains)
		} else if sim >= cfg.Cutoff {
			res.MatchedOn = append(res.MatchedOn, SignalName)
		}
	}

	res.Address = CompareAddress(a.Address, b.Address, cfg)
	switch res.Address {
	case AddressStrong:
		res.MatchedOn = append(res.MatchedOn, SignalAddressStrong)
	case AddressWeak:
		res.MatchedOn = append(res.MatchedOn, SignalAddressWeak)
	}

	nameStrong := haveName && res.NameSimilarity >= cfg.StrongName
	nameCorroborated := haveName && res.NameSimilarity >= cfg.Cutoff && res.Address != AddressNone
	res.Match = res.PhoneMatch || nameStrong || nameCorroborated

	switch {
	case res.PhoneMatch:
		res.Score = 1.0
	case haveName:
		res.Score = res.NameSimilarity
		if res.NameSimilarity >= cfg.Cutoff {
			switch res.Address {
			case AddressStrong:
				res.Score += cfg.StrongAddressBonus
			case AddressWeak:
				res.Score += cfg.WeakAddressBonus
			}
		}
		if res.Score > 1 {
			res.Score = 1
		}
	}

	return res
}

// NameSimilarity returns the Levenshtein similarity of two cleaned names,
// (longer - distance) / longer over runes. When one name contains the other
// and the shorter is long enough, the similarity is lifted to at least
// ContainmentScore.
func NameSimilarity(a, b string, cfg config.SimilarityConfig) (float64, bool) {
	if a == "" || b == "" {
		return 0, false
	}
	if a == b {
		return 1, false
	}

	ra, rb := []rune(a), []rune(b)
	longer, shorter := len(ra), len(rb)
	shortStr, longStr := b, a
	if shorter > longer {
		longer, shorter = shorter, longer
		shortStr, longStr = a, b
	}

	dist := levenshtein.Distance(a, b, nil)
	sim := float64(longer-dist) / float64(longer)

	if shorter >= cfg.ContainmentMinLen && strings.Contains(longStr, shortStr) {
		if sim < cfg.ContainmentScore {
			sim = cfg.ContainmentScore
		}
		return sim, true
	}
	return sim, false
}

// CompareAddress grades address corroboration: an equal leading street
// number is strong; otherwise MinSharedTokens shared words of at least
// MinTokenLen runes is weak.
func CompareAddress(a, b string, cfg config.SimilarityConfig) AddressSignal {
	if strings.TrimSpace(a) == "" || strings.TrimSpace(b) == "" {
		return AddressNone
	}
	if na, nb := StreetNumber(a), StreetNumber(b); na != "" && na == nb {
		return AddressStrong
	}

	ta := addressTokens(a, cfg.MinTokenLen)
	tb := addressTokens(b, cfg.MinTokenLen)
	shared := 0
	for tok := range ta {
		if tb[tok] {
			shared++
		}
	}
	if shared >= cfg.MinSharedTokens {
		return AddressWeak
	}
	return AddressNone
}
