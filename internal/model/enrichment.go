package model

import "time"

// StageName identifies a waterfall stage.
type StageName string

// Stages in their fixed execution order, cheapest first.
const (
	StageFreeValidation       StageName = "free_validation"
	StageDomainEmailDiscovery StageName = "domain_email_discovery"
	StageEmailVerification    StageName = "email_verification"
	StagePersonEnrichment     StageName = "premium_person_enrichment"
	StageRegistryLookup       StageName = "compliance_registry_lookup"

	// StageDiscovery is used for session-level search spend in the ledger.
	StageDiscovery StageName = "discovery"
)

// StageOrder is the invariant execution order of the waterfall.
var StageOrder = []StageName{
	StageFreeValidation,
	StageDomainEmailDiscovery,
	StageEmailVerification,
	StagePersonEnrichment,
	StageRegistryLookup,
}

// StageIndex returns the position of s in StageOrder, or -1.
func StageIndex(s StageName) int {
	for i, name := range StageOrder {
		if name == s {
			return i
		}
	}
	return -1
}

// StageStatus describes what happened to a stage for one record.
type StageStatus string

const (
	StageRan             StageStatus = "ran"
	StageFailed          StageStatus = "failed"
	StageSkippedBudget   StageStatus = "skipped (budget)"
	StageSkippedDisabled StageStatus = "skipped (disabled)"
	StageSkippedNotNeed  StageStatus = "skipped (not needed)"
	StageSkippedDeadline StageStatus = "skipped (deadline)"
)

// WaterfallStatus is the terminal (or pending) state of a record's waterfall.
type WaterfallStatus string

const (
	WaterfallPending           WaterfallStatus = "pending"
	WaterfallCompleted         WaterfallStatus = "completed"
	WaterfallBudgetExhausted   WaterfallStatus = "budget-exhausted"
	WaterfallQualityGateFailed WaterfallStatus = "quality-gate-failed"
	WaterfallInterrupted       WaterfallStatus = "interrupted"
)

// EnrichmentResult is the outcome of one stage for one record. Results are
// appended to MergedBusinessRecord.History and never replaced.
type EnrichmentResult struct {
	Stage           StageName      `json:"stage"`
	Status          StageStatus    `json:"status"`
	Success         bool           `json:"success"`
	Provider        string         `json:"provider,omitempty"`
	FieldsAdded     map[string]any `json:"fields_added,omitempty"`
	Cost            float64        `json:"cost"`
	ConfidenceDelta float64        `json:"confidence_delta"`
	Cached          bool           `json:"cached,omitempty"`
	Error           string         `json:"error,omitempty"`
	At              time.Time      `json:"at"`
}

// CostEntry is a single debit in the session ledger.
type CostEntry struct {
	RecordID  string    `json:"record_id"`
	Stage     StageName `json:"stage"`
	Cost      float64   `json:"cost"`
	Uncovered float64   `json:"uncovered,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// QualityTier labels how much evidence backs a score.
type QualityTier string

const (
	TierFreeOnly            QualityTier = "free-only"
	TierContactEnriched     QualityTier = "contact-enriched"
	TierExternallyValidated QualityTier = "externally-validated"
)

// QualityScore is a weighted score in [0, 100] with its per-factor parts.
type QualityScore struct {
	Total     float64            `json:"total"`
	Breakdown map[string]float64 `json:"breakdown"`
	Tier      QualityTier        `json:"tier"`
}
