// Package cost prices provider calls and accounts for session spend.
package cost

import (
	"sync"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/prospect-cli/internal/model"
)

// ErrBudgetExhausted is returned by Reserve when an estimate does not fit
// the remaining session budget or the record's cap. It is a ledger state,
// not a failure.
var ErrBudgetExhausted = eris.New("cost: budget exhausted")

// DiscoveryRecordID is the pseudo-record that search spend is booked under.
const DiscoveryRecordID = "discovery"

// epsilon absorbs float drift when comparing dollar amounts.
const epsilon = 1e-9

// Ledger is the session's single point of serialization for spend. Every
// check-then-debit happens under one mutex, so concurrent records can never
// jointly overspend the ceiling.
type Ledger struct {
	mu sync.Mutex

	ceiling      float64
	perRecordCap float64

	spent     float64
	reserved  float64
	uncovered float64
	perRecord map[string]float64 // committed + reserved
	entries   []model.CostEntry

	nowFunc func() time.Time
}

// NewLedger creates a ledger with a session ceiling and an optional
// per-record cap (0 disables the cap).
func NewLedger(ceiling, perRecordCap float64) *Ledger {
	if ceiling < 0 {
		ceiling = 0
	}
	return &Ledger{
		ceiling:      ceiling,
		perRecordCap: perRecordCap,
		perRecord:    make(map[string]float64),
		nowFunc:      time.Now,
	}
}

// Reservation holds budget for one in-flight stage call until it is
// committed or released.
type Reservation struct {
	l        *Ledger
	RecordID string
	Stage    model.StageName
	Amount   float64
	done     bool
}

// Reserve atomically checks that estimate fits both the session and the
// record budget and sets it aside.
func (l *Ledger) Reserve(recordID string, stage model.StageName, estimate float64) (*Reservation, error) {
	if estimate < 0 {
		return nil, eris.Errorf("cost: negative estimate %.4f for %s", estimate, stage)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.spent+l.reserved+estimate > l.ceiling+epsilon {
		return nil, eris.Wrapf(ErrBudgetExhausted, "session remaining %.4f < %.4f", l.ceiling-l.spent-l.reserved, estimate)
	}
	if l.capped(recordID) && l.perRecord[recordID]+estimate > l.perRecordCap+epsilon {
		return nil, eris.Wrapf(ErrBudgetExhausted, "record %s remaining %.4f < %.4f", recordID, l.perRecordCap-l.perRecord[recordID], estimate)
	}

	l.reserved += estimate
	l.perRecord[recordID] += estimate
	return &Reservation{l: l, RecordID: recordID, Stage: stage, Amount: estimate}, nil
}

// Commit converts the reservation into a ledger entry for the actual cost.
// A provider bill above what the budget can still cover is charged up to
// the limit and the excess is reported as Uncovered, so the sum of entries
// never passes the ceiling.
func (r *Reservation) Commit(actual float64) model.CostEntry {
	l := r.l
	l.mu.Lock()
	defer l.mu.Unlock()

	if r.done {
		return model.CostEntry{RecordID: r.RecordID, Stage: r.Stage}
	}
	r.done = true
	l.reserved -= r.Amount
	l.perRecord[r.RecordID] -= r.Amount

	if actual < 0 {
		actual = 0
	}
	charge := actual
	if avail := l.ceiling - l.spent - l.reserved; charge > avail {
		charge = max(avail, 0)
	}
	if l.capped(r.RecordID) {
		if avail := l.perRecordCap - l.perRecord[r.RecordID]; charge > avail {
			charge = max(avail, 0)
		}
	}

	entry := model.CostEntry{
		RecordID:  r.RecordID,
		Stage:     r.Stage,
		Cost:      charge,
		Uncovered: actual - charge,
		Timestamp: l.nowFunc(),
	}
	l.spent += charge
	l.uncovered += entry.Uncovered
	l.perRecord[r.RecordID] += charge
	l.entries = append(l.entries, entry)
	return entry
}

// Release returns the reserved amount without recording spend.
func (r *Reservation) Release() {
	l := r.l
	l.mu.Lock()
	defer l.mu.Unlock()

	if r.done {
		return
	}
	r.done = true
	l.reserved -= r.Amount
	l.perRecord[r.RecordID] -= r.Amount
}

// Debit reserves and commits in one step. Used for spend whose amount is
// known up front, such as discovery searches.
func (l *Ledger) Debit(recordID string, stage model.StageName, amount float64) (model.CostEntry, error) {
	res, err := l.Reserve(recordID, stage, amount)
	if err != nil {
		return model.CostEntry{}, err
	}
	return res.Commit(amount), nil
}

// capped reports whether the per-record cap applies. Discovery spend is
// bounded by the session ceiling only.
func (l *Ledger) capped(recordID string) bool {
	return l.perRecordCap > 0 && recordID != DiscoveryRecordID
}

// Ceiling returns the session ceiling.
func (l *Ledger) Ceiling() float64 {
	return l.ceiling
}

// Spent returns the committed session spend.
func (l *Ledger) Spent() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.spent
}

// Remaining returns the budget not yet committed or reserved.
func (l *Ledger) Remaining() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return max(l.ceiling-l.spent-l.reserved, 0)
}

// Uncovered returns provider billing that exceeded the budget.
func (l *Ledger) Uncovered() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.uncovered
}

// RecordSpent returns the committed spend for one record.
func (l *Ledger) RecordSpent(recordID string) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	total := 0.0
	for _, e := range l.entries {
		if e.RecordID == recordID {
			total += e.Cost
		}
	}
	return total
}

// Entries returns a copy of all ledger entries in commit order.
func (l *Ledger) Entries() []model.CostEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]model.CostEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// EntriesFor returns the entries for one record in commit order.
func (l *Ledger) EntriesFor(recordID string) []model.CostEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []model.CostEntry
	for _, e := range l.entries {
		if e.RecordID == recordID {
			out = append(out, e)
		}
	}
	return out
}

// Summary is a point-in-time view of the ledger.
type Summary struct {
	Ceiling   float64                     `json:"ceiling"`
	Spent     float64                     `json:"spent"`
	Remaining float64                     `json:"remaining"`
	Uncovered float64                     `json:"uncovered"`
	ByStage   map[model.StageName]float64 `json:"by_stage"`
	Entries   int                         `json:"entries"`
}

// Summarize totals spend by stage.
func (l *Ledger) Summarize() Summary {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := Summary{
		Ceiling:   l.ceiling,
		Spent:     l.spent,
		Remaining: max(l.ceiling-l.spent-l.reserved, 0),
		Uncovered: l.uncovered,
		ByStage:   make(map[model.StageName]float64),
		Entries:   len(l.entries),
	}
	for _, e := range l.entries {
		s.ByStage[e.Stage] += e.Cost
	}
	return s
}
