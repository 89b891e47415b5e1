// Package discovery finds candidate businesses by running a capped queue of
// search queries against the configured search providers.
package discovery

import (
	"fmt"
	"strings"

	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/internal/normalize"
)

// StopReason says why a discovery run ended.
type StopReason string

const (
	StopTargetMet       StopReason = "target-met"
	StopBudgetExhausted StopReason = "budget-exhausted"
	StopQueueEmpty      StopReason = "queue-empty"
	StopInterrupted     StopReason = "interrupted"
)

// Query is one search to run against every source.
type Query struct {
	Term     string `json:"term"`
	Location string `json:"location"`
	Priority int    `json:"priority"`

	seq int
}

// Text renders the query as sent to text-search providers.
func (q Query) Text() string {
	if q.Location == "" {
		return q.Term
	}
	return fmt.Sprintf("%s in %s", q.Term, q.Location)
}

func (q Query) key() string {
	return strings.ToLower(strings.Join(strings.Fields(q.Text()), " "))
}

// QueryStat reports what one query produced.
type QueryStat struct {
	Query   string           `json:"query"`
	Found   int              `json:"found"`
	New     int              `json:"new"`
	Spent   float64          `json:"spent"`
	Failed  []model.SourceID `json:"failed,omitempty"`
	Skipped []model.SourceID `json:"skipped,omitempty"`
}

// Result is the outcome of a discovery run.
type Result struct {
	Records    []model.BusinessRecord `json:"records"`
	Queries    []QueryStat            `json:"queries"`
	Spent      float64                `json:"spent"`
	StopReason StopReason             `json:"stop_reason"`
	Stats      normalize.BatchStats   `json:"normalize"`
	// Filtered counts directory websites cleared during normalization.
	Filtered int `json:"filtered"`
}

// QueriesRun returns the number of queries that were executed.
func (r *Result) QueriesRun() int {
	return len(r.Queries)
}
