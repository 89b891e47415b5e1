package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/sells-group/prospect-cli/internal/calibrate"
	"github.com/sells-group/prospect-cli/internal/discovery"
	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/internal/pipeline"
	"github.com/sells-group/prospect-cli/internal/quality"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := 0; i < columns; i++ {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := 0; i < columns; i++ {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, columns)
	for i := 0; i < columns; i++ {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(configs)

	return tw.Render()
}

// sessionRecordsTable renders each entity with its score and outcome.
func sessionRecordsTable(sess *pipeline.Session) string {
	headers := []string{"Name", "Sources", "Free", "Score", "Tier", "Status", "Spent"}
	aligns := []columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft, alignLeft, alignRight}

	rows := make([][]string, 0, len(sess.Records))
	for _, rec := range sess.Records {
		sources := make([]string, 0, len(rec.Contributing))
		for _, s := range rec.Sources() {
			sources = append(sources, string(s))
		}
		rows = append(rows, []string{
			truncateCell(rec.Name, 40),
			strings.Join(sources, ","),
			fmt.Sprintf("%.1f", rec.FreeScore.Total),
			fmt.Sprintf("%.1f", rec.Score.Total),
			string(rec.Score.Tier),
			string(rec.Status),
			fmt.Sprintf("$%.3f", recordSpent(rec)),
		})
	}
	return renderTable(headers, rows, aligns)
}

// sessionSummaryTable renders the session totals as key/value rows.
func sessionSummaryTable(sess *pipeline.Session) string {
	s := sess.Summary
	rows := [][]string{
		{"Entities", fmt.Sprintf("%d", s.Entities)},
		{"Cross-platform", fmt.Sprintf("%d", s.CrossPlatform)},
		{"Completed", fmt.Sprintf("%d", s.Completed)},
		{"Budget exhausted", fmt.Sprintf("%d", s.BudgetExhausted)},
		{"Quality gate failed", fmt.Sprintf("%d", s.QualityGateFailed)},
		{"Interrupted", fmt.Sprintf("%d", s.Interrupted)},
		{"Owner qualified", fmt.Sprintf("%d", s.OwnerQualified)},
		{"Average score", fmt.Sprintf("%.2f", s.AverageScore)},
	}
	for _, rec := range sortedRecommendations(s.Recommendations) {
		rows = append(rows, []string{"  " + string(rec), fmt.Sprintf("%d", s.Recommendations[rec])})
	}
	rows = append(rows,
		[]string{"Dropped items", fmt.Sprintf("%d", len(sess.Normalize.Drops))},
		[]string{"Spent", fmt.Sprintf("$%.4f of $%.2f", sess.Ledger.Spent, sess.Ledger.Ceiling)},
	)
	if sess.Ledger.Uncovered > 0 {
		rows = append(rows, []string{"Uncovered", fmt.Sprintf("$%.4f", sess.Ledger.Uncovered)})
	}
	return renderTable([]string{"Metric", "Value"}, rows, []columnAlignment{alignLeft, alignRight})
}

// discoveryTable renders per-query search statistics.
func discoveryTable(res *discovery.Result) string {
	headers := []string{"Query", "Found", "New", "Spent", "Failed"}
	aligns := []columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignLeft}

	rows := make([][]string, 0, len(res.Queries)+1)
	for _, q := range res.Queries {
		failed := make([]string, 0, len(q.Failed))
		for _, s := range q.Failed {
			failed = append(failed, string(s))
		}
		rows = append(rows, []string{
			q.Query,
			fmt.Sprintf("%d", q.Found),
			fmt.Sprintf("%d", q.New),
			fmt.Sprintf("$%.3f", q.Spent),
			strings.Join(failed, ","),
		})
	}
	rows = append(rows, []string{
		"stop: " + string(res.StopReason),
		fmt.Sprintf("%d", len(res.Records)),
		"",
		fmt.Sprintf("$%.3f", res.Spent),
		"",
	})
	return renderTable(headers, rows, aligns)
}

// calibrationTable renders a calibration result.
func calibrationTable(res calibrate.Result) string {
	r := res.Report
	rows := [][]string{
		{"Suggested threshold", fmt.Sprintf("%.2f", res.SuggestedThreshold)},
		{"Target rate", fmt.Sprintf("%.0f%%", res.TargetRate)},
		{"Projected rate", fmt.Sprintf("%d%%", res.ProjectedRate)},
		{"Clamped", fmt.Sprintf("%t", res.Clamped)},
		{"Records", fmt.Sprintf("%d", r.Records)},
		{"Qualified", fmt.Sprintf("%d", r.Qualified)},
		{"Score range", fmt.Sprintf("%.1f - %.1f (avg %.1f)", r.LowestScore, r.HighestScore, r.AverageScore)},
		{"Total cost", fmt.Sprintf("$%.4f", r.TotalCost)},
		{"Cost per record", fmt.Sprintf("$%.4f", r.AverageCostPerRecord)},
		{"Cost per qualified", fmt.Sprintf("$%.4f", r.CostPerQualifiedRecord)},
	}
	out := renderTable([]string{"Metric", "Value"}, rows, []columnAlignment{alignLeft, alignRight})
	if r.Advisory != "" {
		out += "\n" + r.Advisory
	}
	return out
}

func sortedRecommendations(m map[quality.Recommendation]int) []quality.Recommendation {
	out := make([]quality.Recommendation, 0, len(m))
	for r := range m {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func recordSpent(rec *model.MergedBusinessRecord) float64 {
	total := 0.0
	for _, h := range rec.History {
		total += h.Cost
	}
	return total
}

func truncateCell(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
