package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/prospect-cli/internal/calibrate"
	"github.com/sells-group/prospect-cli/internal/discovery"
	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/internal/pipeline"
	"github.com/sells-group/prospect-cli/internal/quality"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, name := range []string{"run", "score", "calibrate", "discover"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "prospect-cli", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestRunCommand_Flags(t *testing.T) {
	for _, name := range []string{"input", "out", "stages", "budget", "records"} {
		assert.NotNil(t, runCmd.Flags().Lookup(name), "run should have --%s", name)
	}
	assert.Equal(t, "0", runCmd.Flags().Lookup("budget").DefValue)
	assert.Equal(t, "true", runCmd.Flags().Lookup("records").DefValue)
}

func TestDiscoverCommand_Flags(t *testing.T) {
	for _, name := range []string{"term", "location", "out", "stages", "budget", "target"} {
		assert.NotNil(t, discoverCmd.Flags().Lookup(name), "discover should have --%s", name)
	}
}

func TestCalibrateCommand_Flags(t *testing.T) {
	flag := calibrateCmd.Flags().Lookup("target-rate")
	require.NotNil(t, flag)
	assert.Equal(t, "0", flag.DefValue)
}

func TestScoreCommand_WritesSession(t *testing.T) {
	input := writeTemp(t, "leads.csv", "Name,Phone,Website\n"+
		"Riverside Plumbing,217-555-0100,riversideplumbing.com\n"+
		"Main Street Bakery,217-555-0199,\n")
	outPath := filepath.Join(t.TempDir(), "session.json")

	out, err := execute(t, "score", "--input", input, "--out", outPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Entities")
	assert.Contains(t, out, "Riverside Plumbing")

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	var sess pipeline.Session
	require.NoError(t, json.Unmarshal(data, &sess))

	assert.Len(t, sess.Records, 2)
	assert.Zero(t, sess.Ledger.Spent)
	for _, rec := range sess.Records {
		assert.Equal(t, model.TierFreeOnly, rec.Score.Tier)
		assert.Empty(t, rec.History)
	}
}

func TestScoreCommand_MissingInput(t *testing.T) {
	_, err := execute(t, "score", "--input", filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)
}

func TestCalibrateCommand_FromScores(t *testing.T) {
	input := writeTemp(t, "scores.json", `[20, 35, 50, 62, 70, 81, 90]`)

	out, err := execute(t, "calibrate", "--input", input, "--target-rate", "50", "--json")
	require.NoError(t, err)

	var res calibrate.Result
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, 7, res.Report.Records)
	assert.InDelta(t, 50, res.TargetRate, 1e-9)
	assert.GreaterOrEqual(t, res.SuggestedThreshold, 45.0)
	assert.LessOrEqual(t, res.SuggestedThreshold, 75.0)
}

func TestDiscoverCommand_NoSearchKeys(t *testing.T) {
	t.Setenv("PROSPECT_PROVIDERS_GOOGLE_PLACES_KEY", "")
	t.Setenv("PROSPECT_PROVIDERS_FOURSQUARE_KEY", "")

	_, err := execute(t, "discover", "--term", "plumber", "--location", "Springfield, IL")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no search provider")
}

func TestLoadSamples_Session(t *testing.T) {
	sess := pipeline.Session{Records: []*model.MergedBusinessRecord{
		{ID: "a", Score: model.QualityScore{Total: 80}, History: []model.EnrichmentResult{{Cost: 0.034}, {Cost: 0.016}}},
		{ID: "b", Score: model.QualityScore{Total: 40}},
	}}
	data, err := json.Marshal(sess)
	require.NoError(t, err)

	samples, err := loadSamples(writeTemp(t, "session.json", string(data)))
	require.NoError(t, err)
	require.Len(t, samples, 2)
	assert.InDelta(t, 80, samples[0].Score, 1e-9)
	assert.InDelta(t, 0.05, samples[0].Cost, 1e-9)
	assert.Zero(t, samples[1].Cost)
}

func TestLoadSamples_Malformed(t *testing.T) {
	_, err := loadSamples(writeTemp(t, "bad.json", `{"records": 3}`))
	assert.Error(t, err)
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeJSON(&buf, "-", map[string]int{"a": 1}))
	assert.JSONEq(t, `{"a":1}`, buf.String())

	path := filepath.Join(t.TempDir(), "out.json")
	buf.Reset()
	require.NoError(t, writeJSON(&buf, path, []int{1, 2}))
	assert.Empty(t, buf.String())
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `[1,2]`, string(data))
}

func TestRenderTable(t *testing.T) {
	assert.Empty(t, renderTable(nil, nil, nil))

	out := renderTable([]string{"Name", "Score"}, [][]string{{"Riverside", "95.0"}, {"Short row"}}, []columnAlignment{alignLeft, alignRight})
	assert.Contains(t, out, "Name")
	assert.Contains(t, out, "Riverside")
	assert.Contains(t, out, "Short row")
	assert.Len(t, strings.Split(out, "\n"), 6)
}

func TestSessionSummaryTable(t *testing.T) {
	sess := &pipeline.Session{
		Summary: pipeline.Summary{
			Entities:        3,
			Completed:       2,
			Recommendations: map[quality.Recommendation]int{quality.RecommendGood: 2, quality.RecommendLowQuality: 1},
		},
	}
	sess.Ledger.Spent = 0.13
	sess.Ledger.Ceiling = 5

	out := sessionSummaryTable(sess)
	assert.Contains(t, out, "Entities")
	assert.Contains(t, out, "$0.1300 of $5.00")
	assert.Contains(t, out, string(quality.RecommendGood))
	assert.NotContains(t, out, "Uncovered")
}

func TestDiscoveryTable(t *testing.T) {
	res := &discovery.Result{
		Queries: []discovery.QueryStat{
			{Query: "plumber in Springfield, IL", Found: 20, New: 18, Spent: 0.032},
			{Query: "emergency plumber in Springfield, IL", Found: 20, New: 4, Spent: 0.032, Failed: []model.SourceID{model.SourceFoursquare}},
		},
		Spent:      0.064,
		StopReason: discovery.StopTargetMet,
	}

	out := discoveryTable(res)
	assert.Contains(t, out, "emergency plumber in Springfield, IL")
	assert.Contains(t, out, "foursquare")
	assert.Contains(t, out, "stop: target-met")
}

func TestTruncateCell(t *testing.T) {
	assert.Equal(t, "short", truncateCell("short", 10))
	assert.Equal(t, "abcd…", truncateCell("abcdefgh", 5))
}
