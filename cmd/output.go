package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-cli/internal/cache"
	"github.com/sells-group/prospect-cli/internal/calibrate"
	"github.com/sells-group/prospect-cli/internal/discovery"
	"github.com/sells-group/prospect-cli/internal/pipeline"
)

// openPipeline builds a pipeline with the configured cache. The returned
// func closes the cache.
func openPipeline(ctx context.Context, search []discovery.SearchClient) (*pipeline.Pipeline, func(), error) {
	c, err := cache.Open(ctx, cfg.Cache)
	if err != nil {
		return nil, nil, eris.Wrap(err, "open cache")
	}
	closeCache := func() {
		if err := c.Close(); err != nil {
			zap.L().Warn("close cache", zap.Error(err))
		}
	}

	p, err := pipeline.New(cfg, pipeline.Deps{Cache: c, SearchClients: search})
	if err != nil {
		closeCache()
		return nil, nil, err
	}
	return p, closeCache, nil
}

// applyBudget overrides the configured session ceiling when set.
func applyBudget(budget float64) {
	if budget > 0 {
		cfg.Budget.SessionCeiling = budget
	}
}

// writeJSON writes v as indented JSON to path, or to w when path is empty
// or "-".
func writeJSON(w io.Writer, path string, v any) error {
	if path != "" && path != "-" {
		f, err := os.Create(path)
		if err != nil {
			return eris.Wrapf(err, "create %s", path)
		}
		defer f.Close() //nolint:errcheck
		w = f
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return eris.Wrap(err, "encode output")
	}
	return nil
}

// printSession writes the session JSON and prints tables to out. When the
// JSON goes to stdout the tables go to stderr so the output stays parseable.
func printSession(stdout, stderr io.Writer, path string, sess *pipeline.Session, withRecords bool) error {
	if err := writeJSON(stdout, path, sess); err != nil {
		return err
	}
	tables := stdout
	if path == "" || path == "-" {
		tables = stderr
	}
	if sess.Discovery != nil {
		fmt.Fprintln(tables, discoveryTable(sess.Discovery))
	}
	if withRecords && len(sess.Records) > 0 {
		fmt.Fprintln(tables, sessionRecordsTable(sess))
	}
	fmt.Fprintln(tables, sessionSummaryTable(sess))
	return nil
}

// loadSamples reads calibration samples from a saved session or a JSON
// array of scores.
func loadSamples(path string) ([]calibrate.Sample, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read %s", path)
	}

	var scores []float64
	if err := json.Unmarshal(data, &scores); err == nil {
		samples := make([]calibrate.Sample, len(scores))
		for i, s := range scores {
			samples[i] = calibrate.Sample{Score: s}
		}
		return samples, nil
	}

	var sess pipeline.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, eris.Wrapf(err, "decode %s", path)
	}
	samples := make([]calibrate.Sample, len(sess.Records))
	for i, rec := range sess.Records {
		samples[i] = calibrate.Sample{Score: rec.Score.Total, Cost: recordSpent(rec)}
	}
	return samples, nil
}
