package main

import (
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-cli/internal/pipeline"
	"github.com/sells-group/prospect-cli/internal/waterfall"
)

var (
	runInput   string
	runOutput  string
	runStages  []string
	runBudget  float64
	runRecords bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Resolve, score and enrich provider records from a file",
	Long:  "Reads raw provider items (CSV, JSON array or JSON lines), resolves them into entities and runs every entity through the enrichment waterfall under one session budget.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		stages, err := waterfall.ParseStageSet(runStages)
		if err != nil {
			return err
		}
		items, err := pipeline.ReadItems(runInput)
		if err != nil {
			return err
		}
		applyBudget(runBudget)

		p, closeCache, err := openPipeline(ctx, nil)
		if err != nil {
			return err
		}
		defer closeCache()

		zap.L().Info("run: starting",
			zap.String("input", runInput),
			zap.Int("items", len(items)),
			zap.Float64("budget", cfg.Budget.SessionCeiling),
		)

		sess, err := p.Run(ctx, items, stages)
		if err != nil {
			return eris.Wrap(err, "run session")
		}
		return printSession(cmd.OutOrStdout(), cmd.ErrOrStderr(), runOutput, sess, runRecords)
	},
}

func init() {
	runCmd.Flags().StringVar(&runInput, "input", "", "path to input file: .csv, .json or .jsonl (required)")
	runCmd.Flags().StringVar(&runOutput, "out", "", "write session JSON to this file (default stdout)")
	runCmd.Flags().StringSliceVar(&runStages, "stages", nil, "comma-separated stages to allow (default all)")
	runCmd.Flags().Float64Var(&runBudget, "budget", 0, "session budget in USD (default from config)")
	runCmd.Flags().BoolVar(&runRecords, "records", true, "print a per-entity table")
	_ = runCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(runCmd)
}
