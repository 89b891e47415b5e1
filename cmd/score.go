package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-cli/internal/pipeline"
)

var (
	scoreInput  string
	scoreOutput string
)

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Compute free quality scores without calling paid providers",
	RunE: func(cmd *cobra.Command, args []string) error {
		items, err := pipeline.ReadItems(scoreInput)
		if err != nil {
			return err
		}

		p, err := pipeline.New(cfg, pipeline.Deps{})
		if err != nil {
			return err
		}
		sess := p.Score(items)

		zap.L().Info("score: complete",
			zap.Int("items", len(items)),
			zap.Int("entities", sess.Summary.Entities),
			zap.Float64("average_score", sess.Summary.AverageScore),
		)
		return printSession(cmd.OutOrStdout(), cmd.ErrOrStderr(), scoreOutput, sess, true)
	},
}

func init() {
	scoreCmd.Flags().StringVar(&scoreInput, "input", "", "path to input file: .csv, .json or .jsonl (required)")
	scoreCmd.Flags().StringVar(&scoreOutput, "out", "", "write session JSON to this file (default stdout)")
	_ = scoreCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(scoreCmd)
}
