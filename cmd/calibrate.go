package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/prospect-cli/internal/calibrate"
)

var (
	calibrateInput      string
	calibrateTargetRate float64
	calibrateJSON       bool
)

var calibrateCmd = &cobra.Command{
	Use:   "calibrate",
	Short: "Suggest a qualification threshold from a finished session",
	Long:  "Reads a session JSON written by run or discover (or a JSON array of scores) and suggests the score threshold that would qualify the target share of records. The suggestion is advisory.",
	RunE: func(cmd *cobra.Command, args []string) error {
		samples, err := loadSamples(calibrateInput)
		if err != nil {
			return err
		}
		if len(samples) == 0 {
			return eris.Errorf("calibrate: %s has no scored records", calibrateInput)
		}

		rate := cfg.Calibrate.TargetRate
		if calibrateTargetRate > 0 {
			rate = calibrateTargetRate
		}
		if rate <= 0 || rate > 100 {
			return eris.Errorf("calibrate: target rate %.1f must be in (0, 100]", rate)
		}

		res := calibrate.CalibrateBatch(samples, rate, cfg.Calibrate)
		if calibrateJSON {
			return writeJSON(cmd.OutOrStdout(), "", res)
		}
		fmt.Fprintln(cmd.OutOrStdout(), calibrationTable(res))
		return nil
	},
}

func init() {
	calibrateCmd.Flags().StringVar(&calibrateInput, "input", "", "session JSON or JSON array of scores (required)")
	calibrateCmd.Flags().Float64Var(&calibrateTargetRate, "target-rate", 0, "percent of records to qualify (default from config)")
	calibrateCmd.Flags().BoolVar(&calibrateJSON, "json", false, "print the result as JSON")
	_ = calibrateCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(calibrateCmd)
}
