package main

import (
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-cli/internal/discovery"
	"github.com/sells-group/prospect-cli/internal/waterfall"
)

var (
	discoverTerm     string
	discoverLocation string
	discoverOutput   string
	discoverStages   []string
	discoverBudget   float64
	discoverTarget   int
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Search providers for businesses and enrich what is found",
	Long:  "Expands a search term into prioritized queries, searches the configured providers until the target count, the budget or the queue runs out, then resolves and enriches the results under the same budget.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		stages, err := waterfall.ParseStageSet(discoverStages)
		if err != nil {
			return err
		}
		applyBudget(discoverBudget)
		if discoverTarget > 0 {
			cfg.Discovery.TargetCount = discoverTarget
		}

		clients, err := discovery.ClientsFromConfig(cfg.Discovery, cfg.Providers, cfg.Pricing)
		if err != nil {
			return err
		}
		if len(clients) == 0 {
			return eris.New("discover: no search provider has an API key configured")
		}

		p, closeCache, err := openPipeline(ctx, clients)
		if err != nil {
			return err
		}
		defer closeCache()

		zap.L().Info("discover: starting",
			zap.String("term", discoverTerm),
			zap.String("location", discoverLocation),
			zap.Int("sources", len(clients)),
			zap.Int("target", cfg.Discovery.TargetCount),
			zap.Float64("budget", cfg.Budget.SessionCeiling),
		)

		sess, err := p.Discover(ctx, discoverTerm, discoverLocation, stages)
		if err != nil {
			return eris.Wrap(err, "discover session")
		}
		return printSession(cmd.OutOrStdout(), cmd.ErrOrStderr(), discoverOutput, sess, true)
	},
}

func init() {
	discoverCmd.Flags().StringVar(&discoverTerm, "term", "", "business type to search for (required)")
	discoverCmd.Flags().StringVar(&discoverLocation, "location", "", "city, region or \"city, ST\"")
	discoverCmd.Flags().StringVar(&discoverOutput, "out", "", "write session JSON to this file (default stdout)")
	discoverCmd.Flags().StringSliceVar(&discoverStages, "stages", nil, "comma-separated stages to allow (default all)")
	discoverCmd.Flags().Float64Var(&discoverBudget, "budget", 0, "session budget in USD shared by search and enrichment (default from config)")
	discoverCmd.Flags().IntVar(&discoverTarget, "target", 0, "stop after this many unique records (default from config)")
	_ = discoverCmd.MarkFlagRequired("term")
	rootCmd.AddCommand(discoverCmd)
}
