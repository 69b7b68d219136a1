package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/voxmetrics/sentinel/internal/portfolio"
	"github.com/voxmetrics/sentinel/internal/registry"
)

var portfolioCmd = &cobra.Command{
	Use:   "portfolio",
	Short: "Analyze the model portfolio and recommend tier changes",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		// Coverage from the most recent run; a cold start assumes full
		// coverage so recommendations reflect cost and reliability only.
		coverage := 1.0
		st, err := initStore(ctx)
		if err == nil {
			defer st.Close() //nolint:errcheck
			if runs, err := st.ListManifests(ctx, 1); err == nil && len(runs) > 0 {
				coverage = runs[0].Coverage
			}
		}

		analysis := portfolio.NewManager(portfolio.Config{
			CoverageTarget:    cfg.Portfolio.CoverageTarget,
			CostCeilingPer1K:  cfg.Portfolio.CostCeilingPer1K,
			PrimaryCostPer1K:  cfg.Portfolio.PrimaryCostPer1K,
			FallbackCostPer1K: cfg.Portfolio.FallbackCostPer1K,
		}).Analyze(registry.Discover(), coverage, nil)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(analysis)
	},
}

func init() {
	rootCmd.AddCommand(portfolioCmd)
}
