package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/voxmetrics/sentinel/internal/mii"
	"github.com/voxmetrics/sentinel/internal/model"
	"github.com/voxmetrics/sentinel/internal/portfolio"
	"github.com/voxmetrics/sentinel/internal/registry"
	"github.com/voxmetrics/sentinel/internal/store"
)

var miiRunID string

var miiCmd = &cobra.Command{
	Use:   "mii",
	Short: "Compute the monitoring integrity index for a run",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		report, err := reportForRun(ctx, st, miiRunID)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	},
}

func init() {
	miiCmd.Flags().StringVar(&miiRunID, "run", "", "run ID (default: most recent run)")
	rootCmd.AddCommand(miiCmd)
}

// reportForRun computes an MII report from a persisted run. Drift signals
// come from the stored score history; portfolio metrics from the current
// registry.
func reportForRun(ctx context.Context, st store.Store, runID string) (*mii.Report, error) {
	var man *model.RunManifest
	if runID != "" {
		m, err := st.GetManifest(ctx, runID)
		if err != nil {
			return nil, err
		}
		man = m
	} else {
		runs, err := st.ListManifests(ctx, 1)
		if err != nil {
			return nil, err
		}
		if len(runs) == 0 {
			return nil, eris.New("no runs recorded")
		}
		man = &runs[0]
	}

	if man.Tier == model.TierInvalid {
		return nil, eris.Errorf("run %s closed invalid; no index is computed for invalid runs", man.RunID)
	}

	obs, err := st.GetObservations(ctx, man.RunID)
	if err != nil {
		return nil, err
	}
	var failures, latencySum, latencyCount int
	for _, o := range obs {
		if o.Status == model.ObservationFailed {
			failures++
		}
		if o.LatencyMS > 0 {
			latencySum += o.LatencyMS
			latencyCount++
		}
	}

	stats := mii.RunStats{
		ActualCoverage:    man.Coverage,
		TargetCoverage:    man.TargetCoverage,
		Tier:              man.Tier,
		TotalExpected:     man.TargetCombos,
		TotalObserved:     man.ObservedOK + man.ObservedFail,
		CheckpointSuccess: true,
	}
	if len(obs) > 0 {
		stats.ErrorRate = float64(failures) / float64(len(obs))
	}
	if latencyCount > 0 {
		stats.AvgLatencyMS = float64(latencySum) / float64(latencyCount)
	}

	scores, err := st.ListDriftScores(ctx, 200)
	if err != nil {
		return nil, err
	}
	driftSignals := make([]float64, 0, len(scores))
	for _, s := range scores {
		driftSignals = append(driftSignals, s.Drift)
	}

	analysis := portfolio.NewManager(portfolio.Config{
		CoverageTarget:    cfg.Portfolio.CoverageTarget,
		CostCeilingPer1K:  cfg.Portfolio.CostCeilingPer1K,
		PrimaryCostPer1K:  cfg.Portfolio.PrimaryCostPer1K,
		FallbackCostPer1K: cfg.Portfolio.FallbackCostPer1K,
	}).Analyze(registry.Discover(), man.Coverage, nil)

	calc, err := mii.NewCalculator(mii.Weights{
		Coverage:    cfg.MII.CoverageWeight,
		Quality:     cfg.MII.QualityWeight,
		Consistency: cfg.MII.ConsistencyWeight,
		Reliability: cfg.MII.ReliabilityWeight,
	})
	if err != nil {
		zap.L().Warn("invalid mii weights, using defaults", zap.Error(err))
		calc, _ = mii.NewCalculator(mii.DefaultWeights())
	}

	report := calc.Calculate(stats, &mii.PortfolioMetrics{
		AvgPerformanceScore: analysis.Metrics.AvgPerformanceScore,
		AvgReliability:      analysis.Metrics.AvgReliability,
	}, driftSignals, nil)
	return &report, nil
}
