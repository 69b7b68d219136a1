package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/voxmetrics/sentinel/internal/catalog"
	"github.com/voxmetrics/sentinel/internal/drift"
	"github.com/voxmetrics/sentinel/internal/identity"
	"github.com/voxmetrics/sentinel/internal/manifest"
	"github.com/voxmetrics/sentinel/internal/mii"
	"github.com/voxmetrics/sentinel/internal/model"
	"github.com/voxmetrics/sentinel/internal/monitoring"
	"github.com/voxmetrics/sentinel/internal/normalize"
	"github.com/voxmetrics/sentinel/internal/portfolio"
	"github.com/voxmetrics/sentinel/internal/registry"
	"github.com/voxmetrics/sentinel/internal/resilience"
	"github.com/voxmetrics/sentinel/internal/runner"
	"github.com/voxmetrics/sentinel/internal/store"
)

var (
	crawlSubjects   []string
	crawlWindow     time.Duration
	crawlPromptFile string
	crawlResume     string
	crawlGapFill    bool
)

var crawlCmd = &cobra.Command{
	Use:   "crawl",
	Short: "Run one crawl window across the model portfolio",
	Long:  "Queries every (subject, prompt, model) combo, normalizes and persists answers, scores drift against prior answers, and closes the run manifest with a coverage tier.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if len(crawlSubjects) == 0 && crawlResume == "" {
			return eris.New("at least one --subject is required")
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		cat, err := loadCatalog(crawlPromptFile)
		if err != nil {
			return err
		}
		prompts := cat.List()

		clients := runner.BuildClients(cfg.Providers, cfg.Keys)
		models := clients.Models()
		if len(models) == 0 {
			return eris.New("no provider clients configured (check providers and API keys)")
		}

		mgr, err := manifest.NewManager(manifest.Config{
			MinFloor:       cfg.Manifest.MinFloor,
			TargetCoverage: cfg.Manifest.TargetCoverage,
			MaxRetries:     cfg.Manifest.MaxRetries,
		})
		if err != nil {
			return eris.Wrap(err, "manifest manager")
		}

		var sink drift.AlertSink = monitoring.NopSink{}
		if cfg.Monitoring.WebhookURL != "" {
			webhook := monitoring.NewWebhookSink(cfg.Monitoring)
			defer webhook.Close()
			sink = webhook
		}
		det, err := drift.NewDetector(drift.Config{
			DriftThreshold: cfg.Drift.DriftThreshold,
			DecayThreshold: cfg.Drift.DecayThreshold,
		}, sink)
		if err != nil {
			return eris.Wrap(err, "drift detector")
		}

		// Open a fresh manifest, or rehydrate one from the store.
		var man model.RunManifest
		var combos []model.Combo
		if crawlResume != "" {
			stored, err := st.GetManifest(ctx, crawlResume)
			if err != nil {
				return eris.Wrap(err, "resume run")
			}
			obs, err := st.GetObservations(ctx, crawlResume)
			if err != nil {
				return eris.Wrap(err, "resume observations")
			}
			if err := mgr.RestoreCheckpoint(model.Checkpoint{
				Manifest:     *stored,
				Observations: obs,
				Timestamp:    time.Now().UTC(),
			}); err != nil {
				return eris.Wrap(err, "restore checkpoint")
			}
			man = *stored
			combos = mgr.MissingCombos(man.RunID)
			zap.L().Info("run resumed",
				zap.String("run_id", man.RunID),
				zap.Int("missing_combos", len(combos)),
			)
		} else {
			now := time.Now().UTC()
			combos = manifest.ExpandCombos(crawlSubjects, prompts, models)
			man = mgr.CreateManifest(now.Add(-crawlWindow), now, combos)
		}
		runID := man.RunID

		// Warm drift baselines from the last persisted answers so the first
		// crawl after a restart still detects movement.
		for _, combo := range combos {
			prev, err := st.LatestAnswer(ctx, combo)
			if err != nil {
				zap.L().Warn("baseline load failed", zap.Error(err))
				continue
			}
			if prev != nil {
				det.Seed(combo, prev.Answer)
			}
		}

		engine := runner.NewEngine(clients, runner.Options{
			RequestTimeout: time.Duration(cfg.Runner.RequestTimeoutSecs) * time.Second,
			MaxRetries:     cfg.Runner.MaxRetries,
			BackoffBase:    time.Duration(cfg.Runner.BackoffBaseSecs * float64(time.Second)),
			BackoffCap:     time.Duration(cfg.Runner.BackoffCapSecs * float64(time.Second)),
			MaxConcurrent:  cfg.Runner.MaxConcurrent,
			ProviderRPS:    cfg.Runner.ProviderRPS,
			Breakers:       resilience.NewProviderBreakers(resilience.DefaultBreakerConfig()),
			OnStart: func(combo model.Combo) {
				if _, err := mgr.UpdateObservation(runID, combo, model.ObservationRunning, manifest.UpdateParams{}); err != nil {
					zap.L().Warn("observation start update failed", zap.Error(err))
				}
			},
			OnResult: func(row model.ResponseRaw) {
				combo := model.Combo{Subject: row.Subject, PromptID: row.PromptID, Model: row.Model}
				status, params := observationFor(row)
				if _, err := mgr.UpdateObservation(runID, combo, status, params); err != nil {
					zap.L().Warn("observation result update failed", zap.Error(err))
				}
			},
		})

		crawl := &crawlRun{st: st, det: det, cat: cat, runID: runID}

		// A fresh run crawls the full cross product in one batch so every
		// row shares the same minute bucket; a resume hits only the gaps.
		var rows []model.ResponseRaw
		if crawlResume == "" {
			result, err := engine.RunBatch(ctx, crawlSubjects, prompts, models)
			if err != nil {
				return eris.Wrap(err, "run batch")
			}
			rows = result.Rows
		} else {
			rows, err = runCombos(ctx, engine, cat, combos)
			if err != nil {
				return err
			}
		}
		if err := crawl.persist(ctx, rows); err != nil {
			return err
		}
		if err := checkpoint(ctx, st, mgr, runID); err != nil {
			return err
		}

		// One gap-fill pass over still-missing combos before closing.
		if crawlGapFill && ctx.Err() == nil {
			if missing := mgr.MissingCombos(runID); len(missing) > 0 {
				zap.L().Info("gap-fill pass", zap.Int("combos", len(missing)))
				rows, err := runCombos(ctx, engine, cat, missing)
				if err != nil {
					return err
				}
				if err := crawl.persist(ctx, rows); err != nil {
					return err
				}
			}
		}

		closed, err := mgr.CloseManifest(runID)
		if err != nil {
			return eris.Wrap(err, "close manifest")
		}
		if err := checkpoint(ctx, st, mgr, runID); err != nil {
			return err
		}
		for _, ev := range mgr.Events() {
			zap.L().Info("run event", zap.String("type", ev.Type), zap.Any("payload", ev.Payload))
		}

		if closed.Tier == model.TierInvalid {
			return eris.Errorf("run %s closed invalid: coverage %.2f below floor %.2f",
				runID, closed.Coverage, closed.MinFloor)
		}

		report := crawl.miiReport(closed)
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	},
}

func init() {
	crawlCmd.Flags().StringSliceVar(&crawlSubjects, "subject", nil, "subject domain to crawl (repeatable)")
	crawlCmd.Flags().DurationVar(&crawlWindow, "window", time.Hour, "crawl window length")
	crawlCmd.Flags().StringVar(&crawlPromptFile, "prompts", "", "prompt catalog YAML (default: built-in prompt set)")
	crawlCmd.Flags().StringVar(&crawlResume, "resume", "", "resume an interrupted run by ID")
	crawlCmd.Flags().BoolVar(&crawlGapFill, "gap-fill", true, "retry missing combos once before closing")
	rootCmd.AddCommand(crawlCmd)
}

// observationFor maps a terminal response row onto its observation update.
func observationFor(row model.ResponseRaw) (model.ObservationStatus, manifest.UpdateParams) {
	switch row.Status {
	case model.ResponseSuccess:
		return model.ObservationSuccess, manifest.UpdateParams{ResponseID: row.ID, LatencyMS: row.LatencyMS}
	case model.ResponseSkipped:
		return model.ObservationSkipped, manifest.UpdateParams{Error: "model not available"}
	case model.ResponseTimeout:
		return model.ObservationFailed, manifest.UpdateParams{Error: "timeout", LatencyMS: row.LatencyMS}
	default:
		return model.ObservationFailed, manifest.UpdateParams{Error: "provider call failed", LatencyMS: row.LatencyMS}
	}
}

// runCombos executes a set of combos, batching per combo so gap-fill and
// resume paths hit only the work that is actually missing.
func runCombos(ctx context.Context, engine *runner.Engine, cat *catalog.Catalog, combos []model.Combo) ([]model.ResponseRaw, error) {
	var rows []model.ResponseRaw
	for _, combo := range combos {
		if ctx.Err() != nil {
			break
		}
		prompt, ok := cat.Get(combo.PromptID)
		if !ok {
			continue
		}
		result, err := engine.RunBatch(ctx, []string{combo.Subject}, []model.Prompt{prompt}, []string{combo.Model})
		if err != nil {
			return nil, eris.Wrap(err, "run batch")
		}
		rows = append(rows, result.Rows...)
	}
	return rows, nil
}

// crawlRun carries the per-run persistence pipeline and accumulates the
// figures the MII report needs.
type crawlRun struct {
	st    store.Store
	det   *drift.Detector
	cat   *catalog.Catalog
	runID string

	driftSignals []float64
	validByModel map[string]int
	totalByModel map[string]int
	latencySum   int
	latencyCount int
	failures     int
	total        int
}

// persist writes one batch of raw rows through normalization, provenance,
// and drift scoring. Duplicate rows are skipped by the store.
func (c *crawlRun) persist(ctx context.Context, rows []model.ResponseRaw) error {
	if len(rows) == 0 {
		return nil
	}
	if c.validByModel == nil {
		c.validByModel = make(map[string]int)
		c.totalByModel = make(map[string]int)
	}

	inserted, err := c.st.SaveRaw(ctx, rows)
	if err != nil {
		return err
	}
	zap.L().Info("raw responses persisted",
		zap.Int("rows", len(rows)),
		zap.Int64("inserted", inserted),
		zap.Int64("duplicates", int64(len(rows))-inserted),
	)

	var normalized []model.ResponseNormalized
	var provenance []model.Provenance
	var scores []model.DriftScore
	now := time.Now().UTC()

	for _, row := range rows {
		c.total++
		c.totalByModel[row.Model]++
		if row.Status != model.ResponseSuccess {
			c.failures++
		}
		if row.LatencyMS > 0 {
			c.latencySum += row.LatencyMS
			c.latencyCount++
		}

		norm := normalize.Normalize(row)
		normalized = append(normalized, norm)
		if norm.Status == model.NormalizedValid {
			c.validByModel[row.Model]++
		}

		version := ""
		if p, ok := c.cat.Get(row.PromptID); ok {
			version = p.Version
		}
		checksum, err := identity.Checksum(norm)
		if err != nil {
			return eris.Wrapf(err, "checksum %s", norm.ID)
		}
		provenance = append(provenance, model.Provenance{
			ResponseID:    row.ID,
			RunID:         c.runID,
			Subject:       row.Subject,
			PromptID:      row.PromptID,
			PromptVersion: version,
			Model:         row.Model,
			Checksum:      checksum,
			CreatedAt:     now,
		})

		score := c.det.Score(norm)
		scores = append(scores, score)
		c.driftSignals = append(c.driftSignals, score.Drift)
	}

	if _, err := c.st.SaveNormalized(ctx, normalized); err != nil {
		return err
	}
	if _, err := c.st.SaveProvenance(ctx, provenance); err != nil {
		return err
	}
	return c.st.SaveDriftScores(ctx, scores)
}

// contractScores is the per-model fraction of responses that normalized to
// a valid contract.
func (c *crawlRun) contractScores() map[string]float64 {
	out := make(map[string]float64, len(c.totalByModel))
	for name, total := range c.totalByModel {
		if total > 0 {
			out[name] = float64(c.validByModel[name]) / float64(total)
		}
	}
	return out
}

// miiReport computes the health report for a closed run.
func (c *crawlRun) miiReport(closed model.RunManifest) mii.Report {
	stats := mii.RunStats{
		ActualCoverage:    closed.Coverage,
		TargetCoverage:    closed.TargetCoverage,
		Tier:              closed.Tier,
		TotalExpected:     closed.TargetCombos,
		TotalObserved:     closed.ObservedOK + closed.ObservedFail,
		CheckpointSuccess: true,
	}
	if c.total > 0 {
		stats.ErrorRate = float64(c.failures) / float64(c.total)
	}
	if c.latencyCount > 0 {
		stats.AvgLatencyMS = float64(c.latencySum) / float64(c.latencyCount)
	}

	contracts := c.contractScores()
	analysis := portfolio.NewManager(portfolio.Config{
		CoverageTarget:    cfg.Portfolio.CoverageTarget,
		CostCeilingPer1K:  cfg.Portfolio.CostCeilingPer1K,
		PrimaryCostPer1K:  cfg.Portfolio.PrimaryCostPer1K,
		FallbackCostPer1K: cfg.Portfolio.FallbackCostPer1K,
	}).Analyze(registry.Discover(), closed.Coverage, contracts)

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

	return calc.Calculate(stats, &mii.PortfolioMetrics{
		AvgPerformanceScore: analysis.Metrics.AvgPerformanceScore,
		AvgReliability:      analysis.Metrics.AvgReliability,
	}, c.driftSignals, contracts)
}

// checkpoint snapshots the run into the store.
func checkpoint(ctx context.Context, st store.Store, mgr *manifest.Manager, runID string) error {
	cp, err := mgr.Checkpoint(runID)
	if err != nil {
		return eris.Wrap(err, "checkpoint")
	}
	if err := st.SaveManifest(ctx, cp.Manifest); err != nil {
		return err
	}
	return st.SaveObservations(ctx, cp.Observations)
}
