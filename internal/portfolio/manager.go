// Package portfolio tiers provider models, projects cost, and recommends
// promote/demote actions to keep coverage on target without overspending.
package portfolio

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/voxmetrics/sentinel/internal/model"
)

// ModelTier classifies a model's role in the portfolio.
type ModelTier string

const (
	TierPrimary   ModelTier = "primary"
	TierSecondary ModelTier = "secondary"
	TierFallback  ModelTier = "fallback"
)

// Action is a recommended portfolio adjustment.
type Action string

const (
	ActionPromote Action = "promote"
	ActionDemote  Action = "demote"
	ActionRemove  Action = "remove"
)

// Profile is the derived view of one (provider, model) pair. Recomputed on
// every analysis pass, never persisted as ground truth.
type Profile struct {
	Provider         string    `json:"provider"`
	Model            string    `json:"model"`
	Tier             ModelTier `json:"tier"`
	Weight           float64   `json:"weight"`
	PerformanceScore float64   `json:"performance_score"`
	CostPer1K        float64   `json:"cost_per_1k"`
	Reliability      float64   `json:"reliability"`
	UseCases         []string  `json:"use_cases"`
}

// Key returns the canonical provider/model identifier.
func (p Profile) Key() string {
	return p.Provider + "/" + p.Model
}

// Recommendation is one suggested portfolio change with its expected impact.
type Recommendation struct {
	Action     Action  `json:"action"`
	Provider   string  `json:"provider"`
	Model      string  `json:"model"`
	Reason     string  `json:"reason"`
	ImpactMII  float64 `json:"impact_mii"`
	ImpactCost float64 `json:"impact_cost"`
}

// Metrics are the portfolio-level aggregates consumed by MII.
type Metrics struct {
	TotalModels         int               `json:"total_models"`
	TierCounts          map[ModelTier]int `json:"tier_distribution"`
	WeightedCostPer1K   float64           `json:"weighted_cost_per_1k"`
	AvgPerformanceScore float64           `json:"avg_performance_score"`
	AvgReliability      float64           `json:"avg_reliability"`
	Coverage            float64           `json:"coverage"`
	MIIContribution     float64           `json:"mii_contribution"`
}

// Analysis is the full output of one portfolio pass.
type Analysis struct {
	Timestamp        time.Time             `json:"timestamp"`
	PortfolioSize    int                   `json:"portfolio_size"`
	Metrics          Metrics               `json:"metrics"`
	Recommendations  []Recommendation      `json:"recommendations"`
	TierDistribution map[ModelTier]float64 `json:"tier_distribution_pct"`
	CostProjection   map[string]float64    `json:"cost_projection"`
}

// Config carries the tunable tier and cost boundaries.
type Config struct {
	// CoverageTarget is the coverage below which promotions are suggested.
	CoverageTarget float64
	// CostCeilingPer1K triggers demotion suggestions when the weighted
	// portfolio cost exceeds it.
	CostCeilingPer1K float64
	// PrimaryCostPer1K is the highest per-1k cost eligible for primary tier.
	PrimaryCostPer1K float64
	// FallbackCostPer1K is the per-1k cost at or below which a model is
	// fallback material.
	FallbackCostPer1K float64
}

// DefaultConfig mirrors the operational tuning the portfolio runs with.
func DefaultConfig() Config {
	return Config{
		CoverageTarget:    0.95,
		CostCeilingPer1K:  0.003,
		PrimaryCostPer1K:  0.005,
		FallbackCostPer1K: 0.0005,
	}
}

// Manager analyzes and adjusts the model portfolio. Safe for concurrent use.
type Manager struct {
	cfg Config

	mu       sync.Mutex
	profiles map[string]*Profile

	nowFunc func() time.Time
}

// NewManager returns a manager with zero-valued config fields defaulted.
func NewManager(cfg Config) *Manager {
	def := DefaultConfig()
	if cfg.CoverageTarget <= 0 {
		cfg.CoverageTarget = def.CoverageTarget
	}
	if cfg.CostCeilingPer1K <= 0 {
		cfg.CostCeilingPer1K = def.CostCeilingPer1K
	}
	if cfg.PrimaryCostPer1K <= 0 {
		cfg.PrimaryCostPer1K = def.PrimaryCostPer1K
	}
	if cfg.FallbackCostPer1K <= 0 {
		cfg.FallbackCostPer1K = def.FallbackCostPer1K
	}
	return &Manager{
		cfg:      cfg,
		profiles: make(map[string]*Profile),
		nowFunc:  time.Now,
	}
}

// Analyze rebuilds the portfolio from active and trial registry entries,
// computes aggregate metrics against the latest run coverage, and emits up
// to five prioritized recommendations. contractScores is keyed by
// provider/model and may be nil.
func (m *Manager) Analyze(registry []model.RegistryEntry, coverage float64, contractScores map[string]float64) Analysis {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.rebuild(registry, contractScores)
	metrics := m.metrics(coverage)
	recs := m.recommend(metrics)

	zap.L().Info("portfolio analyzed",
		zap.Int("models", metrics.TotalModels),
		zap.Float64("weighted_cost_per_1k", metrics.WeightedCostPer1K),
		zap.Int("recommendations", len(recs)),
	)

	return Analysis{
		Timestamp:        m.nowFunc().UTC(),
		PortfolioSize:    len(m.profiles),
		Metrics:          metrics,
		Recommendations:  recs,
		TierDistribution: m.tierDistribution(),
		CostProjection:   m.projectCosts(),
	}
}

// Profiles returns the current portfolio sorted by key.
func (m *Manager) Profiles() []Profile {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Profile, 0, len(m.profiles))
	for _, p := range m.profiles {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// ApplyRecommendation mutates tier and weight for promote/demote, or drops
// the model for remove. Unknown keys are reported, not an error.
func (m *Manager) ApplyRecommendation(rec Recommendation) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := rec.Provider + "/" + rec.Model
	profile, ok := m.profiles[key]
	if !ok {
		return false
	}

	switch rec.Action {
	case ActionPromote:
		profile.Tier = TierPrimary
		profile.Weight = math.Min(1, profile.Weight*1.5)
	case ActionDemote:
		profile.Tier = TierSecondary
		profile.Weight = math.Max(0.1, profile.Weight*0.7)
	case ActionRemove:
		delete(m.profiles, key)
	default:
		return false
	}

	zap.L().Info("portfolio recommendation applied",
		zap.String("action", string(rec.Action)),
		zap.String("model", key),
	)
	return true
}

// rebuild replaces the portfolio from registry state. Callers hold m.mu.
func (m *Manager) rebuild(registry []model.RegistryEntry, contractScores map[string]float64) {
	m.profiles = make(map[string]*Profile, len(registry))

	for _, entry := range registry {
		if entry.Status != model.RegistryActive && entry.Status != model.RegistryTrial {
			continue
		}

		reliability, ok := contractScores[entry.Key()]
		if !ok {
			reliability = 0.5
		}

		tier := m.assignTier(entry)
		perf := performanceScore(entry.Capabilities, reliability)

		m.profiles[entry.Key()] = &Profile{
			Provider:         entry.Provider,
			Model:            entry.Model,
			Tier:             tier,
			Weight:           tierWeight(tier, perf),
			PerformanceScore: perf,
			CostPer1K:        entry.Capabilities.CostPer1KTokens,
			Reliability:      reliability,
			UseCases:         useCases(entry.Capabilities),
		}
	}
}

func (m *Manager) assignTier(entry model.RegistryEntry) ModelTier {
	caps := entry.Capabilities
	switch {
	case caps.Tools && caps.MaxContext >= 100000 && caps.CostPer1KTokens <= m.cfg.PrimaryCostPer1K:
		return TierPrimary
	case caps.CostPer1KTokens <= m.cfg.FallbackCostPer1K:
		return TierFallback
	default:
		return TierSecondary
	}
}

// performanceScore blends reliability, capability, and cost into 0-100.
func performanceScore(caps model.Capabilities, reliability float64) float64 {
	capScore := 0.0
	if caps.Tools {
		capScore += 0.3
	}
	if caps.SearchAugmented {
		capScore += 0.2
	}
	if caps.MaxContext >= 100000 {
		capScore += 0.3
	}
	if caps.MaxContext >= 32000 {
		capScore += 0.2
	}

	var costScore float64
	switch cost := caps.CostPer1KTokens; {
	case cost <= 0.0001:
		costScore = 1.0
	case cost <= 0.001:
		costScore = 0.8
	case cost <= 0.005:
		costScore = 0.6
	case cost <= 0.01:
		costScore = 0.4
	default:
		costScore = 0.2
	}

	score := (0.4*reliability + 0.3*capScore + 0.3*costScore) * 100
	return math.Round(score*10) / 10
}

func tierWeight(tier ModelTier, perf float64) float64 {
	base := 0.1
	switch tier {
	case TierPrimary:
		base = 0.6
	case TierSecondary:
		base = 0.3
	}

	switch {
	case perf >= 80:
		return math.Min(1, base*1.2)
	case perf >= 60:
		return base
	default:
		return math.Max(0.05, base*0.8)
	}
}

func useCases(caps model.Capabilities) []string {
	cases := []string{"summarization"}
	if caps.Tools {
		cases = append(cases, "extraction", "function_calling")
	}
	if caps.SearchAugmented {
		cases = append(cases, "research", "fact_checking")
	}
	if caps.MaxContext >= 100000 {
		cases = append(cases, "deep_analysis", "document_processing")
	}
	if caps.CostPer1KTokens <= 0.001 {
		cases = append(cases, "bulk_processing")
	}
	return cases
}

// metrics computes weighted aggregates. Callers hold m.mu.
func (m *Manager) metrics(coverage float64) Metrics {
	counts := map[ModelTier]int{TierPrimary: 0, TierSecondary: 0, TierFallback: 0}
	var weightedCost, perfSum, reliabilitySum, weightSum, contribution float64

	for _, p := range m.profiles {
		counts[p.Tier]++
		weightedCost += p.CostPer1K * p.Weight
		perfSum += p.PerformanceScore * p.Weight
		reliabilitySum += p.Reliability * p.Weight
		weightSum += p.Weight
		contribution += (p.PerformanceScore / 100) * p.Reliability * p.Weight
	}

	metrics := Metrics{
		TotalModels:       len(m.profiles),
		TierCounts:        counts,
		WeightedCostPer1K: math.Round(weightedCost*10000) / 10000,
		Coverage:          coverage,
		MIIContribution:   math.Round(contribution*1000) / 10,
	}
	if weightSum > 0 {
		metrics.AvgPerformanceScore = math.Round(perfSum/weightSum*10) / 10
		metrics.AvgReliability = math.Round(reliabilitySum/weightSum*1000) / 1000
	}
	return metrics
}

// recommend emits up to five ranked adjustments. Callers hold m.mu.
func (m *Manager) recommend(metrics Metrics) []Recommendation {
	var recs []Recommendation

	if metrics.Coverage < m.cfg.CoverageTarget {
		for _, p := range m.sortedProfiles() {
			if p.Tier == TierSecondary && p.PerformanceScore >= 70 {
				recs = append(recs, Recommendation{
					Action:     ActionPromote,
					Provider:   p.Provider,
					Model:      p.Model,
					Reason:     fmt.Sprintf("performance score %.1f warrants promotion", p.PerformanceScore),
					ImpactMII:  2.5,
					ImpactCost: p.CostPer1K * 100,
				})
			}
		}
	}

	if metrics.WeightedCostPer1K > m.cfg.CostCeilingPer1K {
		for _, p := range m.sortedProfiles() {
			if p.CostPer1K > m.cfg.PrimaryCostPer1K && p.Tier != TierFallback {
				recs = append(recs, Recommendation{
					Action:     ActionDemote,
					Provider:   p.Provider,
					Model:      p.Model,
					Reason:     fmt.Sprintf("high cost $%.4f/1k tokens", p.CostPer1K),
					ImpactMII:  -1.0,
					ImpactCost: -p.CostPer1K * 100,
				})
			}
		}
	}

	for _, p := range m.sortedProfiles() {
		if p.Reliability < 0.5 && p.Tier == TierPrimary {
			recs = append(recs, Recommendation{
				Action:    ActionDemote,
				Provider:  p.Provider,
				Model:     p.Model,
				Reason:    fmt.Sprintf("low reliability %.0f%%", p.Reliability*100),
				ImpactMII: -3.0,
			})
		}
	}

	if len(recs) > 5 {
		recs = recs[:5]
	}
	return recs
}

func (m *Manager) sortedProfiles() []*Profile {
	out := make([]*Profile, 0, len(m.profiles))
	for _, p := range m.profiles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

func (m *Manager) tierDistribution() map[ModelTier]float64 {
	dist := map[ModelTier]float64{TierPrimary: 0, TierSecondary: 0, TierFallback: 0}
	total := len(m.profiles)
	if total == 0 {
		return dist
	}
	for _, p := range m.profiles {
		dist[p.Tier]++
	}
	for tier, count := range dist {
		dist[tier] = math.Round(count/float64(total)*1000) / 10
	}
	return dist
}

func (m *Manager) projectCosts() map[string]float64 {
	base := 0.0
	for _, p := range m.profiles {
		base += p.CostPer1K * p.Weight
	}
	return map[string]float64{
		"1k_tokens":       math.Round(base*10000) / 10000,
		"100k_tokens":     math.Round(base*100*100) / 100,
		"1m_tokens":       math.Round(base*1000*100) / 100,
		"hourly_estimate": math.Round(base*500*100) / 100,
	}
}
