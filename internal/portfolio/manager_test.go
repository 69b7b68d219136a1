package portfolio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/voxmetrics/sentinel/internal/model"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func sampleRegistry() []model.RegistryEntry {
	return []model.RegistryEntry{
		{
			Provider: "anthropic",
			Model:    "claude-sonnet-4-5",
			Status:   model.RegistryActive,
			Capabilities: model.Capabilities{
				Tools:           true,
				MaxContext:      200000,
				CostPer1KTokens: 0.003,
			},
		},
		{
			Provider: "openai",
			Model:    "gpt-5.2",
			Status:   model.RegistryActive,
			Capabilities: model.Capabilities{
				Tools:           true,
				MaxContext:      128000,
				CostPer1KTokens: 0.005,
			},
		},
		{
			Provider: "deepseek",
			Model:    "deepseek-chat",
			Status:   model.RegistryActive,
			Capabilities: model.Capabilities{
				MaxContext:      32768,
				CostPer1KTokens: 0.0001,
			},
		},
		{
			Provider: "mistral",
			Model:    "mistral-large-legacy",
			Status:   model.RegistryDeprecated,
			Capabilities: model.Capabilities{
				CostPer1KTokens: 0.008,
			},
		},
	}
}

func TestAnalyzeBuildsPortfolioFromActiveEntries(t *testing.T) {
	m := NewManager(DefaultConfig())
	analysis := m.Analyze(sampleRegistry(), 0.97, nil)

	// The deprecated entry must not appear.
	assert.Equal(t, 3, analysis.PortfolioSize)

	profiles := m.Profiles()
	byKey := make(map[string]Profile, len(profiles))
	for _, p := range profiles {
		byKey[p.Key()] = p
	}
	assert.NotContains(t, byKey, "mistral/mistral-large-legacy")

	assert.Equal(t, TierPrimary, byKey["anthropic/claude-sonnet-4-5"].Tier)
	assert.Equal(t, TierPrimary, byKey["openai/gpt-5.2"].Tier)
	assert.Equal(t, TierFallback, byKey["deepseek/deepseek-chat"].Tier)
}

func TestTierAssignmentBoundaries(t *testing.T) {
	m := NewManager(DefaultConfig())

	cases := []struct {
		name string
		caps model.Capabilities
		want ModelTier
	}{
		{"tools plus context plus affordable", model.Capabilities{Tools: true, MaxContext: 150000, CostPer1KTokens: 0.004}, TierPrimary},
		{"tools but small context", model.Capabilities{Tools: true, MaxContext: 32000, CostPer1KTokens: 0.004}, TierSecondary},
		{"capable but too expensive for primary", model.Capabilities{Tools: true, MaxContext: 150000, CostPer1KTokens: 0.009}, TierSecondary},
		{"cheap basic model", model.Capabilities{MaxContext: 16000, CostPer1KTokens: 0.0003}, TierFallback},
		{"mid cost no tools", model.Capabilities{MaxContext: 64000, CostPer1KTokens: 0.002}, TierSecondary},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			entry := model.RegistryEntry{Provider: "p", Model: "m", Capabilities: tc.caps}
			assert.Equal(t, tc.want, m.assignTier(entry))
		})
	}
}

func TestPerformanceScoreBlend(t *testing.T) {
	caps := model.Capabilities{
		Tools:           true,
		SearchAugmented: true,
		MaxContext:      200000,
		CostPer1KTokens: 0.003,
	}
	// reliability 0.9: 0.4*0.9 + 0.3*(0.3+0.2+0.3+0.2) + 0.3*0.6 = 0.84
	assert.InDelta(t, 84.0, performanceScore(caps, 0.9), 1e-9)

	bare := model.Capabilities{MaxContext: 8000, CostPer1KTokens: 0.02}
	// reliability 0.5: 0.4*0.5 + 0 + 0.3*0.2 = 0.26
	assert.InDelta(t, 26.0, performanceScore(bare, 0.5), 1e-9)
}

func TestUseCaseInference(t *testing.T) {
	caps := model.Capabilities{
		Tools:           true,
		SearchAugmented: true,
		MaxContext:      128000,
		CostPer1KTokens: 0.0005,
	}
	got := useCases(caps)
	assert.Contains(t, got, "summarization")
	assert.Contains(t, got, "function_calling")
	assert.Contains(t, got, "fact_checking")
	assert.Contains(t, got, "deep_analysis")
	assert.Contains(t, got, "bulk_processing")

	basic := useCases(model.Capabilities{MaxContext: 8000, CostPer1KTokens: 0.01})
	assert.Equal(t, []string{"summarization"}, basic)
}

func TestLowCoveragePromotesStrongSecondary(t *testing.T) {
	m := NewManager(DefaultConfig())
	registry := []model.RegistryEntry{
		{
			Provider: "groq",
			Model:    "llama-4-70b",
			Status:   model.RegistryActive,
			Capabilities: model.Capabilities{
				Tools:           true,
				SearchAugmented: true,
				MaxContext:      64000,
				CostPer1KTokens: 0.001,
			},
		},
	}
	scores := map[string]float64{"groq/llama-4-70b": 0.95}

	analysis := m.Analyze(registry, 0.80, scores)
	require.NotEmpty(t, analysis.Recommendations)
	rec := analysis.Recommendations[0]
	assert.Equal(t, ActionPromote, rec.Action)
	assert.Equal(t, "groq", rec.Provider)
	assert.Positive(t, rec.ImpactMII)
}

func TestHighCostTriggersDemotion(t *testing.T) {
	m := NewManager(DefaultConfig())
	registry := []model.RegistryEntry{
		{
			Provider: "openai",
			Model:    "gpt-5.2-pro",
			Status:   model.RegistryActive,
			Capabilities: model.Capabilities{
				Tools:           true,
				MaxContext:      200000,
				CostPer1KTokens: 0.012,
			},
		},
	}

	analysis := m.Analyze(registry, 0.97, map[string]float64{"openai/gpt-5.2-pro": 0.9})
	require.NotEmpty(t, analysis.Recommendations)
	assert.Equal(t, ActionDemote, analysis.Recommendations[0].Action)
	assert.Negative(t, analysis.Recommendations[0].ImpactCost)
}

func TestUnreliablePrimaryDemoted(t *testing.T) {
	m := NewManager(DefaultConfig())
	registry := []model.RegistryEntry{
		{
			Provider: "xai",
			Model:    "grok-5",
			Status:   model.RegistryActive,
			Capabilities: model.Capabilities{
				Tools:           true,
				MaxContext:      128000,
				CostPer1KTokens: 0.002,
			},
		},
	}

	analysis := m.Analyze(registry, 0.97, map[string]float64{"xai/grok-5": 0.3})
	require.NotEmpty(t, analysis.Recommendations)
	rec := analysis.Recommendations[0]
	assert.Equal(t, ActionDemote, rec.Action)
	assert.Equal(t, -3.0, rec.ImpactMII)
}

func TestRecommendationsCappedAtFive(t *testing.T) {
	m := NewManager(DefaultConfig())
	var registry []model.RegistryEntry
	scores := make(map[string]float64)
	for _, name := range []string{"m1", "m2", "m3", "m4", "m5", "m6", "m7"} {
		registry = append(registry, model.RegistryEntry{
			Provider: "prov",
			Model:    name,
			Status:   model.RegistryActive,
			Capabilities: model.Capabilities{
				Tools:           true,
				SearchAugmented: true,
				MaxContext:      64000,
				CostPer1KTokens: 0.001,
			},
		})
		scores["prov/"+name] = 0.95
	}

	analysis := m.Analyze(registry, 0.5, scores)
	assert.Len(t, analysis.Recommendations, 5)
}

func TestApplyRecommendation(t *testing.T) {
	m := NewManager(DefaultConfig())
	registry := []model.RegistryEntry{
		{
			Provider: "groq",
			Model:    "llama-4-70b",
			Status:   model.RegistryActive,
			Capabilities: model.Capabilities{
				Tools:           true,
				MaxContext:      64000,
				CostPer1KTokens: 0.001,
			},
		},
	}
	m.Analyze(registry, 0.9, map[string]float64{"groq/llama-4-70b": 0.9})

	before := m.Profiles()[0]
	require.Equal(t, TierSecondary, before.Tier)

	ok := m.ApplyRecommendation(Recommendation{Action: ActionPromote, Provider: "groq", Model: "llama-4-70b"})
	require.True(t, ok)

	after := m.Profiles()[0]
	assert.Equal(t, TierPrimary, after.Tier)
	assert.Greater(t, after.Weight, before.Weight)

	ok = m.ApplyRecommendation(Recommendation{Action: ActionRemove, Provider: "groq", Model: "llama-4-70b"})
	require.True(t, ok)
	assert.Empty(t, m.Profiles())

	ok = m.ApplyRecommendation(Recommendation{Action: ActionPromote, Provider: "ghost", Model: "none"})
	assert.False(t, ok)
}

func TestMetricsAndCostProjection(t *testing.T) {
	m := NewManager(DefaultConfig())
	analysis := m.Analyze(sampleRegistry(), 0.97, map[string]float64{
		"anthropic/claude-sonnet-4-5": 0.95,
		"openai/gpt-5.2":              0.9,
		"deepseek/deepseek-chat":      0.8,
	})

	assert.Equal(t, 3, analysis.Metrics.TotalModels)
	assert.Equal(t, 2, analysis.Metrics.TierCounts[TierPrimary])
	assert.Equal(t, 1, analysis.Metrics.TierCounts[TierFallback])
	assert.Positive(t, analysis.Metrics.WeightedCostPer1K)
	assert.Positive(t, analysis.Metrics.AvgPerformanceScore)
	assert.Positive(t, analysis.Metrics.MIIContribution)

	proj := analysis.CostProjection
	assert.InDelta(t, proj["1k_tokens"]*1000, proj["1m_tokens"], proj["1m_tokens"]*0.01+0.01)
	assert.Positive(t, proj["hourly_estimate"])

	dist := analysis.TierDistribution
	assert.InDelta(t, 66.7, dist[TierPrimary], 0.1)
	assert.InDelta(t, 33.3, dist[TierFallback], 0.1)
}
