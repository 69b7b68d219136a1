package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no sentinel.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30, cfg.Runner.RequestTimeoutSecs)
	assert.Equal(t, 3, cfg.Runner.MaxRetries)
	assert.InDelta(t, 1.0, cfg.Runner.BackoffBaseSecs, 0.001)
	assert.InDelta(t, 8.0, cfg.Runner.BackoffCapSecs, 0.001)
	assert.Equal(t, 8, cfg.Runner.MaxConcurrent)
	assert.InDelta(t, 0.70, cfg.Manifest.MinFloor, 0.001)
	assert.InDelta(t, 0.95, cfg.Manifest.TargetCoverage, 0.001)
	assert.InDelta(t, 0.3, cfg.Drift.DriftThreshold, 0.001)
	assert.InDelta(t, 0.7, cfg.Drift.DecayThreshold, 0.001)
	assert.InDelta(t, 0.30, cfg.MII.CoverageWeight, 0.001)
	assert.InDelta(t, 0.25, cfg.MII.QualityWeight, 0.001)
	assert.InDelta(t, 0.25, cfg.MII.ConsistencyWeight, 0.001)
	assert.InDelta(t, 0.20, cfg.MII.ReliabilityWeight, 0.001)
	assert.InDelta(t, 0.95, cfg.Portfolio.CoverageTarget, 0.001)
	assert.InDelta(t, 0.003, cfg.Portfolio.CostCeilingPer1K, 0.0001)
	assert.Equal(t, 256, cfg.Monitoring.QueueSize)
	assert.Empty(t, cfg.Providers)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/sentinel
log:
  level: debug
  format: console
runner:
  max_concurrent: 16
drift:
  drift_threshold: 0.2
  decay_threshold: 0.8
providers:
  - provider: anthropic
    model: claude-haiku
    enabled: true
  - provider: openai
    model: gpt-4o
    enabled: false
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sentinel.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/sentinel", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 16, cfg.Runner.MaxConcurrent)
	assert.InDelta(t, 0.2, cfg.Drift.DriftThreshold, 0.001)
	assert.InDelta(t, 0.8, cfg.Drift.DecayThreshold, 0.001)

	require.Len(t, cfg.Providers, 2)
	assert.Equal(t, "anthropic", cfg.Providers[0].Provider)
	assert.Equal(t, "claude-haiku", cfg.Providers[0].Model)
	assert.True(t, cfg.Providers[0].Enabled)
	assert.False(t, cfg.Providers[1].Enabled)

	// Retry limit default survives partial overrides.
	assert.Equal(t, 3, cfg.Runner.MaxRetries)
}

func TestInitLogger(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	require.NotNil(t, zap.L())

	require.NoError(t, InitLogger(LogConfig{Level: "warn", Format: "json"}))

	err := InitLogger(LogConfig{Level: "not-a-level"})
	assert.Error(t, err)
}
