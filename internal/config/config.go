// Package config loads application configuration from file, environment,
// and defaults, and initializes the global logger.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/voxmetrics/sentinel/internal/model"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig             `yaml:"store" mapstructure:"store"`
	Providers  []model.RuntimeProvider `yaml:"providers" mapstructure:"providers"`
	Keys       KeysConfig              `yaml:"keys" mapstructure:"keys"`
	Runner     RunnerConfig            `yaml:"runner" mapstructure:"runner"`
	Manifest   ManifestConfig          `yaml:"manifest" mapstructure:"manifest"`
	Drift      DriftConfig             `yaml:"drift" mapstructure:"drift"`
	MII        MIIConfig               `yaml:"mii" mapstructure:"mii"`
	Portfolio  PortfolioConfig         `yaml:"portfolio" mapstructure:"portfolio"`
	Monitoring MonitoringConfig        `yaml:"monitoring" mapstructure:"monitoring"`
	Server     ServerConfig            `yaml:"server" mapstructure:"server"`
	Log        LogConfig               `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// KeysConfig holds per-provider API keys. A missing key leaves that
// provider's models unconfigured, which the runner reports as skipped.
type KeysConfig struct {
	Anthropic  string `yaml:"anthropic" mapstructure:"anthropic"`
	OpenAI     string `yaml:"openai" mapstructure:"openai"`
	DeepSeek   string `yaml:"deepseek" mapstructure:"deepseek"`
	Mistral    string `yaml:"mistral" mapstructure:"mistral"`
	Perplexity string `yaml:"perplexity" mapstructure:"perplexity"`
	Groq       string `yaml:"groq" mapstructure:"groq"`
	Together   string `yaml:"together" mapstructure:"together"`
	XAI        string `yaml:"xai" mapstructure:"xai"`
}

// RunnerConfig controls the query execution engine.
type RunnerConfig struct {
	RequestTimeoutSecs int     `yaml:"request_timeout_secs" mapstructure:"request_timeout_secs"`
	MaxRetries         int     `yaml:"max_retries" mapstructure:"max_retries"`
	BackoffBaseSecs    float64 `yaml:"backoff_base_secs" mapstructure:"backoff_base_secs"`
	BackoffCapSecs     float64 `yaml:"backoff_cap_secs" mapstructure:"backoff_cap_secs"`
	MaxConcurrent      int     `yaml:"max_concurrent" mapstructure:"max_concurrent"`
	ProviderRPS        float64 `yaml:"provider_rps" mapstructure:"provider_rps"`
}

// ManifestConfig sets run coverage thresholds.
type ManifestConfig struct {
	MinFloor       float64 `yaml:"min_floor" mapstructure:"min_floor"`
	TargetCoverage float64 `yaml:"target_coverage" mapstructure:"target_coverage"`
	MaxRetries     int     `yaml:"max_retries" mapstructure:"max_retries"`
}

// DriftConfig sets drift classification thresholds. Business tunables, not
// algorithmic constants.
type DriftConfig struct {
	DriftThreshold float64 `yaml:"drift_threshold" mapstructure:"drift_threshold"`
	DecayThreshold float64 `yaml:"decay_threshold" mapstructure:"decay_threshold"`
}

// MIIConfig sets composite-score dimension weights
// (coverage, quality, consistency, reliability).
type MIIConfig struct {
	CoverageWeight    float64 `yaml:"coverage_weight" mapstructure:"coverage_weight"`
	QualityWeight     float64 `yaml:"quality_weight" mapstructure:"quality_weight"`
	ConsistencyWeight float64 `yaml:"consistency_weight" mapstructure:"consistency_weight"`
	ReliabilityWeight float64 `yaml:"reliability_weight" mapstructure:"reliability_weight"`
}

// PortfolioConfig sets portfolio optimization targets.
type PortfolioConfig struct {
	CoverageTarget    float64 `yaml:"coverage_target" mapstructure:"coverage_target"`
	CostCeilingPer1K  float64 `yaml:"cost_ceiling_per_1k" mapstructure:"cost_ceiling_per_1k"`
	PrimaryCostPer1K  float64 `yaml:"primary_cost_per_1k" mapstructure:"primary_cost_per_1k"`
	FallbackCostPer1K float64 `yaml:"fallback_cost_per_1k" mapstructure:"fallback_cost_per_1k"`
}

// MonitoringConfig configures the drift alert webhook.
type MonitoringConfig struct {
	WebhookURL string `yaml:"webhook_url" mapstructure:"webhook_url"`
	QueueSize  int    `yaml:"queue_size" mapstructure:"queue_size"`
}

// ServerConfig configures the status API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures zap.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from sentinel.yaml (working directory or
// ~/.sentinel), environment variables prefixed SENTINEL_, and defaults.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("sentinel")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.sentinel")

	v.SetEnvPrefix("SENTINEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "sentinel.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("runner.request_timeout_secs", 30)
	v.SetDefault("runner.max_retries", 3)
	v.SetDefault("runner.backoff_base_secs", 1.0)
	v.SetDefault("runner.backoff_cap_secs", 8.0)
	v.SetDefault("runner.max_concurrent", 8)
	v.SetDefault("runner.provider_rps", 2.0)
	v.SetDefault("manifest.min_floor", 0.70)
	v.SetDefault("manifest.target_coverage", 0.95)
	v.SetDefault("manifest.max_retries", 3)
	v.SetDefault("drift.drift_threshold", 0.3)
	v.SetDefault("drift.decay_threshold", 0.7)
	v.SetDefault("mii.coverage_weight", 0.30)
	v.SetDefault("mii.quality_weight", 0.25)
	v.SetDefault("mii.consistency_weight", 0.25)
	v.SetDefault("mii.reliability_weight", 0.20)
	v.SetDefault("portfolio.coverage_target", 0.95)
	v.SetDefault("portfolio.cost_ceiling_per_1k", 0.003)
	v.SetDefault("portfolio.primary_cost_per_1k", 0.005)
	v.SetDefault("portfolio.fallback_cost_per_1k", 0.0005)
	v.SetDefault("monitoring.queue_size", 256)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
