package model

import "time"

// RegistryStatus is the lifecycle state of a provider model.
type RegistryStatus string

const (
	RegistryActive     RegistryStatus = "active"
	RegistryTrial      RegistryStatus = "trial"
	RegistryDeprecated RegistryStatus = "deprecated"
	RegistryEOL        RegistryStatus = "eol"
)

// Capabilities describes what a provider model can do and what it costs.
type Capabilities struct {
	Tools           bool    `json:"tools" yaml:"tools"`
	SearchAugmented bool    `json:"search_augmented" yaml:"search_augmented"`
	MaxContext      int     `json:"max_context" yaml:"max_context"`
	CostPer1KTokens float64 `json:"cost_per_1k_tokens" yaml:"cost_per_1k_tokens"`
}

// CallParams are the default generation parameters for a model.
type CallParams struct {
	Temperature float64 `json:"temperature" yaml:"temperature"`
	MaxTokens   int     `json:"max_tokens" yaml:"max_tokens"`
}

// RegistryEntry is one discovered (provider, model) pair.
type RegistryEntry struct {
	Provider      string         `json:"provider" yaml:"provider"`
	Model         string         `json:"model" yaml:"model"`
	Status        RegistryStatus `json:"status" yaml:"status"`
	LastChecked   time.Time      `json:"last_checked_iso" yaml:"last_checked_iso"`
	Endpoint      string         `json:"endpoint" yaml:"endpoint"`
	DefaultParams CallParams     `json:"params" yaml:"params"`
	Capabilities  Capabilities   `json:"capabilities" yaml:"capabilities"`
	Notes         string         `json:"notes,omitempty" yaml:"notes,omitempty"`
}

// Key returns the canonical provider/model identifier.
func (e RegistryEntry) Key() string {
	return e.Provider + "/" + e.Model
}

// RuntimeProvider is one enabled model in the runtime configuration.
// Absence of an entry means that model is model_not_available, not an error.
type RuntimeProvider struct {
	Provider string `json:"provider" yaml:"provider" mapstructure:"provider"`
	Model    string `json:"model" yaml:"model" mapstructure:"model"`
	Enabled  bool   `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
}
