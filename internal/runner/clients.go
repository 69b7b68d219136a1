package runner

import (
	"sort"

	"go.uber.org/zap"

	"github.com/voxmetrics/sentinel/internal/config"
	"github.com/voxmetrics/sentinel/internal/model"
	"github.com/voxmetrics/sentinel/pkg/llm"
)

// ClientRegistry holds the provider clients for every enabled model,
// constructed once at startup and passed into the engine. A model with no
// client is reported as skipped, never as an error.
type ClientRegistry struct {
	byModel map[string]llm.Client
}

// NewClientRegistry wraps an explicit set of clients keyed by model name.
func NewClientRegistry(clients ...llm.Client) *ClientRegistry {
	r := &ClientRegistry{byModel: make(map[string]llm.Client, len(clients))}
	for _, c := range clients {
		r.byModel[c.Model()] = c
	}
	return r
}

// BuildClients constructs clients for every enabled runtime provider that has
// an API key configured. Models without keys are left unconfigured.
func BuildClients(providers []model.RuntimeProvider, keys config.KeysConfig) *ClientRegistry {
	r := NewClientRegistry()
	for _, p := range providers {
		if !p.Enabled {
			continue
		}

		key := keyFor(p.Provider, keys)
		if key == "" {
			zap.L().Debug("no api key for provider, model unconfigured",
				zap.String("provider", p.Provider),
				zap.String("model", p.Model),
			)
			continue
		}

		var client llm.Client
		if p.Provider == "anthropic" {
			client = llm.NewAnthropic(p.Model, key)
		} else {
			c, err := llm.NewCompat(p.Provider, p.Model, key)
			if err != nil {
				zap.L().Warn("unsupported provider in runtime config",
					zap.String("provider", p.Provider),
					zap.String("model", p.Model),
					zap.Error(err),
				)
				continue
			}
			client = c
		}
		r.byModel[p.Model] = client
	}

	if len(r.byModel) == 0 {
		zap.L().Warn("no provider clients configured (check API keys)")
	} else {
		zap.L().Info("provider clients ready", zap.Strings("models", r.Models()))
	}
	return r
}

// Get returns the client for a model, or nil if unconfigured.
func (r *ClientRegistry) Get(modelName string) llm.Client {
	return r.byModel[modelName]
}

// Models lists configured model names in sorted order.
func (r *ClientRegistry) Models() []string {
	names := make([]string, 0, len(r.byModel))
	for name := range r.byModel {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func keyFor(provider string, keys config.KeysConfig) string {
	switch provider {
	case "anthropic":
		return keys.Anthropic
	case "openai":
		return keys.OpenAI
	case "deepseek":
		return keys.DeepSeek
	case "mistral":
		return keys.Mistral
	case "perplexity":
		return keys.Perplexity
	case "groq":
		return keys.Groq
	case "together":
		return keys.Together
	case "xai":
		return keys.XAI
	default:
		return ""
	}
}
