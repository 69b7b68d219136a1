package registry

import "github.com/voxmetrics/sentinel/internal/model"

// Provider catalogs are curated rather than fetched: most providers have no
// usable listing API, and the ones that do omit pricing and context limits.
// Status flips here are what drive deprecation diffs downstream.

type catalogFunc func() []model.RegistryEntry

var providerCatalogs = map[string]catalogFunc{
	"anthropic":  anthropicCatalog,
	"openai":     openaiCatalog,
	"deepseek":   deepseekCatalog,
	"mistral":    mistralCatalog,
	"perplexity": perplexityCatalog,
	"groq":       groqCatalog,
	"together":   togetherCatalog,
	"xai":        xaiCatalog,
}

func anthropicCatalog() []model.RegistryEntry {
	return []model.RegistryEntry{
		{
			Provider:      "anthropic",
			Model:         "claude-sonnet-4-5",
			Status:        model.RegistryActive,
			Endpoint:      "https://api.anthropic.com/v1/messages",
			DefaultParams: model.CallParams{Temperature: 0.7, MaxTokens: 4096},
			Capabilities:  model.Capabilities{Tools: true, MaxContext: 200000, CostPer1KTokens: 0.003},
		},
		{
			Provider:      "anthropic",
			Model:         "claude-haiku-4-5",
			Status:        model.RegistryActive,
			Endpoint:      "https://api.anthropic.com/v1/messages",
			DefaultParams: model.CallParams{Temperature: 0.7, MaxTokens: 4096},
			Capabilities:  model.Capabilities{Tools: true, MaxContext: 200000, CostPer1KTokens: 0.001},
		},
		{
			Provider:      "anthropic",
			Model:         "claude-3-5-sonnet-20241022",
			Status:        model.RegistryDeprecated,
			Endpoint:      "https://api.anthropic.com/v1/messages",
			DefaultParams: model.CallParams{Temperature: 0.7, MaxTokens: 4096},
			Capabilities:  model.Capabilities{Tools: true, MaxContext: 200000, CostPer1KTokens: 0.003},
			Notes:         "superseded by claude-sonnet-4-5",
		},
	}
}

func openaiCatalog() []model.RegistryEntry {
	return []model.RegistryEntry{
		{
			Provider:      "openai",
			Model:         "gpt-5.2",
			Status:        model.RegistryActive,
			Endpoint:      "https://api.openai.com/v1/chat/completions",
			DefaultParams: model.CallParams{Temperature: 0.7, MaxTokens: 4096},
			Capabilities:  model.Capabilities{Tools: true, MaxContext: 128000, CostPer1KTokens: 0.005},
		},
		{
			Provider:      "openai",
			Model:         "gpt-5.2-mini",
			Status:        model.RegistryActive,
			Endpoint:      "https://api.openai.com/v1/chat/completions",
			DefaultParams: model.CallParams{Temperature: 0.7, MaxTokens: 4096},
			Capabilities:  model.Capabilities{Tools: true, MaxContext: 128000, CostPer1KTokens: 0.00015},
		},
		{
			Provider:      "openai",
			Model:         "gpt-4o",
			Status:        model.RegistryEOL,
			Endpoint:      "https://api.openai.com/v1/chat/completions",
			DefaultParams: model.CallParams{Temperature: 0.7, MaxTokens: 4096},
			Capabilities:  model.Capabilities{Tools: true, MaxContext: 128000, CostPer1KTokens: 0.005},
		},
	}
}

func deepseekCatalog() []model.RegistryEntry {
	return []model.RegistryEntry{
		{
			Provider:      "deepseek",
			Model:         "deepseek-chat",
			Status:        model.RegistryActive,
			Endpoint:      "https://api.deepseek.com/chat/completions",
			DefaultParams: model.CallParams{Temperature: 0.7, MaxTokens: 4096},
			Capabilities:  model.Capabilities{MaxContext: 64000, CostPer1KTokens: 0.0001},
		},
		{
			Provider:      "deepseek",
			Model:         "deepseek-reasoner",
			Status:        model.RegistryTrial,
			Endpoint:      "https://api.deepseek.com/chat/completions",
			DefaultParams: model.CallParams{Temperature: 0.6, MaxTokens: 8192},
			Capabilities:  model.Capabilities{MaxContext: 64000, CostPer1KTokens: 0.00055},
		},
	}
}

func mistralCatalog() []model.RegistryEntry {
	return []model.RegistryEntry{
		{
			Provider:      "mistral",
			Model:         "mistral-large-latest",
			Status:        model.RegistryActive,
			Endpoint:      "https://api.mistral.ai/v1/chat/completions",
			DefaultParams: model.CallParams{Temperature: 0.7, MaxTokens: 4096},
			Capabilities:  model.Capabilities{Tools: true, MaxContext: 128000, CostPer1KTokens: 0.002},
		},
		{
			Provider:      "mistral",
			Model:         "mistral-small-latest",
			Status:        model.RegistryActive,
			Endpoint:      "https://api.mistral.ai/v1/chat/completions",
			DefaultParams: model.CallParams{Temperature: 0.7, MaxTokens: 4096},
			Capabilities:  model.Capabilities{Tools: true, MaxContext: 32000, CostPer1KTokens: 0.0002},
		},
	}
}

func perplexityCatalog() []model.RegistryEntry {
	return []model.RegistryEntry{
		{
			Provider:      "perplexity",
			Model:         "sonar-pro",
			Status:        model.RegistryActive,
			Endpoint:      "https://api.perplexity.ai/chat/completions",
			DefaultParams: model.CallParams{Temperature: 0.2, MaxTokens: 4096},
			Capabilities:  model.Capabilities{SearchAugmented: true, MaxContext: 200000, CostPer1KTokens: 0.003},
		},
		{
			Provider:      "perplexity",
			Model:         "sonar",
			Status:        model.RegistryActive,
			Endpoint:      "https://api.perplexity.ai/chat/completions",
			DefaultParams: model.CallParams{Temperature: 0.2, MaxTokens: 4096},
			Capabilities:  model.Capabilities{SearchAugmented: true, MaxContext: 128000, CostPer1KTokens: 0.001},
		},
	}
}

func groqCatalog() []model.RegistryEntry {
	return []model.RegistryEntry{
		{
			Provider:      "groq",
			Model:         "llama-4-70b-versatile",
			Status:        model.RegistryActive,
			Endpoint:      "https://api.groq.com/openai/v1/chat/completions",
			DefaultParams: model.CallParams{Temperature: 0.7, MaxTokens: 4096},
			Capabilities:  model.Capabilities{Tools: true, MaxContext: 128000, CostPer1KTokens: 0.00059},
		},
		{
			Provider:      "groq",
			Model:         "llama-4-8b-instant",
			Status:        model.RegistryActive,
			Endpoint:      "https://api.groq.com/openai/v1/chat/completions",
			DefaultParams: model.CallParams{Temperature: 0.7, MaxTokens: 4096},
			Capabilities:  model.Capabilities{Tools: true, MaxContext: 128000, CostPer1KTokens: 0.00005},
		},
	}
}

func togetherCatalog() []model.RegistryEntry {
	return []model.RegistryEntry{
		{
			Provider:      "together",
			Model:         "meta-llama/Llama-4-70B-Instruct-Turbo",
			Status:        model.RegistryActive,
			Endpoint:      "https://api.together.xyz/v1/chat/completions",
			DefaultParams: model.CallParams{Temperature: 0.7, MaxTokens: 4096},
			Capabilities:  model.Capabilities{Tools: true, MaxContext: 131072, CostPer1KTokens: 0.00088},
		},
	}
}

func xaiCatalog() []model.RegistryEntry {
	return []model.RegistryEntry{
		{
			Provider:      "xai",
			Model:         "grok-5",
			Status:        model.RegistryActive,
			Endpoint:      "https://api.x.ai/v1/chat/completions",
			DefaultParams: model.CallParams{Temperature: 0.7, MaxTokens: 4096},
			Capabilities:  model.Capabilities{Tools: true, SearchAugmented: true, MaxContext: 256000, CostPer1KTokens: 0.002},
		},
		{
			Provider:      "xai",
			Model:         "grok-4",
			Status:        model.RegistryDeprecated,
			Endpoint:      "https://api.x.ai/v1/chat/completions",
			DefaultParams: model.CallParams{Temperature: 0.7, MaxTokens: 4096},
			Capabilities:  model.Capabilities{Tools: true, MaxContext: 131072, CostPer1KTokens: 0.005},
			Notes:         "superseded by grok-5",
		},
	}
}
