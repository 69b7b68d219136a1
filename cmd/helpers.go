package main

import (
	"context"
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/voxmetrics/sentinel/internal/catalog"
	"github.com/voxmetrics/sentinel/internal/model"
	"github.com/voxmetrics/sentinel/internal/store"
)

func initStore(ctx context.Context) (store.Store, error) {
	st, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.DatabaseURL)
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// promptFile matches the on-disk prompts.yml layout.
type promptFile struct {
	Prompts []struct {
		PromptID   string   `yaml:"prompt_id"`
		Version    string   `yaml:"version"`
		Text       string   `yaml:"text"`
		SafetyTags []string `yaml:"safety_tags"`
	} `yaml:"prompts"`
}

// loadCatalog builds the prompt catalog from a YAML file, or from the
// built-in prompt set when no path is given.
func loadCatalog(path string) (*catalog.Catalog, error) {
	c := catalog.New()

	if path == "" {
		for _, p := range defaultPrompts() {
			if _, err := c.Add(p); err != nil {
				return nil, eris.Wrap(err, "register built-in prompt")
			}
		}
		return c, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read prompt file %s", path)
	}
	var file promptFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, eris.Wrapf(err, "parse prompt file %s", path)
	}
	if len(file.Prompts) == 0 {
		return nil, eris.Errorf("prompt file %s contains no prompts", path)
	}

	for _, p := range file.Prompts {
		if _, err := c.Add(model.Prompt{
			PromptID:   p.PromptID,
			Version:    p.Version,
			Text:       p.Text,
			SafetyTags: p.SafetyTags,
		}); err != nil {
			return nil, eris.Wrapf(err, "register prompt %s", p.PromptID)
		}
	}
	return c, nil
}

// defaultPrompts is the built-in crawl prompt set used when no prompt file
// is configured.
func defaultPrompts() []model.Prompt {
	return []model.Prompt{
		{
			PromptID:   "brand_overview",
			Version:    "1.0.0",
			Text:       "What does the company at {domain} do? Answer in two or three sentences, citing sources where possible.",
			SafetyTags: []string{"no_speculation", "cite_sources"},
		},
		{
			PromptID:   "product_lines",
			Version:    "1.0.0",
			Text:       "List the main products or services offered by {domain}. Answer concisely and cite sources where possible.",
			SafetyTags: []string{"no_speculation", "cite_sources"},
		},
		{
			PromptID:   "trust_signals",
			Version:    "1.0.0",
			Text:       "Is {domain} generally considered a reputable business? Mention any well-known concerns, citing sources.",
			SafetyTags: []string{"no_speculation", "no_defamation", "cite_sources"},
		},
	}
}
