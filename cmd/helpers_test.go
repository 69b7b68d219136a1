//go:build !integration

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCatalog_Defaults(t *testing.T) {
	cat, err := loadCatalog("")
	require.NoError(t, err)

	prompts := cat.List()
	assert.Len(t, prompts, 3)

	ids := make([]string, 0, len(prompts))
	for _, p := range prompts {
		ids = append(ids, p.PromptID)
	}
	assert.Contains(t, ids, "brand_overview")
	assert.Contains(t, ids, "product_lines")
	assert.Contains(t, ids, "trust_signals")
}

func TestLoadCatalog_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.yml")
	content := `prompts:
  - prompt_id: pricing
    version: "2.1.0"
    text: "What pricing does {domain} publish?"
    safety_tags: [no_speculation]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cat, err := loadCatalog(path)
	require.NoError(t, err)

	p, ok := cat.Get("pricing")
	require.True(t, ok)
	assert.Equal(t, "2.1.0", p.Version)
	assert.Contains(t, p.Text, "{domain}")
	assert.Equal(t, []string{"no_speculation"}, p.SafetyTags)
}

func TestLoadCatalog_MissingFile(t *testing.T) {
	_, err := loadCatalog(filepath.Join(t.TempDir(), "nope.yml"))
	assert.Error(t, err)
}

func TestLoadCatalog_EmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.yml")
	require.NoError(t, os.WriteFile(path, []byte("prompts: []\n"), 0o644))

	_, err := loadCatalog(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no prompts")
}

func TestLoadCatalog_BadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yml")
	require.NoError(t, os.WriteFile(path, []byte("prompts: {not valid"), 0o644))

	_, err := loadCatalog(path)
	assert.Error(t, err)
}
