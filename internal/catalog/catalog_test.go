package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxmetrics/sentinel/internal/model"
)

func brandPrompt() model.Prompt {
	return model.Prompt{
		PromptID:   "brand-visibility",
		Version:    "1.0.0",
		Text:       "What do you know about {domain}?",
		SafetyTags: []string{"no_pii", "factual"},
	}
}

func TestAddPrompt(t *testing.T) {
	c := New()
	added, err := c.Add(brandPrompt())
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", added.Version)
	assert.False(t, added.CreatedAt.IsZero())

	got, ok := c.Get("brand-visibility")
	require.True(t, ok)
	assert.Equal(t, added.Text, got.Text)
}

func TestAddRequiresSafetyTags(t *testing.T) {
	c := New()
	p := brandPrompt()
	p.SafetyTags = nil
	_, err := c.Add(p)
	assert.Error(t, err)
}

func TestAddRejectsDuplicate(t *testing.T) {
	c := New()
	_, err := c.Add(brandPrompt())
	require.NoError(t, err)
	_, err = c.Add(brandPrompt())
	assert.Error(t, err)
}

func TestAddDefaultsVersion(t *testing.T) {
	c := New()
	p := brandPrompt()
	p.Version = ""
	added, err := c.Add(p)
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", added.Version)
}

func TestUpdateBumpsMinorVersion(t *testing.T) {
	c := New()
	_, err := c.Add(brandPrompt())
	require.NoError(t, err)

	updated, err := c.Update("brand-visibility", "Describe the market position of {domain}.")
	require.NoError(t, err)
	assert.Equal(t, "1.1.0", updated.Version)
	assert.Equal(t, []string{"no_pii", "factual"}, updated.SafetyTags)

	updated, err = c.Update("brand-visibility", "Summarize public sentiment about {domain}.")
	require.NoError(t, err)
	assert.Equal(t, "1.2.0", updated.Version)

	latest, _ := c.Get("brand-visibility")
	assert.Equal(t, "1.2.0", latest.Version)
}

func TestUpdateUnknownPrompt(t *testing.T) {
	c := New()
	_, err := c.Update("ghost", "text")
	assert.Error(t, err)
}

func TestHistoryIsAppendOnly(t *testing.T) {
	c := New()
	_, err := c.Add(brandPrompt())
	require.NoError(t, err)
	_, err = c.Update("brand-visibility", "v2 text")
	require.NoError(t, err)
	_, err = c.Update("brand-visibility", "v3 text")
	require.NoError(t, err)

	history := c.History("brand-visibility")
	require.Len(t, history, 3)
	assert.Equal(t, "1.0.0", history[0].Version)
	assert.Equal(t, "1.1.0", history[1].Version)
	assert.Equal(t, "1.2.0", history[2].Version)
	assert.Empty(t, c.History("ghost"))
}

func TestRenderSubstitutesSubject(t *testing.T) {
	p := brandPrompt()
	assert.Equal(t, "What do you know about acme.com?", p.Render("acme.com"))
}

func TestMalformedVersionRejected(t *testing.T) {
	c := New()
	p := brandPrompt()
	p.Version = "2.x"
	_, err := c.Add(p)
	assert.Error(t, err)
}
