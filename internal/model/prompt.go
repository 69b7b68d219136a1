package model

import (
	"strings"
	"time"
)

// Prompt is one versioned catalog entry. Text may contain a {domain}
// placeholder substituted at render time.
type Prompt struct {
	PromptID   string    `json:"prompt_id" yaml:"prompt_id"`
	Version    string    `json:"version" yaml:"version"`
	Text       string    `json:"text" yaml:"text"`
	SafetyTags []string  `json:"safety_tags" yaml:"safety_tags"`
	CreatedAt  time.Time `json:"created_at" yaml:"created_at"`
}

// Render substitutes the subject into the prompt text.
func (p Prompt) Render(subject string) string {
	return strings.ReplaceAll(p.Text, "{domain}", subject)
}
