// Package catalog keeps the versioned prompt library. Every version ever
// added is retained; updates bump the minor version and never rewrite
// history.
package catalog

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"

	"github.com/voxmetrics/sentinel/internal/model"
)

// Catalog is an in-memory prompt store. Safe for concurrent use.
type Catalog struct {
	mu       sync.RWMutex
	latest   map[string]model.Prompt
	versions []model.Prompt

	nowFunc func() time.Time
}

// New returns an empty catalog.
func New() *Catalog {
	return &Catalog{
		latest:  make(map[string]model.Prompt),
		nowFunc: time.Now,
	}
}

// Add registers a new prompt. Safety tags are mandatory, and an existing
// prompt ID must go through Update instead.
func (c *Catalog) Add(p model.Prompt) (model.Prompt, error) {
	if p.PromptID == "" {
		return model.Prompt{}, eris.New("catalog: prompt ID required")
	}
	if len(p.SafetyTags) == 0 {
		return model.Prompt{}, eris.Errorf("catalog: prompt %s has no safety tags", p.PromptID)
	}
	if p.Version == "" {
		p.Version = "1.0.0"
	}
	if _, _, _, err := parseVersion(p.Version); err != nil {
		return model.Prompt{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.latest[p.PromptID]; exists {
		return model.Prompt{}, eris.Errorf("catalog: prompt %s already exists, use Update", p.PromptID)
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = c.nowFunc().UTC()
	}

	c.latest[p.PromptID] = p
	c.versions = append(c.versions, p)
	return p, nil
}

// Update replaces the text of an existing prompt, bumping the minor version.
// Safety tags carry over from the previous version.
func (c *Catalog) Update(promptID, newText string) (model.Prompt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	old, exists := c.latest[promptID]
	if !exists {
		return model.Prompt{}, eris.Errorf("catalog: prompt %s not found", promptID)
	}

	major, minor, patch, err := parseVersion(old.Version)
	if err != nil {
		return model.Prompt{}, err
	}

	next := old
	next.Text = newText
	next.Version = fmt.Sprintf("%d.%d.%d", major, minor+1, patch)
	next.CreatedAt = c.nowFunc().UTC()

	c.latest[promptID] = next
	c.versions = append(c.versions, next)
	return next, nil
}

// Get returns the latest version of a prompt.
func (c *Catalog) Get(promptID string) (model.Prompt, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.latest[promptID]
	return p, ok
}

// History returns every retained version of a prompt, oldest first.
func (c *Catalog) History(promptID string) []model.Prompt {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []model.Prompt
	for _, p := range c.versions {
		if p.PromptID == promptID {
			out = append(out, p)
		}
	}
	return out
}

// List returns the latest version of every prompt.
func (c *Catalog) List() []model.Prompt {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]model.Prompt, 0, len(c.latest))
	for _, p := range c.latest {
		out = append(out, p)
	}
	return out
}

func parseVersion(v string) (major, minor, patch int, err error) {
	parts := strings.Split(v, ".")
	if len(parts) != 3 {
		return 0, 0, 0, eris.Errorf("catalog: malformed version %q", v)
	}
	nums := make([]int, 3)
	for i, part := range parts {
		n, convErr := strconv.Atoi(part)
		if convErr != nil {
			return 0, 0, 0, eris.Errorf("catalog: malformed version %q", v)
		}
		nums[i] = n
	}
	return nums[0], nums[1], nums[2], nil
}
