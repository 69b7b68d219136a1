// Package registry maintains the authoritative catalog of provider models
// and diffs it against the runtime configuration.
package registry

import (
	"os"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/voxmetrics/sentinel/internal/model"
)

// Discover assembles the registry from all provider catalogs, stamped with
// the discovery time. Output ordering is stable across calls.
func Discover() []model.RegistryEntry {
	now := time.Now().UTC()

	providers := make([]string, 0, len(providerCatalogs))
	for name := range providerCatalogs {
		providers = append(providers, name)
	}
	sort.Strings(providers)

	var rows []model.RegistryEntry
	for _, name := range providers {
		for _, entry := range providerCatalogs[name]() {
			entry.LastChecked = now
			rows = append(rows, entry)
		}
	}

	zap.L().Debug("registry discovered", zap.Int("models", len(rows)))
	return rows
}

// Diff is the result of comparing registry state against runtime config.
type Diff struct {
	// New: active in the registry but absent from runtime.
	New []model.RegistryEntry `json:"new"`
	// Deprecated: enabled in runtime but deprecated or eol in the registry.
	Deprecated []model.RegistryEntry `json:"deprecated"`
	// Missing: enabled in runtime but unknown to the registry.
	Missing []model.RuntimeProvider `json:"missing"`
	// Changed: known to both registry snapshots but with different
	// status, endpoint, params, or capabilities.
	Changed []Change `json:"changed"`
}

// Change pairs the previous and current registry entries for one model.
type Change struct {
	Before model.RegistryEntry `json:"before"`
	After  model.RegistryEntry `json:"after"`
}

// DiffRuntime compares discovered state against the enabled runtime
// providers. Disabled runtime entries are ignored entirely.
func DiffRuntime(registry []model.RegistryEntry, runtime []model.RuntimeProvider) Diff {
	byKey := make(map[string]model.RegistryEntry, len(registry))
	for _, entry := range registry {
		byKey[entry.Key()] = entry
	}

	enabled := make(map[string]model.RuntimeProvider)
	for _, rp := range runtime {
		if rp.Enabled {
			enabled[rp.Provider+"/"+rp.Model] = rp
		}
	}

	var diff Diff
	for _, entry := range registry {
		if _, inRuntime := enabled[entry.Key()]; !inRuntime && entry.Status == model.RegistryActive {
			diff.New = append(diff.New, entry)
		}
	}

	keys := make([]string, 0, len(enabled))
	for k := range enabled {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		rp := enabled[k]
		entry, known := byKey[k]
		switch {
		case !known:
			diff.Missing = append(diff.Missing, rp)
		case entry.Status == model.RegistryDeprecated || entry.Status == model.RegistryEOL:
			diff.Deprecated = append(diff.Deprecated, entry)
		}
	}
	return diff
}

// DiffSnapshots reports models whose registry entry changed between two
// discovery passes. LastChecked is excluded from the comparison.
func DiffSnapshots(prev, curr []model.RegistryEntry) []Change {
	before := make(map[string]model.RegistryEntry, len(prev))
	for _, entry := range prev {
		before[entry.Key()] = entry
	}

	var changes []Change
	for _, entry := range curr {
		old, known := before[entry.Key()]
		if !known {
			continue
		}
		if entryChanged(old, entry) {
			changes = append(changes, Change{Before: old, After: entry})
		}
	}
	return changes
}

func entryChanged(a, b model.RegistryEntry) bool {
	a.LastChecked = time.Time{}
	b.LastChecked = time.Time{}
	return a != b
}

// runtimeFile matches the on-disk runtime.yml layout.
type runtimeFile struct {
	Providers map[string]struct {
		Model   string `yaml:"model"`
		Enabled bool   `yaml:"enabled"`
	} `yaml:"providers"`
}

// LoadRuntime reads a runtime.yml provider list. Provider names are the map
// keys; ordering of the result is stable.
func LoadRuntime(path string) ([]model.RuntimeProvider, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "registry: read runtime config %s", path)
	}

	var file runtimeFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, eris.Wrapf(err, "registry: parse runtime config %s", path)
	}

	names := make([]string, 0, len(file.Providers))
	for name := range file.Providers {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]model.RuntimeProvider, 0, len(names))
	for _, name := range names {
		p := file.Providers[name]
		out = append(out, model.RuntimeProvider{Provider: name, Model: p.Model, Enabled: p.Enabled})
	}
	return out, nil
}
