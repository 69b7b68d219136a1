// Package manifest tracks expected vs observed crawl work per run, with
// coverage-tiered closing and crash-safe checkpoint/restore.
package manifest

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/voxmetrics/sentinel/internal/model"
)

// Config sets coverage thresholds and retry bounds for all runs managed by
// one Manager.
type Config struct {
	// MinFloor is the minimum coverage for a run to be usable at all.
	MinFloor float64
	// TargetCoverage is the coverage required for a Healthy verdict.
	TargetCoverage float64
	// MaxRetries finalizes an observation as failed once its attempt count
	// reaches this bound.
	MaxRetries int
	// Strict makes updates for combos outside the expected set an error.
	// By default they are recorded but excluded from coverage.
	Strict bool
}

// UpdateParams carries the optional fields of an observation update.
type UpdateParams struct {
	ResponseID string
	Error      string
	LatencyMS  int
	// Reopen permits a terminal observation to move to another terminal
	// state. Never the default.
	Reopen bool
}

// Manager owns run manifests for their full lifetime
// (create → observe → close). All methods are safe for concurrent use.
type Manager struct {
	cfg Config

	mu        sync.Mutex
	manifests map[string]*model.RunManifest
	expected  map[string]map[model.Combo]*model.Observation
	extras    map[string]map[model.Combo]*model.Observation
	events    []model.Event

	nowFunc func() time.Time
}

// NewManager validates thresholds and returns an empty manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.MinFloor < 0 || cfg.MinFloor > 1 {
		return nil, eris.Errorf("manifest: min floor %v outside [0,1]", cfg.MinFloor)
	}
	if cfg.TargetCoverage < 0 || cfg.TargetCoverage > 1 {
		return nil, eris.Errorf("manifest: target coverage %v outside [0,1]", cfg.TargetCoverage)
	}
	if cfg.MinFloor > cfg.TargetCoverage {
		return nil, eris.Errorf("manifest: min floor %v above target coverage %v", cfg.MinFloor, cfg.TargetCoverage)
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	return &Manager{
		cfg:       cfg,
		manifests: make(map[string]*model.RunManifest),
		expected:  make(map[string]map[model.Combo]*model.Observation),
		extras:    make(map[string]map[model.Combo]*model.Observation),
		nowFunc:   time.Now,
	}, nil
}

// CreateManifest materializes a run with one queued observation per expected
// combo and returns the open manifest. Duplicate combos collapse to one.
func (m *Manager) CreateManifest(windowStart, windowEnd time.Time, combos []model.Combo) model.RunManifest {
	m.mu.Lock()
	defer m.mu.Unlock()

	runID := uuid.NewString()
	obs := make(map[model.Combo]*model.Observation, len(combos))
	for _, c := range combos {
		if _, dup := obs[c]; dup {
			continue
		}
		obs[c] = &model.Observation{
			RunID:    runID,
			Subject:  c.Subject,
			PromptID: c.PromptID,
			Model:    c.Model,
			Status:   model.ObservationQueued,
		}
	}

	man := &model.RunManifest{
		RunID:          runID,
		WindowStart:    windowStart,
		WindowEnd:      windowEnd,
		TargetCombos:   len(obs),
		MinFloor:       m.cfg.MinFloor,
		TargetCoverage: m.cfg.TargetCoverage,
		Tier:           model.TierInvalid,
		Status:         model.ManifestOpen,
		CreatedAt:      m.nowFunc().UTC(),
	}

	m.manifests[runID] = man
	m.expected[runID] = obs
	m.extras[runID] = make(map[model.Combo]*model.Observation)

	m.emit("manifest.opened", map[string]any{
		"run_id":        runID,
		"target_combos": len(obs),
	})
	return *man
}

// UpdateObservation is an idempotent upsert keyed by the triple. Terminal
// observations only move to another state when params.Reopen is set.
// Combos outside the expected set are recorded but excluded from coverage
// unless the manager is strict, in which case they are an error.
func (m *Manager) UpdateObservation(runID string, combo model.Combo, status model.ObservationStatus, params UpdateParams) (model.Observation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	expected, ok := m.expected[runID]
	if !ok {
		return model.Observation{}, eris.Errorf("manifest: unknown run %s", runID)
	}

	obs, known := expected[combo]
	if !known {
		if m.cfg.Strict {
			return model.Observation{}, eris.Errorf("manifest: combo %s/%s/%s not in expected set", combo.Subject, combo.PromptID, combo.Model)
		}
		obs, known = m.extras[runID][combo], true
		if obs == nil {
			obs = &model.Observation{
				RunID:    runID,
				Subject:  combo.Subject,
				PromptID: combo.PromptID,
				Model:    combo.Model,
				Status:   model.ObservationQueued,
			}
			m.extras[runID][combo] = obs
			zap.L().Debug("observation outside expected set recorded",
				zap.String("run_id", runID),
				zap.String("subject", combo.Subject),
				zap.String("model", combo.Model),
			)
		}
	}

	if obs.Status.Terminal() && obs.Status != status && !params.Reopen {
		return *obs, nil
	}

	prev := obs.Status
	if status == model.ObservationRunning && obs.Attempts >= m.cfg.MaxRetries {
		// Attempt budget exhausted, finalize instead of running again.
		status = model.ObservationFailed
		if params.Error == "" {
			params.Error = "max retries exhausted"
		}
	}
	obs.Status = status
	if status == model.ObservationRunning {
		obs.Attempts++
	}
	if params.Error != "" {
		obs.LastError = params.Error
	}
	if params.LatencyMS > 0 {
		obs.LatencyMS = params.LatencyMS
	}
	if params.ResponseID != "" {
		obs.ResponseID = params.ResponseID
	}

	if _, inExpected := expected[combo]; inExpected && prev != obs.Status {
		m.recalculate(runID)
	}
	return *obs, nil
}

// Observation returns the tracked state of a combo, if any.
func (m *Manager) Observation(runID string, combo model.Combo) (model.Observation, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if obs, ok := m.expected[runID][combo]; ok {
		return *obs, true
	}
	if obs, ok := m.extras[runID][combo]; ok {
		return *obs, true
	}
	return model.Observation{}, false
}

// Manifest returns the current manifest state for a run.
func (m *Manager) Manifest(runID string) (model.RunManifest, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	man, ok := m.manifests[runID]
	if !ok {
		return model.RunManifest{}, false
	}
	return *man, true
}

// MissingCombos lists failed or still-queued combos, the gap-fill set.
func (m *Manager) MissingCombos(runID string) []model.Combo {
	m.mu.Lock()
	defer m.mu.Unlock()

	var missing []model.Combo
	for combo, obs := range m.expected[runID] {
		if obs.Status == model.ObservationFailed || obs.Status == model.ObservationQueued {
			missing = append(missing, combo)
		}
	}
	return missing
}

// Checkpoint snapshots a run's full state, including running (in-flight)
// placeholders, so a crashed process can resume each tuple exactly where it
// was left.
func (m *Manager) Checkpoint(runID string) (model.Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	man, ok := m.manifests[runID]
	if !ok {
		return model.Checkpoint{}, eris.Errorf("manifest: unknown run %s", runID)
	}

	cp := model.Checkpoint{
		Manifest:  *man,
		Timestamp: m.nowFunc().UTC(),
	}
	for _, obs := range m.expected[runID] {
		cp.Observations = append(cp.Observations, *obs)
	}
	return cp, nil
}

// RestoreCheckpoint rehydrates a run into this manager. Subsequent updates
// continue from wherever each tuple was left.
func (m *Manager) RestoreCheckpoint(cp model.Checkpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	runID := cp.Manifest.RunID
	if runID == "" {
		return eris.New("manifest: checkpoint has no run ID")
	}

	man := cp.Manifest
	m.manifests[runID] = &man

	obs := make(map[model.Combo]*model.Observation, len(cp.Observations))
	for _, o := range cp.Observations {
		copied := o
		obs[o.Combo()] = &copied
	}
	m.expected[runID] = obs
	if m.extras[runID] == nil {
		m.extras[runID] = make(map[model.Combo]*model.Observation)
	}

	m.recalculate(runID)
	return nil
}

// CloseManifest finalizes coverage, derives the tier verdict, and emits
// closing events. A run closing Invalid is the authoritative signal that it
// did not meet quality.
func (m *Manager) CloseManifest(runID string) (model.RunManifest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	man, ok := m.manifests[runID]
	if !ok {
		return model.RunManifest{}, eris.Errorf("manifest: unknown run %s", runID)
	}

	m.recalculate(runID)
	now := m.nowFunc().UTC()
	man.Status = model.ManifestClosed
	man.ClosedAt = &now

	switch man.Tier {
	case model.TierInvalid:
		m.emit("mii.skipped", map[string]any{
			"run_id":   runID,
			"coverage": man.Coverage,
		})
	default:
		m.emit("run.ready", map[string]any{
			"run_id":        runID,
			"tier":          string(man.Tier),
			"coverage":      man.Coverage,
			"observed_ok":   man.ObservedOK,
			"observed_fail": man.ObservedFail,
		})
		if man.Tier == model.TierDegraded {
			if missing := m.missingLocked(runID); len(missing) > 0 {
				m.emit("gapfill.ready", map[string]any{
					"run_id": runID,
					"combos": missing,
				})
			}
		}
	}

	m.emit("manifest.closed", map[string]any{
		"run_id":   runID,
		"tier":     string(man.Tier),
		"coverage": man.Coverage,
	})

	zap.L().Info("manifest closed",
		zap.String("run_id", runID),
		zap.String("tier", string(man.Tier)),
		zap.Float64("coverage", man.Coverage),
		zap.Int("observed_ok", man.ObservedOK),
		zap.Int("observed_fail", man.ObservedFail),
	)
	return *man, nil
}

// Events drains the pending event queue.
func (m *Manager) Events() []model.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.events
	m.events = nil
	return out
}

// recalculate recomputes coverage and tier. Callers hold the lock.
func (m *Manager) recalculate(runID string) {
	man := m.manifests[runID]
	if man == nil {
		return
	}

	ok, fail := 0, 0
	for _, obs := range m.expected[runID] {
		switch obs.Status {
		case model.ObservationSuccess:
			ok++
		case model.ObservationFailed:
			fail++
		}
	}
	man.ObservedOK = ok
	man.ObservedFail = fail

	if man.TargetCombos > 0 {
		man.Coverage = float64(ok) / float64(man.TargetCombos)
	} else {
		man.Coverage = 0
	}

	switch {
	case man.Coverage < m.cfg.MinFloor:
		man.Tier = model.TierInvalid
	case man.Coverage >= m.cfg.TargetCoverage:
		man.Tier = model.TierHealthy
	default:
		man.Tier = model.TierDegraded
	}
}

func (m *Manager) missingLocked(runID string) []model.Combo {
	var missing []model.Combo
	for combo, obs := range m.expected[runID] {
		if obs.Status == model.ObservationFailed || obs.Status == model.ObservationQueued {
			missing = append(missing, combo)
		}
	}
	return missing
}

func (m *Manager) emit(eventType string, payload map[string]any) {
	m.events = append(m.events, model.Event{
		Type:      eventType,
		Timestamp: m.nowFunc().UTC(),
		Payload:   payload,
	})
}

// ExpandCombos builds the exhaustive expected set for a crawl window.
func ExpandCombos(subjects []string, prompts []model.Prompt, models []string) []model.Combo {
	combos := make([]model.Combo, 0, len(subjects)*len(prompts)*len(models))
	for _, s := range subjects {
		for _, p := range prompts {
			for _, mo := range models {
				combos = append(combos, model.Combo{Subject: s, PromptID: p.PromptID, Model: mo})
			}
		}
	}
	return combos
}
