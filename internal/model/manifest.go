package model

import "time"

// ObservationStatus tracks a combo through its lifecycle within a run.
// Transitions are monotonic except running→running (resumable after a crash)
// and any state → terminal.
type ObservationStatus string

const (
	ObservationQueued  ObservationStatus = "queued"
	ObservationRunning ObservationStatus = "running"
	ObservationSuccess ObservationStatus = "success"
	ObservationFailed  ObservationStatus = "failed"
	ObservationSkipped ObservationStatus = "skipped"
)

// Terminal reports whether the status is final.
func (s ObservationStatus) Terminal() bool {
	return s == ObservationSuccess || s == ObservationFailed || s == ObservationSkipped
}

// Combo is one (subject, prompt, model) unit of expected work.
type Combo struct {
	Subject  string `json:"subject"`
	PromptID string `json:"prompt_id"`
	Model    string `json:"model"`
}

// Observation is the tracked state of a single combo within a run.
// Exactly one Observation exists per expected combo per run.
type Observation struct {
	RunID      string            `json:"run_id"`
	Subject    string            `json:"subject"`
	PromptID   string            `json:"prompt_id"`
	Model      string            `json:"model"`
	Status     ObservationStatus `json:"status"`
	Attempts   int               `json:"attempts"`
	LastError  string            `json:"last_error,omitempty"`
	LatencyMS  int               `json:"latency_ms,omitempty"`
	ResponseID string            `json:"response_id,omitempty"`
}

// Combo returns the observation's identity triple.
func (o Observation) Combo() Combo {
	return Combo{Subject: o.Subject, PromptID: o.PromptID, Model: o.Model}
}

// RunTier is the quality verdict for a closed run.
type RunTier string

const (
	TierHealthy  RunTier = "healthy"
	TierDegraded RunTier = "degraded"
	TierInvalid  RunTier = "invalid"
)

// ManifestStatus is the lifecycle state of a run manifest.
type ManifestStatus string

const (
	ManifestOpen   ManifestStatus = "open"
	ManifestClosed ManifestStatus = "closed"
)

// RunManifest tracks expected vs observed work for one crawl window.
type RunManifest struct {
	RunID          string         `json:"run_id"`
	WindowStart    time.Time      `json:"window_start"`
	WindowEnd      time.Time      `json:"window_end"`
	TargetCombos   int            `json:"target_combos"`
	MinFloor       float64        `json:"min_floor"`
	TargetCoverage float64        `json:"target_coverage"`
	ObservedOK     int            `json:"observed_ok"`
	ObservedFail   int            `json:"observed_fail"`
	Coverage       float64        `json:"coverage"`
	Tier           RunTier        `json:"tier"`
	Status         ManifestStatus `json:"status"`
	CreatedAt      time.Time      `json:"created_at"`
	ClosedAt       *time.Time     `json:"closed_at,omitempty"`
}

// Checkpoint is a full snapshot of a run sufficient to rehydrate a fresh
// manager, including in-flight (running) placeholders.
type Checkpoint struct {
	Manifest     RunManifest   `json:"manifest"`
	Observations []Observation `json:"observations"`
	Timestamp    time.Time     `json:"timestamp"`
}

// Event is an orchestration signal emitted by the manifest manager
// (manifest.opened, run.ready, gapfill.ready, mii.skipped, manifest.closed).
type Event struct {
	Type      string         `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Payload   map[string]any `json:"payload"`
}
