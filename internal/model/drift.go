package model

import "time"

// DriftStatus classifies answer stability for a tracked triple.
type DriftStatus string

const (
	DriftStable   DriftStatus = "stable"
	DriftDrifting DriftStatus = "drifting"
	DriftDecayed  DriftStatus = "decayed"
)

// DriftScore is the result of comparing a normalized answer to the prior
// answer for the same (subject, prompt, model) key.
type DriftScore struct {
	DriftID        string      `json:"drift_id"`
	Subject        string      `json:"subject"`
	PromptID       string      `json:"prompt_id"`
	Model          string      `json:"model"`
	TS             time.Time   `json:"ts_iso"`
	SimilarityPrev float64     `json:"similarity_prev"`
	Drift          float64     `json:"drift_score"`
	Status         DriftStatus `json:"status"`
	Explanation    string      `json:"explanation"`
}

// DriftAlert is emitted for every drifting or decayed classification.
// Delivery is fire-and-forget and must never block detection.
type DriftAlert struct {
	Subject  string      `json:"subject"`
	PromptID string      `json:"prompt_id"`
	Model    string      `json:"model"`
	Drift    float64     `json:"drift_score"`
	Status   DriftStatus `json:"status"`
	TS       time.Time   `json:"ts_iso"`
}
