package model

import "time"

// Provenance binds a stored response to the exact prompt version and call
// parameters that produced it, plus a canonical checksum of the normalized
// record. One row per response; the chain is append-only.
type Provenance struct {
	ResponseID    string    `json:"response_id"`
	RunID         string    `json:"run_id"`
	Subject       string    `json:"subject"`
	PromptID      string    `json:"prompt_id"`
	PromptVersion string    `json:"prompt_version"`
	Model         string    `json:"model"`
	Checksum      string    `json:"checksum"`
	CreatedAt     time.Time `json:"created_at"`
}
