// Package model defines the typed records passed between crawl stages.
package model

import "time"

// ResponseStatus is the terminal outcome of a single provider call.
type ResponseStatus string

const (
	ResponseSuccess ResponseStatus = "success"
	ResponseFailed  ResponseStatus = "failed"
	ResponseTimeout ResponseStatus = "timeout"
	ResponseSkipped ResponseStatus = "skipped"
)

// ResponseRaw is one persisted provider answer. ID is deterministic over
// (subject, prompt_id, model, minute bucket), so re-ingesting the same
// logical event is a no-op at the store.
type ResponseRaw struct {
	ID        string         `json:"id"`
	Subject   string         `json:"subject"`
	PromptID  string         `json:"prompt_id"`
	Model     string         `json:"model"`
	TS        time.Time      `json:"ts_iso"`
	Raw       string         `json:"raw"`
	Status    ResponseStatus `json:"status"`
	LatencyMS int            `json:"latency_ms"`
	Attempt   int            `json:"attempt"`
}

// NormalizedStatus classifies what the normalizer made of a raw response.
type NormalizedStatus string

const (
	NormalizedValid     NormalizedStatus = "valid"
	NormalizedEmpty     NormalizedStatus = "empty"
	NormalizedMalformed NormalizedStatus = "malformed"
)

// ResponseNormalized is the structured form of a ResponseRaw, derived 1:1.
type ResponseNormalized struct {
	ID         string           `json:"id"`
	Subject    string           `json:"subject"`
	PromptID   string           `json:"prompt_id"`
	Model      string           `json:"model"`
	TS         time.Time        `json:"ts_iso"`
	Answer     string           `json:"answer"`
	Confidence *float64         `json:"confidence,omitempty"`
	Citations  []string         `json:"citations,omitempty"`
	Status     NormalizedStatus `json:"normalized_status"`
	RawRef     string           `json:"raw_ref"`
}

// QueryError records a single failed attempt at a triple. Errors are data
// returned alongside rows, never a reason to abort a batch.
type QueryError struct {
	Subject  string `json:"subject"`
	PromptID string `json:"prompt_id"`
	Model    string `json:"model"`
	Reason   string `json:"reason"`
	Attempt  int    `json:"attempt"`
}
