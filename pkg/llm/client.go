// Package llm provides the provider client interface and implementations
// used by the query execution engine.
package llm

import "context"

// Client performs a single text-generation call against one provider model.
// Implementations must not retry internally; retries belong to the execution
// engine. A call timeout is applied through the context, and timeout errors
// must be distinguishable via resilience.IsTimeout.
type Client interface {
	// Complete sends the prompt and returns the raw response text.
	Complete(ctx context.Context, prompt string) (string, error)

	// Provider returns the provider name (e.g. "anthropic").
	Provider() string

	// Model returns the model identifier this client is bound to.
	Model() string
}
