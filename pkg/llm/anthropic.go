package llm

import (
	"context"
	"errors"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"

	"github.com/voxmetrics/sentinel/internal/resilience"
)

type anthropicClient struct {
	client    sdk.Client
	model     string
	maxTokens int64
}

// AnthropicOption configures the Anthropic client.
type AnthropicOption func(*anthropicClient)

// WithMaxTokens overrides the default completion budget.
func WithMaxTokens(n int64) AnthropicOption {
	return func(c *anthropicClient) {
		c.maxTokens = n
	}
}

// NewAnthropic creates a Client backed by the official Anthropic SDK. The
// SDK's internal retries are disabled; the execution engine owns retry policy.
func NewAnthropic(model, apiKey string, opts ...AnthropicOption) Client {
	c := &anthropicClient{
		client: sdk.NewClient(
			option.WithAPIKey(apiKey),
			option.WithMaxRetries(0),
		),
		model:     model,
		maxTokens: 1024,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *anthropicClient) Provider() string { return "anthropic" }
func (c *anthropicClient) Model() string    { return c.model }

func (c *anthropicClient) Complete(ctx context.Context, prompt string) (string, error) {
	msg, err := c.client.Messages.New(ctx, sdk.MessageNewParams{
		Model:     sdk.Model(c.model),
		MaxTokens: c.maxTokens,
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", classifyAnthropicErr(err)
	}

	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	return text, nil
}

func classifyAnthropicErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return resilience.NewTimeoutError(eris.Wrap(err, "llm: anthropic call timed out"))
	}

	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		wrapped := eris.Wrapf(err, "llm: anthropic returned %d", apiErr.StatusCode)
		if resilience.IsTransientHTTPStatus(apiErr.StatusCode) {
			return resilience.NewTransientError(wrapped, apiErr.StatusCode)
		}
		return wrapped
	}

	return resilience.NewTransientError(eris.Wrap(err, "llm: anthropic transport"), 0)
}
