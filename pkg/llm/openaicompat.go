package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/voxmetrics/sentinel/internal/resilience"
)

// Base URLs for providers exposing OpenAI-shaped chat completion APIs.
var compatBaseURLs = map[string]string{
	"openai":     "https://api.openai.com/v1",
	"deepseek":   "https://api.deepseek.com",
	"mistral":    "https://api.mistral.ai/v1",
	"perplexity": "https://api.perplexity.ai",
	"groq":       "https://api.groq.com/openai/v1",
	"together":   "https://api.together.xyz/v1",
	"xai":        "https://api.x.ai/v1",
}

// chatRequest is the request body for POST /chat/completions.
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Choices []struct {
		Index   int         `json:"index"`
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// CompatOption configures an OpenAI-compatible client.
type CompatOption func(*compatClient)

// WithBaseURL overrides the provider's default API base URL.
func WithBaseURL(url string) CompatOption {
	return func(c *compatClient) {
		c.baseURL = url
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) CompatOption {
	return func(c *compatClient) {
		c.http = hc
	}
}

// WithParams sets generation parameters sent on every call.
func WithParams(temperature float64, maxTokens int) CompatOption {
	return func(c *compatClient) {
		c.temperature = &temperature
		c.maxTokens = &maxTokens
	}
}

type compatClient struct {
	provider    string
	model       string
	apiKey      string
	baseURL     string
	temperature *float64
	maxTokens   *int
	http        *http.Client
}

// NewCompat creates a client for a provider with an OpenAI-shaped chat
// completions endpoint (openai, deepseek, mistral, perplexity, groq,
// together, xai).
func NewCompat(provider, model, apiKey string, opts ...CompatOption) (Client, error) {
	base, ok := compatBaseURLs[provider]
	if !ok {
		return nil, eris.Errorf("llm: unknown openai-compatible provider %q", provider)
	}
	c := &compatClient{
		provider: provider,
		model:    model,
		apiKey:   apiKey,
		baseURL:  base,
		http: &http.Client{
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

func (c *compatClient) Provider() string { return c.provider }
func (c *compatClient) Model() string    { return c.model }

func (c *compatClient) Complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		return "", eris.Wrap(err, "llm: marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", eris.Wrap(err, "llm: build request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if resilience.IsTimeout(err) || ctx.Err() == context.DeadlineExceeded {
			return "", resilience.NewTimeoutError(eris.Wrapf(err, "llm: %s call timed out", c.provider))
		}
		return "", resilience.NewTransientError(eris.Wrapf(err, "llm: %s transport", c.provider), 0)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", resilience.NewTransientError(eris.Wrapf(err, "llm: %s read body", c.provider), resp.StatusCode)
	}

	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("llm: %s returned %d: %s", c.provider, resp.StatusCode, truncate(string(payload), 200))
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return "", resilience.NewTransientError(err, resp.StatusCode)
		}
		return "", err
	}

	var parsed chatResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return "", eris.Wrapf(err, "llm: %s decode response", c.provider)
	}
	if len(parsed.Choices) == 0 {
		return "", nil
	}
	return parsed.Choices[0].Message.Content, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
