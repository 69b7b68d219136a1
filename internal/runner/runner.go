// Package runner is the query execution engine: it fans out
// (subject × prompt × model) calls across providers with bounded
// concurrency, per-call timeouts, retry with backoff, and per-provider
// circuit breaking.
package runner

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/voxmetrics/sentinel/internal/identity"
	"github.com/voxmetrics/sentinel/internal/model"
	"github.com/voxmetrics/sentinel/internal/resilience"
	"github.com/voxmetrics/sentinel/pkg/llm"
)

// Options configures an Engine.
type Options struct {
	// RequestTimeout bounds each individual provider call. Default: 30s.
	RequestTimeout time.Duration

	// MaxRetries is the total attempts per triple. Default: 3.
	MaxRetries int

	// BackoffBase and BackoffCap shape the retry schedule
	// min(base * 2^(attempt-1), cap). Defaults: 1s / 8s.
	BackoffBase time.Duration
	BackoffCap  time.Duration

	// MaxConcurrent bounds in-flight triples across all providers.
	// Default: 8.
	MaxConcurrent int

	// ProviderRPS paces outbound calls per provider. Zero disables pacing.
	ProviderRPS float64

	// Breakers supplies per-provider circuit breakers. Nil disables
	// circuit breaking.
	Breakers *resilience.ProviderBreakers

	// OnStart, if set, is invoked when a triple begins executing.
	OnStart func(combo model.Combo)

	// OnResult, if set, is invoked with each terminal row as it is
	// produced, before RunBatch returns. Used by the crawl driver to keep
	// the run manifest current for checkpointing.
	OnResult func(row model.ResponseRaw)

	// now is injectable for tests.
	now func() time.Time
}

func (o Options) withDefaults() Options {
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = 30 * time.Second
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = 3
	}
	if o.BackoffBase <= 0 {
		o.BackoffBase = time.Second
	}
	if o.BackoffCap <= 0 {
		o.BackoffCap = 8 * time.Second
	}
	if o.MaxConcurrent <= 0 {
		o.MaxConcurrent = 8
	}
	if o.now == nil {
		o.now = time.Now
	}
	return o
}

// Engine executes crawl batches against a fixed client registry.
type Engine struct {
	clients *ClientRegistry
	opts    Options

	limiterMu sync.Mutex
	limiters  map[string]*rate.Limiter
}

// NewEngine creates an execution engine over the given clients.
func NewEngine(clients *ClientRegistry, opts Options) *Engine {
	return &Engine{
		clients:  clients,
		opts:     opts.withDefaults(),
		limiters: make(map[string]*rate.Limiter),
	}
}

// BatchResult carries the terminal rows and per-attempt error records for
// one batch. Failures are data; a batch never aborts on an individual triple.
type BatchResult struct {
	Rows   []model.ResponseRaw
	Errors []model.QueryError
}

// RunBatch executes every (subject, prompt, model) triple and returns one
// terminal row per triple. The minute bucket is fixed at batch start so all
// rows in the batch share idempotent IDs. Cancelling ctx stops scheduling
// new triples; in-flight calls finish or hit their own timeout.
func (e *Engine) RunBatch(ctx context.Context, subjects []string, prompts []model.Prompt, models []string) (*BatchResult, error) {
	bucket := identity.MinuteBucket(e.opts.now())

	result := &BatchResult{}
	var mu sync.Mutex

	g := new(errgroup.Group)
	g.SetLimit(e.opts.MaxConcurrent)

	scheduled := 0
	for _, subject := range subjects {
		for _, prompt := range prompts {
			for _, modelName := range models {
				if ctx.Err() != nil {
					zap.L().Info("batch cancelled, not scheduling remaining triples",
						zap.Int("scheduled", scheduled),
					)
					goto drain
				}
				scheduled++

				combo := model.Combo{Subject: subject, PromptID: prompt.PromptID, Model: modelName}
				text := prompt.Render(subject)
				g.Go(func() error {
					row, errs := e.runOne(ctx, combo, text, bucket)
					if e.opts.OnResult != nil {
						e.opts.OnResult(row)
					}
					mu.Lock()
					result.Rows = append(result.Rows, row)
					result.Errors = append(result.Errors, errs...)
					mu.Unlock()
					return nil
				})
			}
		}
	}

drain:
	_ = g.Wait()
	return result, nil
}

// runOne executes a single triple to a terminal row plus its attempt errors.
func (e *Engine) runOne(ctx context.Context, combo model.Combo, text string, bucket time.Time) (model.ResponseRaw, []model.QueryError) {
	row := model.ResponseRaw{
		ID:       identity.DeriveID(combo.Subject, combo.PromptID, combo.Model, bucket),
		Subject:  combo.Subject,
		PromptID: combo.PromptID,
		Model:    combo.Model,
		TS:       bucket,
	}

	client := e.clients.Get(combo.Model)
	if client == nil {
		row.Status = model.ResponseSkipped
		return row, []model.QueryError{{
			Subject:  combo.Subject,
			PromptID: combo.PromptID,
			Model:    combo.Model,
			Reason:   "model_not_available",
			Attempt:  0,
		}}
	}

	if e.opts.OnStart != nil {
		e.opts.OnStart(combo)
	}

	var attemptErrs []model.QueryError
	retryCfg := resilience.RetryConfig{
		MaxAttempts: e.opts.MaxRetries,
		BaseBackoff: e.opts.BackoffBase,
		CapBackoff:  e.opts.BackoffCap,
		OnAttempt: func(attempt int, err error) {
			attemptErrs = append(attemptErrs, model.QueryError{
				Subject:  combo.Subject,
				PromptID: combo.PromptID,
				Model:    combo.Model,
				Reason:   reasonFor(err),
				Attempt:  attempt,
			})
			resilience.AttemptLogger(client.Provider(), combo.Model)(attempt, err)
		},
	}

	start := e.opts.now()
	raw, attempts, err := resilience.RetryVal(ctx, retryCfg, func(ctx context.Context) (string, error) {
		return e.callProvider(ctx, client, text)
	})
	row.LatencyMS = int(e.opts.now().Sub(start).Milliseconds())
	row.Attempt = attempts

	switch {
	case err == nil && strings.TrimSpace(raw) != "":
		row.Raw = raw
		row.Status = model.ResponseSuccess
	case err == nil:
		// A 200-equivalent call with empty content is a failure, not a success.
		row.Status = model.ResponseFailed
		attemptErrs = append(attemptErrs, model.QueryError{
			Subject:  combo.Subject,
			PromptID: combo.PromptID,
			Model:    combo.Model,
			Reason:   "empty_response",
			Attempt:  attempts,
		})
	case resilience.IsTimeout(err):
		row.Status = model.ResponseTimeout
	default:
		row.Status = model.ResponseFailed
	}

	return row, attemptErrs
}

// callProvider applies rate pacing, the circuit breaker, and the per-call
// timeout around a single attempt. The call context is detached from batch
// cancellation so an in-flight call runs to completion or its own deadline.
func (e *Engine) callProvider(ctx context.Context, client llm.Client, text string) (string, error) {
	if lim := e.limiterFor(client.Provider()); lim != nil {
		if err := lim.Wait(ctx); err != nil {
			return "", err
		}
	}

	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.opts.RequestTimeout)
	defer cancel()

	if e.opts.Breakers != nil {
		breaker := e.opts.Breakers.Get(client.Provider())
		return resilience.CallVal(callCtx, breaker, func(ctx context.Context) (string, error) {
			return client.Complete(ctx, text)
		})
	}
	return client.Complete(callCtx, text)
}

func (e *Engine) limiterFor(provider string) *rate.Limiter {
	if e.opts.ProviderRPS <= 0 {
		return nil
	}
	e.limiterMu.Lock()
	defer e.limiterMu.Unlock()
	lim, ok := e.limiters[provider]
	if !ok {
		burst := int(e.opts.ProviderRPS)
		if burst < 1 {
			burst = 1
		}
		lim = rate.NewLimiter(rate.Limit(e.opts.ProviderRPS), burst)
		e.limiters[provider] = lim
	}
	return lim
}

func reasonFor(err error) string {
	switch {
	case err == nil:
		return ""
	case resilience.IsTimeout(err):
		return "timeout"
	default:
		return err.Error()
	}
}
