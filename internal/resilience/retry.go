package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// RetryConfig controls retry behavior with exponential backoff.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts including the first try.
	// Default: 3.
	MaxAttempts int

	// BaseBackoff is the delay before the first retry. Each subsequent
	// retry doubles it: min(base * 2^(attempt-1), cap). Default: 1s.
	BaseBackoff time.Duration

	// CapBackoff bounds the backoff duration. Default: 8s.
	CapBackoff time.Duration

	// JitterFraction adds random jitter as a fraction of the computed
	// delay. Default: 0.25.
	JitterFraction float64

	// ShouldRetry overrides the default transient-error check.
	ShouldRetry func(err error) bool

	// OnAttempt is invoked after each failed attempt with the attempt
	// number (1-based) and the error, before any backoff sleep. The runner
	// uses it to capture one error record per failed attempt.
	OnAttempt func(attempt int, err error)
}

// DefaultRetryConfig returns the retry policy used for provider calls.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    3,
		BaseBackoff:    time.Second,
		CapBackoff:     8 * time.Second,
		JitterFraction: 0.25,
	}
}

// RetryVal executes fn with exponential backoff, retrying only transient
// errors. Context cancellation stops retries immediately. Returns the number
// of attempts made alongside the result.
func RetryVal[T any](ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) (T, error)) (T, int, error) {
	cfg = withRetryDefaults(cfg)

	shouldRetry := cfg.ShouldRetry
	if shouldRetry == nil {
		shouldRetry = IsTransient
	}

	var zero T
	var lastErr error
	attempts := 0
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		attempts = attempt
		val, err := fn(ctx)
		if err == nil {
			return val, attempts, nil
		}
		lastErr = err

		if cfg.OnAttempt != nil {
			cfg.OnAttempt(attempt, err)
		}

		if ctx.Err() != nil {
			return zero, attempts, lastErr
		}
		if !shouldRetry(lastErr) {
			return zero, attempts, lastErr
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		timer := time.NewTimer(Backoff(attempt, cfg))
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, attempts, lastErr
		case <-timer.C:
		}
	}

	return zero, attempts, lastErr
}

// Backoff computes the sleep before the retry following the given 1-based
// attempt: min(base * 2^(attempt-1), cap), plus jitter.
func Backoff(attempt int, cfg RetryConfig) time.Duration {
	cfg = withRetryDefaults(cfg)

	delay := float64(cfg.BaseBackoff) * math.Pow(2, float64(attempt-1))
	if delay > float64(cfg.CapBackoff) {
		delay = float64(cfg.CapBackoff)
	}

	if cfg.JitterFraction > 0 {
		jitterRange := delay * cfg.JitterFraction
		delay += (rand.Float64()*2 - 1) * jitterRange
	}
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

func withRetryDefaults(cfg RetryConfig) RetryConfig {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = time.Second
	}
	if cfg.CapBackoff <= 0 {
		cfg.CapBackoff = 8 * time.Second
	}
	if cfg.JitterFraction < 0 {
		cfg.JitterFraction = 0
	}
	return cfg
}

// AttemptLogger returns an OnAttempt callback that logs each failed attempt.
func AttemptLogger(provider, model string) func(int, error) {
	return func(attempt int, err error) {
		zap.L().Warn("provider call failed",
			zap.String("provider", provider),
			zap.String("model", model),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
}
