package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetryVal_SucceedsFirstTry(t *testing.T) {
	val, attempts, err := RetryVal(context.Background(), DefaultRetryConfig(), func(_ context.Context) (string, error) {
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if val != "ok" {
		t.Errorf("expected ok, got %q", val)
	}
	if attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", attempts)
	}
}

func TestRetryVal_RetriesTransient(t *testing.T) {
	cfg := RetryConfig{
		MaxAttempts: 3,
		BaseBackoff: time.Millisecond,
		CapBackoff:  2 * time.Millisecond,
	}

	calls := 0
	val, attempts, err := RetryVal(context.Background(), cfg, func(_ context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", NewTransientError(errors.New("503"), 503)
		}
		return "recovered", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if val != "recovered" {
		t.Errorf("expected recovered, got %q", val)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestRetryVal_StopsOnPermanent(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 3, BaseBackoff: time.Millisecond}

	calls := 0
	_, attempts, err := RetryVal(context.Background(), cfg, func(_ context.Context) (string, error) {
		calls++
		return "", errors.New("bad request")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 || attempts != 1 {
		t.Errorf("permanent error should not be retried: calls=%d attempts=%d", calls, attempts)
	}
}

func TestRetryVal_ExhaustsAttempts(t *testing.T) {
	cfg := RetryConfig{
		MaxAttempts: 3,
		BaseBackoff: time.Millisecond,
		CapBackoff:  2 * time.Millisecond,
	}

	var attemptErrs []int
	cfg.OnAttempt = func(attempt int, _ error) {
		attemptErrs = append(attemptErrs, attempt)
	}

	_, attempts, err := RetryVal(context.Background(), cfg, func(_ context.Context) (string, error) {
		return "", NewTransientError(errors.New("502"), 502)
	})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
	if len(attemptErrs) != 3 {
		t.Errorf("expected one error record per attempt, got %d", len(attemptErrs))
	}
}

func TestRetryVal_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := RetryConfig{MaxAttempts: 5, BaseBackoff: time.Second}

	calls := 0
	_, _, err := RetryVal(ctx, cfg, func(_ context.Context) (string, error) {
		calls++
		cancel()
		return "", NewTransientError(errors.New("503"), 503)
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("cancelled context should stop retries, got %d calls", calls)
	}
}

func TestBackoff_ExponentialWithCap(t *testing.T) {
	cfg := RetryConfig{
		BaseBackoff:    time.Second,
		CapBackoff:     8 * time.Second,
		JitterFraction: 0, // deterministic
		MaxAttempts:    10,
	}

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 1 * time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 8 * time.Second}, // capped
	}
	for _, tc := range cases {
		if got := Backoff(tc.attempt, cfg); got != tc.want {
			t.Errorf("attempt %d: expected %v, got %v", tc.attempt, tc.want, got)
		}
	}
}

func TestBackoff_JitterBounds(t *testing.T) {
	cfg := RetryConfig{
		BaseBackoff:    time.Second,
		CapBackoff:     8 * time.Second,
		JitterFraction: 0.25,
		MaxAttempts:    10,
	}

	for i := 0; i < 100; i++ {
		d := Backoff(2, cfg)
		if d < 1500*time.Millisecond || d > 2500*time.Millisecond {
			t.Fatalf("jittered backoff %v outside ±25%% of 2s", d)
		}
	}
}
