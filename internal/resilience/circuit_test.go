package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestBreaker_ClosedPassesThrough(t *testing.T) {
	b := NewBreaker(DefaultBreakerConfig())

	var calls int
	err := b.Call(context.Background(), func(_ context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
	if b.State() != CircuitClosed {
		t.Errorf("expected closed, got %s", b.State())
	}
}

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b := NewBreaker(BreakerConfig{FailureThreshold: 3, ResetTimeout: time.Minute})

	for i := 0; i < 3; i++ {
		_ = b.Call(context.Background(), func(_ context.Context) error {
			return errors.New("fail")
		})
	}
	if b.State() != CircuitOpen {
		t.Fatalf("expected open after 3 failures, got %s", b.State())
	}

	err := b.Call(context.Background(), func(_ context.Context) error {
		t.Error("open circuit should not invoke fn")
		return nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen, got %v", err)
	}
}

func TestBreaker_HalfOpenRecovery(t *testing.T) {
	now := time.Now()
	b := NewBreaker(BreakerConfig{FailureThreshold: 1, ResetTimeout: 10 * time.Second})
	b.nowFunc = func() time.Time { return now }

	_ = b.Call(context.Background(), func(_ context.Context) error {
		return errors.New("fail")
	})
	if b.State() != CircuitOpen {
		t.Fatalf("expected open, got %s", b.State())
	}

	// Advance past the reset timeout; a successful probe closes the circuit.
	now = now.Add(11 * time.Second)
	if b.State() != CircuitHalfOpen {
		t.Fatalf("expected half-open after reset timeout, got %s", b.State())
	}

	err := b.Call(context.Background(), func(_ context.Context) error { return nil })
	if err != nil {
		t.Fatalf("probe should be allowed: %v", err)
	}
	if b.State() != CircuitClosed {
		t.Errorf("expected closed after successful probe, got %s", b.State())
	}
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	now := time.Now()
	b := NewBreaker(BreakerConfig{FailureThreshold: 1, ResetTimeout: 10 * time.Second})
	b.nowFunc = func() time.Time { return now }

	_ = b.Call(context.Background(), func(_ context.Context) error {
		return errors.New("fail")
	})
	now = now.Add(11 * time.Second)

	_ = b.Call(context.Background(), func(_ context.Context) error {
		return errors.New("still failing")
	})
	if b.State() != CircuitOpen {
		t.Errorf("failed probe should reopen circuit, got %s", b.State())
	}
}

func TestCallVal_PreservesValue(t *testing.T) {
	b := NewBreaker(DefaultBreakerConfig())
	val, err := CallVal(context.Background(), b, func(_ context.Context) (int, error) {
		return 42, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if val != 42 {
		t.Errorf("expected 42, got %d", val)
	}
}

func TestProviderBreakers_IsolatesProviders(t *testing.T) {
	pb := NewProviderBreakers(BreakerConfig{FailureThreshold: 1, ResetTimeout: time.Minute})

	_ = pb.Get("openai").Call(context.Background(), func(_ context.Context) error {
		return errors.New("down")
	})

	if pb.Get("openai").State() != CircuitOpen {
		t.Error("openai breaker should be open")
	}
	if pb.Get("anthropic").State() != CircuitClosed {
		t.Error("anthropic breaker should be unaffected")
	}

	states := pb.States()
	if len(states) != 2 {
		t.Errorf("expected 2 tracked providers, got %d", len(states))
	}
}

func TestProviderBreakers_ConcurrentGet(t *testing.T) {
	pb := NewProviderBreakers(DefaultBreakerConfig())

	var wg sync.WaitGroup
	breakers := make([]*Breaker, 32)
	for i := range breakers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			breakers[i] = pb.Get("shared")
		}(i)
	}
	wg.Wait()

	for i := 1; i < len(breakers); i++ {
		if breakers[i] != breakers[0] {
			t.Fatal("concurrent Get returned distinct breakers for same provider")
		}
	}
}
