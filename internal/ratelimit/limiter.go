// Package ratelimit enforces nested per-tier request budgets: burst, minute,
// hour, and day windows evaluated in that order.
package ratelimit

import (
	"fmt"
	"sync"
	"time"

	"github.com/rotisserie/eris"
)

// Tier names a rate limit budget class.
type Tier string

const (
	TierFree       Tier = "free"
	TierPro        Tier = "pro"
	TierEnterprise Tier = "enterprise"
	TierAPIKey     Tier = "api_key"
)

// Limits is the budget for one tier across all windows.
type Limits struct {
	Burst     int64
	PerMinute int64
	PerHour   int64
	PerDay    int64
}

var tierLimits = map[Tier]Limits{
	TierFree:       {Burst: 5, PerMinute: 10, PerHour: 100, PerDay: 1000},
	TierPro:        {Burst: 20, PerMinute: 100, PerHour: 5000, PerDay: 50000},
	TierEnterprise: {Burst: 100, PerMinute: 1000, PerHour: 50000, PerDay: 500000},
	TierAPIKey:     {Burst: 50, PerMinute: 200, PerHour: 10000, PerDay: 100000},
}

// TierLimits returns the budget for a tier, falling back to free for
// unknown tiers.
func TierLimits(tier Tier) Limits {
	if l, ok := tierLimits[tier]; ok {
		return l
	}
	return tierLimits[TierFree]
}

// CounterStore increments windowed counters with a TTL. The in-memory
// implementation below is per-process; a shared store (Redis or Postgres)
// slots in behind the same interface for multi-instance deployments.
type CounterStore interface {
	Incr(key string, ttl time.Duration) (int64, error)
}

// Window reports one limit window's state after an allowed check.
type Window struct {
	Limit     int64 `json:"limit"`
	Remaining int64 `json:"remaining"`
}

// Result is the outcome of one rate limit check.
type Result struct {
	Allowed bool `json:"allowed"`
	Tier    Tier `json:"tier"`

	// Set when denied.
	LimitType  string `json:"limit_type,omitempty"`
	Limit      int64  `json:"limit,omitempty"`
	Reset      int64  `json:"reset,omitempty"`
	RetryAfter int64  `json:"retry_after,omitempty"`

	// Set when allowed, keyed by window name.
	Windows map[string]Window `json:"windows,omitempty"`
}

// Limiter evaluates tiered budgets against a counter store.
type Limiter struct {
	store   CounterStore
	nowFunc func() time.Time
}

// NewLimiter wires a limiter to a counter store.
func NewLimiter(store CounterStore) *Limiter {
	return &Limiter{store: store, nowFunc: time.Now}
}

// Check consumes one request for key under tier. Windows are checked
// narrowest first and the check short-circuits at the first violation, so a
// burst denial does not burn minute/hour/day budget.
func (l *Limiter) Check(key string, tier Tier) (Result, error) {
	limits := TierLimits(tier)
	now := l.nowFunc()
	unix := now.Unix()

	burstCount, err := l.store.Incr(fmt.Sprintf("rl:burst:%s", key), time.Second)
	if err != nil {
		return Result{}, eris.Wrap(err, "ratelimit: burst counter")
	}
	if burstCount > limits.Burst {
		return denied(tier, "burst", limits.Burst, unix+1, 1), nil
	}

	minuteCount, err := l.store.Incr(fmt.Sprintf("rl:minute:%s:%d", key, unix/60), time.Minute)
	if err != nil {
		return Result{}, eris.Wrap(err, "ratelimit: minute counter")
	}
	if minuteCount > limits.PerMinute {
		reset := (unix/60 + 1) * 60
		return denied(tier, "per_minute", limits.PerMinute, reset, reset-unix), nil
	}

	hourCount, err := l.store.Incr(fmt.Sprintf("rl:hour:%s:%d", key, unix/3600), time.Hour)
	if err != nil {
		return Result{}, eris.Wrap(err, "ratelimit: hour counter")
	}
	if hourCount > limits.PerHour {
		reset := (unix/3600 + 1) * 3600
		return denied(tier, "per_hour", limits.PerHour, reset, reset-unix), nil
	}

	dayCount, err := l.store.Incr(fmt.Sprintf("rl:day:%s:%d", key, unix/86400), 24*time.Hour)
	if err != nil {
		return Result{}, eris.Wrap(err, "ratelimit: day counter")
	}
	if dayCount > limits.PerDay {
		reset := (unix/86400 + 1) * 86400
		return denied(tier, "per_day", limits.PerDay, reset, reset-unix), nil
	}

	return Result{
		Allowed: true,
		Tier:    tier,
		Windows: map[string]Window{
			"burst":      {Limit: limits.Burst, Remaining: limits.Burst - burstCount},
			"per_minute": {Limit: limits.PerMinute, Remaining: limits.PerMinute - minuteCount},
			"per_hour":   {Limit: limits.PerHour, Remaining: limits.PerHour - hourCount},
			"per_day":    {Limit: limits.PerDay, Remaining: limits.PerDay - dayCount},
		},
	}, nil
}

func denied(tier Tier, limitType string, limit, reset, retryAfter int64) Result {
	return Result{
		Tier:       tier,
		LimitType:  limitType,
		Limit:      limit,
		Reset:      reset,
		RetryAfter: retryAfter,
	}
}

// MemoryStore is a process-local CounterStore. Counters are not shared
// across instances; budgets hold per process, not per fleet.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	nowFunc func() time.Time
}

type memoryEntry struct {
	count   int64
	expires time.Time
}

// NewMemoryStore returns an empty in-memory counter store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*memoryEntry),
		nowFunc: time.Now,
	}
}

// Incr bumps the counter, resetting it if its TTL lapsed. The occasional
// sweep keeps abandoned window keys from accumulating.
func (s *MemoryStore) Incr(key string, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.nowFunc()
	e, ok := s.entries[key]
	if !ok || now.After(e.expires) {
		e = &memoryEntry{expires: now.Add(ttl)}
		s.entries[key] = e
	}
	e.count++

	if len(s.entries) > 4096 {
		s.sweep(now)
	}
	return e.count, nil
}

// Len reports how many live counters are held.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// sweep drops expired counters. Callers hold s.mu.
func (s *MemoryStore) sweep(now time.Time) {
	for key, e := range s.entries {
		if now.After(e.expires) {
			delete(s.entries, key)
		}
	}
}
