package ratelimit

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newTestLimiter(now *time.Time) *Limiter {
	store := NewMemoryStore()
	store.nowFunc = func() time.Time { return *now }
	l := NewLimiter(store)
	l.nowFunc = func() time.Time { return *now }
	return l
}

func TestBurstLimitShortCircuits(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	l := newTestLimiter(&now)

	for i := 0; i < 5; i++ {
		res, err := l.Check("ip:10.0.0.1", TierFree)
		require.NoError(t, err)
		assert.True(t, res.Allowed, "request %d", i)
	}

	res, err := l.Check("ip:10.0.0.1", TierFree)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, "burst", res.LimitType)
	assert.Equal(t, int64(5), res.Limit)
	assert.Equal(t, int64(1), res.RetryAfter)
}

func TestBurstWindowResets(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	l := newTestLimiter(&now)

	for i := 0; i < 6; i++ {
		l.Check("ip:10.0.0.1", TierFree)
	}

	now = now.Add(2 * time.Second)
	res, err := l.Check("ip:10.0.0.1", TierFree)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestMinuteLimit(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	l := newTestLimiter(&now)

	// Spread requests so burst never trips: free allows 10/minute.
	allowed := 0
	for i := 0; i < 12; i++ {
		res, err := l.Check("ip:10.0.0.2", TierFree)
		require.NoError(t, err)
		if res.Allowed {
			allowed++
		} else {
			assert.Equal(t, "per_minute", res.LimitType)
			assert.Positive(t, res.RetryAfter)
		}
		now = now.Add(2 * time.Second)
	}
	assert.Equal(t, 10, allowed)
}

func TestAllowedResultCarriesAllWindows(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	l := newTestLimiter(&now)

	res, err := l.Check("api_key:sk-sentinel-abc", TierAPIKey)
	require.NoError(t, err)
	require.True(t, res.Allowed)

	assert.Equal(t, int64(49), res.Windows["burst"].Remaining)
	assert.Equal(t, int64(199), res.Windows["per_minute"].Remaining)
	assert.Equal(t, int64(9999), res.Windows["per_hour"].Remaining)
	assert.Equal(t, int64(99999), res.Windows["per_day"].Remaining)
}

func TestKeysAreIsolated(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	l := newTestLimiter(&now)

	for i := 0; i < 6; i++ {
		l.Check("ip:10.0.0.1", TierFree)
	}

	res, err := l.Check("ip:10.0.0.9", TierFree)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestTiersHaveDistinctBudgets(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	l := newTestLimiter(&now)

	// Request 10 in the same second: free trips at burst 5, pro does not.
	freeDenied, proDenied := 0, 0
	for i := 0; i < 10; i++ {
		if res, _ := l.Check("free-key", TierFree); !res.Allowed {
			freeDenied++
		}
		if res, _ := l.Check("pro-key", TierPro); !res.Allowed {
			proDenied++
		}
	}
	assert.Equal(t, 5, freeDenied)
	assert.Zero(t, proDenied)
}

func TestUnknownTierFallsBackToFree(t *testing.T) {
	assert.Equal(t, TierLimits(TierFree), TierLimits(Tier("mystery")))
}

func TestMemoryStoreSweep(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	store := NewMemoryStore()
	store.nowFunc = func() time.Time { return now }

	for i := 0; i < 5000; i++ {
		_, err := store.Incr(fmt.Sprintf("rl:burst:key-%d", i), time.Second)
		require.NoError(t, err)
	}

	// All burst entries expire; the next insert past the threshold sweeps.
	now = now.Add(5 * time.Second)
	_, err := store.Incr("rl:burst:fresh", time.Second)
	require.NoError(t, err)
	assert.Less(t, store.Len(), 10)
}

func TestMiddlewareHeaders(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	l := newTestLimiter(&now)

	handler := Middleware(l, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/mii", nil)
	req.Header.Set("X-API-Key", "sk-sentinel-0123456789abcdef")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "api_key", rec.Header().Get("X-RateLimit-Tier"))
	assert.Equal(t, "10000", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "9999", rec.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Reset"))
}

func TestMiddlewareDenies(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	l := newTestLimiter(&now)

	handler := Middleware(l, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	var last *httptest.ResponseRecorder
	for i := 0; i < 6; i++ {
		req := httptest.NewRequest(http.MethodGet, "/v1/mii", nil)
		req.RemoteAddr = "10.0.0.1:52000"
		last = httptest.NewRecorder()
		handler.ServeHTTP(last, req)
	}

	assert.Equal(t, http.StatusTooManyRequests, last.Code)
	assert.Equal(t, "0", last.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, "1", last.Header().Get("Retry-After"))
	assert.Contains(t, last.Body.String(), "burst")
}

func TestDefaultKeyTier(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.168.1.50:41000"
	key, tier := DefaultKeyTier(req)
	assert.Equal(t, "ip:192.168.1.50", key)
	assert.Equal(t, TierFree, tier)

	req.Header.Set("X-API-Key", "sk-sentinel-0123456789abcdef")
	key, tier = DefaultKeyTier(req)
	assert.Equal(t, "api_key:sk-sentinel-0123", key)
	assert.Equal(t, TierAPIKey, tier)
}
