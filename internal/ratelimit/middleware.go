package ratelimit

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// KeyTierFunc maps a request to its rate limit key and tier.
type KeyTierFunc func(r *http.Request) (string, Tier)

// DefaultKeyTier keys API-key requests by a key prefix and everything else
// by client IP on the free tier.
func DefaultKeyTier(r *http.Request) (string, Tier) {
	if apiKey := r.Header.Get("X-API-Key"); apiKey != "" {
		if len(apiKey) > 16 {
			apiKey = apiKey[:16]
		}
		return "api_key:" + apiKey, TierAPIKey
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host, TierFree
}

// Middleware enforces tiered limits and attaches X-RateLimit headers. Denied
// requests get a 429 with Retry-After; store errors fail open so a broken
// counter backend does not take the API down.
func Middleware(limiter *Limiter, keyTier KeyTierFunc) func(http.Handler) http.Handler {
	if keyTier == nil {
		keyTier = DefaultKeyTier
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key, tier := keyTier(r)

			result, err := limiter.Check(key, tier)
			if err != nil {
				zap.L().Error("rate limit check failed", zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Tier", string(result.Tier))

			if !result.Allowed {
				w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(result.Limit, 10))
				w.Header().Set("X-RateLimit-Remaining", "0")
				w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.Reset, 10))
				w.Header().Set("Retry-After", strconv.FormatInt(result.RetryAfter, 10))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]any{
					"error":       "rate limit exceeded",
					"limit_type":  result.LimitType,
					"retry_after": result.RetryAfter,
				})
				return
			}

			if hour, ok := result.Windows["per_hour"]; ok {
				w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(hour.Limit, 10))
				w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(hour.Remaining, 10))
				w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(nextHour(), 10))
			}
			next.ServeHTTP(w, r)
		})
	}
}

func nextHour() int64 {
	now := time.Now().Unix()
	return (now/3600 + 1) * 3600
}
