package middleware

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"chatrooms/internal/metrics"
)

// RateLimiter implements fixed-window rate limiting backed by Redis.
// The window is keyed per authenticated account.
type RateLimiter struct {
	client   *redis.Client
	logger   zerolog.Logger
	requests int
	window   time.Duration
}

func NewRateLimiter(client *redis.Client, logger zerolog.Logger, requests int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		client:   client,
		logger:   logger,
		requests: requests,
		window:   window,
	}
}

// Allow reports whether another request is permitted for key. Redis
// failures allow the request through rather than locking everyone out.
func (rl *RateLimiter) Allow(ctx context.Context, key string) bool {
	redisKey := fmt.Sprintf("ratelimit:%s:%d", key, time.Now().Unix()/int64(rl.window.Seconds()))

	count, err := rl.client.Incr(ctx, redisKey).Result()
	if err != nil {
		rl.logger.Warn().Err(err).Msg("rate limiter unavailable, allowing request")
		return true
	}
	if count == 1 {
		rl.client.Expire(ctx, redisKey, rl.window)
	}

	if count > int64(rl.requests) {
		metrics.RateLimitHits.Inc()
		return false
	}
	return true
}

// Middleware enforces the limit for the authenticated account.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := IdentityFrom(r.Context())
		if !ok {
			next.ServeHTTP(w, r)
			return
		}
		if !rl.Allow(r.Context(), id.ID) {
			w.Header().Set("Retry-After", fmt.Sprintf("%d", int(rl.window.Seconds())))
			http.Error(w, "too many requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
