// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package chat

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRateLimiter enforces the same per-user chat rate limit as
// RateLimiter (one message per minMessageInterval, maxPerWindow per
// rateWindow) but shares state across every process behind a Redis
// instance, for deployments running more than one resonanced replica.
// Grounded on the sliding-window-counter approach xg2g's own
// internal/api/middleware/ratelimit.go delegates to httprate for HTTP
// routes, reimplemented here over Redis sorted sets since httprate itself
// is in-process-only and chat rate limiting must be shared cluster-wide.
type RedisRateLimiter struct {
	client *redis.Client
}

// NewRedisRateLimiter builds a limiter backed by client.
func NewRedisRateLimiter(client *redis.Client) *RedisRateLimiter {
	return &RedisRateLimiter{client: client}
}

var _ Limiter = (*RedisRateLimiter)(nil)

// Allow records a message attempt at now and reports whether it is
// allowed, using a last-sent key for the min-interval check and a sorted
// set (score = unix nanos) for the rolling-window count.
func (r *RedisRateLimiter) Allow(userID string, now time.Time) RateLimitResult {
	ctx := context.Background()
	lastKey := fmt.Sprintf("resonance:chat:last:%s", userID)
	windowKey := fmt.Sprintf("resonance:chat:window:%s", userID)

	lastSentAt, err := r.client.Get(ctx, lastKey).Int64()
	if err == nil {
		elapsed := now.Sub(time.Unix(0, lastSentAt))
		if elapsed < minMessageInterval {
			return RateLimitResult{Allowed: false, RetryAfterSeconds: ceilSeconds(minMessageInterval - elapsed)}
		}
	}

	windowStart := now.Add(-rateWindow)
	if err := r.client.ZRemRangeByScore(ctx, windowKey, "0", fmt.Sprintf("%d", windowStart.UnixNano())).Err(); err != nil {
		return RateLimitResult{Allowed: true}
	}

	count, err := r.client.ZCard(ctx, windowKey).Result()
	if err == nil && count >= maxPerWindow {
		oldest, err := r.client.ZRangeWithScores(ctx, windowKey, 0, 0).Result()
		if err == nil && len(oldest) == 1 {
			oldestAt := time.Unix(0, int64(oldest[0].Score))
			wait := oldestAt.Add(rateWindow).Sub(now)
			return RateLimitResult{Allowed: false, RetryAfterSeconds: ceilSeconds(wait)}
		}
		return RateLimitResult{Allowed: false, RetryAfterSeconds: ceilSeconds(rateWindow)}
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, lastKey, now.UnixNano(), rateWindow)
	pipe.ZAdd(ctx, windowKey, redis.Z{Score: float64(now.UnixNano()), Member: now.UnixNano()})
	pipe.Expire(ctx, windowKey, rateWindow)
	_, _ = pipe.Exec(ctx)

	return RateLimitResult{Allowed: true}
}
