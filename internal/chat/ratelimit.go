// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package chat

import (
	"sync"
	"time"
)

const (
	minMessageInterval = 2 * time.Second
	rateWindow         = 60 * time.Second
	maxPerWindow       = 20
)

// RateLimitResult reports whether a message is allowed and, if not, how
// long the caller must wait before retrying.
type RateLimitResult struct {
	Allowed           bool
	RetryAfterSeconds int
}

// Limiter is the rate-limiting port Service depends on. RateLimiter below
// is the default in-process implementation; RedisRateLimiter is a
// distributed alternative for multi-instance deployments.
type Limiter interface {
	Allow(userID string, now time.Time) RateLimitResult
}

type userRate struct {
	mu         sync.Mutex
	lastSentAt time.Time
	sentAt     []time.Time
}

// RateLimiter enforces the per-user chat rate limit of §4.12: at most one
// message every 2s, and no more than 20 messages per rolling 60s window.
type RateLimiter struct {
	mu    sync.Mutex
	users map[string]*userRate
}

// NewRateLimiter builds an empty limiter.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{users: make(map[string]*userRate)}
}

func (r *RateLimiter) userFor(userID string) *userRate {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		u = &userRate{}
		r.users[userID] = u
	}
	return u
}

// Allow records a message attempt at now and reports whether it is allowed.
func (r *RateLimiter) Allow(userID string, now time.Time) RateLimitResult {
	u := r.userFor(userID)
	u.mu.Lock()
	defer u.mu.Unlock()

	if !u.lastSentAt.IsZero() {
		if elapsed := now.Sub(u.lastSentAt); elapsed < minMessageInterval {
			wait := minMessageInterval - elapsed
			return RateLimitResult{Allowed: false, RetryAfterSeconds: ceilSeconds(wait)}
		}
	}

	windowStart := now.Add(-rateWindow)
	kept := u.sentAt[:0]
	for _, t := range u.sentAt {
		if t.After(windowStart) {
			kept = append(kept, t)
		}
	}
	u.sentAt = kept

	if len(u.sentAt) >= maxPerWindow {
		oldest := u.sentAt[0]
		wait := oldest.Add(rateWindow).Sub(now)
		return RateLimitResult{Allowed: false, RetryAfterSeconds: ceilSeconds(wait)}
	}

	u.lastSentAt = now
	u.sentAt = append(u.sentAt, now)
	return RateLimitResult{Allowed: true}
}

func ceilSeconds(d time.Duration) int {
	secs := int(d / time.Second)
	if d%time.Second != 0 {
		secs++
	}
	if secs < 1 {
		secs = 1
	}
	return secs
}

var _ Limiter = (*RateLimiter)(nil)
