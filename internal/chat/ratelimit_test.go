// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package chat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiter_FirstMessageAllowed(t *testing.T) {
	rl := NewRateLimiter()
	res := rl.Allow("user-1", time.Now())
	assert.True(t, res.Allowed)
}

func TestRateLimiter_RejectsWithinMinInterval(t *testing.T) {
	rl := NewRateLimiter()
	now := time.Now()
	rl.Allow("user-1", now)

	res := rl.Allow("user-1", now.Add(500*time.Millisecond))
	assert.False(t, res.Allowed)
	assert.GreaterOrEqual(t, res.RetryAfterSeconds, 1)
}

func TestRateLimiter_AllowsAfterMinInterval(t *testing.T) {
	rl := NewRateLimiter()
	now := time.Now()
	rl.Allow("user-1", now)

	res := rl.Allow("user-1", now.Add(2*time.Second+time.Millisecond))
	assert.True(t, res.Allowed)
}

func TestRateLimiter_RejectsOverWindowCap(t *testing.T) {
	rl := NewRateLimiter()
	now := time.Now()
	for i := 0; i < maxPerWindow; i++ {
		now = now.Add(minMessageInterval)
		res := rl.Allow("user-1", now)
		assert.True(t, res.Allowed, "message %d should be allowed", i)
	}

	now = now.Add(minMessageInterval)
	res := rl.Allow("user-1", now)
	assert.False(t, res.Allowed)
}

func TestRateLimiter_DifferentUsersIndependent(t *testing.T) {
	rl := NewRateLimiter()
	now := time.Now()
	rl.Allow("user-1", now)

	res := rl.Allow("user-2", now)
	assert.True(t, res.Allowed)
}

func TestRateLimiter_WindowSlidesOldMessagesOut(t *testing.T) {
	rl := NewRateLimiter()
	now := time.Now()
	for i := 0; i < maxPerWindow; i++ {
		now = now.Add(minMessageInterval)
		rl.Allow("user-1", now)
	}

	later := now.Add(rateWindow + time.Second)
	res := rl.Allow("user-1", later)
	assert.True(t, res.Allowed)
}
