// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package sandbox

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Pool runs blocking filesystem work (symlink resolution, stat) off the
// request goroutine so it never starves the I/O scheduler. Grounded on the
// bounded-goroutine discipline of xg2g's session_registry.go, expressed
// here as a semaphore-bounded dispatcher rather than a join-on-shutdown
// registry since sandbox calls are short-lived and per-request.
type Pool struct {
	sem   *semaphore.Weighted
	cache *CachingResolver
}

// NewPool creates a blocking pool with the given concurrency ceiling.
func NewPool(concurrency int64) *Pool {
	if concurrency <= 0 {
		concurrency = 16
	}
	return &Pool{sem: semaphore.NewWeighted(concurrency)}
}

// WithCache attaches a CachingResolver so subsequent Resolve calls for its
// root skip the symlink-canonicalization walk on repeat lookups.
func (p *Pool) WithCache(cache *CachingResolver) *Pool {
	p.cache = cache
	return p
}

// Resolve runs Resolve on the pool, respecting ctx cancellation while
// waiting for a slot. When a CachingResolver is attached and root matches
// its configured root, the cache is consulted first.
func (p *Pool) Resolve(ctx context.Context, root, ref string) (string, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return "", ctx.Err()
	}
	defer p.sem.Release(1)
	if p.cache != nil && p.cache.root == root {
		return p.cache.Resolve(ref)
	}
	return Resolve(root, ref)
}
