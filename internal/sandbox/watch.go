// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package sandbox

import (
	"context"
	"io/fs"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/resonance-audio/resonance/internal/log"
)

// CachingResolver memoizes Resolve results for a library root so repeated
// lookups of the same relative reference skip the symlink-canonicalization
// walk. A LibraryWatcher invalidates the whole cache whenever the root
// changes on disk (rescans, moves, deletions), so a stale sandboxed path
// is never served after a library reorganization. Grounded on xg2g's
// internal/proxy/watcher.go fsnotify usage, adapted from "wait for one
// file to appear" to "invalidate a cache on any change under a tree".
type CachingResolver struct {
	root string

	mu    sync.RWMutex
	cache map[string]string
}

// NewCachingResolver builds a resolver rooted at root with an empty cache.
func NewCachingResolver(root string) *CachingResolver {
	return &CachingResolver{root: root, cache: make(map[string]string)}
}

// Resolve returns the cached canonical path for ref if known, else
// resolves it via Resolve and caches the result. Errors are never cached,
// since a NotFound/Forbidden result may become valid once the library
// changes (and the cache invalidates on exactly that event).
func (c *CachingResolver) Resolve(ref string) (string, error) {
	c.mu.RLock()
	if cached, ok := c.cache[ref]; ok {
		c.mu.RUnlock()
		return cached, nil
	}
	c.mu.RUnlock()

	resolved, err := Resolve(c.root, ref)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.cache[ref] = resolved
	c.mu.Unlock()
	return resolved, nil
}

// invalidate drops every cached entry.
func (c *CachingResolver) invalidate() {
	c.mu.Lock()
	c.cache = make(map[string]string)
	c.mu.Unlock()
}

// LibraryWatcher watches a library root with fsnotify and invalidates a
// CachingResolver's cache on any filesystem event under it, so renamed or
// deleted tracks never serve a stale resolved path.
type LibraryWatcher struct {
	watcher  *fsnotify.Watcher
	resolver *CachingResolver
}

// NewLibraryWatcher starts watching root and every directory under it at
// the time of the call (directories created later are not added to the
// watch), and returns a watcher that must be stopped with Close.
// Non-fatal: if the watch cannot be established (root missing, platform limits), it logs and returns a no-op watcher
// rather than failing startup, since stale-cache invalidation is a
// latency optimization, not a correctness requirement.
func NewLibraryWatcher(root string, resolver *CachingResolver) *LibraryWatcher {
	logger := log.WithComponent("sandbox.watcher")

	w, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warn().Err(err).Msg("fsnotify unavailable, resolved-path cache will not auto-invalidate")
		return &LibraryWatcher{}
	}
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
	if err != nil {
		logger.Warn().Err(err).Str("root", root).Msg("failed to watch library root")
		_ = w.Close()
		return &LibraryWatcher{}
	}

	return &LibraryWatcher{watcher: w, resolver: resolver}
}

// Run blocks, invalidating resolver on every filesystem event until ctx is
// canceled or the watcher is closed.
func (lw *LibraryWatcher) Run(ctx context.Context) {
	if lw.watcher == nil {
		<-ctx.Done()
		return
	}
	logger := log.WithComponent("sandbox.watcher")
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-lw.watcher.Events:
			if !ok {
				return
			}
			logger.Debug().Str("event", event.String()).Msg("library root changed, invalidating resolved-path cache")
			lw.resolver.invalidate()
		case err, ok := <-lw.watcher.Errors:
			if !ok {
				return
			}
			logger.Warn().Err(err).Msg("library watcher error")
		}
	}
}

// Close stops the underlying fsnotify watcher, if any.
func (lw *LibraryWatcher) Close() error {
	if lw.watcher == nil {
		return nil
	}
	return lw.watcher.Close()
}
