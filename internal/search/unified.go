// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package search

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// UnifiedResult aggregates per-index results; ProcessingTimeMs is the
// largest per-index processing time reported by the backend.
type UnifiedResult struct {
	ByIndex          map[IndexName]Result
	TotalHits        int
	ProcessingTimeMs int64
}

// Unified fans out query across all three indexes in parallel, validating
// filter (if non-empty) against each index's allowlist before dispatch.
// The backend is never called for an index whose filter fails validation.
func Unified(ctx context.Context, backend Backend, query, filter string, limit int) (UnifiedResult, error) {
	names := []IndexName{IndexTracks, IndexAlbums, IndexArtists}
	results := make([]Result, len(names))

	if filter != "" {
		for _, name := range names {
			if err := ValidateFilter(name, filter); err != nil {
				return UnifiedResult{}, err
			}
		}
	}

	g, _ := errgroup.WithContext(ctx)
	for i, name := range names {
		i, name := i, name
		g.Go(func() error {
			r, err := backend.Search(name, query, filter, limit)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return UnifiedResult{}, err
	}

	unified := UnifiedResult{ByIndex: make(map[IndexName]Result, len(names))}
	var maxProcessing int64
	for i, name := range names {
		unified.ByIndex[name] = results[i]
		unified.TotalHits += results[i].Total
		if results[i].ProcessingTimeMs > maxProcessing {
			maxProcessing = results[i].ProcessingTimeMs
		}
	}
	unified.ProcessingTimeMs = maxProcessing
	return unified, nil
}
