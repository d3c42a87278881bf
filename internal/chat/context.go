// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package chat

import (
	"context"

	"github.com/google/uuid"

	"github.com/resonance-audio/resonance/internal/domain"
)

// LibrarySummary is the subset of library state a ContextSnapshot needs,
// queried fresh on every user message per spec §4.12.
type LibrarySummary struct {
	TrackCount        int
	ArtistCount       int
	AlbumCount        int
	PlaylistCount     int
	TopGenres         []string
	CurrentTrackID    *string
	CurrentTrackTitle *string
}

// LibraryInspector is the port context building needs from the library
// store; it is satisfied by the same persistence layer backing discovery.
type LibraryInspector interface {
	SummarizeLibrary(ctx context.Context, userID uuid.UUID) (LibrarySummary, error)
}

const maxTopGenres = 5

// BuildContextSnapshot assembles the ContextSnapshot handed to the LLM (and
// persisted alongside the user's message) from a fresh library summary.
func BuildContextSnapshot(ctx context.Context, inspector LibraryInspector, userID uuid.UUID) (domain.ContextSnapshot, error) {
	summary, err := inspector.SummarizeLibrary(ctx, userID)
	if err != nil {
		return domain.ContextSnapshot{}, err
	}

	genres := summary.TopGenres
	if len(genres) > maxTopGenres {
		genres = genres[:maxTopGenres]
	}

	return domain.ContextSnapshot{
		TrackCount:        summary.TrackCount,
		ArtistCount:       summary.ArtistCount,
		AlbumCount:        summary.AlbumCount,
		PlaylistCount:     summary.PlaylistCount,
		TopGenres:         genres,
		CurrentTrackID:    summary.CurrentTrackID,
		CurrentTrackTitle: summary.CurrentTrackTitle,
	}, nil
}
