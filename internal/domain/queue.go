// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package domain

import (
	"time"

	"github.com/google/uuid"
)

// QueueItem is one entry in a user's persistent play queue. Positions are
// contiguous non-negative integers per user, starting at 0.
type QueueItem struct {
	UserID     uuid.UUID
	Position   int
	TrackID    uuid.UUID
	SourceType string // e.g. "playlist", "album", "radio", "manual"
	SourceID   *uuid.UUID
	AddedAt    time.Time

	Prefetched       bool
	PrefetchPriority *int
}

// QueuePlaybackState tracks which item is "current" for a user. May exist
// without items — index 0 then means "start of empty queue".
type QueuePlaybackState struct {
	UserID       uuid.UUID
	CurrentIndex int
	UpdatedAt    time.Time
}

// MaxQueueSize is the hard cap enforced by the Queue Manager (C14).
const MaxQueueSize = 10_000
