// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ChatRole identifies the speaker of a ChatMessage.
type ChatRole string

const (
	RoleUser      ChatRole = "user"
	RoleAssistant ChatRole = "assistant"
	RoleSystem    ChatRole = "system"
	RoleTool      ChatRole = "tool"
)

// ChatConversation groups an ordered sequence of ChatMessages for one user.
type ChatConversation struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Title     string
	DeletedAt *time.Time
}

// ToolCall is a structured function invocation emitted by the LLM.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ContextSnapshot captures the library context given to the LLM for one
// user message, persisted alongside it for reproducibility.
type ContextSnapshot struct {
	TrackCount        int      `json:"track_count"`
	ArtistCount       int      `json:"artist_count"`
	AlbumCount        int      `json:"album_count"`
	PlaylistCount     int      `json:"playlist_count"`
	TopGenres         []string `json:"top_genres,omitempty"`
	CurrentTrackID    *string  `json:"current_track_id,omitempty"`
	CurrentTrackTitle *string  `json:"current_track_title,omitempty"`
}

// ChatMessage is one turn within a ChatConversation. SequenceNumber is
// strictly increasing and dense (1, 2, 3, …) per conversation.
type ChatMessage struct {
	ID             uuid.UUID
	ConversationID uuid.UUID
	UserID         uuid.UUID
	Role           ChatRole
	SequenceNumber int
	Content        string
	ToolCalls      []ToolCall
	ToolCallID     *string
	Context        *ContextSnapshot
	Model          string
	TokenCount     int
	CreatedAt      time.Time
}
