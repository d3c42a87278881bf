// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package chat

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/resonance-audio/resonance/internal/apierr"
)

// ToolName enumerates the tools available to the LLM per spec §4.12.
type ToolName string

const (
	ToolSearchLibrary       ToolName = "search_library"
	ToolPlayTrack           ToolName = "play_track"
	ToolAddToQueue          ToolName = "add_to_queue"
	ToolCreatePlaylist      ToolName = "create_playlist"
	ToolGetRecommendations  ToolName = "get_recommendations"
	ToolCreateSmartPlaylist ToolName = "create_smart_playlist"
)

// ToolSchemas is the fixed set of tool definitions sent to the LLM on every
// turn, named and shaped per spec §4.12's "Available tools" table.
var ToolSchemas = []ToolSchema{
	{
		Name:        ToolSearchLibrary,
		Description: "Search the user's music library by text query or mood.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query":       map[string]any{"type": "string"},
				"search_type": map[string]any{"type": "string", "enum": []string{"track", "mood"}},
				"limit":       map[string]any{"type": "integer", "default": 5},
			},
			"required": []string{"query", "search_type"},
		},
	},
	{
		Name:        ToolPlayTrack,
		Description: "Start playback of a specific track.",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"track_id": map[string]any{"type": "string"}},
			"required":   []string{"track_id"},
		},
	},
	{
		Name:        ToolAddToQueue,
		Description: "Add one or more tracks to the playback queue.",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"track_ids": map[string]any{"type": "array", "items": map[string]any{"type": "string"}}},
			"required":   []string{"track_ids"},
		},
	},
	{
		Name:        ToolCreatePlaylist,
		Description: "Create a new playlist, optionally seeded with tracks.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"name":        map[string]any{"type": "string"},
				"description": map[string]any{"type": "string"},
				"track_ids":   map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			},
			"required": []string{"name"},
		},
	},
	{
		Name:        ToolGetRecommendations,
		Description: "Get tracks similar to a given track.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"similar_to_track_id": map[string]any{"type": "string"},
				"limit":               map[string]any{"type": "integer", "default": 5},
			},
			"required": []string{"similar_to_track_id"},
		},
	},
	{
		Name:        ToolCreateSmartPlaylist,
		Description: "Create a playlist from a set of filter rules over track metadata and audio features, optionally seeded by similarity to other tracks.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"name":        map[string]any{"type": "string"},
				"description": map[string]any{"type": "string"},
				"match_mode":  map[string]any{"type": "string", "enum": []string{"all", "any"}},
				"sort_by":     map[string]any{"type": "string"},
				"sort_order":  map[string]any{"type": "string", "enum": []string{"asc", "desc"}},
				"limit":       map[string]any{"type": "integer", "default": 50},
				"rules": map[string]any{
					"type": "array",
					"items": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"field":    map[string]any{"type": "string"},
							"operator": map[string]any{"type": "string"},
							"value":    map[string]any{},
						},
						"required": []string{"field", "operator"},
					},
				},
			},
			"required": []string{"name", "rules"},
		},
	},
}

// ToolSchema is a Go-native tool definition, translated to the LLM
// provider's wire shape by the ChatBackend adapter.
type ToolSchema struct {
	Name        ToolName
	Description string
	InputSchema map[string]any
}

// ToolExecutor performs the side effect of a validated tool call and
// returns a result to append as a tool-role message, plus a client-facing
// action (if the tool should drive a UI effect).
type ToolExecutor interface {
	SearchLibrary(ctx context.Context, userID uuid.UUID, query, searchType string, limit int) (json.RawMessage, error)
	PlayTrack(ctx context.Context, userID uuid.UUID, trackID uuid.UUID) (json.RawMessage, error)
	AddToQueue(ctx context.Context, userID uuid.UUID, trackIDs []uuid.UUID) (json.RawMessage, error)
	CreatePlaylist(ctx context.Context, userID uuid.UUID, name, description string, trackIDs []uuid.UUID) (json.RawMessage, error)
	GetRecommendations(ctx context.Context, userID uuid.UUID, similarToTrackID uuid.UUID, limit int) (json.RawMessage, error)
	CreateSmartPlaylist(ctx context.Context, userID uuid.UUID, name, description string, rules map[string]any) (json.RawMessage, error)
}

func defaultInt(v any, fallback int) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	default:
		return fallback
	}
}

func parseUUID(raw any) (uuid.UUID, error) {
	s, ok := raw.(string)
	if !ok {
		return uuid.UUID{}, apierr.Of(apierr.KindValidation, "expected a string id")
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.UUID{}, apierr.Of(apierr.KindValidation, "invalid id")
	}
	return id, nil
}

func parseUUIDList(raw any) ([]uuid.UUID, error) {
	list, ok := raw.([]any)
	if !ok {
		return nil, apierr.Of(apierr.KindValidation, "expected an array of ids")
	}
	out := make([]uuid.UUID, 0, len(list))
	for _, item := range list {
		id, err := parseUUID(item)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}

// ExecuteTool validates a call's arguments (UUIDs parsed, enums whitelisted)
// and dispatches to the corresponding executor method.
func ExecuteTool(ctx context.Context, exec ToolExecutor, userID uuid.UUID, name ToolName, args map[string]any) (json.RawMessage, error) {
	switch name {
	case ToolSearchLibrary:
		query, _ := args["query"].(string)
		searchType, _ := args["search_type"].(string)
		if searchType != "track" && searchType != "mood" {
			return nil, apierr.Of(apierr.KindValidation, "search_type must be track or mood")
		}
		return exec.SearchLibrary(ctx, userID, query, searchType, defaultInt(args["limit"], 5))

	case ToolPlayTrack:
		trackID, err := parseUUID(args["track_id"])
		if err != nil {
			return nil, err
		}
		return exec.PlayTrack(ctx, userID, trackID)

	case ToolAddToQueue:
		trackIDs, err := parseUUIDList(args["track_ids"])
		if err != nil {
			return nil, err
		}
		return exec.AddToQueue(ctx, userID, trackIDs)

	case ToolCreatePlaylist:
		name, _ := args["name"].(string)
		if name == "" {
			return nil, apierr.Of(apierr.KindValidation, "name is required")
		}
		description, _ := args["description"].(string)
		var trackIDs []uuid.UUID
		if raw, ok := args["track_ids"]; ok {
			trackIDs, err := parseUUIDList(raw)
			if err != nil {
				return nil, err
			}
			return exec.CreatePlaylist(ctx, userID, name, description, trackIDs)
		}
		return exec.CreatePlaylist(ctx, userID, name, description, trackIDs)

	case ToolGetRecommendations:
		trackID, err := parseUUID(args["similar_to_track_id"])
		if err != nil {
			return nil, err
		}
		return exec.GetRecommendations(ctx, userID, trackID, defaultInt(args["limit"], 5))

	case ToolCreateSmartPlaylist:
		name, _ := args["name"].(string)
		if name == "" {
			return nil, apierr.Of(apierr.KindValidation, "name is required")
		}
		description, _ := args["description"].(string)
		return exec.CreateSmartPlaylist(ctx, userID, name, description, args)

	default:
		return nil, apierr.Of(apierr.KindValidation, fmt.Sprintf("unknown tool %q", name))
	}
}
