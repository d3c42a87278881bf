// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package chat

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExecutor struct {
	lastCall string
	lastArgs []any
}

func (f *fakeExecutor) SearchLibrary(_ context.Context, userID uuid.UUID, query, searchType string, limit int) (json.RawMessage, error) {
	f.lastCall = "search_library"
	f.lastArgs = []any{userID, query, searchType, limit}
	return json.RawMessage(`[]`), nil
}

func (f *fakeExecutor) PlayTrack(_ context.Context, userID uuid.UUID, trackID uuid.UUID) (json.RawMessage, error) {
	f.lastCall = "play_track"
	f.lastArgs = []any{userID, trackID}
	return json.RawMessage(`{}`), nil
}

func (f *fakeExecutor) AddToQueue(_ context.Context, userID uuid.UUID, trackIDs []uuid.UUID) (json.RawMessage, error) {
	f.lastCall = "add_to_queue"
	f.lastArgs = []any{userID, trackIDs}
	return json.RawMessage(`{}`), nil
}

func (f *fakeExecutor) CreatePlaylist(_ context.Context, userID uuid.UUID, name, description string, trackIDs []uuid.UUID) (json.RawMessage, error) {
	f.lastCall = "create_playlist"
	f.lastArgs = []any{userID, name, description, trackIDs}
	return json.RawMessage(`{}`), nil
}

func (f *fakeExecutor) GetRecommendations(_ context.Context, userID uuid.UUID, similarToTrackID uuid.UUID, limit int) (json.RawMessage, error) {
	f.lastCall = "get_recommendations"
	f.lastArgs = []any{userID, similarToTrackID, limit}
	return json.RawMessage(`[]`), nil
}

func (f *fakeExecutor) CreateSmartPlaylist(_ context.Context, userID uuid.UUID, name, description string, rules map[string]any) (json.RawMessage, error) {
	f.lastCall = "create_smart_playlist"
	f.lastArgs = []any{userID, name, description, rules}
	return json.RawMessage(`{}`), nil
}

func TestExecuteTool_SearchLibraryDefaultsLimit(t *testing.T) {
	exec := &fakeExecutor{}
	_, err := ExecuteTool(context.Background(), exec, uuid.New(), ToolSearchLibrary, map[string]any{
		"query":       "chill",
		"search_type": "mood",
	})
	require.NoError(t, err)
	assert.Equal(t, 5, exec.lastArgs[3])
}

func TestExecuteTool_SearchLibraryRejectsBadSearchType(t *testing.T) {
	exec := &fakeExecutor{}
	_, err := ExecuteTool(context.Background(), exec, uuid.New(), ToolSearchLibrary, map[string]any{
		"query":       "chill",
		"search_type": "genre",
	})
	assert.Error(t, err)
}

func TestExecuteTool_PlayTrackValidatesUUID(t *testing.T) {
	exec := &fakeExecutor{}
	_, err := ExecuteTool(context.Background(), exec, uuid.New(), ToolPlayTrack, map[string]any{
		"track_id": "not-a-uuid",
	})
	assert.Error(t, err)
}

func TestExecuteTool_PlayTrackSucceeds(t *testing.T) {
	exec := &fakeExecutor{}
	trackID := uuid.New()
	_, err := ExecuteTool(context.Background(), exec, uuid.New(), ToolPlayTrack, map[string]any{
		"track_id": trackID.String(),
	})
	require.NoError(t, err)
	assert.Equal(t, "play_track", exec.lastCall)
}

func TestExecuteTool_AddToQueueParsesList(t *testing.T) {
	exec := &fakeExecutor{}
	a, b := uuid.New(), uuid.New()
	_, err := ExecuteTool(context.Background(), exec, uuid.New(), ToolAddToQueue, map[string]any{
		"track_ids": []any{a.String(), b.String()},
	})
	require.NoError(t, err)
	ids := exec.lastArgs[1].([]uuid.UUID)
	assert.Equal(t, []uuid.UUID{a, b}, ids)
}

func TestExecuteTool_CreatePlaylistRequiresName(t *testing.T) {
	exec := &fakeExecutor{}
	_, err := ExecuteTool(context.Background(), exec, uuid.New(), ToolCreatePlaylist, map[string]any{
		"name": "",
	})
	assert.Error(t, err)
}

func TestExecuteTool_CreatePlaylistWithoutTracks(t *testing.T) {
	exec := &fakeExecutor{}
	_, err := ExecuteTool(context.Background(), exec, uuid.New(), ToolCreatePlaylist, map[string]any{
		"name": "Road Trip",
	})
	require.NoError(t, err)
	assert.Equal(t, "create_playlist", exec.lastCall)
}

func TestExecuteTool_CreateSmartPlaylistRequiresName(t *testing.T) {
	exec := &fakeExecutor{}
	_, err := ExecuteTool(context.Background(), exec, uuid.New(), ToolCreateSmartPlaylist, map[string]any{
		"name":  "",
		"rules": []any{},
	})
	assert.Error(t, err)
}

func TestExecuteTool_CreateSmartPlaylistDispatches(t *testing.T) {
	exec := &fakeExecutor{}
	_, err := ExecuteTool(context.Background(), exec, uuid.New(), ToolCreateSmartPlaylist, map[string]any{
		"name": "High Energy",
		"rules": []any{
			map[string]any{"field": "energy", "operator": "gte", "value": 0.7},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "create_smart_playlist", exec.lastCall)
}

func TestExecuteTool_UnknownToolRejected(t *testing.T) {
	exec := &fakeExecutor{}
	_, err := ExecuteTool(context.Background(), exec, uuid.New(), ToolName("delete_library"), map[string]any{})
	assert.Error(t, err)
}
