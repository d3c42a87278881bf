// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/resonance-audio/resonance/internal/queue"
)

func insertTestTrack(t *testing.T, s *Store, id, artistID, title string, energy float64, genre string) {
	t.Helper()
	_, err := s.DB.ExecContext(context.Background(), `
		INSERT OR IGNORE INTO artists (id, name) VALUES (?, ?)`, artistID, "Artist "+artistID)
	require.NoError(t, err)

	genresJSON, err := json.Marshal([]string{genre})
	require.NoError(t, err)
	audioFeaturesJSON := fmt.Sprintf(`{"energy":%v}`, energy)

	_, err = s.DB.ExecContext(context.Background(), `
		INSERT INTO tracks (id, title, artist_id, artist_name, file_path, file_size, format, duration_ms, genres, created_at, audio_features)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, title, artistID, "Artist "+artistID, id+".flac", 1024, "flac", 180000, string(genresJSON), time.Now().Format(time.RFC3339), audioFeaturesJSON)
	require.NoError(t, err)
}

func TestToolExecutor_CreateSmartPlaylist_FiltersByRule(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	insertTestTrack(t, s, uuid.NewString(), "artist-1", "Loud One", 0.9, "rock")
	insertTestTrack(t, s, uuid.NewString(), "artist-1", "Quiet One", 0.1, "rock")

	exec := NewToolExecutor(s, queue.NewManager(s))
	userID := uuid.New()

	raw, err := exec.CreateSmartPlaylist(ctx, userID, "High Energy", "", map[string]any{
		"rules": []any{
			map[string]any{"field": "energy", "operator": "gte", "value": 0.5},
		},
	})
	require.NoError(t, err)

	var result struct {
		TrackCount int `json:"track_count"`
	}
	require.NoError(t, json.Unmarshal(raw, &result))
	require.Equal(t, 1, result.TrackCount)
}

func TestToolExecutor_CreateSmartPlaylist_SimilarToAcoustic(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seedID := uuid.NewString()
	insertTestTrack(t, s, seedID, "artist-1", "Seed Track", 0.8, "rock")
	insertTestTrack(t, s, uuid.NewString(), "artist-1", "Close Track", 0.75, "rock")
	insertTestTrack(t, s, uuid.NewString(), "artist-1", "Far Track", 0.05, "jazz")

	exec := NewToolExecutor(s, queue.NewManager(s))
	userID := uuid.New()

	raw, err := exec.CreateSmartPlaylist(ctx, userID, "Like Seed", "", map[string]any{
		"rules": []any{
			map[string]any{
				"field":    "similar_to",
				"operator": "acoustic",
				"value": map[string]any{
					// Energy-only acoustic score is 1/(1+|Δenergy|):
					// close ≈ 0.95, far ≈ 0.57.
					"track_ids": []any{seedID},
					"min_score": 0.8,
				},
			},
		},
	})
	require.NoError(t, err)

	var result struct {
		TrackCount int `json:"track_count"`
	}
	require.NoError(t, json.Unmarshal(raw, &result))
	require.Equal(t, 1, result.TrackCount)
}
