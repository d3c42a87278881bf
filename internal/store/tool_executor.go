// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/resonance-audio/resonance/internal/apierr"
	"github.com/resonance-audio/resonance/internal/chat"
	"github.com/resonance-audio/resonance/internal/queue"
	"github.com/resonance-audio/resonance/internal/search"
	"github.com/resonance-audio/resonance/internal/similarity"
)

// ToolExecutor implements chat.ToolExecutor against the SQLite catalog and
// the queue manager. SearchBackend is an optional internal/search.Backend
// collaborator (spec §4.8, C8); when nil, search_library falls back to a
// LIKE-based catalog scan rather than the three-index fan-out, since the
// remote search engine is an opaque external collaborator this package does
// not require to operate.
type ToolExecutor struct {
	Store         *Store
	Queue         *queue.Manager
	SearchBackend search.Backend
}

var _ chat.ToolExecutor = (*ToolExecutor)(nil)

// NewToolExecutor builds a ToolExecutor over the given store and queue manager.
func NewToolExecutor(s *Store, q *queue.Manager) *ToolExecutor {
	return &ToolExecutor{Store: s, Queue: q}
}

type trackSummary struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Artist string `json:"artist"`
	Album  string `json:"album,omitempty"`
}

func (t *ToolExecutor) queryTracks(ctx context.Context, query string, limit int) ([]trackSummary, error) {
	like := "%" + query + "%"
	rows, err := t.Store.DB.QueryContext(ctx, `
		SELECT id, title, artist_name, album_title FROM tracks
		WHERE title LIKE ? OR artist_name LIKE ? OR genres LIKE ?
		LIMIT ?`, like, like, like, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []trackSummary
	for rows.Next() {
		var ts trackSummary
		var album sql.NullString
		if err := rows.Scan(&ts.ID, &ts.Title, &ts.Artist, &album); err != nil {
			return nil, err
		}
		ts.Album = album.String
		out = append(out, ts)
	}
	return out, rows.Err()
}

// unifiedHits flattens search.Unified's per-index results into summaries,
// ranked by each index's own relevance order (tracks first, then albums,
// then artists, per internal/search.Indexes's declared search surface).
func unifiedHits(result search.UnifiedResult, limit int) []trackSummary {
	out := make([]trackSummary, 0, limit)
	for _, name := range []search.IndexName{search.IndexTracks, search.IndexAlbums, search.IndexArtists} {
		for _, hit := range result.ByIndex[name].Hits {
			if len(out) >= limit {
				return out
			}
			ts := trackSummary{ID: hit.ID}
			if v, ok := hit.Payload["title"].(string); ok {
				ts.Title = v
			}
			if v, ok := hit.Payload["artist_name"].(string); ok {
				ts.Artist = v
			}
			if v, ok := hit.Payload["album_title"].(string); ok {
				ts.Album = v
			}
			out = append(out, ts)
		}
	}
	return out
}

// SearchLibrary implements chat.ToolExecutor. When a search.Backend is
// configured it fans out across all three indexes (internal/search.Unified,
// C8); otherwise it falls back to a direct catalog LIKE scan.
func (t *ToolExecutor) SearchLibrary(ctx context.Context, _ uuid.UUID, query, searchType string, limit int) (json.RawMessage, error) {
	if t.SearchBackend != nil {
		unified, err := search.Unified(ctx, t.SearchBackend, query, "", limit)
		if err != nil {
			return nil, apierr.Of(apierr.KindDatabase, "search failed")
		}
		return json.Marshal(map[string]any{
			"search_type":        searchType,
			"results":            unifiedHits(unified, limit),
			"total_hits":         unified.TotalHits,
			"processing_time_ms": unified.ProcessingTimeMs,
		})
	}

	results, err := t.queryTracks(ctx, query, limit)
	if err != nil {
		return nil, apierr.Of(apierr.KindDatabase, "search failed")
	}
	return json.Marshal(map[string]any{"search_type": searchType, "results": results})
}

// PlayTrack implements chat.ToolExecutor: verifies the track exists and
// returns it as a client action payload; actual playback starts when the
// client acts on it, mirroring §4.12's "actions are suggestions to the
// client, never server-driven state changes".
func (t *ToolExecutor) PlayTrack(ctx context.Context, _ uuid.UUID, trackID uuid.UUID) (json.RawMessage, error) {
	var title, artist string
	err := t.Store.DB.QueryRowContext(ctx, `SELECT title, artist_name FROM tracks WHERE id = ?`, trackID.String()).
		Scan(&title, &artist)
	if err == sql.ErrNoRows {
		return nil, apierr.Of(apierr.KindNotFound, "track not found")
	}
	if err != nil {
		return nil, apierr.Of(apierr.KindDatabase, "track lookup failed")
	}
	return json.Marshal(map[string]string{"track_id": trackID.String(), "title": title, "artist": artist})
}

// AddToQueue implements chat.ToolExecutor by appending to the user's queue.
func (t *ToolExecutor) AddToQueue(ctx context.Context, userID uuid.UUID, trackIDs []uuid.UUID) (json.RawMessage, error) {
	if err := t.Queue.Append(ctx, userID, trackIDs, "chat", nil); err != nil {
		return nil, err
	}
	return json.Marshal(map[string]any{"added": len(trackIDs)})
}

// CreatePlaylist implements chat.ToolExecutor.
func (t *ToolExecutor) CreatePlaylist(ctx context.Context, userID uuid.UUID, name, description string, trackIDs []uuid.UUID) (json.RawMessage, error) {
	tx, err := t.Store.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, apierr.Of(apierr.KindDatabase, "playlist creation failed")
	}
	defer func() { _ = tx.Rollback() }()

	playlistID := uuid.New()
	if _, err := tx.ExecContext(ctx, `INSERT INTO playlists (id, user_id, name, description, created_at) VALUES (?, ?, ?, ?, ?)`,
		playlistID.String(), userID.String(), name, description, time.Now().Format(time.RFC3339)); err != nil {
		return nil, apierr.Of(apierr.KindDatabase, "playlist creation failed")
	}

	for i, trackID := range trackIDs {
		if _, err := tx.ExecContext(ctx, `INSERT INTO playlist_tracks (playlist_id, track_id, position) VALUES (?, ?, ?)`,
			playlistID.String(), trackID.String(), i); err != nil {
			return nil, apierr.Of(apierr.KindDatabase, "playlist creation failed")
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, apierr.Of(apierr.KindDatabase, "playlist creation failed")
	}

	return json.Marshal(map[string]any{"playlist_id": playlistID.String(), "name": name, "track_count": len(trackIDs)})
}

// GetRecommendations implements chat.ToolExecutor via internal/similarity's
// Combined signal (C7): acoustic and categorical similarity run against the
// seed's stored audio features and genre/mood/tag sets, with semantic
// similarity contributing only when an embedding is available (none is
// wired here, so Combined degrades to the acoustic+categorical blend).
func (t *ToolExecutor) GetRecommendations(ctx context.Context, _ uuid.UUID, similarToTrackID uuid.UUID, limit int) (json.RawMessage, error) {
	seed, err := t.Store.GetTrack(ctx, similarToTrackID)
	if err != nil {
		return nil, apierr.Of(apierr.KindDatabase, "recommendation lookup failed")
	}
	if seed == nil {
		return nil, apierr.Of(apierr.KindNotFound, "track not found")
	}

	candidateTracks, err := t.Store.CandidateTracks(ctx, similarToTrackID, 500)
	if err != nil {
		return nil, apierr.Of(apierr.KindDatabase, "recommendation lookup failed")
	}
	candidates := make([]similarity.Candidate, 0, len(candidateTracks))
	for i := range candidateTracks {
		candidates = append(candidates, similarity.Candidate{Track: candidateTracks[i]})
	}

	results, err := similarity.Combined(ctx, seed, nil, candidates, limit)
	if err != nil {
		return nil, apierr.Wrap(apierr.KindDatabase, "recommendation computation failed", err)
	}

	out := make([]trackSummary, 0, len(results))
	for _, r := range results {
		out = append(out, trackSummary{ID: r.TrackID, Title: r.Title, Artist: r.ArtistName, Album: r.AlbumTitle})
	}
	return json.Marshal(map[string]any{"recommendations": out})
}
