// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/resonance-audio/resonance/internal/domain"
)

const trackColumns = `
	id, title, artist_id, artist_name, album_id, album_title,
	file_path, file_size, format, duration_ms, genres, ai_mood, ai_tags,
	play_count, created_at, audio_features`

// GetTrack looks up a track by id, satisfying httpapi.TrackLookup. Returns
// (nil, nil) when the track does not exist, per that port's contract.
func (s *Store) GetTrack(ctx context.Context, id uuid.UUID) (*domain.Track, error) {
	row := s.DB.QueryRowContext(ctx, "SELECT "+trackColumns+" FROM tracks WHERE id = ?", id.String())
	track, err := scanTrack(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return track, err
}

// CandidateTracks returns up to limit tracks other than excludeID, for use
// as the candidate pool in similarity comparisons (internal/similarity).
// Ordering is unspecified; callers rank by similarity score, not row order.
func (s *Store) CandidateTracks(ctx context.Context, excludeID uuid.UUID, limit int) ([]domain.Track, error) {
	rows, err := s.DB.QueryContext(ctx, "SELECT "+trackColumns+" FROM tracks WHERE id != ? LIMIT ?", excludeID.String(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Track
	for rows.Next() {
		track, err := scanTrack(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *track)
	}
	return out, rows.Err()
}

// scanTrack accepts a rowScanner (declared in chat_store.go), satisfied by
// both *sql.Row and *sql.Rows.
func scanTrack(row rowScanner) (*domain.Track, error) {
	var (
		trackID, artistID, artistName, title string
		albumID, albumTitle                  sql.NullString
		filePath, format                     string
		fileSize, durationMS, playCount      int64
		genresJSON, aiMoodJSON, aiTagsJSON    string
		createdAt, audioFeaturesJSON          string
	)
	if err := row.Scan(&trackID, &title, &artistID, &artistName, &albumID, &albumTitle,
		&filePath, &fileSize, &format, &durationMS, &genresJSON, &aiMoodJSON, &aiTagsJSON,
		&playCount, &createdAt, &audioFeaturesJSON); err != nil {
		return nil, err
	}

	var features domain.AudioFeatures
	if audioFeaturesJSON != "" {
		if err := json.Unmarshal([]byte(audioFeaturesJSON), &features); err != nil {
			return nil, err
		}
	}

	track := &domain.Track{
		ID:         uuid.MustParse(trackID),
		Title:      title,
		ArtistName: artistName,
		AlbumTitle: albumTitle.String,
		File: domain.FileDescriptor{
			Path:      filePath,
			SizeBytes: fileSize,
			Format:    domain.AudioFormat(format),
		},
		Audio:     domain.AudioProperties{DurationMS: durationMS},
		PlayCount: playCount,
		Genres:    jsonStringSet(genresJSON),
		AIMood:    jsonStringSet(aiMoodJSON),
		AITags:    jsonStringSet(aiTagsJSON),
		Features:  features,
	}
	if parsedArtist, err := uuid.Parse(artistID); err == nil {
		track.ArtistID = parsedArtist
	}
	if albumID.Valid {
		if parsed, err := uuid.Parse(albumID.String); err == nil {
			track.AlbumID = &parsed
		}
	}
	if parsed, err := time.Parse(time.RFC3339, createdAt); err == nil {
		track.CreatedAt = parsed
	}
	return track, nil
}

// jsonStringSet decodes a JSON array column (genres/ai_mood/ai_tags, per
// playlist.Whitelist's FieldArray json_each contract) into a set.
func jsonStringSet(raw string) map[string]struct{} {
	if raw == "" || raw == "[]" {
		return nil
	}
	var list []string
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		return nil
	}
	out := make(map[string]struct{}, len(list))
	for _, v := range list {
		if v != "" {
			out[v] = struct{}{}
		}
	}
	return out
}
