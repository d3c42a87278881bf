// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/resonance-audio/resonance/internal/domain"
	"github.com/resonance-audio/resonance/internal/queue"
)

var _ queue.Store = (*Store)(nil)

// LoadQueue implements queue.Store: reads the full snapshot for userID
// inside a single transaction so Manager's read-modify-write cycle never
// observes a partial concurrent update.
func (s *Store) LoadQueue(ctx context.Context, userID uuid.UUID) ([]domain.QueueItem, domain.QueuePlaybackState, error) {
	tx, err := s.DB.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, domain.QueuePlaybackState{}, err
	}
	defer func() { _ = tx.Rollback() }()

	uid := userID

	rows, err := tx.QueryContext(ctx, `
		SELECT position, track_id, source_type, source_id, added_at, prefetched, prefetch_priority
		FROM queue_items WHERE user_id = ? ORDER BY position ASC`, userID.String())
	if err != nil {
		return nil, domain.QueuePlaybackState{}, err
	}
	defer rows.Close()

	var items []domain.QueueItem
	for rows.Next() {
		var (
			item       domain.QueueItem
			trackID    string
			sourceID   sql.NullString
			addedAt    string
			prefetched int
			priority   sql.NullInt64
		)
		if err := rows.Scan(&item.Position, &trackID, &item.SourceType, &sourceID, &addedAt, &prefetched, &priority); err != nil {
			return nil, domain.QueuePlaybackState{}, err
		}
		item.UserID = uid
		item.TrackID, err = uuid.Parse(trackID)
		if err != nil {
			return nil, domain.QueuePlaybackState{}, err
		}
		if sourceID.Valid {
			id, err := uuid.Parse(sourceID.String)
			if err == nil {
				item.SourceID = &id
			}
		}
		item.AddedAt, _ = time.Parse(time.RFC3339, addedAt)
		item.Prefetched = prefetched != 0
		if priority.Valid {
			p := int(priority.Int64)
			item.PrefetchPriority = &p
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.QueuePlaybackState{}, err
	}

	var (
		state        domain.QueuePlaybackState
		updatedAtStr string
	)
	state.UserID = uid
	err = tx.QueryRowContext(ctx, `SELECT current_index, updated_at FROM queue_playback_state WHERE user_id = ?`, userID.String()).
		Scan(&state.CurrentIndex, &updatedAtStr)
	switch {
	case err == sql.ErrNoRows:
		// No state yet: current_index defaults to 0.
	case err != nil:
		return nil, domain.QueuePlaybackState{}, err
	default:
		state.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAtStr)
	}

	if err := tx.Commit(); err != nil {
		return nil, domain.QueuePlaybackState{}, err
	}
	return items, state, nil
}

// SaveQueue implements queue.Store: replaces the full snapshot for userID
// inside one BEGIN IMMEDIATE-equivalent transaction, the Go analogue of the
// row-lock the original service takes with `SELECT … FOR UPDATE`.
func (s *Store) SaveQueue(ctx context.Context, userID uuid.UUID, items []domain.QueueItem, state domain.QueuePlaybackState) error {
	tx, err := s.DB.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM queue_items WHERE user_id = ?`, userID.String()); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO queue_items (user_id, position, track_id, source_type, source_id, added_at, prefetched, prefetch_priority)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, item := range items {
		var sourceID any
		if item.SourceID != nil {
			sourceID = item.SourceID.String()
		}
		var priority any
		if item.PrefetchPriority != nil {
			priority = *item.PrefetchPriority
		}
		addedAt := item.AddedAt
		if addedAt.IsZero() {
			addedAt = time.Now()
		}
		if _, err := stmt.ExecContext(ctx, userID.String(), item.Position, item.TrackID.String(), item.SourceType,
			sourceID, addedAt.Format(time.RFC3339), item.Prefetched, priority); err != nil {
			return err
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO queue_playback_state (user_id, current_index, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET current_index = excluded.current_index, updated_at = excluded.updated_at`,
		userID.String(), state.CurrentIndex, time.Now().Format(time.RFC3339)); err != nil {
		return err
	}

	return tx.Commit()
}
