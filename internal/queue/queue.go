// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package queue implements the Queue Manager (spec §4.14, C14): an ordered,
// persistent per-user play queue with dense positions, atomic reordering and
// prefetch marking. Grounded on original_source/apps/api/src/repositories/
// queue.rs for the batch/shift/lock semantics, translated from UNNEST/
// SELECT-FOR-UPDATE SQL into transaction-scoped Go operating on a snapshot
// loaded and saved through the Store port — the row lock becomes a
// BEGIN IMMEDIATE transaction at the store layer (see internal/store).
package queue

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/resonance-audio/resonance/internal/apierr"
	"github.com/resonance-audio/resonance/internal/domain"
	"github.com/resonance-audio/resonance/internal/metrics"
)

// Store is the persistence port a Manager is built on. LoadQueue and
// SaveQueue are expected to run inside one lock-holding transaction when
// called back-to-back by the same Manager call — the adapter is
// responsible for the ownership/ordering lock spec §4.14 requires.
type Store interface {
	LoadQueue(ctx context.Context, userID uuid.UUID) ([]domain.QueueItem, domain.QueuePlaybackState, error)
	SaveQueue(ctx context.Context, userID uuid.UUID, items []domain.QueueItem, state domain.QueuePlaybackState) error
}

// Manager implements the queue operations of spec §4.14 against a Store.
type Manager struct {
	store Store
}

// NewManager builds a Manager bound to store.
func NewManager(store Store) *Manager {
	return &Manager{store: store}
}

func renumber(items []domain.QueueItem) {
	sort.SliceStable(items, func(i, j int) bool { return items[i].Position < items[j].Position })
	for i := range items {
		items[i].Position = i
	}
}

// SetQueue atomically replaces the user's queue and playback state.
func (m *Manager) SetQueue(ctx context.Context, userID uuid.UUID, trackIDs []uuid.UUID, currentIndex int, sourceType string, sourceID *uuid.UUID) error {
	if len(trackIDs) > domain.MaxQueueSize {
		return apierr.Of(apierr.KindValidation, "queue exceeds maximum size")
	}
	if currentIndex < 0 {
		currentIndex = 0
	}

	now := time.Now()
	items := make([]domain.QueueItem, len(trackIDs))
	for i, trackID := range trackIDs {
		items[i] = domain.QueueItem{
			UserID:     userID,
			Position:   i,
			TrackID:    trackID,
			SourceType: sourceType,
			SourceID:   sourceID,
			AddedAt:    now,
		}
	}
	state := domain.QueuePlaybackState{UserID: userID, CurrentIndex: currentIndex, UpdatedAt: now}
	if err := m.store.SaveQueue(ctx, userID, items, state); err != nil {
		return err
	}
	metrics.RecordQueueOperation("set")
	return nil
}

// Append adds trackIDs to the end of the queue, enforcing the size cap.
func (m *Manager) Append(ctx context.Context, userID uuid.UUID, trackIDs []uuid.UUID, sourceType string, sourceID *uuid.UUID) error {
	items, state, err := m.store.LoadQueue(ctx, userID)
	if err != nil {
		return err
	}
	if len(items)+len(trackIDs) > domain.MaxQueueSize {
		return apierr.Of(apierr.KindValidation, "queue exceeds maximum size")
	}

	now := time.Now()
	start := len(items)
	for i, trackID := range trackIDs {
		items = append(items, domain.QueueItem{
			UserID:     userID,
			Position:   start + i,
			TrackID:    trackID,
			SourceType: sourceType,
			SourceID:   sourceID,
			AddedAt:    now,
		})
	}
	if err := m.store.SaveQueue(ctx, userID, items, state); err != nil {
		return err
	}
	metrics.RecordQueueOperation("append")
	return nil
}

// InsertAt inserts trackID at pos, clamped to [0, len], shifting later items up.
func (m *Manager) InsertAt(ctx context.Context, userID uuid.UUID, trackID uuid.UUID, pos int, sourceType string, sourceID *uuid.UUID) error {
	items, state, err := m.store.LoadQueue(ctx, userID)
	if err != nil {
		return err
	}
	if len(items)+1 > domain.MaxQueueSize {
		return apierr.Of(apierr.KindValidation, "queue exceeds maximum size")
	}
	if pos < 0 {
		pos = 0
	}
	if pos > len(items) {
		pos = len(items)
	}

	for i := range items {
		if items[i].Position >= pos {
			items[i].Position++
		}
	}
	items = append(items, domain.QueueItem{
		UserID:     userID,
		Position:   pos,
		TrackID:    trackID,
		SourceType: sourceType,
		SourceID:   sourceID,
		AddedAt:    time.Now(),
	})
	if state.CurrentIndex >= pos {
		state.CurrentIndex++
	}
	renumber(items)
	if err := m.store.SaveQueue(ctx, userID, items, state); err != nil {
		return err
	}
	metrics.RecordQueueOperation("insert")
	return nil
}

// RemoveAtPosition deletes the item at pos, shifts later items down, and
// decrements current_index (floored at 0) when the removal happens before it.
func (m *Manager) RemoveAtPosition(ctx context.Context, userID uuid.UUID, pos int) error {
	items, state, err := m.store.LoadQueue(ctx, userID)
	if err != nil {
		return err
	}

	filtered := items[:0:0]
	removed := false
	for _, item := range items {
		if item.Position == pos {
			removed = true
			continue
		}
		if item.Position > pos {
			item.Position--
		}
		filtered = append(filtered, item)
	}
	if !removed {
		return apierr.Of(apierr.KindNotFound, "queue position not found")
	}

	if state.CurrentIndex > pos {
		state.CurrentIndex--
		if state.CurrentIndex < 0 {
			state.CurrentIndex = 0
		}
	}
	if err := m.store.SaveQueue(ctx, userID, filtered, state); err != nil {
		return err
	}
	metrics.RecordQueueOperation("remove")
	return nil
}

// Move relocates the item at from to to, shifting the affected range by one
// position in the appropriate direction and writing the moved item's new
// position. current_index is left untouched: it tracks a position slot, and
// the caller is responsible for any follow-up UpdatePlaybackState if the
// moved item was the current one.
func (m *Manager) Move(ctx context.Context, userID uuid.UUID, from, to int) error {
	items, state, err := m.store.LoadQueue(ctx, userID)
	if err != nil {
		return err
	}
	if from < 0 || from >= len(items) {
		return apierr.Of(apierr.KindValidation, "invalid source position")
	}
	if to < 0 {
		to = 0
	}
	if to >= len(items) {
		to = len(items) - 1
	}
	if from == to {
		if err := m.store.SaveQueue(ctx, userID, items, state); err != nil {
			return err
		}
		metrics.RecordQueueOperation("move")
		return nil
	}

	sort.Slice(items, func(i, j int) bool { return items[i].Position < items[j].Position })

	moved := items[from]
	without := make([]domain.QueueItem, 0, len(items)-1)
	without = append(without, items[:from]...)
	without = append(without, items[from+1:]...)

	out := make([]domain.QueueItem, 0, len(items))
	out = append(out, without[:to]...)
	out = append(out, moved)
	out = append(out, without[to:]...)

	renumber(out)
	if err := m.store.SaveQueue(ctx, userID, out, state); err != nil {
		return err
	}
	metrics.RecordQueueOperation("move")
	return nil
}

// MarkPrefetched flags trackIDs as prefetched with an optional priority.
func (m *Manager) MarkPrefetched(ctx context.Context, userID uuid.UUID, trackIDs []uuid.UUID, priority *int) error {
	items, state, err := m.store.LoadQueue(ctx, userID)
	if err != nil {
		return err
	}
	want := make(map[uuid.UUID]bool, len(trackIDs))
	for _, id := range trackIDs {
		want[id] = true
	}
	for i := range items {
		if want[items[i].TrackID] {
			items[i].Prefetched = true
			items[i].PrefetchPriority = priority
		}
	}
	if err := m.store.SaveQueue(ctx, userID, items, state); err != nil {
		return err
	}
	metrics.RecordQueueOperation("mark_prefetched")
	return nil
}

// ClearPrefetched clears the prefetched flag for trackIDs.
func (m *Manager) ClearPrefetched(ctx context.Context, userID uuid.UUID, trackIDs []uuid.UUID) error {
	items, state, err := m.store.LoadQueue(ctx, userID)
	if err != nil {
		return err
	}
	want := make(map[uuid.UUID]bool, len(trackIDs))
	for _, id := range trackIDs {
		want[id] = true
	}
	for i := range items {
		if want[items[i].TrackID] {
			items[i].Prefetched = false
			items[i].PrefetchPriority = nil
		}
	}
	if err := m.store.SaveQueue(ctx, userID, items, state); err != nil {
		return err
	}
	metrics.RecordQueueOperation("clear_prefetched")
	return nil
}

// GetUpcoming returns the next count items after current_index whose
// prefetched flag is not true.
func (m *Manager) GetUpcoming(ctx context.Context, userID uuid.UUID, count int) ([]domain.QueueItem, error) {
	items, state, err := m.store.LoadQueue(ctx, userID)
	if err != nil {
		return nil, err
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Position < items[j].Position })

	out := make([]domain.QueueItem, 0, count)
	for _, item := range items {
		if item.Position <= state.CurrentIndex {
			continue
		}
		if item.Prefetched {
			continue
		}
		out = append(out, item)
		if len(out) == count {
			break
		}
	}
	return out, nil
}
