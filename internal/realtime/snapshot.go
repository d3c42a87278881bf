// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package realtime

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/resonance-audio/resonance/internal/domain"
	"github.com/resonance-audio/resonance/internal/log"
)

// presenceCheckpoint is one user's last-known device presence and playback
// state, persisted so an operator inspecting a restarted process (or a
// future warm-resume path) can see what was connected before the process
// stopped. It is a diagnostic snapshot, not the registry's source of
// truth: Registry itself is rebuilt purely from live WebSocket upgrades.
type presenceCheckpoint struct {
	UserID        string                  `json:"user_id"`
	Devices       []domain.DevicePresence `json:"devices"`
	PlaybackState *domain.PlaybackState   `json:"playback_state,omitempty"`
	CheckpointAt  time.Time               `json:"checkpoint_at"`
}

// PresenceSnapshotStore persists periodic presence checkpoints to an
// embedded Badger database, grounded on xg2g's internal/v3/store/badger_store.go
// key-prefix-per-record-kind layout ("sess:<id>" there, "presence:<user_id>"
// here), reused for the realtime registry's stale-sweep checkpoints instead
// of session-store records.
type PresenceSnapshotStore struct {
	db *badger.DB
}

// OpenPresenceSnapshotStore opens (creating if absent) a Badger database at path.
func OpenPresenceSnapshotStore(path string) (*PresenceSnapshotStore, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &PresenceSnapshotStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *PresenceSnapshotStore) Close() error {
	return s.db.Close()
}

// Checkpoint writes presenceCheckpoint records for every user currently
// known to registry, keyed "presence:<user_id>".
func (s *PresenceSnapshotStore) Checkpoint(registry *Registry) error {
	registry.mu.RLock()
	userIDs := make([]string, 0, len(registry.users))
	for id := range registry.users {
		userIDs = append(userIDs, id)
	}
	registry.mu.RUnlock()

	now := time.Now()
	return s.db.Update(func(txn *badger.Txn) error {
		for _, userID := range userIDs {
			devices := registry.GetDevicePresences(userID)
			if len(devices) == 0 {
				continue
			}
			cp := presenceCheckpoint{UserID: userID, Devices: devices, CheckpointAt: now}
			if state, ok := registry.PlaybackState(userID); ok {
				cp.PlaybackState = &state
			}
			buf, err := json.Marshal(cp)
			if err != nil {
				return err
			}
			if err := txn.Set([]byte("presence:"+userID), buf); err != nil {
				return err
			}
		}
		return nil
	})
}

// LastCheckpoint returns the most recently persisted checkpoint for a
// user, or (nil, false) if none exists.
func (s *PresenceSnapshotStore) LastCheckpoint(userID string) (*presenceCheckpoint, bool) {
	var cp presenceCheckpoint
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte("presence:" + userID))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &cp)
		})
	})
	if err != nil {
		log.WithComponent("realtime.snapshot").Warn().Err(err).Str("user_id", userID).Msg("failed to read presence checkpoint")
		return nil, false
	}
	if !found {
		return nil, false
	}
	return &cp, true
}

// StartCheckpointing runs Checkpoint on registry every interval until ctx
// is cancelled.
func (s *PresenceSnapshotStore) StartCheckpointing(ctx context.Context, registry *Registry, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := s.Checkpoint(registry); err != nil {
					log.WithComponent("realtime.snapshot").Warn().Err(err).Msg("presence checkpoint failed")
				}
			}
		}
	}()
}
