// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package realtime

import (
	"testing"
	"time"

	"github.com/resonance-audio/resonance/internal/domain"
)

func TestPresenceSnapshotStore_CheckpointAndRead(t *testing.T) {
	store, err := OpenPresenceSnapshotStore(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()

	registry := NewRegistry()
	registry.Add("user-1", &Handle{
		DeviceID:    "device-1",
		DeviceInfo:  domain.DeviceInfo{DeviceID: "device-1", DeviceType: domain.DeviceWeb},
		ConnectedAt: time.Now(),
		Send:        make(chan []byte, 1),
	})
	trackID := "track-1"
	registry.SetPlaybackState("user-1", domain.PlaybackState{TrackID: &trackID})

	if err := store.Checkpoint(registry); err != nil {
		t.Fatalf("checkpoint: %v", err)
	}

	cp, ok := store.LastCheckpoint("user-1")
	if !ok {
		t.Fatal("expected checkpoint to exist")
	}
	if len(cp.Devices) != 1 {
		t.Fatalf("expected 1 device, got %d", len(cp.Devices))
	}
	if cp.PlaybackState == nil || cp.PlaybackState.TrackID == nil || *cp.PlaybackState.TrackID != "track-1" {
		t.Fatalf("expected playback state to be persisted, got %+v", cp.PlaybackState)
	}
}

func TestPresenceSnapshotStore_NoCheckpointForUnknownUser(t *testing.T) {
	store, err := OpenPresenceSnapshotStore(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()

	_, ok := store.LastCheckpoint("nobody")
	if ok {
		t.Fatal("expected no checkpoint for unknown user")
	}
}
