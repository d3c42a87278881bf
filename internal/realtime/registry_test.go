// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package realtime

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resonance-audio/resonance/internal/domain"
)

func newHandle(deviceID string) *Handle {
	h := &Handle{
		DeviceID:    deviceID,
		DeviceInfo:  domain.DeviceInfo{DeviceID: deviceID, DeviceType: domain.DeviceWeb},
		ConnectedAt: time.Now(),
		Send:        make(chan []byte, 4),
	}
	h.Touch()
	return h
}

func TestRegistry_AddAndSendToDevice(t *testing.T) {
	r := NewRegistry()
	h := newHandle("d1")
	r.Add("u1", h)

	result := r.SendToDevice("u1", "d1", []byte("hello"))
	assert.Equal(t, SendOk, result)
	assert.Equal(t, []byte("hello"), <-h.Send)
}

func TestRegistry_SendToDevice_UserNotFound(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, SendUserNotFound, r.SendToDevice("ghost", "d1", nil))
}

func TestRegistry_SendToDevice_DeviceNotFound(t *testing.T) {
	r := NewRegistry()
	r.Add("u1", newHandle("d1"))
	assert.Equal(t, SendDeviceNotFound, r.SendToDevice("u1", "d2", nil))
}

func TestRegistry_SendToDevice_ConnectionClosed(t *testing.T) {
	r := NewRegistry()
	h := newHandle("d1")
	r.Add("u1", h)
	h.Close()

	assert.Equal(t, SendConnectionClosed, r.SendToDevice("u1", "d1", nil))
}

func TestRegistry_Remove_ClearsActiveDeviceAndDropsEmptyUser(t *testing.T) {
	r := NewRegistry()
	h := newHandle("d1")
	r.Add("u1", h)
	r.SetActiveDevice("u1", "d1")

	r.Remove("u1", "d1")

	_, ok := r.ActiveDevice("u1")
	assert.False(t, ok)
	assert.Equal(t, SendUserNotFound, r.SendToDevice("u1", "d1", nil))
}

func TestRegistry_Remove_KeepsActiveDeviceIfDifferentDeviceRemoved(t *testing.T) {
	r := NewRegistry()
	r.Add("u1", newHandle("d1"))
	r.Add("u1", newHandle("d2"))
	r.SetActiveDevice("u1", "d1")

	r.Remove("u1", "d2")

	active, ok := r.ActiveDevice("u1")
	assert.True(t, ok)
	assert.Equal(t, "d1", active)
}

func TestRegistry_BroadcastToUser_ReachesAllDevices(t *testing.T) {
	r := NewRegistry()
	h1, h2 := newHandle("d1"), newHandle("d2")
	r.Add("u1", h1)
	r.Add("u1", h2)

	r.BroadcastToUser("u1", []byte("x"))

	assert.Equal(t, []byte("x"), <-h1.Send)
	assert.Equal(t, []byte("x"), <-h2.Send)
}

func TestRegistry_BroadcastToOthers_ExcludesGivenDevice(t *testing.T) {
	r := NewRegistry()
	h1, h2 := newHandle("d1"), newHandle("d2")
	r.Add("u1", h1)
	r.Add("u1", h2)

	r.BroadcastToOthers("u1", "d1", []byte("x"))

	assert.Equal(t, []byte("x"), <-h2.Send)
	select {
	case <-h1.Send:
		t.Fatal("excluded device should not receive the broadcast")
	default:
	}
}

func TestRegistry_CleanupStale_RemovesIdleAndClosedHandles(t *testing.T) {
	r := NewRegistry()
	stale := newHandle("stale")
	stale.lastActivity.Store(time.Now().Add(-time.Hour).UnixNano())
	fresh := newHandle("fresh")
	r.Add("u1", stale)
	r.Add("u1", fresh)

	removed := r.CleanupStale(time.Minute)

	assert.Equal(t, 1, removed)
	assert.Equal(t, SendDeviceNotFound, r.SendToDevice("u1", "stale", nil))
	assert.Equal(t, SendOk, r.SendToDevice("u1", "fresh", []byte("ok")))
}

func TestRegistry_GetDevicePresences_MarksActiveDevice(t *testing.T) {
	r := NewRegistry()
	r.Add("u1", newHandle("d1"))
	r.Add("u1", newHandle("d2"))
	r.SetActiveDevice("u1", "d2")

	presences := r.GetDevicePresences("u1")
	require.Len(t, presences, 2)
	for _, p := range presences {
		assert.Equal(t, p.DeviceID == "d2", p.Active)
	}
}

func TestRegistry_ConcurrentMutationDifferentUsersDoesNotRace(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			userID := "u" + string(rune('a'+i%26))
			h := newHandle("d")
			r.Add(userID, h)
			r.Touch(userID, "d")
			r.SetPlaybackState(userID, domain.PlaybackState{})
			r.Remove(userID, "d")
		}(i)
	}
	wg.Wait()
}
