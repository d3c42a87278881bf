// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package realtime implements the per-user connection registry (spec
// §4.10, C10) and the realtime session orchestrator (§4.11, C11).
// Grounded on rustyguts-bken's internal/core/channel_state.go presence
// registry, reworked from a single global-mutex map to a sharded
// per-user-compartment design per the source's shared-mutable-state
// redesign note: readers and writers on different users never block one
// another.
package realtime

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/resonance-audio/resonance/internal/domain"
)

// Handle is one device's live connection.
type Handle struct {
	DeviceID     string
	DeviceInfo   domain.DeviceInfo
	ConnectedAt  time.Time
	lastActivity atomic.Int64 // unix nanos
	Send         chan []byte
	closed       atomic.Bool
}

// Touch records activity now.
func (h *Handle) Touch() {
	h.lastActivity.Store(time.Now().UnixNano())
}

// LastActivity returns the last recorded activity time.
func (h *Handle) LastActivity() time.Time {
	return time.Unix(0, h.lastActivity.Load())
}

// IsClosed reports whether the handle's send channel has been closed.
func (h *Handle) IsClosed() bool {
	return h.closed.Load()
}

// Close closes the send channel exactly once.
func (h *Handle) Close() {
	if h.closed.CompareAndSwap(false, true) {
		close(h.Send)
	}
}

// compartment is one user's connection state, guarded by its own lock so
// concurrent mutation of different users never contends.
type compartment struct {
	mu             sync.RWMutex
	connections    map[string]*Handle // device_id -> Handle
	activeDeviceID string
	playbackState  *domain.PlaybackState
}

// SendResult is the three-way outcome of SendToDevice.
type SendResult int

const (
	SendOk SendResult = iota
	SendUserNotFound
	SendDeviceNotFound
	SendConnectionClosed
)

// Registry is the full connection registry: per-user compartments behind
// a top-level map guarded only for compartment creation/lookup/eviction,
// never for the per-user mutations themselves.
type Registry struct {
	mu    sync.RWMutex
	users map[string]*compartment
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{users: make(map[string]*compartment)}
}

func (r *Registry) compartmentFor(userID string, createIfMissing bool) *compartment {
	r.mu.RLock()
	c, ok := r.users[userID]
	r.mu.RUnlock()
	if ok {
		return c
	}
	if !createIfMissing {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.users[userID]; ok {
		return c
	}
	c = &compartment{connections: make(map[string]*Handle)}
	r.users[userID] = c
	return c
}

// Add registers a new device connection for userID.
func (r *Registry) Add(userID string, handle *Handle) {
	handle.Touch()
	c := r.compartmentFor(userID, true)
	c.mu.Lock()
	c.connections[handle.DeviceID] = handle
	c.mu.Unlock()
}

// Remove unregisters a device. If it was the active device, active_device_id
// is cleared. If it was the last device, the user entry is dropped entirely.
func (r *Registry) Remove(userID, deviceID string) {
	c := r.compartmentFor(userID, false)
	if c == nil {
		return
	}

	c.mu.Lock()
	delete(c.connections, deviceID)
	if c.activeDeviceID == deviceID {
		c.activeDeviceID = ""
	}
	empty := len(c.connections) == 0
	c.mu.Unlock()

	if empty {
		r.mu.Lock()
		if current, ok := r.users[userID]; ok && current == c {
			delete(r.users, userID)
		}
		r.mu.Unlock()
	}
}

// Touch records activity for a device, if present.
func (r *Registry) Touch(userID, deviceID string) {
	c := r.compartmentFor(userID, false)
	if c == nil {
		return
	}
	c.mu.RLock()
	h, ok := c.connections[deviceID]
	c.mu.RUnlock()
	if ok {
		h.Touch()
	}
}

// SendToDevice sends payload to exactly one device.
func (r *Registry) SendToDevice(userID, deviceID string, payload []byte) SendResult {
	c := r.compartmentFor(userID, false)
	if c == nil {
		return SendUserNotFound
	}
	c.mu.RLock()
	h, ok := c.connections[deviceID]
	c.mu.RUnlock()
	if !ok {
		return SendDeviceNotFound
	}
	if h.IsClosed() {
		return SendConnectionClosed
	}
	select {
	case h.Send <- payload:
		return SendOk
	default:
		return SendConnectionClosed
	}
}

// BroadcastToUser sends payload to every connected device of a user.
func (r *Registry) BroadcastToUser(userID string, payload []byte) {
	c := r.compartmentFor(userID, false)
	if c == nil {
		return
	}
	c.mu.RLock()
	handles := make([]*Handle, 0, len(c.connections))
	for _, h := range c.connections {
		handles = append(handles, h)
	}
	c.mu.RUnlock()

	for _, h := range handles {
		if h.IsClosed() {
			continue
		}
		select {
		case h.Send <- payload:
		default:
		}
	}
}

// BroadcastToOthers sends payload to every device of a user except the one given.
func (r *Registry) BroadcastToOthers(userID, exceptDeviceID string, payload []byte) {
	c := r.compartmentFor(userID, false)
	if c == nil {
		return
	}
	c.mu.RLock()
	handles := make([]*Handle, 0, len(c.connections))
	for deviceID, h := range c.connections {
		if deviceID == exceptDeviceID {
			continue
		}
		handles = append(handles, h)
	}
	c.mu.RUnlock()

	for _, h := range handles {
		if h.IsClosed() {
			continue
		}
		select {
		case h.Send <- payload:
		default:
		}
	}
}

// SetActiveDevice marks deviceID as the user's active playback device.
func (r *Registry) SetActiveDevice(userID, deviceID string) {
	c := r.compartmentFor(userID, true)
	c.mu.Lock()
	c.activeDeviceID = deviceID
	c.mu.Unlock()
}

// ActiveDevice returns the user's current active device id, if any.
func (r *Registry) ActiveDevice(userID string) (string, bool) {
	c := r.compartmentFor(userID, false)
	if c == nil {
		return "", false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.activeDeviceID, c.activeDeviceID != ""
}

// SetPlaybackState records the user's current playback state.
func (r *Registry) SetPlaybackState(userID string, state domain.PlaybackState) {
	c := r.compartmentFor(userID, true)
	c.mu.Lock()
	c.playbackState = &state
	c.mu.Unlock()
}

// PlaybackState returns the user's current playback state, if any.
func (r *Registry) PlaybackState(userID string) (domain.PlaybackState, bool) {
	c := r.compartmentFor(userID, false)
	if c == nil {
		return domain.PlaybackState{}, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.playbackState == nil {
		return domain.PlaybackState{}, false
	}
	return *c.playbackState, true
}

// GetDevicePresences returns a snapshot of all connected devices for a user.
func (r *Registry) GetDevicePresences(userID string) []domain.DevicePresence {
	c := r.compartmentFor(userID, false)
	if c == nil {
		return nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]domain.DevicePresence, 0, len(c.connections))
	for _, h := range c.connections {
		out = append(out, domain.DevicePresence{
			DeviceInfo:   h.DeviceInfo,
			ConnectedAt:  h.ConnectedAt,
			LastActivity: h.LastActivity(),
			Active:       h.DeviceID == c.activeDeviceID,
		})
	}
	return out
}

// CleanupStale removes handles whose send channel is closed or whose idle
// time exceeds maxIdle, dropping empty user entries. Returns the number of
// handles removed.
func (r *Registry) CleanupStale(maxIdle time.Duration) int {
	r.mu.RLock()
	userIDs := make([]string, 0, len(r.users))
	for id := range r.users {
		userIDs = append(userIDs, id)
	}
	r.mu.RUnlock()

	now := time.Now()
	removed := 0

	for _, userID := range userIDs {
		c := r.compartmentFor(userID, false)
		if c == nil {
			continue
		}

		c.mu.Lock()
		for deviceID, h := range c.connections {
			if h.IsClosed() || now.Sub(h.LastActivity()) > maxIdle {
				delete(c.connections, deviceID)
				if c.activeDeviceID == deviceID {
					c.activeDeviceID = ""
				}
				removed++
			}
		}
		empty := len(c.connections) == 0
		c.mu.Unlock()

		if empty {
			r.mu.Lock()
			if current, ok := r.users[userID]; ok && current == c {
				delete(r.users, userID)
			}
			r.mu.Unlock()
		}
	}
	return removed
}
