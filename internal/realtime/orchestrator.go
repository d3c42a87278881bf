// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/resonance-audio/resonance/internal/domain"
	"github.com/resonance-audio/resonance/internal/log"
	"github.com/resonance-audio/resonance/internal/metrics"
)

const (
	writeTimeout    = 5 * time.Second
	readLimitBytes  = 1 << 20
	chatQueueDepth  = 4
	staleSweepEvery = 2 * time.Minute
	staleMaxIdle    = 10 * time.Minute
)

// ChatRequest is one inbound chat message handed to the C12 dispatcher.
type ChatRequest struct {
	UserID         string
	DeviceID       string
	ConversationID *string
	Message        string
}

// ChatStreamEventKind discriminates ChatStreamEvent per spec §4.12.
type ChatStreamEventKind string

const (
	ChatEventToken            ChatStreamEventKind = "token"
	ChatEventToolCallStart    ChatStreamEventKind = "tool_call_start"
	ChatEventToolCallComplete ChatStreamEventKind = "tool_call_complete"
	ChatEventComplete         ChatStreamEventKind = "complete"
	ChatEventError            ChatStreamEventKind = "error"
)

// ChatAction is a client-actionable side effect emitted on ChatComplete
// (e.g. "play the track the user asked for").
type ChatAction struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ChatStreamEvent is one item of the bounded streaming channel C12 produces.
type ChatStreamEvent struct {
	Kind           ChatStreamEventKind
	Token          string
	ConversationID string
	MessageID      string
	FullResponse   string
	Actions        []ChatAction
	ErrorCode      string
	ErrorMessage   string
}

// ChatDispatcher is the port C11 uses to hand a validated chat message to
// C12 and receive its streamed response back. Implementations own rate
// limiting, context building, the tool-calling loop and persistence.
type ChatDispatcher interface {
	Dispatch(ctx context.Context, req ChatRequest) (<-chan ChatStreamEvent, error)
}

// ScrobbleReporter is the port handlePlaybackUpdate uses to evaluate every
// playback-position update against the Scrobble Policy (C13) and submit a
// ListenBrainz scrobble once a play becomes eligible. Optional: a nil
// Orchestrator.Scrobble disables scrobbling entirely.
type ScrobbleReporter interface {
	ReportProgress(ctx context.Context, userID, trackID string, positionMS int64, isPlaying bool)
}

// Orchestrator upgrades and serves one realtime session at a time, owning
// presence fan-out, playback-state broadcast and chat dispatch. Grounded on
// rustyguts-bken's internal/ws/handler.go hello/serveConn/writer-goroutine
// shape, generalized to this spec's Ping/DeviceTakeover/ChatSend message set
// and with authentication already verified by upstream HTTP middleware
// rather than a first-message hello.
type Orchestrator struct {
	Registry *Registry
	Chat     ChatDispatcher
	Scrobble ScrobbleReporter
	upgrader websocket.Upgrader
}

// NewOrchestrator builds an orchestrator bound to a shared registry. Scrobble
// reporting is disabled until Orchestrator.Scrobble is set.
func NewOrchestrator(registry *Registry, chat ChatDispatcher) *Orchestrator {
	return &Orchestrator{
		Registry: registry,
		Chat:     chat,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(_ *http.Request) bool { return true },
		},
	}
}

// StartStaleSweep runs CleanupStale on a ticker until ctx is cancelled.
func (o *Orchestrator) StartStaleSweep(ctx context.Context) {
	ticker := time.NewTicker(staleSweepEvery)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := o.Registry.CleanupStale(staleMaxIdle); n > 0 {
					log.L().Info().Int("removed", n).Msg("realtime: stale connections swept")
				}
			}
		}
	}()
}

// Serve upgrades the request and serves the session until the socket closes
// or ctx is cancelled. userID is the already-authenticated identity;
// deviceID is client-provided or generated by the caller.
func (o *Orchestrator) Serve(ctx context.Context, w http.ResponseWriter, r *http.Request, userID, deviceID string, deviceType domain.DeviceType) error {
	conn, err := o.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	conn.SetReadLimit(readLimitBytes)

	handle := &Handle{
		DeviceID:    deviceID,
		DeviceInfo:  domain.DeviceInfo{DeviceID: deviceID, DeviceType: deviceType},
		ConnectedAt: time.Now(),
		Send:        make(chan []byte, 16),
	}
	handle.Touch()
	o.Registry.Add(userID, handle)
	metrics.RealtimeConnectionsActive.Inc()

	sessionCtx, cancel := context.WithCancel(ctx)
	chatQueue := make(chan ChatRequest, chatQueueDepth)

	defer func() {
		cancel()
		o.Registry.Remove(userID, deviceID)
		metrics.RealtimeConnectionsActive.Dec()
		o.broadcastPresence(userID)
	}()

	go o.writerLoop(conn, handle)
	go o.chatWorker(sessionCtx, userID, deviceID, chatQueue)

	o.broadcastPresence(userID)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return nil
		}
		handle.Touch()
		o.Registry.Touch(userID, deviceID)

		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			continue
		}
		o.handleInbound(sessionCtx, userID, deviceID, env, chatQueue)
	}
}

func (o *Orchestrator) writerLoop(conn *websocket.Conn, handle *Handle) {
	for payload := range handle.Send {
		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
}

func (o *Orchestrator) chatWorker(ctx context.Context, userID, deviceID string, queue <-chan ChatRequest) {
	for {
		select {
		case <-ctx.Done():
			return
		case req, ok := <-queue:
			if !ok {
				return
			}
			o.dispatchChat(ctx, userID, deviceID, req)
		}
	}
}

func (o *Orchestrator) dispatchChat(ctx context.Context, userID, deviceID string, req ChatRequest) {
	if o.Chat == nil {
		return
	}
	events, err := o.Chat.Dispatch(ctx, req)
	if err != nil {
		o.sendChatError(userID, deviceID, req.ConversationID, ChatCodeProcessingError, "chat dispatch failed")
		return
	}
	for ev := range events {
		o.sendChatEvent(userID, deviceID, ev)
	}
}

func (o *Orchestrator) handleInbound(ctx context.Context, userID, deviceID string, env Envelope, chatQueue chan<- ChatRequest) {
	metrics.RecordRealtimeMessage(string(env.Type))

	switch env.Type {
	case TypePing:
		o.handlePing(userID, deviceID)

	case TypeUpdatePlaybackState:
		o.handlePlaybackUpdate(ctx, userID, deviceID, env.Payload)

	case TypeDeviceTakeover:
		o.handleDeviceTakeover(userID, deviceID)

	case TypeChatSend:
		o.handleChatSend(userID, deviceID, env.Payload, chatQueue)
	}
}

func (o *Orchestrator) handlePing(userID, deviceID string) {
	payload, err := encode(TypePong, PongPayload{ServerTimeUnixMS: time.Now().UnixMilli()})
	if err != nil {
		return
	}
	o.Registry.SendToDevice(userID, deviceID, payload)
}

func (o *Orchestrator) handlePlaybackUpdate(ctx context.Context, userID, deviceID string, raw json.RawMessage) {
	var in UpdatePlaybackStatePayload
	if err := json.Unmarshal(raw, &in); err != nil {
		return
	}
	active, ok := o.Registry.ActiveDevice(userID)
	if ok && active != deviceID {
		// Only the active device's updates are authoritative; ignore others.
		return
	}

	if o.Scrobble != nil && in.TrackID != nil {
		o.Scrobble.ReportProgress(ctx, userID, *in.TrackID, in.PositionMS, in.IsPlaying)
	}

	state := domain.PlaybackState{
		TrackID:    in.TrackID,
		IsPlaying:  in.IsPlaying,
		PositionMS: in.PositionMS,
		Timestamp:  time.Now(),
		Volume:     in.Volume,
		Muted:      in.Muted,
		Shuffle:    in.Shuffle,
		Repeat:     in.Repeat,
	}
	o.Registry.SetPlaybackState(userID, state)

	payload, err := encode(TypePlaybackStateUpdate, PlaybackStateUpdatePayload{State: state})
	if err != nil {
		return
	}
	o.Registry.BroadcastToOthers(userID, deviceID, payload)
}

func (o *Orchestrator) handleDeviceTakeover(userID, deviceID string) {
	o.Registry.SetActiveDevice(userID, deviceID)
	o.broadcastPresence(userID)
}

func (o *Orchestrator) handleChatSend(userID, deviceID string, raw json.RawMessage, chatQueue chan<- ChatRequest) {
	var in ChatSendPayload
	if err := json.Unmarshal(raw, &in); err != nil {
		o.sendChatError(userID, deviceID, nil, ChatCodeInvalidMessage, "malformed chat payload")
		return
	}
	req := ChatRequest{
		UserID:         userID,
		DeviceID:       deviceID,
		ConversationID: in.ConversationID,
		Message:        in.Message,
	}
	select {
	case chatQueue <- req:
	default:
		o.sendChatError(userID, deviceID, in.ConversationID, ChatCodeRateLimited, "too many pending chat messages")
	}
}

func (o *Orchestrator) broadcastPresence(userID string) {
	devices := o.Registry.GetDevicePresences(userID)
	payload, err := encode(TypeDevicePresenceUpdate, DevicePresenceUpdatePayload{Devices: devices})
	if err != nil {
		return
	}
	o.Registry.BroadcastToUser(userID, payload)
}

func (o *Orchestrator) sendChatError(userID, deviceID string, conversationID *string, code, message string) {
	payload, err := encode(TypeChatError, ChatErrorPayload{ConversationID: conversationID, Code: code, Error: message})
	if err != nil {
		return
	}
	o.Registry.SendToDevice(userID, deviceID, payload)
}

func (o *Orchestrator) sendChatEvent(userID, deviceID string, ev ChatStreamEvent) {
	var payload []byte
	var err error

	switch ev.Kind {
	case ChatEventToken:
		payload, err = encode(TypeChatToken, map[string]string{"token": ev.Token})
	case ChatEventToolCallStart:
		payload, err = encode(TypeChatToolCallStart, map[string]string{"conversation_id": ev.ConversationID})
	case ChatEventToolCallComplete:
		payload, err = encode(TypeChatToolCallComplete, map[string]string{"conversation_id": ev.ConversationID})
	case ChatEventComplete:
		payload, err = encode(TypeChatComplete, map[string]any{
			"conversation_id": ev.ConversationID,
			"message_id":      ev.MessageID,
			"full_response":   ev.FullResponse,
			"actions":         ev.Actions,
		})
	case ChatEventError:
		conversationID := &ev.ConversationID
		if ev.ConversationID == "" {
			conversationID = nil
		}
		payload, err = encode(TypeChatError, ChatErrorPayload{ConversationID: conversationID, Code: ev.ErrorCode, Error: ev.ErrorMessage})
	default:
		return
	}
	if err != nil {
		return
	}
	o.Registry.SendToDevice(userID, deviceID, payload)
}
