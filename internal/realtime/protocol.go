// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package realtime

import (
	"encoding/json"

	"github.com/resonance-audio/resonance/internal/domain"
)

// MessageType discriminates the JSON envelope carried over the socket, the
// same tagged-union shape rustyguts-bken uses for its protocol.Message.
type MessageType string

const (
	// Client -> server.
	TypePing                MessageType = "Ping"
	TypeUpdatePlaybackState MessageType = "UpdatePlaybackState"
	TypeDeviceTakeover      MessageType = "DeviceTakeover"
	TypeChatSend            MessageType = "ChatSend"

	// Server -> client.
	TypePong                 MessageType = "Pong"
	TypeDevicePresenceUpdate MessageType = "DevicePresenceUpdate"
	TypePlaybackStateUpdate  MessageType = "PlaybackStateUpdate"
	TypeChatToken            MessageType = "ChatToken"
	TypeChatToolCallStart    MessageType = "ChatToolCallStart"
	TypeChatToolCallComplete MessageType = "ChatToolCallComplete"
	TypeChatComplete         MessageType = "ChatComplete"
	TypeChatError            MessageType = "ChatError"
)

// Envelope is the wire message: a type tag plus an opaque payload decoded
// according to that tag.
type Envelope struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func encode(t MessageType, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: t, Payload: raw})
}

// PongPayload answers a Ping.
type PongPayload struct {
	ServerTimeUnixMS int64 `json:"server_time_unix_ms"`
}

// UpdatePlaybackStatePayload carries a client's playback-state change.
type UpdatePlaybackStatePayload struct {
	TrackID    *string           `json:"track_id,omitempty"`
	IsPlaying  bool              `json:"is_playing"`
	PositionMS int64             `json:"position_ms"`
	Volume     float64           `json:"volume"`
	Muted      bool              `json:"muted"`
	Shuffle    bool              `json:"shuffle"`
	Repeat     domain.RepeatMode `json:"repeat"`
}

// DeviceTakeoverPayload requests that the sender become the active device.
type DeviceTakeoverPayload struct{}

// ChatSendPayload is an inbound chat message.
type ChatSendPayload struct {
	ConversationID *string `json:"conversation_id,omitempty"`
	Message        string  `json:"message"`
}

// DevicePresenceUpdatePayload reports the full device list for a user.
type DevicePresenceUpdatePayload struct {
	Devices []domain.DevicePresence `json:"devices"`
}

// PlaybackStateUpdatePayload fans a playback-state change out to siblings.
type PlaybackStateUpdatePayload struct {
	State domain.PlaybackState `json:"state"`
}

// ChatErrorPayload reports a sanitized chat-pipeline failure.
type ChatErrorPayload struct {
	ConversationID *string `json:"conversation_id,omitempty"`
	Code           string  `json:"code"`
	Error          string  `json:"error"`
}

// Chat error codes from spec §4.12/§6.
const (
	ChatCodeRateLimited          = "RATE_LIMITED"
	ChatCodeConversationNotFound = "CONVERSATION_NOT_FOUND"
	ChatCodeAIUnavailable        = "AI_UNAVAILABLE"
	ChatCodeInvalidMessage       = "INVALID_MESSAGE"
	ChatCodeTimeout              = "TIMEOUT"
	ChatCodeDatabaseError        = "DATABASE_ERROR"
	ChatCodeProcessingError      = "PROCESSING_ERROR"
	ChatCodeToolError            = "TOOL_ERROR"
)
