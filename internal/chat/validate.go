// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package chat implements the Chat Orchestrator (spec §4.12, C12): message
// validation, per-user rate limiting, context-snapshot building, and the
// bounded tool-calling loop against an opaque LLM port. Grounded on
// original_source/apps/api/src/websocket/chat_handler.rs and
// apps/api/src/repositories/chat.rs for the validation rules and the atomic
// dense-sequence-number contract, and on other_examples' nonomal-WeKnora
// chat_manage.go / google-adk-go runner.go for the tool-calling loop shape.
package chat

import (
	"strings"

	"github.com/resonance-audio/resonance/internal/apierr"
)

const maxMessageLength = 10_000

// ValidateMessage rejects empty (post-trim) and over-long messages.
func ValidateMessage(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", apierr.Of(apierr.KindValidation, "message must not be empty")
	}
	if len(trimmed) > maxMessageLength {
		return "", apierr.Of(apierr.KindValidation, "message exceeds maximum length")
	}
	return trimmed, nil
}

// AutoTitle derives a conversation title from the first five words of a
// validated (already-trimmed) message.
func AutoTitle(message string) string {
	fields := strings.Fields(message)
	if len(fields) > 5 {
		fields = fields[:5]
	}
	return strings.Join(fields, " ")
}
