// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package chat

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resonance-audio/resonance/internal/domain"
	"github.com/resonance-audio/resonance/internal/realtime"
)

type fakeStore struct {
	mu            sync.Mutex
	conversations map[uuid.UUID]domain.ChatConversation
	messages      map[uuid.UUID][]domain.ChatMessage
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		conversations: make(map[uuid.UUID]domain.ChatConversation),
		messages:      make(map[uuid.UUID][]domain.ChatMessage),
	}
}

func (s *fakeStore) EnsureConversation(_ context.Context, userID uuid.UUID, conversationID *uuid.UUID, title string) (domain.ChatConversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if conversationID != nil {
		if conv, ok := s.conversations[*conversationID]; ok {
			return conv, nil
		}
		return domain.ChatConversation{}, assert.AnError
	}
	conv := domain.ChatConversation{ID: uuid.New(), UserID: userID, Title: title}
	s.conversations[conv.ID] = conv
	return conv, nil
}

func (s *fakeStore) RecentMessages(_ context.Context, conversationID uuid.UUID, limit int) ([]domain.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.messages[conversationID]
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]domain.ChatMessage, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (s *fakeStore) AppendMessage(_ context.Context, msg domain.ChatMessage) (domain.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg.ID = uuid.New()
	msg.SequenceNumber = len(s.messages[msg.ConversationID]) + 1
	s.messages[msg.ConversationID] = append(s.messages[msg.ConversationID], msg)
	return msg, nil
}

type scriptedBackend struct {
	responses [][]CompletionChunk
	calls     int
}

func (b *scriptedBackend) Complete(_ context.Context, _ CompletionRequest) (<-chan CompletionChunk, error) {
	idx := b.calls
	b.calls++
	chunks := b.responses[idx]
	ch := make(chan CompletionChunk, len(chunks))
	for _, c := range chunks {
		ch <- c
	}
	close(ch)
	return ch, nil
}

func testPrompt(_ domain.ContextSnapshot) string { return "system prompt" }

func drain(t *testing.T, ch <-chan realtime.ChatStreamEvent) []realtime.ChatStreamEvent {
	t.Helper()
	var events []realtime.ChatStreamEvent
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-timeout:
			t.Fatal("timed out draining chat stream")
		}
	}
}

func TestService_Dispatch_NoToolCalls_EmitsTokensAndComplete(t *testing.T) {
	backend := &scriptedBackend{responses: [][]CompletionChunk{
		{{Token: "Hello"}, {Token: " there"}, {Done: true}},
	}}
	svc := NewService(newFakeStore(), backend, &fakeExecutor{}, &fakeInspector{}, testPrompt)

	ch, err := svc.Dispatch(context.Background(), realtime.ChatRequest{UserID: uuid.New().String(), Message: "hi"})
	require.NoError(t, err)

	events := drain(t, ch)
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, realtime.ChatEventComplete, last.Kind)
	assert.Equal(t, "Hello there", last.FullResponse)
}

func TestService_Dispatch_ToolCallThenFinalResponse(t *testing.T) {
	trackID := uuid.New()
	args, _ := json.Marshal(map[string]string{"track_id": trackID.String()})
	backend := &scriptedBackend{responses: [][]CompletionChunk{
		{{Done: true, ToolCalls: []domain.ToolCall{{ID: "call-1", Name: "play_track", Arguments: args}}}},
		{{Token: "Playing it now."}, {Done: true}},
	}}
	svc := NewService(newFakeStore(), backend, &fakeExecutor{}, &fakeInspector{}, testPrompt)

	ch, err := svc.Dispatch(context.Background(), realtime.ChatRequest{UserID: uuid.New().String(), Message: "play that song"})
	require.NoError(t, err)

	events := drain(t, ch)
	var sawToolStart, sawToolComplete bool
	for _, ev := range events {
		if ev.Kind == realtime.ChatEventToolCallStart {
			sawToolStart = true
		}
		if ev.Kind == realtime.ChatEventToolCallComplete {
			sawToolComplete = true
		}
	}
	assert.True(t, sawToolStart)
	assert.True(t, sawToolComplete)

	last := events[len(events)-1]
	assert.Equal(t, realtime.ChatEventComplete, last.Kind)
	assert.Equal(t, "Playing it now.", last.FullResponse)
	require.Len(t, last.Actions, 1)
	assert.Equal(t, "play_track", last.Actions[0].Type)
}

func TestService_Dispatch_EmptyMessage_EmitsInvalidMessageError(t *testing.T) {
	backend := &scriptedBackend{responses: [][]CompletionChunk{}}
	svc := NewService(newFakeStore(), backend, &fakeExecutor{}, &fakeInspector{}, testPrompt)

	ch, err := svc.Dispatch(context.Background(), realtime.ChatRequest{UserID: uuid.New().String(), Message: "   "})
	require.NoError(t, err)

	events := drain(t, ch)
	require.Len(t, events, 1)
	assert.Equal(t, realtime.ChatEventError, events[0].Kind)
	assert.Equal(t, realtime.ChatCodeInvalidMessage, events[0].ErrorCode)
}

func TestService_Dispatch_RateLimited_EmitsErrorEvent(t *testing.T) {
	backend := &scriptedBackend{responses: [][]CompletionChunk{
		{{Token: "hi"}, {Done: true}},
		{{Token: "hi"}, {Done: true}},
	}}
	svc := NewService(newFakeStore(), backend, &fakeExecutor{}, &fakeInspector{}, testPrompt)
	userID := uuid.New().String()

	first, err := svc.Dispatch(context.Background(), realtime.ChatRequest{UserID: userID, Message: "first message"})
	require.NoError(t, err)
	drain(t, first)

	second, err := svc.Dispatch(context.Background(), realtime.ChatRequest{UserID: userID, Message: "second message"})
	require.NoError(t, err)
	events := drain(t, second)

	require.Len(t, events, 1)
	assert.Equal(t, realtime.ChatEventError, events[0].Kind)
	assert.Equal(t, realtime.ChatCodeRateLimited, events[0].ErrorCode)
}

func TestService_Dispatch_ExceedsIterationCap_EmitsApologyComplete(t *testing.T) {
	args, _ := json.Marshal(map[string]string{"query": "x", "search_type": "track"})
	toolResponse := []CompletionChunk{{Done: true, ToolCalls: []domain.ToolCall{{ID: "call-1", Name: "search_library", Arguments: args}}}}
	backend := &scriptedBackend{responses: [][]CompletionChunk{
		toolResponse, toolResponse, toolResponse, toolResponse, toolResponse,
	}}
	svc := NewService(newFakeStore(), backend, &fakeExecutor{}, &fakeInspector{}, testPrompt)

	ch, err := svc.Dispatch(context.Background(), realtime.ChatRequest{UserID: uuid.New().String(), Message: "find me something"})
	require.NoError(t, err)

	events := drain(t, ch)
	last := events[len(events)-1]
	assert.Equal(t, realtime.ChatEventComplete, last.Kind)
	assert.Contains(t, last.FullResponse, "wasn't able to finish")
	assert.Equal(t, 5, backend.calls)
}
