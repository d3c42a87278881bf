// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/resonance-audio/resonance/internal/apierr"
	"github.com/resonance-audio/resonance/internal/domain"
	"github.com/resonance-audio/resonance/internal/log"
	"github.com/resonance-audio/resonance/internal/metrics"
	"github.com/resonance-audio/resonance/internal/realtime"
)

const (
	maxToolIterations  = 5
	recentMessageLimit = 20
	chatTimeout        = 30 * time.Second
	pipelineTimeout    = 2 * chatTimeout
	outputQueueDepth   = 100
)

// Store persists conversations and messages with atomic, dense
// per-conversation sequence numbers.
type Store interface {
	// EnsureConversation returns the named conversation if conversationID is
	// set, or creates a new one titled title otherwise.
	EnsureConversation(ctx context.Context, userID uuid.UUID, conversationID *uuid.UUID, title string) (domain.ChatConversation, error)
	RecentMessages(ctx context.Context, conversationID uuid.UUID, limit int) ([]domain.ChatMessage, error)
	// AppendMessage assigns the next dense sequence number for the
	// conversation and persists msg, returning it with ID/SequenceNumber set.
	AppendMessage(ctx context.Context, msg domain.ChatMessage) (domain.ChatMessage, error)
}

// CompletionRequest is one turn handed to the LLM backend.
type CompletionRequest struct {
	SystemPrompt string
	Messages     []domain.ChatMessage
	Tools        []ToolSchema
}

// CompletionChunk is one item streamed back by Backend.Complete. Token
// chunks arrive incrementally; the final chunk has Done set and carries any
// tool calls the model requested for this turn.
type CompletionChunk struct {
	Token     string
	ToolCalls []domain.ToolCall
	Done      bool
}

// Backend is the LLM port; the only part of this package allowed to know
// about a specific provider's wire shape.
type Backend interface {
	Complete(ctx context.Context, req CompletionRequest) (<-chan CompletionChunk, error)
}

// SystemPromptBuilder renders the system prompt carrying library context.
type SystemPromptBuilder func(snapshot domain.ContextSnapshot) string

// Service implements realtime.ChatDispatcher: validation, rate limiting,
// context building and the bounded tool-calling loop, streamed back as
// ChatStreamEvents. Grounded on original_source's chat_handler.rs message
// loop and other_examples' google-adk-go runner.go iteration-cap shape.
type Service struct {
	Store       Store
	Backend     Backend
	Tools       ToolExecutor
	Inspector   LibraryInspector
	RateLimiter Limiter
	Prompt      SystemPromptBuilder
}

var _ realtime.ChatDispatcher = (*Service)(nil)

// NewService builds a Service with its collaborators.
func NewService(store Store, backend Backend, tools ToolExecutor, inspector LibraryInspector, prompt SystemPromptBuilder) *Service {
	return &Service{
		Store:       store,
		Backend:     backend,
		Tools:       tools,
		Inspector:   inspector,
		RateLimiter: NewRateLimiter(),
		Prompt:      prompt,
	}
}

// Dispatch validates and rate-limits req, then runs the tool-calling loop in
// the background, streaming events on the returned channel until it closes.
func (s *Service) Dispatch(ctx context.Context, req realtime.ChatRequest) (<-chan realtime.ChatStreamEvent, error) {
	out := make(chan realtime.ChatStreamEvent, outputQueueDepth)
	go s.run(ctx, req, out)
	return out, nil
}

func (s *Service) run(ctx context.Context, req realtime.ChatRequest, out chan<- realtime.ChatStreamEvent) {
	defer close(out)

	ctx, cancel := context.WithTimeout(ctx, pipelineTimeout)
	defer cancel()

	convIDStr := ""
	if req.ConversationID != nil {
		convIDStr = *req.ConversationID
	}

	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		s.emitError(out, convIDStr, realtime.ChatCodeProcessingError, "invalid user")
		return
	}

	message, err := ValidateMessage(req.Message)
	if err != nil {
		s.emitError(out, convIDStr, realtime.ChatCodeInvalidMessage, "message is empty or too long")
		return
	}

	rl := s.RateLimiter.Allow(req.UserID, time.Now())
	if !rl.Allowed {
		metrics.RecordChatRequest("rate_limited")
		s.emitError(out, convIDStr, realtime.ChatCodeRateLimited, fmt.Sprintf("rate limited, retry in %ds", rl.RetryAfterSeconds))
		return
	}

	var conversationID *uuid.UUID
	if req.ConversationID != nil {
		parsed, err := uuid.Parse(*req.ConversationID)
		if err != nil {
			s.emitError(out, convIDStr, realtime.ChatCodeConversationNotFound, "invalid conversation id")
			return
		}
		conversationID = &parsed
	}

	conversation, err := s.Store.EnsureConversation(ctx, userID, conversationID, AutoTitle(message))
	if err != nil {
		log.L().Error().Err(err).Msg("chat: ensure conversation failed")
		s.emitError(out, convIDStr, realtime.ChatCodeDatabaseError, "could not load conversation")
		return
	}

	snapshot, err := BuildContextSnapshot(ctx, s.Inspector, userID)
	if err != nil {
		log.L().Warn().Err(err).Msg("chat: context snapshot failed, proceeding without it")
	}

	userMsg := domain.ChatMessage{
		ConversationID: conversation.ID,
		UserID:         userID,
		Role:           domain.RoleUser,
		Content:        message,
		Context:        &snapshot,
		CreatedAt:      time.Now(),
	}
	if _, err := s.Store.AppendMessage(ctx, userMsg); err != nil {
		log.L().Error().Err(err).Msg("chat: persist user message failed")
		s.emitError(out, conversation.ID.String(), realtime.ChatCodeDatabaseError, "could not save message")
		return
	}

	history, err := s.Store.RecentMessages(ctx, conversation.ID, recentMessageLimit)
	if err != nil {
		log.L().Error().Err(err).Msg("chat: load history failed")
		s.emitError(out, conversation.ID.String(), realtime.ChatCodeDatabaseError, "could not load history")
		return
	}

	systemPrompt := ""
	if s.Prompt != nil {
		systemPrompt = s.Prompt(snapshot)
	}

	finalText, actions, err := s.loop(ctx, userID, conversation.ID, systemPrompt, history, out)
	if err != nil {
		metrics.RecordChatRequest("error")
		log.L().Error().Err(err).Msg("chat: tool loop failed")
		s.emitError(out, conversation.ID.String(), realtime.ChatCodeAIUnavailable, "assistant is unavailable")
		return
	}
	metrics.RecordChatRequest("completed")

	assistantMsg := domain.ChatMessage{
		ConversationID: conversation.ID,
		UserID:         userID,
		Role:           domain.RoleAssistant,
		Content:        finalText,
		CreatedAt:      time.Now(),
	}
	stored, err := s.Store.AppendMessage(ctx, assistantMsg)
	if err != nil {
		log.L().Error().Err(err).Msg("chat: persist assistant message failed")
		s.emitError(out, conversation.ID.String(), realtime.ChatCodeDatabaseError, "could not save response")
		return
	}

	out <- realtime.ChatStreamEvent{
		Kind:           realtime.ChatEventComplete,
		ConversationID: conversation.ID.String(),
		MessageID:      stored.ID.String(),
		FullResponse:   finalText,
		Actions:        actions,
	}
}

// loop runs the bounded tool-calling conversation: it asks the backend for a
// completion, streams tokens as they arrive, and if the model requests
// tools, executes them and loops — up to maxToolIterations times.
func (s *Service) loop(ctx context.Context, userID, conversationID uuid.UUID, systemPrompt string, history []domain.ChatMessage, out chan<- realtime.ChatStreamEvent) (string, []realtime.ChatAction, error) {
	messages := append([]domain.ChatMessage(nil), history...)
	var actions []realtime.ChatAction

	iteration := 0
	defer func() {
		n := iteration + 1
		if n > maxToolIterations {
			n = maxToolIterations
		}
		metrics.ObserveChatLoopIterations(n)
	}()

	for ; iteration < maxToolIterations; iteration++ {
		chunks, err := s.Backend.Complete(ctx, CompletionRequest{
			SystemPrompt: systemPrompt,
			Messages:     messages,
			Tools:        ToolSchemas,
		})
		if err != nil {
			return "", nil, err
		}

		var text string
		var toolCalls []domain.ToolCall
		for chunk := range chunks {
			if chunk.Token != "" {
				text += chunk.Token
				out <- realtime.ChatStreamEvent{Kind: realtime.ChatEventToken, ConversationID: conversationID.String(), Token: chunk.Token}
			}
			if chunk.Done {
				toolCalls = chunk.ToolCalls
			}
		}

		if len(toolCalls) == 0 {
			return text, actions, nil
		}

		out <- realtime.ChatStreamEvent{Kind: realtime.ChatEventToolCallStart, ConversationID: conversationID.String()}

		assistantMsg := domain.ChatMessage{
			ConversationID: conversationID,
			UserID:         userID,
			Role:           domain.RoleAssistant,
			Content:        text,
			ToolCalls:      toolCalls,
			CreatedAt:      time.Now(),
		}
		if _, err := s.Store.AppendMessage(ctx, assistantMsg); err != nil {
			return "", nil, err
		}
		messages = append(messages, assistantMsg)

		for _, call := range toolCalls {
			result, action := s.executeTool(ctx, userID, call)
			if action != nil {
				actions = append(actions, *action)
			}
			callID := call.ID
			toolMsg := domain.ChatMessage{
				ConversationID: conversationID,
				UserID:         userID,
				Role:           domain.RoleTool,
				Content:        string(result),
				ToolCallID:     &callID,
				CreatedAt:      time.Now(),
			}
			if _, err := s.Store.AppendMessage(ctx, toolMsg); err != nil {
				return "", nil, err
			}
			messages = append(messages, toolMsg)
		}

		out <- realtime.ChatStreamEvent{Kind: realtime.ChatEventToolCallComplete, ConversationID: conversationID.String()}
	}

	return "I wasn't able to finish that request after several attempts. Could you try rephrasing it?", actions, nil
}

func (s *Service) executeTool(ctx context.Context, userID uuid.UUID, call domain.ToolCall) (json.RawMessage, *realtime.ChatAction) {
	var args map[string]any
	if err := json.Unmarshal(call.Arguments, &args); err != nil {
		return json.RawMessage(`{"error":"invalid tool arguments"}`), nil
	}

	result, err := ExecuteTool(ctx, s.Tools, userID, ToolName(call.Name), args)
	if err != nil {
		metrics.RecordChatToolCall(call.Name, "error")
		msg, _ := json.Marshal(map[string]string{"error": toolErrorMessage(err)})
		return msg, nil
	}

	metrics.RecordChatToolCall(call.Name, "ok")
	action := &realtime.ChatAction{Type: call.Name, Payload: result}
	return result, action
}

func toolErrorMessage(err error) string {
	if apiErr, ok := err.(*apierr.Error); ok {
		return apiErr.Message
	}
	return "tool execution failed"
}

func (s *Service) emitError(out chan<- realtime.ChatStreamEvent, conversationID, code, message string) {
	out <- realtime.ChatStreamEvent{
		Kind:           realtime.ChatEventError,
		ConversationID: conversationID,
		ErrorCode:      code,
		ErrorMessage:   message,
	}
}
