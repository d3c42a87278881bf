// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package chat

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/resonance-audio/resonance/internal/domain"
)

// AnthropicBackend implements Backend against the Claude Messages API. It
// is the only file in this package that knows anthropic-sdk-go's wire
// shape; everything else in the tool-calling loop talks to the Backend
// port instead.
type AnthropicBackend struct {
	client anthropic.Client
	model  anthropic.Model
}

// NewAnthropicBackend builds a backend from an API key and model name.
func NewAnthropicBackend(apiKey string, model anthropic.Model) *AnthropicBackend {
	return &AnthropicBackend{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

func toAnthropicTools(tools []ToolSchema) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		schema, _ := json.Marshal(t.InputSchema)
		out = append(out, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        string(t.Name),
				Description: anthropic.String(t.Description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: json.RawMessage(schema),
				},
			},
		})
	}
	return out
}

func toAnthropicMessages(messages []domain.ChatMessage) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case domain.RoleUser:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		case domain.RoleAssistant:
			blocks := []anthropic.ContentBlockParamUnion{}
			if m.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(m.Content))
			}
			for _, call := range m.ToolCalls {
				blocks = append(blocks, anthropic.NewToolUseBlock(call.ID, call.Arguments, call.Name))
			}
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		case domain.RoleTool:
			id := ""
			if m.ToolCallID != nil {
				id = *m.ToolCallID
			}
			out = append(out, anthropic.NewUserMessage(anthropic.NewToolResultBlock(id, m.Content, false)))
		}
	}
	return out
}

// Complete sends req to Claude and translates the streamed response into
// CompletionChunks: text deltas as they arrive, and any requested tool
// calls on the final chunk.
func (b *AnthropicBackend) Complete(ctx context.Context, req CompletionRequest) (<-chan CompletionChunk, error) {
	out := make(chan CompletionChunk, 32)

	stream := b.client.Messages.NewStreaming(ctx, anthropic.MessageNewParams{
		Model:     b.model,
		MaxTokens: 4096,
		System:    []anthropic.TextBlockParam{{Text: req.SystemPrompt}},
		Messages:  toAnthropicMessages(req.Messages),
		Tools:     toAnthropicTools(req.Tools),
	})

	go func() {
		defer close(out)

		var message anthropic.Message
		for stream.Next() {
			event := stream.Current()
			if err := message.Accumulate(event); err != nil {
				return
			}
			if delta, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent); ok {
				if textDelta, ok := delta.Delta.AsAny().(anthropic.TextDelta); ok && textDelta.Text != "" {
					select {
					case out <- CompletionChunk{Token: textDelta.Text}:
					case <-ctx.Done():
						return
					}
				}
			}
		}
		if err := stream.Err(); err != nil {
			return
		}

		var toolCalls []domain.ToolCall
		for _, block := range message.Content {
			if use, ok := block.AsAny().(anthropic.ToolUseBlock); ok {
				toolCalls = append(toolCalls, domain.ToolCall{
					ID:        use.ID,
					Name:      use.Name,
					Arguments: json.RawMessage(use.Input),
				})
			}
		}

		out <- CompletionChunk{Done: true, ToolCalls: toolCalls}
	}()

	return out, nil
}

// ModelFromName resolves a configured model name to the SDK's typed
// constant, falling back to treating it as a raw model string.
func ModelFromName(name string) anthropic.Model {
	if name == "" {
		return anthropic.ModelClaude3_7SonnetLatest
	}
	return anthropic.Model(fmt.Sprint(name))
}
