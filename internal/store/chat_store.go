// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/resonance-audio/resonance/internal/chat"
	"github.com/resonance-audio/resonance/internal/domain"
)

var (
	_ chat.Store            = (*Store)(nil)
	_ chat.LibraryInspector = (*Store)(nil)
)

// EnsureConversation implements chat.Store: it returns the named
// conversation if conversationID is set, or creates a new one titled title.
func (s *Store) EnsureConversation(ctx context.Context, userID uuid.UUID, conversationID *uuid.UUID, title string) (domain.ChatConversation, error) {
	if conversationID != nil {
		var conv domain.ChatConversation
		var deletedAt sql.NullString
		err := s.DB.QueryRowContext(ctx, `SELECT id, user_id, title, deleted_at FROM chat_conversations WHERE id = ? AND user_id = ?`,
			conversationID.String(), userID.String()).Scan(&conv.ID, &conv.UserID, &conv.Title, &deletedAt)
		if err != nil {
			return domain.ChatConversation{}, fmt.Errorf("store: conversation lookup: %w", err)
		}
		if deletedAt.Valid {
			t, _ := time.Parse(time.RFC3339, deletedAt.String)
			conv.DeletedAt = &t
		}
		return conv, nil
	}

	conv := domain.ChatConversation{ID: uuid.New(), UserID: userID, Title: title}
	if _, err := s.DB.ExecContext(ctx, `INSERT INTO chat_conversations (id, user_id, title) VALUES (?, ?, ?)`,
		conv.ID.String(), conv.UserID.String(), conv.Title); err != nil {
		return domain.ChatConversation{}, fmt.Errorf("store: create conversation: %w", err)
	}
	return conv, nil
}

// RecentMessages implements chat.Store: the most recent limit messages for
// conversationID, oldest first.
func (s *Store) RecentMessages(ctx context.Context, conversationID uuid.UUID, limit int) ([]domain.ChatMessage, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, conversation_id, user_id, role, sequence_number, content, tool_calls, tool_call_id, context, model, token_count, created_at
		FROM chat_messages WHERE conversation_id = ?
		ORDER BY sequence_number DESC LIMIT ?`, conversationID.String(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reversed []domain.ChatMessage
	for rows.Next() {
		msg, err := scanChatMessage(rows)
		if err != nil {
			return nil, err
		}
		reversed = append(reversed, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]domain.ChatMessage, len(reversed))
	for i, msg := range reversed {
		out[len(reversed)-1-i] = msg
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChatMessage(row rowScanner) (domain.ChatMessage, error) {
	var (
		msg          domain.ChatMessage
		id           string
		conversation string
		user         string
		toolCalls    sql.NullString
		toolCallID   sql.NullString
		contextJSON  sql.NullString
		createdAt    string
	)
	if err := row.Scan(&id, &conversation, &user, &msg.Role, &msg.SequenceNumber, &msg.Content,
		&toolCalls, &toolCallID, &contextJSON, &msg.Model, &msg.TokenCount, &createdAt); err != nil {
		return domain.ChatMessage{}, err
	}

	var err error
	if msg.ID, err = uuid.Parse(id); err != nil {
		return domain.ChatMessage{}, err
	}
	if msg.ConversationID, err = uuid.Parse(conversation); err != nil {
		return domain.ChatMessage{}, err
	}
	if msg.UserID, err = uuid.Parse(user); err != nil {
		return domain.ChatMessage{}, err
	}
	msg.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)

	if toolCalls.Valid && toolCalls.String != "" {
		if err := json.Unmarshal([]byte(toolCalls.String), &msg.ToolCalls); err != nil {
			return domain.ChatMessage{}, err
		}
	}
	if toolCallID.Valid {
		id := toolCallID.String
		msg.ToolCallID = &id
	}
	if contextJSON.Valid && contextJSON.String != "" {
		var snapshot domain.ContextSnapshot
		if err := json.Unmarshal([]byte(contextJSON.String), &snapshot); err != nil {
			return domain.ChatMessage{}, err
		}
		msg.Context = &snapshot
	}

	return msg, nil
}

// AppendMessage implements chat.Store: assigns the next dense sequence
// number for msg.ConversationID inside a transaction and persists it.
func (s *Store) AppendMessage(ctx context.Context, msg domain.ChatMessage) (domain.ChatMessage, error) {
	tx, err := s.DB.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return domain.ChatMessage{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var maxSeq sql.NullInt64
	if err := tx.QueryRowContext(ctx, `SELECT MAX(sequence_number) FROM chat_messages WHERE conversation_id = ?`,
		msg.ConversationID.String()).Scan(&maxSeq); err != nil {
		return domain.ChatMessage{}, err
	}
	msg.SequenceNumber = int(maxSeq.Int64) + 1
	msg.ID = uuid.New()
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}

	var toolCallsJSON, contextJSON []byte
	if len(msg.ToolCalls) > 0 {
		toolCallsJSON, err = json.Marshal(msg.ToolCalls)
		if err != nil {
			return domain.ChatMessage{}, err
		}
	}
	if msg.Context != nil {
		contextJSON, err = json.Marshal(msg.Context)
		if err != nil {
			return domain.ChatMessage{}, err
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO chat_messages (id, conversation_id, user_id, role, sequence_number, content, tool_calls, tool_call_id, context, model, token_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID.String(), msg.ConversationID.String(), msg.UserID.String(), string(msg.Role), msg.SequenceNumber, msg.Content,
		nullableString(toolCallsJSON), nullableStringPtr(msg.ToolCallID), nullableString(contextJSON), msg.Model, msg.TokenCount,
		msg.CreatedAt.Format(time.RFC3339)); err != nil {
		return domain.ChatMessage{}, err
	}

	if err := tx.Commit(); err != nil {
		return domain.ChatMessage{}, err
	}
	return msg, nil
}

func nullableString(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

func nullableStringPtr(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

// SummarizeLibrary implements chat.LibraryInspector: fresh counts and the
// user's top five genres by track count, read on every chat message.
func (s *Store) SummarizeLibrary(ctx context.Context, userID uuid.UUID) (chat.LibrarySummary, error) {
	var summary chat.LibrarySummary

	if err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM tracks`).Scan(&summary.TrackCount); err != nil {
		return chat.LibrarySummary{}, err
	}
	if err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM artists`).Scan(&summary.ArtistCount); err != nil {
		return chat.LibrarySummary{}, err
	}
	if err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM albums`).Scan(&summary.AlbumCount); err != nil {
		return chat.LibrarySummary{}, err
	}
	if err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM playlists WHERE user_id = ?`, userID.String()).
		Scan(&summary.PlaylistCount); err != nil {
		return chat.LibrarySummary{}, err
	}

	rows, err := s.DB.QueryContext(ctx, `SELECT genres FROM tracks WHERE genres != '[]'`)
	if err != nil {
		return chat.LibrarySummary{}, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var genresJSON string
		if err := rows.Scan(&genresJSON); err != nil {
			return chat.LibrarySummary{}, err
		}
		for g := range jsonStringSet(genresJSON) {
			counts[g]++
		}
	}
	if err := rows.Err(); err != nil {
		return chat.LibrarySummary{}, err
	}
	summary.TopGenres = topNGenres(counts, 5)

	return summary, nil
}

func topNGenres(counts map[string]int, n int) []string {
	type pair struct {
		genre string
		count int
	}
	pairs := make([]pair, 0, len(counts))
	for g, c := range counts {
		pairs = append(pairs, pair{g, c})
	}
	for i := 1; i < len(pairs); i++ {
		for j := i; j > 0 && pairs[j].count > pairs[j-1].count; j-- {
			pairs[j], pairs[j-1] = pairs[j-1], pairs[j]
		}
	}
	if len(pairs) > n {
		pairs = pairs[:n]
	}
	out := make([]string, len(pairs))
	for i, p := range pairs {
		out[i] = p.genre
	}
	return out
}
