package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/silvergrove/coach"
)

// AppendMessage appends a message to a session with the next seq.
//
// The whole append runs in one transaction that locks the session row, so
// two concurrent appends cannot be assigned the same seq. Relying on
// creation timestamps for ordering would break under rapid successive
// writes; seq is the only order key.
func (s *PGStore) AppendMessage(ctx context.Context, sessionID, role, content string, metadata map[string]string, usage *coach.Usage) (*coach.Message, error) {
	msg := &coach.Message{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		Metadata:  metadata,
		Usage:     usage,
	}

	var metadataJSON []byte
	if len(metadata) > 0 {
		var err error
		metadataJSON, err = json.Marshal(metadata)
		if err != nil {
			return nil, fmt.Errorf("coach: marshal metadata: %w", err)
		}
	}

	var promptTokens, responseTokens, totalTokens int
	if usage != nil {
		promptTokens = usage.PromptTokens
		responseTokens = usage.ResponseTokens
		totalTokens = usage.TotalTokens
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("coach: append message: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := lockSession(ctx, tx, sessionID); err != nil {
		return nil, err
	}

	err = tx.QueryRow(ctx,
		`INSERT INTO coach_messages (id, session_id, seq, role, content, metadata, prompt_tokens, response_tokens, total_tokens)
		 VALUES ($1, $2, COALESCE((SELECT MAX(seq) FROM coach_messages WHERE session_id = $2), 0) + 1, $3, $4, $5, $6, $7, $8)
		 RETURNING seq, created_at`,
		msg.ID, sessionID, role, content, metadataJSON, promptTokens, responseTokens, totalTokens,
	).Scan(&msg.Seq, &msg.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("coach: append message: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE coach_sessions SET message_count = message_count + 1, updated_at = NOW() WHERE id = $1`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("coach: append message: update session: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("coach: append message: commit: %w", err)
	}

	s.logger.Debug("appended message", "session_id", sessionID, "seq", msg.Seq, "role", role)
	return msg, nil
}

// ListMessages returns all messages for a session ordered by seq. This is
// the canonical read.
func (s *PGStore) ListMessages(ctx context.Context, sessionID string) ([]coach.Message, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, session_id, seq, role, content, metadata, prompt_tokens, response_tokens, total_tokens, created_at
		 FROM coach_messages WHERE session_id = $1 ORDER BY seq ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("coach: list messages: %w", err)
	}
	defer rows.Close()

	var messages []coach.Message
	for rows.Next() {
		var msg coach.Message
		var metadataJSON []byte
		var pt, rt, tt int

		err := rows.Scan(&msg.ID, &msg.SessionID, &msg.Seq, &msg.Role, &msg.Content,
			&metadataJSON, &pt, &rt, &tt, &msg.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("coach: scan message: %w", err)
		}

		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &msg.Metadata); err != nil {
				s.logger.Warn("skipping malformed message metadata", "message_id", msg.ID, "error", err)
			}
		}
		if pt > 0 || rt > 0 || tt > 0 {
			msg.Usage = &coach.Usage{PromptTokens: pt, ResponseTokens: rt, TotalTokens: tt}
		}

		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("coach: list messages: %w", err)
	}

	return messages, nil
}

// DeleteMessagesAfter removes every message with seq > afterSeq in a single
// range delete. The statement is atomic: an interrupted truncation can never
// leave some suffix messages deleted and others not.
func (s *PGStore) DeleteMessagesAfter(ctx context.Context, sessionID string, afterSeq int) (int, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("coach: delete messages: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := lockSession(ctx, tx, sessionID); err != nil {
		return 0, err
	}

	tag, err := tx.Exec(ctx,
		`DELETE FROM coach_messages WHERE session_id = $1 AND seq > $2`,
		sessionID, afterSeq,
	)
	if err != nil {
		return 0, fmt.Errorf("coach: delete messages after seq %d: %w", afterSeq, err)
	}
	deleted := int(tag.RowsAffected())

	_, err = tx.Exec(ctx,
		`UPDATE coach_sessions
		 SET message_count = (SELECT COUNT(*) FROM coach_messages WHERE session_id = $1),
		     updated_at = NOW()
		 WHERE id = $1`,
		sessionID,
	)
	if err != nil {
		return 0, fmt.Errorf("coach: delete messages: update session: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("coach: delete messages: commit: %w", err)
	}

	s.logger.Debug("deleted message suffix", "session_id", sessionID, "after_seq", afterSeq, "deleted", deleted)
	return deleted, nil
}

// UpdateMessageContent rewrites a message's content in place. ID, role, and
// seq are untouched.
func (s *PGStore) UpdateMessageContent(ctx context.Context, sessionID, messageID, content string) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("coach: update message: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE coach_messages SET content = $3 WHERE session_id = $1 AND id = $2`,
		sessionID, messageID, content,
	)
	if err != nil {
		return fmt.Errorf("coach: update message: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return coach.ErrMessageNotFound
	}

	_, err = tx.Exec(ctx,
		`UPDATE coach_sessions SET updated_at = NOW() WHERE id = $1`,
		sessionID,
	)
	if err != nil {
		return fmt.Errorf("coach: update message: update session: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("coach: update message: commit: %w", err)
	}

	return nil
}

// lockSession takes the session row lock for the duration of tx. Missing or
// soft-deleted sessions surface as coach.ErrSessionNotFound.
func lockSession(ctx context.Context, tx pgx.Tx, sessionID string) error {
	var id string
	err := tx.QueryRow(ctx,
		`SELECT id FROM coach_sessions WHERE id = $1 AND deleted_at IS NULL FOR UPDATE`,
		sessionID,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return coach.ErrSessionNotFound
	}
	if err != nil {
		return fmt.Errorf("coach: lock session: %w", err)
	}
	return nil
}
