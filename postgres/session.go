package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/silvergrove/coach"
)

// CreateSession creates a new session for ownerID with the given rules.
func (s *PGStore) CreateSession(ctx context.Context, ownerID, title string, rules coach.Rules) (*coach.Session, error) {
	session := &coach.Session{
		ID:      uuid.New().String(),
		OwnerID: ownerID,
		Title:   title,
		Rules:   rules,
	}

	err := s.db.QueryRow(ctx,
		`INSERT INTO coach_sessions (id, owner_id, title, system_prompt, max_tokens)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING created_at, updated_at`,
		session.ID, ownerID, title, rules.SystemPrompt, rules.MaxTokens,
	).Scan(&session.CreatedAt, &session.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("coach: create session: %w", err)
	}

	s.logger.Debug("created session", "session_id", session.ID, "owner_id", ownerID)
	return session, nil
}

// GetSession retrieves a session by ID. Soft-deleted sessions are not found.
func (s *PGStore) GetSession(ctx context.Context, sessionID string) (*coach.Session, error) {
	session := &coach.Session{ID: sessionID}

	err := s.db.QueryRow(ctx,
		`SELECT owner_id, title, system_prompt, max_tokens, message_count, created_at, updated_at
		 FROM coach_sessions WHERE id = $1 AND deleted_at IS NULL`,
		sessionID,
	).Scan(&session.OwnerID, &session.Title, &session.Rules.SystemPrompt,
		&session.Rules.MaxTokens, &session.MessageCount, &session.CreatedAt, &session.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, coach.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("coach: get session: %w", err)
	}

	return session, nil
}

// ListSessions returns ownerID's live sessions, most recently updated first.
func (s *PGStore) ListSessions(ctx context.Context, ownerID string, limit, offset int) ([]coach.Session, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, owner_id, title, system_prompt, max_tokens, message_count, created_at, updated_at
		 FROM coach_sessions
		 WHERE owner_id = $1 AND deleted_at IS NULL
		 ORDER BY updated_at DESC
		 LIMIT $2 OFFSET $3`,
		ownerID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("coach: list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []coach.Session
	for rows.Next() {
		var sess coach.Session
		err := rows.Scan(&sess.ID, &sess.OwnerID, &sess.Title, &sess.Rules.SystemPrompt,
			&sess.Rules.MaxTokens, &sess.MessageCount, &sess.CreatedAt, &sess.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("coach: scan session: %w", err)
		}
		sessions = append(sessions, sess)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("coach: list sessions: %w", err)
	}

	return sessions, nil
}

// RenameSession updates a session's title.
func (s *PGStore) RenameSession(ctx context.Context, sessionID, title string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE coach_sessions SET title = $2, updated_at = NOW()
		 WHERE id = $1 AND deleted_at IS NULL`,
		sessionID, title,
	)
	if err != nil {
		return fmt.Errorf("coach: rename session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return coach.ErrSessionNotFound
	}
	return nil
}

// DeleteSession soft-deletes a session. Messages stay in place until the
// retention batch purges the session row, which cascades.
func (s *PGStore) DeleteSession(ctx context.Context, sessionID string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE coach_sessions SET deleted_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND deleted_at IS NULL`,
		sessionID,
	)
	if err != nil {
		return fmt.Errorf("coach: delete session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return coach.ErrSessionNotFound
	}

	s.logger.Debug("soft-deleted session", "session_id", sessionID)
	return nil
}

// PurgeSessions physically removes sessions soft-deleted before the
// retention cutoff and returns how many were purged.
func (s *PGStore) PurgeSessions(ctx context.Context, retention time.Duration) (int, error) {
	cutoff := time.Now().Add(-retention)

	tag, err := s.db.Exec(ctx,
		`DELETE FROM coach_sessions WHERE deleted_at IS NOT NULL AND deleted_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("coach: purge sessions: %w", err)
	}

	purged := int(tag.RowsAffected())
	if purged > 0 {
		s.logger.Debug("purged sessions", "count", purged, "cutoff", cutoff)
	}
	return purged, nil
}
