package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/silvergrove/coach"
)

// AddRequestLog inserts a new request log with pending status.
func (s *PGStore) AddRequestLog(ctx context.Context, log coach.RequestLog) (*coach.RequestLog, error) {
	id := uuid.New().String()
	now := time.Now()

	err := s.db.QueryRow(ctx,
		`INSERT INTO coach_request_logs (
			id, session_id, prompt, response, attempt_number,
			retry_count, final_status, fail_reason, error_message,
			prompt_tokens, response_tokens, total_tokens,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING created_at, updated_at`,
		id, log.SessionID, log.Prompt, log.Response, log.AttemptNumber,
		log.RetryCount, coach.StatusPending, "", "",
		0, 0, 0,
		now, now,
	).Scan(&log.CreatedAt, &log.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("coach: add request log: %w", err)
	}

	log.ID = id
	log.FinalStatus = coach.StatusPending
	return &log, nil
}

// UpdateRequestLog updates an existing request log with completion/retry
// details.
func (s *PGStore) UpdateRequestLog(ctx context.Context, id, response, status, failReason, errorMsg string, retryCount int, usage *coach.Usage) error {
	var promptTokens, responseTokens, totalTokens int
	if usage != nil {
		promptTokens = usage.PromptTokens
		responseTokens = usage.ResponseTokens
		totalTokens = usage.TotalTokens
	}

	_, err := s.db.Exec(ctx,
		`UPDATE coach_request_logs
		 SET response = $1,
		     final_status = $2,
		     fail_reason = $3,
		     error_message = $4,
		     retry_count = $5,
		     prompt_tokens = $6,
		     response_tokens = $7,
		     total_tokens = $8,
		     updated_at = NOW()
		 WHERE id = $9`,
		response, status, failReason, errorMsg, retryCount,
		promptTokens, responseTokens, totalTokens,
		id,
	)
	if err != nil {
		return fmt.Errorf("coach: update request log: %w", err)
	}
	return nil
}
