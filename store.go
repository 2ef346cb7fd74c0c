package coach

import (
	"context"
	"time"
)

// Store defines the contract for persisting sessions and messages. It is the
// source of truth: the Coordinator always reads from the Store, never from a
// client cache, before mutating history.
type Store interface {
	// Schema
	CreateSchema(ctx context.Context) error
	DropSchema(ctx context.Context) error

	// Sessions
	CreateSession(ctx context.Context, ownerID, title string, rules Rules) (*Session, error)
	GetSession(ctx context.Context, sessionID string) (*Session, error)
	ListSessions(ctx context.Context, ownerID string, limit, offset int) ([]Session, error)
	RenameSession(ctx context.Context, sessionID, title string) error
	// DeleteSession soft-deletes; rows are purged later by PurgeSessions.
	DeleteSession(ctx context.Context, sessionID string) error
	// PurgeSessions physically removes sessions soft-deleted before the
	// retention cutoff. Called by an external batch job, not by this core.
	PurgeSessions(ctx context.Context, retention time.Duration) (int, error)

	// Messages
	AppendMessage(ctx context.Context, sessionID, role, content string, metadata map[string]string, usage *Usage) (*Message, error)
	// ListMessages is the canonical read: all messages ordered by seq.
	ListMessages(ctx context.Context, sessionID string) ([]Message, error)
	// DeleteMessagesAfter removes every message with seq > afterSeq in one
	// atomic operation and returns the number deleted. A crash can never
	// leave a partially truncated session.
	DeleteMessagesAfter(ctx context.Context, sessionID string, afterSeq int) (int, error)
	// UpdateMessageContent rewrites a message's content in place, preserving
	// its identity, role, and seq.
	UpdateMessageContent(ctx context.Context, sessionID, messageID, content string) error

	// Edit leases. The lease is the cross-process form of the edit guard:
	// one row per session with an owner token and expiry. Acquire fails with
	// ErrLeaseHeld while another owner holds an unexpired lease; re-acquiring
	// with the same owner extends it. Release is idempotent.
	AcquireEditLease(ctx context.Context, sessionID, owner string, ttl time.Duration) error
	ReleaseEditLease(ctx context.Context, sessionID, owner string) error

	// Request logs
	AddRequestLog(ctx context.Context, log RequestLog) (*RequestLog, error)
	UpdateRequestLog(ctx context.Context, id, response, status, failReason, errorMsg string, retryCount int, usage *Usage) error
}
