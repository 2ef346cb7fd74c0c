package coach

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Coordinator orchestrates message edits: truncate the causal suffix,
// persist the new content, regenerate the assistant reply, and reconcile the
// client cache. At most one edit is in flight per session.
//
// Two mechanisms enforce single-flight. A process-local guard rejects
// overlapping calls from this client immediately, and a store-held lease
// (owner token plus expiry) extends the same guarantee across processes and
// devices. The guard is held across the whole edit-to-regenerate span on
// purpose; no other lock in this package outlives an awaited call.
type Coordinator struct {
	store    Store
	regen    *Regenerator
	cache    *Cache
	guard    *editGuard
	owner    string
	leaseTTL time.Duration
	logger   *slog.Logger

	mu     sync.RWMutex
	phases map[string]EditPhase
}

// NewCoordinator creates a Coordinator. cache may be nil when no client view
// needs reconciling (server-side callers). A nil logger falls back to
// slog.Default().
func NewCoordinator(store Store, regen *Regenerator, cache *Cache, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		store:    store,
		regen:    regen,
		cache:    cache,
		guard:    newEditGuard(),
		owner:    uuid.New().String(),
		leaseTTL: DefaultEditLeaseTTL,
		logger:   logger,
		phases:   make(map[string]EditPhase),
	}
}

// WithLeaseTTL overrides the edit lease expiry.
func (c *Coordinator) WithLeaseTTL(ttl time.Duration) *Coordinator {
	if ttl > 0 {
		c.leaseTTL = ttl
	}
	return c
}

// Phase reports the session's current edit phase.
func (c *Coordinator) Phase(sessionID string) EditPhase {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.phases[sessionID]
}

func (c *Coordinator) setPhase(sessionID string, p EditPhase) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.phases[sessionID] = p
}

// EditMessage rewrites a previously sent user message and regenerates the
// conversation from that point.
//
// Sequence: acquire the guard and lease, read canonical state from the
// Store, delete every message ordered after the target in one atomic
// operation, persist the new content in place, regenerate the assistant
// reply against the truncated history, then reload the cache so the UI
// shows exactly [unaffected prefix, edited message, new reply].
//
// Nothing durable is rolled back on failure: a failed regeneration leaves
// the edited message as the session tail with no reply, and retrying with
// the same arguments is safe because every attempt re-reads canonical state.
func (c *Coordinator) EditMessage(ctx context.Context, sessionID, messageID, newContent string) (err error) {
	newContent = strings.TrimSpace(newContent)
	if newContent == "" {
		return ErrEmptyContent
	}

	// Reject, don't queue. Registered before any phase bookkeeping so a
	// rejected call cannot clobber the in-flight edit's phase.
	if !c.guard.acquire(sessionID) {
		return ErrEditInFlight
	}
	defer c.guard.release(sessionID)

	defer func() {
		if err != nil {
			c.setPhase(sessionID, PhaseFailed)
		}
	}()

	if _, err := c.store.GetSession(ctx, sessionID); err != nil {
		return fmt.Errorf("coach: edit message: %w", err)
	}

	if err := c.store.AcquireEditLease(ctx, sessionID, c.owner, c.leaseTTL); err != nil {
		return fmt.Errorf("%w: %w", ErrEditInFlight, err)
	}
	defer func() {
		// Lease release must run even when ctx is already canceled.
		releaseCtx := context.WithoutCancel(ctx)
		if rerr := c.store.ReleaseEditLease(releaseCtx, sessionID, c.owner); rerr != nil {
			c.logger.Warn("failed to release edit lease", "session_id", sessionID, "error", rerr)
		}
	}()

	c.setPhase(sessionID, PhaseEditing)

	// Canonical read, bypassing the cache: a drifted client view must never
	// decide what gets truncated.
	messages, err := c.store.ListMessages(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("coach: canonical read: %w: %w", ErrPersistence, err)
	}

	var target *Message
	for i := range messages {
		if messages[i].ID == messageID {
			target = &messages[i]
			break
		}
	}
	if target == nil {
		return fmt.Errorf("coach: edit %s in session %s: %w", messageID, sessionID, ErrMessageNotFound)
	}
	if target.Role != RoleUser {
		return ErrNotUserMessage
	}

	deleted, err := c.store.DeleteMessagesAfter(ctx, sessionID, target.Seq)
	if err != nil {
		return fmt.Errorf("coach: truncate after seq %d: %w: %w", target.Seq, ErrPersistence, err)
	}
	if err := c.store.UpdateMessageContent(ctx, sessionID, messageID, newContent); err != nil {
		return fmt.Errorf("coach: persist edit: %w: %w", ErrPersistence, err)
	}
	c.logger.Debug("truncated session for edit",
		"session_id", sessionID, "message_id", messageID, "deleted", deleted)

	c.setPhase(sessionID, PhaseRegenerating)
	if _, err := c.regen.Regenerate(ctx, sessionID, newContent, RegenerateOptions{SkipUserMessage: true}); err != nil {
		return err
	}

	if c.cache != nil {
		if _, err := c.cache.Load(ctx, sessionID, false); err != nil {
			return fmt.Errorf("coach: reconcile: %w: %w", ErrPersistence, err)
		}
	}

	c.setPhase(sessionID, PhaseReconciled)
	return nil
}
