package coach

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Cache is the client-held, ephemeral ordered view of messages for active
// sessions. It is reconciled against the Store and never treated as truth:
// the Coordinator reads canonical state from the Store and replaces the
// cache afterwards.
//
// Cache is safe for concurrent use.
type Cache struct {
	store  Store
	logger *slog.Logger

	mu        sync.RWMutex
	confirmed map[string][]Message
	pending   map[string][]Message
}

// NewCache creates a Cache backed by store. A nil logger falls back to
// slog.Default().
func NewCache(store Store, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		store:     store,
		logger:    logger,
		confirmed: make(map[string][]Message),
		pending:   make(map[string][]Message),
	}
}

// Load refreshes the session's view from the Store and returns it.
//
// With preserveOptimistic false the view is fully replaced by canonical
// contents, used after an edit completes so the UI never shows a stale
// duplicate of the pre-edit tail. With preserveOptimistic true, optimistic
// entries not yet confirmed by the Store stay appended after the canonical
// sequence, used when switching into a session that might be mid-stream.
func (c *Cache) Load(ctx context.Context, sessionID string, preserveOptimistic bool) ([]Message, error) {
	canonical, err := c.store.ListMessages(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("coach: load session %s: %w", sessionID, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !preserveOptimistic {
		c.confirmed[sessionID] = canonical
		delete(c.pending, sessionID)
		return snapshot(canonical), nil
	}

	seen := make(map[string]bool, len(canonical))
	for _, m := range canonical {
		seen[m.ID] = true
	}

	// Optimistic entries the Store has since confirmed are dropped; the rest
	// keep their insertion order after the canonical sequence.
	var unconfirmed []Message
	for _, m := range c.pending[sessionID] {
		if !seen[m.ID] {
			unconfirmed = append(unconfirmed, m)
		}
	}

	c.confirmed[sessionID] = canonical
	c.pending[sessionID] = unconfirmed

	view := make([]Message, 0, len(canonical)+len(unconfirmed))
	view = append(view, canonical...)
	view = append(view, unconfirmed...)
	c.logger.Debug("loaded session view",
		"session_id", sessionID, "canonical", len(canonical), "optimistic", len(unconfirmed))
	return view, nil
}

// AppendOptimistic records a message rendered before the Store confirmed it.
// A message whose ID is already in the view is ignored: the cache never
// contains two messages with the same identifier.
func (c *Cache) AppendOptimistic(sessionID string, msg Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, m := range c.confirmed[sessionID] {
		if m.ID == msg.ID {
			return
		}
	}
	for _, m := range c.pending[sessionID] {
		if m.ID == msg.ID {
			return
		}
	}
	c.pending[sessionID] = append(c.pending[sessionID], msg)
}

// Messages returns the current view without touching the Store.
func (c *Cache) Messages(sessionID string) []Message {
	c.mu.RLock()
	defer c.mu.RUnlock()

	confirmed := c.confirmed[sessionID]
	pending := c.pending[sessionID]
	view := make([]Message, 0, len(confirmed)+len(pending))
	view = append(view, confirmed...)
	view = append(view, pending...)
	return view
}

// Invalidate drops the session's view entirely.
func (c *Cache) Invalidate(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.confirmed, sessionID)
	delete(c.pending, sessionID)
}

func snapshot(msgs []Message) []Message {
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out
}
