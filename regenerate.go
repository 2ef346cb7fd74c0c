package coach

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// RegenerateOptions control how a reply is produced.
type RegenerateOptions struct {
	// SkipUserMessage tells Regenerate not to append a new user-role message
	// for the prompt. Set during edits: the edited message already plays
	// that role and sits at the tail of the truncated history.
	SkipUserMessage bool
}

// Regenerator invokes the completion provider against a session's canonical
// history and appends the resulting assistant message to the Store.
type Regenerator struct {
	store    Store
	provider Provider
	logger   *slog.Logger
}

// NewRegenerator creates a Regenerator. A nil logger falls back to
// slog.Default().
func NewRegenerator(store Store, provider Provider, logger *slog.Logger) *Regenerator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Regenerator{store: store, provider: provider, logger: logger}
}

// Regenerate produces one assistant reply for the session.
//
// On success exactly one assistant message is appended (plus one user
// message for the prompt, unless opts.SkipUserMessage). On provider failure
// nothing is persisted: the session tail stays a user message with no reply,
// which is a valid, displayable state.
//
// Cancellation is UI-local. ctx governs the provider call, but once a reply
// exists the append runs detached from ctx so the persisted side effect is
// visible on next load even if the caller stopped waiting.
func (r *Regenerator) Regenerate(ctx context.Context, sessionID, prompt string, opts RegenerateOptions) (*Message, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, ErrEmptyPrompt
	}

	session, err := r.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("coach: regenerate: %w", err)
	}

	history, err := r.store.ListMessages(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("coach: regenerate: %w: %w", ErrPersistence, err)
	}

	// During an edit the prompt is the edited message, which is already the
	// tail of the truncated history. Drop it so the provider does not see
	// the same turn twice: Send appends the prompt as the final user turn.
	if opts.SkipUserMessage {
		if n := len(history); n > 0 && history[n-1].Role == RoleUser {
			history = history[:n-1]
		}
	}

	result, err := r.provider.Send(ctx, session.Rules, history, prompt)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRegeneration, err)
	}

	appendCtx := context.WithoutCancel(ctx)
	if !opts.SkipUserMessage {
		if _, err := r.store.AppendMessage(appendCtx, sessionID, RoleUser, prompt, nil, nil); err != nil {
			return nil, fmt.Errorf("coach: append prompt: %w: %w", ErrPersistence, err)
		}
	}

	reply, err := r.store.AppendMessage(appendCtx, sessionID, RoleAssistant, result.Content, nil, &result.Usage)
	if err != nil {
		return nil, fmt.Errorf("coach: append reply: %w: %w", ErrPersistence, err)
	}

	r.logger.Debug("regenerated reply",
		"session_id", sessionID, "seq", reply.Seq, "total_tokens", result.Usage.TotalTokens)
	return reply, nil
}
