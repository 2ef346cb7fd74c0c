package coach

import "errors"

// Sentinel errors. Callers classify failures with errors.Is; everything the
// Coordinator surfaces wraps exactly one of these.
var (
	// ErrSessionNotFound indicates the session does not exist or was soft-deleted.
	ErrSessionNotFound = errors.New("coach: session not found")

	// ErrMessageNotFound indicates the message is not part of the session's
	// canonical history. Retrying with the same arguments will not help.
	ErrMessageNotFound = errors.New("coach: message not found")

	// ErrNotUserMessage indicates an edit targeted an assistant message.
	ErrNotUserMessage = errors.New("coach: only user messages can be edited")

	// ErrEmptyContent indicates the edited content is blank after trimming.
	ErrEmptyContent = errors.New("coach: content is empty")

	// ErrEditInFlight indicates another edit is in progress for the session.
	// The call is rejected, not queued; callers must not assume eventual
	// execution.
	ErrEditInFlight = errors.New("coach: edit already in flight")

	// ErrLeaseHeld indicates the session's edit lease is held by another
	// owner and has not expired.
	ErrLeaseHeld = errors.New("coach: edit lease held")

	// ErrPersistence indicates a store delete/update failed. EditMessage is
	// safe to retry end-to-end because every attempt re-reads canonical state.
	ErrPersistence = errors.New("coach: persistence failed")

	// ErrRegeneration indicates the completion provider failed or timed out.
	// The edit itself is already durable; only the assistant reply is missing.
	ErrRegeneration = errors.New("coach: regeneration failed")

	// ErrEmptyPrompt indicates the prompt is empty.
	ErrEmptyPrompt = errors.New("coach: prompt is empty")

	// ErrProviderFailed indicates the provider returned an error response.
	ErrProviderFailed = errors.New("coach: provider error")
)
