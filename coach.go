// Package coach implements the conversation core for an AI coaching chat:
// a persisted, ordered log of messages per session, a regeneration client
// that produces assistant replies, and an edit coordinator that rewrites
// conversation history when a user edits a previously sent message.
//
// The root package defines domain types and the consumer-side Store and
// Provider contracts. Backends live in subpackages: postgres implements
// Store, gemini implements Provider.
package coach

import "time"

// Role values for message authorship.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Rules control provider behavior per session.
type Rules struct {
	SystemPrompt string `json:"system_prompt"`
	MaxTokens    int    `json:"max_tokens"`
}

// Usage holds token counts from the provider response.
type Usage struct {
	PromptTokens   int `json:"prompt_tokens"`
	ResponseTokens int `json:"response_tokens"`
	TotalTokens    int `json:"total_tokens"`
}

// Message is a single turn in a session.
//
// Seq is the authoritative order key: a per-session counter assigned by the
// store, starting at 1 with no gaps at rest. CreatedAt is informational only
// and must never be used for ordering: two messages written in quick
// succession can share a timestamp.
type Message struct {
	ID        string            `json:"id"`
	SessionID string            `json:"session_id"`
	Seq       int               `json:"seq"`
	Role      string            `json:"role"`
	Content   string            `json:"content"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Usage     *Usage            `json:"usage,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// Session groups messages into a conversation thread.
//
// Deletion is soft: DeletedAt marks the session for a retention window, and
// an external batch job calls Store.PurgeSessions to remove rows physically.
type Session struct {
	ID           string     `json:"id"`
	OwnerID      string     `json:"owner_id"`
	Title        string     `json:"title"`
	Rules        Rules      `json:"rules"`
	MessageCount int        `json:"message_count"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty"`
}

// Result is what the provider returns: content plus token usage.
type Result struct {
	Content string `json:"content"`
	Usage   Usage  `json:"usage"`
}

// Request log statuses.
const (
	StatusPending = "pending"
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Request log fail reasons.
const (
	FailReasonTimeout       = "timeout"
	FailReasonNetworkError  = "network_error"
	FailReasonProviderError = "provider_error"
	FailReasonMaxRetries    = "max_retries"
	FailReasonUnknownError  = "unknown_error"
)

// RequestLog records one provider call, including retries and final outcome.
type RequestLog struct {
	ID            string    `json:"id"`
	SessionID     string    `json:"session_id"`
	Prompt        string    `json:"prompt"`
	Response      string    `json:"response"`
	AttemptNumber int       `json:"attempt_number"`
	RetryCount    int       `json:"retry_count"`
	FinalStatus   string    `json:"final_status"`
	FailReason    string    `json:"fail_reason"`
	ErrorMessage  string    `json:"error_message"`
	Usage         *Usage    `json:"usage,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// MigrationRecord tracks a single applied migration.
type MigrationRecord struct {
	Name      string
	Applied   bool
	AppliedAt *time.Time
	Checksum  string
}
