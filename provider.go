package coach

import "context"

// Provider defines the contract for completion providers. The provider is an
// opaque, possibly slow, possibly failing dependency: it receives the session
// rules, the conversation history, and the prompt, and returns one reply. It
// never touches the Store's message log itself.
type Provider interface {
	Send(ctx context.Context, rules Rules, history []Message, prompt string) (*Result, error)
}
