package adapter

import "context"

// CompletionService is the port for a stateful AI chat backend. The service
// keeps its own hidden turn history: each successful Send extends it, and the
// reply to a Send depends on every Send since the last reset. Callers that
// switch conversations must ResetContext and replay the turns they want the
// backend to remember.
//
// Implementations must tolerate ResetContext arriving while a Send is in
// flight: a session reset does not wait for the turn it orphans.
type CompletionService interface {
	// Send submits one user turn and returns the assistant text. On error the
	// hidden history is left as it was before the call.
	Send(ctx context.Context, text string) (string, error)

	// ResetContext discards the hidden history and starts a fresh
	// conversation.
	ResetContext(ctx context.Context) error
}
