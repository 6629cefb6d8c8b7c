package llm

import (
	"context"
	"errors"
)

// ErrCapacity marks analysis failures caused by rate limiting or quota
// exhaustion upstream. Callers recover from this class locally; every other
// failure propagates.
var ErrCapacity = errors.New("analysis service over capacity")

// Message is a minimal chat message passed to the analysis service.
// Role must be one of: "system", "user", or "assistant".
type Message struct {
	Role    string
	Content string
}

// Client defines the completion call used by the triage coordinator.
// Complete sends the full message history (system + prior turns + latest
// user message) and returns the assistant's reply.
type Client interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}
