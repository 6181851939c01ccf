package interfaces

import (
	"context"

	"multi-agent-trader/internal/types"
)

type Responder interface {
	Respond(ctx context.Context, p types.Prompt) (types.Reply, error)
}

// StreamResponder is implemented by responders that can deliver output
// incrementally. onDelta is invoked in order from the calling goroutine;
// the returned Reply holds the complete output.
type StreamResponder interface {
	Responder
	RespondStream(ctx context.Context, p types.Prompt, onDelta func(string)) (types.Reply, error)
}
