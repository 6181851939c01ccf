package noop

import (
	"context"

	"multi-agent-trader/internal/logger"
	"multi-agent-trader/internal/types"
)

// Responder is the fallback used when no LLM provider is configured. It
// acknowledges every prompt without deciding anything, which keeps the
// whole system runnable without credentials.
type Responder struct{}

func New() *Responder {
	return &Responder{}
}

func (r *Responder) Respond(ctx context.Context, p types.Prompt) (types.Reply, error) {
	logger.Debug(ctx, "Noop responder called", "task_len", len(p.Task))
	output := "No decision engine configured; request acknowledged."
	history := append(append([]types.Turn(nil), p.History...),
		types.Turn{Role: "user", Content: p.Task},
		types.Turn{Role: "assistant", Content: output},
	)
	return types.Reply{Output: output, History: history}, nil
}
