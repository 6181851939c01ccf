package llmobs

import (
	"context"
	"time"

	"multi-agent-trader/internal/interfaces"
	"multi-agent-trader/internal/logger"
	"multi-agent-trader/internal/trace"
	"multi-agent-trader/internal/types"
)

// observableResponder wraps a Responder with observability (logging &
// tracing)
type observableResponder struct {
	inner interfaces.Responder
}

// Compile-time interface check
var _ interfaces.Responder = (*observableResponder)(nil)

// observableStreamResponder additionally forwards the streaming path, so
// wrapping never hides a provider's streaming capability.
type observableStreamResponder struct {
	observableResponder
	stream interfaces.StreamResponder
}

var _ interfaces.StreamResponder = (*observableStreamResponder)(nil)

// Wrap wraps a responder with observability middleware. The returned value
// implements StreamResponder exactly when the wrapped one does.
func Wrap(r interfaces.Responder) interfaces.Responder {
	obs := observableResponder{inner: r}
	if sr, ok := r.(interfaces.StreamResponder); ok {
		return &observableStreamResponder{observableResponder: obs, stream: sr}
	}
	return &obs
}

func (or *observableResponder) Respond(ctx context.Context, p types.Prompt) (types.Reply, error) {
	ctx, span := trace.StartSpan(ctx, "llm.Respond")
	defer span.End()

	start := time.Now()
	// Skip(1) so logs report the actual caller, not this middleware wrapper
	logger.DebugSkip(ctx, 1, "Requesting responder output",
		"task_len", len(p.Task),
		"history_turns", len(p.History),
	)

	reply, err := or.inner.Respond(ctx, p)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Responder call failed", err,
			"task_len", len(p.Task),
		)
		return types.Reply{}, err
	}

	logger.InfoSkip(ctx, 1, "Responder output received",
		"output_len", len(reply.Output),
		"input_tokens", reply.Usage.Input,
		"output_tokens", reply.Usage.Output,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return reply, nil
}

func (osr *observableStreamResponder) RespondStream(ctx context.Context, p types.Prompt, onDelta func(string)) (types.Reply, error) {
	ctx, span := trace.StartSpan(ctx, "llm.RespondStream")
	defer span.End()

	start := time.Now()
	logger.DebugSkip(ctx, 1, "Requesting streamed responder output",
		"task_len", len(p.Task),
		"history_turns", len(p.History),
	)

	reply, err := osr.stream.RespondStream(ctx, p, onDelta)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Streamed responder call failed", err,
			"task_len", len(p.Task),
		)
		return types.Reply{}, err
	}

	logger.InfoSkip(ctx, 1, "Streamed responder output received",
		"output_len", len(reply.Output),
		"input_tokens", reply.Usage.Input,
		"output_tokens", reply.Usage.Output,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return reply, nil
}
