package roles

import (
	"context"

	"multi-agent-trader/internal/bus"
	"multi-agent-trader/internal/logger"
	"multi-agent-trader/internal/metrics"
	"multi-agent-trader/internal/types"
)

// Handler processes one message for a role. Handle returns the updated
// conversation history; on error the loop keeps the previous history.
type Handler interface {
	Role() bus.Role
	Panel() int
	// ErrorLine is printed on the role's panel when a handler fails.
	ErrorLine() string
	Handle(ctx context.Context, msg bus.Message, history []types.Turn) ([]types.Turn, error)
}

// Loop drains the handler's mailbox until shutdown or ctx cancellation.
// One bad message never kills the loop: the failure is logged, reported on
// the role's panel and counted, and the next message is processed with the
// history from before the failed iteration.
func Loop(ctx context.Context, d *Deps, h Handler) error {
	role := h.Role()
	var history []types.Turn
	for {
		if d.State.ShuttingDown() {
			return nil
		}
		msg, err := d.Bus.Recv(ctx, role)
		if err != nil {
			return err
		}
		// Shutdown may have begun while blocked; the message is dropped,
		// not half-applied.
		if d.State.ShuttingDown() {
			return nil
		}

		updated, err := h.Handle(ctx, msg, history)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.ErrorWithErr(ctx, "Role handler failed", err, "role", string(role))
			d.Sink.Output(h.Panel(), h.ErrorLine())
			metrics.RoleErrors.WithLabelValues(string(role)).Inc()
			continue
		}
		history = trimHistory(updated, d.Cfg.Roles.HistoryLimit)
	}
}

// trimHistory keeps the newest limit turns.
func trimHistory(h []types.Turn, limit int) []types.Turn {
	if limit <= 0 || len(h) <= limit {
		return h
	}
	return h[len(h)-limit:]
}
