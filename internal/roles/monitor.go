package roles

import (
	"context"
	"time"

	"multi-agent-trader/internal/bus"
	"multi-agent-trader/internal/interfaces"
	"multi-agent-trader/internal/logger"
	"multi-agent-trader/internal/metrics"
	"multi-agent-trader/internal/state"
)

// PeriodicMonitor runs a review on a fixed interval for roles that act on
// time rather than on inbound messages. Review failures get the same
// isolation as loop handlers: the tick is reported and dropped, the
// monitor keeps ticking.
type PeriodicMonitor struct {
	Role      bus.Role
	Panel     int
	ErrorLine string
	Interval  time.Duration
	State     *state.State
	Sink      interfaces.Sink

	// Check gates each tick; a false return skips the review quietly.
	Check func() bool
	// Review does the work. It owns any history it needs across ticks.
	Review func(ctx context.Context) error
}

func (m *PeriodicMonitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		if m.State.ShuttingDown() {
			return nil
		}
		if m.Check != nil && !m.Check() {
			continue
		}

		if err := m.Review(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.ErrorWithErr(ctx, "Periodic review failed", err, "role", string(m.Role))
			if m.ErrorLine != "" {
				m.Sink.Output(m.Panel, m.ErrorLine)
			}
			metrics.RoleErrors.WithLabelValues(string(m.Role)).Inc()
		}
	}
}
