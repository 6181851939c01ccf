// Package roles implements the agent behaviors behind each mailbox: the
// operator-facing user role, the market and long-term analysis roles, the
// risk gatekeeper and the execution role. A generic Loop drains a mailbox
// with per-message error isolation; PeriodicMonitor drives the timed
// reviews that have no inbound traffic.
package roles

import (
	"multi-agent-trader/internal/bus"
	"multi-agent-trader/internal/interfaces"
	"multi-agent-trader/internal/state"
	"multi-agent-trader/internal/store"
)

// Panel assignments on the operator UI. Market and long-term share panel 1;
// risk and execution share panel 2.
const (
	PanelUser   = 0
	PanelMarket = 1
	PanelRisk   = 2
)

// Deps bundles the shared dependencies every role handler works against.
type Deps struct {
	State     *state.State
	Bus       *bus.Bus
	Sink      interfaces.Sink
	Cfg       *store.Config
	Responder interfaces.Responder
}
