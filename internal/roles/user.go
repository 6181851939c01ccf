package roles

import (
	"context"
	"fmt"
	"strings"

	"multi-agent-trader/internal/bus"
	"multi-agent-trader/internal/types"
)

const userSystemPrompt = `You are the user agent for a multi-agent crypto trading system. ` +
	`You are the operator's interface: concise, professional, and helpful. ` +
	`You interpret operator commands, forward analysis requests to the market agent, ` +
	`report system status, and update the trading pair watchlist. ` +
	`You NEVER make trading decisions or place orders.

Respond with exactly one compact JSON action on a single line:
  {"action": "reply", "text": "<your answer>"} to answer the operator directly
  {"action": "consult_market", "question": "<request>"} to forward an analysis request
  {"action": "set_pairs", "pairs": ["BTC/USD", ...]} to update the active trading pairs
  {"action": "status"} to report full system status

Keep replies brief. Operators want information, not essays.`

// userAction is the compact JSON action the user role expects back.
type userAction struct {
	Action   string   `json:"action"`
	Text     string   `json:"text"`
	Question string   `json:"question"`
	Pairs    []string `json:"pairs"`
}

// User is the operator interface role on panel 0. It never trades; it
// answers, forwards and reports.
type User struct {
	d *Deps
}

func NewUser(d *Deps) *User { return &User{d: d} }

func (u *User) Role() bus.Role    { return bus.RoleUser }
func (u *User) Panel() int        { return PanelUser }
func (u *User) ErrorLine() string { return "[error] User Agent encountered an error" }

func (u *User) Handle(ctx context.Context, msg bus.Message, history []types.Turn) ([]types.Turn, error) {
	switch m := msg.(type) {
	case bus.UserRequest:
		return u.onRequest(ctx, m, history)
	case bus.TickerBroadcast, bus.TradeIdea, bus.ConsultRequest, bus.ConsultResponse,
		bus.ApprovedOrder, bus.ClosePosition, bus.OrderResult, bus.ExecutionUpdate:
		// Not addressed to this role.
		return history, nil
	}
	return history, nil
}

func (u *User) onRequest(ctx context.Context, m bus.UserRequest, history []types.Turn) ([]types.Turn, error) {
	u.d.Sink.Output(PanelUser, "> "+m.Content)

	reply, err := respond(ctx, u.d, bus.RoleUser, types.Prompt{
		System:  userSystemPrompt,
		Context: u.stateContext(),
		Task:    m.Content,
		History: history,
	})
	if err != nil {
		return nil, err
	}

	var a userAction
	if !decodeAction(reply.Output, &a) {
		// Not an action; treat the raw output as a plain reply.
		u.d.Sink.Output(PanelUser, strings.TrimSpace(reply.Output))
		return reply.History, nil
	}

	switch a.Action {
	case "reply":
		u.d.Sink.Output(PanelUser, a.Text)
	case "consult_market":
		if err := u.d.Bus.Send(bus.RoleMarket, bus.UserRequest{Content: a.Question}); err != nil {
			return nil, err
		}
		u.d.Sink.Output(PanelUser, "Forwarded to market agent: "+a.Question)
	case "set_pairs":
		u.d.State.SetActivePairs(a.Pairs)
		u.d.Sink.Output(PanelUser, "Active pairs updated: "+strings.Join(a.Pairs, ", "))
	case "status":
		u.d.Sink.Output(PanelUser, u.statusReport())
	default:
		u.d.Sink.Output(PanelUser, strings.TrimSpace(reply.Output))
	}
	return reply.History, nil
}

// stateContext injects current system state into the prompt.
func (u *User) stateContext() string {
	st := u.d.State
	var parts []string
	if limits := st.RiskLimits(); limits != "" {
		parts = append(parts, "Risk limits: "+limits)
	}
	if pairs := st.ActivePairs(); len(pairs) > 0 {
		parts = append(parts, "Active pairs: "+strings.Join(pairs, ", "))
	}
	parts = append(parts, "Token state: "+st.TokenState())
	if positions := st.Positions(); len(positions) > 0 {
		var summary []string
		for _, p := range positions {
			summary = append(summary, fmt.Sprintf("%s %s %s", p.Symbol, p.Side, p.Qty))
		}
		parts = append(parts, "Open positions: "+strings.Join(summary, ", "))
	}
	return strings.Join(parts, "\n")
}

// statusReport renders the full system status deterministically, without a
// responder round trip.
func (u *User) statusReport() string {
	st := u.d.State
	lines := []string{"Token state: " + st.TokenState()}
	if pairs := st.ActivePairs(); len(pairs) > 0 {
		lines = append(lines, "Active pairs: "+strings.Join(pairs, ", "))
	}
	if positions := st.Positions(); len(positions) > 0 {
		for _, p := range positions {
			lines = append(lines, fmt.Sprintf("Position: %s %s qty=%s entry=%s pnl=%s",
				p.Symbol, p.Side, p.Qty, p.EntryPrice, p.UnrealizedPnL))
		}
	} else {
		lines = append(lines, "No open positions.")
	}
	for _, b := range st.Balances() {
		lines = append(lines, fmt.Sprintf("Balance: %s = %s", b.Asset, b.Amount))
	}
	if limits := st.RiskLimits(); limits != "" {
		lines = append(lines, "Risk limits: "+limits)
	}
	return strings.Join(lines, "\n")
}
