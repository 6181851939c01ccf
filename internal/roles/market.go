package roles

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"multi-agent-trader/internal/bus"
	"multi-agent-trader/internal/logger"
	"multi-agent-trader/internal/state"
	"multi-agent-trader/internal/types"
)

const marketSystemPrompt = `You are the market agent for a multi-agent crypto trading system. ` +
	`You are an experienced, creative crypto trader with deep knowledge of:
- Technical analysis (support/resistance, momentum, patterns)
- Market microstructure (order flow, liquidity, spread dynamics)
- Probability calibration (never overstate confidence)

Your role:
- Analyze market data and generate trade ideas
- Assign honest probability scores (0.0-1.0) to each idea
- Respond to risk agent consultations about existing positions

To propose a trade, include a line of exactly this form in your reply:
IDEA {"symbol": "BTC/USD", "side": "buy", "order_type": "limit", "suggested_qty": "0.01", "suggested_price": "60000", "probability": 0.65, "reason": "..."}
To answer a consultation, include a line of exactly this form:
ANSWER {"symbol": "BTC/USD", "analysis": "...", "recommendation": "hold"}
The recommendation must be one of hold, close or add. Use decimal strings
for quantities and prices.

Be concise. Focus on actionable insights, not verbose explanations. Always
include your reasoning and a calibrated probability score.`

// ideaPayload is the JSON body of an IDEA directive line.
type ideaPayload struct {
	Symbol         string     `json:"symbol"`
	Side           string     `json:"side"`
	OrderType      string     `json:"order_type"`
	SuggestedQty   flexString `json:"suggested_qty"`
	SuggestedPrice flexString `json:"suggested_price"`
	Probability    float64    `json:"probability"`
	Reason         string     `json:"reason"`
}

// answerPayload is the JSON body of an ANSWER directive line.
type answerPayload struct {
	Symbol         string `json:"symbol"`
	Analysis       string `json:"analysis"`
	Recommendation string `json:"recommendation"`
}

// Market analyzes price action on panel 1 and proposes trades to risk.
type Market struct {
	d *Deps
}

func NewMarket(d *Deps) *Market { return &Market{d: d} }

func (m *Market) Role() bus.Role    { return bus.RoleMarket }
func (m *Market) Panel() int        { return PanelMarket }
func (m *Market) ErrorLine() string { return "[error] Market Agent encountered an error" }

func (m *Market) Handle(ctx context.Context, msg bus.Message, history []types.Turn) ([]types.Turn, error) {
	switch v := msg.(type) {
	case bus.UserRequest:
		return m.onUserRequest(ctx, v, history)
	case bus.TickerBroadcast:
		return m.onTicker(ctx, v, history)
	case bus.ConsultRequest:
		return m.onConsult(ctx, v, history)
	case bus.OrderResult:
		// Informational, no responder call needed.
		status := "filled"
		if !v.Success {
			status = "failed: " + v.Error
		}
		m.d.Sink.Output(PanelMarket, fmt.Sprintf("[order] %s %s — %s", v.Symbol, v.Side, status))
		return history, nil
	case bus.TradeIdea, bus.ConsultResponse, bus.ApprovedOrder, bus.ClosePosition, bus.ExecutionUpdate:
		// Not addressed to this role.
		return history, nil
	}
	return history, nil
}

func (m *Market) onUserRequest(ctx context.Context, v bus.UserRequest, history []types.Turn) ([]types.Turn, error) {
	m.d.Sink.Output(PanelMarket, "[user] "+v.Content)

	reply, err := respondStreamed(ctx, m.d, bus.RoleMarket, PanelMarket, types.Prompt{
		System:  marketSystemPrompt,
		Context: marketContext(m.d.State),
		Task:    "Analyze this request: " + v.Content,
		History: history,
	})
	if err != nil {
		return nil, err
	}
	forwardIdeas(ctx, m.d, PanelMarket, reply.Output)
	return reply.History, nil
}

func (m *Market) onTicker(ctx context.Context, v bus.TickerBroadcast, history []types.Turn) ([]types.Turn, error) {
	// The quote may have been superseded or dropped while queued; always
	// analyze the freshest snapshot.
	t, ok := m.d.State.Ticker(v.Symbol)
	if !ok {
		return history, nil
	}

	task := fmt.Sprintf(
		"Price update for %s: bid=%s ask=%s last=%s vol=%s. Assess if there's a trading opportunity.",
		t.Symbol, t.Bid, t.Ask, t.Last, t.Volume)
	reply, err := respondStreamed(ctx, m.d, bus.RoleMarket, PanelMarket, types.Prompt{
		System:  marketSystemPrompt,
		Context: marketContext(m.d.State),
		Task:    task,
		History: history,
	})
	if err != nil {
		return nil, err
	}
	forwardIdeas(ctx, m.d, PanelMarket, reply.Output)
	return reply.History, nil
}

func (m *Market) onConsult(ctx context.Context, v bus.ConsultRequest, history []types.Turn) ([]types.Turn, error) {
	m.d.Sink.Output(PanelMarket, fmt.Sprintf("[risk asks] %s: %s", v.Symbol, v.Question))

	task := fmt.Sprintf(
		"Risk agent asks about %s: %s. Include an ANSWER directive line in your reply.",
		v.Symbol, v.Question)
	reply, err := respondStreamed(ctx, m.d, bus.RoleMarket, PanelMarket, types.Prompt{
		System:  marketSystemPrompt,
		Context: marketContext(m.d.State),
		Task:    task,
		History: history,
	})
	if err != nil {
		return nil, err
	}

	resp := consultResponseFrom(ctx, reply.Output, v.Symbol)
	if err := m.d.Bus.Send(bus.RoleRisk, resp); err != nil {
		return nil, err
	}
	forwardIdeas(ctx, m.d, PanelMarket, reply.Output)
	return reply.History, nil
}

// consultResponseFrom builds the ConsultResponse out of the first ANSWER
// directive in the reply. A missing or broken directive degrades to the
// whole reply as analysis with the safe hold recommendation, so the risk
// role always hears back.
func consultResponseFrom(ctx context.Context, output, symbol string) bus.ConsultResponse {
	for _, payload := range directivePayloads(output, "ANSWER") {
		var a answerPayload
		if err := json.Unmarshal([]byte(payload), &a); err != nil {
			logger.Debug(ctx, "Unparseable ANSWER directive", "payload", payload, "error", err)
			continue
		}
		if a.Symbol == "" {
			a.Symbol = symbol
		}
		rec := strings.ToLower(strings.TrimSpace(a.Recommendation))
		if rec != "hold" && rec != "close" && rec != "add" {
			rec = "hold"
		}
		return bus.ConsultResponse{Symbol: a.Symbol, Analysis: a.Analysis, Recommendation: rec}
	}
	return bus.ConsultResponse{
		Symbol:         symbol,
		Analysis:       strings.TrimSpace(output),
		Recommendation: "hold",
	}
}

// forwardIdeas turns IDEA directive lines into TradeIdea messages for the
// risk role, after validating each against the open position table.
func forwardIdeas(ctx context.Context, d *Deps, panel int, output string) {
	for _, payload := range directivePayloads(output, "IDEA") {
		var idea ideaPayload
		if err := json.Unmarshal([]byte(payload), &idea); err != nil {
			logger.Debug(ctx, "Unparseable IDEA directive", "payload", payload, "error", err)
			continue
		}

		side := strings.ToLower(strings.TrimSpace(idea.Side))
		if side != "buy" && side != "sell" {
			logger.Debug(ctx, "Idea with invalid side dropped", "side", idea.Side, "symbol", idea.Symbol)
			continue
		}
		if idea.OrderType == "" {
			idea.OrderType = "limit"
		}
		if idea.Probability < 0 {
			idea.Probability = 0
		}
		if idea.Probability > 1 {
			idea.Probability = 1
		}

		ok, note := validateIdea(d.State, idea.Symbol, side)
		if !ok {
			d.Sink.Output(panel, "[market] "+note)
			continue
		}

		msg := bus.TradeIdea{
			Symbol:         idea.Symbol,
			Side:           side,
			OrderType:      idea.OrderType,
			SuggestedQty:   string(idea.SuggestedQty),
			SuggestedPrice: string(idea.SuggestedPrice),
			Probability:    idea.Probability,
			Reason:         idea.Reason,
		}
		if err := d.Bus.Send(bus.RoleRisk, msg); err != nil {
			logger.ErrorWithErr(ctx, "Trade idea send failed", err, "symbol", idea.Symbol)
			continue
		}

		warning := ""
		if note != "" {
			warning = " (" + note + ")"
		}
		d.Sink.Output(panel, fmt.Sprintf("[idea] %s %s qty=%s p=%.0f%% — %s%s",
			msg.Symbol, msg.Side, msg.SuggestedQty, msg.Probability*100, msg.Reason, warning))
	}
}

// validateIdea checks a proposed trade against open positions. A same-side
// duplicate is dropped; an opposite-side idea passes with a warning note.
func validateIdea(st *state.State, symbol, side string) (ok bool, note string) {
	p, exists := st.Position(symbol)
	if !exists {
		return true, ""
	}
	if strings.EqualFold(p.Side, side) {
		return false, fmt.Sprintf("Idea dropped: already %s %s qty=%s", p.Side, symbol, p.Qty)
	}
	return true, fmt.Sprintf("reduces existing %s position qty=%s", p.Side, p.Qty)
}

// marketContext injects current tickers for active pairs plus the open
// position table.
func marketContext(st *state.State) string {
	var parts []string
	for _, symbol := range st.ActivePairs() {
		if t, ok := st.Ticker(symbol); ok {
			parts = append(parts, fmt.Sprintf("%s: bid=%s ask=%s last=%s vol=%s",
				symbol, t.Bid, t.Ask, t.Last, t.Volume))
		}
	}
	if positions := st.Positions(); len(positions) > 0 {
		parts = append(parts, "Open positions:")
		for _, p := range positions {
			parts = append(parts, fmt.Sprintf("  %s %s qty=%s entry=%s current=%s pnl=%s",
				p.Symbol, p.Side, p.Qty, p.EntryPrice, p.CurrentPrice, p.UnrealizedPnL))
		}
	}
	if len(parts) == 0 {
		return "No market data yet."
	}
	return strings.Join(parts, "\n")
}
