package roles

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"multi-agent-trader/internal/bus"
	"multi-agent-trader/internal/logger"
	"multi-agent-trader/internal/tradelog"
	"multi-agent-trader/internal/types"
)

const riskSystemPrompt = `You are the risk agent for a multi-agent crypto trading system. ` +
	`You are a conservative gatekeeper and your job is to protect capital.

Your rules:
- NEVER exceed the configured risk limits
- Cut losses at 2% of position value, no exceptions
- Size positions conservatively relative to account balance
- Require probability >= 0.6 to approve a trade idea
- Consult the market agent when uncertain about a position
- Monitor all open positions and close losers proactively

Respond with exactly one compact JSON decision on a single line:
  {"decision": "approve", "symbol": "BTC/USD", "side": "buy", "order_type": "limit", "qty": "0.01", "price": "60000", "reason": "..."}
  {"decision": "reject", "symbol": "BTC/USD", "side": "buy", "reason": "..."}
  {"decision": "consult", "symbol": "BTC/USD", "question": "..."}
  {"decision": "close", "symbol": "BTC/USD", "side": "sell", "qty": "0.01", "reason": "..."}
  {"decision": "none", "reason": "<brief commentary>"}
Use decimal strings for qty and price. Always explain your reasoning briefly.`

// riskDecision is the compact JSON decision the risk role expects back.
type riskDecision struct {
	Decision  string     `json:"decision"`
	Symbol    string     `json:"symbol"`
	Side      string     `json:"side"`
	OrderType string     `json:"order_type"`
	Qty       flexString `json:"qty"`
	Price     flexString `json:"price"`
	Question  string     `json:"question"`
	Reason    string     `json:"reason"`
}

// Risk evaluates trade ideas and guards open positions on panel 2. It is
// the only role allowed to hand orders to execution.
type Risk struct {
	d *Deps
}

func NewRisk(d *Deps) *Risk { return &Risk{d: d} }

func (r *Risk) Role() bus.Role    { return bus.RoleRisk }
func (r *Risk) Panel() int        { return PanelRisk }
func (r *Risk) ErrorLine() string { return "[risk] [error] Risk Agent encountered an error" }

func (r *Risk) Handle(ctx context.Context, msg bus.Message, history []types.Turn) ([]types.Turn, error) {
	switch v := msg.(type) {
	case bus.TradeIdea:
		return r.onIdea(ctx, v, history)
	case bus.ConsultResponse:
		return r.onConsultResponse(ctx, v, history)
	case bus.ExecutionUpdate:
		return r.onExecutionUpdate(ctx, v, history)
	case bus.OrderResult:
		if !v.Success {
			r.d.Sink.Output(PanelRisk, "[risk] Order failed: "+v.Error)
		}
		return history, nil
	case bus.UserRequest, bus.TickerBroadcast, bus.ConsultRequest, bus.ApprovedOrder, bus.ClosePosition:
		// Not addressed to this role.
		return history, nil
	}
	return history, nil
}

func (r *Risk) onIdea(ctx context.Context, idea bus.TradeIdea, history []types.Turn) ([]types.Turn, error) {
	r.d.Sink.Output(PanelRisk, fmt.Sprintf("[risk] Evaluating: %s %s qty=%s p=%.0f%%",
		idea.Symbol, idea.Side, idea.SuggestedQty, idea.Probability*100))

	price := idea.SuggestedPrice
	if price == "" {
		price = "market"
	}
	task := fmt.Sprintf(
		"Evaluate this trade idea:\nSymbol: %s, Side: %s, Type: %s\nQty: %s, Price: %s\nProbability: %.0f%%\nReason: %s\n\n"+
			"Approve or reject based on risk limits and position sizing rules.",
		idea.Symbol, idea.Side, idea.OrderType, idea.SuggestedQty, price, idea.Probability*100, idea.Reason)

	reply, err := respond(ctx, r.d, bus.RoleRisk, types.Prompt{
		System:  riskSystemPrompt,
		Context: r.stateContext(),
		Task:    task,
		History: history,
	})
	if err != nil {
		return nil, err
	}
	r.applyDecision(ctx, reply.Output)
	return reply.History, nil
}

func (r *Risk) onConsultResponse(ctx context.Context, v bus.ConsultResponse, history []types.Turn) ([]types.Turn, error) {
	task := fmt.Sprintf(
		"Market agent responds about %s:\nAnalysis: %s\nRecommendation: %s\n\n"+
			"Decide what action to take on this position.",
		v.Symbol, v.Analysis, v.Recommendation)

	reply, err := respond(ctx, r.d, bus.RoleRisk, types.Prompt{
		System:  riskSystemPrompt,
		Context: r.stateContext(),
		Task:    task,
		History: history,
	})
	if err != nil {
		return nil, err
	}
	r.applyDecision(ctx, reply.Output)
	return reply.History, nil
}

func (r *Risk) onExecutionUpdate(ctx context.Context, v bus.ExecutionUpdate, history []types.Turn) ([]types.Turn, error) {
	// Fills mutate positions deterministically before any judgment call.
	for _, ev := range v.Events {
		r.d.State.UpsertFill(ev)
	}

	rendered, err := json.Marshal(v.Events)
	if err != nil {
		rendered = []byte(fmt.Sprintf("%v", v.Events))
	}
	task := fmt.Sprintf("Execution update received: %s. Review position state.", rendered)

	reply, err := respond(ctx, r.d, bus.RoleRisk, types.Prompt{
		System:  riskSystemPrompt,
		Context: r.stateContext(),
		Task:    task,
		History: history,
	})
	if err != nil {
		return nil, err
	}
	r.applyDecision(ctx, reply.Output)
	return reply.History, nil
}

// Monitor returns the periodic position review driver.
func (r *Risk) Monitor() *PeriodicMonitor {
	var history []types.Turn
	return &PeriodicMonitor{
		Role:      bus.RoleRisk,
		Panel:     PanelRisk,
		ErrorLine: "[risk] [error] Risk Agent encountered an error",
		Interval:  time.Duration(r.d.Cfg.Roles.RiskReviewSeconds) * time.Second,
		State:     r.d.State,
		Sink:      r.d.Sink,
		Check:     func() bool { return len(r.d.State.Positions()) > 0 },
		Review: func(ctx context.Context) error {
			r.d.Sink.Output(PanelRisk, "[risk] Periodic position review...")
			reply, err := respond(ctx, r.d, bus.RoleRisk, types.Prompt{
				System:  riskSystemPrompt,
				Context: r.stateContext(),
				Task: "Review all open positions. Check if any need to be closed " +
					"(2% loss rule) or if the market agent should be consulted.",
				History: history,
			})
			if err != nil {
				return err
			}
			history = trimHistory(reply.History, r.d.Cfg.Roles.HistoryLimit)
			r.applyDecision(ctx, reply.Output)
			return nil
		},
	}
}

// applyDecision enacts the responder's verdict. Anything unparseable is
// treated as commentary, never as an order.
func (r *Risk) applyDecision(ctx context.Context, output string) {
	var d riskDecision
	if !decodeAction(output, &d) {
		if text := strings.TrimSpace(output); text != "" {
			r.d.Sink.Output(PanelRisk, "[risk] "+text)
		}
		return
	}

	switch strings.ToLower(strings.TrimSpace(d.Decision)) {
	case "approve":
		r.approve(ctx, d)
	case "reject":
		r.d.Sink.Output(PanelRisk, fmt.Sprintf("[risk] REJECTED: %s %s — %s", d.Symbol, d.Side, d.Reason))
		r.logDecision(ctx, d.Symbol, "reject", d.Reason)
	case "consult":
		if err := r.d.Bus.Send(bus.RoleMarket, bus.ConsultRequest{Symbol: d.Symbol, Question: d.Question}); err != nil {
			logger.ErrorWithErr(ctx, "Consult send failed", err, "symbol", d.Symbol)
			return
		}
		r.d.Sink.Output(PanelRisk, fmt.Sprintf("[risk] Consulting market on %s: %s", d.Symbol, d.Question))
	case "close":
		if err := r.d.Bus.Send(bus.RoleExecution, bus.ClosePosition{
			Symbol: d.Symbol, Side: d.Side, Qty: string(d.Qty), Reason: d.Reason,
		}); err != nil {
			logger.ErrorWithErr(ctx, "Close send failed", err, "symbol", d.Symbol)
			return
		}
		r.d.Sink.Output(PanelRisk, fmt.Sprintf("[risk] CLOSING: %s %s %s — %s", d.Symbol, d.Side, d.Qty, d.Reason))
		logger.Risk(ctx, d.Symbol, "close_position")
		r.logDecision(ctx, d.Symbol, "close", d.Reason)
	default:
		// "none" and anything unrecognized: commentary only.
		if d.Reason != "" {
			r.d.Sink.Output(PanelRisk, "[risk] "+d.Reason)
		}
	}
}

func (r *Risk) approve(ctx context.Context, d riskDecision) {
	if r.d.State.TokenState() != "authenticated" {
		r.d.Sink.Output(PanelRisk, "[risk] Cannot place orders — not authenticated with exchange.")
		return
	}

	orderType := d.OrderType
	if orderType == "" {
		orderType = "limit"
	}
	order := bus.ApprovedOrder{
		Symbol:    d.Symbol,
		Side:      d.Side,
		OrderType: orderType,
		Qty:       string(d.Qty),
		Price:     string(d.Price),
		Reason:    d.Reason,
	}
	if err := r.d.Bus.Send(bus.RoleExecution, order); err != nil {
		logger.ErrorWithErr(ctx, "Approved order send failed", err, "symbol", d.Symbol)
		return
	}
	r.d.Sink.Output(PanelRisk, fmt.Sprintf("[risk] APPROVED: %s %s %s — %s", d.Symbol, d.Side, d.Qty, d.Reason))
	r.logDecision(ctx, d.Symbol, "approve", d.Reason)
}

func (r *Risk) logDecision(ctx context.Context, symbol, action, reason string) {
	logger.Decision(ctx, string(bus.RoleRisk), action, reason)
	err := tradelog.AppendDecision(tradelog.DecisionEntry{
		Symbol: symbol,
		Action: action,
		Reason: reason,
	})
	if err != nil {
		logger.ErrorWithErr(ctx, "Decision log append failed", err, "symbol", symbol)
	}
}

// stateContext injects risk limits, token state, positions and balances.
func (r *Risk) stateContext() string {
	st := r.d.State
	var parts []string
	if limits := st.RiskLimits(); limits != "" {
		parts = append(parts, "Risk limits: "+limits)
	}
	parts = append(parts, "Token state: "+st.TokenState())
	if positions := st.Positions(); len(positions) > 0 {
		parts = append(parts, "Open positions:")
		for _, p := range positions {
			parts = append(parts, fmt.Sprintf("  %s %s qty=%s entry=%s current=%s pnl=%s",
				p.Symbol, p.Side, p.Qty, p.EntryPrice, p.CurrentPrice, p.UnrealizedPnL))
		}
	} else {
		parts = append(parts, "No open positions.")
	}
	for _, b := range st.Balances() {
		parts = append(parts, fmt.Sprintf("Balance: %s = %s", b.Asset, b.Amount))
	}
	return strings.Join(parts, "\n")
}
