package roles

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"multi-agent-trader/internal/bus"
	"multi-agent-trader/internal/logger"
	"multi-agent-trader/internal/metrics"
	"multi-agent-trader/internal/tradelog"
	"multi-agent-trader/internal/types"
)

// Execution places orders exactly as approved, with no responder and no
// history. It never sizes, prices or second-guesses; that already happened
// upstream.
type Execution struct {
	d *Deps
}

func NewExecution(d *Deps) *Execution { return &Execution{d: d} }

func (e *Execution) Role() bus.Role    { return bus.RoleExecution }
func (e *Execution) Panel() int        { return PanelRisk }
func (e *Execution) ErrorLine() string { return "[exec] [error] Execution Agent encountered an error" }

func (e *Execution) Handle(ctx context.Context, msg bus.Message, history []types.Turn) ([]types.Turn, error) {
	switch v := msg.(type) {
	case bus.ApprovedOrder:
		e.d.Sink.Output(PanelRisk, fmt.Sprintf("[exec] Executing: %s %s %s qty=%s price=%s",
			v.Symbol, v.Side, v.OrderType, v.Qty, orDefault(v.Price, "market")))
		id := v.ClientOrderID
		if id == "" {
			id = uuid.NewString()
		}
		e.place(ctx, types.OrderRequest{
			Symbol:        v.Symbol,
			Side:          v.Side,
			OrderType:     v.OrderType,
			Qty:           v.Qty,
			Price:         v.Price,
			ClientOrderID: id,
		}, v.Reason)
	case bus.ClosePosition:
		e.d.Sink.Output(PanelRisk, fmt.Sprintf("[exec] Closing: %s %s qty=%s", v.Symbol, v.Side, v.Qty))
		e.place(ctx, types.OrderRequest{
			Symbol:        v.Symbol,
			Side:          v.Side,
			OrderType:     "market",
			Qty:           v.Qty,
			ClientOrderID: uuid.NewString(),
		}, v.Reason)
	case bus.OrderResult:
		status := "accepted"
		if !v.Success {
			status = "rejected: " + v.Error
		}
		e.d.Sink.Output(PanelRisk, fmt.Sprintf("[exec] Exchange response: order_id=%s — %s", v.OrderID, status))
		if !v.Success {
			// Risk needs to hear about rejections to reconsider exposure.
			if err := e.d.Bus.Send(bus.RoleRisk, v); err != nil {
				return nil, err
			}
		}
	case bus.UserRequest, bus.TickerBroadcast, bus.TradeIdea, bus.ConsultRequest,
		bus.ConsultResponse, bus.ExecutionUpdate:
		// Not addressed to this role.
	}
	return history, nil
}

// place emits the order toward the venue bridge, or just narrates it in
// DRY_RUN mode.
func (e *Execution) place(ctx context.Context, req types.OrderRequest, reason string) {
	if e.d.Cfg.Mode == "DRY_RUN" {
		e.d.Sink.Output(PanelRisk, fmt.Sprintf("[exec] DRY_RUN: %s %s %s qty=%s price=%s",
			req.Symbol, req.Side, req.OrderType, req.Qty, orDefault(req.Price, "market")))
		return
	}

	e.d.Sink.PlaceOrder(req)
	e.d.Sink.Output(PanelRisk, fmt.Sprintf("[exec] ORDER SENT: %s %s %s qty=%s price=%s",
		req.Symbol, req.Side, req.OrderType, req.Qty, orDefault(req.Price, "market")))

	logger.Order(ctx, req.Symbol, req.Side, req.Qty, req.OrderType, req.ClientOrderID)
	metrics.OrdersPlaced.WithLabelValues(req.Symbol, req.Side).Inc()
	err := tradelog.Append(tradelog.Entry{
		Symbol:        req.Symbol,
		Side:          req.Side,
		OrderType:     req.OrderType,
		Qty:           req.Qty,
		Price:         req.Price,
		ClientOrderID: req.ClientOrderID,
		Reason:        reason,
	})
	if err != nil {
		logger.ErrorWithErr(ctx, "Trade log append failed", err, "symbol", req.Symbol)
	}
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
