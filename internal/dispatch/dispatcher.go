package dispatch

import (
	"context"
	"strconv"
	"strings"

	"multi-agent-trader/internal/bus"
	"multi-agent-trader/internal/interfaces"
	"multi-agent-trader/internal/logger"
	"multi-agent-trader/internal/metrics"
	"multi-agent-trader/internal/state"
)

// Dispatcher consumes decoded inbound items, mutates shared state, and
// re-emits at most one typed message per item. It never blocks on a role
// loop; mailboxes absorb whatever the roles have not drained yet.
type Dispatcher struct {
	st   *state.State
	bus  *bus.Bus
	sink interfaces.Sink
	gate *PriceGate
	in   <-chan map[string]any
}

func New(st *state.State, b *bus.Bus, sink interfaces.Sink, gate *PriceGate, in <-chan map[string]any) *Dispatcher {
	return &Dispatcher{st: st, bus: b, sink: sink, gate: gate, in: in}
}

// Run routes items until a shutdown event, end of stream, or ctx
// cancellation. A nil return is the orderly-shutdown signal the
// orchestrator races on.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case item, ok := <-d.in:
			if !ok {
				d.sink.Output(0, "[system] Input stream closed")
				d.st.BeginShutdown()
				return nil
			}
			if done := d.route(ctx, item); done {
				return nil
			}
		}
	}
}

func (d *Dispatcher) route(ctx context.Context, item map[string]any) bool {
	kind, _ := item["type"].(string)
	metrics.EventsTotal.WithLabelValues(kind).Inc()

	switch kind {
	case "user_message":
		d.send(bus.RoleUser, bus.UserRequest{Content: asString(item["content"])})

	case "ticker_update":
		d.routeTicker(item)

	case "execution_update":
		d.send(bus.RoleRisk, bus.ExecutionUpdate{Events: asEventList(item["data"])})

	case "order_response":
		// The venue response carries no symbol context; identity fields
		// stay empty and execution correlates by recency.
		d.send(bus.RoleExecution, bus.OrderResult{
			Success: asBool(item["success"]),
			OrderID: asString(item["order_id"]),
			Error:   asString(item["error"]),
		})

	case "balance_update":
		d.routeBalances(item)

	case "active_pairs":
		pairs := asStringList(item["pairs"])
		d.st.SetActivePairs(pairs)
		label := strings.Join(pairs, ", ")
		if label == "" {
			label = "none"
		}
		d.sink.Output(0, "[system] Active pairs: "+label)

	case "risk_limits":
		desc := asString(item["description"])
		d.st.SetRiskLimits(desc)
		d.sink.Output(2, "[risk] Limits updated: "+desc)

	case "token_state":
		ts := "unknown"
		if v, ok := item["state"]; ok {
			ts = asString(v)
		}
		d.st.SetTokenState(ts)
		d.sink.Output(0, "[system] Token state: "+ts)

	case "shutdown":
		d.sink.Output(0, "[system] Shutdown requested")
		d.st.BeginShutdown()
		return true

	default:
		logger.Debug(ctx, "Dropping unknown inbound item", "kind", kind)
	}
	return false
}

// routeTicker stores the quote, then evaluates the gate on every update so
// the watermark seeds even for symbols not yet watched. The broadcast
// itself requires active-pair membership and a gate pass.
func (d *Dispatcher) routeTicker(item map[string]any) {
	data, _ := item["data"].(map[string]any)
	if data == nil {
		return
	}
	symbol := asString(data["symbol"])
	if symbol == "" {
		return
	}

	t := state.Ticker{
		Symbol: symbol,
		Bid:    asString(data["bid"]),
		Ask:    asString(data["ask"]),
		Last:   asString(data["last"]),
		Volume: asString(data["volume"]),
		Raw:    data,
	}
	d.st.SetTicker(t)

	passed := d.gate.Check(symbol, t.Last)
	if passed && d.st.IsActivePair(symbol) {
		d.send(bus.RoleMarket, bus.TickerBroadcast{
			Symbol: symbol,
			Bid:    t.Bid,
			Ask:    t.Ask,
			Last:   t.Last,
			Volume: t.Volume,
		})
	}
}

func (d *Dispatcher) routeBalances(item map[string]any) {
	for _, entry := range asEventList(item["data"]) {
		asset := asString(entry["asset"])
		if asset == "" {
			asset = asString(entry["name"])
		}
		if asset == "" {
			continue
		}
		amount, ok := entry["balance"]
		if !ok {
			amount = entry["amount"]
		}
		d.st.SetBalance(state.Balance{Asset: asset, Amount: asString(amount)})
	}
}

func (d *Dispatcher) send(role bus.Role, msg bus.Message) {
	if err := d.bus.Send(role, msg); err != nil {
		logger.Error(context.Background(), "Bus send failed", "role", string(role), "error", err)
	}
}

func asString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		return ""
	}
}

func asBool(v any) bool {
	b, _ := v.(bool)
	return b
}

func asStringList(v any) []string {
	raw, _ := v.([]any)
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s := asString(item); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func asEventList(v any) []map[string]any {
	raw, _ := v.([]any)
	out := make([]map[string]any, 0, len(raw))
	for _, item := range raw {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}
