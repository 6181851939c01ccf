package roles

import (
	"context"
	"strings"
	"testing"

	"multi-agent-trader/internal/bus"
	"multi-agent-trader/internal/state"
)

func TestMarketUserRequestStreams(t *testing.T) {
	rsp := &streamStub{}
	rsp.output = "BTC looks range-bound between 59k and 61k."
	d, sink := newTestDeps(rsp)
	m := NewMarket(d)

	history, err := m.Handle(context.Background(), bus.UserRequest{Content: "what about BTC?"}, nil)
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	if !sink.hasLine(1, "[user] what about BTC?") {
		t.Error("Expected request echoed with [user] prefix on panel 1")
	}
	var streamed strings.Builder
	for _, dl := range sink.deltas {
		if dl.panel != 1 {
			t.Errorf("Expected deltas on panel 1, got %d", dl.panel)
		}
		streamed.WriteString(dl.text)
	}
	if streamed.String() != rsp.output {
		t.Errorf("Expected streamed output %q, got %q", rsp.output, streamed.String())
	}
	if len(sink.streamEnds) != 1 || sink.streamEnds[0] != 1 {
		t.Errorf("Expected one stream end on panel 1, got %v", sink.streamEnds)
	}
	if len(history) != 2 {
		t.Errorf("Expected 2 history turns, got %d", len(history))
	}
}

func TestMarketPlainOutputWhenStreamingDisabled(t *testing.T) {
	rsp := &streamStub{}
	rsp.output = "No clear edge right now."
	d, sink := newTestDeps(rsp)
	d.Cfg.LLM.Stream = false
	m := NewMarket(d)

	if _, err := m.Handle(context.Background(), bus.UserRequest{Content: "thoughts?"}, nil); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	if len(sink.deltas) != 0 {
		t.Errorf("Expected no stream deltas, got %d", len(sink.deltas))
	}
	if !sink.hasLine(1, "No clear edge right now.") {
		t.Error("Expected whole reply printed on panel 1")
	}
}

func TestMarketTickerUsesFreshSnapshot(t *testing.T) {
	rsp := &streamStub{}
	rsp.output = "Momentum building."
	d, _ := newTestDeps(rsp)
	d.State.SetTicker(state.Ticker{Symbol: "BTC/USD", Bid: "60100", Ask: "60110", Last: "60105", Volume: "321"})
	m := NewMarket(d)

	if _, err := m.Handle(context.Background(), bus.TickerBroadcast{Symbol: "BTC/USD", Last: "59000"}, nil); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	p := rsp.lastPrompt()
	if !strings.Contains(p.Task, "last=60105") {
		t.Errorf("Expected task built from state snapshot, got %q", p.Task)
	}
}

func TestMarketTickerVanishedSkips(t *testing.T) {
	rsp := &streamStub{}
	d, _ := newTestDeps(rsp)
	m := NewMarket(d)

	history, err := m.Handle(context.Background(), bus.TickerBroadcast{Symbol: "DOGE/USD", Last: "0.1"}, nil)
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if rsp.callCount() != 0 {
		t.Errorf("Expected no responder call for vanished ticker, got %d", rsp.callCount())
	}
	if history != nil {
		t.Errorf("Expected history unchanged, got %v", history)
	}
}

func TestMarketIdeaDirectiveForwarded(t *testing.T) {
	rsp := &streamStub{}
	rsp.output = "Breakout forming.\n" +
		`IDEA {"symbol": "BTC/USD", "side": "buy", "order_type": "limit", "suggested_qty": "0.01", "suggested_price": "60500", "probability": 1.4, "reason": "range breakout"}`
	d, sink := newTestDeps(rsp)
	m := NewMarket(d)

	if _, err := m.Handle(context.Background(), bus.UserRequest{Content: "scan BTC"}, nil); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	msg := recvNow(t, d.Bus, bus.RoleRisk)
	idea, ok := msg.(bus.TradeIdea)
	if !ok {
		t.Fatalf("Expected TradeIdea, got %T", msg)
	}
	if idea.Symbol != "BTC/USD" || idea.Side != "buy" || idea.SuggestedQty != "0.01" {
		t.Errorf("Unexpected idea: %+v", idea)
	}
	if idea.Probability != 1.0 {
		t.Errorf("Expected probability clamped to 1.0, got %v", idea.Probability)
	}
	if !sink.hasLine(1, "[idea] BTC/USD buy qty=0.01 p=100% — range breakout") {
		t.Error("Expected idea line on panel 1")
	}
}

func TestMarketDuplicateIdeaDropped(t *testing.T) {
	rsp := &streamStub{}
	rsp.output = `IDEA {"symbol": "BTC/USD", "side": "buy", "suggested_qty": "0.01", "probability": 0.7, "reason": "add more"}`
	d, sink := newTestDeps(rsp)
	d.State.SetPosition(state.Position{Symbol: "BTC/USD", Side: "buy", Qty: "0.5"})
	m := NewMarket(d)

	if _, err := m.Handle(context.Background(), bus.UserRequest{Content: "scan"}, nil); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	if d.Bus.Pending(bus.RoleRisk) != 0 {
		t.Error("Expected duplicate idea not forwarded to risk")
	}
	if !sink.hasLine(1, "[market] Idea dropped: already buy BTC/USD qty=0.5") {
		t.Error("Expected drop note on panel 1")
	}
}

func TestMarketOppositeIdeaForwardedWithWarning(t *testing.T) {
	rsp := &streamStub{}
	rsp.output = `IDEA {"symbol": "BTC/USD", "side": "sell", "suggested_qty": "0.5", "probability": 0.8, "reason": "trend reversal"}`
	d, sink := newTestDeps(rsp)
	d.State.SetPosition(state.Position{Symbol: "BTC/USD", Side: "buy", Qty: "0.5"})
	m := NewMarket(d)

	if _, err := m.Handle(context.Background(), bus.UserRequest{Content: "scan"}, nil); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	msg := recvNow(t, d.Bus, bus.RoleRisk)
	idea := msg.(bus.TradeIdea)
	if idea.Side != "sell" {
		t.Errorf("Expected sell idea forwarded, got %s", idea.Side)
	}
	if !sink.hasLine(1, "(reduces existing buy position qty=0.5)") {
		t.Error("Expected warning suffix on idea line")
	}
}

func TestMarketIdeaNumericQtyTolerated(t *testing.T) {
	rsp := &streamStub{}
	rsp.output = `IDEA {"symbol": "ETH/USD", "side": "buy", "suggested_qty": 0.25, "probability": 0.6, "reason": "support bounce"}`
	d, _ := newTestDeps(rsp)
	m := NewMarket(d)

	if _, err := m.Handle(context.Background(), bus.UserRequest{Content: "scan"}, nil); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	idea := recvNow(t, d.Bus, bus.RoleRisk).(bus.TradeIdea)
	if idea.SuggestedQty != "0.25" {
		t.Errorf("Expected numeric qty coerced to string, got %q", idea.SuggestedQty)
	}
	if idea.OrderType != "limit" {
		t.Errorf("Expected default order type limit, got %q", idea.OrderType)
	}
}

func TestMarketConsultAnswerDirective(t *testing.T) {
	rsp := &streamStub{}
	rsp.output = "Position still healthy.\n" +
		`ANSWER {"symbol": "BTC/USD", "analysis": "holding above entry with rising volume", "recommendation": "HOLD"}`
	d, sink := newTestDeps(rsp)
	m := NewMarket(d)

	if _, err := m.Handle(context.Background(), bus.ConsultRequest{Symbol: "BTC/USD", Question: "should we exit?"}, nil); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	if !sink.hasLine(1, "[risk asks] BTC/USD: should we exit?") {
		t.Error("Expected consultation echoed on panel 1")
	}
	resp := recvNow(t, d.Bus, bus.RoleRisk).(bus.ConsultResponse)
	if resp.Recommendation != "hold" {
		t.Errorf("Expected recommendation normalized to hold, got %q", resp.Recommendation)
	}
	if resp.Analysis != "holding above entry with rising volume" {
		t.Errorf("Unexpected analysis: %q", resp.Analysis)
	}
}

func TestMarketConsultInvalidRecommendationFallsBack(t *testing.T) {
	rsp := &streamStub{}
	rsp.output = `ANSWER {"symbol": "BTC/USD", "analysis": "unclear", "recommendation": "maybe"}`
	d, _ := newTestDeps(rsp)
	m := NewMarket(d)

	if _, err := m.Handle(context.Background(), bus.ConsultRequest{Symbol: "BTC/USD", Question: "?"}, nil); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	resp := recvNow(t, d.Bus, bus.RoleRisk).(bus.ConsultResponse)
	if resp.Recommendation != "hold" {
		t.Errorf("Expected fallback hold, got %q", resp.Recommendation)
	}
}

func TestMarketConsultMissingDirectiveStillAnswers(t *testing.T) {
	rsp := &streamStub{}
	rsp.output = "I would keep the position; the trend is intact."
	d, _ := newTestDeps(rsp)
	m := NewMarket(d)

	if _, err := m.Handle(context.Background(), bus.ConsultRequest{Symbol: "ETH/USD", Question: "close it?"}, nil); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	resp := recvNow(t, d.Bus, bus.RoleRisk).(bus.ConsultResponse)
	if resp.Symbol != "ETH/USD" || resp.Recommendation != "hold" {
		t.Errorf("Expected fallback response for ETH/USD with hold, got %+v", resp)
	}
	if !strings.Contains(resp.Analysis, "keep the position") {
		t.Errorf("Expected whole reply as analysis, got %q", resp.Analysis)
	}
}

func TestMarketOrderResultInformational(t *testing.T) {
	rsp := &streamStub{}
	d, sink := newTestDeps(rsp)
	m := NewMarket(d)

	if _, err := m.Handle(context.Background(), bus.OrderResult{Symbol: "BTC/USD", Side: "buy", Success: true}, nil); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if _, err := m.Handle(context.Background(), bus.OrderResult{Symbol: "BTC/USD", Side: "sell", Success: false, Error: "insufficient funds"}, nil); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	if !sink.hasLine(1, "[order] BTC/USD buy — filled") {
		t.Error("Expected filled order line")
	}
	if !sink.hasLine(1, "[order] BTC/USD sell — failed: insufficient funds") {
		t.Error("Expected failed order line")
	}
	if rsp.callCount() != 0 {
		t.Errorf("Expected no responder calls for order results, got %d", rsp.callCount())
	}
}
