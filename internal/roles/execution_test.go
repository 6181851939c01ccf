package roles

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"

	"multi-agent-trader/internal/bus"
)

func readTradeLog(t *testing.T, dir string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, "*.txt"))
	if err != nil {
		t.Fatalf("Glob failed: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("Expected 1 trade log file, got %d", len(matches))
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("Failed to read trade log: %v", err)
	}
	return string(data)
}

func TestExecutionDryRunNarratesOnly(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("AGENT_LOG_DIR", dir)

	d, sink := newTestDeps(&stubResponder{})
	e := NewExecution(d)

	order := bus.ApprovedOrder{
		Symbol: "BTC/USD", Side: "buy", OrderType: "limit",
		Qty: "0.01", Price: "60000", Reason: "approved breakout",
	}
	if _, err := e.Handle(context.Background(), order, nil); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	if !sink.hasLine(2, "[exec] Executing: BTC/USD buy limit qty=0.01 price=60000") {
		t.Error("Expected executing line on panel 2")
	}
	if !sink.hasLine(2, "[exec] DRY_RUN: BTC/USD buy limit qty=0.01 price=60000") {
		t.Error("Expected dry run line on panel 2")
	}
	if got := len(sink.placedOrders()); got != 0 {
		t.Errorf("Expected no orders placed in dry run, got %d", got)
	}
	if matches, _ := filepath.Glob(filepath.Join(dir, "*.txt")); len(matches) != 0 {
		t.Errorf("Expected no trade log in dry run, got %v", matches)
	}
}

func TestExecutionLivePlacesOrder(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("AGENT_LOG_DIR", dir)

	d, sink := newTestDeps(&stubResponder{})
	d.Cfg.Mode = "LIVE"
	e := NewExecution(d)

	order := bus.ApprovedOrder{
		Symbol: "BTC/USD", Side: "buy", OrderType: "limit",
		Qty: "0.01", Price: "60000", Reason: "approved breakout",
	}
	if _, err := e.Handle(context.Background(), order, nil); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	placed := sink.placedOrders()
	if len(placed) != 1 {
		t.Fatalf("Expected 1 order placed, got %d", len(placed))
	}
	req := placed[0]
	if req.Symbol != "BTC/USD" || req.Side != "buy" || req.OrderType != "limit" || req.Qty != "0.01" || req.Price != "60000" {
		t.Errorf("Unexpected order request: %+v", req)
	}
	if _, err := uuid.Parse(req.ClientOrderID); err != nil {
		t.Errorf("Expected generated client order id to be a uuid, got %q", req.ClientOrderID)
	}
	if !sink.hasLine(2, "[exec] ORDER SENT: BTC/USD buy limit qty=0.01 price=60000") {
		t.Error("Expected order sent line on panel 2")
	}
	log := readTradeLog(t, dir)
	if !strings.Contains(log, `"Symbol":"BTC/USD"`) || !strings.Contains(log, "approved breakout") {
		t.Errorf("Expected placement in trade log, got %q", log)
	}
}

func TestExecutionPreservesClientOrderID(t *testing.T) {
	t.Setenv("AGENT_LOG_DIR", t.TempDir())

	d, sink := newTestDeps(&stubResponder{})
	d.Cfg.Mode = "LIVE"
	e := NewExecution(d)

	order := bus.ApprovedOrder{
		Symbol: "ETH/USD", Side: "sell", OrderType: "limit",
		Qty: "1", Price: "3000", ClientOrderID: "risk-batch-7",
	}
	if _, err := e.Handle(context.Background(), order, nil); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	placed := sink.placedOrders()
	if len(placed) != 1 {
		t.Fatalf("Expected 1 order placed, got %d", len(placed))
	}
	if placed[0].ClientOrderID != "risk-batch-7" {
		t.Errorf("Expected client order id preserved, got %q", placed[0].ClientOrderID)
	}
}

func TestExecutionClosePositionUsesMarketOrder(t *testing.T) {
	t.Setenv("AGENT_LOG_DIR", t.TempDir())

	d, sink := newTestDeps(&stubResponder{})
	d.Cfg.Mode = "LIVE"
	e := NewExecution(d)

	msg := bus.ClosePosition{Symbol: "BTC/USD", Side: "sell", Qty: "0.5", Reason: "2% loss rule"}
	if _, err := e.Handle(context.Background(), msg, nil); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	if !sink.hasLine(2, "[exec] Closing: BTC/USD sell qty=0.5") {
		t.Error("Expected closing line on panel 2")
	}
	placed := sink.placedOrders()
	if len(placed) != 1 {
		t.Fatalf("Expected 1 order placed, got %d", len(placed))
	}
	req := placed[0]
	if req.OrderType != "market" || req.Price != "" {
		t.Errorf("Expected market order with no price, got %+v", req)
	}
	if _, err := uuid.Parse(req.ClientOrderID); err != nil {
		t.Errorf("Expected generated client order id to be a uuid, got %q", req.ClientOrderID)
	}
	if !sink.hasLine(2, "[exec] ORDER SENT: BTC/USD sell market qty=0.5 price=market") {
		t.Error("Expected order sent line with market price")
	}
}

func TestExecutionOrderResultAccepted(t *testing.T) {
	d, sink := newTestDeps(&stubResponder{})
	e := NewExecution(d)

	msg := bus.OrderResult{Symbol: "BTC/USD", Side: "buy", Success: true, OrderID: "OABC-123"}
	if _, err := e.Handle(context.Background(), msg, nil); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	if !sink.hasLine(2, "[exec] Exchange response: order_id=OABC-123 — accepted") {
		t.Error("Expected accepted line on panel 2")
	}
	if d.Bus.Pending(bus.RoleRisk) != 0 {
		t.Error("Expected accepted result not forwarded to risk")
	}
}

func TestExecutionOrderResultRejectionForwarded(t *testing.T) {
	d, sink := newTestDeps(&stubResponder{})
	e := NewExecution(d)

	msg := bus.OrderResult{Symbol: "BTC/USD", Side: "buy", Success: false, OrderID: "OABC-124", Error: "insufficient funds"}
	if _, err := e.Handle(context.Background(), msg, nil); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	if !sink.hasLine(2, "[exec] Exchange response: order_id=OABC-124 — rejected: insufficient funds") {
		t.Error("Expected rejected line on panel 2")
	}
	fwd, ok := recvNow(t, d.Bus, bus.RoleRisk).(bus.OrderResult)
	if !ok {
		t.Fatal("Expected rejection forwarded to risk")
	}
	if fwd.Error != "insufficient funds" {
		t.Errorf("Unexpected forwarded result: %+v", fwd)
	}
}
