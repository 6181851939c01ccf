package dispatch

import (
	"testing"

	"multi-agent-trader/internal/state"
)

func TestGateSeedsOnFirstSight(t *testing.T) {
	st := state.New()
	g := NewPriceGate(st, 0.001)

	if !g.Check("BTC/USD", "60000") {
		t.Error("Expected first observation to pass")
	}
	if v, ok := st.LastAnalyzed("BTC/USD"); !ok || v != 60000 {
		t.Errorf("Expected watermark 60000 after seed, got %f (ok=%v)", v, ok)
	}
}

func TestGateSuppressesSmallMoves(t *testing.T) {
	st := state.New()
	g := NewPriceGate(st, 0.001)

	g.Check("BTC/USD", "100")
	if g.Check("BTC/USD", "100.05") {
		t.Error("Expected 0.05% move to be suppressed")
	}
	// Watermark must not advance on suppression.
	if v, _ := st.LastAnalyzed("BTC/USD"); v != 100 {
		t.Errorf("Expected watermark to stay at 100, got %f", v)
	}
}

func TestGatePassesAtThreshold(t *testing.T) {
	st := state.New()
	g := NewPriceGate(st, 0.001)

	g.Check("BTC/USD", "100")
	if !g.Check("BTC/USD", "100.1") {
		t.Error("Expected exactly 0.1% move to pass")
	}
	if v, _ := st.LastAnalyzed("BTC/USD"); v != 100.1 {
		t.Errorf("Expected watermark re-seeded to 100.1, got %f", v)
	}

	// Downward moves count the same.
	if !g.Check("BTC/USD", "99") {
		t.Error("Expected downward move past threshold to pass")
	}
}

func TestGateRejectsUnparseablePrices(t *testing.T) {
	st := state.New()
	g := NewPriceGate(st, 0.001)

	if g.Check("BTC/USD", "") {
		t.Error("Expected empty price to fail")
	}
	if g.Check("BTC/USD", "n/a") {
		t.Error("Expected non-numeric price to fail")
	}
	if g.Check("BTC/USD", "0") {
		t.Error("Expected zero price to fail")
	}
	if g.Check("BTC/USD", "-5") {
		t.Error("Expected negative price to fail")
	}
	if _, ok := st.LastAnalyzed("BTC/USD"); ok {
		t.Error("Expected no watermark from invalid prices")
	}
}
