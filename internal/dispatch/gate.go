package dispatch

import (
	"math"
	"strconv"

	"multi-agent-trader/internal/metrics"
	"multi-agent-trader/internal/state"
)

// PriceGate throttles ticker rebroadcasts: a symbol's update passes only
// when its last price has moved at least threshold (relative) from the
// watermark of the previous pass. The first observation of a symbol seeds
// the watermark and passes, so the first signal is never lost.
type PriceGate struct {
	st        *state.State
	threshold float64
}

func NewPriceGate(st *state.State, threshold float64) *PriceGate {
	return &PriceGate{st: st, threshold: threshold}
}

// Check evaluates one ticker update and advances the watermark on pass.
// It runs for every update regardless of active-pair membership, so a
// symbol watched later still has a seeded watermark from its first sight.
func (g *PriceGate) Check(symbol, last string) bool {
	cur, err := strconv.ParseFloat(last, 64)
	if err != nil || cur <= 0 {
		metrics.GateChecks.WithLabelValues("invalid").Inc()
		return false
	}

	prev, ok := g.st.LastAnalyzed(symbol)
	if !ok {
		g.st.SetLastAnalyzed(symbol, cur)
		metrics.GateChecks.WithLabelValues("seed").Inc()
		return true
	}

	if math.Abs(cur-prev)/prev >= g.threshold {
		g.st.SetLastAnalyzed(symbol, cur)
		metrics.GateChecks.WithLabelValues("pass").Inc()
		return true
	}
	metrics.GateChecks.WithLabelValues("suppress").Inc()
	return false
}
