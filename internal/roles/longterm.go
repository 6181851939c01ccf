package roles

import (
	"context"
	"fmt"
	"strings"
	"time"

	"multi-agent-trader/internal/bus"
	"multi-agent-trader/internal/kraken"
	"multi-agent-trader/internal/logger"
	"multi-agent-trader/internal/state"
	"multi-agent-trader/internal/ta"
	"multi-agent-trader/internal/types"
)

const longtermSystemPrompt = `You are the long-term agent for a multi-agent crypto trading system. ` +
	`You are an experienced technical analyst focused on multi-hour and daily chart patterns.

Your expertise:
- Trend identification (higher highs/lows, moving average crossovers)
- Support and resistance level detection
- Candlestick pattern recognition (engulfing, doji, hammer, etc.)
- Volume analysis and divergence detection
- Multi-timeframe confluence

Your role:
- Analyze the OHLC candle tables and indicator summaries provided with each task
- Identify high-probability setups based on chart patterns and trends
- Focus on swing/position trades (hours to days), not scalping

To propose a trade, include a line of exactly this form in your reply:
IDEA {"symbol": "BTC/USD", "side": "buy", "order_type": "limit", "suggested_qty": "0.01", "suggested_price": "60000", "probability": 0.65, "reason": "..."}

You complement the market agent, who watches real-time price action and
microstructure. You focus on the bigger picture: trend direction, key
levels, and pattern-based entries. Be concise. Only propose trades with
clear technical justification and calibrated probability scores.`

// Longterm fetches candle history for each active pair on a timer and
// looks for swing setups. It owns no mailbox; the monitor drives it.
type Longterm struct {
	d       *Deps
	kraken  *kraken.Client
	history []types.Turn
}

func NewLongterm(d *Deps, k *kraken.Client) *Longterm {
	return &Longterm{d: d, kraken: k}
}

// Monitor returns the periodic driver for the long-term review.
func (l *Longterm) Monitor() *PeriodicMonitor {
	return &PeriodicMonitor{
		Role:      bus.RoleLongterm,
		Panel:     PanelMarket,
		ErrorLine: "[error] Long-term Agent encountered an error",
		Interval:  time.Duration(l.d.Cfg.Roles.LongtermMinutes) * time.Minute,
		State:     l.d.State,
		Sink:      l.d.Sink,
		Check:     func() bool { return len(l.d.State.ActivePairs()) > 0 },
		Review:    l.review,
	}
}

func (l *Longterm) review(ctx context.Context) error {
	var sections []string
	for _, pair := range l.d.State.ActivePairs() {
		candles, err := l.kraken.OHLC(ctx, pair)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// One dead feed must not block review of the other pairs.
			logger.ErrorWithErr(ctx, "OHLC fetch failed", err, "symbol", pair)
			l.d.Sink.Output(PanelMarket, fmt.Sprintf("[longterm] %s: candle data unavailable", pair))
			continue
		}
		recent := kraken.Recent(candles, l.kraken.Keep())
		highs, lows, closes, volumes := candleSeries(recent)
		sections = append(sections,
			kraken.RenderRecent(pair, l.kraken.Interval(), candles, l.kraken.Keep())+
				"\n\nIndicators:\n"+ta.Summary(highs, lows, closes, volumes))
	}
	if len(sections) == 0 {
		return nil
	}

	task := "Review the candle data and indicator summaries below for swing trade " +
		"opportunities. Assess trend direction, key support/resistance levels, and " +
		"any notable candlestick patterns. Propose a trade with an IDEA directive " +
		"only on a high-probability setup; otherwise briefly summarize the market " +
		"structure.\n\n" + strings.Join(sections, "\n\n")

	reply, err := respond(ctx, l.d, bus.RoleLongterm, types.Prompt{
		System:  longtermSystemPrompt,
		Context: positionContext(l.d.State),
		Task:    task,
		History: l.history,
	})
	if err != nil {
		return err
	}
	l.history = trimHistory(reply.History, l.d.Cfg.Roles.HistoryLimit)

	l.d.Sink.Output(PanelMarket, "[longterm] "+strings.TrimSpace(reply.Output))
	forwardIdeas(ctx, l.d, PanelMarket, reply.Output)
	return nil
}

func candleSeries(candles []types.Candle) (highs, lows, closes, volumes []float64) {
	highs = make([]float64, len(candles))
	lows = make([]float64, len(candles))
	closes = make([]float64, len(candles))
	volumes = make([]float64, len(candles))
	for i, c := range candles {
		highs[i] = c.High
		lows[i] = c.Low
		closes[i] = c.Close
		volumes[i] = c.Vol
	}
	return highs, lows, closes, volumes
}

// positionContext injects the open position table only.
func positionContext(st *state.State) string {
	positions := st.Positions()
	if len(positions) == 0 {
		return "No open positions."
	}
	parts := []string{"Open positions:"}
	for _, p := range positions {
		parts = append(parts, fmt.Sprintf("  %s %s qty=%s entry=%s current=%s pnl=%s",
			p.Symbol, p.Side, p.Qty, p.EntryPrice, p.CurrentPrice, p.UnrealizedPnL))
	}
	return strings.Join(parts, "\n")
}
