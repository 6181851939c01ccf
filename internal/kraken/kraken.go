// Package kraken fetches public OHLC candle data from Kraken's REST API.
package kraken

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"multi-agent-trader/internal/api"
	"multi-agent-trader/internal/logger"
	"multi-agent-trader/internal/store"
	"multi-agent-trader/internal/types"
)

// Client wraps the public market data endpoints. It holds no credentials;
// all order flow goes through the external venue bridge, not here.
type Client struct {
	http     *api.Client
	interval int
	keep     int
}

// NewClient builds a client from the kraken section of the config.
func NewClient(cfg *store.Config) *Client {
	return &Client{
		http: api.NewClient(
			api.WithBaseURL(cfg.Kraken.BaseURL),
			api.WithTimeout(time.Duration(cfg.Kraken.TimeoutSeconds)*time.Second),
			api.WithLogging(true),
		),
		interval: cfg.Kraken.IntervalMinutes,
		keep:     cfg.Kraken.Candles,
	}
}

// Interval returns the configured candle size in minutes.
func (c *Client) Interval() int { return c.interval }

// Keep returns how many trailing candles analysis should consider.
func (c *Client) Keep() int { return c.keep }

// RESTPair converts a WebSocket pair name to REST format ("BTC/USD" -> "BTCUSD").
func RESTPair(symbol string) string {
	return strings.ReplaceAll(symbol, "/", "")
}

type ohlcResponse struct {
	Error  []string                   `json:"error"`
	Result map[string]json.RawMessage `json:"result"`
}

// OHLC fetches candles for the pair at the configured interval. The venue
// returns up to 720 candles, oldest first.
func (c *Client) OHLC(ctx context.Context, symbol string) ([]types.Candle, error) {
	timer := logger.StartOperation(ctx, "kraken-ohlc", "symbol", symbol, "interval", c.interval)
	ctx = timer.GetContext()

	params := url.Values{}
	params.Set("pair", RESTPair(symbol))
	params.Set("interval", strconv.Itoa(c.interval))

	req := api.NewRequest("GET", "/0/public/OHLC?"+params.Encode()).WithContext(ctx)
	resp, err := c.http.DoWithRetry(req, nil)
	if err != nil {
		timer.EndWithError(err)
		return nil, fmt.Errorf("ohlc request for %s: %w", symbol, err)
	}

	var body ohlcResponse
	if err := resp.ParseJSON(&body); err != nil {
		timer.EndWithError(err)
		return nil, err
	}
	if len(body.Error) > 0 {
		err := fmt.Errorf("kraken api error: %s", strings.Join(body.Error, ", "))
		timer.EndWithError(err)
		return nil, err
	}

	// The result holds the candle array under a venue-specific pair key
	// next to a "last" cursor timestamp.
	var rows [][]any
	for key, raw := range body.Result {
		if key == "last" {
			continue
		}
		if err := json.Unmarshal(raw, &rows); err != nil {
			timer.EndWithError(err)
			return nil, fmt.Errorf("unexpected ohlc payload under %q: %w", key, err)
		}
		break
	}
	if len(rows) == 0 {
		err := fmt.Errorf("no ohlc data returned for %s", symbol)
		timer.EndWithError(err)
		return nil, err
	}

	candles := make([]types.Candle, 0, len(rows))
	for _, row := range rows {
		cd, err := parseCandle(row)
		if err != nil {
			timer.EndWithError(err)
			return nil, fmt.Errorf("ohlc row for %s: %w", symbol, err)
		}
		candles = append(candles, cd)
	}

	timer.End("candles", len(candles))
	return candles, nil
}

// parseCandle converts one [time, open, high, low, close, vwap, volume, count]
// row. Kraken sends the timestamp and trade count as numbers and everything
// else as decimal strings.
func parseCandle(row []any) (types.Candle, error) {
	if len(row) < 8 {
		return types.Candle{}, fmt.Errorf("short candle row: %d fields", len(row))
	}
	vals := make([]float64, 8)
	for i := 0; i < 8; i++ {
		v, err := numField(row[i])
		if err != nil {
			return types.Candle{}, fmt.Errorf("field %d: %w", i, err)
		}
		vals[i] = v
	}
	return types.Candle{
		Ts:    int64(vals[0]),
		Open:  vals[1],
		High:  vals[2],
		Low:   vals[3],
		Close: vals[4],
		VWAP:  vals[5],
		Vol:   vals[6],
		Count: int(vals[7]),
	}, nil
}

func numField(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case string:
		f, err := strconv.ParseFloat(x, 64)
		if err != nil {
			return 0, fmt.Errorf("parse %q: %w", x, err)
		}
		return f, nil
	case json.Number:
		return x.Float64()
	default:
		return 0, fmt.Errorf("unexpected field type %T", v)
	}
}

// Recent returns the trailing n candles, or all of them when fewer exist.
func Recent(candles []types.Candle, n int) []types.Candle {
	if len(candles) <= n {
		return candles
	}
	return candles[len(candles)-n:]
}

// RenderRecent formats the trailing n candles as the text block handed to
// the model: headline stats followed by a fixed-width table, newest last.
func RenderRecent(symbol string, intervalMin int, candles []types.Candle, n int) string {
	if len(candles) == 0 {
		return fmt.Sprintf("No OHLC data returned for %s", symbol)
	}

	total := len(candles)
	recent := Recent(candles, n)

	firstClose := recent[0].Close
	lastClose := recent[len(recent)-1].Close
	periodHigh := recent[0].High
	periodLow := recent[0].Low
	totalVolume := 0.0
	for _, c := range recent {
		if c.High > periodHigh {
			periodHigh = c.High
		}
		if c.Low < periodLow {
			periodLow = c.Low
		}
		totalVolume += c.Vol
	}
	change := lastClose - firstClose
	changePct := 0.0
	if firstClose != 0 {
		changePct = change / firstClose * 100
	}

	var b strings.Builder
	fmt.Fprintf(&b, "OHLC for %s (interval=%dmin, %d candles available)\n", symbol, intervalMin, total)
	fmt.Fprintf(&b, "Latest close: %s  |  Period high: %s  |  Period low: %s\n",
		fmtNum(lastClose), fmtNum(periodHigh), fmtNum(periodLow))
	fmt.Fprintf(&b, "%d-candle change: %+.2f (%+.2f%%)  |  Total volume: %.2f\n\n",
		len(recent), change, changePct, totalVolume)
	fmt.Fprintf(&b, "Recent %d candles (newest last):\n", len(recent))
	fmt.Fprintf(&b, "%-20s | %10s | %10s | %10s | %10s | %10s\n",
		"Time", "Open", "High", "Low", "Close", "Volume")
	b.WriteString(strings.Repeat("-", 85))
	for _, c := range recent {
		ts := time.Unix(c.Ts, 0).UTC().Format("2006-01-02 15:04")
		fmt.Fprintf(&b, "\n%-20s | %10.1f | %10.1f | %10.1f | %10.1f | %10.2f",
			ts, c.Open, c.High, c.Low, c.Close, c.Vol)
	}
	return b.String()
}

func fmtNum(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
