package kraken

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"multi-agent-trader/internal/store"
	"multi-agent-trader/internal/types"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := &store.Config{}
	cfg.Kraken.BaseURL = srv.URL
	cfg.Kraken.IntervalMinutes = 60
	cfg.Kraken.TimeoutSeconds = 5
	cfg.Kraken.Candles = 24
	return NewClient(cfg)
}

const ohlcPayload = `{
	"error": [],
	"result": {
		"XXBTZUSD": [
			[1700000000, "60000.0", "60500.0", "59800.0", "60200.0", "60100.0", "12.5", 350],
			[1700003600, "60200.0", "61000.0", "60100.0", "60900.0", "60600.0", "8.25", 280]
		],
		"last": 1700003600
	}
}`

func TestOHLCParsesCandles(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/0/public/OHLC" {
			t.Errorf("Expected path /0/public/OHLC, got %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("pair"); got != "BTCUSD" {
			t.Errorf("Expected pair BTCUSD, got %s", got)
		}
		if got := r.URL.Query().Get("interval"); got != "60" {
			t.Errorf("Expected interval 60, got %s", got)
		}
		w.Write([]byte(ohlcPayload))
	})

	candles, err := client.OHLC(context.Background(), "BTC/USD")
	if err != nil {
		t.Fatalf("OHLC failed: %v", err)
	}
	if len(candles) != 2 {
		t.Fatalf("Expected 2 candles, got %d", len(candles))
	}

	first := candles[0]
	if first.Ts != 1700000000 {
		t.Errorf("Expected ts 1700000000, got %d", first.Ts)
	}
	if first.Open != 60000.0 || first.High != 60500.0 || first.Low != 59800.0 || first.Close != 60200.0 {
		t.Errorf("Unexpected OHLC values: %+v", first)
	}
	if first.VWAP != 60100.0 {
		t.Errorf("Expected vwap 60100.0, got %v", first.VWAP)
	}
	if first.Vol != 12.5 {
		t.Errorf("Expected volume 12.5, got %v", first.Vol)
	}
	if first.Count != 350 {
		t.Errorf("Expected count 350, got %d", first.Count)
	}
	if candles[1].Close != 60900.0 {
		t.Errorf("Expected second close 60900.0, got %v", candles[1].Close)
	}
}

func TestOHLCErrorArray(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error": ["EQuery:Unknown asset pair"], "result": {}}`))
	})

	_, err := client.OHLC(context.Background(), "NOPE/USD")
	if err == nil {
		t.Fatal("Expected error for error array response")
	}
	if !strings.Contains(err.Error(), "kraken api error") {
		t.Errorf("Expected kraken api error, got: %v", err)
	}
	if !strings.Contains(err.Error(), "EQuery:Unknown asset pair") {
		t.Errorf("Expected venue message in error, got: %v", err)
	}
}

func TestOHLCEmptyResult(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error": [], "result": {"last": 1700003600}}`))
	})

	_, err := client.OHLC(context.Background(), "BTC/USD")
	if err == nil {
		t.Fatal("Expected error for empty result")
	}
	if !strings.Contains(err.Error(), "no ohlc data") {
		t.Errorf("Expected no ohlc data error, got: %v", err)
	}
}

func TestRESTPair(t *testing.T) {
	cases := map[string]string{
		"BTC/USD": "BTCUSD",
		"ETH/USD": "ETHUSD",
		"BTCUSD":  "BTCUSD",
	}
	for in, want := range cases {
		if got := RESTPair(in); got != want {
			t.Errorf("RESTPair(%q): expected %q, got %q", in, want, got)
		}
	}
}

func TestRecent(t *testing.T) {
	candles := make([]types.Candle, 30)
	for i := range candles {
		candles[i] = types.Candle{Ts: int64(i)}
	}

	recent := Recent(candles, 24)
	if len(recent) != 24 {
		t.Fatalf("Expected 24 candles, got %d", len(recent))
	}
	if recent[0].Ts != 6 || recent[23].Ts != 29 {
		t.Errorf("Expected trailing window [6..29], got [%d..%d]", recent[0].Ts, recent[23].Ts)
	}

	short := Recent(candles[:10], 24)
	if len(short) != 10 {
		t.Errorf("Expected all 10 candles when fewer than window, got %d", len(short))
	}
}

func TestRenderRecent(t *testing.T) {
	candles := []types.Candle{
		{Ts: 1700000000, Open: 60000, High: 60500, Low: 59800, Close: 60200, Vol: 12.5},
		{Ts: 1700003600, Open: 60200, High: 61000, Low: 60100, Close: 60900, Vol: 8.25},
	}

	out := RenderRecent("BTC/USD", 60, candles, 24)

	if !strings.Contains(out, "OHLC for BTC/USD (interval=60min, 2 candles available)") {
		t.Errorf("Missing headline in output:\n%s", out)
	}
	if !strings.Contains(out, "Latest close: 60900") {
		t.Errorf("Missing latest close in output:\n%s", out)
	}
	if !strings.Contains(out, "Period high: 61000") || !strings.Contains(out, "Period low: 59800") {
		t.Errorf("Missing period high/low in output:\n%s", out)
	}
	if !strings.Contains(out, "2-candle change: +700.00 (+1.16%)") {
		t.Errorf("Missing change line in output:\n%s", out)
	}
	if !strings.Contains(out, "Total volume: 20.75") {
		t.Errorf("Missing total volume in output:\n%s", out)
	}
	if !strings.Contains(out, strings.Repeat("-", 85)) {
		t.Errorf("Missing separator row in output:\n%s", out)
	}
	if !strings.Contains(out, "2023-11-14 22:13") {
		t.Errorf("Expected UTC timestamp row in output:\n%s", out)
	}
}

func TestRenderRecentEmpty(t *testing.T) {
	out := RenderRecent("BTC/USD", 60, nil, 24)
	if out != "No OHLC data returned for BTC/USD" {
		t.Errorf("Unexpected empty render: %q", out)
	}
}
