package eod

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"multi-agent-trader/internal/tradelog"
)

type aggRow struct {
	Symbol      string
	BuyQty      float64
	BuyValue    float64
	SellQty     float64
	SellValue   float64
	RealizedPnL float64
}

func logDir() string {
	if v := os.Getenv("AGENT_LOG_DIR"); v != "" {
		return v
	}
	return "logs"
}
func dayTradeFile(t time.Time) string {
	d := t.UTC().Format("2006-01-02")
	return filepath.Join(logDir(), d+".txt")
}
func summaryCSVPath(t time.Time) string {
	d := t.UTC().Format("2006-01-02")
	return filepath.Join(logDir(), "eod", d+".csv")
}

// SummarizeDay aggregates the day's order log into a per-symbol CSV and
// returns its path. No orders for the day yields ("", nil). Market orders
// are logged without a price and contribute zero value to the averages.
func SummarizeDay(t time.Time) (string, error) {
	inPath := dayTradeFile(t)
	if _, err := os.Stat(inPath); err != nil {
		return "", nil
	}
	f, err := os.Open(inPath)
	if err != nil {
		return "", err
	}
	defer f.Close()
	aggs := map[string]*aggRow{}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e tradelog.Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			continue
		}
		qty, err := strconv.ParseFloat(e.Qty, 64)
		if err != nil {
			continue
		}
		price, _ := strconv.ParseFloat(e.Price, 64)
		row := aggs[e.Symbol]
		if row == nil {
			row = &aggRow{Symbol: e.Symbol}
			aggs[e.Symbol] = row
		}
		switch e.Side {
		case "buy":
			row.BuyQty += qty
			row.BuyValue += qty * price
		case "sell":
			row.SellQty += qty
			row.SellValue += qty * price
		}
	}
	if err := sc.Err(); err != nil {
		return "", err
	}
	if len(aggs) == 0 {
		return "", nil
	}
	keys := make([]string, 0, len(aggs))
	for k := range aggs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	outPath := summaryCSVPath(t)
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return "", err
	}
	out, err := os.Create(outPath)
	if err != nil {
		return "", err
	}
	defer out.Close()
	w := csv.NewWriter(out)
	defer w.Flush()
	headers := []string{"symbol", "buy_qty", "buy_avg", "sell_qty", "sell_avg", "realized_pnl", "gross_buy_value", "gross_sell_value"}
	if err := w.Write(headers); err != nil {
		return "", err
	}
	var totalBuy, totalSell, totalPnL float64
	for _, k := range keys {
		r := aggs[k]
		var buyAvg, sellAvg float64
		if r.BuyQty > 0 {
			buyAvg = r.BuyValue / r.BuyQty
		}
		if r.SellQty > 0 {
			sellAvg = r.SellValue / r.SellQty
		}
		matched := r.BuyQty
		if r.SellQty < matched {
			matched = r.SellQty
		}
		r.RealizedPnL = matched * (sellAvg - buyAvg)
		rec := []string{r.Symbol, fmtQty(r.BuyQty), fmt.Sprintf("%.4f", buyAvg), fmtQty(r.SellQty), fmt.Sprintf("%.4f", sellAvg), fmt.Sprintf("%.2f", r.RealizedPnL), fmt.Sprintf("%.2f", r.BuyValue), fmt.Sprintf("%.2f", r.SellValue)}
		if err := w.Write(rec); err != nil {
			return "", err
		}
		totalBuy += r.BuyValue
		totalSell += r.SellValue
		totalPnL += r.RealizedPnL
	}
	_ = w.Write([]string{"TOTAL", "", "", "", "", fmt.Sprintf("%.2f", totalPnL), fmt.Sprintf("%.2f", totalBuy), fmt.Sprintf("%.2f", totalSell)})
	return outPath, nil
}
func SummarizeToday() (string, error) { return SummarizeDay(time.Now().UTC()) }
func fmtQty(v float64) string         { return strconv.FormatFloat(v, 'f', -1, 64) }
