package ta

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

func SMA(closes []float64, n int) float64 {
	if len(closes) < n || n <= 0 {
		return math.NaN()
	}
	sum := 0.0
	for i := len(closes) - n; i < len(closes); i++ {
		sum += closes[i]
	}
	return sum / float64(n)
}
func RSI(closes []float64, period int) float64 {
	if len(closes) < period+1 || period <= 0 {
		return math.NaN()
	}
	gain, loss := 0.0, 0.0
	for i := len(closes) - period; i < len(closes); i++ {
		d := closes[i] - closes[i-1]
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	if loss == 0 {
		return 100.0
	}
	rs := (gain / float64(period)) / (loss / float64(period))
	return 100.0 - (100.0 / (1.0 + rs))
}
func StdDev(vals []float64, n int) float64 {
	if len(vals) < n || n <= 0 {
		return math.NaN()
	}
	m := SMA(vals, n)
	s := 0.0
	for i := len(vals) - n; i < len(vals); i++ {
		d := vals[i] - m
		s += d * d
	}
	return math.Sqrt(s / float64(n))
}
func Bollinger(closes []float64, n int, k float64) (mid, up, low float64) {
	mid = SMA(closes, n)
	sd := StdDev(closes, n)
	up = mid + k*sd
	low = mid - k*sd
	return
}
func ATR(highs, lows, closes []float64, period int) float64 {
	if len(highs) != len(lows) || len(lows) != len(closes) {
		return math.NaN()
	}
	n := period
	if len(closes) < n+1 {
		return math.NaN()
	}
	trs := make([]float64, 0, n)
	for i := len(closes) - n; i < len(closes); i++ {
		tr1 := highs[i] - lows[i]
		tr2 := math.Abs(highs[i] - closes[i-1])
		tr3 := math.Abs(lows[i] - closes[i-1])
		tr := math.Max(tr1, math.Max(tr2, tr3))
		trs = append(trs, tr)
	}
	sum := 0.0
	for _, v := range trs {
		sum += v
	}
	return sum / float64(n)
}

func emaSeries(vals []float64, n int) []float64 {
	if len(vals) < n || n <= 0 {
		return nil
	}
	k := 2.0 / (float64(n) + 1.0)
	out := make([]float64, 0, len(vals)-n+1)
	ema := SMA(vals[:n], n)
	out = append(out, ema)
	for i := n; i < len(vals); i++ {
		ema = vals[i]*k + ema*(1.0-k)
		out = append(out, ema)
	}
	return out
}

// EMA is SMA-seeded with k = 2/(n+1).
func EMA(closes []float64, n int) float64 {
	series := emaSeries(closes, n)
	if series == nil {
		return math.NaN()
	}
	return series[len(series)-1]
}

func MACD(closes []float64) (macd, signal, hist float64) {
	fast := emaSeries(closes, 12)
	slow := emaSeries(closes, 26)
	if fast == nil || slow == nil {
		return math.NaN(), math.NaN(), math.NaN()
	}
	offset := len(fast) - len(slow)
	line := make([]float64, len(slow))
	for i := range slow {
		line[i] = fast[i+offset] - slow[i]
	}
	macd = line[len(line)-1]
	sig := emaSeries(line, 9)
	if sig == nil {
		return macd, math.NaN(), math.NaN()
	}
	signal = sig[len(sig)-1]
	return macd, signal, macd - signal
}

func Momentum(closes []float64, n int) float64 {
	if len(closes) < n+1 || n <= 0 {
		return math.NaN()
	}
	return closes[len(closes)-1] - closes[len(closes)-1-n]
}

// KeyLevels finds support and resistance from 5-bar swing pivots, clustered
// within 0.5%, at most 3 per side ordered nearest-first relative to the
// latest close.
func KeyLevels(highs, lows, closes []float64) (support, resistance []float64) {
	if len(closes) == 0 || len(highs) != len(closes) || len(lows) != len(closes) {
		return nil, nil
	}
	cur := closes[len(closes)-1]

	var pivots []float64
	for i := 2; i < len(highs)-2; i++ {
		if highs[i] >= highs[i-1] && highs[i] >= highs[i-2] && highs[i] >= highs[i+1] && highs[i] >= highs[i+2] {
			pivots = append(pivots, highs[i])
		}
		if lows[i] <= lows[i-1] && lows[i] <= lows[i-2] && lows[i] <= lows[i+1] && lows[i] <= lows[i+2] {
			pivots = append(pivots, lows[i])
		}
	}

	for _, level := range clusterLevels(pivots, 0.005) {
		switch {
		case level < cur:
			support = append(support, level)
		case level > cur:
			resistance = append(resistance, level)
		}
	}
	sort.Slice(support, func(i, j int) bool { return cur-support[i] < cur-support[j] })
	sort.Slice(resistance, func(i, j int) bool { return resistance[i]-cur < resistance[j]-cur })
	if len(support) > 3 {
		support = support[:3]
	}
	if len(resistance) > 3 {
		resistance = resistance[:3]
	}
	return support, resistance
}

func clusterLevels(levels []float64, tol float64) []float64 {
	if len(levels) == 0 {
		return nil
	}
	sorted := append([]float64(nil), levels...)
	sort.Float64s(sorted)

	var out []float64
	start := 0
	for i := 1; i <= len(sorted); i++ {
		if i == len(sorted) || (sorted[start] > 0 && (sorted[i]-sorted[start])/sorted[start] > tol) {
			sum := 0.0
			for _, v := range sorted[start:i] {
				sum += v
			}
			out = append(out, sum/float64(i-start))
			start = i
		}
	}
	return out
}

// Summary renders the indicator block used in analysis prompts.
func Summary(highs, lows, closes, volumes []float64) string {
	var b strings.Builder
	last := math.NaN()
	if len(closes) > 0 {
		last = closes[len(closes)-1]
	}

	mid, up, low := Bollinger(closes, 20, 2.0)
	macd, signal, hist := MACD(closes)

	fmt.Fprintf(&b, "Close: %s | SMA20: %s | EMA12: %s | RSI14: %s\n",
		fmtVal(last), fmtVal(SMA(closes, 20)), fmtVal(EMA(closes, 12)), fmtVal(RSI(closes, 14)))
	fmt.Fprintf(&b, "MACD: %s signal %s hist %s\n",
		fmtVal(macd), fmtVal(signal), fmtVal(hist))
	fmt.Fprintf(&b, "Bollinger(20,2): low %s mid %s up %s\n",
		fmtVal(low), fmtVal(mid), fmtVal(up))
	fmt.Fprintf(&b, "ATR14: %s | VolSMA20: %s | Momentum10: %s\n",
		fmtVal(ATR(highs, lows, closes, 14)), fmtVal(SMA(volumes, 20)), fmtVal(Momentum(closes, 10)))

	support, resistance := KeyLevels(highs, lows, closes)
	fmt.Fprintf(&b, "Support: %s | Resistance: %s", fmtLevels(support), fmtLevels(resistance))
	return b.String()
}

func fmtVal(v float64) string {
	if math.IsNaN(v) {
		return "n/a"
	}
	return fmt.Sprintf("%.2f", v)
}

func fmtLevels(levels []float64) string {
	if len(levels) == 0 {
		return "none"
	}
	parts := make([]string, len(levels))
	for i, v := range levels {
		parts[i] = fmtVal(v)
	}
	return strings.Join(parts, ", ")
}
