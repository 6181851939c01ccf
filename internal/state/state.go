package state

import (
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Ticker is the latest quote for one symbol. Fields stay the venue's
// decimal strings; Raw keeps the full payload for prompt rendering.
type Ticker struct {
	Symbol string
	Bid    string
	Ask    string
	Last   string
	Volume string
	Raw    map[string]any
}

// Position is one open position. At most one per symbol.
type Position struct {
	Symbol        string
	Side          string
	Qty           string
	EntryPrice    string
	CurrentPrice  string
	UnrealizedPnL string
}

// Balance is one asset balance.
type Balance struct {
	Asset  string
	Amount string
}

// State is the single mutable record shared by every task. All access goes
// through accessor methods; a caller that blocked between reads must
// re-read, the record may have changed underneath it.
type State struct {
	mu           sync.RWMutex
	tickers      map[string]Ticker
	positions    map[string]Position
	balances     map[string]Balance
	riskLimits   string
	activePairs  []string
	tokenState   string
	shuttingDown bool
	lastAnalyzed map[string]float64
	usageInput   int
	usageOutput  int
}

func New() *State {
	return &State{
		tickers:      make(map[string]Ticker),
		positions:    make(map[string]Position),
		balances:     make(map[string]Balance),
		tokenState:   "unknown",
		lastAnalyzed: make(map[string]float64),
	}
}

// SetTicker stores the quote and refreshes CurrentPrice on a matching open
// position.
func (s *State) SetTicker(t Ticker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tickers[t.Symbol] = t
	if pos, ok := s.positions[t.Symbol]; ok && t.Last != "" {
		pos.CurrentPrice = t.Last
		s.positions[t.Symbol] = pos
	}
}

func (s *State) Ticker(symbol string) (Ticker, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tickers[symbol]
	return t, ok
}

// SetPosition stores p under its own Symbol, so the map key always equals
// the Symbol field.
func (s *State) SetPosition(p Position) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions[p.Symbol] = p
}

func (s *State) RemovePosition(symbol string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.positions, symbol)
}

func (s *State) Position(symbol string) (Position, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.positions[symbol]
	return p, ok
}

// Positions returns all open positions sorted by symbol.
func (s *State) Positions() []Position {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Position, 0, len(s.positions))
	for _, p := range s.positions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// UpsertFill applies one venue execution event to the position table:
// open a new position, add to a same-side one with a weighted entry price,
// reduce an opposite-side one, or close it when fully offset. Events whose
// exec_type is not a fill are ignored.
func (s *State) UpsertFill(ev map[string]any) {
	execType := strings.ToLower(str(ev["exec_type"]))
	switch execType {
	case "trade", "fill", "filled":
	default:
		return
	}

	symbol := str(ev["symbol"])
	side := strings.ToLower(str(ev["side"]))
	qty := num(ev["last_qty"])
	price := num(ev["last_price"])
	if price == 0 {
		price = num(ev["avg_price"])
	}
	if symbol == "" || side == "" || qty <= 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	pos, ok := s.positions[symbol]
	if !ok {
		s.positions[symbol] = Position{
			Symbol:       symbol,
			Side:         side,
			Qty:          formatNum(qty),
			EntryPrice:   formatNum(price),
			CurrentPrice: formatNum(price),
		}
		return
	}

	held := num(pos.Qty)
	if strings.ToLower(pos.Side) == side {
		entry := num(pos.EntryPrice)
		total := held + qty
		if total > 0 {
			pos.EntryPrice = formatNum((held*entry + qty*price) / total)
		}
		pos.Qty = formatNum(total)
		pos.CurrentPrice = formatNum(price)
		s.positions[symbol] = pos
		return
	}

	remaining := held - qty
	if remaining <= 0 {
		delete(s.positions, symbol)
		return
	}
	pos.Qty = formatNum(remaining)
	pos.CurrentPrice = formatNum(price)
	s.positions[symbol] = pos
}

func (s *State) SetBalance(b Balance) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[b.Asset] = b
}

// Balances returns all balances sorted by asset.
func (s *State) Balances() []Balance {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Balance, 0, len(s.balances))
	for _, b := range s.balances {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Asset < out[j].Asset })
	return out
}

func (s *State) SetRiskLimits(limits string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.riskLimits = limits
}

func (s *State) RiskLimits() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.riskLimits
}

// SetActivePairs replaces the watched pair list, preserving order.
func (s *State) SetActivePairs(pairs []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activePairs = append([]string(nil), pairs...)
}

func (s *State) ActivePairs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.activePairs...)
}

func (s *State) IsActivePair(symbol string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.activePairs {
		if p == symbol {
			return true
		}
	}
	return false
}

func (s *State) SetTokenState(ts string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokenState = ts
}

func (s *State) TokenState() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tokenState
}

// BeginShutdown flips the shutdown flag. The transition is monotonic; there
// is no way back.
func (s *State) BeginShutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shuttingDown = true
}

func (s *State) ShuttingDown() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.shuttingDown
}

// LastAnalyzed returns the price watermark the gate last accepted for
// symbol.
func (s *State) LastAnalyzed(symbol string) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.lastAnalyzed[symbol]
	return v, ok
}

func (s *State) SetLastAnalyzed(symbol string, price float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastAnalyzed[symbol] = price
}

// AddUsage accumulates responder token usage and returns the new running
// totals.
func (s *State) AddUsage(input, output int) (inputTotal, outputTotal int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usageInput += input
	s.usageOutput += output
	return s.usageInput, s.usageOutput
}

func (s *State) Usage() (inputTotal, outputTotal int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.usageInput, s.usageOutput
}

func str(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return formatNum(x)
	case nil:
		return ""
	default:
		return ""
	}
}

func num(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case string:
		f, err := strconv.ParseFloat(x, 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

func formatNum(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
