package bus

// Message is the closed set of payloads exchanged between roles. The
// unexported marker keeps the set from growing outside this package, so a
// type switch over all variants stays exhaustive.
type Message interface {
	isMessage()
}

// UserRequest carries operator text toward a role.
type UserRequest struct {
	Content string
}

// TickerBroadcast is a gated market data update for an active pair.
// Prices and sizes stay decimal strings end to end.
type TickerBroadcast struct {
	Symbol string
	Bid    string
	Ask    string
	Last   string
	Volume string
}

// TradeIdea proposes a trade for risk evaluation. Probability is the
// proposing role's confidence in [0,1]. SuggestedPrice is empty for
// market orders.
type TradeIdea struct {
	Symbol         string
	Side           string
	OrderType      string
	SuggestedQty   string
	SuggestedPrice string
	Probability    float64
	Reason         string
}

// ConsultRequest asks the market role for a view on an open position.
type ConsultRequest struct {
	Symbol   string
	Question string
}

// ConsultResponse answers a ConsultRequest. Recommendation is one of
// hold, close or add.
type ConsultResponse struct {
	Symbol         string
	Analysis       string
	Recommendation string
}

// ApprovedOrder instructs execution to place an order with exactly these
// parameters.
type ApprovedOrder struct {
	Symbol        string
	Side          string
	OrderType     string
	Qty           string
	Price         string
	ClientOrderID string
	Reason        string
}

// ClosePosition instructs execution to flatten an open position at market.
type ClosePosition struct {
	Symbol string
	Side   string
	Qty    string
	Reason string
}

// OrderResult reports the venue's acceptance or rejection of an order.
type OrderResult struct {
	Symbol  string
	Side    string
	Qty     string
	Success bool
	OrderID string
	Error   string
}

// ExecutionUpdate carries raw execution report events from the venue.
type ExecutionUpdate struct {
	Events []map[string]any
}

func (UserRequest) isMessage()     {}
func (TickerBroadcast) isMessage() {}
func (TradeIdea) isMessage()       {}
func (ConsultRequest) isMessage()  {}
func (ConsultResponse) isMessage() {}
func (ApprovedOrder) isMessage()   {}
func (ClosePosition) isMessage()   {}
func (OrderResult) isMessage()     {}
func (ExecutionUpdate) isMessage() {}
