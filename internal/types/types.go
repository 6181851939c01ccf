package types

// Turn is one prior exchange in a role's conversation with the responder.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Usage struct {
	Input  int
	Output int
}

// Prompt is a single responder invocation: the role's standing identity,
// situational context rendered from shared state, the task itself, and the
// conversation so far.
type Prompt struct {
	System  string
	Context string
	Task    string
	History []Turn
}

// Reply carries the responder output and the history extended with the new
// user and assistant turns. Callers own truncation.
type Reply struct {
	Output  string
	History []Turn
	Usage   Usage
}

type Candle struct {
	Ts                                int64
	Open, High, Low, Close, VWAP, Vol float64
	Count                             int
}

// OrderRequest is an order submission toward the external venue bridge.
type OrderRequest struct {
	Symbol, Side, OrderType, Qty string
	Price                        string
	ClientOrderID                string
}
