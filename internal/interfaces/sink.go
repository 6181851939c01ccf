package interfaces

import "multi-agent-trader/internal/types"

// Sink is the outbound half of the operator transport. Implementations must
// be safe for concurrent use and emit each envelope atomically.
type Sink interface {
	Output(target int, line string)
	Error(message string)
	Ready()
	TokenUsage(inputTotal, outputTotal int)
	StreamDelta(target int, delta string)
	StreamEnd(target int)
	PlaceOrder(o types.OrderRequest)
}
