package transport

import (
	"context"
	"encoding/json"
	"io"
	"sync"

	"multi-agent-trader/internal/interfaces"
	"multi-agent-trader/internal/logger"
	"multi-agent-trader/internal/types"
)

// LineWriter emits one protocol line per call.
type LineWriter interface {
	WriteLine(line []byte) error
}

type writerLines struct {
	w io.Writer
}

func (wl writerLines) WriteLine(line []byte) error {
	_, err := wl.w.Write(append(line, '\n'))
	return err
}

// JSONSink serializes outbound envelopes, one JSON object per line. Writes
// from concurrent roles are serialized under a mutex so lines never
// interleave. Write failures are logged once and otherwise ignored; the
// source going quiet is the authoritative death signal, not a failed write.
type JSONSink struct {
	mu     sync.Mutex
	out    LineWriter
	failed bool
}

// NewSink writes newline-delimited envelopes to w (stdout in stdio mode).
func NewSink(w io.Writer) *JSONSink {
	return &JSONSink{out: writerLines{w: w}}
}

// NewSinkTo writes envelopes to an existing line writer (the websocket
// connection in websocket mode).
func NewSinkTo(lw LineWriter) *JSONSink {
	return &JSONSink{out: lw}
}

var _ interfaces.Sink = (*JSONSink)(nil)

func (s *JSONSink) emit(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		logger.Error(context.Background(), "Failed to marshal outbound envelope", "error", err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.out.WriteLine(data); err != nil {
		if !s.failed {
			logger.Error(context.Background(), "Outbound write failed", "error", err)
			s.failed = true
		}
	}
}

func (s *JSONSink) Output(target int, line string) {
	s.emit(struct {
		Type   string `json:"type"`
		Target int    `json:"target"`
		Line   string `json:"line"`
	}{"output", target, line})
}

func (s *JSONSink) Error(message string) {
	s.emit(struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	}{"error", message})
}

func (s *JSONSink) Ready() {
	s.emit(struct {
		Type string `json:"type"`
	}{"ready"})
}

func (s *JSONSink) TokenUsage(inputTotal, outputTotal int) {
	s.emit(struct {
		Type        string `json:"type"`
		InputTotal  int    `json:"input_total"`
		OutputTotal int    `json:"output_total"`
	}{"token_usage", inputTotal, outputTotal})
}

func (s *JSONSink) StreamDelta(target int, delta string) {
	s.emit(struct {
		Type   string `json:"type"`
		Target int    `json:"target"`
		Delta  string `json:"delta"`
	}{"stream_delta", target, delta})
}

func (s *JSONSink) StreamEnd(target int) {
	s.emit(struct {
		Type   string `json:"type"`
		Target int    `json:"target"`
	}{"stream_end", target})
}

func (s *JSONSink) PlaceOrder(o types.OrderRequest) {
	s.emit(struct {
		Type          string `json:"type"`
		Symbol        string `json:"symbol"`
		Side          string `json:"side"`
		OrderType     string `json:"order_type"`
		Qty           string `json:"qty"`
		Price         string `json:"price,omitempty"`
		ClientOrderID string `json:"client_order_id,omitempty"`
	}{"place_order", o.Symbol, o.Side, o.OrderType, o.Qty, o.Price, o.ClientOrderID})
}
