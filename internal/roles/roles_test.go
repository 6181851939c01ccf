package roles

import (
	"context"
	"strings"
	"sync"
	"testing"

	"multi-agent-trader/internal/bus"
	"multi-agent-trader/internal/interfaces"
	"multi-agent-trader/internal/state"
	"multi-agent-trader/internal/store"
	"multi-agent-trader/internal/types"
)

type panelLine struct {
	panel int
	text  string
}

// memSink records everything written to it, for assertions.
type memSink struct {
	mu         sync.Mutex
	lines      []panelLine
	deltas     []panelLine
	streamEnds []int
	orders     []types.OrderRequest
	usage      [][2]int
	errors     []string
}

func (s *memSink) Output(target int, line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = append(s.lines, panelLine{target, line})
}
func (s *memSink) Error(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors = append(s.errors, message)
}
func (s *memSink) Ready() {}
func (s *memSink) TokenUsage(inputTotal, outputTotal int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usage = append(s.usage, [2]int{inputTotal, outputTotal})
}
func (s *memSink) StreamDelta(target int, delta string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deltas = append(s.deltas, panelLine{target, delta})
}
func (s *memSink) StreamEnd(target int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streamEnds = append(s.streamEnds, target)
}
func (s *memSink) PlaceOrder(o types.OrderRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders = append(s.orders, o)
}

func (s *memSink) hasLine(panel int, substr string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.lines {
		if l.panel == panel && strings.Contains(l.text, substr) {
			return true
		}
	}
	return false
}

func (s *memSink) lineCount(panel int, substr string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, l := range s.lines {
		if l.panel == panel && strings.Contains(l.text, substr) {
			n++
		}
	}
	return n
}

func (s *memSink) placedOrders() []types.OrderRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.OrderRequest(nil), s.orders...)
}

// stubResponder returns a fixed output and appends the standard two turns.
type stubResponder struct {
	mu      sync.Mutex
	calls   int
	prompts []types.Prompt
	output  string
	usage   types.Usage
	err     error
}

func (s *stubResponder) Respond(ctx context.Context, p types.Prompt) (types.Reply, error) {
	s.mu.Lock()
	s.calls++
	s.prompts = append(s.prompts, p)
	s.mu.Unlock()
	if s.err != nil {
		return types.Reply{}, s.err
	}
	history := append(append([]types.Turn{}, p.History...),
		types.Turn{Role: "user", Content: p.Task},
		types.Turn{Role: "assistant", Content: s.output},
	)
	return types.Reply{Output: s.output, History: history, Usage: s.usage}, nil
}

func (s *stubResponder) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *stubResponder) lastPrompt() types.Prompt {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.prompts) == 0 {
		return types.Prompt{}
	}
	return s.prompts[len(s.prompts)-1]
}

// streamStub additionally delivers the output as two deltas.
type streamStub struct {
	stubResponder
}

func (s *streamStub) RespondStream(ctx context.Context, p types.Prompt, onDelta func(string)) (types.Reply, error) {
	reply, err := s.Respond(ctx, p)
	if err != nil {
		return types.Reply{}, err
	}
	half := len(reply.Output) / 2
	onDelta(reply.Output[:half])
	onDelta(reply.Output[half:])
	return reply, nil
}

var _ interfaces.StreamResponder = (*streamStub)(nil)

func newTestDeps(rsp interfaces.Responder) (*Deps, *memSink) {
	cfg := &store.Config{}
	cfg.Mode = "DRY_RUN"
	cfg.LLM.Stream = true
	cfg.Roles.HistoryLimit = 30
	cfg.Roles.RiskReviewSeconds = 30
	cfg.Roles.LongtermMinutes = 5

	sink := &memSink{}
	d := &Deps{
		State:     state.New(),
		Bus:       bus.New(bus.Roles()...),
		Sink:      sink,
		Cfg:       cfg,
		Responder: rsp,
	}
	return d, sink
}

// recvNow pops a message that must already be queued.
func recvNow(t *testing.T, b *bus.Bus, role bus.Role) bus.Message {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if b.Pending(role) == 0 {
		t.Fatalf("Expected a message queued for %s", role)
	}
	msg, err := b.Recv(ctx, role)
	if err != nil {
		t.Fatalf("Recv failed: %v", err)
	}
	return msg
}
