package roles

import (
	"context"
	"encoding/json"
	"strings"

	"multi-agent-trader/internal/bus"
	"multi-agent-trader/internal/interfaces"
	"multi-agent-trader/internal/metrics"
	"multi-agent-trader/internal/types"
)

// respond invokes the responder and accounts for token usage: running
// totals in state, a token_usage envelope toward the UI, and counters.
func respond(ctx context.Context, d *Deps, role bus.Role, p types.Prompt) (types.Reply, error) {
	reply, err := d.Responder.Respond(ctx, p)
	if err != nil {
		metrics.ResponderCalls.WithLabelValues(string(role), "error").Inc()
		return types.Reply{}, err
	}
	metrics.ResponderCalls.WithLabelValues(string(role), "ok").Inc()
	recordUsage(d, reply.Usage)
	return reply, nil
}

// respondStreamed streams deltas onto the panel when both the config and
// the responder support it, closing the stream on success. Otherwise it
// falls back to a plain call and prints the whole reply at once.
func respondStreamed(ctx context.Context, d *Deps, role bus.Role, panel int, p types.Prompt) (types.Reply, error) {
	sr, ok := d.Responder.(interfaces.StreamResponder)
	if !ok || !d.Cfg.LLM.Stream {
		reply, err := respond(ctx, d, role, p)
		if err != nil {
			return types.Reply{}, err
		}
		d.Sink.Output(panel, reply.Output)
		return reply, nil
	}

	reply, err := sr.RespondStream(ctx, p, func(delta string) {
		d.Sink.StreamDelta(panel, delta)
	})
	if err != nil {
		metrics.ResponderCalls.WithLabelValues(string(role), "error").Inc()
		return types.Reply{}, err
	}
	d.Sink.StreamEnd(panel)
	metrics.ResponderCalls.WithLabelValues(string(role), "ok").Inc()
	recordUsage(d, reply.Usage)
	return reply, nil
}

func recordUsage(d *Deps, u types.Usage) {
	in, out := d.State.AddUsage(u.Input, u.Output)
	d.Sink.TokenUsage(in, out)
	metrics.ResponderTokens.WithLabelValues("input").Add(float64(u.Input))
	metrics.ResponderTokens.WithLabelValues("output").Add(float64(u.Output))
}

// flexString decodes a JSON string or a bare number into a string. Models
// asked for decimal strings still sometimes emit numbers.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	s := string(b)
	if s == "null" {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*f = flexString(v)
		return nil
	}
	*f = flexString(s)
	return nil
}

// stripFences removes a surrounding markdown code fence, if any.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// decodeAction parses a reply expected to be one compact JSON object.
// Returns false when the output is not usable as an action.
func decodeAction(output string, v any) bool {
	s := stripFences(output)
	if !strings.HasPrefix(s, "{") {
		return false
	}
	// Tolerate trailing commentary after the closing brace.
	if end := strings.LastIndex(s, "}"); end >= 0 {
		s = s[:end+1]
	}
	return json.Unmarshal([]byte(s), v) == nil
}

// directivePayloads extracts the JSON payloads of reply lines that start
// with the given keyword, e.g. `IDEA {"symbol": ...}`.
func directivePayloads(output, keyword string) []string {
	var payloads []string
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		rest, ok := strings.CutPrefix(line, keyword)
		if !ok {
			continue
		}
		rest = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(rest), ":"))
		if strings.HasPrefix(rest, "{") {
			payloads = append(payloads, rest)
		}
	}
	return payloads
}
