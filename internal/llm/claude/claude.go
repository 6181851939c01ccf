package claude

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"multi-agent-trader/internal/interfaces"
	"multi-agent-trader/internal/store"
	"multi-agent-trader/internal/trace"
	"multi-agent-trader/internal/types"
)

// Responder implements the responder contract over the Anthropic messages
// API.
type Responder struct {
	cfg      *store.Config
	endpoint string
}

var _ interfaces.Responder = (*Responder)(nil)

func New(cfg *store.Config) *Responder {
	// Default public endpoint; proxies and gateways override via config or
	// CLAUDE_API_ENDPOINT.
	endpoint := "https://api.anthropic.com/v1/messages"
	if cfg.LLM.Endpoint != "" {
		endpoint = cfg.LLM.Endpoint
	} else if ep := os.Getenv("CLAUDE_API_ENDPOINT"); ep != "" {
		endpoint = ep
	}
	return &Responder{cfg: cfg, endpoint: endpoint}
}

func (r *Responder) Respond(ctx context.Context, p types.Prompt) (types.Reply, error) {
	ctx, span := trace.StartSpan(ctx, "claude-api-call")
	defer span.End()

	apiKey := os.Getenv("CLAUDE_API_KEY")
	if apiKey == "" {
		return types.Reply{}, errors.New("CLAUDE_API_KEY missing")
	}

	system := p.System
	if p.Context != "" {
		system = strings.TrimSpace(system + "\n\n" + p.Context)
	}

	messages := make([]map[string]string, 0, len(p.History)+1)
	for _, turn := range p.History {
		messages = append(messages, map[string]string{"role": turn.Role, "content": turn.Content})
	}
	messages = append(messages, map[string]string{"role": "user", "content": p.Task})

	body := map[string]any{
		"model":       r.cfg.LLM.Model,
		"system":      system,
		"messages":    messages,
		"max_tokens":  r.cfg.LLM.MaxTokens,
		"temperature": r.cfg.LLM.Temperature,
	}
	bb, _ := json.Marshal(body)

	req, err := http.NewRequestWithContext(ctx, "POST", r.endpoint, bytes.NewReader(bb))
	if err != nil {
		return types.Reply{}, err
	}
	req.Header.Set("x-api-key", apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return types.Reply{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return types.Reply{}, fmt.Errorf("claude http %d: %s", resp.StatusCode, string(raw))
	}

	var out struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		Usage struct {
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
		} `json:"usage"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return types.Reply{}, err
	}

	var text strings.Builder
	for _, block := range out.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	output := strings.TrimSpace(text.String())
	if output == "" {
		return types.Reply{}, errors.New("empty claude response")
	}

	history := append(append([]types.Turn(nil), p.History...),
		types.Turn{Role: "user", Content: p.Task},
		types.Turn{Role: "assistant", Content: output},
	)
	return types.Reply{
		Output:  output,
		History: history,
		Usage:   types.Usage{Input: out.Usage.InputTokens, Output: out.Usage.OutputTokens},
	}, nil
}
