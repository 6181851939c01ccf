package openai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"multi-agent-trader/internal/interfaces"
	"multi-agent-trader/internal/store"
	"multi-agent-trader/internal/trace"
	"multi-agent-trader/internal/types"
)

// Responder talks to an OpenAI-compatible chat-completions endpoint. The
// endpoint is configurable so any compatible host works, not just the
// public API.
type Responder struct {
	cfg      *store.Config
	endpoint string
}

var _ interfaces.StreamResponder = (*Responder)(nil)

func New(cfg *store.Config) *Responder {
	endpoint := "https://api.openai.com/v1/chat/completions"
	if cfg.LLM.Endpoint != "" {
		endpoint = cfg.LLM.Endpoint
	}
	return &Responder{cfg: cfg, endpoint: endpoint}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (r *Responder) buildMessages(p types.Prompt) []chatMessage {
	msgs := make([]chatMessage, 0, len(p.History)+3)
	if p.System != "" {
		msgs = append(msgs, chatMessage{Role: "system", Content: p.System})
	}
	// Dynamic context rides as a second system message so it never enters
	// the durable history.
	if p.Context != "" {
		msgs = append(msgs, chatMessage{Role: "system", Content: p.Context})
	}
	for _, turn := range p.History {
		msgs = append(msgs, chatMessage{Role: turn.Role, Content: turn.Content})
	}
	msgs = append(msgs, chatMessage{Role: "user", Content: p.Task})
	return msgs
}

func (r *Responder) newRequest(ctx context.Context, body map[string]any) (*http.Request, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, errors.New("OPENAI_API_KEY missing")
	}
	bb, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, "POST", r.endpoint, bytes.NewReader(bb))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func withReply(p types.Prompt, output string, usage types.Usage) types.Reply {
	history := append(append([]types.Turn(nil), p.History...),
		types.Turn{Role: "user", Content: p.Task},
		types.Turn{Role: "assistant", Content: output},
	)
	return types.Reply{Output: output, History: history, Usage: usage}
}

func (r *Responder) Respond(ctx context.Context, p types.Prompt) (types.Reply, error) {
	ctx, span := trace.StartSpan(ctx, "openai-api-call")
	defer span.End()

	req, err := r.newRequest(ctx, map[string]any{
		"model":       r.cfg.LLM.Model,
		"messages":    r.buildMessages(p),
		"temperature": r.cfg.LLM.Temperature,
		"max_tokens":  r.cfg.LLM.MaxTokens,
	})
	if err != nil {
		return types.Reply{}, err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return types.Reply{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return types.Reply{}, fmt.Errorf("openai http %d", resp.StatusCode)
	}

	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
		} `json:"usage"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return types.Reply{}, err
	}
	if len(out.Choices) == 0 {
		return types.Reply{}, errors.New("no choices")
	}

	text := strings.TrimSpace(out.Choices[0].Message.Content)
	usage := types.Usage{Input: out.Usage.PromptTokens, Output: out.Usage.CompletionTokens}
	return withReply(p, text, usage), nil
}

// RespondStream issues the same request with SSE streaming and invokes
// onDelta for every content fragment as it arrives. The returned Reply
// carries the fully accumulated output.
func (r *Responder) RespondStream(ctx context.Context, p types.Prompt, onDelta func(string)) (types.Reply, error) {
	ctx, span := trace.StartSpan(ctx, "openai-api-stream")
	defer span.End()

	req, err := r.newRequest(ctx, map[string]any{
		"model":          r.cfg.LLM.Model,
		"messages":       r.buildMessages(p),
		"temperature":    r.cfg.LLM.Temperature,
		"max_tokens":     r.cfg.LLM.MaxTokens,
		"stream":         true,
		"stream_options": map[string]any{"include_usage": true},
	})
	if err != nil {
		return types.Reply{}, err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return types.Reply{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return types.Reply{}, fmt.Errorf("openai http %d", resp.StatusCode)
	}

	var full strings.Builder
	var usage types.Usage

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "[DONE]" {
			break
		}

		var chunk struct {
			Choices []struct {
				Delta struct {
					Content string `json:"content"`
				} `json:"delta"`
			} `json:"choices"`
			Usage *struct {
				PromptTokens     int `json:"prompt_tokens"`
				CompletionTokens int `json:"completion_tokens"`
			} `json:"usage"`
		}
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			continue
		}
		if chunk.Usage != nil {
			usage.Input = chunk.Usage.PromptTokens
			usage.Output = chunk.Usage.CompletionTokens
		}
		if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
			full.WriteString(chunk.Choices[0].Delta.Content)
			if onDelta != nil {
				onDelta(chunk.Choices[0].Delta.Content)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return types.Reply{}, err
	}

	text := strings.TrimSpace(full.String())
	return withReply(p, text, usage), nil
}
