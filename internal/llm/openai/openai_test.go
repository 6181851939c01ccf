package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"multi-agent-trader/internal/store"
	"multi-agent-trader/internal/types"
)

func testConfig(endpoint string) *store.Config {
	cfg := &store.Config{}
	cfg.LLM.Provider = "OPENAI"
	cfg.LLM.Model = "gpt-4o-mini"
	cfg.LLM.Endpoint = endpoint
	cfg.LLM.MaxTokens = 256
	return cfg
}

func TestRespond(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "test-key")

	var gotAuth string
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []any{
				map[string]any{"message": map[string]any{"content": "  looks like a dip worth watching  "}},
			},
			"usage": map[string]any{"prompt_tokens": 42, "completion_tokens": 7},
		})
	}))
	defer server.Close()

	r := New(testConfig(server.URL))
	reply, err := r.Respond(context.Background(), types.Prompt{
		System:  "You are the market analyst.",
		Context: "Active pairs: BTC/USD",
		Task:    "Assess the latest move.",
		History: []types.Turn{{Role: "user", Content: "earlier"}, {Role: "assistant", Content: "noted"}},
	})
	if err != nil {
		t.Fatalf("Respond failed: %v", err)
	}

	if gotAuth != "Bearer test-key" {
		t.Errorf("Expected bearer auth, got %q", gotAuth)
	}
	if reply.Output != "looks like a dip worth watching" {
		t.Errorf("Expected trimmed output, got %q", reply.Output)
	}
	if reply.Usage.Input != 42 || reply.Usage.Output != 7 {
		t.Errorf("Expected usage 42/7, got %d/%d", reply.Usage.Input, reply.Usage.Output)
	}
	if len(reply.History) != 4 {
		t.Fatalf("Expected history to grow by 2, got %d turns", len(reply.History))
	}
	if reply.History[2].Role != "user" || reply.History[2].Content != "Assess the latest move." {
		t.Errorf("Expected task as user turn, got %#v", reply.History[2])
	}
	if reply.History[3].Role != "assistant" {
		t.Errorf("Expected assistant turn last, got %#v", reply.History[3])
	}

	msgs := gotBody["messages"].([]any)
	if len(msgs) != 5 {
		t.Fatalf("Expected 5 wire messages (system, context, 2 history, task), got %d", len(msgs))
	}
	first := msgs[0].(map[string]any)
	if first["role"] != "system" {
		t.Errorf("Expected system message first, got %v", first)
	}
	last := msgs[4].(map[string]any)
	if last["role"] != "user" || last["content"] != "Assess the latest move." {
		t.Errorf("Expected task last, got %v", last)
	}
}

func TestRespondMissingKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	r := New(testConfig("http://unused"))
	_, err := r.Respond(context.Background(), types.Prompt{Task: "hi"})
	if err == nil || !strings.Contains(err.Error(), "OPENAI_API_KEY") {
		t.Errorf("Expected missing key error, got %v", err)
	}
}

func TestRespondHTTPError(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "test-key")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer server.Close()

	r := New(testConfig(server.URL))
	_, err := r.Respond(context.Background(), types.Prompt{Task: "hi"})
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Errorf("Expected http 429 error, got %v", err)
	}
}

func TestRespondStream(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "test-key")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if body["stream"] != true {
			t.Error("Expected stream:true in request body")
		}

		w.Header().Set("Content-Type", "text/event-stream")
		chunks := []string{
			`{"choices":[{"delta":{"content":"BTC "}}]}`,
			`{"choices":[{"delta":{"content":"is "}}]}`,
			`{"choices":[{"delta":{"content":"ranging"}}]}`,
			`{"choices":[],"usage":{"prompt_tokens":30,"completion_tokens":3}}`,
		}
		for _, c := range chunks {
			fmt.Fprintf(w, "data: %s\n\n", c)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	r := New(testConfig(server.URL))

	var deltas []string
	reply, err := r.RespondStream(context.Background(), types.Prompt{Task: "anything moving?"}, func(d string) {
		deltas = append(deltas, d)
	})
	if err != nil {
		t.Fatalf("RespondStream failed: %v", err)
	}

	if reply.Output != "BTC is ranging" {
		t.Errorf("Expected accumulated output, got %q", reply.Output)
	}
	if len(deltas) != 3 {
		t.Fatalf("Expected 3 deltas, got %d: %v", len(deltas), deltas)
	}
	if deltas[0] != "BTC " || deltas[2] != "ranging" {
		t.Errorf("Unexpected delta sequence: %v", deltas)
	}
	if reply.Usage.Input != 30 || reply.Usage.Output != 3 {
		t.Errorf("Expected usage 30/3, got %d/%d", reply.Usage.Input, reply.Usage.Output)
	}
	if len(reply.History) != 2 {
		t.Errorf("Expected 2 history turns, got %d", len(reply.History))
	}
}

func TestRespondStreamSkipsNoise(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "test-key")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, ": keepalive comment\n\n")
		fmt.Fprint(w, "data: {not valid json\n\n")
		fmt.Fprint(w, `data: {"choices":[{"delta":{"content":"ok"}}]}`+"\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	r := New(testConfig(server.URL))
	reply, err := r.RespondStream(context.Background(), types.Prompt{Task: "x"}, nil)
	if err != nil {
		t.Fatalf("RespondStream failed: %v", err)
	}
	if reply.Output != "ok" {
		t.Errorf("Expected noise to be skipped, got %q", reply.Output)
	}
}
