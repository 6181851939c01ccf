package claude

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"multi-agent-trader/internal/store"
	"multi-agent-trader/internal/types"
)

func testConfig(endpoint string) *store.Config {
	cfg := &store.Config{}
	cfg.LLM.Provider = "CLAUDE"
	cfg.LLM.Model = "claude-3-5-haiku-latest"
	cfg.LLM.Endpoint = endpoint
	cfg.LLM.MaxTokens = 256
	return cfg
}

func TestRespond(t *testing.T) {
	t.Setenv("CLAUDE_API_KEY", "test-key")

	var gotKey, gotVersion string
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("x-api-key")
		gotVersion = r.Header.Get("anthropic-version")
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(map[string]any{
			"content": []any{
				map[string]any{"type": "text", "text": "hold for "},
				map[string]any{"type": "text", "text": "now"},
			},
			"usage": map[string]any{"input_tokens": 55, "output_tokens": 4},
		})
	}))
	defer server.Close()

	r := New(testConfig(server.URL))
	reply, err := r.Respond(context.Background(), types.Prompt{
		System:  "You are the risk manager.",
		Context: "Limits: 2% per trade",
		Task:    "Evaluate this idea.",
	})
	if err != nil {
		t.Fatalf("Respond failed: %v", err)
	}

	if gotKey != "test-key" {
		t.Errorf("Expected x-api-key header, got %q", gotKey)
	}
	if gotVersion == "" {
		t.Error("Expected anthropic-version header to be set")
	}
	if reply.Output != "hold for now" {
		t.Errorf("Expected concatenated text blocks, got %q", reply.Output)
	}
	if reply.Usage.Input != 55 || reply.Usage.Output != 4 {
		t.Errorf("Expected usage 55/4, got %d/%d", reply.Usage.Input, reply.Usage.Output)
	}

	// Context folds into the top-level system field, not the messages.
	system, _ := gotBody["system"].(string)
	if !strings.Contains(system, "risk manager") || !strings.Contains(system, "2% per trade") {
		t.Errorf("Expected system + context in system field, got %q", system)
	}
	msgs := gotBody["messages"].([]any)
	if len(msgs) != 1 {
		t.Fatalf("Expected only the task message, got %d", len(msgs))
	}
}

func TestRespondMissingKey(t *testing.T) {
	t.Setenv("CLAUDE_API_KEY", "")

	r := New(testConfig("http://unused"))
	_, err := r.Respond(context.Background(), types.Prompt{Task: "hi"})
	if err == nil || !strings.Contains(err.Error(), "CLAUDE_API_KEY") {
		t.Errorf("Expected missing key error, got %v", err)
	}
}

func TestRespondHTTPError(t *testing.T) {
	t.Setenv("CLAUDE_API_KEY", "test-key")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"overloaded"}`, http.StatusServiceUnavailable)
	}))
	defer server.Close()

	r := New(testConfig(server.URL))
	_, err := r.Respond(context.Background(), types.Prompt{Task: "hi"})
	if err == nil || !strings.Contains(err.Error(), "503") {
		t.Errorf("Expected http 503 error, got %v", err)
	}
}
