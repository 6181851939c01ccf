package main

import (
	"context"
	"fmt"
	"os"

	"multi-agent-trader/internal/interfaces"
	"multi-agent-trader/internal/llm/claude"
	"multi-agent-trader/internal/llm/llmobs"
	"multi-agent-trader/internal/llm/noop"
	"multi-agent-trader/internal/llm/openai"
	"multi-agent-trader/internal/logger"
	"multi-agent-trader/internal/store"
	"multi-agent-trader/internal/trace"
	"multi-agent-trader/internal/tradelog"
	"multi-agent-trader/internal/transport"

	"github.com/joho/godotenv"
)

// initializeSystem initializes environment, logger, and tracer
func initializeSystem() error {
	// Load environment variables
	_ = godotenv.Load()

	// Initialize logger
	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	// Initialize tracer; tracing is optional, so a failure only warns
	if err := trace.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize tracer: %v\n", err)
	}

	return nil
}

// loadConfig loads and returns the configuration
func loadConfig(ctx context.Context, path string) (*store.Config, error) {
	cfg, err := store.LoadConfig(path)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to load config", err, "path", path)
		return nil, err
	}
	return cfg, nil
}

// compressOldLogs compresses old trade log files if retention is configured
func compressOldLogs(ctx context.Context) {
	if v := os.Getenv("AGENT_LOG_RETENTION_DAYS"); v != "" {
		var n int
		fmt.Sscanf(v, "%d", &n)
		if err := tradelog.CompressOlder(n); err != nil {
			logger.Warn(ctx, "Failed to compress old logs", "error", err)
		}
	}
}

// initializeTransport builds the operator-facing sink and the inbound event
// channel for the configured transport mode. The returned func closes the
// underlying connection or stream.
func initializeTransport(ctx context.Context, cfg *store.Config) (interfaces.Sink, <-chan map[string]any, func(), error) {
	switch cfg.Transport.Mode {
	case "websocket":
		conn, err := transport.DialWS(ctx, cfg.Transport.URL)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("websocket dial %s: %w", cfg.Transport.URL, err)
		}
		logger.Info(ctx, "Operator connected over websocket", "url", cfg.Transport.URL)

		bridge := transport.NewBridge(conn)
		bridge.Start(ctx)
		return transport.NewSinkTo(conn), bridge.C(), func() { _ = conn.Close() }, nil

	default:
		// stdio: stdin carries operator events, stdout carries sink envelopes
		src := transport.NewStdinSource()
		bridge := transport.NewBridge(src)
		bridge.Start(ctx)
		return transport.NewSink(os.Stdout), bridge.C(), func() { _ = src.Close() }, nil
	}
}

// initializeResponder initializes and returns the LLM responder with
// observability
func initializeResponder(ctx context.Context, cfg *store.Config) interfaces.Responder {
	var rsp interfaces.Responder

	switch cfg.LLM.Provider {
	case "OPENAI":
		rsp = openai.New(cfg)
		logger.Info(ctx, "Using OpenAI responder", "model", cfg.LLM.Model, "stream", cfg.LLM.Stream)
	case "CLAUDE":
		rsp = claude.New(cfg)
		logger.Info(ctx, "Using Claude responder", "model", cfg.LLM.Model, "stream", cfg.LLM.Stream)
	default:
		rsp = noop.New()
		logger.Warn(ctx, "No LLM provider configured - using noop responder")
	}

	// Wrap with observability middleware
	return llmobs.Wrap(rsp)
}
