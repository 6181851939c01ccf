package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"multi-agent-trader/internal/eod"
	"multi-agent-trader/internal/logger"
	"multi-agent-trader/internal/orchestrator"
	"multi-agent-trader/internal/trace"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to YAML configuration")
	flag.Parse()

	if err := initializeSystem(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(ctx, *configPath)
	if err != nil {
		os.Exit(1)
	}

	compressOldLogs(ctx)

	if cfg.Mode == "DRY_RUN" {
		logger.Warn(ctx, "Running in DRY_RUN mode - orders will be narrated, not sent")
	}

	sink, in, closeTransport, err := initializeTransport(ctx, cfg)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to initialize transport", err)
		os.Exit(1)
	}

	rsp := initializeResponder(ctx, cfg)

	runErr := orchestrator.New(cfg, sink, rsp, in).Run(ctx)

	stop()
	closeTransport()

	if p, err := eod.SummarizeToday(); err == nil && p != "" {
		logger.Info(ctx, "EOD summary written", "path", p)
	}

	// Flush any buffered spans before deciding the exit code; os.Exit skips
	// deferred calls.
	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := trace.Shutdown(flushCtx); err != nil {
		logger.Warn(flushCtx, "Tracer shutdown failed", "error", err)
	}
	cancel()

	if runErr != nil {
		os.Exit(1)
	}
}
