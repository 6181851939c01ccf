package transport

import (
	"bytes"
	"context"
	"encoding/json"

	"multi-agent-trader/internal/logger"
	"multi-agent-trader/internal/metrics"
)

// Bridge moves a blocking Source into channel space. A dedicated reader
// goroutine decodes each line into a generic map and pushes it onto the out
// channel; closing the channel is the end-of-stream sentinel the consumer
// watches for. Lines that fail to decode are counted and dropped.
type Bridge struct {
	src Source
	out chan map[string]any
}

func NewBridge(src Source) *Bridge {
	return &Bridge{
		src: src,
		out: make(chan map[string]any, 64),
	}
}

// Start launches the reader goroutine. The goroutine exits on source
// error/EOF (closing the channel) or on ctx cancellation.
func (b *Bridge) Start(ctx context.Context) {
	go func() {
		defer close(b.out)
		for {
			line, err := b.src.ReadLine()
			if err != nil {
				logger.Debug(ctx, "Input stream ended", "error", err)
				return
			}
			trimmed := bytes.TrimSpace(line)
			if len(trimmed) == 0 {
				continue
			}

			var item map[string]any
			if err := json.Unmarshal(trimmed, &item); err != nil {
				metrics.InboundLines.WithLabelValues("dropped").Inc()
				continue
			}
			metrics.InboundLines.WithLabelValues("decoded").Inc()

			select {
			case b.out <- item:
			case <-ctx.Done():
				return
			}
		}
	}()
}

// C is the receive side of the bridge. Reading a closed channel means the
// source is exhausted.
func (b *Bridge) C() <-chan map[string]any {
	return b.out
}
