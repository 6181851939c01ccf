// Package orchestrator assembles one trading session: shared state, the
// role bus, the inbound dispatcher and every role task, supervised to first
// completion. The first task to finish decides the session outcome; the
// shutdown flag flips before sibling cancellation so draining loops always
// observe it.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"multi-agent-trader/internal/bus"
	"multi-agent-trader/internal/dispatch"
	"multi-agent-trader/internal/interfaces"
	"multi-agent-trader/internal/kraken"
	"multi-agent-trader/internal/logger"
	"multi-agent-trader/internal/metrics"
	"multi-agent-trader/internal/news"
	"multi-agent-trader/internal/roles"
	"multi-agent-trader/internal/state"
	"multi-agent-trader/internal/store"
	"multi-agent-trader/internal/supervisor"
)

// Orchestrator owns everything with session lifetime. Construct with New,
// run once with Run.
type Orchestrator struct {
	cfg  *store.Config
	st   *state.State
	bus  *bus.Bus
	sink interfaces.Sink
	rsp  interfaces.Responder
	in   <-chan map[string]any
	news *news.Service
}

func New(cfg *store.Config, sink interfaces.Sink, rsp interfaces.Responder, in <-chan map[string]any) *Orchestrator {
	o := &Orchestrator{
		cfg:  cfg,
		st:   state.New(),
		bus:  bus.New(bus.Roles()...),
		sink: sink,
		rsp:  rsp,
		in:   in,
	}
	if cfg.News.Enabled {
		o.news = news.NewService(news.DefaultServiceConfig())
	}
	return o
}

// State exposes the session state record.
func (o *Orchestrator) State() *state.State { return o.st }

// Run announces readiness, launches the task set, and blocks until the
// session ends. A nil return means orderly shutdown: the dispatcher saw a
// shutdown event or end of input, or the outer context was cancelled. Any
// other first error is reported on the user panel and returned.
func (o *Orchestrator) Run(ctx context.Context) error {
	// The UI waits for ready before it replays buffered input, so this
	// must precede task launch.
	o.sink.Ready()
	logger.Info(ctx, "Session starting", "mode", o.cfg.Mode, "provider", o.cfg.LLM.Provider)

	if addr := o.cfg.Metrics.Addr; addr != "" {
		srv := metrics.Serve(addr)
		defer srv.Close()
		logger.Info(ctx, "Metrics listening", "addr", addr)
	}

	gate := dispatch.NewPriceGate(o.st, o.cfg.Market.TickerThreshold)
	dsp := dispatch.New(o.st, o.bus, o.sink, gate, o.in)

	deps := &roles.Deps{State: o.st, Bus: o.bus, Sink: o.sink, Cfg: o.cfg, Responder: o.rsp}
	risk := roles.NewRisk(deps)
	longterm := roles.NewLongterm(deps, kraken.NewClient(o.cfg))

	tasks := []supervisor.Task{
		{Name: "dispatcher", Run: dsp.Run},
		roleTask(deps, roles.NewUser(deps)),
		roleTask(deps, roles.NewMarket(deps)),
		roleTask(deps, risk),
		roleTask(deps, roles.NewExecution(deps)),
		{Name: "risk-monitor", Run: risk.Monitor().Run},
		{Name: "longterm-monitor", Run: longterm.Monitor().Run},
	}
	if o.news != nil {
		tasks = append(tasks, supervisor.Task{Name: "news-digest", Run: o.digestLoop})
	}

	first := supervisor.Supervise(ctx, tasks, supervisor.WithBeforeCancel(func(supervisor.Result) {
		o.st.BeginShutdown()
	}))

	switch {
	case first.Err == nil:
		logger.Info(ctx, "Session ended", "task", first.Name)
		return nil
	case errors.Is(first.Err, context.Canceled):
		logger.Info(ctx, "Session cancelled", "task", first.Name)
		return nil
	default:
		o.sink.Output(0, fmt.Sprintf("[error] Task %s failed: %v", first.Name, first.Err))
		o.sink.Error(first.Err.Error())
		logger.ErrorWithErr(ctx, "Task failed", first.Err, "task", first.Name)
		return first.Err
	}
}

func roleTask(d *roles.Deps, h roles.Handler) supervisor.Task {
	return supervisor.Task{
		Name: string(h.Role()),
		Run:  func(ctx context.Context) error { return roles.Loop(ctx, d, h) },
	}
}

// digestLoop periodically posts a headline digest for each active pair to
// the market role. Pairs with no coverage post nothing.
func (o *Orchestrator) digestLoop(ctx context.Context) error {
	ticker := time.NewTicker(time.Duration(o.cfg.News.IntervalMinutes) * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		if o.st.ShuttingDown() {
			return nil
		}
		for _, pair := range o.st.ActivePairs() {
			digest, err := o.news.GetDigest(ctx, pair)
			if err != nil {
				logger.ErrorWithErr(ctx, "News digest failed", err, "symbol", pair)
				continue
			}
			if digest.HeadlineCount == 0 {
				continue
			}
			if err := o.bus.Send(bus.RoleMarket, bus.UserRequest{Content: digest.Render()}); err != nil {
				logger.Error(ctx, "Bus send failed", "role", string(bus.RoleMarket), "error", err)
			}
		}
	}
}
