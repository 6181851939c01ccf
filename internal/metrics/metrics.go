package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	InboundLines = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "agent_inbound_lines_total", Help: "Inbound transport lines by decode result"},
		[]string{"result"},
	)
	EventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "agent_events_total", Help: "Dispatched inbound events by kind"},
		[]string{"kind"},
	)
	BusSends = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "agent_bus_sends_total", Help: "Messages enqueued per role mailbox"},
		[]string{"role"},
	)
	GateChecks = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "agent_gate_checks_total", Help: "Ticker gate evaluations by outcome"},
		[]string{"outcome"},
	)
	ResponderCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "agent_responder_calls_total", Help: "Responder invocations by role and status"},
		[]string{"role", "status"},
	)
	ResponderTokens = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "agent_responder_tokens_total", Help: "Responder token usage by direction"},
		[]string{"direction"},
	)
	RoleErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "agent_role_errors_total", Help: "Handler errors isolated per role"},
		[]string{"role"},
	)
	OrdersPlaced = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "agent_orders_placed_total", Help: "Orders emitted toward the venue"},
		[]string{"symbol", "side"},
	)
)

func init() {
	prometheus.MustRegister(InboundLines, EventsTotal, BusSends, GateChecks,
		ResponderCalls, ResponderTokens, RoleErrors, OrdersPlaced)
}

func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
