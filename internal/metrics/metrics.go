// Package metrics exposes prometheus counters and gauges for the
// coordinator's core operations: pipeline calls, risk-gate decisions,
// watch-registry transitions, and store writes.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry bundles every metric the coordinator updates.
type Registry struct {
	AnalysisCalls   *prometheus.CounterVec // tier, outcome
	RiskGateDenials *prometheus.CounterVec // rule
	WatchTransitions *prometheus.CounterVec // from, to
	TradesQueued    prometheus.Counter
	TradesClosed    *prometheus.CounterVec // outcome
	StoreWriteErrors prometheus.Counter
	PendingWatches  prometheus.Gauge
	ScheduledTicks  prometheus.Counter
}

// New registers all coordinator metrics against a fresh registry.
func New() (*Registry, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	r := &Registry{
		AnalysisCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fxcoordinator",
			Name:      "analysis_calls_total",
			Help:      "LLM analysis calls by tier and outcome.",
		}, []string{"tier", "outcome"}),
		RiskGateDenials: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fxcoordinator",
			Name:      "risk_gate_denials_total",
			Help:      "Risk gate denials by rule.",
		}, []string{"rule"}),
		WatchTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fxcoordinator",
			Name:      "watch_transitions_total",
			Help:      "WatchTrade state transitions.",
		}, []string{"from", "to"}),
		TradesQueued: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "fxcoordinator",
			Name:      "trades_queued_total",
			Help:      "Trades published to the trade queue.",
		}),
		TradesClosed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fxcoordinator",
			Name:      "trades_closed_total",
			Help:      "Closed trades by outcome.",
		}, []string{"outcome"}),
		StoreWriteErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "fxcoordinator",
			Name:      "store_write_errors_total",
			Help:      "Persistence write failures.",
		}),
		PendingWatches: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "fxcoordinator",
			Name:      "pending_watches",
			Help:      "Current count of watching WatchTrades.",
		}),
		ScheduledTicks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "fxcoordinator",
			Name:      "scheduler_ticks_total",
			Help:      "Scheduler wake-ups processed.",
		}),
	}
	return r, reg
}

// Handler returns the HTTP handler serving /metrics.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
