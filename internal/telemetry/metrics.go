// Prometheus metrics for the collector and trading agent.
//
// Exposed series:
//   - agent_collector_restarts_total        - collector supervisor restarts
//   - agent_cache_staleness_seconds{cache}   - age of each background cache
//   - agent_decisions_total{action}          - decisions by action
//   - agent_orders_total{kind,result}        - orders placed by kind/result
//   - agent_watchdog_restart_total{reason}   - watchdog-triggered restarts
//
// Registered with the default Prometheus registry in init(); no HTTP
// handler in this repository serves them.
package telemetry

import "github.com/prometheus/client_golang/prometheus"

var (
	CollectorRestarts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "agent_collector_restarts_total",
		Help: "Total collector supervisor restarts.",
	})

	CacheStaleness = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "agent_cache_staleness_seconds",
		Help: "Age in seconds of the most recent successful refresh for each background cache.",
	}, []string{"cache"})

	Decisions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "agent_decisions_total",
		Help: "Decisions emitted by the streaming decision engine, by action.",
	}, []string{"action"})

	Orders = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "agent_orders_total",
		Help: "Orders placed by the orchestrator, by kind and result.",
	}, []string{"kind", "result"})

	WatchdogRestarts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "agent_watchdog_restart_total",
		Help: "Watchdog-triggered collector restarts, by reason.",
	}, []string{"reason"})
)

func init() {
	prometheus.MustRegister(CollectorRestarts, CacheStaleness, Decisions, Orders, WatchdogRestarts)
}
