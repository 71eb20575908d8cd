// Package metrics exposes the Prometheus gauges and counters the scheduler
// and watchdog update (SPEC_FULL.md §4.F "Metrics hook"), scraped by the
// admin HTTP surface's /metrics endpoint (§4.J). EdgeQueueDepth is
// registered but not set by any caller.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every gauge/counter this process registers.
type Metrics struct {
	ProcessesRunning *prometheus.GaugeVec
	ProcessHealth    *prometheus.GaugeVec
	EdgeQueueDepth   *prometheus.GaugeVec
	NetworkStarts    prometheus.Counter
	NetworkStops     prometheus.Counter
}

// New creates and registers the metric set against the default registry.
func New() *Metrics {
	return &Metrics{
		ProcessesRunning: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "flowd_processes_running",
				Help: "Number of FBP processes currently running, by graph name.",
			},
			[]string{"graph"},
		),
		ProcessHealth: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "flowd_process_health",
				Help: "Watchdog classification per process: 1=ok, 0.5=slow, 0=exited.",
			},
			[]string{"graph", "process"},
		),
		EdgeQueueDepth: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "flowd_edge_queue_depth",
				Help: "Approximate buffered packet count on a graph-boundary edge.",
			},
			[]string{"graph", "port"},
		),
		NetworkStarts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "flowd_network_starts_total",
			Help: "Total number of successful network starts.",
		}),
		NetworkStops: promauto.NewCounter(prometheus.CounterOpts{
			Name: "flowd_network_stops_total",
			Help: "Total number of network stops, graceful or watchdog-driven.",
		}),
	}
}
