package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine's Prometheus collectors. A single instance is
// created at startup and threaded through the components that record.
type Metrics struct {
	TicksProcessed   prometheus.Counter
	TradesTotal      *prometheus.CounterVec
	ExitsByReason    *prometheus.CounterVec
	SignalsEvaluated prometheus.Counter
	CalibrationRuns  prometheus.Counter
	SymbolBalance    *prometheus.GaugeVec
	OpenPositions    prometheus.Gauge
	EventsDropped    *prometheus.CounterVec
}

// NewMetrics registers all collectors on the given registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		TicksProcessed: factory.NewCounter(prometheus.CounterOpts{
			Name: "sentinel_ticks_processed_total",
			Help: "Price ticks handled by the exit monitor.",
		}),
		TradesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sentinel_trades_total",
			Help: "Executed trades by side.",
		}, []string{"side"}),
		ExitsByReason: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sentinel_exits_total",
			Help: "Position exits by trigger reason.",
		}, []string{"reason"}),
		SignalsEvaluated: factory.NewCounter(prometheus.CounterOpts{
			Name: "sentinel_signals_evaluated_total",
			Help: "Entry evaluations performed.",
		}),
		CalibrationRuns: factory.NewCounter(prometheus.CounterOpts{
			Name: "sentinel_calibration_runs_total",
			Help: "Completed calibration passes.",
		}),
		SymbolBalance: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sentinel_symbol_balance",
			Help: "Quote balance allocated per symbol.",
		}, []string{"symbol"}),
		OpenPositions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "sentinel_open_positions",
			Help: "Number of currently open positions.",
		}),
		EventsDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sentinel_events_dropped_total",
			Help: "Bus messages lost to slow subscribers, by event.",
		}, []string{"event"}),
	}
}
