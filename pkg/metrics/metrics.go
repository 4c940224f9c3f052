// Package metrics exposes Prometheus collectors for chain activity.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	decisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zepix_decisions_total",
			Help: "Re-entry decisions taken",
		},
		[]string{"kind", "reason"},
	)

	ordersPlaced = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zepix_orders_placed_total",
			Help: "Follow-up orders placed",
		},
		[]string{"kind", "symbol"},
	)

	executionErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zepix_execution_errors_total",
			Help: "Execution client failures",
		},
		[]string{"op"},
	)

	chainsClosed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zepix_chains_closed_total",
			Help: "Chains that left the ACTIVE status",
		},
		[]string{"status", "reason"},
	)

	activeChains = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "zepix_active_chains",
			Help: "Chains currently ACTIVE",
		},
	)

	realizedProfit = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zepix_realized_profit_total",
			Help: "Realized profit and loss booked on chain orders, split by sign",
		},
		[]string{"sign"},
	)

	skippedTicks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "zepix_skipped_ticks_total",
			Help: "Chain evaluations skipped because no price was available",
		},
	)
)

func init() {
	prometheus.MustRegister(decisions, ordersPlaced, executionErrors, chainsClosed)
	prometheus.MustRegister(activeChains, realizedProfit, skippedTicks)
}

func IncDecision(kind, reason string)      { decisions.WithLabelValues(kind, reason).Inc() }
func IncOrderPlaced(kind, symbol string)   { ordersPlaced.WithLabelValues(kind, symbol).Inc() }
func IncExecutionError(op string)          { executionErrors.WithLabelValues(op).Inc() }
func IncChainClosed(status, reason string) { chainsClosed.WithLabelValues(status, reason).Inc() }
func SetActiveChains(n int)                { activeChains.Set(float64(n)) }
func IncSkippedTick()                      { skippedTicks.Inc() }

// AddRealizedProfit books a closed order result. Counters only grow, so losses go to their own series.
func AddRealizedProfit(value float64) {
	if value >= 0 {
		realizedProfit.WithLabelValues("profit").Add(value)
		return
	}
	realizedProfit.WithLabelValues("loss").Add(-value)
}
