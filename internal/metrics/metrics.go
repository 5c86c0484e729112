// Package metrics defines the Prometheus instrumentation for the trading
// session: order placements by outcome, poll cycle successes and fallbacks,
// and gauges for the basket and account snapshot. Metrics are registered in
// init() and served at /metrics by the HTTP server.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	ordersPlaced = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "basketd_orders_placed_total",
			Help: "Order placement attempts by side and outcome (submitted|confirmation_required|blocked|rejected)",
		},
		[]string{"side", "outcome"},
	)

	executionPasses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "basketd_execution_passes_total",
			Help: "Basket execution passes by result (completed|halted)",
		},
		[]string{"result"},
	)

	pollCycles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "basketd_poll_cycles_total",
			Help: "Polling fetches by dataset and result (ok|stale_fallback|error)",
		},
		[]string{"dataset", "result"},
	)

	basketSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "basketd_basket_orders",
			Help: "Current number of draft orders in the basket",
		},
	)

	accountValue = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "basketd_account_total_value",
			Help: "Total account value from the latest snapshot",
		},
	)

	gatewayConnected = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "basketd_gateway_connected",
			Help: "Whether the last gateway health check succeeded (1/0)",
		},
	)
)

func init() {
	prometheus.MustRegister(ordersPlaced, executionPasses, pollCycles)
	prometheus.MustRegister(basketSize, accountValue, gatewayConnected)
}

func IncOrderPlaced(side, outcome string) { ordersPlaced.WithLabelValues(side, outcome).Inc() }
func IncExecutionPass(result string)      { executionPasses.WithLabelValues(result).Inc() }
func IncPollCycle(dataset, result string) { pollCycles.WithLabelValues(dataset, result).Inc() }
func SetBasketSize(n int)                 { basketSize.Set(float64(n)) }
func SetAccountValue(v float64)           { accountValue.Set(v) }

func SetGatewayConnected(up bool) {
	if up {
		gatewayConnected.Set(1)
	} else {
		gatewayConnected.Set(0)
	}
}
