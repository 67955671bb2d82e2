package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		paymentSessionsTotal,
		gatewayLatency,
		ordersTotal,
		ordersRevenueTotal,
	)
}

var (
	paymentSessionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_payment_sessions_total",
			Help: "Gateway session creation attempts by result.",
		},
		[]string{"result"}, // ok|invalid|config|gateway|rate_limited
	)

	gatewayLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "billing_gateway_request_seconds",
			Help:    "Latency of calls to the payment gateway.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"op", "success"},
	)

	ordersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_orders_total",
			Help: "Order transitions by kind and resulting state.",
		},
		[]string{"kind", "state"}, // state: created|active|failed
	)

	ordersRevenueTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_orders_revenue_minor_total",
			Help: "Paid order value in minor currency units.",
		},
		[]string{"currency"},
	)
)

func IncPaymentSession(result string) {
	paymentSessionsTotal.WithLabelValues(norm(result)).Inc()
}

func ObserveGateway(op string, d time.Duration, success bool) {
	s := "false"
	if success {
		s = "true"
	}
	gatewayLatency.WithLabelValues(norm(op), s).Observe(d.Seconds())
}

func IncOrder(kind, state string) {
	ordersTotal.WithLabelValues(norm(kind), norm(state)).Inc()
}

func AddRevenue(currency string, minor int64) {
	ordersRevenueTotal.WithLabelValues(norm(currency)).Add(float64(minor))
}
