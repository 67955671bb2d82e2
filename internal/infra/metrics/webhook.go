package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		webhookEventsTotal,
		confirmOutcomesTotal,
		reconcileTotal,
	)
}

var (
	// result: applied|noop|ignored|not_found|bad_signature|bad_payload|busy|error
	webhookEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_webhook_events_total",
			Help: "Gateway webhook deliveries by outcome.",
		},
		[]string{"result"},
	)

	confirmOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_confirm_outcomes_total",
			Help: "Client confirmation polls by terminal outcome.",
		},
		[]string{"outcome"},
	)

	reconcileTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_reconcile_orders_total",
			Help: "Stale orders examined by the reconciler, by result.",
		},
		[]string{"result"},
	)
)

func IncWebhook(result string) {
	webhookEventsTotal.WithLabelValues(norm(result)).Inc()
}

func IncConfirmOutcome(outcome string) {
	confirmOutcomesTotal.WithLabelValues(norm(outcome)).Inc()
}

func IncReconcile(result string) {
	reconcileTotal.WithLabelValues(norm(result)).Inc()
}
