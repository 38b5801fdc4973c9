package metrics

import "github.com/prometheus/client_golang/prometheus"

// FulfillmentMetrics counts outcomes of the order lifecycle.
type FulfillmentMetrics struct {
	checkouts    *prometheus.CounterVec
	transitions  *prometheus.CounterVec
	webhooks     *prometheus.CounterVec
	sweepResults *prometheus.CounterVec
}

// NewFulfillmentMetrics registers the lifecycle counters on reg. A nil
// registerer yields a no-op collector.
func NewFulfillmentMetrics(reg prometheus.Registerer) *FulfillmentMetrics {
	if reg == nil {
		return &FulfillmentMetrics{}
	}
	checkouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "checkouts_total",
		Help:      "Checkout attempts by outcome.",
	}, []string{"outcome"})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "order_transitions_total",
		Help:      "Order status transitions by target status and whether they applied.",
	}, []string{"status", "applied"})
	webhooks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "payment_events_total",
		Help:      "Payment provider events by type and outcome.",
	}, []string{"type", "outcome"})
	sweepResults := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "expired_orders_total",
		Help:      "Per-order results of the expiration sweeper.",
	}, []string{"result"})
	reg.MustRegister(checkouts, transitions, webhooks, sweepResults)
	return &FulfillmentMetrics{
		checkouts:    checkouts,
		transitions:  transitions,
		webhooks:     webhooks,
		sweepResults: sweepResults,
	}
}

// IncCheckout records a checkout outcome such as "created" or "insufficient_stock".
func (m *FulfillmentMetrics) IncCheckout(outcome string) {
	if m == nil || m.checkouts == nil {
		return
	}
	m.checkouts.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// IncTransition records an order transition attempt.
func (m *FulfillmentMetrics) IncTransition(status string, applied bool) {
	if m == nil || m.transitions == nil {
		return
	}
	label := "false"
	if applied {
		label = "true"
	}
	m.transitions.WithLabelValues(normalizeLabel(status), label).Inc()
}

// IncPaymentEvent records how a provider event was handled.
func (m *FulfillmentMetrics) IncPaymentEvent(eventType, outcome string) {
	if m == nil || m.webhooks == nil {
		return
	}
	m.webhooks.WithLabelValues(normalizeLabel(eventType), normalizeLabel(outcome)).Inc()
}

// AddSweepResults records the per-order tallies of one sweeper run.
func (m *FulfillmentMetrics) AddSweepResults(cancelled, skipped, failed int) {
	if m == nil || m.sweepResults == nil {
		return
	}
	m.sweepResults.WithLabelValues("cancelled").Add(float64(cancelled))
	m.sweepResults.WithLabelValues("skipped").Add(float64(skipped))
	m.sweepResults.WithLabelValues("failed").Add(float64(failed))
}
