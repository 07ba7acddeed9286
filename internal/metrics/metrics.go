package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	CheckoutsTotal     *prometheus.CounterVec
	PaymentsTotal      *prometheus.CounterVec
	RefundsTotal       *prometheus.CounterVec
	WebhookEventsTotal *prometheus.CounterVec
	ReserveFailures    prometheus.Counter

	registry *prometheus.Registry
}

func New() *Metrics {
	m := &Metrics{
		CheckoutsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shop",
			Name:      "checkouts_total",
			Help:      "Checkout confirmations by outcome.",
		}, []string{"outcome"}),
		PaymentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shop",
			Name:      "payments_total",
			Help:      "Payment attempts by gateway and resulting status.",
		}, []string{"gateway", "status"}),
		RefundsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shop",
			Name:      "refunds_total",
			Help:      "Refunds by gateway and resulting status.",
		}, []string{"gateway", "status"}),
		WebhookEventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shop",
			Name:      "webhook_events_total",
			Help:      "Gateway webhook deliveries by gateway and outcome.",
		}, []string{"gateway", "outcome"}),
		ReserveFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "shop",
			Name:      "stock_reserve_failures_total",
			Help:      "Reservations rejected for insufficient stock.",
		}),
		registry: prometheus.NewRegistry(),
	}

	m.registry.MustRegister(
		m.CheckoutsTotal,
		m.PaymentsTotal,
		m.RefundsTotal,
		m.WebhookEventsTotal,
		m.ReserveFailures,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
