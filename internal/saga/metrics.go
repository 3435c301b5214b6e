package saga

import (
	"vascredit/internal/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	purchasesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vas_purchases_total",
		Help: "Terminal purchase outcomes by service kind",
	}, []string{"kind", "outcome"})

	pollAttempts = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vas_poll_attempts",
		Help:    "Status polls needed to reach a terminal state",
		Buckets: prometheus.LinearBuckets(0, 1, 11),
	}, []string{"kind"})
)

func observeOutcome(kind models.ServiceKind, state models.PurchaseState, attempts int) {
	purchasesTotal.WithLabelValues(string(kind), string(state)).Inc()
	if kind.SettlesAsync() {
		pollAttempts.WithLabelValues(string(kind)).Observe(float64(attempts))
	}
}
