package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the prometheus instruments for a service. Counters are
// registered on the default registry; expose them via promhttp.
type Metrics struct {
	TransactionsCreated *prometheus.CounterVec
	StatusTransitions   *prometheus.CounterVec
	SettlementOutcomes  *prometheus.CounterVec
	RequestDuration     *prometheus.HistogramVec
}

func New(serviceName string) *Metrics {
	// Metric names forbid hyphens; "transaction-service" becomes "transaction_service".
	serviceName = strings.ReplaceAll(serviceName, "-", "_")
	return &Metrics{
		TransactionsCreated: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "graphbank",
				Subsystem: serviceName,
				Name:      "transactions_created_total",
				Help:      "Transactions created, by type.",
			},
			[]string{"type"},
		),
		StatusTransitions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "graphbank",
				Subsystem: serviceName,
				Name:      "status_transitions_total",
				Help:      "Status writes applied, by resulting status.",
			},
			[]string{"status"},
		),
		SettlementOutcomes: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "graphbank",
				Subsystem: serviceName,
				Name:      "settlement_outcomes_total",
				Help:      "Settlement batch item outcomes.",
			},
			[]string{"outcome"},
		),
		RequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "graphbank",
				Subsystem: serviceName,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
	}
}
