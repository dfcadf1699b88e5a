package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ledgerOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "raidbot_ledger_operations_total",
		Help: "Ledger synchronisation operations by kind and outcome",
	}, []string{"op", "outcome"})

	ledgerLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "raidbot_ledger_operation_duration_seconds",
		Help:    "Latency of ledger synchronisation operations",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"op"})
)

// ObserveLedgerOp records the outcome and latency of a ledger operation.
func ObserveLedgerOp(op string, err error, d time.Duration) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	ledgerOps.WithLabelValues(op, outcome).Inc()
	ledgerLatency.WithLabelValues(op).Observe(d.Seconds())
}
