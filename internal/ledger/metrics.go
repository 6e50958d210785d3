package ledger

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ledgerOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wallet_ledger_operations_total",
		Help: "Ledger operations by type and outcome",
	}, []string{"operation", "outcome"})

	ledgerDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "wallet_ledger_operation_duration_seconds",
		Help:    "Ledger operation latency",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"operation"})

	ledgerDuplicates = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wallet_ledger_duplicate_replays_total",
		Help: "Idempotent replays answered from stored transactions",
	})

	ledgerDecodeFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wallet_ledger_amount_decode_failures_total",
		Help: "Stored amounts that failed authenticated decryption",
	})

	settlementRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wallet_ledger_settlement_runs_total",
		Help: "Balance aggregate recomputations by outcome",
	}, []string{"outcome"})
)
