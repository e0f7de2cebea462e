package chaincode

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	invocationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bankledger_invocations_total",
		Help: "Chaincode invocations, labeled by function and outcome",
	}, []string{"function", "status"})

	invocationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bankledger_invocation_duration_seconds",
		Help:    "Latency distribution of chaincode invocations, retries included",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"function"})

	commitConflictsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bankledger_commit_conflicts_total",
		Help: "Commits rejected by optimistic version checks, before retry",
	}, []string{"function"})
)
