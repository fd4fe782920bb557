package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SyncRunsTotal tracks orchestrated runs by source and status
	SyncRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rewardsync_runs_total",
			Help: "The total number of sync runs",
		},
		[]string{"source", "status"},
	)

	// SyncRunSeconds tracks the end-to-end duration of a sync run
	SyncRunSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "rewardsync_run_seconds",
		Help:    "Time taken by a full sync run in seconds",
		Buckets: prometheus.ExponentialBuckets(1, 2, 10), // 1s to ~17min
	})

	// BatchesSubmitted tracks on-chain batch submissions by status
	BatchesSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rewardsync_batches_total",
			Help: "The total number of reward batches submitted on-chain",
		},
		[]string{"status"}, // confirmed, failed
	)

	// RewardsDistributed tracks the cumulative reward amount written on-chain
	RewardsDistributed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rewardsync_rewards_distributed_total",
		Help: "The cumulative reward amount registered on-chain",
	})

	// EligibleAccounts tracks how many accounts the last fetch returned
	EligibleAccounts = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rewardsync_eligible_accounts",
		Help: "The number of eligible accounts returned by the last fetch",
	})

	// ChainHealthy tracks reachability of the RPC endpoint
	ChainHealthy = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rewardsync_chain_healthy",
		Help: "Whether the chain RPC endpoint is reachable (1 = healthy, 0 = unhealthy)",
	})

	// LedgerOperations tracks ledger reads and reconciliation writes
	LedgerOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rewardsync_ledger_operations_total",
			Help: "The total number of ledger operations",
		},
		[]string{"operation", "status"}, // fetch/reconcile, success/failed
	)
)

// RecordRun records a completed sync run with its status
func RecordRun(source, status string, seconds float64) {
	SyncRunsTotal.WithLabelValues(source, status).Inc()
	SyncRunSeconds.Observe(seconds)
}

// RecordBatch records a batch submission outcome
func RecordBatch(status string) {
	BatchesSubmitted.WithLabelValues(status).Inc()
}

// RecordRewards records the reward amount of a confirmed batch
func RecordRewards(amount uint64) {
	RewardsDistributed.Add(float64(amount))
}

// RecordLedgerOperation records a ledger operation
func RecordLedgerOperation(operation, status string) {
	LedgerOperations.WithLabelValues(operation, status).Inc()
}

// SetChainHealth sets the chain reachability gauge
func SetChainHealth(healthy bool) {
	value := 0.0
	if healthy {
		value = 1.0
	}
	ChainHealthy.Set(value)
}
