// Package observability exposes the economy's Prometheus metrics.
//
// Metrics cover:
//   - action outcomes per action and error kind
//   - currency flow per transaction kind
//   - storage transaction latency and lock wait
//   - replayed (deduplicated) requests
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Action Metrics ─────────────────────────────────────────────────────────

// Actions counts dispatched actions by outcome ("ok" or an error kind).
var Actions = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "econ",
	Subsystem: "actions",
	Name:      "total",
	Help:      "Dispatched economy actions by action and outcome.",
}, []string{"action", "outcome"})

// ReplayedRequests counts requests answered from the idempotency record.
var ReplayedRequests = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "econ",
	Subsystem: "ledger",
	Name:      "replayed_requests_total",
	Help:      "Requests whose settled result was replayed instead of re-executed.",
})

// Defects counts unexpected internal errors (invariant violations and the like).
var Defects = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "econ",
	Subsystem: "ledger",
	Name:      "defects_total",
	Help:      "Mutations aborted by an unexpected internal error.",
})

// ─── Ledger Metrics ─────────────────────────────────────────────────────────

// CurrencyFlow sums moved amounts per transaction kind.
var CurrencyFlow = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "econ",
	Subsystem: "ledger",
	Name:      "currency_flow_total",
	Help:      "Currency moved, by transaction kind.",
}, []string{"kind"})

// Conflicts counts optimistic-concurrency retries.
var Conflicts = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "econ",
	Subsystem: "ledger",
	Name:      "conflicts_total",
	Help:      "Version conflicts that forced a retry.",
})

// ─── Storage Metrics ────────────────────────────────────────────────────────

// StorageSeconds tracks storage transaction latency.
var StorageSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "econ",
	Subsystem: "storage",
	Name:      "seconds",
	Help:      "Storage transaction latency in seconds.",
	Buckets:   []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1, 5},
}, []string{"outcome"})

// LockWaitSeconds tracks time spent waiting for per-account locks.
var LockWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "econ",
	Subsystem: "ledger",
	Name:      "lock_wait_seconds",
	Help:      "Time spent acquiring per-account serialization.",
	Buckets:   []float64{.00001, .0001, .001, .01, .1, 1},
})

// ─── Helpers ────────────────────────────────────────────────────────────────

// ObserveStorage records one storage transaction.
func ObserveStorage(start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	StorageSeconds.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
}

// ObserveAction records one dispatched action.
func ObserveAction(action, outcome string) {
	if outcome == "" {
		outcome = "ok"
	}
	Actions.WithLabelValues(action, outcome).Inc()
}

// ObserveFlow adds amount to the flow counter for kind.
func ObserveFlow(kind string, amount int64) {
	if amount <= 0 {
		return
	}
	CurrencyFlow.WithLabelValues(kind).Add(float64(amount))
}
