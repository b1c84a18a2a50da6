package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// LedgerOperations counts workflow calls by operation and outcome.
var LedgerOperations = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "goodcoins",
	Subsystem: "ledger",
	Name:      "operations_total",
	Help:      "Ledger workflow calls by operation and outcome.",
}, []string{"operation", "outcome"})

// LedgerCoins sums absolute coin movement by transaction kind.
var LedgerCoins = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "goodcoins",
	Subsystem: "ledger",
	Name:      "coins_total",
	Help:      "Absolute GoodCoins moved by transaction kind.",
}, []string{"kind"})

// LedgerRetries counts re-attempted commit units.
var LedgerRetries = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "goodcoins",
	Subsystem: "ledger",
	Name:      "commit_retries_total",
	Help:      "Commit attempts retried after a transient store error.",
}, []string{"operation"})

// LedgerLatency tracks workflow latency including retries.
var LedgerLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "goodcoins",
	Subsystem: "ledger",
	Name:      "operation_duration_seconds",
	Help:      "Ledger workflow duration in seconds.",
	Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
}, []string{"operation"})

// CatalogCache counts reward catalog cache lookups.
var CatalogCache = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "goodcoins",
	Subsystem: "catalog",
	Name:      "cache_lookups_total",
	Help:      "Reward catalog cache lookups by result.",
}, []string{"result"})

// ObserveOperation records the outcome and duration of one workflow call.
func ObserveOperation(operation, outcome string, started time.Time) {
	LedgerOperations.WithLabelValues(operation, outcome).Inc()
	LedgerLatency.WithLabelValues(operation).Observe(time.Since(started).Seconds())
}

func ObserveCoins(kind string, amount int64) {
	if amount < 0 {
		amount = -amount
	}
	LedgerCoins.WithLabelValues(kind).Add(float64(amount))
}
