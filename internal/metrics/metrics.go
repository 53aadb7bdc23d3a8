// Package metrics exposes the service's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "splitledger_balance_cache_hits_total",
		Help: "Balance reads served from the cache.",
	})
	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "splitledger_balance_cache_misses_total",
		Help: "Balance reads that fell through to the store.",
	})
	CacheErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "splitledger_balance_cache_errors_total",
		Help: "Cache operations that failed and were swallowed.",
	})
	ExpensesRecorded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "splitledger_expenses_recorded_total",
		Help: "Group expenses appended to the ledger.",
	})
	SettlementsRecorded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "splitledger_settlements_recorded_total",
		Help: "Settle-up payments appended to the ledger.",
	})
	SettlementReplays = promauto.NewCounter(prometheus.CounterOpts{
		Name: "splitledger_settlement_replays_total",
		Help: "Settle-up requests answered from a stored idempotency intent.",
	})
	TxRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "splitledger_tx_retries_total",
		Help: "Serializable transaction attempts retried after a conflict.",
	})
)
