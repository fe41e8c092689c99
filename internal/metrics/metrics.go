// Package metrics exposes Prometheus instrumentation for the lending
// operations. Counters are registered once via promauto and written by the
// service layer.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BorrowsTotal counts borrow attempts by outcome: success,
	// already_borrowed, no_copies, not_found, conflict, error.
	BorrowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lending_borrows_total",
			Help: "Total number of borrow attempts by outcome",
		},
		[]string{"outcome"},
	)

	// ReturnsTotal counts return attempts by outcome: success,
	// no_active_loan, not_found, conflict, error.
	ReturnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lending_returns_total",
			Help: "Total number of return attempts by outcome",
		},
		[]string{"outcome"},
	)

	// TxRetriesTotal counts transactions retried after a transient
	// serialization or lock failure.
	TxRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lending_tx_retries_total",
			Help: "Total number of transaction retries after transient store conflicts",
		},
	)

	// RecommendationsTotal counts served recommendation lists by source:
	// personalized or popularity.
	RecommendationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lending_recommendations_total",
			Help: "Total number of recommendation lists served by source",
		},
		[]string{"source"},
	)
)
