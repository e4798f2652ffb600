package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// VotesTotal counts vote operations by target kind and outcome
	// (recorded, updated, removed, rejected).
	VotesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "qaforum_votes_total",
		Help: "Vote operations by target kind and outcome",
	}, []string{"target_kind", "outcome"})

	// AcceptanceTotal counts accept/unaccept transitions by outcome.
	AcceptanceTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "qaforum_acceptance_total",
		Help: "Answer acceptance transitions by action and outcome",
	}, []string{"action", "outcome"})

	TagUsageChanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "qaforum_tag_usage_changes_total",
		Help: "Tag usage counter adjustments by direction",
	}, []string{"direction"})

	TxRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "qaforum_tx_retries_total",
		Help: "Transactions retried after a lock conflict, by operation",
	}, []string{"operation"})

	TxConflicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "qaforum_tx_conflicts_total",
		Help: "Operations that exhausted their retry budget",
	}, []string{"operation"})

	TxDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "qaforum_tx_duration_seconds",
		Help:    "Duration of a single transaction attempt",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	}, []string{"operation"})

	// ReconcileDrift reports the number of drifted rows found by the last
	// reconciliation pass, per counter.
	ReconcileDrift = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "qaforum_reconcile_drift_rows",
		Help: "Rows whose cached counter disagreed with its source at the last check",
	}, []string{"counter"})
)
