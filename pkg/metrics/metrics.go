// Package metrics provides Prometheus metrics for the Sage service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WebhookEventsTotal tracks inbound webhook deliveries by outcome
	WebhookEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sage",
			Subsystem: "ingestion",
			Name:      "webhook_events_total",
			Help:      "Total number of webhook deliveries by outcome",
		},
		[]string{"tenant_id", "source", "outcome"},
	)

	// TransactionsIngestedTotal tracks transaction version rows written
	TransactionsIngestedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sage",
			Subsystem: "ingestion",
			Name:      "transactions_total",
			Help:      "Total number of transaction versions ingested",
		},
		[]string{"tenant_id"},
	)

	// ChatRequestsTotal tracks AI chat requests by status
	ChatRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sage",
			Subsystem: "assistant",
			Name:      "chat_requests_total",
			Help:      "Total number of AI chat requests by status",
		},
		[]string{"tenant_id", "status"},
	)

	// ChatDuration tracks end to end chat handling duration in seconds
	ChatDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sage",
			Subsystem: "assistant",
			Name:      "chat_duration_seconds",
			Help:      "Duration of AI chat handling in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"tenant_id"},
	)

	// CitationVerificationsTotal tracks citation verification outcomes
	CitationVerificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sage",
			Subsystem: "assistant",
			Name:      "citation_verifications_total",
			Help:      "Total number of citation verifications by result",
		},
		[]string{"tenant_id", "result"},
	)

	// ProposalsExecutedTotal tracks confirmed proposal executions
	ProposalsExecutedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sage",
			Subsystem: "proposals",
			Name:      "executed_total",
			Help:      "Total number of proposals executed by action type",
		},
		[]string{"tenant_id", "action_type"},
	)
)
