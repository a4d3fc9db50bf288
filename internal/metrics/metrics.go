package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	PurchasesInitiated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "purchases_initiated_total",
			Help: "Number of purchase initiations by result",
		},
		[]string{"result"},
	)

	ResolverOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_resolver_outcomes_total",
			Help: "Payment sessions classified by outcome",
		},
		[]string{"outcome"},
	)

	CommitResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enrollment_commits_total",
			Help: "Commit calls by result (completed, already_completed, failed, error)",
		},
		[]string{"result"},
	)

	CommitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "enrollment_commit_duration_seconds",
			Help:    "Time taken by the enrollment commit transaction, retries included",
			Buckets: prometheus.DefBuckets,
		},
	)

	WebhookEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_webhook_events_total",
			Help: "Provider webhook deliveries by provider and result",
		},
		[]string{"provider", "result"},
	)

	ReconcileRepairs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconcile_repairs_total",
			Help: "Changes made by the reconciliation sweep",
		},
		[]string{"kind"},
	)

	OutboxPublished = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "outbox_messages_published_total",
			Help: "Outbox messages handed to the broker",
		},
	)

	OutboxFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "outbox_publish_failures_total",
			Help: "Outbox batches that failed to publish",
		},
	)
)

func Register() {
	prometheus.MustRegister(
		PurchasesInitiated,
		ResolverOutcomes,
		CommitResults,
		CommitDuration,
		WebhookEvents,
		ReconcileRepairs,
		OutboxPublished,
		OutboxFailures,
	)
}
