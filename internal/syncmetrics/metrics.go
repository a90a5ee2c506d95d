package syncmetrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SyncRunsTotal counts batch reconciliation runs by outcome.
	SyncRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "classpace",
		Subsystem: "sync",
		Name:      "runs_total",
		Help:      "Total batch reconciliation runs by outcome.",
	}, []string{"outcome"})

	// PrincipalsTotal counts principals handled during batch runs by result.
	PrincipalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "classpace",
		Subsystem: "sync",
		Name:      "principals_total",
		Help:      "Principals handled during batch reconciliation by result.",
	}, []string{"result"})

	// SyncDuration tracks batch run wall-clock time.
	SyncDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "classpace",
		Subsystem: "sync",
		Name:      "run_duration_seconds",
		Help:      "Batch reconciliation run duration in seconds.",
		Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
	})

	// EntitlementRecords reports the current entitlement row count.
	EntitlementRecords = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "classpace",
		Subsystem: "sync",
		Name:      "entitlement_records",
		Help:      "Number of rows in the entitlement store.",
	})

	// SelfServiceTotal counts resume/cancel requests by action and outcome.
	SelfServiceTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "classpace",
		Subsystem: "sync",
		Name:      "self_service_total",
		Help:      "Subscription resume/cancel requests by action and outcome.",
	}, []string{"action", "outcome"})

	// WebhookRequestsTotal counts Stripe webhook requests by event type and status.
	WebhookRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "classpace",
		Subsystem: "sync",
		Name:      "webhook_requests_total",
		Help:      "Total Stripe webhook requests by event type and HTTP status.",
	}, []string{"event_type", "status"})

	// WebhookDuration tracks Stripe webhook processing latency.
	WebhookDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "classpace",
		Subsystem: "sync",
		Name:      "webhook_duration_seconds",
		Help:      "Stripe webhook processing duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"event_type"})
)
