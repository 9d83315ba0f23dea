// Package metrics defines the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequestsTotal counts requests by method, route pattern and status code.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "matchgenius_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "matchgenius_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// WebhookEventsTotal counts processor webhook deliveries by event type and outcome.
	WebhookEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "matchgenius_stripe_webhook_events_total",
			Help: "Stripe webhook deliveries by type and outcome",
		},
		[]string{"type", "outcome"},
	)

	WebhookVerificationFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "matchgenius_stripe_webhook_verification_failures_total",
			Help: "Stripe webhook deliveries rejected by signature verification",
		},
	)

	// SubscriptionCacheLookups counts server-side subscription cache lookups by result (hit, miss, stale).
	SubscriptionCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "matchgenius_subscription_cache_lookups_total",
			Help: "Server-side subscription cache lookups",
		},
		[]string{"result"},
	)

	ArchiveQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "matchgenius_archive_queue_depth",
			Help: "Events waiting in the archive queue",
		},
	)

	ArchiveResultsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "matchgenius_archive_results_total",
			Help: "Archive worker results (stored, logged, dropped, failed)",
		},
		[]string{"result"},
	)

	JobRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "matchgenius_job_runs_total",
			Help: "Scheduled job runs by job and result",
		},
		[]string{"job", "result"},
	)

	// CircuitBreakerState is 0 closed, 1 half-open, 2 open.
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "matchgenius_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "matchgenius_circuit_breaker_requests_total",
			Help: "Requests through the circuit breaker by result",
		},
		[]string{"name", "result"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "matchgenius_circuit_breaker_state_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)
)
