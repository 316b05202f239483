package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "handshake_http_requests_total",
			Help: "HTTP requests by method, route and status code.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "handshake_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// WebhookOutcomes counts gateway notifications by how they ended
	// (applied, duplicate, failed_payment, agreement_closed, refund_required, rejected_<reason>, retry).
	WebhookOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "handshake_webhook_outcomes_total",
			Help: "Gateway notifications by outcome.",
		},
		[]string{"outcome"},
	)

	SettlementsApplied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "handshake_settlements_applied_total",
			Help: "Completed payments applied to an agreement ledger, by method.",
		},
		[]string{"method"},
	)

	RefundsRequired = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "handshake_refunds_required_total",
			Help: "Payments captured after their agreement closed, by method.",
		},
		[]string{"method"},
	)

	RevenueWriteFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "handshake_revenue_write_failures_total",
			Help: "Revenue ledger appends that failed after a settlement was applied.",
		},
	)

	NotificationsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "handshake_notifications_dropped_total",
			Help: "Notification events dropped because the dispatch queue was full or delivery failed.",
		},
	)

	NotificationStreams = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "handshake_notification_streams",
			Help: "Open websocket notification streams.",
		},
	)
)
