package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nudge_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nudge_http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	PushDeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nudge_push_deliveries_total",
			Help: "Push delivery attempts by outcome (delivered, pruned, failed).",
		},
		[]string{"outcome"},
	)

	NotificationsCreatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nudge_notifications_created_total",
			Help: "Durable in-app notifications written, by type.",
		},
		[]string{"type"},
	)

	ScheduledFiredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nudge_scheduled_fired_total",
			Help: "Scheduled notifications claimed and dispatched by the sweep, by type.",
		},
		[]string{"type"},
	)

	ReminderTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nudge_reminder_transitions_total",
			Help: "Reminder lifecycle events (created, accepted, declined, conflict).",
		},
		[]string{"event"},
	)

	RateLimitRejectionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "nudge_rate_limit_rejections_total",
			Help: "Outbound requests rejected by the per-sender quota.",
		},
	)

	SweepDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "nudge_sweep_duration_seconds",
			Help:    "Duration of due-notification sweeps.",
			Buckets: prometheus.DefBuckets,
		},
	)
)

// MustRegister registers every collector with the default registry.
func MustRegister() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDurationSeconds,
		PushDeliveriesTotal,
		NotificationsCreatedTotal,
		ScheduledFiredTotal,
		ReminderTransitionsTotal,
		RateLimitRejectionsTotal,
		SweepDurationSeconds,
	)
}
