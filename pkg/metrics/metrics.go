// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// ConnectionsActive tracks open realtime connections.
	ConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_ws_connections_active",
			Help: "Number of registered realtime connections",
		},
	)

	// UsersOnline tracks users with at least one live connection.
	UsersOnline = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_users_online",
			Help: "Number of users with at least one live connection",
		},
	)

	// MessagesAppended tracks messages persisted to the store.
	MessagesAppended = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_messages_appended_total",
			Help: "Total messages appended",
		},
		[]string{"kind"},
	)

	// Pushes tracks outbound events by name and outcome.
	Pushes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_pushes_total",
			Help: "Outbound realtime events by outcome",
		},
		[]string{"event", "outcome"},
	)

	// UnreadIncrements tracks offline-path unread bumps.
	UnreadIncrements = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_unread_increments_total",
			Help: "Unread counter increments for members without a subscribed connection",
		},
	)

	// StatusTransitions tracks accepted and rejected status updates.
	StatusTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_status_transitions_total",
			Help: "Message status updates by target status and result",
		},
		[]string{"status", "result"},
	)

	// BackfillSize tracks messages replayed per subscribe.
	BackfillSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chat_backfill_messages",
			Help:    "Messages replayed per conversation subscribe",
			Buckets: []float64{0, 1, 5, 10, 50, 100, 500, 1000, 5000},
		},
	)

	// NotificationsCreated tracks notifications by type.
	NotificationsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_notifications_created_total",
			Help: "Notifications created",
		},
		[]string{"type"},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
}

// RecordPush records the outcome of one outbound event.
func RecordPush(event string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "fault"
	}
	Pushes.WithLabelValues(event, outcome).Inc()
}
