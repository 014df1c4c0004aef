package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trainslot_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "trainslot_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	SessionsBookedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trainslot_sessions_booked_total",
			Help: "Total number of session booking attempts",
		},
		[]string{"outcome", "paid_with"},
	)

	SessionCancellationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "trainslot_session_cancellations_total",
			Help: "Total number of session cancellations",
		},
	)

	SessionReschedulesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "trainslot_session_reschedules_total",
			Help: "Total number of session reschedules",
		},
	)

	SessionNoShowsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "trainslot_session_no_shows_total",
			Help: "Total number of sessions swept to no-show",
		},
	)

	CreditReservationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trainslot_credit_reservations_total",
			Help: "Total number of credit ledger operations",
		},
		[]string{"action"},
	)

	LedgerRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "trainslot_ledger_retries_total",
			Help: "Total number of optimistic version check losses in the ledger",
		},
	)

	EventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trainslot_events_published_total",
			Help: "Total number of lifecycle events published",
		},
		[]string{"type", "status"},
	)

	NotificationQueueLength = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "trainslot_notification_queue_length",
			Help: "Current length of the outbound event queue",
		},
	)

	NotificationsSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trainslot_notifications_sent_total",
			Help: "Total number of notifications sent",
		},
		[]string{"type", "status"},
	)
)

func RecordHTTPRequest(method, path, status string, duration float64) {
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
}

func RecordBooking(outcome, paidWith string) {
	SessionsBookedTotal.WithLabelValues(outcome, paidWith).Inc()
}

func RecordCancellation() {
	SessionCancellationsTotal.Inc()
}

func RecordReschedule() {
	SessionReschedulesTotal.Inc()
}

func RecordNoShows(n int) {
	SessionNoShowsTotal.Add(float64(n))
}

func RecordReservation(action string) {
	CreditReservationsTotal.WithLabelValues(action).Inc()
}

func RecordLedgerRetry() {
	LedgerRetriesTotal.Inc()
}

func RecordEventPublished(eventType, status string) {
	EventsPublishedTotal.WithLabelValues(eventType, status).Inc()
}

func RecordNotification(eventType, status string) {
	NotificationsSentTotal.WithLabelValues(eventType, status).Inc()
}
