package events

import "time"

const (
	TypeSessionBooked       = "session.booked"
	TypeSessionCancelled    = "session.cancelled"
	TypeSessionRescheduled  = "session.rescheduled"
	TypeSessionCompleted    = "session.completed"
	TypeSessionNoShow       = "session.no_show"
	TypePackageExpiringSoon = "package.expiring_soon"
)

// QueueKey is the redis list the dispatcher consumes from.
const QueueKey = "lifecycle_events"

// Event is the outbound lifecycle record. Delivery is fire-and-forget:
// at-least-once is acceptable and the core never depends on it succeeding.
type Event struct {
	Type          string    `json:"type"`
	SessionID     int       `json:"session_id,omitempty"`
	NewSessionID  int       `json:"new_session_id,omitempty"`
	PurchaseID    int       `json:"purchase_id,omitempty"`
	CustomerID    int       `json:"customer_id,omitempty"`
	TrainerID     int       `json:"trainer_id,omitempty"`
	Actor         string    `json:"actor,omitempty"`
	DaysLeft      int       `json:"days_left,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}
