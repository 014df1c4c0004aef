package session

import "time"

type Status string

const (
	StatusScheduled   Status = "scheduled"
	StatusConfirmed   Status = "confirmed"
	StatusInProgress  Status = "in_progress"
	StatusCompleted   Status = "completed"
	StatusCancelled   Status = "cancelled"
	StatusRescheduled Status = "rescheduled"
	StatusNoShow      Status = "no_show"
)

// Terminal statuses freeze the row; only audit timestamps may change after.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusRescheduled, StatusNoShow:
		return true
	}
	return false
}

// Parties that may act on a session.
const (
	ActorCustomer = "customer"
	ActorTrainer  = "trainer"
	ActorSystem   = "system"
)

type Session struct {
	ID                 int        `db:"id" json:"id"`
	CustomerID         int        `db:"customer_id" json:"customer_id"`
	TrainerID          int        `db:"trainer_id" json:"trainer_id"`
	PackagePurchaseID  *int       `db:"package_purchase_id" json:"package_purchase_id,omitempty"`
	ScheduledAt        time.Time  `db:"scheduled_at" json:"scheduled_at"`
	DurationMinutes    int        `db:"duration_minutes" json:"duration_minutes"`
	Status             Status     `db:"status" json:"status"`
	SessionType        string     `db:"session_type" json:"session_type"`
	Location           *string    `db:"location" json:"location,omitempty"`
	Notes              *string    `db:"notes" json:"notes,omitempty"`
	CancelledBy        *string    `db:"cancelled_by" json:"cancelled_by,omitempty"`
	CancellationReason *string    `db:"cancellation_reason" json:"cancellation_reason,omitempty"`
	RescheduledFromID  *int       `db:"rescheduled_from_id" json:"rescheduled_from_id,omitempty"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updated_at"`
}

// CompletionDetails exists only for completed sessions, one row per session.
type CompletionDetails struct {
	SessionID    int       `db:"session_id" json:"session_id"`
	Exercises    *string   `db:"exercises" json:"exercises,omitempty"`
	TrainerNotes *string   `db:"trainer_notes" json:"trainer_notes,omitempty"`
	ClientRating *int      `db:"client_rating" json:"client_rating,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

type SessionDetail struct {
	Session
	Completion *CompletionDetails `json:"completion,omitempty"`
}
