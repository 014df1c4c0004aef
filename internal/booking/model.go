package booking

import "time"

type BookInput struct {
	CustomerID        int
	TrainerID         int
	PackagePurchaseID *int
	ScheduledAt       time.Time
	DurationMinutes   int
	SessionType       string
	Location          *string
	Notes             *string
}

type CancelInput struct {
	SessionID int
	ActorID   int
	Actor     string
	Reason    string
}

type RescheduleInput struct {
	SessionID   int
	ActorID     int
	RequestedBy string
	NewStart    time.Time
	Reason      string
}

type CompleteInput struct {
	SessionID    int
	TrainerID    int
	Exercises    *string
	TrainerNotes *string
	ClientRating *int
}

type BookRequest struct {
	TrainerID         int     `json:"trainer_id" binding:"required"`
	PackagePurchaseID *int    `json:"package_purchase_id,omitempty"`
	ScheduledAt       string  `json:"scheduled_at" binding:"required" example:"2024-07-28T09:00:00Z"`
	DurationMinutes   int     `json:"duration_minutes" binding:"required" validate:"gte=15,lte=240"`
	SessionType       string  `json:"session_type,omitempty" example:"personal_training"`
	Location          *string `json:"location,omitempty"`
	Notes             *string `json:"notes,omitempty"`
}

type CancelRequest struct {
	Reason string `json:"reason" binding:"required"`
}

type RescheduleRequest struct {
	NewStart string `json:"new_start" binding:"required" example:"2024-07-29T09:00:00Z"`
	Reason   string `json:"reason,omitempty"`
}

type CompleteRequest struct {
	Exercises    *string `json:"exercises,omitempty"`
	TrainerNotes *string `json:"trainer_notes,omitempty"`
	ClientRating *int    `json:"client_rating,omitempty" validate:"omitempty,gte=1,lte=5" example:"5"`
}
