package session

import (
	"errors"
	"time"
)

type Action string

const (
	ActionConfirm    Action = "confirm"
	ActionStart      Action = "start"
	ActionComplete   Action = "complete"
	ActionCancel     Action = "cancel"
	ActionReschedule Action = "reschedule"
	ActionNoShow     Action = "no_show"
)

var (
	ErrInvalidTransition  = errors.New("invalid state transition")
	ErrCancellationWindow = errors.New("cancellation window expired")
)

// Next returns the status a session moves to when action is applied.
// Transitions carry no side effects; refunds and row creation are the
// coordinator's job.
func Next(current Status, action Action) (Status, error) {
	switch current {
	case StatusScheduled:
		switch action {
		case ActionConfirm:
			return StatusConfirmed, nil
		case ActionCancel:
			return StatusCancelled, nil
		case ActionReschedule:
			return StatusRescheduled, nil
		case ActionNoShow:
			return StatusNoShow, nil
		}
	case StatusConfirmed:
		switch action {
		case ActionStart:
			return StatusInProgress, nil
		case ActionCancel:
			return StatusCancelled, nil
		case ActionReschedule:
			return StatusRescheduled, nil
		case ActionNoShow:
			return StatusNoShow, nil
		}
	case StatusInProgress:
		if action == ActionComplete {
			return StatusCompleted, nil
		}
	}
	return "", ErrInvalidTransition
}

// CanCancel applies the cancellation lead-time gate on top of the transition
// table. A cancel placed exactly at scheduledAt minus leadTime is still
// accepted; anything later is rejected and the credit stays untouched, since
// the transition never commits.
func CanCancel(current Status, scheduledAt, now time.Time, leadTime time.Duration) error {
	if _, err := Next(current, ActionCancel); err != nil {
		return err
	}
	if scheduledAt.Sub(now) < leadTime {
		return ErrCancellationWindow
	}
	return nil
}

// Overdue reports whether a session should be swept to no-show: it was never
// started and its start time plus the grace period has passed.
func Overdue(current Status, scheduledAt, now time.Time, grace time.Duration) bool {
	if _, err := Next(current, ActionNoShow); err != nil {
		return false
	}
	return now.After(scheduledAt.Add(grace))
}
