package schedule

import (
	"context"
	"errors"
	"time"

	"trainslot/internal/db"
	"trainslot/internal/session"
)

var ErrConflict = errors.New("proposed time conflicts with an existing session")

// SessionReader is the slice of the session repository the engine needs.
type SessionReader interface {
	ActiveInWindow(ctx context.Context, q db.Querier, trainerID int, from, to time.Time, excludeID int) ([]session.Session, error)
}

// Engine answers whether a trainer is free around a proposed start time.
// It never mutates anything.
type Engine struct {
	sessions SessionReader
	gap      time.Duration
}

// NewEngine builds an engine with the given conflict window. The gap is a
// fixed separation independent of session duration; whether it should scale
// with duration is an open product question, so it stays configurable with
// the historical one-hour default.
func NewEngine(sessions SessionReader, gap time.Duration) *Engine {
	return &Engine{sessions: sessions, gap: gap}
}

// CheckConflict returns ErrConflict when any of the trainer's active sessions
// starts strictly within the gap of proposedStart. excludeSessionID lets a
// reschedule ignore its own original slot; 0 excludes nothing.
//
// The querier is passed through so the check can run inside the same
// transaction (and under the same per-trainer advisory lock) as the insert
// that depends on it.
func (e *Engine) CheckConflict(ctx context.Context, q db.Querier, trainerID int, proposedStart time.Time, durationMinutes, excludeSessionID int) error {
	from := proposedStart.Add(-e.gap)
	to := proposedStart.Add(e.gap)

	existing, err := e.sessions.ActiveInWindow(ctx, q, trainerID, from, to, excludeSessionID)
	if err != nil {
		return err
	}

	for _, s := range existing {
		if conflicts(s.ScheduledAt, proposedStart, e.gap) {
			return ErrConflict
		}
	}

	return nil
}

// conflicts reports whether two start times are closer than gap. Exactly gap
// apart is allowed.
func conflicts(existingStart, proposedStart time.Time, gap time.Duration) bool {
	d := existingStart.Sub(proposedStart)
	if d < 0 {
		d = -d
	}
	return d < gap
}
