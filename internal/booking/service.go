package booking

import (
	"context"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"trainslot/internal/db"
	"trainslot/internal/events"
	"trainslot/internal/ledger"
	"trainslot/internal/logger"
	"trainslot/internal/metrics"
	"trainslot/internal/session"
)

var (
	ErrValidation = errors.New("invalid input")
	ErrForbidden  = errors.New("forbidden")
)

// ConflictChecker is the scheduling engine surface the coordinator needs.
type ConflictChecker interface {
	CheckConflict(ctx context.Context, q db.Querier, trainerID int, proposedStart time.Time, durationMinutes, excludeSessionID int) error
}

type Service interface {
	Book(ctx context.Context, in BookInput) (*session.Session, error)
	Cancel(ctx context.Context, in CancelInput) (*session.Session, error)
	Reschedule(ctx context.Context, in RescheduleInput) (*session.Session, error)
	Confirm(ctx context.Context, sessionID, trainerID int) (*session.Session, error)
	Start(ctx context.Context, sessionID, trainerID int) (*session.Session, error)
	Complete(ctx context.Context, in CompleteInput) (*session.SessionDetail, error)
	MarkNoShows(ctx context.Context) (int, error)
	GetSession(ctx context.Context, actorID int, role string, sessionID int) (*session.SessionDetail, error)
	ListByCustomer(ctx context.Context, customerID int) ([]session.Session, error)
	ListByTrainer(ctx context.Context, trainerID int) ([]session.Session, error)
}

type service struct {
	db           *sqlx.DB
	sessions     session.Repository
	creditLedger ledger.Repository
	conflicts    ConflictChecker
	publisher    events.Publisher

	cancelLeadTime time.Duration
	noShowGrace    time.Duration
}

func NewService(
	database *sqlx.DB,
	sessions session.Repository,
	creditLedger ledger.Repository,
	conflicts ConflictChecker,
	publisher events.Publisher,
	cancelLeadTime time.Duration,
	noShowGrace time.Duration,
) Service {
	return &service{
		db:             database,
		sessions:       sessions,
		creditLedger:   creditLedger,
		conflicts:      conflicts,
		publisher:      publisher,
		cancelLeadTime: cancelLeadTime,
		noShowGrace:    noShowGrace,
	}
}

// Book runs as two atomic units: the credit reservation against the purchase,
// then the conflict check plus session insert against the trainer's calendar,
// serialized by a per-trainer advisory lock. There is no transaction spanning
// both, so a reservation whose session never commits is compensated by a
// deferred release that runs even when the caller's context is already gone.
func (s *service) Book(ctx context.Context, in BookInput) (*session.Session, error) {
	if in.CustomerID <= 0 || in.TrainerID <= 0 || in.DurationMinutes <= 0 {
		return nil, ErrValidation
	}
	if in.CustomerID == in.TrainerID {
		return nil, ErrValidation
	}
	if in.ScheduledAt.Before(time.Now()) {
		return nil, ErrValidation
	}

	paidWith := "direct"
	if in.PackagePurchaseID != nil {
		purchase, err := s.creditLedger.GetPurchase(ctx, *in.PackagePurchaseID)
		if err != nil {
			return nil, err
		}
		if purchase.CustomerID != in.CustomerID || purchase.TrainerID != in.TrainerID {
			return nil, ErrValidation
		}
		// The whole credit pool must outlive the booked slot.
		if purchase.ExpiresAt.Before(in.ScheduledAt) {
			return nil, ledger.ErrExpired
		}
		paidWith = "package"
	}

	sessionID, err := s.sessions.NextID(ctx)
	if err != nil {
		return nil, err
	}

	reserved := false
	committed := false
	if in.PackagePurchaseID != nil {
		if _, err := s.creditLedger.Reserve(ctx, *in.PackagePurchaseID, sessionID, 1); err != nil {
			metrics.RecordBooking("rejected", paidWith)
			return nil, err
		}
		reserved = true
	}
	defer func() {
		if !reserved || committed {
			return
		}
		// Compensation must survive caller abandonment, hence the detached
		// context.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := s.creditLedger.Release(releaseCtx, sessionID); err != nil {
			logger.Error("Failed to release credit after aborted booking",
				"session_id", sessionID, "error", err)
		}
	}()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, in.TrainerID); err != nil {
		return nil, err
	}

	if err := s.conflicts.CheckConflict(ctx, tx, in.TrainerID, in.ScheduledAt, in.DurationMinutes, 0); err != nil {
		metrics.RecordBooking("conflict", paidWith)
		return nil, err
	}

	created, err := s.sessions.Insert(ctx, tx, &session.Session{
		ID:                sessionID,
		CustomerID:        in.CustomerID,
		TrainerID:         in.TrainerID,
		PackagePurchaseID: in.PackagePurchaseID,
		ScheduledAt:       in.ScheduledAt,
		DurationMinutes:   in.DurationMinutes,
		Status:            session.StatusScheduled,
		SessionType:       in.SessionType,
		Location:          in.Location,
		Notes:             in.Notes,
	})
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true

	metrics.RecordBooking("booked", paidWith)
	s.emit(ctx, events.Event{
		Type:       events.TypeSessionBooked,
		SessionID:  created.ID,
		PurchaseID: intOrZero(in.PackagePurchaseID),
		CustomerID: created.CustomerID,
		TrainerID:  created.TrainerID,
		Actor:      session.ActorCustomer,
	})

	return created, nil
}

// Cancel moves the session to cancelled and refunds its credit in one
// transaction. The status compare-and-set makes the whole operation
// effectively idempotent: a second cancel finds a terminal row and fails the
// transition, and the reservation can only be deleted once.
func (s *service) Cancel(ctx context.Context, in CancelInput) (*session.Session, error) {
	sess, err := s.sessions.GetByID(ctx, in.SessionID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(sess, in.ActorID, in.Actor); err != nil {
		return nil, err
	}

	if err := session.CanCancel(sess.Status, sess.ScheduledAt, time.Now(), s.cancelLeadTime); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if err := s.sessions.MarkCancelled(ctx, tx, sess.ID, sess.Status, in.Actor, in.Reason); err != nil {
		if errors.Is(err, session.ErrStatusChanged) {
			return nil, session.ErrInvalidTransition
		}
		return nil, err
	}

	if _, err := s.creditLedger.ReleaseIn(ctx, tx, sess.ID); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	metrics.RecordCancellation()
	s.emit(ctx, events.Event{
		Type:       events.TypeSessionCancelled,
		SessionID:  sess.ID,
		CustomerID: sess.CustomerID,
		TrainerID:  sess.TrainerID,
		Actor:      in.Actor,
	})

	return s.sessions.GetByID(ctx, sess.ID)
}

// Reschedule is one all-or-nothing commit: new row in, old row terminal,
// reservation rekeyed. The credit was spent at the original booking and is
// neither released nor re-reserved.
func (s *service) Reschedule(ctx context.Context, in RescheduleInput) (*session.Session, error) {
	if in.NewStart.Before(time.Now()) {
		return nil, ErrValidation
	}

	sess, err := s.sessions.GetByID(ctx, in.SessionID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(sess, in.ActorID, in.RequestedBy); err != nil {
		return nil, err
	}
	if _, err := session.Next(sess.Status, session.ActionReschedule); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, sess.TrainerID); err != nil {
		return nil, err
	}

	// Re-read under the lock; the status may have moved since the precheck.
	sess, err = s.sessions.GetByIDForUpdate(ctx, tx, in.SessionID)
	if err != nil {
		return nil, err
	}
	if _, err := session.Next(sess.Status, session.ActionReschedule); err != nil {
		return nil, err
	}

	if err := s.conflicts.CheckConflict(ctx, tx, sess.TrainerID, in.NewStart, sess.DurationMinutes, sess.ID); err != nil {
		return nil, err
	}

	newID, err := s.sessions.NextID(ctx)
	if err != nil {
		return nil, err
	}

	oldID := sess.ID
	created, err := s.sessions.Insert(ctx, tx, &session.Session{
		ID:                newID,
		CustomerID:        sess.CustomerID,
		TrainerID:         sess.TrainerID,
		PackagePurchaseID: sess.PackagePurchaseID,
		ScheduledAt:       in.NewStart,
		DurationMinutes:   sess.DurationMinutes,
		Status:            session.StatusScheduled,
		SessionType:       sess.SessionType,
		Location:          sess.Location,
		Notes:             sess.Notes,
		RescheduledFromID: &oldID,
	})
	if err != nil {
		return nil, err
	}

	if err := s.sessions.UpdateStatusIfCurrent(ctx, tx, sess.ID, sess.Status, session.StatusRescheduled); err != nil {
		if errors.Is(err, session.ErrStatusChanged) {
			return nil, session.ErrInvalidTransition
		}
		return nil, err
	}

	if err := s.creditLedger.TransferReservation(ctx, tx, sess.ID, created.ID); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	metrics.RecordReschedule()
	s.emit(ctx, events.Event{
		Type:         events.TypeSessionRescheduled,
		SessionID:    sess.ID,
		NewSessionID: created.ID,
		CustomerID:   sess.CustomerID,
		TrainerID:    sess.TrainerID,
		Actor:        in.RequestedBy,
	})

	return created, nil
}

func (s *service) Confirm(ctx context.Context, sessionID, trainerID int) (*session.Session, error) {
	return s.transition(ctx, sessionID, trainerID, session.ActionConfirm)
}

func (s *service) Start(ctx context.Context, sessionID, trainerID int) (*session.Session, error) {
	return s.transition(ctx, sessionID, trainerID, session.ActionStart)
}

func (s *service) transition(ctx context.Context, sessionID, trainerID int, action session.Action) (*session.Session, error) {
	sess, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.TrainerID != trainerID {
		return nil, ErrForbidden
	}

	next, err := session.Next(sess.Status, action)
	if err != nil {
		return nil, err
	}

	if err := s.sessions.UpdateStatusIfCurrent(ctx, s.db, sess.ID, sess.Status, next); err != nil {
		if errors.Is(err, session.ErrStatusChanged) {
			return nil, session.ErrInvalidTransition
		}
		return nil, err
	}

	return s.sessions.GetByID(ctx, sess.ID)
}

func (s *service) Complete(ctx context.Context, in CompleteInput) (*session.SessionDetail, error) {
	if in.ClientRating != nil && (*in.ClientRating < 1 || *in.ClientRating > 5) {
		return nil, ErrValidation
	}

	sess, err := s.sessions.GetByID(ctx, in.SessionID)
	if err != nil {
		return nil, err
	}
	if sess.TrainerID != in.TrainerID {
		return nil, ErrForbidden
	}

	next, err := session.Next(sess.Status, session.ActionComplete)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if err := s.sessions.UpdateStatusIfCurrent(ctx, tx, sess.ID, sess.Status, next); err != nil {
		if errors.Is(err, session.ErrStatusChanged) {
			return nil, session.ErrInvalidTransition
		}
		return nil, err
	}

	completion := &session.CompletionDetails{
		SessionID:    sess.ID,
		Exercises:    in.Exercises,
		TrainerNotes: in.TrainerNotes,
		ClientRating: in.ClientRating,
	}
	if err := s.sessions.InsertCompletion(ctx, tx, completion); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	s.emit(ctx, events.Event{
		Type:       events.TypeSessionCompleted,
		SessionID:  sess.ID,
		CustomerID: sess.CustomerID,
		TrainerID:  sess.TrainerID,
		Actor:      session.ActorTrainer,
	})

	updated, err := s.sessions.GetByID(ctx, sess.ID)
	if err != nil {
		return nil, err
	}
	return &session.SessionDetail{Session: *updated, Completion: completion}, nil
}

// MarkNoShows sweeps sessions that were never started past their grace
// period. The credit stays consumed; a no-show is not a refund.
func (s *service) MarkNoShows(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-s.noShowGrace)
	swept, err := s.sessions.MarkOverdueNoShows(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	for _, sess := range swept {
		s.emit(ctx, events.Event{
			Type:       events.TypeSessionNoShow,
			SessionID:  sess.ID,
			CustomerID: sess.CustomerID,
			TrainerID:  sess.TrainerID,
			Actor:      session.ActorSystem,
		})
	}

	if len(swept) > 0 {
		metrics.RecordNoShows(len(swept))
	}

	return len(swept), nil
}

func (s *service) GetSession(ctx context.Context, actorID int, role string, sessionID int) (*session.SessionDetail, error) {
	sess, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(sess, actorID, role); err != nil {
		return nil, err
	}

	detail := &session.SessionDetail{Session: *sess}
	if sess.Status == session.StatusCompleted {
		completion, err := s.sessions.GetCompletion(ctx, sessionID)
		if err == nil {
			detail.Completion = completion
		}
	}

	return detail, nil
}

func (s *service) ListByCustomer(ctx context.Context, customerID int) ([]session.Session, error) {
	return s.sessions.ListByCustomer(ctx, customerID)
}

func (s *service) ListByTrainer(ctx context.Context, trainerID int) ([]session.Session, error) {
	return s.sessions.ListByTrainer(ctx, trainerID)
}

func (s *service) authorize(sess *session.Session, actorID int, role string) error {
	switch role {
	case session.ActorCustomer:
		if sess.CustomerID != actorID {
			return ErrForbidden
		}
	case session.ActorTrainer:
		if sess.TrainerID != actorID {
			return ErrForbidden
		}
	case session.ActorSystem, "admin":
		return nil
	default:
		return ErrForbidden
	}
	return nil
}

// emit is fire-and-forget; a publish failure is logged and counted, never
// surfaced to the caller.
func (s *service) emit(ctx context.Context, evt events.Event) {
	evt.OccurredAt = time.Now()
	if err := s.publisher.Publish(ctx, evt); err != nil {
		logger.Error("Failed to publish lifecycle event", "type", evt.Type, "error", err)
	}
}

func intOrZero(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}
