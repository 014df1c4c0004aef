package session

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"trainslot/internal/db"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	// ErrStatusChanged means a compare-and-set lost to a concurrent writer.
	ErrStatusChanged = errors.New("session status changed concurrently")
)

const sessionColumns = `id, customer_id, trainer_id, package_purchase_id, scheduled_at,
		duration_minutes, status, session_type, location, notes,
		cancelled_by, cancellation_reason, rescheduled_from_id, created_at, updated_at`

type repository struct {
	db *sqlx.DB
}

func NewRepository(database *sqlx.DB) Repository {
	return &repository{db: database}
}

func (r *repository) NextID(ctx context.Context) (int, error) {
	var id int
	err := r.db.GetContext(ctx, &id, `SELECT nextval(pg_get_serial_sequence('sessions', 'id'))`)
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (r *repository) Insert(ctx context.Context, q db.Querier, s *Session) (*Session, error) {
	query := `
		INSERT INTO sessions (id, customer_id, trainer_id, package_purchase_id, scheduled_at,
			duration_minutes, status, session_type, location, notes, rescheduled_from_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING ` + sessionColumns

	var created Session
	err := sqlx.GetContext(ctx, q, &created, query,
		s.ID, s.CustomerID, s.TrainerID, s.PackagePurchaseID, s.ScheduledAt,
		s.DurationMinutes, s.Status, s.SessionType, s.Location, s.Notes, s.RescheduledFromID,
	)
	if err != nil {
		return nil, err
	}

	return &created, nil
}

func (r *repository) GetByID(ctx context.Context, id int) (*Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1`

	var s Session
	err := r.db.GetContext(ctx, &s, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}

	return &s, nil
}

func (r *repository) GetByIDForUpdate(ctx context.Context, q db.Querier, id int) (*Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1 FOR UPDATE`

	var s Session
	err := sqlx.GetContext(ctx, q, &s, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}

	return &s, nil
}

func (r *repository) UpdateStatusIfCurrent(ctx context.Context, q db.Querier, id int, current, next Status) error {
	query := `
		UPDATE sessions
		SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3
	`

	result, err := q.ExecContext(ctx, query, next, id, current)
	if err != nil {
		return err
	}

	return requireOneRow(result)
}

func (r *repository) MarkCancelled(ctx context.Context, q db.Querier, id int, current Status, cancelledBy, reason string) error {
	query := `
		UPDATE sessions
		SET status = $1, cancelled_by = $2, cancellation_reason = $3, updated_at = NOW()
		WHERE id = $4 AND status = $5
	`

	result, err := q.ExecContext(ctx, query, StatusCancelled, cancelledBy, reason, id, current)
	if err != nil {
		return err
	}

	return requireOneRow(result)
}

// ActiveInWindow returns the trainer's non-terminal sessions starting inside
// [from, to]. The partial index on (trainer_id, scheduled_at) keeps this a
// local scan regardless of table size.
func (r *repository) ActiveInWindow(ctx context.Context, q db.Querier, trainerID int, from, to time.Time, excludeID int) ([]Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM sessions
		WHERE trainer_id = $1
		  AND status IN ('scheduled', 'confirmed', 'in_progress')
		  AND scheduled_at >= $2
		  AND scheduled_at <= $3
		  AND id <> $4
		ORDER BY scheduled_at
	`

	var sessions []Session
	err := sqlx.SelectContext(ctx, q, &sessions, query, trainerID, from, to, excludeID)
	if err != nil {
		return nil, err
	}

	return sessions, nil
}

func (r *repository) MarkOverdueNoShows(ctx context.Context, cutoff time.Time) ([]Session, error) {
	query := `
		UPDATE sessions
		SET status = 'no_show', cancelled_by = 'system', updated_at = NOW()
		WHERE status IN ('scheduled', 'confirmed')
		  AND scheduled_at < $1
		RETURNING ` + sessionColumns

	var swept []Session
	err := r.db.SelectContext(ctx, &swept, query, cutoff)
	if err != nil {
		return nil, err
	}

	return swept, nil
}

func (r *repository) InsertCompletion(ctx context.Context, q db.Querier, cd *CompletionDetails) error {
	query := `
		INSERT INTO session_completions (session_id, exercises, trainer_notes, client_rating)
		VALUES ($1, $2, $3, $4)
	`

	_, err := q.ExecContext(ctx, query, cd.SessionID, cd.Exercises, cd.TrainerNotes, cd.ClientRating)
	return err
}

func (r *repository) GetCompletion(ctx context.Context, sessionID int) (*CompletionDetails, error) {
	query := `
		SELECT session_id, exercises, trainer_notes, client_rating, created_at
		FROM session_completions
		WHERE session_id = $1
	`

	var cd CompletionDetails
	err := r.db.GetContext(ctx, &cd, query, sessionID)
	if err != nil {
		return nil, err
	}

	return &cd, nil
}

func (r *repository) ListByCustomer(ctx context.Context, customerID int) ([]Session, error) {
	return r.list(ctx, `customer_id`, customerID)
}

func (r *repository) ListByTrainer(ctx context.Context, trainerID int) ([]Session, error) {
	return r.list(ctx, `trainer_id`, trainerID)
}

func (r *repository) list(ctx context.Context, column string, id int) ([]Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM sessions
		WHERE ` + column + ` = $1
		ORDER BY scheduled_at DESC
	`

	var sessions []Session
	err := r.db.SelectContext(ctx, &sessions, query, id)
	if err != nil {
		return nil, err
	}

	return sessions, nil
}

func requireOneRow(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrStatusChanged
	}
	return nil
}
