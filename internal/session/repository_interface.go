package session

import (
	"context"
	"time"

	"trainslot/internal/db"
)

type Repository interface {
	// NextID pre-allocates a session id from the store sequence so a credit
	// reservation can be keyed to the session before the row exists.
	NextID(ctx context.Context) (int, error)
	Insert(ctx context.Context, q db.Querier, s *Session) (*Session, error)
	GetByID(ctx context.Context, id int) (*Session, error)
	GetByIDForUpdate(ctx context.Context, q db.Querier, id int) (*Session, error)
	// UpdateStatusIfCurrent performs a compare-and-set on the status column.
	// Zero rows affected (row gone or status changed underneath) yields
	// ErrStatusChanged.
	UpdateStatusIfCurrent(ctx context.Context, q db.Querier, id int, current, next Status) error
	MarkCancelled(ctx context.Context, q db.Querier, id int, current Status, cancelledBy, reason string) error
	ActiveInWindow(ctx context.Context, q db.Querier, trainerID int, from, to time.Time, excludeID int) ([]Session, error)
	MarkOverdueNoShows(ctx context.Context, cutoff time.Time) ([]Session, error)
	InsertCompletion(ctx context.Context, q db.Querier, cd *CompletionDetails) error
	GetCompletion(ctx context.Context, sessionID int) (*CompletionDetails, error)
	ListByCustomer(ctx context.Context, customerID int) ([]Session, error)
	ListByTrainer(ctx context.Context, trainerID int) ([]Session, error)
}
