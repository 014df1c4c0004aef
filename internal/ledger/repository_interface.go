package ledger

import (
	"context"

	"trainslot/internal/db"
)

type Repository interface {
	CreatePackage(ctx context.Context, trainerID int, name string, sessionsTotal int, priceCents int64, validityDays int) (*Package, error)
	GetPackage(ctx context.Context, id int) (*Package, error)
	ListPackagesByTrainer(ctx context.Context, trainerID int) ([]Package, error)

	CreatePurchase(ctx context.Context, customerID, packageID int) (*PackagePurchase, error)
	GetPurchase(ctx context.Context, id int) (*PackagePurchase, error)
	ListPurchasesByCustomer(ctx context.Context, customerID int) ([]PackagePurchase, error)

	// Reserve consumes one (or amount) credits from the purchase for the given
	// session. Idempotent per session id: a repeated call returns the existing
	// reservation without touching the balance.
	Reserve(ctx context.Context, purchaseID, sessionID, amount int) (*CreditReservation, error)
	// Release refunds the credit reserved for sessionID. A missing reservation
	// is a no-op; the bool reports whether anything was refunded.
	Release(ctx context.Context, sessionID int) (bool, error)
	// ReleaseIn is Release running inside a caller-owned transaction.
	ReleaseIn(ctx context.Context, q db.Querier, sessionID int) (bool, error)
	// TransferReservation rekeys a reservation to a new session inside a
	// caller-owned transaction (reschedule keeps the credit spent).
	TransferReservation(ctx context.Context, q db.Querier, oldSessionID, newSessionID int) error
	GetReservation(ctx context.Context, sessionID int) (*CreditReservation, error)

	ExpiringWithin(ctx context.Context, days int) ([]PackagePurchase, error)
	// ArchiveExhausted stamps archived_at on purchases that are out of credits
	// or past expiry. Rows are never deleted.
	ArchiveExhausted(ctx context.Context) (int64, error)
}
