package ledger

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"trainslot/internal/db"
	"trainslot/internal/metrics"
)

var (
	ErrPackageNotFound    = errors.New("package not found")
	ErrPurchaseNotFound   = errors.New("package purchase not found")
	ErrInsufficientCredit = errors.New("insufficient session credits")
	ErrExpired            = errors.New("package purchase expired")
	// ErrBusy means the optimistic version check lost repeatedly; the caller
	// may retry with backoff.
	ErrBusy = errors.New("purchase is busy, retry")
)

// maxReserveAttempts bounds optimistic retries before giving up with ErrBusy.
const maxReserveAttempts = 3

const purchaseColumns = `id, customer_id, trainer_id, package_id, sessions_total,
		sessions_remaining, price_cents, payment_status, expires_at, version,
		archived_at, created_at, updated_at`

type repository struct {
	db *sqlx.DB
}

func NewRepository(database *sqlx.DB) Repository {
	return &repository{db: database}
}

func (r *repository) CreatePackage(ctx context.Context, trainerID int, name string, sessionsTotal int, priceCents int64, validityDays int) (*Package, error) {
	query := `
		INSERT INTO packages (trainer_id, name, sessions_total, price_cents, validity_days)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, trainer_id, name, sessions_total, price_cents, validity_days, created_at
	`

	var p Package
	err := r.db.GetContext(ctx, &p, query, trainerID, name, sessionsTotal, priceCents, validityDays)
	if err != nil {
		return nil, err
	}

	return &p, nil
}

func (r *repository) GetPackage(ctx context.Context, id int) (*Package, error) {
	query := `
		SELECT id, trainer_id, name, sessions_total, price_cents, validity_days, created_at
		FROM packages
		WHERE id = $1
	`

	var p Package
	err := r.db.GetContext(ctx, &p, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPackageNotFound
		}
		return nil, err
	}

	return &p, nil
}

func (r *repository) ListPackagesByTrainer(ctx context.Context, trainerID int) ([]Package, error) {
	query := `
		SELECT id, trainer_id, name, sessions_total, price_cents, validity_days, created_at
		FROM packages
		WHERE trainer_id = $1
		ORDER BY created_at DESC
	`

	var packages []Package
	err := r.db.SelectContext(ctx, &packages, query, trainerID)
	if err != nil {
		return nil, err
	}

	return packages, nil
}

// CreatePurchase snapshots the package terms at purchase time: the credit
// pool starts full and expires validity_days from now.
func (r *repository) CreatePurchase(ctx context.Context, customerID, packageID int) (*PackagePurchase, error) {
	pkg, err := r.GetPackage(ctx, packageID)
	if err != nil {
		return nil, err
	}

	query := `
		INSERT INTO package_purchases (customer_id, trainer_id, package_id, sessions_total,
			sessions_remaining, price_cents, payment_status, expires_at)
		VALUES ($1, $2, $3, $4, $4, $5, $6, $7)
		RETURNING ` + purchaseColumns

	var purchase PackagePurchase
	expiresAt := time.Now().AddDate(0, 0, pkg.ValidityDays)
	err = r.db.GetContext(ctx, &purchase, query,
		customerID, pkg.TrainerID, pkg.ID, pkg.SessionsTotal, pkg.PriceCents,
		PaymentStatusPending, expiresAt,
	)
	if err != nil {
		return nil, err
	}

	return &purchase, nil
}

func (r *repository) GetPurchase(ctx context.Context, id int) (*PackagePurchase, error) {
	query := `SELECT ` + purchaseColumns + ` FROM package_purchases WHERE id = $1`

	var purchase PackagePurchase
	err := r.db.GetContext(ctx, &purchase, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPurchaseNotFound
		}
		return nil, err
	}

	return &purchase, nil
}

func (r *repository) ListPurchasesByCustomer(ctx context.Context, customerID int) ([]PackagePurchase, error) {
	query := `
		SELECT ` + purchaseColumns + `
		FROM package_purchases
		WHERE customer_id = $1
		ORDER BY created_at DESC
	`

	var purchases []PackagePurchase
	err := r.db.SelectContext(ctx, &purchases, query, customerID)
	if err != nil {
		return nil, err
	}

	return purchases, nil
}

func (r *repository) GetReservation(ctx context.Context, sessionID int) (*CreditReservation, error) {
	query := `
		SELECT session_id, purchase_id, amount, created_at
		FROM credit_reservations
		WHERE session_id = $1
	`

	var res CreditReservation
	err := r.db.GetContext(ctx, &res, query, sessionID)
	if err != nil {
		return nil, err
	}

	return &res, nil
}

// Reserve decrements the balance and records the reservation in one
// transaction, guarded by the purchase's version column. Losing the version
// check is not an error in itself; it is retried up to maxReserveAttempts.
func (r *repository) Reserve(ctx context.Context, purchaseID, sessionID, amount int) (*CreditReservation, error) {
	for attempt := 0; attempt < maxReserveAttempts; attempt++ {
		existing, err := r.GetReservation(ctx, sessionID)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}

		purchase, err := r.GetPurchase(ctx, purchaseID)
		if err != nil {
			return nil, err
		}
		if time.Now().After(purchase.ExpiresAt) {
			return nil, ErrExpired
		}
		if purchase.SessionsRemaining < amount {
			return nil, ErrInsufficientCredit
		}

		reservation, retry, err := r.tryReserve(ctx, purchase, sessionID, amount)
		if err != nil {
			return nil, err
		}
		if retry {
			metrics.RecordLedgerRetry()
			continue
		}
		metrics.RecordReservation("reserve")
		return reservation, nil
	}

	return nil, ErrBusy
}

func (r *repository) tryReserve(ctx context.Context, purchase *PackagePurchase, sessionID, amount int) (*CreditReservation, bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE package_purchases
		SET sessions_remaining = sessions_remaining - $1,
		    version = version + 1,
		    updated_at = NOW()
		WHERE id = $2 AND version = $3 AND sessions_remaining >= $1
	`, amount, purchase.ID, purchase.Version)
	if err != nil {
		return nil, false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, false, err
	}
	if rowsAffected == 0 {
		// Version moved (or balance drained) under us; re-read and retry.
		return nil, true, nil
	}

	var reservation CreditReservation
	err = tx.QueryRowxContext(ctx, `
		INSERT INTO credit_reservations (session_id, purchase_id, amount)
		VALUES ($1, $2, $3)
		RETURNING session_id, purchase_id, amount, created_at
	`, sessionID, purchase.ID, amount).StructScan(&reservation)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			// A concurrent reserve for the same session won; ours rolls back
			// and the existing reservation is returned on the retry pass.
			return nil, true, nil
		}
		return nil, false, err
	}

	if err := tx.Commit(); err != nil {
		return nil, false, err
	}

	return &reservation, false, nil
}

func (r *repository) Release(ctx context.Context, sessionID int) (bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	released, err := r.ReleaseIn(ctx, tx, sessionID)
	if err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}

	return released, nil
}

// ReleaseIn deletes the reservation and refunds its amount. The DELETE ...
// RETURNING is what makes a double refund impossible: the second caller finds
// no row and leaves the balance alone.
func (r *repository) ReleaseIn(ctx context.Context, q db.Querier, sessionID int) (bool, error) {
	var res CreditReservation
	err := q.QueryRowxContext(ctx, `
		DELETE FROM credit_reservations
		WHERE session_id = $1
		RETURNING session_id, purchase_id, amount, created_at
	`, sessionID).StructScan(&res)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}

	_, err = q.ExecContext(ctx, `
		UPDATE package_purchases
		SET sessions_remaining = sessions_remaining + $1,
		    version = version + 1,
		    updated_at = NOW()
		WHERE id = $2
	`, res.Amount, res.PurchaseID)
	if err != nil {
		return false, err
	}

	metrics.RecordReservation("release")
	return true, nil
}

func (r *repository) TransferReservation(ctx context.Context, q db.Querier, oldSessionID, newSessionID int) error {
	result, err := q.ExecContext(ctx, `
		UPDATE credit_reservations
		SET session_id = $1
		WHERE session_id = $2
	`, newSessionID, oldSessionID)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		// Unbacked session (booked without a package); nothing to carry over.
		return nil
	}

	return nil
}

func (r *repository) ExpiringWithin(ctx context.Context, days int) ([]PackagePurchase, error) {
	query := `
		SELECT ` + purchaseColumns + `
		FROM package_purchases
		WHERE archived_at IS NULL
		  AND sessions_remaining > 0
		  AND expires_at > NOW()
		  AND expires_at <= NOW() + ($1 * INTERVAL '1 day')
		ORDER BY expires_at
	`

	var purchases []PackagePurchase
	err := r.db.SelectContext(ctx, &purchases, query, days)
	if err != nil {
		return nil, err
	}

	return purchases, nil
}

func (r *repository) ArchiveExhausted(ctx context.Context) (int64, error) {
	query := `
		UPDATE package_purchases
		SET archived_at = NOW(), updated_at = NOW()
		WHERE archived_at IS NULL
		  AND (sessions_remaining = 0 OR expires_at < NOW())
	`

	result, err := r.db.ExecContext(ctx, query)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}
