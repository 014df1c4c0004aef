package ledger

import "time"

// Package is a trainer-defined catalog entry: N prepaid sessions valid for a
// number of days from purchase.
type Package struct {
	ID            int       `db:"id" json:"id"`
	TrainerID     int       `db:"trainer_id" json:"trainer_id"`
	Name          string    `db:"name" json:"name"`
	SessionsTotal int       `db:"sessions_total" json:"sessions_total"`
	PriceCents    int64     `db:"price_cents" json:"price_cents"`
	ValidityDays  int       `db:"validity_days" json:"validity_days"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

const (
	PaymentStatusPending = "pending"
	PaymentStatusPaid    = "paid"
)

// PackagePurchase is the credit pool. sessions_remaining is mutated only by
// Reserve/Release; the version column backs optimistic concurrency.
type PackagePurchase struct {
	ID                int        `db:"id" json:"id"`
	CustomerID        int        `db:"customer_id" json:"customer_id"`
	TrainerID         int        `db:"trainer_id" json:"trainer_id"`
	PackageID         int        `db:"package_id" json:"package_id"`
	SessionsTotal     int        `db:"sessions_total" json:"sessions_total"`
	SessionsRemaining int        `db:"sessions_remaining" json:"sessions_remaining"`
	PriceCents        int64      `db:"price_cents" json:"price_cents"`
	PaymentStatus     string     `db:"payment_status" json:"payment_status"`
	ExpiresAt         time.Time  `db:"expires_at" json:"expires_at"`
	Version           int        `db:"version" json:"-"`
	ArchivedAt        *time.Time `db:"archived_at" json:"archived_at,omitempty"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
}

// CreditReservation binds one consumed credit to one session, guaranteeing
// at-most-once consumption and at-most-once refund per session.
type CreditReservation struct {
	SessionID  int       `db:"session_id" json:"session_id"`
	PurchaseID int       `db:"purchase_id" json:"purchase_id"`
	Amount     int       `db:"amount" json:"amount"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
