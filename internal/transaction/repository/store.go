package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/graphbank/backoffice/internal/models"
)

// Filter narrows a List call. Nil fields are not applied. AccountID matches
// either leg of a transfer. CreatedFrom/CreatedTo bound created_at and are
// inclusive on both ends. CreatedBefore is a strict upper bound used by the
// stale-transaction scan.
type Filter struct {
	UserID        *int64
	AccountID     *int64
	Status        *models.TransactionStatus
	Type          *models.TransactionType
	CreatedFrom   *time.Time
	CreatedTo     *time.Time
	CreatedBefore *time.Time
}

// Store is the durable transaction record store. Every mutation is atomic
// with respect to the single record it touches: Update and Delete run their
// callback inside a per-record read-modify-write boundary, so two concurrent
// status updates on the same id cannot interleave.
//
// The store owns the bookkeeping timestamps: it stamps UpdatedAt on every
// successful mutation and sets ProcessedAt the first time a record reaches
// COMPLETED or FAILED. ProcessedAt is never cleared once set.
type Store interface {
	// Create persists a new transaction and assigns its numeric id.
	// A reference collision yields ErrDuplicateReference.
	Create(ctx context.Context, tx *models.Transaction) error

	GetByID(ctx context.Context, id int64) (*models.Transaction, error)
	GetByReference(ctx context.Context, reference string) (*models.Transaction, error)
	ExistsByReference(ctx context.Context, reference string) (bool, error)

	// List returns transactions matching filter, newest first.
	// No matches is an empty slice, never an error.
	List(ctx context.Context, filter Filter) ([]models.Transaction, error)

	// Update applies fn to the current record under the per-record atomic
	// boundary and persists the result. If fn returns an error the record is
	// left untouched and the error is returned as-is. A missing id yields
	// ErrNotFound.
	Update(ctx context.Context, id int64, fn func(*models.Transaction) error) (*models.Transaction, error)

	// Delete removes the record permanently after guard approves it, under
	// the same atomic boundary as Update. A missing id yields ErrNotFound.
	Delete(ctx context.Context, id int64, guard func(*models.Transaction) error) error

	CountByUserAndStatus(ctx context.Context, userID int64, status models.TransactionStatus) (int64, error)

	// Sum aggregations cover COMPLETED transactions only and return zero
	// when nothing matches.
	SumByUserAndType(ctx context.Context, userID int64, txType models.TransactionType) (decimal.Decimal, error)
	SumDebitsByAccount(ctx context.Context, accountID int64) (decimal.Decimal, error)
	SumCreditsByAccount(ctx context.Context, accountID int64) (decimal.Decimal, error)
}

// finalize stamps the bookkeeping timestamps after a successful mutation.
// Shared by every Store implementation.
func finalize(tx *models.Transaction, now time.Time) {
	// UpdatedAt must be strictly after CreatedAt even at coarse clock resolution.
	if !now.After(tx.CreatedAt) {
		now = tx.CreatedAt.Add(time.Nanosecond)
	}
	tx.UpdatedAt = now
	if tx.ProcessedAt == nil && (tx.Status == models.StatusCompleted || tx.Status == models.StatusFailed) {
		processed := now
		tx.ProcessedAt = &processed
	}
}
