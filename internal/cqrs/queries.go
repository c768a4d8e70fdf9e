package cqrs

import (
	"time"

	"github.com/graphbank/backoffice/internal/models"
)

// ---------- Transaction queries ----------

// GetTransactionQuery fetches a single transaction by numeric id.
type GetTransactionQuery struct {
	TransactionID int64
}

// GetTransactionByReferenceQuery fetches a single transaction by its
// human-facing reference.
type GetTransactionByReferenceQuery struct {
	Reference string
}

// ListTransactionsQuery fetches transactions by any combination of the
// ledger's filter predicates. Zero-valued fields are not applied.
type ListTransactionsQuery struct {
	UserID    *int64
	AccountID *int64
	Status    *models.TransactionStatus
	Type      *models.TransactionType
	From      *time.Time
	To        *time.Time
}

// StaleTransactionsQuery fetches PENDING transactions older than HoursOld.
type StaleTransactionsQuery struct {
	HoursOld int
}

// TransactionCountQuery counts a user's transactions in a given status.
type TransactionCountQuery struct {
	UserID int64
	Status models.TransactionStatus
}

// UserSummaryQuery drives the composed per-user aggregate view.
type UserSummaryQuery struct {
	UserID int64
}

// ---------- User queries ----------

type GetUserQuery struct {
	UserID int64
}

type GetUserByEmailQuery struct {
	Email string
}
