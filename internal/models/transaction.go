package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TypeTransfer   TransactionType = "TRANSFER"
	TypeDeposit    TransactionType = "DEPOSIT"
	TypeWithdrawal TransactionType = "WITHDRAWAL"
	TypePayment    TransactionType = "PAYMENT"
	TypeRefund     TransactionType = "REFUND"
)

func (t TransactionType) Valid() bool {
	switch t {
	case TypeTransfer, TypeDeposit, TypeWithdrawal, TypePayment, TypeRefund:
		return true
	}
	return false
}

func ParseTransactionType(s string) (TransactionType, error) {
	t := TransactionType(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown transaction type %q", s)
	}
	return t, nil
}

type TransactionStatus string

const (
	StatusPending    TransactionStatus = "PENDING"
	StatusProcessing TransactionStatus = "PROCESSING"
	StatusCompleted  TransactionStatus = "COMPLETED"
	StatusFailed     TransactionStatus = "FAILED"
	StatusCancelled  TransactionStatus = "CANCELLED"
)

func (s TransactionStatus) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further processing is expected for a
// transaction in this status. The engine still allows raw status writes
// out of FAILED and CANCELLED; only COMPLETED guards cancel and delete.
func (s TransactionStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

func ParseTransactionStatus(s string) (TransactionStatus, error) {
	st := TransactionStatus(s)
	if !st.Valid() {
		return "", fmt.Errorf("unknown transaction status %q", s)
	}
	return st, nil
}

// DefaultCurrency is applied when a create request carries no currency.
const DefaultCurrency = "USD"

// Transaction is the ledger's sole entity. ID is assigned by the store at
// persistence time; Reference is assigned once by the lifecycle engine and
// never changes afterwards.
type Transaction struct {
	ID            int64             `json:"id"`
	Reference     string            `json:"transactionReference"`
	UserID        int64             `json:"userId"`
	FromAccountID *int64            `json:"fromAccountId,omitempty"`
	ToAccountID   *int64            `json:"toAccountId,omitempty"`
	Type          TransactionType   `json:"transactionType"`
	Status        TransactionStatus `json:"transactionStatus"`
	Amount        decimal.Decimal   `json:"amount"`
	Currency      string            `json:"currency"`
	Description   string            `json:"description,omitempty"`
	FailureReason string            `json:"failureReason,omitempty"`
	CreatedAt     time.Time         `json:"createdAt"`
	UpdatedAt     time.Time         `json:"updatedAt"`
	ProcessedAt   *time.Time        `json:"processedAt,omitempty"`
}

// Clone returns a deep copy so in-memory store callers can never mutate a
// persisted record outside an atomic update.
func (t *Transaction) Clone() *Transaction {
	c := *t
	if t.FromAccountID != nil {
		v := *t.FromAccountID
		c.FromAccountID = &v
	}
	if t.ToAccountID != nil {
		v := *t.ToAccountID
		c.ToAccountID = &v
	}
	if t.ProcessedAt != nil {
		v := *t.ProcessedAt
		c.ProcessedAt = &v
	}
	return &c
}

// UserTransactionSummary bundles the per-user aggregate view. It is composed
// from independent point-in-time reads and may observe a torn snapshot under
// concurrent writes.
type UserTransactionSummary struct {
	UserID           int64           `json:"userId"`
	CompletedCount   int64           `json:"completedCount"`
	PendingCount     int64           `json:"pendingCount"`
	FailedCount      int64           `json:"failedCount"`
	TotalDeposits    decimal.Decimal `json:"totalDeposits"`
	TotalWithdrawals decimal.Decimal `json:"totalWithdrawals"`
	TotalTransfers   decimal.Decimal `json:"totalTransfers"`
	Transactions     []Transaction   `json:"transactions"`
}
