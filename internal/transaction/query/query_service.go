package query

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/graphbank/backoffice/internal/cqrs"
	"github.com/graphbank/backoffice/internal/models"
	"github.com/graphbank/backoffice/internal/transaction/repository"
)

// Service answers every read over the transaction ledger. Point reads go
// through the shared view cache that the lifecycle engine keeps current;
// lists and aggregates hit the store directly. Aggregates never fail on
// "no data": they return zero values and empty slices.
type Service struct {
	store repository.Store
	views repository.TransactionViews
}

// NewService builds the read side. views may be nil, in which case every
// read goes straight to the store.
func NewService(store repository.Store, views repository.TransactionViews) *Service {
	return &Service{store: store, views: views}
}

func (s *Service) ListAll(ctx context.Context) ([]models.Transaction, error) {
	return s.store.List(ctx, repository.Filter{})
}

// GetByID returns a transaction by numeric id, view cache first, store on a
// miss. The engine writes mutations through the same cache, so a hit is as
// current as the last mutation.
func (s *Service) GetByID(ctx context.Context, q cqrs.GetTransactionQuery) (*models.Transaction, error) {
	if s.views != nil {
		if tx, ok := s.views.GetByID(ctx, q.TransactionID); ok {
			return tx, nil
		}
	}
	tx, err := s.store.GetByID(ctx, q.TransactionID)
	if err != nil {
		return nil, err
	}
	if s.views != nil {
		s.views.Put(ctx, tx)
	}
	return tx, nil
}

func (s *Service) GetByReference(ctx context.Context, q cqrs.GetTransactionByReferenceQuery) (*models.Transaction, error) {
	if s.views != nil {
		if tx, ok := s.views.GetByReference(ctx, q.Reference); ok {
			return tx, nil
		}
	}
	tx, err := s.store.GetByReference(ctx, q.Reference)
	if err != nil {
		return nil, err
	}
	if s.views != nil {
		s.views.Put(ctx, tx)
	}
	return tx, nil
}

// List applies any combination of the ledger's filter predicates. Date range
// bounds are inclusive on both ends.
func (s *Service) List(ctx context.Context, q cqrs.ListTransactionsQuery) ([]models.Transaction, error) {
	return s.store.List(ctx, repository.Filter{
		UserID:      q.UserID,
		AccountID:   q.AccountID,
		Status:      q.Status,
		Type:        q.Type,
		CreatedFrom: q.From,
		CreatedTo:   q.To,
	})
}

// ListStale returns PENDING transactions created more than hoursOld hours ago.
func (s *Service) ListStale(ctx context.Context, q cqrs.StaleTransactionsQuery) ([]models.Transaction, error) {
	if q.HoursOld < 0 {
		return nil, models.NewValidationError("hoursOld", "must not be negative")
	}
	pending := models.StatusPending
	cutoff := time.Now().UTC().Add(-time.Duration(q.HoursOld) * time.Hour)
	return s.store.List(ctx, repository.Filter{
		Status:        &pending,
		CreatedBefore: &cutoff,
	})
}

func (s *Service) Count(ctx context.Context, q cqrs.TransactionCountQuery) (int64, error) {
	return s.store.CountByUserAndStatus(ctx, q.UserID, q.Status)
}

// TotalAmountByUserAndType sums COMPLETED transactions only.
func (s *Service) TotalAmountByUserAndType(ctx context.Context, userID int64, txType models.TransactionType) (decimal.Decimal, error) {
	return s.store.SumByUserAndType(ctx, userID, txType)
}

// TotalDebitsByAccount sums COMPLETED transactions debiting the account.
func (s *Service) TotalDebitsByAccount(ctx context.Context, accountID int64) (decimal.Decimal, error) {
	return s.store.SumDebitsByAccount(ctx, accountID)
}

// TotalCreditsByAccount sums COMPLETED transactions crediting the account.
func (s *Service) TotalCreditsByAccount(ctx context.Context, accountID int64) (decimal.Decimal, error) {
	return s.store.SumCreditsByAccount(ctx, accountID)
}

// UserSummary composes the per-user aggregate view from independent reads.
// It is not a single snapshot: writes racing with the summary may leave the
// counts, totals and transaction list mutually inconsistent by a row or two.
// That is the documented contract, not a bug.
func (s *Service) UserSummary(ctx context.Context, q cqrs.UserSummaryQuery) (*models.UserTransactionSummary, error) {
	userID := q.UserID
	transactions, err := s.store.List(ctx, repository.Filter{UserID: &userID})
	if err != nil {
		return nil, err
	}
	completed, err := s.store.CountByUserAndStatus(ctx, userID, models.StatusCompleted)
	if err != nil {
		return nil, err
	}
	pending, err := s.store.CountByUserAndStatus(ctx, userID, models.StatusPending)
	if err != nil {
		return nil, err
	}
	failed, err := s.store.CountByUserAndStatus(ctx, userID, models.StatusFailed)
	if err != nil {
		return nil, err
	}
	deposits, err := s.store.SumByUserAndType(ctx, userID, models.TypeDeposit)
	if err != nil {
		return nil, err
	}
	withdrawals, err := s.store.SumByUserAndType(ctx, userID, models.TypeWithdrawal)
	if err != nil {
		return nil, err
	}
	transfers, err := s.store.SumByUserAndType(ctx, userID, models.TypeTransfer)
	if err != nil {
		return nil, err
	}
	return &models.UserTransactionSummary{
		UserID:           userID,
		CompletedCount:   completed,
		PendingCount:     pending,
		FailedCount:      failed,
		TotalDeposits:    deposits,
		TotalWithdrawals: withdrawals,
		TotalTransfers:   transfers,
		Transactions:     transactions,
	}, nil
}
