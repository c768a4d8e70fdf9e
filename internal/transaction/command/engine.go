package command

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/graphbank/backoffice/internal/cqrs"
	"github.com/graphbank/backoffice/internal/events"
	"github.com/graphbank/backoffice/internal/logging"
	"github.com/graphbank/backoffice/internal/metrics"
	"github.com/graphbank/backoffice/internal/models"
	"github.com/graphbank/backoffice/internal/reference"
	"github.com/graphbank/backoffice/internal/transaction/repository"
)

// Publisher is the slice of the events publisher the engine needs.
type Publisher interface {
	Publish(ctx context.Context, stream, eventType string, data any) error
}

// Engine owns the transaction lifecycle: creation with a fresh unique
// reference, status writes, and the cancel/delete guards. The status graph is
// deliberately permissive — any status may be written over any other — with a
// single hard rule: a COMPLETED transaction can never be cancelled or deleted.
//
// The engine is also the sole writer of the read-side view cache: every
// mutation writes the fresh record through, and delete drops both keys, so
// the query surface cannot serve a record the store no longer holds.
type Engine struct {
	store     repository.Store
	refs      *reference.Generator
	views     repository.TransactionViews
	publisher Publisher
	metrics   *metrics.Metrics
	log       *logging.Logger
}

func NewEngine(store repository.Store, refs *reference.Generator, views repository.TransactionViews, publisher Publisher, m *metrics.Metrics, log *logging.Logger) *Engine {
	return &Engine{store: store, refs: refs, views: views, publisher: publisher, metrics: m, log: log}
}

// CreateTransaction validates the command, assigns a fresh reference and
// persists the transaction in PENDING. Currency defaults to USD.
func (e *Engine) CreateTransaction(ctx context.Context, cmd cqrs.CreateTransactionCommand) (*models.Transaction, error) {
	if err := validateCreate(cmd.UserID, cmd.Type, cmd.Amount); err != nil {
		return nil, err
	}
	return e.create(ctx, cmd, nil, nil)
}

// CreateTransfer behaves as CreateTransaction with type TRANSFER and both
// account legs populated. A same-account transfer is an invalid operation.
func (e *Engine) CreateTransfer(ctx context.Context, cmd cqrs.CreateTransferCommand) (*models.Transaction, error) {
	if err := validateCreate(cmd.UserID, models.TypeTransfer, cmd.Amount); err != nil {
		return nil, err
	}
	if cmd.FromAccountID <= 0 {
		return nil, models.NewValidationError("fromAccountId", "account id is required")
	}
	if cmd.ToAccountID <= 0 {
		return nil, models.NewValidationError("toAccountId", "account id is required")
	}
	if cmd.FromAccountID == cmd.ToAccountID {
		return nil, fmt.Errorf("cannot transfer to the same account: %w", models.ErrInvalidOperation)
	}
	from, to := cmd.FromAccountID, cmd.ToAccountID
	return e.create(ctx, cqrs.CreateTransactionCommand{
		UserID:      cmd.UserID,
		Type:        models.TypeTransfer,
		Amount:      cmd.Amount,
		Currency:    cmd.Currency,
		Description: cmd.Description,
	}, &from, &to)
}

func (e *Engine) create(ctx context.Context, cmd cqrs.CreateTransactionCommand, from, to *int64) (*models.Transaction, error) {
	ref, err := e.refs.Generate(ctx)
	if err != nil {
		return nil, err
	}
	currency := cmd.Currency
	if currency == "" {
		currency = models.DefaultCurrency
	}
	now := time.Now().UTC()
	tx := &models.Transaction{
		Reference:     ref,
		UserID:        cmd.UserID,
		FromAccountID: from,
		ToAccountID:   to,
		Type:          cmd.Type,
		Status:        models.StatusPending,
		Amount:        cmd.Amount,
		Currency:      currency,
		Description:   cmd.Description,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := e.store.Create(ctx, tx); err != nil {
		return nil, err
	}
	e.cacheView(ctx, tx)
	if e.metrics != nil {
		e.metrics.TransactionsCreated.WithLabelValues(string(tx.Type)).Inc()
	}
	e.publish(ctx, events.TransactionCreated, events.TransactionCreatedEvent{
		TransactionID: tx.ID,
		Reference:     tx.Reference,
		UserID:        tx.UserID,
		Amount:        tx.Amount.StringFixed(2),
		Currency:      tx.Currency,
		Type:          string(tx.Type),
	})
	e.log.WithTransactionID(tx.ID).WithField("reference", tx.Reference).Info("transaction created")
	return tx, nil
}

// UpdateStatus writes the requested status. No transition graph is enforced
// here; the failure reason is recorded only when non-empty. The store keeps
// UpdatedAt and ProcessedAt consistent.
func (e *Engine) UpdateStatus(ctx context.Context, cmd cqrs.UpdateTransactionStatusCommand) (*models.Transaction, error) {
	if !cmd.Status.Valid() {
		return nil, models.NewValidationError("status", fmt.Sprintf("unknown status %q", cmd.Status))
	}
	tx, err := e.store.Update(ctx, cmd.TransactionID, func(tx *models.Transaction) error {
		tx.Status = cmd.Status
		if cmd.FailureReason != "" {
			tx.FailureReason = cmd.FailureReason
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.cacheView(ctx, tx)
	if e.metrics != nil {
		e.metrics.StatusTransitions.WithLabelValues(string(cmd.Status)).Inc()
	}
	e.publish(ctx, events.TransactionStatusChanged, events.TransactionStatusChangedEvent{
		TransactionID: tx.ID,
		UserID:        tx.UserID,
		Status:        string(tx.Status),
		FailureReason: tx.FailureReason,
	})
	return tx, nil
}

// Complete marks the transaction COMPLETED.
func (e *Engine) Complete(ctx context.Context, id int64) (*models.Transaction, error) {
	return e.UpdateStatus(ctx, cqrs.UpdateTransactionStatusCommand{
		TransactionID: id,
		Status:        models.StatusCompleted,
	})
}

// Fail marks the transaction FAILED with the given reason.
func (e *Engine) Fail(ctx context.Context, id int64, reason string) (*models.Transaction, error) {
	return e.UpdateStatus(ctx, cqrs.UpdateTransactionStatusCommand{
		TransactionID: id,
		Status:        models.StatusFailed,
		FailureReason: reason,
	})
}

// Cancel sets the transaction CANCELLED unless it has already COMPLETED.
func (e *Engine) Cancel(ctx context.Context, id int64) (*models.Transaction, error) {
	tx, err := e.store.Update(ctx, id, func(tx *models.Transaction) error {
		if tx.Status == models.StatusCompleted {
			return fmt.Errorf("cannot cancel a completed transaction: %w", models.ErrInvalidOperation)
		}
		tx.Status = models.StatusCancelled
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.cacheView(ctx, tx)
	if e.metrics != nil {
		e.metrics.StatusTransitions.WithLabelValues(string(models.StatusCancelled)).Inc()
	}
	e.publish(ctx, events.TransactionStatusChanged, events.TransactionStatusChangedEvent{
		TransactionID: tx.ID,
		UserID:        tx.UserID,
		Status:        string(tx.Status),
	})
	return tx, nil
}

// Delete removes the transaction permanently unless it has COMPLETED.
// The cached views go with the record.
func (e *Engine) Delete(ctx context.Context, id int64) error {
	var (
		userID    int64
		reference string
	)
	err := e.store.Delete(ctx, id, func(tx *models.Transaction) error {
		if tx.Status == models.StatusCompleted {
			return fmt.Errorf("cannot delete a completed transaction: %w", models.ErrInvalidOperation)
		}
		userID = tx.UserID
		reference = tx.Reference
		return nil
	})
	if err != nil {
		return err
	}
	if e.views != nil {
		e.views.Drop(ctx, id, reference)
	}
	e.publish(ctx, events.TransactionDeleted, events.TransactionDeletedEvent{
		TransactionID: id,
		UserID:        userID,
	})
	e.log.WithTransactionID(id).Info("transaction deleted")
	return nil
}

// ClaimPending atomically moves a PENDING transaction to PROCESSING. It
// reports false without error when the record is no longer PENDING, which
// makes batch settlement idempotent under concurrent invocation.
func (e *Engine) ClaimPending(ctx context.Context, id int64) (bool, error) {
	errNotPending := fmt.Errorf("not pending")
	tx, err := e.store.Update(ctx, id, func(tx *models.Transaction) error {
		if tx.Status != models.StatusPending {
			return errNotPending
		}
		tx.Status = models.StatusProcessing
		return nil
	})
	if err == errNotPending {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	e.cacheView(ctx, tx)
	if e.metrics != nil {
		e.metrics.StatusTransitions.WithLabelValues(string(models.StatusProcessing)).Inc()
	}
	return true, nil
}

func (e *Engine) cacheView(ctx context.Context, tx *models.Transaction) {
	if e.views != nil {
		e.views.Put(ctx, tx)
	}
}

func (e *Engine) publish(ctx context.Context, eventType string, data any) {
	if e.publisher == nil {
		return
	}
	if err := e.publisher.Publish(ctx, events.TransactionEventsStream, eventType, data); err != nil {
		e.log.WithService().WithField("event", eventType).Warnf("failed to publish event: %v", err)
	}
}

func validateCreate(userID int64, txType models.TransactionType, amount decimal.Decimal) error {
	if userID <= 0 {
		return models.NewValidationError("userId", "user id is required")
	}
	if !txType.Valid() {
		return models.NewValidationError("type", fmt.Sprintf("unknown transaction type %q", txType))
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return models.NewValidationError("amount", "amount must be greater than zero")
	}
	return nil
}
