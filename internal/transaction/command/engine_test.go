package command

import (
	"context"
	"regexp"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphbank/backoffice/internal/cqrs"
	"github.com/graphbank/backoffice/internal/logging"
	"github.com/graphbank/backoffice/internal/models"
	"github.com/graphbank/backoffice/internal/reference"
	"github.com/graphbank/backoffice/internal/transaction/repository"
)

type recordedEvent struct {
	Stream string
	Type   string
	Data   any
}

type capturePublisher struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (p *capturePublisher) Publish(ctx context.Context, stream, eventType string, data any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, recordedEvent{Stream: stream, Type: eventType, Data: data})
	return nil
}

func (p *capturePublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]string, len(p.events))
	for i, ev := range p.events {
		types[i] = ev.Type
	}
	return types
}

func newTestEngine(t *testing.T) (*Engine, *repository.MemoryStore, *capturePublisher) {
	t.Helper()
	store := repository.NewMemoryStore()
	refs := reference.NewGenerator(store, 0)
	pub := &capturePublisher{}
	return NewEngine(store, refs, nil, pub, nil, logging.New("transaction-service")), store, pub
}

func depositCmd(amount string) cqrs.CreateTransactionCommand {
	return cqrs.CreateTransactionCommand{
		UserID: 1,
		Type:   models.TypeDeposit,
		Amount: decimal.RequireFromString(amount),
	}
}

func TestCreateTransactionDefaults(t *testing.T) {
	engine, _, pub := newTestEngine(t)

	tx, err := engine.CreateTransaction(context.Background(), depositCmd("100.00"))
	require.NoError(t, err)

	assert.Regexp(t, regexp.MustCompile(`^TXN-[A-Z0-9]{8}$`), tx.Reference)
	assert.Equal(t, models.StatusPending, tx.Status)
	assert.Equal(t, "USD", tx.Currency)
	assert.Nil(t, tx.ProcessedAt)
	assert.NotZero(t, tx.ID)
	assert.Equal(t, []string{"transaction.created"}, pub.types())
}

func TestCreateTransactionKeepsExplicitCurrency(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	cmd := depositCmd("10.00")
	cmd.Currency = "EUR"
	tx, err := engine.CreateTransaction(context.Background(), cmd)
	require.NoError(t, err)
	assert.Equal(t, "EUR", tx.Currency)
}

func TestCreateTransactionValidation(t *testing.T) {
	engine, _, pub := newTestEngine(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		cmd   cqrs.CreateTransactionCommand
		field string
	}{
		{
			name:  "zero amount",
			cmd:   cqrs.CreateTransactionCommand{UserID: 1, Type: models.TypeDeposit, Amount: decimal.Zero},
			field: "amount",
		},
		{
			name:  "negative amount",
			cmd:   cqrs.CreateTransactionCommand{UserID: 1, Type: models.TypeDeposit, Amount: decimal.RequireFromString("-5.00")},
			field: "amount",
		},
		{
			name:  "missing user",
			cmd:   cqrs.CreateTransactionCommand{Type: models.TypeDeposit, Amount: decimal.RequireFromString("5.00")},
			field: "userId",
		},
		{
			name:  "unknown type",
			cmd:   cqrs.CreateTransactionCommand{UserID: 1, Type: "GIFT", Amount: decimal.RequireFromString("5.00")},
			field: "type",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := engine.CreateTransaction(ctx, tt.cmd)
			var verr *models.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
	assert.Empty(t, pub.types(), "rejected commands must not publish events")
}

func TestCreateTransferPopulatesLegs(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	tx, err := engine.CreateTransfer(context.Background(), cqrs.CreateTransferCommand{
		UserID:        1,
		FromAccountID: 10,
		ToAccountID:   20,
		Amount:        decimal.RequireFromString("75.00"),
	})
	require.NoError(t, err)

	assert.Equal(t, models.TypeTransfer, tx.Type)
	require.NotNil(t, tx.FromAccountID)
	require.NotNil(t, tx.ToAccountID)
	assert.Equal(t, int64(10), *tx.FromAccountID)
	assert.Equal(t, int64(20), *tx.ToAccountID)
}

func TestCreateTransferSameAccountRejected(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	_, err := engine.CreateTransfer(context.Background(), cqrs.CreateTransferCommand{
		UserID:        1,
		FromAccountID: 10,
		ToAccountID:   10,
		Amount:        decimal.RequireFromString("75.00"),
	})
	assert.ErrorIs(t, err, models.ErrInvalidOperation)
}

func TestCompleteSetsProcessedAt(t *testing.T) {
	engine, _, pub := newTestEngine(t)
	ctx := context.Background()

	tx, err := engine.CreateTransaction(ctx, depositCmd("100.00"))
	require.NoError(t, err)

	completed, err := engine.Complete(ctx, tx.ID)
	require.NoError(t, err)

	assert.Equal(t, models.StatusCompleted, completed.Status)
	require.NotNil(t, completed.ProcessedAt)
	assert.True(t, completed.UpdatedAt.After(completed.CreatedAt))
	assert.Contains(t, pub.types(), "transaction.status_changed")
}

func TestFailRecordsReason(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	ctx := context.Background()

	tx, err := engine.CreateTransaction(ctx, depositCmd("100.00"))
	require.NoError(t, err)

	failed, err := engine.Fail(ctx, tx.ID, "insufficient funds")
	require.NoError(t, err)

	assert.Equal(t, models.StatusFailed, failed.Status)
	assert.Equal(t, "insufficient funds", failed.FailureReason)
	require.NotNil(t, failed.ProcessedAt)
}

func TestUpdateStatusIsPermissive(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	ctx := context.Background()

	tx, err := engine.CreateTransaction(ctx, depositCmd("100.00"))
	require.NoError(t, err)
	_, err = engine.Complete(ctx, tx.ID)
	require.NoError(t, err)

	// A raw status write may move a COMPLETED record back to PENDING;
	// ProcessedAt stays put once set.
	reopened, err := engine.UpdateStatus(ctx, cqrs.UpdateTransactionStatusCommand{
		TransactionID: tx.ID,
		Status:        models.StatusPending,
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, reopened.Status)
	assert.NotNil(t, reopened.ProcessedAt)
}

func TestUpdateStatusRejectsUnknownStatus(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	_, err := engine.UpdateStatus(context.Background(), cqrs.UpdateTransactionStatusCommand{
		TransactionID: 1,
		Status:        "ARCHIVED",
	})
	assert.True(t, models.IsValidation(err))
}

func TestUpdateStatusNotFound(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	_, err := engine.Complete(context.Background(), 999)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestCancelGuardsCompleted(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	ctx := context.Background()

	tx, err := engine.CreateTransaction(ctx, depositCmd("100.00"))
	require.NoError(t, err)

	cancelled, err := engine.Cancel(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, cancelled.Status)

	done, err := engine.CreateTransaction(ctx, depositCmd("50.00"))
	require.NoError(t, err)
	_, err = engine.Complete(ctx, done.ID)
	require.NoError(t, err)

	_, err = engine.Cancel(ctx, done.ID)
	assert.ErrorIs(t, err, models.ErrInvalidOperation)

	// The guard rejection leaves the record untouched.
	current, err := store.GetByID(ctx, done.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, current.Status)
}

func TestDeleteGuardsCompleted(t *testing.T) {
	engine, store, pub := newTestEngine(t)
	ctx := context.Background()

	tx, err := engine.CreateTransaction(ctx, depositCmd("100.00"))
	require.NoError(t, err)
	require.NoError(t, engine.Delete(ctx, tx.ID))
	_, err = store.GetByID(ctx, tx.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.Contains(t, pub.types(), "transaction.deleted")

	done, err := engine.CreateTransaction(ctx, depositCmd("50.00"))
	require.NoError(t, err)
	_, err = engine.Complete(ctx, done.ID)
	require.NoError(t, err)

	err = engine.Delete(ctx, done.ID)
	assert.ErrorIs(t, err, models.ErrInvalidOperation)
	_, err = store.GetByID(ctx, done.ID)
	require.NoError(t, err)
}

func TestClaimPendingIsIdempotent(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	ctx := context.Background()

	tx, err := engine.CreateTransaction(ctx, depositCmd("100.00"))
	require.NoError(t, err)

	claimed, err := engine.ClaimPending(ctx, tx.ID)
	require.NoError(t, err)
	assert.True(t, claimed)

	again, err := engine.ClaimPending(ctx, tx.ID)
	require.NoError(t, err)
	assert.False(t, again)

	_, err = engine.ClaimPending(ctx, 999)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestClaimPendingSingleWinnerUnderConcurrency(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	ctx := context.Background()

	tx, err := engine.CreateTransaction(ctx, depositCmd("100.00"))
	require.NoError(t, err)

	const claimers = 20
	var wg sync.WaitGroup
	wins := make(chan bool, claimers)
	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			claimed, err := engine.ClaimPending(ctx, tx.ID)
			assert.NoError(t, err)
			wins <- claimed
		}()
	}
	wg.Wait()
	close(wins)

	var winners int
	for claimed := range wins {
		if claimed {
			winners++
		}
	}
	assert.Equal(t, 1, winners)
}

func TestCreateReferencesAreUnique(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	ctx := context.Background()

	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		tx, err := engine.CreateTransaction(ctx, depositCmd("1.00"))
		require.NoError(t, err)
		_, dup := seen[tx.Reference]
		require.False(t, dup, "duplicate reference %s", tx.Reference)
		seen[tx.Reference] = struct{}{}
	}
}
