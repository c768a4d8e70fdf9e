package settlement

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphbank/backoffice/internal/cqrs"
	"github.com/graphbank/backoffice/internal/logging"
	"github.com/graphbank/backoffice/internal/models"
	"github.com/graphbank/backoffice/internal/reference"
	"github.com/graphbank/backoffice/internal/transaction/command"
	"github.com/graphbank/backoffice/internal/transaction/repository"
)

// flakySettler fails references listed in failRefs and counts settle calls
// per transaction id.
type flakySettler struct {
	mu       sync.Mutex
	failRefs map[string]error
	settled  map[int64]int
}

func newFlakySettler() *flakySettler {
	return &flakySettler{
		failRefs: make(map[string]error),
		settled:  make(map[int64]int),
	}
}

func (s *flakySettler) Settle(ctx context.Context, tx *models.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settled[tx.ID]++
	if err, ok := s.failRefs[tx.Reference]; ok {
		return err
	}
	return nil
}

func newTestProcessor(t *testing.T, settler Settler, opts ...Option) (*Processor, *command.Engine, *repository.MemoryStore) {
	t.Helper()
	store := repository.NewMemoryStore()
	log := logging.New("transaction-service")
	engine := command.NewEngine(store, reference.NewGenerator(store, 0), nil, nil, nil, log)
	return NewProcessor(store, engine, settler, log, opts...), engine, store
}

func createPending(t *testing.T, engine *command.Engine, amount string) *models.Transaction {
	t.Helper()
	tx, err := engine.CreateTransaction(context.Background(), cqrs.CreateTransactionCommand{
		UserID: 1,
		Type:   models.TypeDeposit,
		Amount: decimal.RequireFromString(amount),
	})
	require.NoError(t, err)
	return tx
}

func TestProcessPendingEmptyBatch(t *testing.T) {
	processor, _, _ := newTestProcessor(t, &StubSettler{})

	result, err := processor.ProcessPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{}, result)
}

func TestProcessPendingCompletesBatch(t *testing.T) {
	processor, engine, store := newTestProcessor(t, &StubSettler{}, WithWorkers(3))
	ctx := context.Background()

	ids := make([]int64, 0, 5)
	for i := 0; i < 5; i++ {
		ids = append(ids, createPending(t, engine, "10.00").ID)
	}

	result, err := processor.ProcessPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, Result{Scanned: 5, Claimed: 5, Completed: 5}, result)

	for _, id := range ids {
		tx, err := store.GetByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.StatusCompleted, tx.Status)
		assert.NotNil(t, tx.ProcessedAt)
	}
}

func TestProcessPendingIsolatesItemFailures(t *testing.T) {
	settler := newFlakySettler()
	processor, engine, store := newTestProcessor(t, settler)
	ctx := context.Background()

	good := createPending(t, engine, "10.00")
	bad := createPending(t, engine, "20.00")
	settler.failRefs[bad.Reference] = fmt.Errorf("account unreachable")

	result, err := processor.ProcessPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, Result{Scanned: 2, Claimed: 2, Completed: 1, Failed: 1}, result)

	completed, err := store.GetByID(ctx, good.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, completed.Status)

	failed, err := store.GetByID(ctx, bad.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, failed.Status)
	assert.Equal(t, "Processing failed: account unreachable", failed.FailureReason)
	assert.NotNil(t, failed.ProcessedAt)
}

func TestProcessPendingSkipsNonPending(t *testing.T) {
	processor, engine, _ := newTestProcessor(t, &StubSettler{})
	ctx := context.Background()

	tx := createPending(t, engine, "10.00")
	_, err := engine.Cancel(ctx, tx.ID)
	require.NoError(t, err)

	result, err := processor.ProcessPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, Result{}, result)
}

func TestConcurrentBatchesSettleEachItemOnce(t *testing.T) {
	settler := newFlakySettler()
	processor, engine, store := newTestProcessor(t, settler, WithWorkers(4))
	ctx := context.Background()

	const items = 20
	for i := 0; i < items; i++ {
		createPending(t, engine, "10.00")
	}

	// Two passes racing over the same batch: the claim step must make
	// every transaction settle exactly once overall.
	var wg sync.WaitGroup
	results := make([]Result, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			result, err := processor.ProcessPending(ctx)
			assert.NoError(t, err)
			results[i] = result
		}(i)
	}
	wg.Wait()

	assert.Equal(t, items, results[0].Claimed+results[1].Claimed)
	assert.Equal(t, items, results[0].Completed+results[1].Completed)

	assert.Len(t, settler.settled, items)
	for id, n := range settler.settled {
		assert.Equal(t, 1, n, "transaction %d settled %d times", id, n)
	}

	completed := models.StatusCompleted
	done, err := store.List(ctx, repository.Filter{Status: &completed})
	require.NoError(t, err)
	assert.Len(t, done, items)
}

func TestProcessPendingPublishesBatchEvent(t *testing.T) {
	pub := &capturePublisher{}
	processor, engine, _ := newTestProcessor(t, &StubSettler{}, WithPublisher(pub))

	createPending(t, engine, "10.00")

	_, err := processor.ProcessPending(context.Background())
	require.NoError(t, err)

	require.Len(t, pub.events, 1)
	assert.Equal(t, "settlement.batch_finished", pub.events[0].Type)
}

type capturedEvent struct {
	Stream string
	Type   string
	Data   any
}

type capturePublisher struct {
	mu     sync.Mutex
	events []capturedEvent
}

func (p *capturePublisher) Publish(ctx context.Context, stream, eventType string, data any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, capturedEvent{Stream: stream, Type: eventType, Data: data})
	return nil
}
