package settlement

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/graphbank/backoffice/internal/events"
	"github.com/graphbank/backoffice/internal/logging"
	"github.com/graphbank/backoffice/internal/metrics"
	"github.com/graphbank/backoffice/internal/models"
	"github.com/graphbank/backoffice/internal/transaction/repository"
)

// Settler performs the real-world effect of a transaction — moving funds
// between accounts. That collaborator lives in a separate account service;
// StubSettler stands in for it here.
type Settler interface {
	Settle(ctx context.Context, tx *models.Transaction) error
}

// StubSettler settles every transaction successfully after an optional
// simulated processing delay.
type StubSettler struct {
	Delay time.Duration
}

func (s *StubSettler) Settle(ctx context.Context, tx *models.Transaction) error {
	if s.Delay <= 0 {
		return nil
	}
	select {
	case <-time.After(s.Delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Engine is the slice of the lifecycle engine the processor drives.
type Engine interface {
	ClaimPending(ctx context.Context, id int64) (bool, error)
	Complete(ctx context.Context, id int64) (*models.Transaction, error)
	Fail(ctx context.Context, id int64, reason string) (*models.Transaction, error)
}

// Result summarises one batch pass. Item failures are contained here, never
// propagated to the caller.
type Result struct {
	Scanned   int
	Claimed   int
	Completed int
	Failed    int
}

// Processor drives PENDING transactions through settlement. Each item is
// claimed atomically (PENDING to PROCESSING) before the settler runs, so
// concurrent batch passes never process the same transaction twice.
type Processor struct {
	store     repository.Store
	engine    Engine
	settler   Settler
	publisher interface {
		Publish(ctx context.Context, stream, eventType string, data any) error
	}
	metrics *metrics.Metrics
	log     *logging.Logger
	workers int
}

type Option func(*Processor)

// WithWorkers sets the worker pool size for a batch pass.
func WithWorkers(n int) Option {
	return func(p *Processor) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithPublisher emits a settlement.batch_finished event after each pass.
func WithPublisher(pub interface {
	Publish(ctx context.Context, stream, eventType string, data any) error
}) Option {
	return func(p *Processor) { p.publisher = pub }
}

// WithMetrics records per-item outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Processor) { p.metrics = m }
}

func NewProcessor(store repository.Store, engine Engine, settler Settler, log *logging.Logger, opts ...Option) *Processor {
	p := &Processor{
		store:   store,
		engine:  engine,
		settler: settler,
		log:     log,
		workers: 4,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ProcessPending fetches all PENDING transactions and drives each through
// claim, settle, and a terminal-for-this-pass status. One item's failure is
// recorded on that transaction and never aborts the rest of the batch.
func (p *Processor) ProcessPending(ctx context.Context) (Result, error) {
	pending := models.StatusPending
	batch, err := p.store.List(ctx, repository.Filter{Status: &pending})
	if err != nil {
		return Result{}, fmt.Errorf("failed to fetch pending transactions: %w", err)
	}

	result := Result{Scanned: len(batch)}
	if len(batch) == 0 {
		return result, nil
	}

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		indexCh = make(chan int)
	)
	worker := func() {
		defer wg.Done()
		for idx := range indexCh {
			claimed, completed := p.processOne(ctx, batch[idx].ID)
			mu.Lock()
			if claimed {
				result.Claimed++
				if completed {
					result.Completed++
				} else {
					result.Failed++
				}
			}
			mu.Unlock()
		}
	}

	workers := p.workers
	if workers > len(batch) {
		workers = len(batch)
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go worker()
	}
	for i := range batch {
		indexCh <- i
	}
	close(indexCh)
	wg.Wait()

	p.log.WithService().WithField("claimed", result.Claimed).
		WithField("completed", result.Completed).
		WithField("failed", result.Failed).
		Info("settlement batch finished")

	if p.publisher != nil {
		if err := p.publisher.Publish(ctx, events.TransactionEventsStream, events.SettlementBatchFinished, events.SettlementBatchFinishedEvent{
			Claimed:   result.Claimed,
			Completed: result.Completed,
			Failed:    result.Failed,
		}); err != nil {
			p.log.WithService().Warnf("failed to publish settlement event: %v", err)
		}
	}
	return result, nil
}

// processOne reports whether the item was claimed and, if so, whether it
// completed. Any error past the claim marks the transaction FAILED.
func (p *Processor) processOne(ctx context.Context, id int64) (claimed, completed bool) {
	ok, err := p.engine.ClaimPending(ctx, id)
	if err != nil {
		// The record may have been deleted between scan and claim.
		if !errors.Is(err, models.ErrNotFound) {
			p.log.WithTransactionID(id).Warnf("failed to claim transaction: %v", err)
		}
		return false, false
	}
	if !ok {
		return false, false
	}

	tx, err := p.store.GetByID(ctx, id)
	if err != nil {
		p.fail(ctx, id, fmt.Sprintf("Processing failed: %v", err))
		return true, false
	}
	if err := p.settler.Settle(ctx, tx); err != nil {
		p.fail(ctx, id, fmt.Sprintf("Processing failed: %v", err))
		return true, false
	}
	if _, err := p.engine.Complete(ctx, id); err != nil {
		p.log.WithTransactionID(id).Errorf("failed to complete settled transaction: %v", err)
		return true, false
	}
	if p.metrics != nil {
		p.metrics.SettlementOutcomes.WithLabelValues("completed").Inc()
	}
	return true, true
}

func (p *Processor) fail(ctx context.Context, id int64, reason string) {
	if _, err := p.engine.Fail(ctx, id, reason); err != nil {
		p.log.WithTransactionID(id).Errorf("failed to record settlement failure: %v", err)
		return
	}
	if p.metrics != nil {
		p.metrics.SettlementOutcomes.WithLabelValues("failed").Inc()
	}
	p.log.WithTransactionID(id).WithField("reason", reason).Warn("transaction failed settlement")
}
