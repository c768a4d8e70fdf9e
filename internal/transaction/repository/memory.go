package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/graphbank/backoffice/internal/models"
)

// MemoryStore is a mutex-guarded in-memory Store. It backs tests and local
// runs without Postgres; all invariants of the Store contract hold.
type MemoryStore struct {
	mu     sync.Mutex
	nextID int64
	byID   map[int64]*models.Transaction
	byRef  map[string]int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nextID: 1,
		byID:   make(map[int64]*models.Transaction),
		byRef:  make(map[string]int64),
	}
}

func (s *MemoryStore) Create(ctx context.Context, tx *models.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byRef[tx.Reference]; taken {
		return models.ErrDuplicateReference
	}
	tx.ID = s.nextID
	s.nextID++
	s.byID[tx.ID] = tx.Clone()
	s.byRef[tx.Reference] = tx.ID
	return nil
}

func (s *MemoryStore) GetByID(ctx context.Context, id int64) (*models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.byID[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return tx.Clone(), nil
}

func (s *MemoryStore) GetByReference(ctx context.Context, reference string) (*models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byRef[reference]
	if !ok {
		return nil, models.ErrNotFound
	}
	return s.byID[id].Clone(), nil
}

func (s *MemoryStore) ExistsByReference(ctx context.Context, reference string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.byRef[reference]
	return ok, nil
}

func (s *MemoryStore) List(ctx context.Context, filter Filter) ([]models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	matches := []models.Transaction{}
	for _, tx := range s.byID {
		if filter.matches(tx) {
			matches = append(matches, *tx.Clone())
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].CreatedAt.Equal(matches[j].CreatedAt) {
			return matches[i].ID > matches[j].ID
		}
		return matches[i].CreatedAt.After(matches[j].CreatedAt)
	})
	return matches, nil
}

func (s *MemoryStore) Update(ctx context.Context, id int64, fn func(*models.Transaction) error) (*models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.byID[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	working := current.Clone()
	if err := fn(working); err != nil {
		return nil, err
	}
	finalize(working, time.Now().UTC())
	s.byID[id] = working
	return working.Clone(), nil
}

func (s *MemoryStore) Delete(ctx context.Context, id int64, guard func(*models.Transaction) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.byID[id]
	if !ok {
		return models.ErrNotFound
	}
	if err := guard(current.Clone()); err != nil {
		return err
	}
	delete(s.byRef, current.Reference)
	delete(s.byID, id)
	return nil
}

func (s *MemoryStore) CountByUserAndStatus(ctx context.Context, userID int64, status models.TransactionStatus) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int64
	for _, tx := range s.byID {
		if tx.UserID == userID && tx.Status == status {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) SumByUserAndType(ctx context.Context, userID int64, txType models.TransactionType) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := decimal.Zero
	for _, tx := range s.byID {
		if tx.UserID == userID && tx.Type == txType && tx.Status == models.StatusCompleted {
			total = total.Add(tx.Amount)
		}
	}
	return total, nil
}

func (s *MemoryStore) SumDebitsByAccount(ctx context.Context, accountID int64) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := decimal.Zero
	for _, tx := range s.byID {
		if tx.FromAccountID != nil && *tx.FromAccountID == accountID && tx.Status == models.StatusCompleted {
			total = total.Add(tx.Amount)
		}
	}
	return total, nil
}

func (s *MemoryStore) SumCreditsByAccount(ctx context.Context, accountID int64) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := decimal.Zero
	for _, tx := range s.byID {
		if tx.ToAccountID != nil && *tx.ToAccountID == accountID && tx.Status == models.StatusCompleted {
			total = total.Add(tx.Amount)
		}
	}
	return total, nil
}

func (f Filter) matches(tx *models.Transaction) bool {
	if f.UserID != nil && tx.UserID != *f.UserID {
		return false
	}
	if f.AccountID != nil {
		from := tx.FromAccountID != nil && *tx.FromAccountID == *f.AccountID
		to := tx.ToAccountID != nil && *tx.ToAccountID == *f.AccountID
		if !from && !to {
			return false
		}
	}
	if f.Status != nil && tx.Status != *f.Status {
		return false
	}
	if f.Type != nil && tx.Type != *f.Type {
		return false
	}
	if f.CreatedFrom != nil && tx.CreatedAt.Before(*f.CreatedFrom) {
		return false
	}
	if f.CreatedTo != nil && tx.CreatedAt.After(*f.CreatedTo) {
		return false
	}
	if f.CreatedBefore != nil && !tx.CreatedAt.Before(*f.CreatedBefore) {
		return false
	}
	return true
}
