package transaction

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory implementation of Store for dev/test use.
// Records are held in insert order; ids are sequential starting at 1.
type MemoryStore struct {
	mu     sync.RWMutex
	nextID int64
	rows   []*ScoredTransaction
}

// NewMemoryStore creates an in-memory transaction store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{nextID: 1}
}

func (s *MemoryStore) Insert(ctx context.Context, tx *ScoredTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	tx.ID = s.nextID
	s.nextID++
	tx.CreatedAt = now
	tx.UpdatedAt = now

	cp := *tx
	cp.FraudReasons = append([]string(nil), tx.FraudReasons...)
	s.rows = append(s.rows, &cp)
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id int64) (*ScoredTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, row := range s.rows {
		if row.ID == id {
			cp := *row
			cp.FraudReasons = append([]string(nil), row.FraudReasons...)
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) List(ctx context.Context, f Filter) ([]*ScoredTransaction, int, error) {
	f.normalize()

	s.mu.RLock()
	defer s.mu.RUnlock()

	// Newest first
	var matched []*ScoredTransaction
	for i := len(s.rows) - 1; i >= 0; i-- {
		if s.matches(s.rows[i], f) {
			matched = append(matched, s.rows[i])
		}
	}

	total := len(matched)
	if f.Offset >= total {
		return []*ScoredTransaction{}, total, nil
	}

	end := f.Offset + f.Limit
	if end > total {
		end = total
	}

	page := make([]*ScoredTransaction, 0, end-f.Offset)
	for _, row := range matched[f.Offset:end] {
		cp := *row
		cp.FraudReasons = append([]string(nil), row.FraudReasons...)
		page = append(page, &cp)
	}
	return page, total, nil
}

func (s *MemoryStore) matches(row *ScoredTransaction, f Filter) bool {
	if f.CustomerID != "" && row.CustomerID != f.CustomerID {
		return false
	}
	if f.Status != "" && row.Status != f.Status {
		return false
	}
	if f.MinAmount > 0 && row.Amount < f.MinAmount {
		return false
	}
	if f.MaxAmount > 0 && row.Amount > f.MaxAmount {
		return false
	}
	if f.FraudOnly && !row.FraudPrediction {
		return false
	}
	return true
}

// Migrate is a no-op for the in-memory store.
func (s *MemoryStore) Migrate(ctx context.Context) error { return nil }

// Ping always succeeds for the in-memory store.
func (s *MemoryStore) Ping(ctx context.Context) error { return nil }
