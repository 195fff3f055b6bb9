package transaction

import (
	"context"
	"sync"

	"github.com/mbd888/fraudwatch/internal/idgen"
)

// MemoryStore is an in-memory implementation of Store for demo mode and tests.
type MemoryStore struct {
	mu  sync.RWMutex
	txs []*Transaction // append order = chronological
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Insert(ctx context.Context, tx *Transaction) (*Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *tx
	stored.ID = idgen.WithPrefix("txn_")
	s.txs = append(s.txs, &stored)

	out := stored
	return &out, nil
}

func (s *MemoryStore) ListRecent(ctx context.Context, limit int) ([]*Transaction, error) {
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.txs)
	if limit > n {
		limit = n
	}

	result := make([]*Transaction, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		cp := *s.txs[i]
		result = append(result, &cp)
	}
	return result, nil
}

func (s *MemoryStore) DeleteAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txs = nil
	return nil
}

func (s *MemoryStore) CountByRiskLevel(ctx context.Context) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[string]int)
	for _, tx := range s.txs {
		counts[tx.RiskLevel]++
	}
	return counts, nil
}
