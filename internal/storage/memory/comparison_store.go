package memory

import (
	"context"
	"sort"
	"sync"

	"pert-dashboard/internal/domain"
	"pert-dashboard/internal/storage"
)

// ComparisonStore is an in-memory implementation of storage.ComparisonStore.
type ComparisonStore struct {
	mu      sync.RWMutex
	records []domain.ComparisonRecord
	ids     map[string]struct{}
}

// NewComparisonStore creates a new in-memory comparison store.
func NewComparisonStore() *ComparisonStore {
	return &ComparisonStore{
		ids: make(map[string]struct{}),
	}
}

// Insert appends a record. Returns ErrDuplicateKey if the record id exists.
func (s *ComparisonStore) Insert(_ context.Context, r *domain.ComparisonRecord) error {
	if r == nil || r.ID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.ids[r.ID]; exists {
		return storage.ErrDuplicateKey
	}
	s.ids[r.ID] = struct{}{}
	s.records = append(s.records, r.Clone())
	return nil
}

// Recent returns up to limit records, newest first.
func (s *ComparisonStore) Recent(_ context.Context, limit int) ([]*domain.ComparisonRecord, error) {
	limit = storage.NormalizeLimit(limit)

	s.mu.RLock()
	result := make([]*domain.ComparisonRecord, 0, len(s.records))
	for i := len(s.records) - 1; i >= 0; i-- {
		c := s.records[i].Clone()
		result = append(result, &c)
	}
	s.mu.RUnlock()

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

var _ storage.ComparisonStore = (*ComparisonStore)(nil)
