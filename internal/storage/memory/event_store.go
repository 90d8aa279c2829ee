package memory

import (
	"context"
	"sort"
	"sync"

	"pert-dashboard/internal/domain"
	"pert-dashboard/internal/storage"
)

// EventStore is an in-memory implementation of storage.EventStore.
type EventStore struct {
	mu      sync.RWMutex
	records []domain.EventRecord // insertion order
	ids     map[string]struct{}
}

// NewEventStore creates a new in-memory event store.
func NewEventStore() *EventStore {
	return &EventStore{
		ids: make(map[string]struct{}),
	}
}

// Insert appends a record. Returns ErrDuplicateKey if the record id exists.
func (s *EventStore) Insert(_ context.Context, r *domain.EventRecord) error {
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

// Recent returns up to limit records, newest first. Records with equal
// receive times are returned in reverse insertion order.
func (s *EventStore) Recent(_ context.Context, limit int) ([]*domain.EventRecord, error) {
	limit = storage.NormalizeLimit(limit)

	s.mu.RLock()
	result := make([]*domain.EventRecord, 0, len(s.records))
	for i := len(s.records) - 1; i >= 0; i-- {
		c := s.records[i].Clone()
		result = append(result, &c)
	}
	s.mu.RUnlock()

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].ReceivedAt.After(result[j].ReceivedAt)
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// Count returns the number of archived records.
func (s *EventStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), nil
}

var _ storage.EventStore = (*EventStore)(nil)
