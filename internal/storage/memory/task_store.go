package memory

import (
	"context"
	"sort"
	"sync"

	"pert-dashboard/internal/domain"
	"pert-dashboard/internal/storage"
)

// TaskStore is an in-memory implementation of storage.TaskStore.
type TaskStore struct {
	mu    sync.RWMutex
	tasks map[string]domain.Task // keyed by task id
}

// NewTaskStore creates a new in-memory task store.
func NewTaskStore() *TaskStore {
	return &TaskStore{
		tasks: make(map[string]domain.Task),
	}
}

// Insert adds a new task. Returns ErrDuplicateKey if the id exists.
func (s *TaskStore) Insert(_ context.Context, t *domain.Task) error {
	if t == nil || t.ID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[t.ID]; exists {
		return storage.ErrDuplicateKey
	}
	s.tasks[t.ID] = t.Clone()
	return nil
}

// Upsert inserts the task or replaces the existing one.
func (s *TaskStore) Upsert(_ context.Context, t *domain.Task) error {
	if t == nil || t.ID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.tasks[t.ID] = t.Clone()
	return nil
}

// Get retrieves a task by id. Returns ErrNotFound if not exists.
func (s *TaskStore) Get(_ context.Context, id string) (*domain.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, exists := s.tasks[id]
	if !exists {
		return nil, storage.ErrNotFound
	}
	c := t.Clone()
	return &c, nil
}

// Delete removes a task by id. Returns ErrNotFound if not exists.
func (s *TaskStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[id]; !exists {
		return storage.ErrNotFound
	}
	delete(s.tasks, id)
	return nil
}

// List returns all tasks ordered by id ASC.
func (s *TaskStore) List(_ context.Context) ([]*domain.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		c := t.Clone()
		result = append(result, &c)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].ID < result[j].ID
	})
	return result, nil
}

var _ storage.TaskStore = (*TaskStore)(nil)
