// Package session owns the working task set and drives the analysis engine.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"pert-dashboard/internal/analysis"
	"pert-dashboard/internal/domain"
	"pert-dashboard/internal/storage"
	"pert-dashboard/internal/storage/memory"
)

// Options configures a Session.
type Options struct {
	Client      analysis.Client
	Tasks       storage.TaskStore       // defaults to an in-memory store
	Comparisons storage.ComparisonStore // optional history
	Logger      *log.Logger
	Now         func() time.Time
}

// Session holds the task set of one dashboard user. It is safe for
// concurrent use.
type Session struct {
	client      analysis.Client
	tasks       storage.TaskStore
	comparisons storage.ComparisonStore
	logger      *log.Logger
	now         func() time.Time

	mu             sync.RWMutex
	lastPert       *domain.PertResult
	lastComparison *domain.ComparisonResult
}

// New creates a Session.
func New(opts Options) (*Session, error) {
	if opts.Client == nil {
		return nil, errors.New("session: analysis client is required")
	}

	s := &Session{
		client:      opts.Client,
		tasks:       opts.Tasks,
		comparisons: opts.Comparisons,
		logger:      opts.Logger,
		now:         opts.Now,
	}
	if s.tasks == nil {
		s.tasks = memory.NewTaskStore()
	}
	if s.logger == nil {
		s.logger = log.New(io.Discard, "", 0)
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

// AddTask validates and adds a task. A task with an existing id is rejected.
func (s *Session) AddTask(ctx context.Context, t domain.Task) error {
	if err := t.Validate(); err != nil {
		return err
	}

	if err := s.tasks.Insert(ctx, &t); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			return &domain.ValidationError{TaskID: t.ID, Field: "id", Reason: "duplicate task id"}
		}
		return fmt.Errorf("add task %s: %w", t.ID, err)
	}
	return nil
}

// ReplaceTasks swaps the whole task set for tasks after validating it.
func (s *Session) ReplaceTasks(ctx context.Context, tasks []domain.Task) error {
	if err := domain.ValidateTasks(tasks); err != nil {
		return err
	}

	existing, err := s.tasks.List(ctx)
	if err != nil {
		return fmt.Errorf("list tasks: %w", err)
	}
	for _, t := range existing {
		if err := s.tasks.Delete(ctx, t.ID); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("remove task %s: %w", t.ID, err)
		}
	}
	for i := range tasks {
		if err := s.tasks.Upsert(ctx, &tasks[i]); err != nil {
			return fmt.Errorf("store task %s: %w", tasks[i].ID, err)
		}
	}
	return nil
}

// UpdateTask sends a modified task to the engine and, on success, replaces
// the local copy. The task must already exist in the session.
func (s *Session) UpdateTask(ctx context.Context, t domain.Task) (*domain.Ack, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if _, err := s.tasks.Get(ctx, t.ID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, &domain.ValidationError{TaskID: t.ID, Field: "id", Reason: "unknown task"}
		}
		return nil, fmt.Errorf("get task %s: %w", t.ID, err)
	}

	ack, err := s.client.UpdateTask(ctx, t)
	if err != nil {
		return nil, err
	}

	if err := s.tasks.Upsert(ctx, &t); err != nil {
		return nil, fmt.Errorf("store task %s: %w", t.ID, err)
	}
	s.logger.Printf("task %s updated: %s", t.ID, ack.Message)
	return ack, nil
}

// RemoveTask deletes a task. Returns storage.ErrNotFound for unknown ids.
func (s *Session) RemoveTask(ctx context.Context, id string) error {
	if err := s.tasks.Delete(ctx, id); err != nil {
		return fmt.Errorf("remove task %s: %w", id, err)
	}
	return nil
}

// Tasks returns the current task set ordered by id.
func (s *Session) Tasks(ctx context.Context) ([]domain.Task, error) {
	stored, err := s.tasks.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}

	tasks := make([]domain.Task, len(stored))
	for i, t := range stored {
		tasks[i] = *t
	}
	return tasks, nil
}

// Submit sends the task set to the engine.
func (s *Session) Submit(ctx context.Context) (*domain.Ack, error) {
	tasks, err := s.Tasks(ctx)
	if err != nil {
		return nil, err
	}
	return s.client.SetTasks(ctx, tasks)
}

// Analyze runs a combined PERT + simulation analysis and keeps the result.
func (s *Session) Analyze(ctx context.Context) (*domain.PertResult, error) {
	tasks, err := s.Tasks(ctx)
	if err != nil {
		return nil, err
	}

	result, err := s.client.RunPert(ctx, tasks)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.lastPert = result
	s.mu.Unlock()
	return result, nil
}

// Compare requests a classical vs Monte Carlo comparison, keeps it as the
// latest result and appends it to the comparison history if one is
// configured. A history write failure is logged, not returned.
func (s *Session) Compare(ctx context.Context) (*domain.ComparisonResult, error) {
	tasks, err := s.Tasks(ctx)
	if err != nil {
		return nil, err
	}

	result, err := s.client.ComparePert(ctx, tasks)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.lastComparison = result
	s.mu.Unlock()

	if s.comparisons != nil {
		record := &domain.ComparisonRecord{
			ID:        uuid.NewString(),
			TaskCount: len(tasks),
			Result:    result.Clone(),
			CreatedAt: s.now().UTC(),
		}
		if err := s.comparisons.Insert(ctx, record); err != nil {
			s.logger.Printf("record comparison: %v", err)
		}
	}
	return result, nil
}

// LastPert returns the most recent analysis result, or nil.
func (s *Session) LastPert() *domain.PertResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastPert
}

// LastComparison returns the most recent comparison result, or nil.
func (s *Session) LastComparison() *domain.ComparisonResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastComparison
}

// Comparisons returns up to limit recorded comparisons, newest first.
// Returns nil when no history is configured.
func (s *Session) Comparisons(ctx context.Context, limit int) ([]*domain.ComparisonRecord, error) {
	if s.comparisons == nil {
		return nil, nil
	}
	return s.comparisons.Recent(ctx, limit)
}
