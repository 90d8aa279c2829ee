package storage

import (
	"context"

	"pert-dashboard/internal/domain"
)

// TaskStore holds the working task set of a session.
type TaskStore interface {
	// Insert adds a new task. Returns ErrDuplicateKey if the id exists.
	Insert(ctx context.Context, t *domain.Task) error

	// Upsert inserts the task or replaces the existing one with the same id.
	Upsert(ctx context.Context, t *domain.Task) error

	// Get retrieves a task by id. Returns ErrNotFound if not exists.
	Get(ctx context.Context, id string) (*domain.Task, error)

	// Delete removes a task by id. Returns ErrNotFound if not exists.
	Delete(ctx context.Context, id string) error

	// List returns all tasks ordered by id ASC.
	List(ctx context.Context) ([]*domain.Task, error)
}

// EventStore is the append-only archive of received update events.
type EventStore interface {
	// Insert appends a record. Returns ErrDuplicateKey if the record id exists.
	Insert(ctx context.Context, r *domain.EventRecord) error

	// Recent returns up to limit records, newest first.
	Recent(ctx context.Context, limit int) ([]*domain.EventRecord, error)

	// Count returns the number of archived records.
	Count(ctx context.Context) (int, error)
}

// ComparisonStore is the append-only history of comparison results.
type ComparisonStore interface {
	// Insert appends a record. Returns ErrDuplicateKey if the record id exists.
	Insert(ctx context.Context, r *domain.ComparisonRecord) error

	// Recent returns up to limit records, newest first.
	Recent(ctx context.Context, limit int) ([]*domain.ComparisonRecord, error)
}
