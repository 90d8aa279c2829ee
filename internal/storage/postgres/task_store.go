package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"pert-dashboard/internal/domain"
	"pert-dashboard/internal/storage"
)

// TaskStore implements storage.TaskStore using PostgreSQL.
type TaskStore struct {
	pool *Pool
}

// NewTaskStore creates a new TaskStore.
func NewTaskStore(pool *Pool) *TaskStore {
	return &TaskStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TaskStore = (*TaskStore)(nil)

const taskColumns = `id, optimistic, most_likely, pessimistic, dependencies`

// Insert adds a new task. Returns ErrDuplicateKey if the id exists.
func (s *TaskStore) Insert(ctx context.Context, t *domain.Task) (err error) {
	if t == nil || t.ID == "" {
		return storage.ErrInvalidInput
	}
	start := time.Now()
	defer func() { observe("task_insert", start, err) }()

	query := `
		INSERT INTO tasks (` + taskColumns + `)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err = s.pool.Exec(ctx, query, t.ID, t.Optimistic, t.MostLikely, t.Pessimistic, dependencies(t))
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

// Upsert inserts the task or replaces the existing one.
func (s *TaskStore) Upsert(ctx context.Context, t *domain.Task) (err error) {
	if t == nil || t.ID == "" {
		return storage.ErrInvalidInput
	}
	start := time.Now()
	defer func() { observe("task_upsert", start, err) }()

	query := `
		INSERT INTO tasks (` + taskColumns + `)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			optimistic = EXCLUDED.optimistic,
			most_likely = EXCLUDED.most_likely,
			pessimistic = EXCLUDED.pessimistic,
			dependencies = EXCLUDED.dependencies,
			updated_at = NOW()
	`

	_, err = s.pool.Exec(ctx, query, t.ID, t.Optimistic, t.MostLikely, t.Pessimistic, dependencies(t))
	if err != nil {
		return fmt.Errorf("upsert task: %w", err)
	}
	return nil
}

// Get retrieves a task by id. Returns ErrNotFound if not exists.
func (s *TaskStore) Get(ctx context.Context, id string) (_ *domain.Task, err error) {
	start := time.Now()
	defer func() { observe("task_get", start, err) }()

	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1`

	t, err := scanTask(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

// Delete removes a task by id. Returns ErrNotFound if not exists.
func (s *TaskStore) Delete(ctx context.Context, id string) (err error) {
	start := time.Now()
	defer func() { observe("task_delete", start, err) }()

	tag, err := s.pool.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// List returns all tasks ordered by id ASC.
func (s *TaskStore) List(ctx context.Context) (_ []*domain.Task, err error) {
	start := time.Now()
	defer func() { observe("task_list", start, err) }()

	rows, err := s.pool.Query(ctx, `SELECT `+taskColumns+` FROM tasks ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return tasks, nil
}

// dependencies returns a non-nil slice so the column is never NULL.
func dependencies(t *domain.Task) []string {
	if t.Dependencies == nil {
		return []string{}
	}
	return t.Dependencies
}

// scanTask scans a single row into Task.
func scanTask(row pgx.Row) (*domain.Task, error) {
	var t domain.Task
	if err := row.Scan(&t.ID, &t.Optimistic, &t.MostLikely, &t.Pessimistic, &t.Dependencies); err != nil {
		return nil, err
	}
	return &t, nil
}
