package clickhouse

import (
	"context"
	"fmt"
	"time"

	"pert-dashboard/internal/domain"
	"pert-dashboard/internal/storage"
)

// ComparisonStore implements storage.ComparisonStore using ClickHouse.
type ComparisonStore struct {
	conn *Conn
}

// NewComparisonStore creates a new ComparisonStore.
func NewComparisonStore(conn *Conn) *ComparisonStore {
	return &ComparisonStore{conn: conn}
}

// Compile-time interface check.
var _ storage.ComparisonStore = (*ComparisonStore)(nil)

// Insert appends a record. Returns ErrDuplicateKey if the record id exists.
// MergeTree does not enforce uniqueness, so the id is checked first.
func (s *ComparisonStore) Insert(ctx context.Context, r *domain.ComparisonRecord) (err error) {
	if r == nil || r.ID == "" {
		return storage.ErrInvalidInput
	}
	start := time.Now()
	defer func() { observe("comparison_insert", start, err) }()

	exists, err := s.exists(ctx, r.ID)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if exists {
		return storage.ErrDuplicateKey
	}

	var delta domain.ComparisonDelta
	if r.Result.Comparison != nil {
		delta = *r.Result.Comparison
	}
	criticalPath := r.Result.Classical.CriticalPath
	if criticalPath == nil {
		criticalPath = []string{}
	}

	query := `
		INSERT INTO comparison_results (
			id, created_at, task_count,
			project_duration, critical_path,
			mean_duration, std_dev, p50, p90,
			difference, percentage_diff
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	err = s.conn.Exec(ctx, query,
		r.ID, r.CreatedAt.UTC(), uint32(r.TaskCount),
		r.Result.Classical.ProjectDuration, criticalPath,
		r.Result.MonteCarlo.MeanDuration, r.Result.MonteCarlo.StdDev,
		r.Result.MonteCarlo.Percentiles.P50, r.Result.MonteCarlo.Percentiles.P90,
		delta.Difference, delta.PercentageDiff,
	)
	if err != nil {
		return fmt.Errorf("insert comparison result: %w", err)
	}
	return nil
}

// Recent returns up to limit records, newest first.
func (s *ComparisonStore) Recent(ctx context.Context, limit int) (_ []*domain.ComparisonRecord, err error) {
	start := time.Now()
	defer func() { observe("comparison_recent", start, err) }()

	query := `
		SELECT id, created_at, task_count,
			project_duration, critical_path,
			mean_duration, std_dev, p50, p90,
			difference, percentage_diff
		FROM comparison_results
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`

	rows, err := s.conn.Query(ctx, query, storage.NormalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query recent comparisons: %w", err)
	}
	defer rows.Close()

	var records []*domain.ComparisonRecord
	for rows.Next() {
		var (
			r         domain.ComparisonRecord
			taskCount uint32
			delta     domain.ComparisonDelta
		)
		err := rows.Scan(
			&r.ID, &r.CreatedAt, &taskCount,
			&r.Result.Classical.ProjectDuration, &r.Result.Classical.CriticalPath,
			&r.Result.MonteCarlo.MeanDuration, &r.Result.MonteCarlo.StdDev,
			&r.Result.MonteCarlo.Percentiles.P50, &r.Result.MonteCarlo.Percentiles.P90,
			&delta.Difference, &delta.PercentageDiff,
		)
		if err != nil {
			return nil, fmt.Errorf("scan comparison result: %w", err)
		}
		r.TaskCount = int(taskCount)
		r.CreatedAt = r.CreatedAt.UTC()
		r.Result.Comparison = &delta
		records = append(records, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comparison results: %w", err)
	}
	return records, nil
}

func (s *ComparisonStore) exists(ctx context.Context, id string) (bool, error) {
	var count uint64
	err := s.conn.QueryRow(ctx, `SELECT count() FROM comparison_results WHERE id = ?`, id).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
