package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"pert-dashboard/internal/domain"
	"pert-dashboard/internal/storage"
)

// EventStore implements storage.EventStore using PostgreSQL.
type EventStore struct {
	pool *Pool
}

// NewEventStore creates a new EventStore.
func NewEventStore(pool *Pool) *EventStore {
	return &EventStore{pool: pool}
}

// Compile-time interface check.
var _ storage.EventStore = (*EventStore)(nil)

// Insert appends a record. Returns ErrDuplicateKey if the record id exists.
func (s *EventStore) Insert(ctx context.Context, r *domain.EventRecord) (err error) {
	if r == nil || r.ID == "" {
		return storage.ErrInvalidInput
	}
	start := time.Now()
	defer func() { observe("event_insert", start, err) }()

	query := `
		INSERT INTO update_events (
			id, kind, message, details, data, event_ts, received_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err = s.pool.Exec(ctx, query,
		r.ID,
		string(r.Event.Kind),
		r.Event.Message,
		nullableText(r.Event.Details),
		nullableJSON(r.Event.Data),
		r.Event.Timestamp,
		r.ReceivedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert update event: %w", err)
	}
	return nil
}

// Recent returns up to limit records, newest first.
func (s *EventStore) Recent(ctx context.Context, limit int) (_ []*domain.EventRecord, err error) {
	start := time.Now()
	defer func() { observe("event_recent", start, err) }()

	query := `
		SELECT id::text, kind, message, details, data, event_ts, received_at
		FROM update_events
		ORDER BY received_at DESC, seq DESC
		LIMIT $1
	`

	rows, err := s.pool.Query(ctx, query, storage.NormalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query recent update events: %w", err)
	}
	defer rows.Close()

	var records []*domain.EventRecord
	for rows.Next() {
		r, err := scanEventRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan update event: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate update events: %w", err)
	}
	return records, nil
}

// Count returns the number of archived records.
func (s *EventStore) Count(ctx context.Context) (_ int, err error) {
	start := time.Now()
	defer func() { observe("event_count", start, err) }()

	var count int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM update_events`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count update events: %w", err)
	}
	return count, nil
}

// scanEventRecord scans a single row into EventRecord.
func scanEventRecord(row pgx.Row) (*domain.EventRecord, error) {
	var (
		r       domain.EventRecord
		kind    string
		details *string
		data    []byte
	)

	err := row.Scan(&r.ID, &kind, &r.Event.Message, &details, &data, &r.Event.Timestamp, &r.ReceivedAt)
	if err != nil {
		return nil, err
	}

	r.Event.Kind = domain.ParseEventKind(kind)
	if details != nil {
		r.Event.Details = *details
	}
	if len(data) > 0 {
		r.Event.Data = json.RawMessage(data)
	}
	r.Event.Timestamp = r.Event.Timestamp.UTC()
	r.ReceivedAt = r.ReceivedAt.UTC()
	return &r, nil
}

func nullableText(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// nullableJSON passes JSON as text so the jsonb column stores it verbatim.
func nullableJSON(data json.RawMessage) interface{} {
	if len(data) == 0 {
		return nil
	}
	return string(data)
}
