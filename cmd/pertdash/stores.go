package main

import (
	"context"
	"fmt"

	"pert-dashboard/internal/config"
	"pert-dashboard/internal/storage"
	chstore "pert-dashboard/internal/storage/clickhouse"
	"pert-dashboard/internal/storage/memory"
	pgstore "pert-dashboard/internal/storage/postgres"
)

// allStores holds the stores selected by configuration.
type allStores struct {
	tasks       storage.TaskStore
	events      storage.EventStore
	comparisons storage.ComparisonStore
}

// createStores opens the configured backends. Tasks and events live in
// memory or PostgreSQL; comparisons go to ClickHouse when a DSN is set.
func createStores(ctx context.Context, c config.StorageConfig) (*allStores, func(), error) {
	stores := &allStores{
		tasks:       memory.NewTaskStore(),
		events:      memory.NewEventStore(),
		comparisons: memory.NewComparisonStore(),
	}
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if c.Backend == config.BackendPostgres {
		pool, err := pgstore.NewPool(ctx, c.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to postgres: %w", err)
		}
		closers = append(closers, pool.Close)
		stores.tasks = pgstore.NewTaskStore(pool)
		stores.events = pgstore.NewEventStore(pool)
	}

	if c.ClickhouseDSN != "" {
		conn, err := chstore.NewConn(ctx, c.ClickhouseDSN)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("connect to clickhouse: %w", err)
		}
		closers = append(closers, func() { conn.Close() })
		stores.comparisons = chstore.NewComparisonStore(conn)
	}

	return stores, cleanup, nil
}
