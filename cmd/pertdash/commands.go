package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"pert-dashboard/internal/analysis"
	"pert-dashboard/internal/archive"
	"pert-dashboard/internal/domain"
	"pert-dashboard/internal/realtime"
	"pert-dashboard/internal/session"
	"pert-dashboard/internal/storage/migrations"
	pgstore "pert-dashboard/internal/storage/postgres"
	"pert-dashboard/internal/ui"
	"pert-dashboard/internal/web"
)

// requestTimeout bounds one-shot commands.
const requestTimeout = 2 * time.Minute

// env is the wiring shared by all commands.
type env struct {
	stores   *allStores
	session  *session.Session
	renderer *ui.Renderer
	cleanup  func()
}

func newEnv(ctx context.Context) (*env, error) {
	stores, cleanup, err := createStores(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}

	client := analysis.NewHTTPClient(cfg.Engine.BaseURL, analysis.WithTimeout(cfg.Engine.Timeout))
	sess, err := session.New(session.Options{
		Client:      client,
		Tasks:       stores.tasks,
		Comparisons: stores.comparisons,
		Logger:      newLogger("session"),
	})
	if err != nil {
		cleanup()
		return nil, err
	}

	return &env{
		stores:   stores,
		session:  sess,
		renderer: ui.NewRenderer(os.Stdout),
		cleanup:  cleanup,
	}, nil
}

// withEnv runs fn with a timeout-bound context and a fresh env. When
// --tasks is given the file replaces the stored task set first.
func withEnv(cmd *cobra.Command, fn func(ctx context.Context, e *env) error) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
	defer cancel()

	e, err := newEnv(ctx)
	if err != nil {
		return err
	}
	defer e.cleanup()

	if flagTasks != "" {
		tasks, err := loadTasks(flagTasks)
		if err != nil {
			return err
		}
		if err := e.session.ReplaceTasks(ctx, tasks); err != nil {
			return err
		}
	}
	return fn(ctx, e)
}

func addTasksFlag(cmd *cobra.Command) {
	cmd.Flags().StringVar(&flagTasks, "tasks", "", "Task file (YAML or JSON) replacing the stored task set")
}

func submitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit the task set to the engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, func(ctx context.Context, e *env) error {
				ack, err := e.session.Submit(ctx)
				if err != nil {
					return err
				}
				e.renderer.Ack(analysis.OpSetTasks, ack)
				return nil
			})
		},
	}
	addTasksFlag(cmd)
	return cmd
}

func analyzeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Run PERT and Monte Carlo analysis of the task set",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, func(ctx context.Context, e *env) error {
				result, err := e.session.Analyze(ctx)
				if err != nil {
					return err
				}
				e.renderer.Pert(result)
				return nil
			})
		},
	}
	addTasksFlag(cmd)
	return cmd
}

func compareCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compare",
		Short: "Compare classical PERT with Monte Carlo simulation",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, func(ctx context.Context, e *env) error {
				result, err := e.session.Compare(ctx)
				if err != nil {
					return err
				}
				e.renderer.Comparison(result)
				return nil
			})
		},
	}
	addTasksFlag(cmd)
	return cmd
}

func updateTaskCmd() *cobra.Command {
	var task domain.Task

	cmd := &cobra.Command{
		Use:   "update-task",
		Short: "Update one task on the engine and in the stored task set",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, func(ctx context.Context, e *env) error {
				ack, err := e.session.UpdateTask(ctx, task)
				if err != nil {
					return err
				}
				e.renderer.Ack(analysis.OpUpdateTask, ack)
				return nil
			})
		},
	}

	f := cmd.Flags()
	f.StringVar(&task.ID, "id", "", "Task id (required)")
	f.Float64Var(&task.Optimistic, "optimistic", 0, "Optimistic duration")
	f.Float64Var(&task.MostLikely, "most-likely", 0, "Most likely duration")
	f.Float64Var(&task.Pessimistic, "pessimistic", 0, "Pessimistic duration")
	f.StringSliceVar(&task.Dependencies, "depends-on", nil, "Comma-separated dependency ids")
	_ = cmd.MarkFlagRequired("id")
	addTasksFlag(cmd)
	return cmd
}

func tasksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "List the stored task set",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, func(ctx context.Context, e *env) error {
				tasks, err := e.session.Tasks(ctx)
				if err != nil {
					return err
				}
				e.renderer.Tasks(tasks)
				return nil
			})
		},
	}
	addTasksFlag(cmd)
	return cmd
}

func historyCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded comparison results, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, func(ctx context.Context, e *env) error {
				records, err := e.session.Comparisons(ctx, limit)
				if err != nil {
					return err
				}
				for _, r := range records {
					fmt.Printf("%s  %s  %d tasks\n", ui.Dim(r.CreatedAt.Format(time.RFC3339)), r.ID, r.TaskCount)
					e.renderer.Comparison(&r.Result)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "Number of records")
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations for the configured backends",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()
			logger := newLogger("migrate")

			if cfg.Storage.PostgresDSN == "" && cfg.Storage.ClickhouseDSN == "" {
				return errors.New("no database configured: set --postgres-dsn and/or --clickhouse-dsn")
			}

			if cfg.Storage.PostgresDSN != "" {
				pool, err := pgstore.NewPool(ctx, cfg.Storage.PostgresDSN)
				if err != nil {
					return err
				}
				defer pool.Close()

				applied, err := migrations.RunPostgresMigrations(ctx, pool)
				if err != nil {
					return err
				}
				logger.Printf("postgres: applied %d migration(s) %v", len(applied), applied)
			}

			if cfg.Storage.ClickhouseDSN != "" {
				conn, err := migrations.RunClickhouseMigrations(ctx, cfg.Storage.ClickhouseDSN)
				if err != nil {
					return err
				}
				conn.Close()
				logger.Println("clickhouse: migrations applied")
			}
			return nil
		},
	}
}

func watchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow the engine's push channel and serve the status API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd.Context())
		},
	}
	return cmd
}

func runWatch(parent context.Context) error {
	logger := newLogger("pertdash")

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	e, err := newEnv(ctx)
	if err != nil {
		return err
	}
	defer e.cleanup()

	var archiver *archive.Archiver
	if cfg.Archive.Enabled {
		archiver = archive.New(archive.Options{
			Store:      e.stores.events,
			BufferSize: cfg.Archive.BufferSize,
			Logger:     newLogger("archive"),
		})
	}

	feed := realtime.NewFeed(cfg.Feed.Capacity)
	manager := realtime.NewManager(realtime.Options{
		Config: realtime.Config{
			Endpoint:                cfg.Channel.Endpoint,
			ReconnectDelay:          cfg.Channel.ReconnectDelay,
			PingInterval:            cfg.Channel.PingInterval,
			WriteTimeout:            cfg.Channel.WriteTimeout,
			HandshakeTimeout:        cfg.Channel.HandshakeTimeout,
			SurfaceConnectionErrors: cfg.Channel.SurfaceConnectionErrors,
		},
		Feed:   feed,
		Logger: newLogger("realtime"),
		OnEvent: func(ev domain.UpdateEvent) {
			e.renderer.Event(ev)
			if archiver != nil {
				archiver.Publish(ev)
			}
		},
		OnStateChange: e.renderer.State,
	})

	// First signal cancels, a second one forces exit.
	done := make(chan struct{})
	defer close(done)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
			cancel()
		case <-done:
			return
		}
		select {
		case sig := <-sigCh:
			logger.Printf("Received second signal %v, forcing immediate shutdown", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Println("Graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return manager.Run(gctx) })
	if archiver != nil {
		g.Go(func() error { return archiver.Run(gctx) })
	}
	if cfg.HTTP.Addr != "" {
		opts := web.Options{
			Channel: manager,
			Feed:    feed,
			Session: e.session,
			Logger:  newLogger("web"),
		}
		if archiver != nil {
			opts.Events = e.stores.events
		}
		server := web.NewServer(opts)
		g.Go(func() error { return server.Run(gctx, cfg.HTTP.Addr) })
	}

	logger.Printf("Watching %s", cfg.Channel.Endpoint)
	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	if archiver != nil && archiver.Dropped() > 0 {
		logger.Printf("Archive dropped %d event(s)", archiver.Dropped())
	}
	logger.Println("Shutdown complete")
	return nil
}
