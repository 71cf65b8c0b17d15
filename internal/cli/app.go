package cli

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aretw0/promptflow/internal/config"
	"github.com/aretw0/promptflow/pkg/adapters/file"
	"github.com/aretw0/promptflow/pkg/adapters/memory"
	"github.com/aretw0/promptflow/pkg/adapters/postgres"
	"github.com/aretw0/promptflow/pkg/adapters/redis"
	"github.com/aretw0/promptflow/pkg/adapters/sqlite"
	"github.com/aretw0/promptflow/pkg/domain"
	"github.com/aretw0/promptflow/pkg/editor"
	"github.com/aretw0/promptflow/pkg/nodes"
	"github.com/aretw0/promptflow/pkg/observability"
	"github.com/aretw0/promptflow/pkg/persistence/middleware"
	"github.com/aretw0/promptflow/pkg/ports"
	"github.com/aretw0/promptflow/pkg/runner"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	backend "github.com/redis/go-redis/v9"
)

// App holds the wired components for one process.
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Registry *nodes.Registry
	Graphs   ports.GraphStore
	Jobs     ports.JobStore
	Queue    ports.TaskQueue
	Inputs   ports.InputChannel
	Locker   ports.DistributedLocker
	Runner   *runner.JobRunner
	Editor   *editor.Editor

	// Metrics is nil unless metrics are enabled.
	Metrics  *observability.Metrics
	Gatherer prometheus.Gatherer

	rdb     *backend.Client
	closers []func() error
}

// NewApp builds stores, queue, runner and editor as cfg selects. hooks are
// installed on the runner next to the metrics and tracing hooks.
func NewApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, hooks ...domain.LifecycleHooks) (*App, error) {
	a := &App{Config: cfg, Logger: logger}

	svc := nodes.DefaultServices()
	svc.Logger = logger
	if cfg.OpenAI.APIKey != "" {
		svc.LLM = nodes.NewOpenAIClient(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL)
	}
	a.Registry = nodes.Default(svc)

	if err := a.openStores(ctx); err != nil {
		a.Close()
		return nil, err
	}
	a.openQueue()

	all := observability.SpanEvents()
	if cfg.Log.Level == "debug" {
		all = all.Merge(debugHooks(logger))
	}
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		m, err := observability.NewMetrics(reg)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Metrics, a.Gatherer = m, reg
		all = all.Merge(m.Hooks())
	}
	for _, h := range hooks {
		all = all.Merge(h)
	}

	a.Runner = runner.New(runner.Deps{
		Graphs:  a.Graphs,
		Jobs:    a.Jobs,
		Queue:   a.Queue,
		Inputs:  a.Inputs,
		Factory: a.Registry,
	},
		runner.WithLogger(logger),
		runner.WithHooks(all),
		runner.WithTracer(observability.Tracer(nil)),
		runner.WithMaxInputSize(cfg.Input.MaxSize),
	)
	a.Editor = editor.New(a.Graphs, a.Registry, editor.WithLocker(a.Locker), editor.WithLogger(logger))
	return a, nil
}

// redis returns the client shared by the redis store and queue.
func (a *App) redis() *backend.Client {
	if a.rdb == nil {
		a.rdb = redis.NewClient(a.Config.Redis.Addr, a.Config.Redis.Password, a.Config.Redis.DB)
		a.closers = append(a.closers, a.rdb.Close)
	}
	return a.rdb
}

func (a *App) openStores(ctx context.Context) error {
	cfg := a.Config
	switch cfg.Store.Driver {
	case "memory":
		a.Graphs, a.Jobs = memory.NewGraphStore(), memory.NewJobStore()
	case "file":
		a.Graphs, a.Jobs = file.NewGraphStore(cfg.Store.Path), memory.NewJobStore()
	case "sqlite":
		db, err := sqlite.Open(ctx, cfg.Store.Path)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, db.Close)
		a.Graphs, a.Jobs = sqlite.NewGraphStore(db), sqlite.NewJobStore(db)
	case "postgres":
		pool, err := postgres.Connect(ctx, cfg.Store.DSN)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() error { pool.Close(); return nil })
		a.Graphs, a.Jobs = postgres.NewGraphStore(pool), postgres.NewJobStore(pool)
	case "redis":
		client := a.redis()
		a.Graphs, a.Jobs = redis.NewGraphStore(client), redis.NewJobStore(client)
	default:
		return fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
	return a.protectJobs()
}

// protectJobs wraps the job store with output masking and encryption.
func (a *App) protectJobs() error {
	var mws []middleware.Middleware
	if labels := a.Config.Store.MaskLabels; len(labels) > 0 {
		mw, err := middleware.NewPIIMiddleware(labels)
		if err != nil {
			return err
		}
		mws = append(mws, mw)
	}
	if raw := a.Config.Store.EncryptionKey; raw != "" {
		key, err := base64.StdEncoding.DecodeString(raw)
		if err != nil {
			return fmt.Errorf("store encryption key: %w", err)
		}
		mw, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: key})
		if err != nil {
			return fmt.Errorf("store encryption key: %w", err)
		}
		mws = append(mws, mw)
	}
	a.Jobs = middleware.Chain(a.Jobs, mws...)
	return nil
}

func (a *App) openQueue() {
	cfg := a.Config
	policy := ports.RetryPolicy{MaxAttempts: cfg.Queue.MaxAttempts, Backoff: cfg.Queue.Backoff}
	if cfg.Queue.Driver == "redis" {
		client := a.redis()
		a.Queue = redis.NewQueue(client,
			redis.WithWorkers(cfg.Queue.Workers),
			redis.WithRetryPolicy(policy),
			redis.WithQueueLogger(a.Logger),
		)
		a.Inputs = redis.NewBroker(client)
		a.Locker = redis.NewLocker(client, "promptflow:lock:")
		return
	}
	a.Queue = memory.NewQueue(
		memory.WithWorkers(cfg.Queue.Workers),
		memory.WithRetryPolicy(policy),
		memory.WithQueueLogger(a.Logger),
	)
	a.Inputs = memory.NewBroker()
	a.Locker = memory.NewLocker()
}

// Close releases database handles and connections.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}
