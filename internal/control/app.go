package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/vietddude/erpsync/internal/core/config"
	"github.com/vietddude/erpsync/internal/core/worker"
	"github.com/vietddude/erpsync/internal/indexing/drain"
	"github.com/vietddude/erpsync/internal/indexing/health"
	"github.com/vietddude/erpsync/internal/indexing/search"
	"github.com/vietddude/erpsync/internal/infra/storage"
	"github.com/vietddude/erpsync/internal/infra/storage/memory"
	"github.com/vietddude/erpsync/internal/infra/storage/postgres"
	"github.com/vietddude/erpsync/internal/mutation"

	redisclient "github.com/vietddude/erpsync/internal/infra/redis"
)

// App owns the storage, index and background workers of erpsync.
type App struct {
	cfg          config.AppConfig
	db           *postgres.DB
	redisClient  *redisclient.Client
	records      storage.RecordRepository
	queue        storage.IndexQueueRepository
	index        search.Index
	mutations    *mutation.Service
	drainer      *drain.Drainer
	pruner       *worker.Pruner
	healthMon    *health.Monitor
	healthServer *health.Server
	log          *slog.Logger
}

// NewApp connects to the configured backends and wires all components.
// Without a database URL records live in memory; without a Redis URL the
// search index does too.
func NewApp(ctx context.Context, cfg config.AppConfig) (*App, error) {
	a := &App{
		cfg: cfg,
		log: slog.Default().With("component", "app"),
	}
	policy := cfg.Retry.Policy()
	checkers := make(map[string]health.Checker)

	// 1. Initialize Storage
	var storeRetryable func(error) bool
	if cfg.Database.URL != "" {
		db, err := postgres.NewDB(ctx, cfg.Database, policy)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		a.db = db

		if err := postgres.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, err
		}

		a.records = postgres.NewRecordRepo(db)
		a.queue = postgres.NewIndexQueueRepo(db)
		storeRetryable = postgres.IsRetryable
		checkers["postgres"] = db
		a.log.Info("Using PostgreSQL storage", "driver", cfg.Database.Driver)
	} else {
		store := memory.NewMemoryStorage()
		a.records = memory.NewRecordRepo(store)
		a.queue = memory.NewQueueRepo(store)
		a.log.Info("Using Memory storage")
	}

	// 2. Initialize Search Index
	if cfg.Redis.URL != "" {
		client, err := redisclient.NewClient(ctx, cfg.Redis, policy)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to init redis: %w", err)
		}
		a.redisClient = client
		a.index = redisclient.NewSearchIndex(client)
		checkers["redis"] = client
		a.log.Info("Using Redis search index")
	} else {
		a.index = search.NewMemoryIndex()
		a.log.Info("Using Memory search index")
	}

	// 3. Initialize Services
	a.mutations = mutation.NewService(mutation.Config{
		Records:   a.records,
		Queue:     a.queue,
		Policy:    policy,
		Retryable: storeRetryable,
		Logger:    slog.Default(),
	})
	a.drainer = drain.NewDrainer(cfg.Drain, a.queue, a.records, a.index, policy, storeRetryable, slog.Default())
	a.pruner = worker.NewPruner(cfg.Pruner, a.queue, slog.Default())

	// 4. Initialize Health
	a.healthMon = health.NewMonitor(checkers, a.queue, health.DefaultThresholds())
	a.healthServer = health.NewServer(a.healthMon, cfg.Server.Port, cfg.Server.GRPCPort)

	return a, nil
}

// Mutations returns the record write path.
func (a *App) Mutations() *mutation.Service { return a.mutations }

// Drainer returns the index drainer.
func (a *App) Drainer() *drain.Drainer { return a.drainer }

// Index returns the search index.
func (a *App) Index() search.Index { return a.index }

// Queue returns the index job queue.
func (a *App) Queue() storage.IndexQueueRepository { return a.queue }

// Health returns a fresh health report.
func (a *App) Health(ctx context.Context) health.HealthReport {
	return a.healthMon.CheckHealth(ctx)
}

// Start starts the health server, metrics collection and the index drain.
func (a *App) Start(ctx context.Context) error {
	// Start Health Server
	go func() {
		if err := a.healthServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("Health server failed", "error", err)
		}
	}()

	// Start DB Metrics Collector
	if a.db != nil {
		a.db.StartMetricsCollector(ctx)
	}

	// Start Index Drain
	go func() {
		if err := a.drainer.Run(ctx); err != nil {
			a.log.Error("Index drain failed", "error", err)
		}
	}()

	// Start Failed Job Pruner
	go a.pruner.Start(ctx)

	// Keep gRPC health in sync with the monitor
	go a.runHealthSync(ctx)

	return nil
}

func (a *App) runHealthSync(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	a.healthServer.SyncGRPC(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.healthServer.SyncGRPC(ctx)
		}
	}
}

// Stop stops the servers and releases connections.
func (a *App) Stop(ctx context.Context) error {
	a.log.Info("Stopping erpsync...")
	err := a.healthServer.Stop(ctx)
	a.Close()
	return err
}

// Close releases database and Redis connections.
func (a *App) Close() {
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.log.Warn("Failed to close Redis", "error", err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.Warn("Failed to close database", "error", err)
		}
	}
}
