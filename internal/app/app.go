package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rx3lixir/event-sync/internal/config"
	"github.com/rx3lixir/event-sync/internal/dataloader"
	"github.com/rx3lixir/event-sync/internal/db"
	"github.com/rx3lixir/event-sync/internal/dualwrite"
	"github.com/rx3lixir/event-sync/internal/models"
	"github.com/rx3lixir/event-sync/internal/opensearch"
	osclient "github.com/rx3lixir/event-sync/internal/opensearch/client"
	"github.com/rx3lixir/event-sync/internal/opensearch/indexing"
	"github.com/rx3lixir/event-sync/internal/opensearch/mapping"
	"github.com/rx3lixir/event-sync/internal/surrealdb"
	"github.com/rx3lixir/event-sync/internal/telemetry"
	"github.com/rx3lixir/event-sync/pkg/logger"
	"github.com/rx3lixir/event-sync/pkg/metrics"
	"github.com/rx3lixir/event-sync/pkg/resilience"
	sdb "github.com/surrealdb/surrealdb.go"
	"go.opentelemetry.io/otel/trace"
)

// ErrUnknownEntityType - тип сущности не зарегистрирован
var ErrUnknownEntityType = dataloader.ErrUnknownEntityType

// AuditLog - журнал синхронизации со всеми возможностями, нужными сервису
type AuditLog interface {
	dualwrite.SyncLog
	dataloader.FailedEntries
	CountLatestFailed(ctx context.Context, entityType string) (int, error)
}

// Stores - хранилища по типам сущностей
type Stores struct {
	EventsPrimary       dualwrite.PrimaryStore[models.Event]
	EventsSecondary     dualwrite.SecondaryStore[models.Event]
	CategoriesPrimary   dualwrite.PrimaryStore[models.Category]
	CategoriesSecondary dualwrite.SecondaryStore[models.Category]
	SyncLog             AuditLog
}

// entity - операции одного типа сущности без параметра типа
type entity struct {
	validate         func(ctx context.Context, id string) (any, error)
	primaryHealthy   func(ctx context.Context) bool
	secondaryHealthy func(ctx context.Context) bool
}

// App владеет подключениями и собранными компонентами сервиса
type App struct {
	cfg *config.Config
	log logger.Logger

	pool    *pgxpool.Pool
	sqlDB   *sql.DB
	surreal *sdb.DB
	tracing *telemetry.Provider

	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
	Breakers *resilience.Registry
	SyncLog  AuditLog
	Loader   *dataloader.Loader

	Events     *dualwrite.Repository[models.Event]
	Categories *dualwrite.Repository[models.Category]

	entities map[string]entity
	order    []string
}

// New подключается к обоим хранилищам и собирает сервис
func New(ctx context.Context, cfg *config.Config, log logger.Logger) (*App, error) {
	if log == nil {
		log = logger.NewNop()
	}

	tracing, err := telemetry.NewProvider(cfg.Tracing, cfg.Service.Version, cfg.Service.Environment, nil)
	if err != nil {
		return nil, err
	}

	a := &App{cfg: cfg, log: log, tracing: tracing}

	stores, err := a.connect(ctx)
	if err != nil {
		a.Close(context.Background())
		return nil, err
	}

	if err := a.assemble(stores); err != nil {
		a.Close(context.Background())
		return nil, err
	}

	return a, nil
}

// NewWithStores собирает сервис над готовыми хранилищами, без внешних подключений
func NewWithStores(cfg *config.Config, log logger.Logger, stores Stores) (*App, error) {
	if log == nil {
		log = logger.NewNop()
	}
	a := &App{cfg: cfg, log: log}
	if err := a.assemble(stores); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *App) connect(ctx context.Context) (Stores, error) {
	var stores Stores

	pool, err := db.CreatePostgresPool(ctx, a.cfg.Secondary.URL, a.cfg.PoolConfig())
	if err != nil {
		return stores, fmt.Errorf("failed to connect to secondary: %w", err)
	}
	a.pool = pool

	if a.cfg.Secondary.AutoMigrate {
		version, err := db.Migrate(pool)
		if err != nil {
			return stores, err
		}
		a.log.Info("Secondary schema is up to date", "version", version)
	}

	gdb, sqlDB, err := db.OpenGorm(pool)
	if err != nil {
		return stores, err
	}
	a.sqlDB = sqlDB

	stores.EventsSecondary = db.NewEntityStore[models.Event](gdb, sqlDB)
	stores.CategoriesSecondary = db.NewEntityStore[models.Category](gdb, sqlDB)
	stores.SyncLog = db.NewSyncLogStore(pool)

	switch a.cfg.Primary.Driver {
	case config.DriverOpenSearch:
		if err := a.connectOpenSearch(ctx, &stores); err != nil {
			return stores, err
		}
	default:
		conn, err := surrealdb.Connect(ctx, &a.cfg.Primary.SurrealDB, a.log)
		if err != nil {
			return stores, err
		}
		a.surreal = conn
		stores.EventsPrimary = surrealdb.NewStore[models.Event](conn, models.EntityEvent)
		stores.CategoriesPrimary = surrealdb.NewStore[models.Category](conn, models.EntityCategory)
	}

	return stores, nil
}

func (a *App) connectOpenSearch(ctx context.Context, stores *Stores) error {
	c, err := osclient.New(&a.cfg.Primary.OpenSearch, a.log)
	if err != nil {
		return err
	}

	if err := osclient.NewHealthChecker(c).WaitForHealthy(ctx, 5, 2*time.Second); err != nil {
		return err
	}

	manager := mapping.NewManager(c, a.log)
	for _, entityType := range []string{models.EntityEvent, models.EntityCategory} {
		if err := manager.EnsureIndex(ctx, entityType); err != nil {
			return err
		}
	}

	retry := resilience.NewRetryLogic(a.cfg.ResilienceSettings(), a.log.With("component", "opensearch_bulk"))
	bulk := indexing.NewBulkOperations(c, retry, a.log)

	stores.EventsPrimary = opensearch.NewStore[models.Event](c, models.EntityEvent, bulk)
	stores.CategoriesPrimary = opensearch.NewStore[models.Category](c, models.EntityCategory, bulk)
	return nil
}

func (a *App) assemble(stores Stores) error {
	if stores.SyncLog == nil {
		return errors.New("sync log is required")
	}

	a.Registry = prometheus.NewRegistry()
	a.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.Metrics = metrics.New(a.Registry)
	a.Metrics.SetServiceInfo(a.cfg.Service.Version, a.cfg.Service.Name, a.cfg.Service.Environment)

	settings := a.cfg.ResilienceSettings()
	settings.OnStateChange = a.Metrics.OnBreakerStateChange
	a.Breakers = resilience.NewRegistry(settings, a.log)

	a.SyncLog = stores.SyncLog
	a.Loader = dataloader.NewLoader(a.log)
	a.entities = make(map[string]entity)

	// Категории регистрируются первыми: BackfillAll переносит их до событий
	categories, err := register(a, models.EntityCategory, stores.CategoriesPrimary, stores.CategoriesSecondary)
	if err != nil {
		return err
	}
	events, err := register(a, models.EntityEvent, stores.EventsPrimary, stores.EventsSecondary)
	if err != nil {
		return err
	}

	a.Categories = categories
	a.Events = events

	a.log.Info("Service assembled",
		"mode", a.cfg.SyncMode(),
		"primary_driver", a.cfg.Primary.Driver,
		"entity_types", a.order,
	)
	return nil
}

// register собирает репозиторий, задачу переноса и проверки для одного типа
func register[T dualwrite.Identifiable](
	a *App,
	entityType string,
	primary dualwrite.PrimaryStore[T],
	secondary dualwrite.SecondaryStore[T],
) (*dualwrite.Repository[T], error) {
	if primary == nil || secondary == nil {
		return nil, fmt.Errorf("stores for %s are not configured", entityType)
	}

	log := a.log.With("component", "dualwrite")

	repo, err := dualwrite.New(primary, secondary, dualwrite.Options{
		EntityType: entityType,
		Mode:       a.cfg.SyncMode(),
		Pipeline:   a.Breakers.Pipeline(entityType),
		SyncLog:    a.SyncLog,
		Metrics:    a.Metrics,
		Logger:     log,
		Tracer:     a.tracer("github.com/rx3lixir/event-sync/internal/dualwrite"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create %s repository: %w", entityType, err)
	}

	backfill := a.cfg.Sync.Backfill
	job := dataloader.NewJob(entityType, primary, secondary, dataloader.JobOptions{
		SyncLog: a.SyncLog,
		Config:  &backfill,
		Logger:  a.log.With("component", "dataloader"),
		Tracer:  a.tracer("github.com/rx3lixir/event-sync/internal/dataloader"),
	})
	if err := a.Loader.Register(job); err != nil {
		return nil, err
	}

	a.entities[entityType] = entity{
		validate: func(ctx context.Context, id string) (any, error) {
			return repo.ValidateConsistency(ctx, id)
		},
		primaryHealthy:   repo.IsPrimaryHealthy,
		secondaryHealthy: repo.IsSecondaryHealthy,
	}
	a.order = append(a.order, entityType)

	return repo, nil
}

func (a *App) tracer(name string) trace.Tracer {
	if a.tracing == nil {
		return nil
	}
	return a.tracing.Tracer(name)
}

// Config возвращает конфигурацию сервиса
func (a *App) Config() *config.Config {
	return a.cfg
}

// Pool возвращает пул вторичного хранилища; nil для NewWithStores
func (a *App) Pool() *pgxpool.Pool {
	return a.pool
}

// EntityTypes возвращает зарегистрированные типы в порядке переноса
func (a *App) EntityTypes() []string {
	return append([]string(nil), a.order...)
}

// Backfill переносит один тип сущности или все, если entityType пуст
func (a *App) Backfill(ctx context.Context, entityType string, batchSize int) (dataloader.BackfillSummary, error) {
	if entityType == "" {
		summary := a.Loader.BackfillAll(ctx, batchSize)
		for _, r := range summary.Results {
			a.Metrics.RecordBackfill(r.EntityType, r.SuccessCount, r.SkippedCount, r.FailureCount, r.Duration)
		}
		return summary, nil
	}

	start := time.Now().UTC()
	result, err := a.Loader.Backfill(ctx, entityType, batchSize)
	if errors.Is(err, dataloader.ErrUnknownEntityType) {
		return dataloader.BackfillSummary{}, err
	}
	a.Metrics.RecordBackfill(result.EntityType, result.SuccessCount, result.SkippedCount, result.FailureCount, result.Duration)

	summary := dataloader.BackfillSummary{
		Results:        []dataloader.BackfillResult{result},
		StartedAt:      start,
		CompletedAt:    time.Now().UTC(),
		TotalProcessed: result.TotalProcessed,
		SuccessCount:   result.SuccessCount,
		SkippedCount:   result.SkippedCount,
		FailureCount:   result.FailureCount,
	}
	summary.IsSuccess = err == nil && result.FailureCount == 0
	return summary, err
}

// Replay повторяет упавшие синхронизации типа
func (a *App) Replay(ctx context.Context, entityType string, limit int) (dataloader.ReplayResult, error) {
	result, err := a.Loader.Replay(ctx, entityType, limit)
	if err == nil {
		a.refreshFailedGauge(ctx, entityType)
	}
	return result, err
}

// SyncStatus сравнивает число записей в хранилищах для каждого типа
func (a *App) SyncStatus(ctx context.Context) ([]*dataloader.SyncStatus, error) {
	out := make([]*dataloader.SyncStatus, 0, len(a.order))
	for _, entityType := range a.order {
		status, err := a.Loader.CheckSyncStatus(ctx, entityType)
		if err != nil {
			return out, err
		}
		out = append(out, status)
	}
	return out, nil
}

// Validate сравнивает запись в двух хранилищах, результат - consistency.Result нужного типа
func (a *App) Validate(ctx context.Context, entityType, id string) (any, error) {
	e, ok := a.entities[entityType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEntityType, entityType)
	}
	return e.validate(ctx, id)
}

// BackendHealth опрашивает оба хранилища
func (a *App) BackendHealth(ctx context.Context) (primary, secondary bool) {
	primaryProbe, secondaryProbe := a.probes()
	return primaryProbe(ctx), secondaryProbe(ctx)
}

// refreshFailedGauge обновляет метрику числа FAILED сущностей
func (a *App) refreshFailedGauge(ctx context.Context, entityType string) {
	n, err := a.SyncLog.CountLatestFailed(ctx, entityType)
	if err != nil {
		a.log.Warn("Failed to count failed entities", "entity_type", entityType, "error", err)
		return
	}
	a.Metrics.SetFailedEntities(entityType, n)
}

// Close закрывает подключения в обратном порядке
func (a *App) Close(ctx context.Context) {
	if a.tracing != nil {
		if err := a.tracing.Shutdown(ctx); err != nil {
			a.log.Warn("Failed to shutdown tracing", "error", err)
		}
	}
	if a.surreal != nil {
		if err := a.surreal.Close(ctx); err != nil {
			a.log.Warn("Failed to close SurrealDB connection", "error", err)
		}
	}
	if a.sqlDB != nil {
		a.sqlDB.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
}
