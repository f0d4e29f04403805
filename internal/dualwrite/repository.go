package dualwrite

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/rx3lixir/event-sync/pkg/consistency"
	"github.com/rx3lixir/event-sync/pkg/logger"
	"github.com/rx3lixir/event-sync/pkg/resilience"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// ErrNoPrimary возвращается конструктором без основного хранилища
var ErrNoPrimary = errors.New("primary store is required")

const (
	defaultSourceBackend = "primary"
	defaultAuditTimeout  = 2 * time.Second
	defaultProbeTimeout  = 2 * time.Second
	tracerName           = "github.com/rx3lixir/event-sync/internal/dualwrite"
)

// Options настройки репозитория
type Options struct {
	// EntityType по умолчанию - имя типа T
	EntityType    string
	Mode          Mode
	SourceBackend string

	// Pipeline оборачивает запись во вторичное хранилище.
	// Обычно берется из resilience.Registry, чтобы breaker был общим для типа сущности.
	Pipeline *resilience.Pipeline

	SyncLog SyncLog
	Metrics Metrics
	Logger  logger.Logger
	Tracer  trace.Tracer

	AuditTimeout time.Duration
	ProbeTimeout time.Duration
}

// Repository пишет в основное хранилище синхронно и реплицирует запись во вторичное.
// Результат и ошибка операций зависят только от основного хранилища.
type Repository[T Identifiable] struct {
	primary   PrimaryStore[T]
	secondary SecondaryStore[T]

	entityType    string
	mode          Mode
	sourceBackend string
	pipeline      *resilience.Pipeline
	syncLog       SyncLog
	metrics       Metrics
	log           logger.Logger
	tracer        trace.Tracer
	auditTimeout  time.Duration
	probeTimeout  time.Duration
	validator     *consistency.Validator[T]
	now           func() time.Time
}

// New создает репозиторий. secondary может быть nil, тогда репликация не выполняется.
func New[T Identifiable](primary PrimaryStore[T], secondary SecondaryStore[T], opts Options) (*Repository[T], error) {
	if primary == nil {
		return nil, ErrNoPrimary
	}

	if opts.EntityType == "" {
		opts.EntityType = EntityTypeOf[T]()
	}
	if opts.Mode == "" {
		opts.Mode = ModeSingleWrite
	}
	if opts.SourceBackend == "" {
		opts.SourceBackend = defaultSourceBackend
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNop()
	}
	if opts.Metrics == nil {
		opts.Metrics = NopMetrics()
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer(tracerName)
	}
	if opts.Pipeline == nil {
		opts.Pipeline = resilience.NewRegistry(resilience.DefaultSettings(), opts.Logger).Pipeline(opts.EntityType)
	}
	if opts.AuditTimeout <= 0 {
		opts.AuditTimeout = defaultAuditTimeout
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = defaultProbeTimeout
	}

	log := opts.Logger.With("entity_type", opts.EntityType)

	var secondaryReader consistency.Reader[T]
	if secondary != nil {
		secondaryReader = secondary
	}

	return &Repository[T]{
		primary:       primary,
		secondary:     secondary,
		entityType:    opts.EntityType,
		mode:          opts.Mode,
		sourceBackend: opts.SourceBackend,
		pipeline:      opts.Pipeline,
		syncLog:       opts.SyncLog,
		metrics:       opts.Metrics,
		log:           log,
		tracer:        opts.Tracer,
		auditTimeout:  opts.AuditTimeout,
		probeTimeout:  opts.ProbeTimeout,
		validator:     consistency.NewValidator(consistency.Reader[T](primary), secondaryReader, consistency.WithLogger(log)),
		now:           func() time.Time { return time.Now().UTC() },
	}, nil
}

// EntityTypeOf возвращает имя типа T для журнала и метрик
func EntityTypeOf[T any]() string {
	t := reflect.TypeOf((*T)(nil)).Elem()
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Name()
}

// EntityType возвращает тип сущности репозитория
func (r *Repository[T]) EntityType() string {
	return r.entityType
}

// Mode возвращает режим записи
func (r *Repository[T]) Mode() Mode {
	return r.mode
}

// Add записывает сущность в основное хранилище и реплицирует ее
func (r *Repository[T]) Add(ctx context.Context, entity T) (T, error) {
	saved, err := r.primary.Insert(ctx, entity)
	if err != nil {
		var zero T
		return zero, err
	}

	r.replicate(ctx, OperationInsert, saved, func(ctx context.Context) error {
		return r.secondary.Insert(ctx, saved)
	})

	return saved, nil
}

// Update обновляет сущность и возвращает число затронутых записей основного хранилища
func (r *Repository[T]) Update(ctx context.Context, entity T) (int, error) {
	affected, err := r.primary.Update(ctx, entity)
	if err != nil {
		return 0, err
	}
	if affected == 0 {
		r.log.Debug("primary update affected no rows, skipping replication", "entity_id", entity.GetID())
		return 0, nil
	}

	r.replicate(ctx, OperationUpdate, entity, r.secondaryUpdate(entity))

	return affected, nil
}

// Delete удаляет сущность и возвращает число удаленных записей основного хранилища
func (r *Repository[T]) Delete(ctx context.Context, entity T) (int, error) {
	affected, err := r.primary.Delete(ctx, entity)
	if err != nil {
		return 0, err
	}
	if affected == 0 {
		r.log.Debug("primary delete affected no rows, skipping replication", "entity_id", entity.GetID())
		return 0, nil
	}

	r.replicate(ctx, OperationDelete, entity, r.secondaryDelete(entity))

	return affected, nil
}

// AddRange выполняет пакетную вставку в основное хранилище,
// затем реплицирует каждую сущность отдельно.
func (r *Repository[T]) AddRange(ctx context.Context, entities []T) ([]T, error) {
	saved, err := r.primary.InsertMany(ctx, entities)
	if err != nil {
		return nil, err
	}

	for _, entity := range saved {
		r.replicate(ctx, OperationInsert, entity, func(ctx context.Context) error {
			return r.secondary.Insert(ctx, entity)
		})
	}

	return saved, nil
}

// UpdateRange выполняет пакетное обновление. Ошибка одной сущности во вторичном
// хранилище не влияет на остальные.
func (r *Repository[T]) UpdateRange(ctx context.Context, entities []T) (int, error) {
	updated, err := r.primary.UpdateMany(ctx, entities)
	if err != nil {
		return 0, err
	}

	// сущности, которых нет в основном хранилище, не реплицируются
	for _, entity := range updated {
		r.replicate(ctx, OperationUpdate, entity, r.secondaryUpdate(entity))
	}

	return len(updated), nil
}

// DeleteRange выполняет пакетное удаление
func (r *Repository[T]) DeleteRange(ctx context.Context, entities []T) (int, error) {
	deleted, err := r.primary.DeleteMany(ctx, entities)
	if err != nil {
		return 0, err
	}

	for _, entity := range deleted {
		r.replicate(ctx, OperationDelete, entity, r.secondaryDelete(entity))
	}

	return len(deleted), nil
}

// GetFromBackend читает сущность напрямую из указанного хранилища.
// Возвращает nil, если записи нет, хранилище недоступно или не настроено.
func (r *Repository[T]) GetFromBackend(ctx context.Context, id string, backend Backend) *T {
	var reader consistency.Reader[T]
	switch backend {
	case BackendPrimary:
		reader = r.primary
	case BackendSecondary:
		if r.secondary == nil {
			return nil
		}
		reader = r.secondary
	default:
		r.log.Warn("unknown backend requested", "backend", backend)
		return nil
	}

	entity, err := reader.Get(ctx, id)
	if err != nil {
		r.log.Warn("failed to read entity from backend",
			"backend", backend,
			"entity_id", id,
			"error", err,
		)
		return nil
	}
	return entity
}

// ValidateConsistency сравнивает сущность id в обоих хранилищах
func (r *Repository[T]) ValidateConsistency(ctx context.Context, id string) (consistency.Result[T], error) {
	return r.validator.Check(ctx, id)
}

// IsPrimaryHealthy проверяет доступность основного хранилища
func (r *Repository[T]) IsPrimaryHealthy(ctx context.Context) bool {
	return r.probe(ctx, BackendPrimary, r.primary.Ping)
}

// IsSecondaryHealthy проверяет доступность вторичного хранилища; без него всегда false
func (r *Repository[T]) IsSecondaryHealthy(ctx context.Context) bool {
	if r.secondary == nil {
		return false
	}
	return r.probe(ctx, BackendSecondary, r.secondary.Ping)
}

func (r *Repository[T]) probe(ctx context.Context, backend Backend, ping func(context.Context) error) (healthy bool) {
	ctx, cancel := context.WithTimeout(ctx, r.probeTimeout)
	defer cancel()

	defer func() {
		if p := recover(); p != nil {
			r.log.Warn("health probe panicked", "backend", backend, "panic", fmt.Sprint(p))
			healthy = false
		}
	}()

	if err := ping(ctx); err != nil {
		r.log.Debug("health probe failed", "backend", backend, "error", err)
		return false
	}
	return true
}

func (r *Repository[T]) secondaryUpdate(entity T) func(context.Context) error {
	return func(ctx context.Context) error {
		affected, err := r.secondary.Update(ctx, entity)
		if err != nil {
			return err
		}
		if affected == 0 {
			// Нет строки для обновления - как конфликт оптимистичной блокировки
			return fmt.Errorf("%w: no rows updated for %s %q", resilience.ErrConflict, r.entityType, entity.GetID())
		}
		return nil
	}
}

func (r *Repository[T]) secondaryDelete(entity T) func(context.Context) error {
	return func(ctx context.Context) error {
		_, err := r.secondary.Delete(ctx, entity.GetID())
		return err
	}
}
