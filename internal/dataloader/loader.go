package dataloader

import (
	"context"
	"fmt"
	"time"

	"github.com/rx3lixir/event-sync/pkg/logger"
)

// Runner - задача переноса одного типа сущности
type Runner interface {
	EntityType() string
	Run(ctx context.Context, batchSize int) (BackfillResult, error)
	Replay(ctx context.Context, limit int) (ReplayResult, error)
	Status(ctx context.Context) (*SyncStatus, error)
}

// Loader запускает перенос по всем зарегистрированным типам сущностей
type Loader struct {
	runners []Runner
	byType  map[string]Runner
	logger  logger.Logger
}

func NewLoader(log logger.Logger) *Loader {
	if log == nil {
		log = logger.NewNop()
	}
	return &Loader{
		byType: make(map[string]Runner),
		logger: log,
	}
}

// Register добавляет задачу; порядок регистрации задает порядок BackfillAll
func (l *Loader) Register(r Runner) error {
	name := r.EntityType()
	if _, exists := l.byType[name]; exists {
		return fmt.Errorf("entity type %q is already registered", name)
	}
	l.runners = append(l.runners, r)
	l.byType[name] = r
	return nil
}

// EntityTypes возвращает зарегистрированные типы в порядке регистрации
func (l *Loader) EntityTypes() []string {
	out := make([]string, 0, len(l.runners))
	for _, r := range l.runners {
		out = append(out, r.EntityType())
	}
	return out
}

func (l *Loader) runner(entityType string) (Runner, error) {
	r, ok := l.byType[entityType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEntityType, entityType)
	}
	return r, nil
}

// Backfill переносит один тип сущности
func (l *Loader) Backfill(ctx context.Context, entityType string, batchSize int) (BackfillResult, error) {
	r, err := l.runner(entityType)
	if err != nil {
		return BackfillResult{EntityType: entityType}, err
	}
	return r.Run(ctx, batchSize)
}

// BackfillAll переносит все типы последовательно. Прерванный прогон одного типа
// не мешает остальным, но делает итог неуспешным.
func (l *Loader) BackfillAll(ctx context.Context, batchSize int) BackfillSummary {
	summary := BackfillSummary{StartedAt: time.Now().UTC()}
	aborted := false

	l.logger.Info("Starting backfill for all entity types", "entity_types", len(l.runners))

	for _, r := range l.runners {
		if ctx.Err() != nil {
			summary.add(BackfillResult{EntityType: r.EntityType(), Error: ctx.Err().Error()})
			aborted = true
			continue
		}

		result, err := r.Run(ctx, batchSize)
		if err != nil {
			aborted = true
			if result.Error == "" {
				result.Error = err.Error()
			}
			l.logger.Error("Backfill run failed", "entity_type", r.EntityType(), "error", err)
		}
		summary.add(result)
	}

	summary.CompletedAt = time.Now().UTC()
	summary.IsSuccess = !aborted && summary.FailureCount == 0

	l.logger.Info("Backfill for all entity types completed",
		"is_success", summary.IsSuccess,
		"total_processed", summary.TotalProcessed,
		"success_count", summary.SuccessCount,
		"skipped_count", summary.SkippedCount,
		"failure_count", summary.FailureCount,
		"duration", summary.CompletedAt.Sub(summary.StartedAt),
	)

	return summary
}

// Replay повторяет упавшие синхронизации одного типа
func (l *Loader) Replay(ctx context.Context, entityType string, limit int) (ReplayResult, error) {
	r, err := l.runner(entityType)
	if err != nil {
		return ReplayResult{EntityType: entityType}, err
	}
	return r.Replay(ctx, limit)
}

// CheckSyncStatus проверяет состояние синхронизации данных одного типа
func (l *Loader) CheckSyncStatus(ctx context.Context, entityType string) (*SyncStatus, error) {
	r, err := l.runner(entityType)
	if err != nil {
		return nil, err
	}
	return r.Status(ctx)
}
