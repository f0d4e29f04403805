package dataloader

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rx3lixir/event-sync/internal/dualwrite"
	"github.com/rx3lixir/event-sync/pkg/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/rx3lixir/event-sync/internal/dataloader"

// FailedEntries находит сущности, последняя запись журнала которых FAILED
type FailedEntries interface {
	LatestFailed(ctx context.Context, entityType string, limit int) ([]string, error)
}

// Counter считает записи в хранилище
type Counter interface {
	Count(ctx context.Context) (int64, error)
}

// JobOptions дополнительные зависимости задачи
type JobOptions struct {
	SyncLog dualwrite.SyncLog
	Config  *Config
	Logger  logger.Logger
	Tracer  trace.Tracer
}

// Job переносит исторические данные одного типа сущности
// из основного хранилища во вторичное в обход живого пути записи.
type Job[T dualwrite.Identifiable] struct {
	entityType string
	primary    dualwrite.PrimaryStore[T]
	secondary  dualwrite.SecondaryStore[T]
	syncLog    dualwrite.SyncLog
	cfg        Config
	logger     logger.Logger
	tracer     trace.Tracer
}

func NewJob[T dualwrite.Identifiable](
	entityType string,
	primary dualwrite.PrimaryStore[T],
	secondary dualwrite.SecondaryStore[T],
	opts JobOptions,
) *Job[T] {
	if entityType == "" {
		entityType = dualwrite.EntityTypeOf[T]()
	}

	cfg := DefaultConfig()
	if opts.Config != nil {
		c := *opts.Config
		cfg = &c
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.MinRowsForRatio <= 0 {
		cfg.MinRowsForRatio = defaultMinRowsForRatio
	}
	if cfg.SourceBackend == "" {
		cfg.SourceBackend = "primary"
	}

	log := opts.Logger
	if log == nil {
		log = logger.NewNop()
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}

	return &Job[T]{
		entityType: entityType,
		primary:    primary,
		secondary:  secondary,
		syncLog:    opts.SyncLog,
		cfg:        *cfg,
		logger:     log.With("entity_type", entityType),
		tracer:     tracer,
	}
}

// EntityType возвращает тип сущности задачи
func (j *Job[T]) EntityType() string {
	return j.entityType
}

// Run выполняет перенос. Уже существующие во вторичном хранилище записи пропускаются,
// поэтому повторный запуск вставляет только недостающие.
// Ошибка чтения основного хранилища прерывает прогон и возвращается вместе с частичным результатом.
func (j *Job[T]) Run(ctx context.Context, batchSize int) (BackfillResult, error) {
	if batchSize <= 0 {
		batchSize = j.cfg.BatchSize
	}

	start := time.Now()
	result := BackfillResult{EntityType: j.entityType}

	ctx, span := j.tracer.Start(ctx, "dataloader.backfill", trace.WithAttributes(
		attribute.String("entity.type", j.entityType),
		attribute.Int("batch_size", batchSize),
	))
	defer span.End()

	j.logger.Info("Starting backfill", "batch_size", batchSize)

	batchNum := 0
	err := j.primary.Scan(ctx, batchSize, func(batch []T) error {
		batchNum++
		j.logger.Info("Processing batch",
			"batch", batchNum,
			"batch_size", len(batch),
		)

		for _, entity := range batch {
			if err := ctx.Err(); err != nil {
				return err
			}
			j.processRow(ctx, entity, &result)
			if j.thresholdExceeded(result) {
				return fmt.Errorf("%w: %d of %d rows failed",
					ErrFailureThresholdExceeded, result.FailureCount, result.TotalProcessed)
			}
		}

		j.logger.Debug("Batch processed",
			"batch", batchNum,
			"total_processed", result.TotalProcessed,
		)
		return nil
	})

	result.Duration = time.Since(start)
	span.SetAttributes(
		attribute.Int("total_processed", result.TotalProcessed),
		attribute.Int("success_count", result.SuccessCount),
		attribute.Int("skipped_count", result.SkippedCount),
		attribute.Int("failure_count", result.FailureCount),
	)

	if err != nil {
		result.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		j.logger.Error("Backfill aborted",
			"total_processed", result.TotalProcessed,
			"error", err,
		)
		return result, fmt.Errorf("failed to backfill %s: %w", j.entityType, err)
	}

	if result.FailureCount > 0 {
		j.logger.Warn("Backfill completed with errors",
			"total_processed", result.TotalProcessed,
			"success_count", result.SuccessCount,
			"skipped_count", result.SkippedCount,
			"failure_count", result.FailureCount,
			"duration", result.Duration,
		)
	} else {
		j.logger.Info("Backfill completed successfully",
			"total_processed", result.TotalProcessed,
			"success_count", result.SuccessCount,
			"skipped_count", result.SkippedCount,
			"duration", result.Duration,
		)
	}

	return result, nil
}

// processRow обрабатывает одну запись; любая ошибка или паника засчитывается как неудача строки
func (j *Job[T]) processRow(ctx context.Context, entity T, result *BackfillResult) {
	result.TotalProcessed++

	id := entity.GetID()
	if id == "" {
		result.FailureCount++
		result.Errors = append(result.Errors, fmt.Sprintf("row %d: entity has no identifier", result.TotalProcessed))
		return
	}

	inserted, err := j.backfillRow(ctx, id, entity)
	switch {
	case err != nil:
		result.FailureCount++
		result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", id, err))
		j.logger.Warn("Failed to backfill entity", "entity_id", id, "error", err)
	case inserted:
		result.SuccessCount++
	default:
		result.SkippedCount++
	}
}

func (j *Job[T]) backfillRow(ctx context.Context, id string, entity T) (inserted bool, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic while backfilling: %v", p)
		}
	}()

	exists, err := j.secondary.Exists(ctx, id)
	if err != nil {
		return false, fmt.Errorf("failed to check secondary: %w", err)
	}
	if exists {
		return false, nil
	}

	primaryAt := time.Now().UTC()
	entry := dualwrite.NewSyncLogEntry(j.entityType, id, dualwrite.OperationBackfill, j.cfg.SourceBackend, primaryAt)

	if err := j.secondary.Insert(ctx, entity); err != nil {
		if errors.Is(err, dualwrite.ErrAlreadyExists) {
			// строку успела вставить живая запись между Exists и Insert
			return false, nil
		}
		entry.MarkFailed(err, 1)
		j.appendSyncLog(ctx, entry)
		return false, fmt.Errorf("failed to insert into secondary: %w", err)
	}

	entry.MarkSynced(time.Now().UTC(), 1)
	j.appendSyncLog(ctx, entry)
	return true, nil
}

func (j *Job[T]) thresholdExceeded(r BackfillResult) bool {
	if j.cfg.MaxFailureRatio <= 0 || r.TotalProcessed < j.cfg.MinRowsForRatio {
		return false
	}
	return float64(r.FailureCount)/float64(r.TotalProcessed) > j.cfg.MaxFailureRatio
}

// Replay повторяет синхронизацию сущностей, последняя попытка которых завершилась неудачей.
// Состояние берется из основного хранилища: есть запись - upsert во вторичное, нет - удаление.
func (j *Job[T]) Replay(ctx context.Context, limit int) (ReplayResult, error) {
	result := ReplayResult{EntityType: j.entityType}

	failed, ok := j.syncLog.(FailedEntries)
	if !ok {
		return result, ErrReplayUnsupported
	}

	start := time.Now()
	ctx, span := j.tracer.Start(ctx, "dataloader.replay", trace.WithAttributes(
		attribute.String("entity.type", j.entityType),
		attribute.Int("limit", limit),
	))
	defer span.End()

	ids, err := failed.LatestFailed(ctx, j.entityType, limit)
	if err != nil {
		span.RecordError(err)
		return result, fmt.Errorf("failed to list failed sync entries: %w", err)
	}

	j.logger.Info("Replaying failed sync entries", "count", len(ids))

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			result.Duration = time.Since(start)
			return result, err
		}

		result.Attempted++
		op, err := j.replayOne(ctx, id)
		entry := dualwrite.NewSyncLogEntry(j.entityType, id, op, j.cfg.SourceBackend, time.Now().UTC())
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", id, err))
			entry.MarkFailed(err, 1)
			j.logger.Warn("Replay failed", "entity_id", id, "operation", op, "error", err)
		} else {
			result.Synced++
			entry.MarkSynced(time.Now().UTC(), 1)
		}
		j.appendSyncLog(ctx, entry)
	}

	result.Duration = time.Since(start)
	j.logger.Info("Replay completed",
		"attempted", result.Attempted,
		"synced", result.Synced,
		"failed", result.Failed,
	)
	return result, nil
}

func (j *Job[T]) replayOne(ctx context.Context, id string) (op dualwrite.Operation, err error) {
	op = dualwrite.OperationUpdate
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic while replaying: %v", p)
		}
	}()

	entity, err := j.primary.Get(ctx, id)
	if err != nil {
		return op, fmt.Errorf("failed to read primary: %w", err)
	}

	if entity == nil {
		if _, err := j.secondary.Delete(ctx, id); err != nil {
			return dualwrite.OperationDelete, fmt.Errorf("failed to delete from secondary: %w", err)
		}
		return dualwrite.OperationDelete, nil
	}

	exists, err := j.secondary.Exists(ctx, id)
	if err != nil {
		return op, fmt.Errorf("failed to check secondary: %w", err)
	}
	if !exists {
		if err := j.secondary.Insert(ctx, *entity); err != nil {
			return dualwrite.OperationInsert, fmt.Errorf("failed to insert into secondary: %w", err)
		}
		return dualwrite.OperationInsert, nil
	}

	if _, err := j.secondary.Update(ctx, *entity); err != nil {
		return op, fmt.Errorf("failed to update secondary: %w", err)
	}
	return op, nil
}

// Status сравнивает число записей в хранилищах
func (j *Job[T]) Status(ctx context.Context) (*SyncStatus, error) {
	primaryCounter, ok := j.primary.(Counter)
	if !ok {
		return nil, fmt.Errorf("primary %s: %w", j.entityType, ErrCountUnsupported)
	}
	secondaryCounter, ok := j.secondary.(Counter)
	if !ok {
		return nil, fmt.Errorf("secondary %s: %w", j.entityType, ErrCountUnsupported)
	}

	primaryCount, err := primaryCounter.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count %s in primary: %w", j.entityType, err)
	}
	secondaryCount, err := secondaryCounter.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count %s in secondary: %w", j.entityType, err)
	}

	return &SyncStatus{
		EntityType:     j.entityType,
		PrimaryCount:   primaryCount,
		SecondaryCount: secondaryCount,
		InSync:         primaryCount == secondaryCount,
		Difference:     primaryCount - secondaryCount,
		LastChecked:    time.Now().UTC(),
	}, nil
}

// appendSyncLog пишет журнал без учета отмены вызывающего, ошибки только логируются
func (j *Job[T]) appendSyncLog(ctx context.Context, entry dualwrite.SyncLogEntry) {
	if j.syncLog == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), defaultAuditTimeout)
	defer cancel()

	if err := j.syncLog.Append(ctx, entry); err != nil {
		j.logger.Warn("Failed to append sync log entry",
			"entity_id", entry.EntityID,
			"operation", entry.Operation,
			"error", err,
		)
	}
}
