package dualwrite

import (
	"context"
	"errors"
	"fmt"

	"github.com/rx3lixir/event-sync/pkg/resilience"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrSecondaryPanic оборачивает панику, пойманную при записи во вторичное хранилище
var ErrSecondaryPanic = errors.New("secondary write panicked")

// replicate выполняет запись во вторичное хранилище через конвейер политик,
// пишет метрику и запись журнала. Ничего не возвращает: результат основной
// операции от этого не зависит.
func (r *Repository[T]) replicate(ctx context.Context, op Operation, entity T, write func(context.Context) error) {
	if r.mode != ModeDualWrite || r.secondary == nil {
		return
	}

	entry := NewSyncLogEntry(r.entityType, entity.GetID(), op, r.sourceBackend, r.now())

	ctx, span := r.tracer.Start(ctx, "dualwrite.replicate", trace.WithAttributes(
		attribute.String("entity.type", r.entityType),
		attribute.String("entity.id", entry.EntityID),
		attribute.String("operation", string(op)),
	))
	defer span.End()

	outcome, err := r.runSecondary(ctx, write)
	span.SetAttributes(attribute.Int("attempts", outcome.Attempts))

	if err != nil {
		entry.MarkFailed(err, outcome.Attempts)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.logFailure(op, entry.EntityID, outcome, err)
	} else {
		entry.MarkSynced(r.now(), outcome.Attempts)
		r.log.Debug("secondary write synced",
			"operation", op,
			"entity_id", entry.EntityID,
			"attempts", outcome.Attempts,
			"duration", outcome.Duration,
		)
	}

	r.metrics.RecordSecondaryWrite(r.entityType, string(r.mode), string(op), err)
	r.appendSyncLog(ctx, entry)
}

// runSecondary ловит панику вторичной записи, чтобы она не дошла до вызывающего
func (r *Repository[T]) runSecondary(ctx context.Context, write func(context.Context) error) (outcome resilience.Outcome, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: %v", ErrSecondaryPanic, p)
		}
	}()

	return r.pipeline.Execute(ctx, write)
}

func (r *Repository[T]) logFailure(op Operation, entityID string, outcome resilience.Outcome, err error) {
	kv := []any{
		"operation", op,
		"entity_id", entityID,
		"attempts", outcome.Attempts,
		"error", err,
	}

	switch {
	case errors.Is(err, resilience.ErrCircuitOpen):
		r.log.Warn("secondary write skipped, circuit is open", kv...)
	case resilience.IsTransient(err):
		r.log.Warn("secondary write failed", kv...)
	default:
		r.log.Error("secondary write failed with non-transient error", kv...)
	}
}

// appendSyncLog пишет журнал без учета отмены вызывающего; ошибки только логируются
func (r *Repository[T]) appendSyncLog(ctx context.Context, entry SyncLogEntry) {
	if r.syncLog == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.auditTimeout)
	defer cancel()

	if err := r.syncLog.Append(ctx, entry); err != nil {
		r.log.Warn("failed to append sync log entry",
			"entity_id", entry.EntityID,
			"operation", entry.Operation,
			"status", entry.Status,
			"error", err,
		)
	}
}
