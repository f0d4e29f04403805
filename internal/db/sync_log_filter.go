package db

import (
	"fmt"
	"time"

	"github.com/rx3lixir/event-sync/internal/dualwrite"
)

const (
	defaultSyncLogLimit = 100
	maxSyncLogLimit     = 1000
)

// SyncLogFilter содержит фильтры для выборки журнала синхронизации
type SyncLogFilter struct {
	EntityType *string
	EntityID   *string
	Statuses   []dualwrite.SyncStatus
	Operations []dualwrite.Operation
	From       *time.Time // created_at >= From
	To         *time.Time // created_at < To

	// Пагинация
	Limit  *int
	Offset *int
}

// SyncLogOption функциональная опция для конфигурации фильтра.
type SyncLogOption func(*SyncLogFilter)

// WithEntityType добавляет фильтр по типу сущности.
func WithEntityType(entityType string) SyncLogOption {
	return func(f *SyncLogFilter) {
		f.EntityType = &entityType
	}
}

// WithEntityID добавляет фильтр по идентификатору сущности.
func WithEntityID(entityID string) SyncLogOption {
	return func(f *SyncLogFilter) {
		f.EntityID = &entityID
	}
}

// WithStatus добавляет фильтр по одному или нескольким статусам.
// Если передано несколько статусов, будет использоваться условие IN.
func WithStatus(statuses ...dualwrite.SyncStatus) SyncLogOption {
	return func(f *SyncLogFilter) {
		f.Statuses = statuses
	}
}

// WithOperation добавляет фильтр по типу операции.
func WithOperation(ops ...dualwrite.Operation) SyncLogOption {
	return func(f *SyncLogFilter) {
		f.Operations = ops
	}
}

// WithTimeRange добавляет фильтр по времени создания записи.
// Можно передать только from (to = nil) или только to (from = nil).
func WithTimeRange(from, to *time.Time) SyncLogOption {
	return func(f *SyncLogFilter) {
		f.From = from
		f.To = to
	}
}

// WithPagination добавляет параметры пагинации.
func WithPagination(limit, offset int) SyncLogOption {
	return func(f *SyncLogFilter) {
		f.Limit = &limit
		f.Offset = &offset
	}
}

// WithLimit добавляет только лимит без offset.
func WithLimit(limit int) SyncLogOption {
	return func(f *SyncLogFilter) {
		f.Limit = &limit
	}
}

// NewSyncLogFilter создает новый фильтр с применением переданных опций.
func NewSyncLogFilter(opts ...SyncLogOption) *SyncLogFilter {
	filter := &SyncLogFilter{}
	for _, opt := range opts {
		opt(filter)
	}
	return filter
}

// IsEmpty проверяет, является ли фильтр пустым (без условий).
func (f *SyncLogFilter) IsEmpty() bool {
	return f.EntityType == nil &&
		f.EntityID == nil &&
		len(f.Statuses) == 0 &&
		len(f.Operations) == 0 &&
		f.From == nil &&
		f.To == nil
}

// GetLimit возвращает лимит или значение по умолчанию.
func (f *SyncLogFilter) GetLimit() int {
	if f.Limit == nil {
		return defaultSyncLogLimit
	}
	return *f.Limit
}

// GetOffset возвращает offset или 0.
func (f *SyncLogFilter) GetOffset() int {
	if f.Offset == nil {
		return 0
	}
	return *f.Offset
}

// validateSyncLogFilter проверяет корректность параметров фильтра.
func validateSyncLogFilter(filter *SyncLogFilter) error {
	if filter == nil {
		return fmt.Errorf("filter cannot be nil")
	}

	if filter.Limit != nil && *filter.Limit <= 0 {
		return fmt.Errorf("limit must be positive, got: %d", *filter.Limit)
	}

	if filter.Limit != nil && *filter.Limit > maxSyncLogLimit {
		return fmt.Errorf("limit too large, maximum allowed: %d, got: %d", maxSyncLogLimit, *filter.Limit)
	}

	if filter.Offset != nil && *filter.Offset < 0 {
		return fmt.Errorf("offset cannot be negative, got: %d", *filter.Offset)
	}

	for _, st := range filter.Statuses {
		switch st {
		case dualwrite.StatusPending, dualwrite.StatusSynced, dualwrite.StatusFailed:
		default:
			return fmt.Errorf("unknown sync status: %q", st)
		}
	}

	for _, op := range filter.Operations {
		switch op {
		case dualwrite.OperationInsert, dualwrite.OperationUpdate, dualwrite.OperationDelete, dualwrite.OperationBackfill:
		default:
			return fmt.Errorf("unknown operation: %q", op)
		}
	}

	if filter.From != nil && filter.To != nil && !filter.From.Before(*filter.To) {
		return fmt.Errorf("time range start (%s) must be before end (%s)",
			filter.From.Format(time.RFC3339),
			filter.To.Format(time.RFC3339))
	}

	return nil
}
