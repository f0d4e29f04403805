package dualwrite

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Identifiable реализуется всеми сущностями, которые проходят через синхронизатор.
// Пустой идентификатор означает, что он не определен.
type Identifiable interface {
	GetID() string
}

// Mode режим записи, читается из конфигурации один раз при старте
type Mode string

const (
	ModeSingleWrite Mode = "single_write"
	ModeDualWrite   Mode = "dual_write"
)

// ParseMode разбирает режим из конфигурации
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeSingleWrite:
		return ModeSingleWrite, nil
	case ModeDualWrite:
		return ModeDualWrite, nil
	default:
		return "", fmt.Errorf("unknown write mode %q", s)
	}
}

// Backend выбирает хранилище для прямого чтения
type Backend string

const (
	BackendPrimary   Backend = "primary"
	BackendSecondary Backend = "secondary"
)

// Operation вид операции в журнале синхронизации
type Operation string

const (
	OperationInsert   Operation = "INSERT"
	OperationUpdate   Operation = "UPDATE"
	OperationDelete   Operation = "DELETE"
	OperationBackfill Operation = "BACKFILL"
)

// SyncStatus статус записи журнала
type SyncStatus string

const (
	StatusPending SyncStatus = "PENDING"
	StatusSynced  SyncStatus = "SYNCED"
	StatusFailed  SyncStatus = "FAILED"
)

// UnknownEntityID используется, когда у сущности нет идентификатора
const UnknownEntityID = "unknown"

// SyncLogEntry - одна попытка записи во вторичное хранилище.
// Записи только добавляются и никогда не изменяются.
type SyncLogEntry struct {
	ID                 uuid.UUID  `json:"id"`
	EntityType         string     `json:"entity_type"`
	EntityID           string     `json:"entity_id"`
	Operation          Operation  `json:"operation"`
	SourceBackend      string     `json:"source_backend"`
	Status             SyncStatus `json:"status"`
	ErrorMessage       *string    `json:"error_message,omitempty"`
	PrimaryTimestamp   time.Time  `json:"primary_timestamp"`
	SecondaryTimestamp *time.Time `json:"secondary_timestamp,omitempty"`
	RetryCount         int        `json:"retry_count"`
	CreatedAt          time.Time  `json:"created_at"`
}

// NewSyncLogEntry заполняет общие поля записи журнала
func NewSyncLogEntry(entityType, entityID string, op Operation, source string, primaryAt time.Time) SyncLogEntry {
	if entityID == "" {
		entityID = UnknownEntityID
	}
	return SyncLogEntry{
		ID:               uuid.New(),
		EntityType:       entityType,
		EntityID:         entityID,
		Operation:        op,
		SourceBackend:    source,
		Status:           StatusPending,
		PrimaryTimestamp: primaryAt,
		CreatedAt:        time.Now().UTC(),
	}
}

// MarkSynced переводит запись в статус SYNCED
func (e *SyncLogEntry) MarkSynced(at time.Time, attempts int) {
	e.Status = StatusSynced
	e.SecondaryTimestamp = &at
	e.ErrorMessage = nil
	e.RetryCount = retries(attempts)
}

// MarkFailed переводит запись в статус FAILED с текстом ошибки
func (e *SyncLogEntry) MarkFailed(err error, attempts int) {
	msg := "unknown error"
	if err != nil && err.Error() != "" {
		msg = err.Error()
	}
	e.Status = StatusFailed
	e.ErrorMessage = &msg
	e.RetryCount = retries(attempts)
}

func retries(attempts int) int {
	if attempts <= 1 {
		return 0
	}
	return attempts - 1
}
