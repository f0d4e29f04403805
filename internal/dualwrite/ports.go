package dualwrite

import (
	"context"
	"errors"
)

// ErrAlreadyExists оборачивает ошибку вставки записи, которая уже есть во вторичном хранилище
var ErrAlreadyExists = errors.New("entity already exists")

// PrimaryStore - основное документное хранилище, источник истины.
// Get возвращает (nil, nil), если записи нет.
type PrimaryStore[T Identifiable] interface {
	Get(ctx context.Context, id string) (*T, error)
	Insert(ctx context.Context, entity T) (T, error)
	Update(ctx context.Context, entity T) (int, error)
	Delete(ctx context.Context, entity T) (int, error)

	// Пакетные операции выполняются по семантике самого хранилища
	// и возвращают только реально затронутые сущности
	InsertMany(ctx context.Context, entities []T) ([]T, error)
	UpdateMany(ctx context.Context, entities []T) ([]T, error)
	DeleteMany(ctx context.Context, entities []T) ([]T, error)

	// Scan читает все записи пачками не больше batchSize и передает их в fn.
	// Ошибка из fn прерывает чтение и возвращается как есть.
	Scan(ctx context.Context, batchSize int, fn func(batch []T) error) error

	Ping(ctx context.Context) error
}

// SecondaryStore - вторичное реляционное хранилище для аналитики.
// Insert существующего id возвращает ошибку, оборачивающую ErrAlreadyExists.
type SecondaryStore[T Identifiable] interface {
	Get(ctx context.Context, id string) (*T, error)
	Insert(ctx context.Context, entity T) error
	Update(ctx context.Context, entity T) (int, error)
	Delete(ctx context.Context, id string) (int, error)
	Exists(ctx context.Context, id string) (bool, error)
	Ping(ctx context.Context) error
}

// SyncLog принимает записи журнала синхронизации
type SyncLog interface {
	Append(ctx context.Context, entry SyncLogEntry) error
}

// Metrics - порт для счетчиков записи во вторичное хранилище
type Metrics interface {
	RecordSecondaryWrite(entityType, mode, operation string, err error)
}

type nopMetrics struct{}

func (nopMetrics) RecordSecondaryWrite(string, string, string, error) {}

// NopMetrics возвращает порт метрик, который ничего не делает
func NopMetrics() Metrics {
	return nopMetrics{}
}
