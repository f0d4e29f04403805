package dataloader

import (
	"errors"
	"time"
)

var (
	// ErrUnknownEntityType - для типа сущности не зарегистрирована задача
	ErrUnknownEntityType = errors.New("unknown entity type")
	// ErrFailureThresholdExceeded - доля ошибок в прогоне превысила MaxFailureRatio
	ErrFailureThresholdExceeded = errors.New("backfill failure threshold exceeded")
	// ErrReplayUnsupported - журнал синхронизации не умеет искать упавшие записи
	ErrReplayUnsupported = errors.New("sync log does not support replay")
	// ErrCountUnsupported - хранилище не умеет считать записи
	ErrCountUnsupported = errors.New("store does not support counting")
)

const (
	defaultBatchSize       = 100
	defaultMinRowsForRatio = 100
	defaultAuditTimeout    = 2 * time.Second
)

// Config содержит настройки переноса данных
type Config struct {
	BatchSize int `mapstructure:"batch_size" validate:"gte=0"`
	// MaxFailureRatio 0 отключает прерывание прогона по доле ошибок
	MaxFailureRatio float64 `mapstructure:"max_failure_ratio" validate:"gte=0,lte=1"`
	MinRowsForRatio int     `mapstructure:"min_rows_for_ratio" validate:"gte=0"`
	SourceBackend   string  `mapstructure:"source_backend"`
}

// DefaultConfig возвращает конфигурацию по умолчанию
func DefaultConfig() *Config {
	return &Config{
		BatchSize:       defaultBatchSize,
		MaxFailureRatio: 0,
		MinRowsForRatio: defaultMinRowsForRatio,
		SourceBackend:   "primary",
	}
}

// BackfillResult содержит результаты переноса одного типа сущности
type BackfillResult struct {
	EntityType     string        `json:"entity_type"`
	TotalProcessed int           `json:"total_processed"`
	SuccessCount   int           `json:"success_count"`
	SkippedCount   int           `json:"skipped_count"`
	FailureCount   int           `json:"failure_count"`
	Errors         []string      `json:"errors,omitempty"`
	Duration       time.Duration `json:"duration"`
	// Error заполняется, если прогон был прерван
	Error string `json:"error,omitempty"`
}

// Aborted сообщает, был ли прогон прерван до конца чтения
func (r BackfillResult) Aborted() bool {
	return r.Error != ""
}

// BackfillSummary агрегирует результаты по всем типам сущностей
type BackfillSummary struct {
	Results        []BackfillResult `json:"results"`
	StartedAt      time.Time        `json:"started_at"`
	CompletedAt    time.Time        `json:"completed_at"`
	IsSuccess      bool             `json:"is_success"`
	TotalProcessed int              `json:"total_processed"`
	SuccessCount   int              `json:"success_count"`
	SkippedCount   int              `json:"skipped_count"`
	FailureCount   int              `json:"failure_count"`
}

func (s *BackfillSummary) add(r BackfillResult) {
	s.Results = append(s.Results, r)
	s.TotalProcessed += r.TotalProcessed
	s.SuccessCount += r.SuccessCount
	s.SkippedCount += r.SkippedCount
	s.FailureCount += r.FailureCount
}

// ReplayResult содержит результаты повторной синхронизации упавших записей
type ReplayResult struct {
	EntityType string        `json:"entity_type"`
	Attempted  int           `json:"attempted"`
	Synced     int           `json:"synced"`
	Failed     int           `json:"failed"`
	Errors     []string      `json:"errors,omitempty"`
	Duration   time.Duration `json:"duration"`
}

// SyncStatus представляет состояние синхронизации между основным и вторичным хранилищами
type SyncStatus struct {
	EntityType     string    `json:"entity_type"`
	PrimaryCount   int64     `json:"primary_count"`
	SecondaryCount int64     `json:"secondary_count"`
	InSync         bool      `json:"in_sync"`
	Difference     int64     `json:"difference"`
	LastChecked    time.Time `json:"last_checked"`
}
