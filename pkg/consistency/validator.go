package consistency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rx3lixir/event-sync/pkg/logger"
)

const (
	DiffMissingInPrimary   = "missing in primary"
	DiffMissingInSecondary = "missing in secondary"
	DiffDataDiffers        = "data differs"
)

// Reader читает сущность по идентификатору; (nil, nil) означает, что записи нет
type Reader[T any] interface {
	Get(ctx context.Context, id string) (*T, error)
}

// Result результат проверки консистентности одной сущности
type Result[T any] struct {
	IsConsistent   bool     `json:"is_consistent"`
	PrimaryValue   *T       `json:"primary_value,omitempty"`
	SecondaryValue *T       `json:"secondary_value,omitempty"`
	Differences    []string `json:"differences,omitempty"`
}

// Validator сравнивает представление сущности в основном и вторичном хранилищах.
// Результат вычисляется по запросу и нигде не сохраняется.
type Validator[T any] struct {
	primary   Reader[T]
	secondary Reader[T]
	log       logger.Logger
	timeout   time.Duration
}

// Option настраивает Validator
type Option func(*options)

type options struct {
	log     logger.Logger
	timeout time.Duration
}

// WithLogger задает логгер
func WithLogger(log logger.Logger) Option {
	return func(o *options) {
		o.log = log
	}
}

// WithTimeout ограничивает время чтения из каждого хранилища
func WithTimeout(timeout time.Duration) Option {
	return func(o *options) {
		o.timeout = timeout
	}
}

// NewValidator создает валидатор. secondary может быть nil,
// тогда любая сущность считается консистентной.
func NewValidator[T any](primary, secondary Reader[T], opts ...Option) *Validator[T] {
	o := options{
		log:     logger.NewNop(),
		timeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(&o)
	}

	return &Validator[T]{
		primary:   primary,
		secondary: secondary,
		log:       o.log,
		timeout:   o.timeout,
	}
}

// Check проверяет консистентность сущности id.
// Расхождения возвращаются как данные; ошибка только если оба чтения не удались.
func (v *Validator[T]) Check(ctx context.Context, id string) (Result[T], error) {
	if v.secondary == nil {
		return Result[T]{IsConsistent: true}, nil
	}

	primaryValue, primaryErr := v.read(ctx, v.primary, id)
	secondaryValue, secondaryErr := v.read(ctx, v.secondary, id)

	result := Result[T]{
		PrimaryValue:   primaryValue,
		SecondaryValue: secondaryValue,
	}

	switch {
	case primaryErr != nil && secondaryErr != nil:
		return Result[T]{}, fmt.Errorf("failed to read entity %q from both stores: %w",
			id, errors.Join(primaryErr, secondaryErr))
	case primaryErr != nil:
		result.Differences = []string{fmt.Sprintf("failed to read from primary: %v", primaryErr)}
	case secondaryErr != nil:
		result.Differences = []string{fmt.Sprintf("failed to read from secondary: %v", secondaryErr)}
	case primaryValue == nil && secondaryValue == nil:
		result.IsConsistent = true
	case primaryValue == nil:
		result.Differences = []string{DiffMissingInPrimary}
	case secondaryValue == nil:
		result.Differences = []string{DiffMissingInSecondary}
	default:
		equal, err := Equal(primaryValue, secondaryValue)
		if err != nil {
			return Result[T]{}, fmt.Errorf("failed to compare entity %q: %w", id, err)
		}
		if equal {
			result.IsConsistent = true
		} else {
			result.Differences = []string{DiffDataDiffers}
		}
	}

	if !result.IsConsistent {
		v.log.Debug("entity is inconsistent",
			"entity_id", id,
			"differences", result.Differences,
		)
	}

	return result, nil
}

func (v *Validator[T]) read(ctx context.Context, r Reader[T], id string) (*T, error) {
	if r == nil {
		return nil, errors.New("store is not configured")
	}

	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	return r.Get(ctx, id)
}
