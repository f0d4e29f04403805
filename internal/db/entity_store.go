package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rx3lixir/event-sync/internal/dualwrite"
	"gorm.io/gorm"
)

// EntityStore - вторичное хранилище сущностей одного типа поверх gorm.
// Таблица берется из TableName() модели.
type EntityStore[T dualwrite.Identifiable] struct {
	db    *gorm.DB
	sqlDB *sql.DB
}

// NewEntityStore создает хранилище; sqlDB используется для Ping
func NewEntityStore[T dualwrite.Identifiable](db *gorm.DB, sqlDB *sql.DB) *EntityStore[T] {
	return &EntityStore[T]{db: db, sqlDB: sqlDB}
}

func (s *EntityStore[T]) Get(ctx context.Context, id string) (*T, error) {
	var entity T
	err := s.db.WithContext(ctx).First(&entity, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get %s: %w", id, classify(err))
	}
	return &entity, nil
}

func (s *EntityStore[T]) Insert(ctx context.Context, entity T) error {
	if err := s.db.WithContext(ctx).Create(&entity).Error; err != nil {
		return fmt.Errorf("failed to insert %s: %w", entity.GetID(), classify(err))
	}
	return nil
}

// Update перезаписывает все колонки строки и возвращает число измененных строк
func (s *EntityStore[T]) Update(ctx context.Context, entity T) (int, error) {
	res := s.db.WithContext(ctx).
		Model(&entity).
		Where("id = ?", entity.GetID()).
		Select("*").
		Updates(&entity)
	if res.Error != nil {
		return 0, fmt.Errorf("failed to update %s: %w", entity.GetID(), classify(res.Error))
	}
	return int(res.RowsAffected), nil
}

func (s *EntityStore[T]) Delete(ctx context.Context, id string) (int, error) {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(new(T))
	if res.Error != nil {
		return 0, fmt.Errorf("failed to delete %s: %w", id, classify(res.Error))
	}
	return int(res.RowsAffected), nil
}

func (s *EntityStore[T]) Exists(ctx context.Context, id string) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(new(T)).Where("id = ?", id).Limit(1).Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("failed to check %s: %w", id, classify(err))
	}
	return n > 0, nil
}

// Count возвращает число строк в таблице
func (s *EntityStore[T]) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(new(T)).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to count rows: %w", err)
	}
	return n, nil
}

func (s *EntityStore[T]) Ping(ctx context.Context) error {
	return s.sqlDB.PingContext(ctx)
}
