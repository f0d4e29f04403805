package surrealdb

import (
	"context"
	"errors"
	"fmt"

	"github.com/rx3lixir/event-sync/internal/dualwrite"
	"github.com/surrealdb/surrealdb.go"
	"github.com/surrealdb/surrealdb.go/pkg/models"
)

const (
	getQuery        = "SELECT * FROM $rid"
	createQuery     = "CREATE $rid CONTENT $data"
	updateQuery     = "UPDATE $rid CONTENT $data"
	deleteQuery     = "DELETE $rid RETURN BEFORE"
	insertManyQuery = "INSERT IGNORE INTO type::table($tb) $rows"
	firstPageQuery  = "SELECT * FROM type::table($tb) ORDER BY id LIMIT $limit"
	nextPageQuery   = "SELECT * FROM type::table($tb) WHERE id > $after ORDER BY id LIMIT $limit"
	countQuery      = "SELECT count() AS count FROM type::table($tb) GROUP ALL"
	pingQuery       = "RETURN true"
)

type document = map[string]any

// Store - основное хранилище сущностей одного типа в таблице SurrealDB.
// Ключ записи совпадает с GetID() сущности.
type Store[T dualwrite.Identifiable] struct {
	db    *surrealdb.DB
	table string
}

func NewStore[T dualwrite.Identifiable](db *surrealdb.DB, table string) *Store[T] {
	return &Store[T]{db: db, table: table}
}

// rows выполняет один запрос и возвращает строки первого результата
func (s *Store[T]) rows(ctx context.Context, query string, vars map[string]any) ([]document, error) {
	result, err := surrealdb.Query[[]document](ctx, s.db, query, vars)
	if err != nil {
		return nil, classify(err)
	}
	if result == nil || len(*result) == 0 {
		return nil, nil
	}
	return (*result)[0].Result, nil
}

func (s *Store[T]) Get(ctx context.Context, id string) (*T, error) {
	rows, err := s.rows(ctx, getQuery, map[string]any{
		"rid": models.NewRecordID(s.table, id),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get %s:%s: %w", s.table, id, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	entity, err := fromDocument[T](rows[0])
	if err != nil {
		return nil, err
	}
	return &entity, nil
}

// Insert создает запись; существующий id дает ErrRecordExists
func (s *Store[T]) Insert(ctx context.Context, entity T) (T, error) {
	rid, doc, err := toDocument(s.table, entity)
	if err != nil {
		return entity, err
	}

	if _, err := s.rows(ctx, createQuery, map[string]any{"rid": rid, "data": doc}); err != nil {
		return entity, fmt.Errorf("failed to create %s:%s: %w", s.table, entity.GetID(), err)
	}
	return entity, nil
}

// Update заменяет содержимое записи; отсутствующая запись дает 0
func (s *Store[T]) Update(ctx context.Context, entity T) (int, error) {
	rid, doc, err := toDocument(s.table, entity)
	if err != nil {
		return 0, err
	}

	rows, err := s.rows(ctx, updateQuery, map[string]any{"rid": rid, "data": doc})
	if err != nil {
		return 0, fmt.Errorf("failed to update %s:%s: %w", s.table, entity.GetID(), err)
	}
	return len(rows), nil
}

func (s *Store[T]) Delete(ctx context.Context, entity T) (int, error) {
	if entity.GetID() == "" {
		return 0, errors.New("entity id is required")
	}

	rows, err := s.rows(ctx, deleteQuery, map[string]any{
		"rid": models.NewRecordID(s.table, entity.GetID()),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to delete %s:%s: %w", s.table, entity.GetID(), err)
	}
	return len(rows), nil
}

// InsertMany вставляет записи одним запросом, существующие id пропускаются.
// Возвращает только созданные сущности.
func (s *Store[T]) InsertMany(ctx context.Context, entities []T) ([]T, error) {
	if len(entities) == 0 {
		return nil, nil
	}

	docs := make([]document, 0, len(entities))
	for _, e := range entities {
		rid, doc, err := toDocument(s.table, e)
		if err != nil {
			return nil, err
		}
		doc["id"] = rid
		docs = append(docs, doc)
	}

	rows, err := s.rows(ctx, insertManyQuery, map[string]any{"tb": s.table, "rows": docs})
	if err != nil {
		return nil, fmt.Errorf("failed to insert into %s: %w", s.table, err)
	}

	return decodeAll[T](rows)
}

// UpdateMany обновляет записи по одной, чтобы знать, какие из них существуют
func (s *Store[T]) UpdateMany(ctx context.Context, entities []T) ([]T, error) {
	updated := make([]T, 0, len(entities))
	for _, e := range entities {
		n, err := s.Update(ctx, e)
		if err != nil {
			return nil, err
		}
		if n > 0 {
			updated = append(updated, e)
		}
	}
	return updated, nil
}

func (s *Store[T]) DeleteMany(ctx context.Context, entities []T) ([]T, error) {
	deleted := make([]T, 0, len(entities))
	for _, e := range entities {
		n, err := s.Delete(ctx, e)
		if err != nil {
			return nil, err
		}
		if n > 0 {
			deleted = append(deleted, e)
		}
	}
	return deleted, nil
}

// Scan читает таблицу постранично по ключу записи
func (s *Store[T]) Scan(ctx context.Context, batchSize int, fn func(batch []T) error) error {
	if batchSize <= 0 {
		batchSize = 100
	}

	query := firstPageQuery
	vars := map[string]any{"tb": s.table, "limit": batchSize}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		rows, err := s.rows(ctx, query, vars)
		if err != nil {
			return fmt.Errorf("failed to scan %s: %w", s.table, err)
		}
		if len(rows) == 0 {
			return nil
		}

		batch, err := decodeAll[T](rows)
		if err != nil {
			return err
		}
		if err := fn(batch); err != nil {
			return err
		}
		if len(rows) < batchSize {
			return nil
		}

		query = nextPageQuery
		vars["after"] = rows[len(rows)-1]["id"]
	}
}

// Count возвращает число записей в таблице
func (s *Store[T]) Count(ctx context.Context) (int64, error) {
	result, err := surrealdb.Query[[]struct {
		Count int64 `json:"count"`
	}](ctx, s.db, countQuery, map[string]any{"tb": s.table})
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", s.table, err)
	}
	if result == nil || len(*result) == 0 || len((*result)[0].Result) == 0 {
		return 0, nil
	}
	return (*result)[0].Result[0].Count, nil
}

func (s *Store[T]) Ping(ctx context.Context) error {
	if _, err := surrealdb.Query[bool](ctx, s.db, pingQuery, nil); err != nil {
		return fmt.Errorf("failed to ping surrealdb: %w", err)
	}
	return nil
}

func decodeAll[T any](rows []document) ([]T, error) {
	out := make([]T, 0, len(rows))
	for _, row := range rows {
		entity, err := fromDocument[T](row)
		if err != nil {
			return nil, err
		}
		out = append(out, entity)
	}
	return out, nil
}
