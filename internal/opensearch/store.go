package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rx3lixir/event-sync/internal/dualwrite"
	"github.com/rx3lixir/event-sync/internal/opensearch/client"
	"github.com/rx3lixir/event-sync/internal/opensearch/indexing"
	"github.com/rx3lixir/event-sync/pkg/logger"
)

const defaultScrollTTL = time.Minute

var errEmptyID = errors.New("entity id is required")

// Store - основное хранилище сущностей одного типа в индексе OpenSearch.
// _id документа совпадает с GetID() сущности.
type Store[T dualwrite.Identifiable] struct {
	client    *client.Client
	bulk      *indexing.BulkOperations
	index     string
	scrollTTL time.Duration
	logger    logger.Logger
}

func NewStore[T dualwrite.Identifiable](c *client.Client, entityType string, bulk *indexing.BulkOperations) *Store[T] {
	return &Store[T]{
		client:    c,
		bulk:      bulk,
		index:     c.IndexName(entityType),
		scrollTTL: defaultScrollTTL,
		logger:    c.Logger().With("index", c.IndexName(entityType)),
	}
}

// Index возвращает имя индекса
func (s *Store[T]) Index() string {
	return s.index
}

func (s *Store[T]) Get(ctx context.Context, id string) (*T, error) {
	native := s.client.GetNativeClient()
	res, err := native.Get(s.index, id, native.Get.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to get document %s: %w", id, err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if res.IsError() {
		return nil, fmt.Errorf("failed to get document %s: %w", id, client.ResponseError(res))
	}

	var doc struct {
		Found  bool            `json:"found"`
		Source json.RawMessage `json:"_source"`
	}
	if err := json.NewDecoder(res.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode document %s: %w", id, err)
	}
	if !doc.Found {
		return nil, nil
	}

	var entity T
	if err := json.Unmarshal(doc.Source, &entity); err != nil {
		return nil, fmt.Errorf("failed to decode document %s: %w", id, err)
	}
	return &entity, nil
}

// Insert создает документ; существующий id дает client.ErrDocumentExists
func (s *Store[T]) Insert(ctx context.Context, entity T) (T, error) {
	id := entity.GetID()
	if id == "" {
		return entity, errEmptyID
	}

	body, err := json.Marshal(entity)
	if err != nil {
		return entity, fmt.Errorf("failed to marshal document %s: %w", id, err)
	}

	native := s.client.GetNativeClient()
	res, err := native.Create(s.index, id, bytes.NewReader(body),
		native.Create.WithContext(ctx),
		native.Create.WithRefresh(s.client.Refresh()),
	)
	if err != nil {
		return entity, fmt.Errorf("failed to create document %s: %w", id, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return entity, fmt.Errorf("failed to create document %s: %w", id, client.ResponseError(res))
	}

	s.logger.Debug("Document created", "id", id)
	return entity, nil
}

// Update заменяет поля документа; отсутствующий документ дает 0
func (s *Store[T]) Update(ctx context.Context, entity T) (int, error) {
	id := entity.GetID()
	if id == "" {
		return 0, errEmptyID
	}

	body, err := json.Marshal(map[string]any{"doc": entity})
	if err != nil {
		return 0, fmt.Errorf("failed to marshal document %s: %w", id, err)
	}

	native := s.client.GetNativeClient()
	res, err := native.Update(s.index, id, bytes.NewReader(body),
		native.Update.WithContext(ctx),
		native.Update.WithRefresh(s.client.Refresh()),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to update document %s: %w", id, err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return 0, nil
	}
	if res.IsError() {
		return 0, fmt.Errorf("failed to update document %s: %w", id, client.ResponseError(res))
	}
	return 1, nil
}

func (s *Store[T]) Delete(ctx context.Context, entity T) (int, error) {
	id := entity.GetID()
	if id == "" {
		return 0, errEmptyID
	}

	native := s.client.GetNativeClient()
	res, err := native.Delete(s.index, id,
		native.Delete.WithContext(ctx),
		native.Delete.WithRefresh(s.client.Refresh()),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete document %s: %w", id, err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return 0, nil
	}
	if res.IsError() {
		return 0, fmt.Errorf("failed to delete document %s: %w", id, client.ResponseError(res))
	}
	return 1, nil
}

// InsertMany создает документы через bulk и возвращает созданные.
// Ошибка возвращается, только если не создан ни один документ.
func (s *Store[T]) InsertMany(ctx context.Context, entities []T) ([]T, error) {
	results, err := s.runBulk(ctx, indexing.ActionCreate, entities)
	if err != nil {
		return nil, err
	}

	created := succeeded(results, entities)
	if len(created) == 0 && len(entities) > 0 {
		return nil, bulkFailure("create", results)
	}
	return created, nil
}

// UpdateMany возвращает документы, для которых bulk ответил успехом.
// Отсутствующие документы (404) в результат не попадают.
func (s *Store[T]) UpdateMany(ctx context.Context, entities []T) ([]T, error) {
	results, err := s.runBulk(ctx, indexing.ActionUpdate, entities)
	if err != nil {
		return nil, err
	}
	return succeeded(results, entities), nil
}

func (s *Store[T]) DeleteMany(ctx context.Context, entities []T) ([]T, error) {
	results, err := s.runBulk(ctx, indexing.ActionDelete, entities)
	if err != nil {
		return nil, err
	}
	return succeeded(results, entities), nil
}

func (s *Store[T]) runBulk(ctx context.Context, action indexing.Action, entities []T) ([]indexing.ItemResult, error) {
	items := make([]indexing.Item, 0, len(entities))
	for _, e := range entities {
		if e.GetID() == "" {
			return nil, errEmptyID
		}
		item := indexing.Item{Action: action, ID: e.GetID()}
		if action != indexing.ActionDelete {
			item.Doc = e
		}
		items = append(items, item)
	}

	results, err := s.bulk.Execute(ctx, s.index, items)
	if err != nil {
		return nil, fmt.Errorf("failed to %s documents: %w", action, err)
	}
	return results, nil
}

// Scan читает индекс через scroll пачками по batchSize
func (s *Store[T]) Scan(ctx context.Context, batchSize int, fn func(batch []T) error) error {
	if batchSize <= 0 {
		batchSize = 100
	}

	native := s.client.GetNativeClient()
	res, err := native.Search(
		native.Search.WithContext(ctx),
		native.Search.WithIndex(s.index),
		native.Search.WithSize(batchSize),
		native.Search.WithScroll(s.scrollTTL),
		native.Search.WithSort("_doc"),
		native.Search.WithBody(strings.NewReader(`{"query":{"match_all":{}}}`)),
	)
	if err != nil {
		return fmt.Errorf("failed to start scroll: %w", err)
	}

	page, err := decodeScrollPage[T](res)
	if err != nil {
		return fmt.Errorf("failed to start scroll: %w", err)
	}

	scrollID := page.scrollID
	defer func() {
		if scrollID != "" {
			s.clearScroll(scrollID)
		}
	}()

	for len(page.entities) > 0 {
		if err := fn(page.entities); err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		res, err := native.Scroll(
			native.Scroll.WithContext(ctx),
			native.Scroll.WithScrollID(scrollID),
			native.Scroll.WithScroll(s.scrollTTL),
		)
		if err != nil {
			return fmt.Errorf("failed to continue scroll: %w", err)
		}

		page, err = decodeScrollPage[T](res)
		if err != nil {
			return fmt.Errorf("failed to continue scroll: %w", err)
		}
		if page.scrollID != "" {
			scrollID = page.scrollID
		}
	}

	return nil
}

func (s *Store[T]) clearScroll(scrollID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	native := s.client.GetNativeClient()
	res, err := native.ClearScroll(
		native.ClearScroll.WithContext(ctx),
		native.ClearScroll.WithScrollID(scrollID),
	)
	if err != nil {
		s.logger.Warn("Failed to clear scroll", "error", err)
		return
	}
	res.Body.Close()
}

// Count возвращает число документов в индексе
func (s *Store[T]) Count(ctx context.Context) (int64, error) {
	native := s.client.GetNativeClient()
	res, err := native.Count(
		native.Count.WithContext(ctx),
		native.Count.WithIndex(s.index),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return 0, fmt.Errorf("failed to count documents: %w", client.ResponseError(res))
	}

	var body struct {
		Count int64 `json:"count"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("failed to decode count response: %w", err)
	}
	return body.Count, nil
}

func (s *Store[T]) Ping(ctx context.Context) error {
	return client.NewHealthChecker(s.client).Check(ctx)
}
