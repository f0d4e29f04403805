package mapping

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/opensearch-project/opensearch-go/opensearchapi"
	"github.com/rx3lixir/event-sync/internal/opensearch/client"
	"github.com/rx3lixir/event-sync/pkg/logger"
)

//go:embed *.json
var mappingFiles embed.FS

type Manager struct {
	client *client.Client
	logger logger.Logger
}

func NewManager(client *client.Client, log logger.Logger) *Manager {
	return &Manager{
		client: client,
		logger: log,
	}
}

// EnsureIndex создает индекс типа сущности, если его еще нет.
// Маппинг берется из <entityType>.json; без файла индекс создается с динамическим маппингом.
func (m *Manager) EnsureIndex(ctx context.Context, entityType string) error {
	indexName := m.client.IndexName(entityType)

	// Проверяем существование индекса
	exists, err := m.indexExists(ctx, indexName)
	if err != nil {
		return fmt.Errorf("failed to check index existence: %w", err)
	}
	if exists {
		m.logger.Info("OpenSearch index already exists", "index", indexName)
		return nil
	}

	return m.createIndex(ctx, entityType, indexName)
}

func (m *Manager) indexExists(ctx context.Context, indexName string) (bool, error) {
	res, err := m.client.GetNativeClient().Indices.Exists(
		[]string{indexName},
		m.client.GetNativeClient().Indices.Exists.WithContext(ctx),
	)
	if err != nil {
		return false, err
	}
	defer res.Body.Close()

	return res.StatusCode == 200, nil
}

func (m *Manager) createIndex(ctx context.Context, entityType, indexName string) error {
	mapping, err := LoadMapping(entityType)
	if err != nil {
		return fmt.Errorf("failed to load mapping: %w", err)
	}

	native := m.client.GetNativeClient()
	opts := []func(*opensearchapi.IndicesCreateRequest){native.Indices.Create.WithContext(ctx)}
	if mapping != "" {
		opts = append(opts, native.Indices.Create.WithBody(strings.NewReader(mapping)))
	}

	res, err := native.Indices.Create(indexName, opts...)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("failed to create index %s: %w", indexName, client.ResponseError(res))
	}

	m.logger.Info("OpenSearch index created successfully", "index", indexName)

	return nil
}

// LoadMapping возвращает встроенный маппинг или пустую строку
func LoadMapping(entityType string) (string, error) {
	data, err := mappingFiles.ReadFile(entityType + ".json")
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read %s mapping: %w", entityType, err)
	}
	return string(data), nil
}
