package surrealdb

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rx3lixir/event-sync/pkg/resilience"
	"github.com/surrealdb/surrealdb.go/pkg/models"
)

// ErrRecordExists - запись с таким id уже есть в таблице
var ErrRecordExists = errors.New("record already exists")

// toDocument превращает сущность в документ SurrealDB.
// Поле id уходит в RecordID, поэтому из содержимого удаляется.
func toDocument(table string, entity any) (models.RecordID, map[string]any, error) {
	data, err := json.Marshal(entity)
	if err != nil {
		return models.RecordID{}, nil, fmt.Errorf("failed to marshal entity: %w", err)
	}

	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return models.RecordID{}, nil, fmt.Errorf("failed to convert entity to document: %w", err)
	}

	id, _ := doc["id"].(string)
	if id == "" {
		return models.RecordID{}, nil, errors.New("entity id is required")
	}
	delete(doc, "id")

	return models.NewRecordID(table, id), doc, nil
}

// fromDocument собирает сущность из документа, id берется из RecordID
func fromDocument[T any](doc map[string]any) (T, error) {
	var entity T

	out := make(map[string]any, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	if raw, ok := doc["id"]; ok {
		out["id"] = recordKey(raw)
	}

	data, err := json.Marshal(out)
	if err != nil {
		return entity, fmt.Errorf("failed to marshal document: %w", err)
	}
	if err := json.Unmarshal(data, &entity); err != nil {
		return entity, fmt.Errorf("failed to decode document: %w", err)
	}
	return entity, nil
}

// recordKey возвращает ключ записи без имени таблицы
func recordKey(v any) string {
	switch id := v.(type) {
	case models.RecordID:
		return fmt.Sprint(id.ID)
	case *models.RecordID:
		if id == nil {
			return ""
		}
		return fmt.Sprint(id.ID)
	case string:
		if _, key, ok := strings.Cut(id, ":"); ok {
			return strings.Trim(key, "`⟨⟩")
		}
		return id
	default:
		return fmt.Sprint(v)
	}
}

// classify переводит ошибки SurrealDB в ошибки хранилища
func classify(err error) error {
	if err == nil {
		return nil
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "already exists"):
		return fmt.Errorf("%w: %w", ErrRecordExists, err)
	case strings.Contains(msg, "transaction conflict"),
		strings.Contains(msg, "resource busy"),
		strings.Contains(msg, "can be retried"):
		return resilience.Conflict(err)
	}
	return err
}
