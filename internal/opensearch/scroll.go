package opensearch

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/opensearch-project/opensearch-go/opensearchapi"
	"github.com/rx3lixir/event-sync/internal/opensearch/client"
	"github.com/rx3lixir/event-sync/internal/opensearch/indexing"
)

type scrollPage[T any] struct {
	scrollID string
	entities []T
}

func decodeScrollPage[T any](res *opensearchapi.Response) (scrollPage[T], error) {
	defer res.Body.Close()

	if res.IsError() {
		return scrollPage[T]{}, client.ResponseError(res)
	}

	var body struct {
		ScrollID string `json:"_scroll_id"`
		Hits     struct {
			Hits []struct {
				Source json.RawMessage `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return scrollPage[T]{}, fmt.Errorf("failed to decode search response: %w", err)
	}

	page := scrollPage[T]{
		scrollID: body.ScrollID,
		entities: make([]T, 0, len(body.Hits.Hits)),
	}
	for _, hit := range body.Hits.Hits {
		var entity T
		if err := json.Unmarshal(hit.Source, &entity); err != nil {
			return scrollPage[T]{}, fmt.Errorf("failed to decode document: %w", err)
		}
		page.entities = append(page.entities, entity)
	}
	return page, nil
}

// succeeded отбирает сущности с успешным результатом bulk, порядок совпадает с запросом
func succeeded[T any](results []indexing.ItemResult, entities []T) []T {
	out := make([]T, 0, len(entities))
	for i, r := range results {
		if r.OK() && i < len(entities) {
			out = append(out, entities[i])
		}
	}
	return out
}

// bulkFailure собирает первые ошибки bulk ответа
func bulkFailure(action string, results []indexing.ItemResult) error {
	var msgs []string
	for _, r := range results {
		if r.Error != "" {
			msgs = append(msgs, fmt.Sprintf("%s: %s", r.ID, r.Error))
		}
		if len(msgs) == 5 {
			break
		}
	}
	return fmt.Errorf("all bulk %s operations failed: %s", action, strings.Join(msgs, "; "))
}
