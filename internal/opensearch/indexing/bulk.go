package indexing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/rx3lixir/event-sync/internal/opensearch/client"
	"github.com/rx3lixir/event-sync/pkg/logger"
	"github.com/rx3lixir/event-sync/pkg/resilience"
)

const maxBatchSize = 100

// Action тип bulk операции
type Action string

const (
	ActionCreate Action = "create"
	ActionIndex  Action = "index"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Item одна операция bulk запроса. Doc не нужен для delete.
type Item struct {
	Action Action
	ID     string
	Doc    any
}

// ItemResult результат одной операции в порядке запроса
type ItemResult struct {
	ID     string
	Status int
	Error  string
}

func (r ItemResult) OK() bool {
	return r.Error == "" && r.Status >= 200 && r.Status < 300
}

type BulkOperations struct {
	client     *client.Client
	retryLogic *resilience.RetryLogic
	logger     logger.Logger
}

func NewBulkOperations(client *client.Client, retryLogic *resilience.RetryLogic, logger logger.Logger) *BulkOperations {
	return &BulkOperations{
		client:     client,
		retryLogic: retryLogic,
		logger:     logger,
	}
}

// Execute выполняет операции пачками и возвращает результат по каждой.
// Ошибка возвращается, только если запрос не дошел до кластера.
func (b *BulkOperations) Execute(ctx context.Context, index string, items []Item) ([]ItemResult, error) {
	results := make([]ItemResult, 0, len(items))

	// Разбиваем на батчи если необходимо
	for i := 0; i < len(items); i += maxBatchSize {
		end := min(i+maxBatchSize, len(items))

		batch := items[i:end]
		batchResults, err := b.processBatch(ctx, index, batch)
		if err != nil {
			return results, fmt.Errorf("failed to process batch %d-%d: %w", i, end-1, err)
		}
		results = append(results, batchResults...)

		b.logger.Debug("Batch processed successfully",
			"index", index,
			"batch_start", i,
			"batch_end", end-1,
			"batch_size", len(batch))
	}

	return results, nil
}

func (b *BulkOperations) processBatch(ctx context.Context, index string, items []Item) ([]ItemResult, error) {
	var results []ItemResult
	_, err := b.retryLogic.Execute(ctx, func(ctx context.Context) error {
		var err error
		results, err = b.executeBulkRequest(ctx, index, items)
		return err
	})
	return results, err
}

func (b *BulkOperations) executeBulkRequest(ctx context.Context, index string, items []Item) ([]ItemResult, error) {
	body, err := b.buildBulkBody(index, items)
	if err != nil {
		return nil, fmt.Errorf("failed to build bulk body: %w", err)
	}

	native := b.client.GetNativeClient()
	res, err := native.Bulk(
		bytes.NewReader(body),
		native.Bulk.WithContext(ctx),
		native.Bulk.WithRefresh(b.client.Refresh()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to execute bulk request: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, client.ResponseError(res)
	}

	return b.checkBulkResponse(res.Body, items)
}

func (b *BulkOperations) buildBulkBody(index string, items []Item) ([]byte, error) {
	var buf bytes.Buffer

	for _, item := range items {
		// Action line
		actionLine := map[Action]any{
			item.Action: map[string]any{
				"_index": index,
				"_id":    item.ID,
			},
		}

		actionBytes, err := json.Marshal(actionLine)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal action line: %w", err)
		}

		buf.Write(actionBytes)
		buf.WriteByte('\n')

		if item.Action == ActionDelete {
			continue
		}

		// Document line
		var doc any = item.Doc
		if item.Action == ActionUpdate {
			doc = map[string]any{"doc": item.Doc}
		}
		docBytes, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal document %s: %w", item.ID, err)
		}

		buf.Write(docBytes)
		buf.WriteByte('\n')
	}

	return buf.Bytes(), nil
}

type bulkItemStatus struct {
	ID     string `json:"_id"`
	Status int    `json:"status"`
	Error  *struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error,omitempty"`
}

func (b *BulkOperations) checkBulkResponse(body io.Reader, items []Item) ([]ItemResult, error) {
	var response struct {
		Errors bool                        `json:"errors"`
		Items  []map[Action]bulkItemStatus `json:"items"`
	}

	if err := json.NewDecoder(body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode bulk response: %w", err)
	}

	results := make([]ItemResult, 0, len(response.Items))
	failed := 0

	for i, item := range response.Items {
		for _, st := range item {
			r := ItemResult{ID: st.ID, Status: st.Status}
			if r.ID == "" && i < len(items) {
				r.ID = items[i].ID
			}
			if st.Error != nil {
				r.Error = fmt.Sprintf("%s - %s", st.Error.Type, st.Error.Reason)
			} else if st.Status >= 300 {
				r.Error = fmt.Sprintf("status %d", st.Status)
			}
			if r.Error != "" {
				failed++
			}
			results = append(results, r)
		}
	}

	if !response.Errors && failed == 0 {
		b.logger.Debug("Bulk operation completed successfully",
			"operations", len(results))
		return results, nil
	}

	b.logger.Warn("Bulk operation completed with errors",
		"total_operations", len(results),
		"successful", len(results)-failed,
		"failed", failed)

	return results, nil
}
