package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/opensearch-project/opensearch-go/opensearchapi"
)

// ErrDocumentExists - документ с таким id уже есть в индексе
var ErrDocumentExists = errors.New("document already exists")

// StatusError - неуспешный HTTP ответ OpenSearch
type StatusError struct {
	StatusCode int
	Type       string
	Reason     string
}

func (e *StatusError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("opensearch returned %d %s: %s", e.StatusCode, e.Type, e.Reason)
	}
	return fmt.Sprintf("opensearch returned %d", e.StatusCode)
}

// Transient сообщает, что запрос можно повторить
func (e *StatusError) Transient() bool {
	switch e.StatusCode {
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

func (e *StatusError) Unwrap() error {
	if e.StatusCode == http.StatusConflict {
		return ErrDocumentExists
	}
	return nil
}

// ResponseError читает тело ответа с ошибкой
func ResponseError(res *opensearchapi.Response) error {
	var body struct {
		Error struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error"`
	}

	data, _ := io.ReadAll(io.LimitReader(res.Body, 64<<10))
	_ = json.Unmarshal(data, &body)

	return &StatusError{
		StatusCode: res.StatusCode,
		Type:       body.Error.Type,
		Reason:     body.Error.Reason,
	}
}
