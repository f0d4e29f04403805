package opensearch

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rx3lixir/event-sync/internal/opensearch/client"
	"github.com/rx3lixir/event-sync/internal/opensearch/indexing"
	"github.com/rx3lixir/event-sync/internal/opensearch/mapping"
	"github.com/rx3lixir/event-sync/pkg/logger"
	"github.com/rx3lixir/event-sync/pkg/resilience"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type doc struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

func (d doc) GetID() string { return d.ID }

// fakeCluster - минимальный in-memory OpenSearch для одного узла
type fakeCluster struct {
	mu      sync.Mutex
	indices map[string]map[string]json.RawMessage
	scrolls int
	cleared int
	down    bool
}

func newFakeCluster() *fakeCluster {
	return &fakeCluster{indices: make(map[string]map[string]json.RawMessage)}
}

func (f *fakeCluster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")

	if f.down && r.URL.Path != "/" {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	body, _ := io.ReadAll(r.Body)

	switch {
	case r.URL.Path == "/":
		if f.down {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		if r.Method == http.MethodHead {
			return
		}
		io.WriteString(w, `{"version":{"number":"2.11.0","distribution":"opensearch"},"tagline":"The OpenSearch Project"}`)

	case r.URL.Path == "/_bulk":
		f.bulk(w, body)

	case len(parts) >= 2 && parts[0] == "_search" && parts[1] == "scroll":
		if r.Method == http.MethodDelete {
			f.cleared++
			io.WriteString(w, `{"succeeded":true}`)
			return
		}
		scrollID := r.URL.Query().Get("scroll_id")
		if scrollID == "" {
			var req struct {
				ScrollID string `json:"scroll_id"`
			}
			_ = json.Unmarshal(body, &req)
			scrollID = req.ScrollID
		}
		f.page(w, scrollID)

	case len(parts) == 2 && parts[1] == "_search":
		size, _ := strconv.Atoi(r.URL.Query().Get("size"))
		f.scrolls++
		f.page(w, fmt.Sprintf("%s:%d:0", parts[0], size))

	case len(parts) == 2 && parts[1] == "_count":
		fmt.Fprintf(w, `{"count":%d}`, len(f.indices[parts[0]]))

	case len(parts) == 1 && r.Method == http.MethodHead:
		if _, ok := f.indices[parts[0]]; !ok {
			w.WriteHeader(http.StatusNotFound)
		}

	case len(parts) == 1 && r.Method == http.MethodPut:
		f.indices[parts[0]] = make(map[string]json.RawMessage)
		io.WriteString(w, `{"acknowledged":true}`)

	case len(parts) == 3:
		f.document(w, r.Method, parts[0], parts[1], parts[2], body)

	default:
		w.WriteHeader(http.StatusBadRequest)
	}
}

func (f *fakeCluster) index(name string) map[string]json.RawMessage {
	idx, ok := f.indices[name]
	if !ok {
		idx = make(map[string]json.RawMessage)
		f.indices[name] = idx
	}
	return idx
}

func (f *fakeCluster) document(w http.ResponseWriter, method, index, endpoint, id string, body []byte) {
	idx := f.index(index)

	switch endpoint {
	case "_create":
		if _, exists := idx[id]; exists {
			w.WriteHeader(http.StatusConflict)
			io.WriteString(w, `{"error":{"type":"version_conflict_engine_exception","reason":"document already exists"}}`)
			return
		}
		idx[id] = body
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `{"result":"created"}`)

	case "_update":
		current, ok := idx[id]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			io.WriteString(w, `{"error":{"type":"document_missing_exception","reason":"document missing"}}`)
			return
		}
		idx[id] = mergeDoc(current, body)
		io.WriteString(w, `{"result":"updated"}`)

	case "_doc":
		src, ok := idx[id]
		switch method {
		case http.MethodGet:
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				io.WriteString(w, `{"found":false}`)
				return
			}
			fmt.Fprintf(w, `{"found":true,"_id":%q,"_source":%s}`, id, src)
		case http.MethodDelete:
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				io.WriteString(w, `{"result":"not_found"}`)
				return
			}
			delete(idx, id)
			io.WriteString(w, `{"result":"deleted"}`)
		}
	}
}

func mergeDoc(current, update []byte) json.RawMessage {
	var partial struct {
		Doc map[string]any `json:"doc"`
	}
	var merged map[string]any
	_ = json.Unmarshal(update, &partial)
	_ = json.Unmarshal(current, &merged)
	for k, v := range partial.Doc {
		merged[k] = v
	}
	out, _ := json.Marshal(merged)
	return out
}

// page отдает страницу по курсору index:size:offset
func (f *fakeCluster) page(w http.ResponseWriter, scrollID string) {
	parts := strings.Split(scrollID, ":")
	if len(parts) != 3 {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	size, _ := strconv.Atoi(parts[1])
	offset, _ := strconv.Atoi(parts[2])
	idx := f.index(parts[0])

	ids := make([]string, 0, len(idx))
	for id := range idx {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	end := min(offset+size, len(ids))
	hits := make([]string, 0, size)
	for _, id := range ids[min(offset, len(ids)):end] {
		hits = append(hits, fmt.Sprintf(`{"_id":%q,"_source":%s}`, id, idx[id]))
	}

	fmt.Fprintf(w, `{"_scroll_id":"%s:%d:%d","hits":{"hits":[%s]}}`,
		parts[0], size, end, strings.Join(hits, ","))
}

func (f *fakeCluster) bulk(w http.ResponseWriter, body []byte) {
	scanner := bufio.NewScanner(strings.NewReader(string(body)))
	var items []string
	hasErrors := false

	for scanner.Scan() {
		var action map[string]struct {
			Index string `json:"_index"`
			ID    string `json:"_id"`
		}
		if err := json.Unmarshal(scanner.Bytes(), &action); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		for name, meta := range action {
			idx := f.index(meta.Index)
			status := http.StatusOK

			switch name {
			case "create":
				scanner.Scan()
				if _, exists := idx[meta.ID]; exists {
					status = http.StatusConflict
				} else {
					idx[meta.ID] = append(json.RawMessage(nil), scanner.Bytes()...)
					status = http.StatusCreated
				}
			case "update":
				scanner.Scan()
				if current, ok := idx[meta.ID]; ok {
					idx[meta.ID] = mergeDoc(current, scanner.Bytes())
				} else {
					status = http.StatusNotFound
				}
			case "delete":
				if _, ok := idx[meta.ID]; ok {
					delete(idx, meta.ID)
				} else {
					status = http.StatusNotFound
				}
			}

			if status >= 300 {
				hasErrors = true
				items = append(items, fmt.Sprintf(`{%q:{"_id":%q,"status":%d,"error":{"type":"failure","reason":"status %d"}}}`, name, meta.ID, status, status))
			} else {
				items = append(items, fmt.Sprintf(`{%q:{"_id":%q,"status":%d}}`, name, meta.ID, status))
			}
		}
	}

	fmt.Fprintf(w, `{"errors":%t,"items":[%s]}`, hasErrors, strings.Join(items, ","))
}

func newTestClient(t *testing.T) (*client.Client, *fakeCluster) {
	t.Helper()

	cluster := newFakeCluster()
	srv := httptest.NewServer(cluster)
	t.Cleanup(srv.Close)

	cfg := client.DefaultConfig()
	cfg.URL = srv.URL
	cfg.MaxRetries = 0
	cfg.Timeout = 2 * time.Second

	c, err := client.New(cfg, logger.NewNop())
	require.NoError(t, err)
	return c, cluster
}

func newTestStore(t *testing.T) (*Store[doc], *fakeCluster) {
	t.Helper()

	c, cluster := newTestClient(t)
	retry := resilience.NewRetryLogic(resilience.Settings{
		MaxAttempts: 2,
		BaseDelay:   time.Millisecond,
		MaxDelay:    time.Millisecond,
	}, logger.NewNop())

	return NewStore[doc](c, "docs", indexing.NewBulkOperations(c, retry, logger.NewNop())), cluster
}

func TestStore_CRUD(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	assert.Equal(t, "eventsync_docs", store.Index())

	got, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.Nil(t, got, "missing document reads as nil")

	_, err = store.Insert(ctx, doc{ID: "a", Name: "first", Price: 10})
	require.NoError(t, err)

	_, err = store.Insert(ctx, doc{ID: "a", Name: "dup"})
	require.Error(t, err)
	assert.ErrorIs(t, err, client.ErrDocumentExists)
	assert.False(t, resilience.IsTransient(err))

	got, err = store.Get(ctx, "a")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, doc{ID: "a", Name: "first", Price: 10}, *got)

	n, err := store.Update(ctx, doc{ID: "a", Name: "renamed", Price: 12})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err = store.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Name)

	n, err = store.Update(ctx, doc{ID: "missing"})
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = store.Delete(ctx, doc{ID: "a"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = store.Delete(ctx, doc{ID: "a"})
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestStore_EmptyID(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	_, err := store.Insert(ctx, doc{Name: "no id"})
	assert.ErrorIs(t, err, errEmptyID)

	_, err = store.InsertMany(ctx, []doc{{ID: "x"}, {}})
	assert.ErrorIs(t, err, errEmptyID)
}

func TestStore_Bulk(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	_, err := store.Insert(ctx, doc{ID: "b", Name: "existing"})
	require.NoError(t, err)

	created, err := store.InsertMany(ctx, []doc{{ID: "a"}, {ID: "b"}, {ID: "c"}})
	require.NoError(t, err)
	assert.Equal(t, []doc{{ID: "a"}, {ID: "c"}}, created, "conflicting document is not reported as created")

	_, err = store.InsertMany(ctx, []doc{{ID: "a"}, {ID: "c"}})
	require.Error(t, err, "all failed returns an error")

	updated, err := store.UpdateMany(ctx, []doc{{ID: "a", Name: "x"}, {ID: "zzz"}})
	require.NoError(t, err)
	assert.Equal(t, []doc{{ID: "a", Name: "x"}}, updated, "missing document is not reported as updated")

	deleted, err := store.DeleteMany(ctx, []doc{{ID: "a"}, {ID: "b"}, {ID: "zzz"}})
	require.NoError(t, err)
	assert.Equal(t, []doc{{ID: "a"}, {ID: "b"}}, deleted)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestStore_Scan(t *testing.T) {
	store, cluster := newTestStore(t)
	ctx := context.Background()

	var docs []doc
	for i := 0; i < 7; i++ {
		docs = append(docs, doc{ID: fmt.Sprintf("d%02d", i)})
	}
	_, err := store.InsertMany(ctx, docs)
	require.NoError(t, err)

	var batches [][]doc
	err = store.Scan(ctx, 3, func(batch []doc) error {
		batches = append(batches, batch)
		return nil
	})
	require.NoError(t, err)

	require.Len(t, batches, 3)
	assert.Len(t, batches[0], 3)
	assert.Len(t, batches[1], 3)
	assert.Len(t, batches[2], 1)
	assert.Equal(t, 1, cluster.cleared, "scroll context is cleared")

	stop := errors.New("stop")
	calls := 0
	err = store.Scan(ctx, 3, func(batch []doc) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

func TestStore_Unavailable(t *testing.T) {
	store, cluster := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Ping(ctx))

	cluster.mu.Lock()
	cluster.down = true
	cluster.mu.Unlock()

	assert.Error(t, store.Ping(ctx))

	_, err := store.Get(ctx, "a")
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err), "503 is retryable")
}

func TestMappingManager_EnsureIndex(t *testing.T) {
	c, cluster := newTestClient(t)
	m := mapping.NewManager(c, logger.NewNop())

	require.NoError(t, m.EnsureIndex(context.Background(), "events"))
	_, created := cluster.indices["eventsync_events"]
	assert.True(t, created)

	// повторный вызов не пересоздает индекс
	require.NoError(t, m.EnsureIndex(context.Background(), "events"))

	body, err := mapping.LoadMapping("events")
	require.NoError(t, err)
	assert.Contains(t, body, `"category_id"`)

	body, err = mapping.LoadMapping("unknown")
	require.NoError(t, err)
	assert.Empty(t, body)
}

func TestHealthChecker(t *testing.T) {
	c, cluster := newTestClient(t)
	hc := client.NewHealthChecker(c)

	require.NoError(t, hc.WaitForHealthy(context.Background(), 2, time.Millisecond))

	cluster.mu.Lock()
	cluster.down = true
	cluster.mu.Unlock()

	err := hc.WaitForHealthy(context.Background(), 2, time.Millisecond)
	assert.Error(t, err)
}
