package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rx3lixir/event-sync/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func up() Checker {
	return CheckerFunc(func(ctx context.Context) CheckResult { return CheckResult{Status: StatusUp} })
}

func down(msg string) Checker {
	return CheckerFunc(func(ctx context.Context) CheckResult {
		return CheckResult{Status: StatusDown, Error: msg}
	})
}

func TestHealth_Check(t *testing.T) {
	t.Run("all up", func(t *testing.T) {
		h := New("svc", "1.0")
		h.AddCheck("a", up())
		h.AddCheck("b", up())

		resp := h.Check(context.Background())
		assert.Equal(t, StatusUp, resp.Status)
		assert.Equal(t, "svc", resp.Service)
		assert.Equal(t, "1.0", resp.Version)
		assert.Len(t, resp.Checks, 2)
	})

	t.Run("one down", func(t *testing.T) {
		h := New("svc", "1.0")
		h.AddCheck("a", up())
		h.AddCheck("b", down("boom"))

		resp := h.Check(context.Background())
		assert.Equal(t, StatusDown, resp.Status)
		assert.Equal(t, "boom", resp.Checks["b"].Error)
		assert.Equal(t, StatusUp, resp.Checks["a"].Status)
	})

	t.Run("no checks", func(t *testing.T) {
		resp := New("svc", "1.0").Check(context.Background())
		assert.Equal(t, StatusUp, resp.Status)
		assert.Empty(t, resp.Checks)
	})
}

func TestHealth_CheckTimeout(t *testing.T) {
	h := New("svc", "1.0", WithTimeout(20*time.Millisecond))
	h.AddCheck("slow", CheckerFunc(func(ctx context.Context) CheckResult {
		time.Sleep(200 * time.Millisecond)
		return CheckResult{Status: StatusUp}
	}))

	start := time.Now()
	resp := h.Check(context.Background())

	assert.Less(t, time.Since(start), 150*time.Millisecond)
	assert.Equal(t, StatusDown, resp.Status)
	assert.Equal(t, "check timed out", resp.Checks["slow"].Error)
}

func TestHealth_CheckPanic(t *testing.T) {
	h := New("svc", "1.0")
	h.AddCheck("bad", CheckerFunc(func(ctx context.Context) CheckResult { panic("boom") }))
	h.AddCheck("good", up())

	resp := h.Check(context.Background())
	assert.Equal(t, StatusDown, resp.Status)
	assert.Equal(t, "check panicked", resp.Checks["bad"].Error)
	assert.Equal(t, StatusUp, resp.Checks["good"].Status)
}

func TestHealth_Names(t *testing.T) {
	h := New("svc", "1.0")
	h.AddCheck("zeta", up())
	h.AddCheck("alpha", up())
	h.AddCheck("alpha", down("replaced"))

	assert.Equal(t, []string{"alpha", "zeta"}, h.Names())
}

func TestProbeChecker(t *testing.T) {
	ok := ProbeChecker("surrealdb", func(ctx context.Context) bool { return true }).Check(context.Background())
	assert.Equal(t, StatusUp, ok.Status)
	assert.Equal(t, "surrealdb", ok.Details["backend"])

	bad := ProbeChecker("surrealdb", func(ctx context.Context) bool { return false }).Check(context.Background())
	assert.Equal(t, StatusDown, bad.Status)
	assert.Contains(t, bad.Error, "surrealdb is unreachable")
}

func TestSyncBacklogChecker(t *testing.T) {
	tests := []struct {
		name   string
		count  int
		err    error
		max    int
		status Status
	}{
		{name: "under limit", count: 3, max: 10, status: StatusUp},
		{name: "at limit", count: 10, max: 10, status: StatusUp},
		{name: "over limit", count: 11, max: 10, status: StatusDown},
		{name: "read error", err: errors.New("db down"), max: 10, status: StatusDown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := SyncBacklogChecker(func(ctx context.Context) (int, error) { return tt.count, tt.err }, tt.max)
			assert.Equal(t, tt.status, c.Check(context.Background()).Status)
		})
	}
}

// fakeRow отдает заранее заданные значения в Scan
type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *int64:
			*p = r.values[i].(int64)
		case *bool:
			*p = r.values[i].(bool)
		}
	}
	return nil
}

type fakeQuerier struct {
	rows func(sql string, args ...any) pgx.Row
}

func (q fakeQuerier) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return q.rows(sql, args...)
}

func migrationRow(version int64, dirty bool, err error) fakeQuerier {
	return fakeQuerier{rows: func(string, ...any) pgx.Row {
		return fakeRow{values: []any{version, dirty}, err: err}
	}}
}

func TestMigrationChecker(t *testing.T) {
	tests := []struct {
		name     string
		q        fakeQuerier
		expected uint
		status   Status
		errMsg   string
	}{
		{name: "clean", q: migrationRow(3, false, nil), expected: 3, status: StatusUp},
		{name: "ahead of expected", q: migrationRow(4, false, nil), expected: 3, status: StatusUp},
		{name: "no expectation", q: migrationRow(1, false, nil), status: StatusUp},
		{name: "dirty", q: migrationRow(3, true, nil), expected: 3, status: StatusDown, errMsg: "migration is dirty"},
		{name: "behind", q: migrationRow(2, false, nil), expected: 3, status: StatusDown, errMsg: "schema is behind expected version"},
		{name: "no table", q: migrationRow(0, false, pgx.ErrNoRows), status: StatusDown, errMsg: "failed to read migration version"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := MigrationChecker(tt.q, tt.expected).Check(context.Background())
			assert.Equal(t, tt.status, res.Status)
			if tt.errMsg != "" {
				assert.Contains(t, res.Error, tt.errMsg)
			}
		})
	}
}

func TestSimpleTableChecker(t *testing.T) {
	present := map[string]bool{"sync_log": true, "events": true}
	q := fakeQuerier{rows: func(sql string, args ...any) pgx.Row {
		return fakeRow{values: []any{present[args[0].(string)]}}
	}}

	ok := SimpleTableChecker(q, []string{"sync_log", "events"}).Check(context.Background())
	assert.Equal(t, StatusUp, ok.Status)

	missing := SimpleTableChecker(q, []string{"sync_log", "categories"}).Check(context.Background())
	assert.Equal(t, StatusDown, missing.Status)
	assert.Equal(t, []string{"categories"}, missing.Details["missing"])
}

func TestServer_Handlers(t *testing.T) {
	s := NewServer(nil, logger.NewNop(), WithServiceName("eventsync"), WithVersion("1.2.3"))
	s.AddCheck("primary", up())

	t.Run("health up", func(t *testing.T) {
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		var resp Response
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, StatusUp, resp.Status)
		assert.Equal(t, "eventsync", resp.Service)
		assert.Contains(t, resp.Checks, "primary")
	})

	t.Run("live", func(t *testing.T) {
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/live", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "ALIVE", rec.Body.String())
	})

	t.Run("info", func(t *testing.T) {
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/info", nil))

		var info map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
		assert.Equal(t, "1.2.3", info["version"])
		assert.Equal(t, []any{"primary"}, info["checks"])
	})

	t.Run("health down", func(t *testing.T) {
		s.AddCheck("secondary", down("refused"))
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.False(t, s.IsHealthy(context.Background()))
	})
}

func TestGRPCReporter(t *testing.T) {
	primaryUp := true
	changes := map[string][]bool{}

	r := NewGRPCReporter(logger.NewNop(), func(service string, serving bool) {
		changes[service] = append(changes[service], serving)
	})
	r.AddProbe("eventsync.primary", func(ctx context.Context) bool { return primaryUp })
	r.AddProbe("eventsync.secondary", func(ctx context.Context) bool { return true })

	status := func(service string) healthpb.HealthCheckResponse_ServingStatus {
		resp, err := r.Server().Check(context.Background(), &healthpb.HealthCheckRequest{Service: service})
		require.NoError(t, err)
		return resp.GetStatus()
	}

	r.Refresh(context.Background())
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, status("eventsync.primary"))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, status(""))

	primaryUp = false
	r.Refresh(context.Background())
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, status("eventsync.primary"))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, status("eventsync.secondary"))
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, status(""))

	// повторный опрос без изменений не вызывает callback
	r.Refresh(context.Background())
	assert.Equal(t, []bool{true, false}, changes["eventsync.primary"])
	assert.Equal(t, []bool{true}, changes["eventsync.secondary"])
}
