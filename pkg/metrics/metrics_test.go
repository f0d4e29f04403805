package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rx3lixir/event-sync/pkg/logger"
	"github.com/rx3lixir/event-sync/pkg/resilience"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestRecordSecondaryWrite(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordSecondaryWrite("event", "dual_write", "INSERT", nil)
	m.RecordSecondaryWrite("event", "dual_write", "INSERT", nil)
	m.RecordSecondaryWrite("event", "dual_write", "INSERT", errors.New("timeout"))
	m.RecordSecondaryWrite("event", "dual_write", "UPDATE", resilience.ErrCircuitOpen)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.SecondaryWritesTotal.WithLabelValues("event", "dual_write", "INSERT", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SecondaryWritesTotal.WithLabelValues("event", "dual_write", "INSERT", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SecondaryWritesTotal.WithLabelValues("event", "dual_write", "UPDATE", "circuit_open")))
}

func TestRecordBackfill(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordBackfill("category", 2, 1, 0, time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.BackfillRowsTotal.WithLabelValues("category", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BackfillRowsTotal.WithLabelValues("category", "skipped")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.BackfillRowsTotal.WithLabelValues("category", "failure")))
}

func TestBreakerStateGauge(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.OnBreakerStateChange("event", resilience.StateClosed, resilience.StateOpen)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CircuitBreakerState.WithLabelValues("event")))

	m.OnBreakerStateChange("event", resilience.StateOpen, resilience.StateHalfOpen)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CircuitBreakerState.WithLabelValues("event")))

	m.SetBackendUp("secondary", false)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.BackendUp.WithLabelValues("secondary")))
	m.SetBackendUp("secondary", true)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BackendUp.WithLabelValues("secondary")))
}

func TestSeparateRegistries(t *testing.T) {
	// повторная регистрация в новом реестре не паникует
	assert.NotPanics(t, func() {
		New(prometheus.NewRegistry())
		New(prometheus.NewRegistry())
	})
}

func TestUnaryServerInterceptor(t *testing.T) {
	m := New(prometheus.NewRegistry())
	interceptor := m.UnaryServerInterceptor("eventsync")
	info := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}

	_, err := interceptor(context.Background(), nil, info, func(context.Context, any) (any, error) {
		return "ok", nil
	})
	require.NoError(t, err)

	_, err = interceptor(context.Background(), nil, info, func(context.Context, any) (any, error) {
		return nil, status.Error(codes.NotFound, "unknown service")
	})
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.GrpcRequestsTotal.WithLabelValues("eventsync", "Check", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.GrpcRequestsTotal.WithLabelValues("eventsync", "Check", "error_5")))
}

func TestGetMethodName(t *testing.T) {
	assert.Equal(t, "Check", GetMethodName("/grpc.health.v1.Health/Check"))
	assert.Equal(t, "plain", GetMethodName("plain"))
}

func TestMetricsServerHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.RecordSecondaryWrite("event", "dual_write", "DELETE", nil)

	srv := NewMetricsServer(":0", reg, m, logger.NewNop())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `eventsync_secondary_writes_total{entity_type="event",mode="dual_write",operation="DELETE",status="success"} 1`))
}
