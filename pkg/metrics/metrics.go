package metrics

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rx3lixir/event-sync/pkg/resilience"
)

const namespace = "eventsync"

// Metrics содержит все метрики сервиса. Создается один раз и передается
// компонентам через конструкторы.
type Metrics struct {
	// Синхронизация
	SecondaryWritesTotal *prometheus.CounterVec
	BackfillRowsTotal    *prometheus.CounterVec
	BackfillDuration     *prometheus.HistogramVec
	CircuitBreakerState  *prometheus.GaugeVec
	BackendUp            *prometheus.GaugeVec
	SyncLogFailedEntries *prometheus.GaugeVec

	// gRPC
	GrpcRequestsTotal   *prometheus.CounterVec
	GrpcRequestDuration *prometheus.HistogramVec

	// База данных
	DatabasePoolConnections *prometheus.GaugeVec

	// Системные
	ServiceInfo   *prometheus.GaugeVec
	ServiceUptime *prometheus.GaugeVec
}

// New регистрирует метрики в reg
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		SecondaryWritesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "secondary_writes_total",
				Help:      "Total number of secondary store write attempts",
			},
			[]string{"entity_type", "mode", "operation", "status"},
		),
		BackfillRowsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "backfill_rows_total",
				Help:      "Total number of rows processed by backfill",
			},
			[]string{"entity_type", "result"}, // success, skipped, failure
		),
		BackfillDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "backfill_duration_seconds",
				Help:      "Duration of backfill runs in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 300, 900},
			},
			[]string{"entity_type"},
		),
		CircuitBreakerState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_state",
				Help:      "Circuit breaker state per entity type (0 closed, 1 open, 2 half-open)",
			},
			[]string{"breaker"},
		),
		BackendUp: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "backend_up",
				Help:      "Whether the backend answered the last health probe",
			},
			[]string{"backend"},
		),
		SyncLogFailedEntries: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "sync_log_failed_entities",
				Help:      "Number of entities whose latest sync log entry is FAILED",
			},
			[]string{"entity_type"},
		),
		GrpcRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "grpc_requests_total",
				Help: "Total number of gRPC requests",
			},
			[]string{"service", "method", "status"},
		),
		GrpcRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "grpc_request_duration_seconds",
				Help:    "Duration of gRPC requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"service", "method"},
		),
		DatabasePoolConnections: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "database_pool_connections",
				Help: "Number of database pool connections",
			},
			[]string{"state"}, // active, idle, total
		),
		ServiceInfo: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "service_info",
				Help: "Information about the service",
			},
			[]string{"version", "service", "environment"},
		),
		ServiceUptime: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "service_uptime_seconds",
				Help: "Service uptime in seconds",
			},
			[]string{"service"},
		),
	}
}

// RecordSecondaryWrite записывает попытку записи во вторичное хранилище
func (m *Metrics) RecordSecondaryWrite(entityType, mode, operation string, err error) {
	m.SecondaryWritesTotal.WithLabelValues(entityType, mode, operation, SecondaryStatus(err)).Inc()
}

// RecordBackfill записывает итог прогона переноса
func (m *Metrics) RecordBackfill(entityType string, success, skipped, failed int, duration time.Duration) {
	m.BackfillRowsTotal.WithLabelValues(entityType, "success").Add(float64(success))
	m.BackfillRowsTotal.WithLabelValues(entityType, "skipped").Add(float64(skipped))
	m.BackfillRowsTotal.WithLabelValues(entityType, "failure").Add(float64(failed))
	m.BackfillDuration.WithLabelValues(entityType).Observe(duration.Seconds())
}

// OnBreakerStateChange подходит для resilience.Settings.OnStateChange
func (m *Metrics) OnBreakerStateChange(name string, _, to resilience.State) {
	m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
}

// SetBackendUp обновляет статус хранилища
func (m *Metrics) SetBackendUp(backend string, up bool) {
	value := 0.0
	if up {
		value = 1
	}
	m.BackendUp.WithLabelValues(backend).Set(value)
}

// SetFailedEntities обновляет число сущностей с последней неудачной синхронизацией
func (m *Metrics) SetFailedEntities(entityType string, count int) {
	m.SyncLogFailedEntries.WithLabelValues(entityType).Set(float64(count))
}

// RecordGrpcRequest записывает метрику gRPC запроса
func (m *Metrics) RecordGrpcRequest(service, method, status string, duration time.Duration) {
	m.GrpcRequestsTotal.WithLabelValues(service, method, status).Inc()
	m.GrpcRequestDuration.WithLabelValues(service, method).Observe(duration.Seconds())
}

// SetServiceInfo устанавливает информацию о сервисе
func (m *Metrics) SetServiceInfo(version, service, environment string) {
	m.ServiceInfo.WithLabelValues(version, service, environment).Set(1)
}

// UpdateServiceUptime обновляет время работы сервиса
func (m *Metrics) UpdateServiceUptime(service string, startTime time.Time) {
	m.ServiceUptime.WithLabelValues(service).Set(time.Since(startTime).Seconds())
}

// UpdateDatabasePoolMetrics обновляет метрики connection pool
func (m *Metrics) UpdateDatabasePoolMetrics(active, idle, total int32) {
	m.DatabasePoolConnections.WithLabelValues("active").Set(float64(active))
	m.DatabasePoolConnections.WithLabelValues("idle").Set(float64(idle))
	m.DatabasePoolConnections.WithLabelValues("total").Set(float64(total))
}

// StatusFromError возвращает статус на основе ошибки
func StatusFromError(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// SecondaryStatus отделяет пропуск по разомкнутой цепи от обычной ошибки
func SecondaryStatus(err error) string {
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return "circuit_open"
	}
	return StatusFromError(err)
}

// StatusFromGrpcCode возвращает статус на основе gRPC кода
func StatusFromGrpcCode(code int) string {
	if code == 0 {
		return "ok"
	}
	return "error_" + strconv.Itoa(code)
}

// GetMethodName извлекает короткое имя метода из полного пути
func GetMethodName(fullMethod string) string {
	// Например: /grpc.health.v1.Health/Check -> Check
	if len(fullMethod) > 0 && fullMethod[0] == '/' {
		parts := strings.Split(fullMethod[1:], "/")
		if len(parts) >= 2 {
			return parts[1]
		}
	}
	return fullMethod
}
