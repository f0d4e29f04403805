package health

import (
	"context"
	"sync"
	"time"

	"github.com/rx3lixir/event-sync/pkg/logger"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// GRPCReporter публикует статус хранилищ через стандартный gRPC health сервис.
// Пустое имя сервиса отражает общий статус.
type GRPCReporter struct {
	server   *grpchealth.Server
	log      logger.Logger
	onChange func(service string, serving bool)

	mu     sync.Mutex
	probes map[string]func(ctx context.Context) bool
	order  []string
	last   map[string]bool
}

func NewGRPCReporter(log logger.Logger, onChange func(service string, serving bool)) *GRPCReporter {
	if log == nil {
		log = logger.NewNop()
	}
	return &GRPCReporter{
		server:   grpchealth.NewServer(),
		log:      log,
		onChange: onChange,
		probes:   make(map[string]func(ctx context.Context) bool),
		last:     make(map[string]bool),
	}
}

// Server возвращает gRPC health сервер для регистрации
func (r *GRPCReporter) Server() *grpchealth.Server {
	return r.server
}

// AddProbe регистрирует пробу для сервиса service
func (r *GRPCReporter) AddProbe(service string, probe func(ctx context.Context) bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.probes[service]; !exists {
		r.order = append(r.order, service)
	}
	r.probes[service] = probe
	r.server.SetServingStatus(service, healthpb.HealthCheckResponse_UNKNOWN)
}

// Refresh опрашивает все пробы и обновляет статусы
func (r *GRPCReporter) Refresh(ctx context.Context) {
	r.mu.Lock()
	services := append([]string(nil), r.order...)
	probes := make(map[string]func(ctx context.Context) bool, len(r.probes))
	for k, v := range r.probes {
		probes[k] = v
	}
	r.mu.Unlock()

	overall := true
	for _, service := range services {
		serving := probes[service](ctx)
		overall = overall && serving

		status := healthpb.HealthCheckResponse_SERVING
		if !serving {
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
		r.server.SetServingStatus(service, status)
		r.report(service, serving)
	}

	overallStatus := healthpb.HealthCheckResponse_SERVING
	if !overall {
		overallStatus = healthpb.HealthCheckResponse_NOT_SERVING
	}
	r.server.SetServingStatus("", overallStatus)
}

func (r *GRPCReporter) report(service string, serving bool) {
	r.mu.Lock()
	prev, seen := r.last[service]
	r.last[service] = serving
	r.mu.Unlock()

	if seen && prev == serving {
		return
	}
	if serving {
		r.log.Info("Backend is serving", "service", service)
	} else {
		r.log.Warn("Backend is not serving", "service", service)
	}
	if r.onChange != nil {
		r.onChange(service, serving)
	}
}

// Run обновляет статусы с интервалом до отмены ctx
func (r *GRPCReporter) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.Refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Refresh(ctx)
		}
	}
}

// Shutdown переводит все сервисы в NOT_SERVING
func (r *GRPCReporter) Shutdown() {
	r.server.Shutdown()
}
