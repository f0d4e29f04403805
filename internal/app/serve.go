package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/rx3lixir/event-sync/internal/db"
	"github.com/rx3lixir/event-sync/pkg/health"
	"github.com/rx3lixir/event-sync/pkg/metrics"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

const (
	grpcServiceName      = "eventsync"
	primaryService       = "eventsync.primary"
	secondaryService     = "eventsync.secondary"
	defaultCheckInterval = 10 * time.Second
	shutdownTimeout      = 10 * time.Second
)

// HealthServer собирает HTTP сервер проверок с пробами обоих хранилищ
func (a *App) HealthServer() *health.Server {
	opts := []health.Option{
		health.WithServiceName(a.cfg.Service.Name),
		health.WithVersion(a.cfg.Service.Version),
		health.WithPort(a.cfg.Health.Addr),
		health.WithTimeout(a.cfg.Health.Timeout),
		health.WithRequiredTables(db.RequiredTables...),
	}
	if version, err := db.LatestVersion(); err == nil {
		opts = append(opts, health.WithMigrationVersion(version))
	}

	srv := health.NewServer(a.pool, a.log, opts...)

	primary, secondary := a.probes()
	srv.AddCheck("primary", health.ProbeChecker("primary", primary))
	srv.AddCheck("secondary", health.ProbeChecker("secondary", secondary))

	if a.cfg.Health.MaxFailedEntities > 0 {
		srv.AddCheck("sync_backlog", health.SyncBacklogChecker(func(ctx context.Context) (int, error) {
			return a.SyncLog.CountLatestFailed(ctx, "")
		}, a.cfg.Health.MaxFailedEntities))
	}

	return srv
}

// GRPCReporter собирает gRPC health сервис; смена статуса отражается в backend_up
func (a *App) GRPCReporter() *health.GRPCReporter {
	reporter := health.NewGRPCReporter(a.log, func(service string, serving bool) {
		if service != "" {
			a.Metrics.SetBackendUp(service, serving)
		}
	})

	primary, secondary := a.probes()
	reporter.AddProbe(primaryService, primary)
	reporter.AddProbe(secondaryService, secondary)
	return reporter
}

// probes берет пробы первого зарегистрированного типа: все типы делят хранилища
func (a *App) probes() (primary, secondary func(ctx context.Context) bool) {
	down := func(context.Context) bool { return false }
	if len(a.order) == 0 {
		return down, down
	}
	e := a.entities[a.order[0]]
	return e.primaryHealthy, e.secondaryHealthy
}

// Serve запускает HTTP проверки, gRPC health, метрики и фоновые обновления
// и блокируется до отмены ctx или ошибки одного из серверов
func (a *App) Serve(ctx context.Context) error {
	healthSrv := a.HealthServer()
	reporter := a.GRPCReporter()

	grpcSrv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(a.Metrics.UnaryServerInterceptor(grpcServiceName)),
		grpc.ChainStreamInterceptor(a.Metrics.StreamServerInterceptor(grpcServiceName)),
	)
	healthpb.RegisterHealthServer(grpcSrv, reporter.Server())
	reflection.Register(grpcSrv)

	listener, err := net.Listen("tcp", a.cfg.Health.GRPCAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", a.cfg.Health.GRPCAddr, err)
	}

	var metricsSrv *metrics.MetricsServer
	if a.cfg.Metrics.Enabled {
		metricsSrv = metrics.NewMetricsServer(a.cfg.Metrics.Addr, a.Registry, a.Metrics, a.log)
	}

	interval := a.cfg.Health.CheckInterval
	if interval <= 0 {
		interval = defaultCheckInterval
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(healthSrv.Start)
	g.Go(func() error {
		a.log.Info("gRPC health server is listening", "address", listener.Addr().String())
		if err := grpcSrv.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("grpc server failed: %w", err)
		}
		return nil
	})
	if metricsSrv != nil {
		metricsSrv.StartUptimeUpdater(gctx, a.cfg.Service.Name)
		g.Go(metricsSrv.Start)
	}
	g.Go(func() error {
		reporter.Run(gctx, interval)
		return nil
	})
	g.Go(func() error {
		a.runGaugeUpdater(gctx, interval)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		a.log.Info("Shutting down servers")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		reporter.Shutdown()
		grpcSrv.GracefulStop()

		var errs []error
		if err := healthSrv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
		if metricsSrv != nil {
			if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})

	return g.Wait()
}

// runGaugeUpdater обновляет число FAILED сущностей и метрики пула до отмены ctx
func (a *App) runGaugeUpdater(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		a.refreshGauges(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (a *App) refreshGauges(ctx context.Context) {
	for _, entityType := range a.order {
		a.refreshFailedGauge(ctx, entityType)
	}
	if a.pool != nil {
		stat := a.pool.Stat()
		a.Metrics.UpdateDatabasePoolMetrics(stat.AcquiredConns(), stat.IdleConns(), stat.TotalConns())
	}
}
