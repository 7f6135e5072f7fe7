package main

import (
	"context"
	"io"
	"net/http"

	grpcapi "head-monitor/app/src/api/grpc"
	"head-monitor/app/src/clients"
	"head-monitor/app/src/clients/blocktime"
	"head-monitor/app/src/clients/portal"
	"head-monitor/app/src/core"
	dbpostgres "head-monitor/app/src/database"
	"head-monitor/app/src/domain"
	"head-monitor/app/src/infra"
	"head-monitor/app/src/shared/constants"
)

func provideServiceName() string {
	return constants.ServiceName
}

func provideLogger(out io.Writer, serviceName string, cfg infra.Config) *infra.Logger {
	logger := infra.NewLogger(out, serviceName)
	logger.SetLevel(cfg.LogLevel)
	return logger
}

func provideMeasurements(cfg infra.Config) ([]domain.Measurement, error) {
	return infra.LoadMeasurements(cfg.ConfigPath)
}

func provideClock() core.Clock {
	return core.SystemClock{}
}

func provideHTTPClient() *http.Client {
	return clients.DefaultHTTPClient()
}

func provideHealthReporter() *grpcapi.HealthReporter {
	return grpcapi.NewHealthReporter()
}

// provideStatusRegistry subscribes the gRPC health reporter before registering
// measurements so every one starts out NOT_SERVING.
func provideStatusRegistry(clock core.Clock, measurements []domain.Measurement, health *grpcapi.HealthReporter) *core.StatusRegistry {
	registry := core.NewStatusRegistry(clock)
	registry.Subscribe(health.Observe)
	for _, m := range measurements {
		registry.Register(m.ID)
	}
	return registry
}

func provideArchive(ctx context.Context, cfg infra.Config, logger *infra.Logger) (*dbpostgres.Repository, func(), error) {
	if !cfg.ArchiveEnabled() {
		logger.Println(ctx, "delay archive disabled (no DSN or host configured)")
		return nil, func() {}, nil
	}

	if err := dbpostgres.WaitForDatabase(ctx, cfg, logger); err != nil {
		logger.Printf(ctx, "database connectivity check failed: %v", err)
	} else {
		logger.Println(ctx, "database connectivity check succeeded")
	}

	return dbpostgres.SetupRepository(ctx, cfg, logger)
}

func provideRecorder(registry *core.StatusRegistry, archive *dbpostgres.Repository) domain.DelayRecorder {
	recorders := []domain.DelayRecorder{infra.NewPrometheusRecorder(), registry}
	if archive != nil {
		recorders = append(recorders, archive)
	}
	return core.NewFanoutRecorder(recorders...)
}

func provideDelayQuery(archive *dbpostgres.Repository) *core.DelayQuery {
	if archive == nil {
		return core.NewDelayQuery(nil)
	}
	return core.NewDelayQuery(archive)
}

func provideMonitorFactory(registry *core.StatusRegistry, recorder domain.DelayRecorder, clock core.Clock, httpClient *http.Client, logger *infra.Logger) core.MonitorFactory {
	return core.NewMonitorFactory(core.MonitorDeps{
		TargetClients: func(target domain.Target) (domain.TargetClient, error) {
			client, err := portal.NewClient(target, httpClient)
			if err != nil {
				return nil, err
			}
			return client, nil
		},
		References: blocktime.NewClient(httpClient),
		Recorder:   recorder,
		Status:     registry,
		Loggers: func(id domain.MeasurementID) core.Logger {
			return logger.WithMeasurement(id)
		},
		Clock: clock,
	})
}

func provideSupervisor(measurements []domain.Measurement, factory core.MonitorFactory, logger *infra.Logger) *core.Supervisor {
	return core.NewSupervisor(measurements, factory, logger)
}
