package main

import (
	grpcapi "head-monitor/app/src/api/grpc"
	"head-monitor/app/src/core"
	"head-monitor/app/src/infra"
)

type application struct {
	Config     infra.Config
	Logger     *infra.Logger
	Supervisor *core.Supervisor
	Status     *core.StatusRegistry
	Health     *grpcapi.HealthReporter
	Delays     *core.DelayQuery
}

func newApplication(cfg infra.Config, logger *infra.Logger, supervisor *core.Supervisor, status *core.StatusRegistry, health *grpcapi.HealthReporter, delays *core.DelayQuery) *application {
	return &application{
		Config:     cfg,
		Logger:     logger,
		Supervisor: supervisor,
		Status:     status,
		Health:     health,
		Delays:     delays,
	}
}
