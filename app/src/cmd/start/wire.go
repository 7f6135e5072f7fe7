//go:build wireinject

package main

import (
	"context"
	"io"

	"head-monitor/app/src/infra"

	"github.com/google/wire"
)

func initApplication(ctx context.Context, cfg infra.Config, out io.Writer) (*application, func(), error) {
	wire.Build(
		provideServiceName,
		provideLogger,
		provideMeasurements,
		provideClock,
		provideHTTPClient,
		provideHealthReporter,
		provideStatusRegistry,
		provideArchive,
		provideRecorder,
		provideDelayQuery,
		provideMonitorFactory,
		provideSupervisor,
		newApplication,
	)
	return nil, nil, nil
}
