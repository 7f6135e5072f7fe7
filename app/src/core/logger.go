package core

import (
	"context"

	"head-monitor/app/src/domain"
)

type Logger interface {
	Printf(ctx context.Context, format string, v ...any)
	Println(ctx context.Context, v ...any)
	Errorf(ctx context.Context, format string, v ...any)
}

// LoggerFactory returns a logger tagged with the measurement it serves.
type LoggerFactory func(id domain.MeasurementID) Logger

type nopLogger struct{}

func (nopLogger) Printf(context.Context, string, ...any) {}
func (nopLogger) Println(context.Context, ...any)        {}
func (nopLogger) Errorf(context.Context, string, ...any) {}

func loggerOrNop(logger Logger) Logger {
	if logger == nil {
		return nopLogger{}
	}
	return logger
}
