package infra

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"head-monitor/app/src/domain"

	"github.com/sirupsen/logrus"
)

type contextKey string

const correlationIDKey contextKey = "correlation_id"

// Logger writes JSON log lines through logrus. Derived loggers share the same output.
type Logger struct {
	entry *logrus.Entry
}

func NewLogger(out io.Writer, service string) *Logger {
	if out == nil {
		out = io.Discard
	}

	base := logrus.New()
	base.SetOutput(out)
	base.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339Nano,
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime: "timestamp",
			logrus.FieldKeyMsg:  "message",
		},
	})

	entry := logrus.NewEntry(base)
	if service = strings.TrimSpace(service); service != "" {
		entry = entry.WithField("service", service)
	}
	return &Logger{entry: entry}
}

// SetLevel adjusts the minimum level. Unknown values fall back to info.
func (l *Logger) SetLevel(level string) {
	if l == nil {
		return
	}
	parsed, err := logrus.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		parsed = logrus.InfoLevel
	}
	l.entry.Logger.SetLevel(parsed)
}

// WithField returns a logger that adds key=value to every line.
func (l *Logger) WithField(key string, value any) *Logger {
	if l == nil {
		return nil
	}
	return &Logger{entry: l.entry.WithField(key, value)}
}

// WithMeasurement tags every line with the dataset and measurement names.
func (l *Logger) WithMeasurement(id domain.MeasurementID) *Logger {
	if l == nil {
		return nil
	}
	return &Logger{entry: l.entry.WithFields(logrus.Fields{
		"dataset":     id.Dataset,
		"measurement": id.Name,
	})}
}

func WithCorrelationID(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, correlationIDKey, strings.TrimSpace(id))
}

func CorrelationIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(correlationIDKey).(string); ok {
		return v
	}
	return ""
}

func (l *Logger) Printf(ctx context.Context, format string, v ...any) {
	if l == nil {
		return
	}
	l.entryFor(ctx).Info(fmt.Sprintf(format, v...))
}

func (l *Logger) Println(ctx context.Context, v ...any) {
	if l == nil {
		return
	}
	l.entryFor(ctx).Info(strings.TrimSpace(fmt.Sprintln(v...)))
}

func (l *Logger) Errorf(ctx context.Context, format string, v ...any) {
	if l == nil {
		return
	}
	l.entryFor(ctx).Error(fmt.Sprintf(format, v...))
}

func (l *Logger) Fatalf(ctx context.Context, format string, v ...any) {
	if l == nil {
		logrus.Exit(1)
		return
	}
	l.entryFor(ctx).Fatal(fmt.Sprintf(format, v...))
}

func (l *Logger) entryFor(ctx context.Context) *logrus.Entry {
	if traceID := CorrelationIDFromContext(ctx); traceID != "" {
		return l.entry.WithField("trace_id", traceID)
	}
	return l.entry
}
