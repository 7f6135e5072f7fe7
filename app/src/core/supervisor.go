package core

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"head-monitor/app/src/domain"
	"head-monitor/app/src/infra"

	"github.com/google/uuid"
)

var ErrSupervisorStarted = errors.New("supervisor already started")

// DefaultRestartDelay is the pause before a crashed monitor is started again.
const DefaultRestartDelay = time.Second

// Supervisor starts one monitor per measurement. Monitors are independent and run until ctx is cancelled.
type Supervisor struct {
	measurements []domain.Measurement
	factory      MonitorFactory
	logger       Logger
	restartDelay time.Duration

	mu       sync.Mutex
	started  bool
	monitors []domain.DelayMonitor
	wg       sync.WaitGroup
}

func NewSupervisor(measurements []domain.Measurement, factory MonitorFactory, logger Logger) *Supervisor {
	sorted := append([]domain.Measurement(nil), measurements...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return lessID(sorted[i].ID, sorted[j].ID)
	})
	return &Supervisor{
		measurements: sorted,
		factory:      factory,
		logger:       loggerOrNop(logger),
		restartDelay: DefaultRestartDelay,
	}
}

// Start builds every monitor first, so a bad measurement fails before any goroutine runs,
// then launches each monitor in its own goroutine and returns immediately.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return ErrSupervisorStarted
	}

	monitors := make([]domain.DelayMonitor, 0, len(s.measurements))
	for _, m := range s.measurements {
		monitor, err := s.factory(m)
		if err != nil {
			return err
		}
		monitors = append(monitors, monitor)
	}

	s.started = true
	s.monitors = monitors

	s.wg.Add(len(monitors))
	for _, monitor := range monitors {
		monitorCtx := infra.WithCorrelationID(ctx, uuid.NewString())
		s.logger.Printf(monitorCtx, "monitoring %s", monitor.ID())

		go func() {
			defer s.wg.Done()
			s.supervise(monitorCtx, monitor)
		}()
	}
	return nil
}

// supervise runs the monitor until ctx is cancelled. A monitor that panics is
// started again from head discovery after restartDelay.
func (s *Supervisor) supervise(ctx context.Context, monitor domain.DelayMonitor) {
	for {
		crashed := s.runMonitor(ctx, monitor)
		if !crashed || ctx.Err() != nil {
			return
		}
		infra.IncMonitorRestarts(monitor.ID())
		s.logger.Printf(ctx, "restarting monitor %s in %s", monitor.ID(), s.restartDelay)
		if !sleepContext(ctx, s.restartDelay) {
			return
		}
	}
}

func (s *Supervisor) runMonitor(ctx context.Context, monitor domain.DelayMonitor) (crashed bool) {
	defer func() {
		if r := recover(); r != nil {
			crashed = true
			s.logger.Errorf(ctx, "monitor %s crashed: %v", monitor.ID(), r)
		}
	}()
	monitor.Run(ctx)
	return false
}

// Wait blocks until every started monitor has returned.
func (s *Supervisor) Wait() {
	s.wg.Wait()
}

// Monitors returns the started monitor ids in start order.
func (s *Supervisor) Monitors() []domain.MeasurementID {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]domain.MeasurementID, len(s.monitors))
	for i, monitor := range s.monitors {
		ids[i] = monitor.ID()
	}
	return ids
}
