package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"head-monitor/app/src/domain"
	"head-monitor/app/src/infra"
)

// Monitor measures the head delay of one target against its references.
type Monitor struct {
	id       domain.MeasurementID
	stream   *BlockStream
	resolver *ReferenceResolver
	recorder domain.DelayRecorder
	status   domain.StatusTracker
	logger   Logger

	mu    sync.RWMutex
	phase domain.Phase
}

func NewMonitor(id domain.MeasurementID, stream *BlockStream, resolver *ReferenceResolver, recorder domain.DelayRecorder, status domain.StatusTracker, logger Logger) *Monitor {
	return &Monitor{
		id:       id,
		stream:   stream,
		resolver: resolver,
		recorder: recorder,
		status:   status,
		logger:   loggerOrNop(logger),
		phase:    domain.PhaseDiscoveringHead,
	}
}

func (m *Monitor) ID() domain.MeasurementID {
	return m.id
}

func (m *Monitor) Phase() domain.Phase {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.phase
}

// Run discovers the head and then measures every new block until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	m.setPhase(domain.PhaseDiscoveringHead)

	head, err := m.stream.Start(ctx)
	if err != nil {
		m.logger.Printf(ctx, "monitor stopped before streaming: %v", err)
		return
	}

	m.logger.Printf(ctx, "starting streaming from block %d", head+1)
	m.setPhase(domain.PhaseStreaming)

	for {
		batch, err := m.stream.NextBatch(ctx)
		if err != nil {
			m.logger.Printf(ctx, "monitor stopped after block %d: %v", m.stream.Last(), err)
			return
		}
		for _, observation := range batch {
			if ctx.Err() != nil {
				return
			}
			m.processBlock(ctx, observation)
		}
	}
}

func (m *Monitor) processBlock(ctx context.Context, observation domain.BlockObservation) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Errorf(ctx, "panic while processing block %d: %v", observation.Number, r)
		}
	}()

	if m.status != nil {
		m.status.ObserveBlock(m.id, observation.Number)
	}

	ts, ok := m.resolver.Resolve(ctx, observation.Number)
	if !ok {
		if ctx.Err() == nil {
			infra.IncSkippedBlocks(m.id)
		}
		return
	}

	sample := domain.DelaySample{
		ID:          m.id,
		Block:       observation.Number,
		ObservedAt:  observation.ObservedAt,
		DelayMillis: observation.ObservedAt.UnixMilli() - ts,
	}
	if m.recorder != nil {
		m.recorder.Record(ctx, sample)
	}
	m.logger.Printf(ctx, "block %d delay: %dms", sample.Block, sample.DelayMillis)
}

func (m *Monitor) setPhase(phase domain.Phase) {
	m.mu.Lock()
	m.phase = phase
	m.mu.Unlock()

	if m.status != nil {
		m.status.SetPhase(m.id, phase)
	}
}

// MonitorDeps holds what NewMonitorFactory needs to build a monitor for any measurement.
type MonitorDeps struct {
	TargetClients func(target domain.Target) (domain.TargetClient, error)
	References    domain.ReferenceClient
	Recorder      domain.DelayRecorder
	Status        domain.StatusTracker
	Loggers       LoggerFactory
	Clock         Clock
	Stream        StreamConfig
	LookupTimeout time.Duration
}

// MonitorFactory builds the monitor for a single measurement.
type MonitorFactory func(measurement domain.Measurement) (domain.DelayMonitor, error)

func NewMonitorFactory(deps MonitorDeps) MonitorFactory {
	return func(measurement domain.Measurement) (domain.DelayMonitor, error) {
		if deps.TargetClients == nil || deps.References == nil {
			return nil, fmt.Errorf("monitor %s: clients are not configured", measurement.ID)
		}

		target, err := deps.TargetClients(measurement.Target)
		if err != nil {
			return nil, fmt.Errorf("monitor %s: %w", measurement.ID, err)
		}

		var logger Logger
		if deps.Loggers != nil {
			logger = deps.Loggers(measurement.ID)
		}

		stream := NewBlockStream(measurement.ID, target, deps.Clock, logger, deps.Stream)
		resolver := NewReferenceResolver(measurement.ID, deps.References, measurement.Reference.URLs, deps.LookupTimeout, logger)
		return NewMonitor(measurement.ID, stream, resolver, deps.Recorder, deps.Status, logger), nil
	}
}

var _ domain.DelayMonitor = (*Monitor)(nil)
