package core

import (
	"context"
	"sort"
	"sync"

	"head-monitor/app/src/domain"
)

// StatusListener is notified after a monitor changes phase.
type StatusListener func(status domain.MeasurementStatus)

// StatusRegistry keeps the latest status of every monitor. It is safe for concurrent use.
type StatusRegistry struct {
	mu        sync.RWMutex
	clock     Clock
	statuses  map[domain.MeasurementID]domain.MeasurementStatus
	listeners []StatusListener
}

func NewStatusRegistry(clock Clock) *StatusRegistry {
	if clock == nil {
		clock = SystemClock{}
	}
	return &StatusRegistry{
		clock:    clock,
		statuses: make(map[domain.MeasurementID]domain.MeasurementStatus),
	}
}

// Register adds a measurement in the DISCOVERING_HEAD phase. Registering twice keeps the existing status.
func (r *StatusRegistry) Register(id domain.MeasurementID) {
	r.mu.Lock()
	if _, ok := r.statuses[id]; ok {
		r.mu.Unlock()
		return
	}
	status := domain.MeasurementStatus{ID: id, Phase: domain.PhaseDiscoveringHead, UpdatedAt: r.clock.Now()}
	r.statuses[id] = status
	listeners := r.listenersLocked()
	r.mu.Unlock()

	notify(listeners, status)
}

// Subscribe registers a listener. It is not called for past transitions.
func (r *StatusRegistry) Subscribe(listener StatusListener) {
	if listener == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, listener)
}

func (r *StatusRegistry) SetPhase(id domain.MeasurementID, phase domain.Phase) {
	r.mu.Lock()
	status := r.statuses[id]
	if status.ID == id && status.Phase == phase {
		r.mu.Unlock()
		return
	}
	status.ID = id
	status.Phase = phase
	status.UpdatedAt = r.clock.Now()
	r.statuses[id] = status
	listeners := r.listenersLocked()
	r.mu.Unlock()

	notify(listeners, status)
}

func (r *StatusRegistry) ObserveBlock(id domain.MeasurementID, block uint64) {
	r.update(id, func(status *domain.MeasurementStatus) {
		if block > status.LastBlock {
			status.LastBlock = block
		}
	})
}

// Record stores the delay of the latest resolved block.
func (r *StatusRegistry) Record(_ context.Context, sample domain.DelaySample) {
	r.update(sample.ID, func(status *domain.MeasurementStatus) {
		status.LastDelayMillis = sample.DelayMillis
		status.HasDelay = true
		if sample.Block > status.LastBlock {
			status.LastBlock = sample.Block
		}
	})
}

func (r *StatusRegistry) Status(id domain.MeasurementID) (domain.MeasurementStatus, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	status, ok := r.statuses[id]
	return status, ok
}

// Snapshot returns every status sorted by dataset, then measurement name.
func (r *StatusRegistry) Snapshot() []domain.MeasurementStatus {
	r.mu.RLock()
	result := make([]domain.MeasurementStatus, 0, len(r.statuses))
	for _, status := range r.statuses {
		result = append(result, status)
	}
	r.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		return lessID(result[i].ID, result[j].ID)
	})
	return result
}

func (r *StatusRegistry) update(id domain.MeasurementID, apply func(status *domain.MeasurementStatus)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	status, ok := r.statuses[id]
	if !ok {
		status = domain.MeasurementStatus{ID: id, Phase: domain.PhaseDiscoveringHead}
	}
	apply(&status)
	status.UpdatedAt = r.clock.Now()
	r.statuses[id] = status
}

func (r *StatusRegistry) listenersLocked() []StatusListener {
	return append([]StatusListener(nil), r.listeners...)
}

func notify(listeners []StatusListener, status domain.MeasurementStatus) {
	for _, listener := range listeners {
		listener(status)
	}
}

func lessID(a, b domain.MeasurementID) bool {
	if a.Dataset != b.Dataset {
		return a.Dataset < b.Dataset
	}
	return a.Name < b.Name
}

var (
	_ domain.StatusTracker = (*StatusRegistry)(nil)
	_ domain.StatusReader  = (*StatusRegistry)(nil)
	_ domain.DelayRecorder = (*StatusRegistry)(nil)
)
