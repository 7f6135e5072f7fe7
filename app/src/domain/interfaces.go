package domain

import (
	"context"
	"time"
)

// TargetClient talks to a single portal endpoint.
type TargetClient interface {
	// Head returns the highest block the portal currently reports.
	Head(ctx context.Context) (uint64, error)
	// Stream requests blocks from fromBlock onward and returns the highest block number in the batch.
	// ErrNoNewData is returned when the portal has nothing new yet.
	Stream(ctx context.Context, fromBlock uint64) (uint64, error)
	URL() string
}

// ReferenceClient fetches the canonical timestamp (ms since epoch) of a block from one reference.
// ErrBlockTimeNotFound is returned when the reference does not know the block yet.
type ReferenceClient interface {
	BlockTime(ctx context.Context, baseURL string, block uint64) (int64, error)
}

// DelayRecorder accepts delay samples. Implementations must be safe for concurrent use.
type DelayRecorder interface {
	Record(ctx context.Context, sample DelaySample)
}

// StatusTracker receives monitor lifecycle updates.
type StatusTracker interface {
	SetPhase(id MeasurementID, phase Phase)
	ObserveBlock(id MeasurementID, block uint64)
}

// StatusReader exposes the latest status of every monitor.
type StatusReader interface {
	Snapshot() []MeasurementStatus
}

// DelayArchive queries persisted delay samples.
type DelayArchive interface {
	SamplesInRange(ctx context.Context, id MeasurementID, from, to time.Time) ([]DelaySample, error)
}

// DelayMonitor runs the measurement loop for one measurement until ctx is cancelled.
type DelayMonitor interface {
	Run(ctx context.Context)
	ID() MeasurementID
}
