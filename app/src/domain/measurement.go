package domain

import (
	"strings"
	"time"
)

// MeasurementID identifies one (dataset, measurement) pair. Both parts are opaque labels.
type MeasurementID struct {
	Dataset string
	Name    string
}

func (id MeasurementID) String() string {
	return id.Dataset + "." + id.Name
}

// Target describes the portal endpoint whose delay is measured.
type Target struct {
	URL  string
	Kind DatasetKind
}

// Reference lists independent block-time sources. All of them are queried on every lookup.
type Reference struct {
	URLs []string
}

// Measurement is one configured (reference, target) pair.
type Measurement struct {
	ID        MeasurementID
	Target    Target
	Reference Reference
}

// BlockObservation records when a block number was first seen on the target.
type BlockObservation struct {
	Number     uint64
	ObservedAt time.Time
}

// DelaySample is a single delay measurement. DelayMillis may be negative.
type DelaySample struct {
	ID          MeasurementID
	Block       uint64
	ObservedAt  time.Time
	DelayMillis int64
}

// Phase is the lifecycle state of a delay monitor.
type Phase string

const (
	PhaseDiscoveringHead Phase = "DISCOVERING_HEAD"
	PhaseStreaming       Phase = "STREAMING"
)

// MeasurementStatus is the latest known state of a single monitor.
type MeasurementStatus struct {
	ID              MeasurementID
	Phase           Phase
	LastBlock       uint64
	LastDelayMillis int64
	HasDelay        bool
	UpdatedAt       time.Time
}

// TrimURL strips trailing slashes so paths can be appended safely.
func TrimURL(raw string) string {
	return strings.TrimRight(strings.TrimSpace(raw), "/")
}

// DelaySummary aggregates a range of delay samples.
type DelaySummary struct {
	Count     int
	MinMillis int64
	MaxMillis int64
	AvgMillis float64
}

// SummarizeDelays computes count, min, max and mean over samples. An empty input yields a zero summary.
func SummarizeDelays(samples []DelaySample) DelaySummary {
	if len(samples) == 0 {
		return DelaySummary{}
	}

	summary := DelaySummary{
		Count:     len(samples),
		MinMillis: samples[0].DelayMillis,
		MaxMillis: samples[0].DelayMillis,
	}
	var total int64
	for _, s := range samples {
		if s.DelayMillis < summary.MinMillis {
			summary.MinMillis = s.DelayMillis
		}
		if s.DelayMillis > summary.MaxMillis {
			summary.MaxMillis = s.DelayMillis
		}
		total += s.DelayMillis
	}
	summary.AvgMillis = float64(total) / float64(len(samples))
	return summary
}
