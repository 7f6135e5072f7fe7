package core

import (
	"context"

	"head-monitor/app/src/domain"
)

// FanoutRecorder forwards every sample to each recorder in order.
type FanoutRecorder struct {
	recorders []domain.DelayRecorder
}

func NewFanoutRecorder(recorders ...domain.DelayRecorder) *FanoutRecorder {
	kept := make([]domain.DelayRecorder, 0, len(recorders))
	for _, r := range recorders {
		if r != nil {
			kept = append(kept, r)
		}
	}
	return &FanoutRecorder{recorders: kept}
}

func (f *FanoutRecorder) Record(ctx context.Context, sample domain.DelaySample) {
	for _, r := range f.recorders {
		r.Record(ctx, sample)
	}
}

var _ domain.DelayRecorder = (*FanoutRecorder)(nil)
