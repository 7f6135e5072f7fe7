package core

import (
	"context"
	"fmt"
	"time"

	"head-monitor/app/src/domain"
)

// DelayQuery answers historical delay queries from the archive.
type DelayQuery struct {
	archive domain.DelayArchive
}

// NewDelayQuery accepts a nil archive; every query then fails with ErrArchiveDisabled.
func NewDelayQuery(archive domain.DelayArchive) *DelayQuery {
	return &DelayQuery{archive: archive}
}

func (q *DelayQuery) Enabled() bool {
	return q != nil && q.archive != nil
}

func (q *DelayQuery) SamplesInRange(ctx context.Context, id domain.MeasurementID, from, to time.Time) ([]domain.DelaySample, error) {
	if !q.Enabled() {
		return nil, domain.ErrArchiveDisabled
	}
	if to.Before(from) {
		return nil, fmt.Errorf("%w: from %s is after to %s", domain.ErrInvalidRange, from.Format(time.RFC3339), to.Format(time.RFC3339))
	}
	return q.archive.SamplesInRange(ctx, id, from, to)
}

var _ domain.DelayArchive = (*DelayQuery)(nil)
