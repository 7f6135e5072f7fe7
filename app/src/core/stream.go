package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"head-monitor/app/src/domain"
	"head-monitor/app/src/infra"
)

const (
	DefaultHeadTimeout    = 5 * time.Second
	DefaultStreamTimeout  = 10 * time.Second
	DefaultHeadRetryDelay = 500 * time.Millisecond
	DefaultMaxGap         = 100_000
)

type StreamConfig struct {
	HeadTimeout    time.Duration
	StreamTimeout  time.Duration
	HeadRetryDelay time.Duration
	// MaxGap bounds how many blocks a single stream answer may add.
	MaxGap uint64
}

func (c StreamConfig) withDefaults() StreamConfig {
	if c.HeadTimeout <= 0 {
		c.HeadTimeout = DefaultHeadTimeout
	}
	if c.StreamTimeout <= 0 {
		c.StreamTimeout = DefaultStreamTimeout
	}
	if c.HeadRetryDelay <= 0 {
		c.HeadRetryDelay = DefaultHeadRetryDelay
	}
	if c.MaxGap == 0 {
		c.MaxGap = DefaultMaxGap
	}
	return c
}

// BlockStream turns a target portal into an ordered, gap-free sequence of block observations.
// It is the only producer for its measurement and is not safe for concurrent use.
type BlockStream struct {
	id      domain.MeasurementID
	client  domain.TargetClient
	clock   Clock
	logger  Logger
	cfg     StreamConfig
	last    uint64
	started bool
}

func NewBlockStream(id domain.MeasurementID, client domain.TargetClient, clock Clock, logger Logger, cfg StreamConfig) *BlockStream {
	if clock == nil {
		clock = SystemClock{}
	}
	return &BlockStream{
		id:     id,
		client: client,
		clock:  clock,
		logger: loggerOrNop(logger),
		cfg:    cfg.withDefaults(),
	}
}

// Start polls the head endpoint until it answers. Failures are retried forever
// after HeadRetryDelay; only ctx cancellation stops it.
func (s *BlockStream) Start(ctx context.Context) (uint64, error) {
	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		head, err := s.fetchHead(ctx)
		if err == nil {
			s.last = head
			s.started = true
			infra.ObserveBlockNumber(s.id, head)
			return head, nil
		}
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}

		infra.IncStreamErrors(s.id)
		s.logger.Errorf(ctx, "couldn't fetch head from %s/head, retrying in %s: %v", s.client.URL(), s.cfg.HeadRetryDelay, err)
		if !sleepContext(ctx, s.cfg.HeadRetryDelay) {
			return 0, ctx.Err()
		}
	}
}

// NextBatch blocks until the target reports a block past the last one seen and
// returns one observation per new block, all stamped with the same observed-at.
// Errors are logged and retried immediately; only ctx cancellation is returned.
func (s *BlockStream) NextBatch(ctx context.Context) ([]domain.BlockObservation, error) {
	if !s.started {
		if _, err := s.Start(ctx); err != nil {
			return nil, err
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		number, err := s.fetchStream(ctx, s.last+1)
		if err != nil {
			if errors.Is(err, domain.ErrNoNewData) {
				continue
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.streamFailed(ctx, err)
			continue
		}
		observedAt := s.clock.Now()

		if number <= s.last {
			s.streamFailed(ctx, fmt.Errorf("%w: block %d does not advance past %d", domain.ErrInvalidBlock, number, s.last))
			continue
		}
		if gap := number - s.last; gap > s.cfg.MaxGap {
			s.streamFailed(ctx, fmt.Errorf("%w: block %d jumps %d blocks past %d, limit is %d", domain.ErrInvalidBlock, number, gap, s.last, s.cfg.MaxGap))
			continue
		}

		batch := make([]domain.BlockObservation, 0, number-s.last)
		for n := s.last + 1; n <= number; n++ {
			batch = append(batch, domain.BlockObservation{Number: n, ObservedAt: observedAt})
		}
		s.last = number
		infra.ObserveBlockNumber(s.id, number)
		return batch, nil
	}
}

// Last returns the highest block number observed so far.
func (s *BlockStream) Last() uint64 {
	return s.last
}

func (s *BlockStream) fetchHead(ctx context.Context) (uint64, error) {
	reqCtx, cancel := context.WithTimeout(ctx, s.cfg.HeadTimeout)
	defer cancel()
	return s.client.Head(reqCtx)
}

func (s *BlockStream) fetchStream(ctx context.Context, fromBlock uint64) (uint64, error) {
	reqCtx, cancel := context.WithTimeout(ctx, s.cfg.StreamTimeout)
	defer cancel()
	return s.client.Stream(reqCtx, fromBlock)
}

func (s *BlockStream) streamFailed(ctx context.Context, err error) {
	infra.IncStreamErrors(s.id)
	s.logger.Errorf(ctx, "error during stream request to %s, retrying: %v", s.client.URL(), err)
}
