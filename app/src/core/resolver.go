package core

import (
	"context"
	"errors"
	"sync"
	"time"

	"head-monitor/app/src/domain"
	"head-monitor/app/src/infra"
)

const DefaultLookupTimeout = 5 * time.Second

type lookupResult struct {
	timestamp int64
	present   bool
}

// ReferenceResolver asks every reference for a block's timestamp and keeps the earliest answer.
type ReferenceResolver struct {
	id      domain.MeasurementID
	client  domain.ReferenceClient
	urls    []string
	timeout time.Duration
	logger  Logger
}

func NewReferenceResolver(id domain.MeasurementID, client domain.ReferenceClient, urls []string, timeout time.Duration, logger Logger) *ReferenceResolver {
	if timeout <= 0 {
		timeout = DefaultLookupTimeout
	}
	return &ReferenceResolver{
		id:      id,
		client:  client,
		urls:    append([]string(nil), urls...),
		timeout: timeout,
		logger:  loggerOrNop(logger),
	}
}

// Resolve queries all references concurrently and waits for every one of them.
// ok is false when no reference knows the block.
func (r *ReferenceResolver) Resolve(ctx context.Context, block uint64) (int64, bool) {
	results := make([]lookupResult, len(r.urls))

	var wg sync.WaitGroup
	wg.Add(len(r.urls))
	for i, url := range r.urls {
		go func() {
			defer wg.Done()
			results[i] = r.lookup(ctx, url, block)
		}()
	}
	wg.Wait()

	return earliest(results)
}

func (r *ReferenceResolver) lookup(ctx context.Context, baseURL string, block uint64) lookupResult {
	reqCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	ts, err := r.client.BlockTime(reqCtx, baseURL, block)
	if err == nil {
		return lookupResult{timestamp: ts, present: true}
	}
	if errors.Is(err, domain.ErrBlockTimeNotFound) || ctx.Err() != nil {
		return lookupResult{}
	}

	infra.IncReferenceFailures(r.id)
	r.logger.Errorf(ctx, "request to %s/block-time/%d failed: %v", baseURL, block, err)
	return lookupResult{}
}

func earliest(results []lookupResult) (int64, bool) {
	var (
		best  int64
		found bool
	)
	for _, res := range results {
		if !res.present {
			continue
		}
		if !found || res.timestamp < best {
			best = res.timestamp
			found = true
		}
	}
	return best, found
}
