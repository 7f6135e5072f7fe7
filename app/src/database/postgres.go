package database

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"head-monitor/app/src/domain"
	"head-monitor/app/src/infra"
	"head-monitor/app/src/shared/constants"
)

// Config contains the configuration required to connect to a Postgres database.
type Config struct {
	DSN    string
	Runner CommandRunner
	Logger *infra.Logger
	// BatchSize determines how many samples are flushed together.
	BatchSize int
	// BatchTimeout specifies how long to wait before flushing a partial batch.
	BatchTimeout time.Duration
	// BufferSize controls the capacity of the inbound sample queue.
	BufferSize int
}

// CommandRunner executes SQL commands against Postgres.
type CommandRunner interface {
	Exec(ctx context.Context, dsn, password, sql string, args ...any) (string, error)
	Close() error
}

// Repository archives delay samples in Postgres. Writes are queued and
// flushed in batches; a full queue drops the sample instead of blocking the
// monitor that produced it.
type Repository struct {
	dsn      string
	password string

	runner CommandRunner
	logger *infra.Logger

	batchSize    int
	batchTimeout time.Duration
	buffer       chan domain.DelaySample
	stopCh       chan struct{}
	wg           sync.WaitGroup

	mu     sync.RWMutex
	closed bool

	closeOnce sync.Once
}

const (
	sampleColumns = 5

	insertSamplesPrefix = `INSERT INTO public.delay_samples (dataset, measurement, block_number, observed_at, delay_ms) VALUES `
	insertSamplesSuffix = ` ON CONFLICT (dataset, measurement, block_number) DO UPDATE SET observed_at = EXCLUDED.observed_at, delay_ms = EXCLUDED.delay_ms`

	selectSamplesInRangeSQL = `
SELECT block_number, observed_at, delay_ms
FROM public.delay_samples
WHERE dataset = $1 AND measurement = $2 AND observed_at BETWEEN $3 AND $4
ORDER BY observed_at ASC, block_number ASC
`
)

// New creates a repository backed by Postgres using a SQL command runner.
func New(ctx context.Context, cfg Config) (*Repository, error) {
	if cfg.DSN == "" {
		return nil, errors.New("postgres repository: DSN is required")
	}

	parsed, err := url.Parse(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres repository: parse dsn: %w", err)
	}

	password, _ := parsed.User.Password()

	runner := cfg.Runner
	if runner == nil {
		runner = NewSQLRunner()
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 1
	}

	bufferSize := cfg.BufferSize
	if bufferSize <= 0 {
		bufferSize = batchSize
	}

	batchTimeout := cfg.BatchTimeout
	if batchTimeout < 0 {
		batchTimeout = 0
	}

	repo := &Repository{
		dsn:          cfg.DSN,
		password:     password,
		runner:       runner,
		logger:       cfg.Logger,
		batchSize:    batchSize,
		batchTimeout: batchTimeout,
		buffer:       make(chan domain.DelaySample, bufferSize),
		stopCh:       make(chan struct{}),
	}

	repo.wg.Add(1)
	go repo.run()

	return repo, nil
}

// Close flushes queued samples and releases resources held by the repository.
func (r *Repository) Close() error {
	r.mu.Lock()
	alreadyClosed := r.closed
	if !r.closed {
		r.closed = true
		close(r.stopCh)
	}
	r.mu.Unlock()

	if !alreadyClosed {
		r.wg.Wait()
	}

	var err error
	r.closeOnce.Do(func() {
		err = r.runner.Close()
	})
	return err
}

// Record enqueues a sample for the next batch. It never blocks.
func (r *Repository) Record(ctx context.Context, sample domain.DelaySample) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		r.drop(ctx, sample, "repository closed")
		return
	}

	select {
	case r.buffer <- sample:
	default:
		r.drop(ctx, sample, "queue full")
	}
}

func (r *Repository) drop(ctx context.Context, sample domain.DelaySample, reason string) {
	infra.IncArchiveDropped()
	if r.logger != nil {
		r.logger.WithMeasurement(sample.ID).Printf(ctx, "postgres repository: dropped sample block=%d: %s", sample.Block, reason)
	}
}

func (r *Repository) run() {
	defer r.wg.Done()

	batch := make([]domain.DelaySample, 0, r.batchSize)
	var timer *time.Timer

	activateTimer := func() {
		if r.batchTimeout <= 0 {
			return
		}
		if timer == nil {
			timer = time.NewTimer(r.batchTimeout)
			return
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(r.batchTimeout)
	}

	deactivateTimer := func() {
		if timer == nil {
			return
		}
		t := timer
		if !t.Stop() {
			select {
			case <-t.C:
			default:
			}
		}
		timer = nil
	}

	flush := func() {
		if len(batch) == 0 {
			return
		}
		r.processBatch(batch)
		batch = batch[:0]
		deactivateTimer()
	}

	appendToBatch := func(sample domain.DelaySample) {
		batch = append(batch, sample)
		if len(batch) == 1 {
			activateTimer()
		}
		if len(batch) >= r.batchSize {
			flush()
		}
	}

	for {
		var timeout <-chan time.Time
		if timer != nil {
			timeout = timer.C
		}

		select {
		case <-r.stopCh:
			for {
				select {
				case sample := <-r.buffer:
					appendToBatch(sample)
				default:
					flush()
					return
				}
			}
		case sample := <-r.buffer:
			appendToBatch(sample)
		case <-timeout:
			flush()
		}
	}
}

func (r *Repository) processBatch(batch []domain.DelaySample) {
	if len(batch) == 0 {
		return
	}

	ctx := context.Background()
	start := time.Now()
	err := r.writeSamples(ctx, batch)
	infra.RecordArchiveFlush(time.Since(start), len(batch))
	if err != nil {
		infra.IncArchiveWriteErrors()
		if r.logger != nil {
			r.logger.Errorf(ctx, "postgres repository: batch write failed size=%d: %v", len(batch), err)
		}
	}
}

func (r *Repository) writeSamples(ctx context.Context, batch []domain.DelaySample) error {
	statement, args := buildInsertSamples(batch)

	tag, err := r.runner.Exec(ctx, r.dsn, r.password, statement, args...)
	if err != nil {
		return fmt.Errorf("insert delay samples: %w", err)
	}

	affected, err := parseRowsAffected(tag)
	if err != nil {
		return fmt.Errorf("parse insert result %q: %w", tag, err)
	}
	if rows := int64(len(args) / sampleColumns); affected != rows && r.logger != nil {
		r.logger.Printf(ctx, "postgres repository: inserted %d of %d samples", affected, rows)
	}
	return nil
}

// buildInsertSamples renders one multi-row upsert for the batch. A block seen
// twice for the same measurement keeps the latest observation.
func buildInsertSamples(batch []domain.DelaySample) (string, []any) {
	rows := dedupeSamples(batch)

	var b strings.Builder
	b.WriteString(insertSamplesPrefix)

	args := make([]any, 0, len(rows)*sampleColumns)
	for i, sample := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		base := i * sampleColumns
		fmt.Fprintf(&b, "($%d, $%d, $%d, $%d, $%d)", base+1, base+2, base+3, base+4, base+5)
		args = append(args,
			sample.ID.Dataset,
			sample.ID.Name,
			int64(sample.Block),
			sample.ObservedAt.UTC(),
			sample.DelayMillis,
		)
	}

	b.WriteString(insertSamplesSuffix)
	return b.String(), args
}

// Postgres rejects an upsert that touches the same row twice.
func dedupeSamples(batch []domain.DelaySample) []domain.DelaySample {
	type key struct {
		id    domain.MeasurementID
		block uint64
	}

	index := make(map[key]int, len(batch))
	rows := make([]domain.DelaySample, 0, len(batch))
	for _, sample := range batch {
		k := key{id: sample.ID, block: sample.Block}
		if i, ok := index[k]; ok {
			rows[i] = sample
			continue
		}
		index[k] = len(rows)
		rows = append(rows, sample)
	}
	return rows
}

func parseRowsAffected(tag string) (int64, error) {
	fields := strings.Fields(strings.TrimSpace(tag))
	if len(fields) == 0 {
		return 0, nil
	}

	switch strings.ToUpper(fields[0]) {
	case "UPDATE", "DELETE":
		if len(fields) < 2 {
			return 0, fmt.Errorf("unexpected command tag %q", tag)
		}
		count, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parse rows affected: %w", err)
		}
		return count, nil
	case "INSERT":
		if len(fields) < 3 {
			return 0, fmt.Errorf("unexpected command tag %q", tag)
		}
		count, err := strconv.ParseInt(fields[len(fields)-1], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parse rows affected: %w", err)
		}
		return count, nil
	default:
		return 0, fmt.Errorf("unsupported command tag %q", tag)
	}
}

// SamplesInRange returns the archived samples of one measurement observed
// within [from, to], oldest first.
func (r *Repository) SamplesInRange(ctx context.Context, id domain.MeasurementID, from, to time.Time) ([]domain.DelaySample, error) {
	output, err := r.runner.Exec(ctx, r.dsn, r.password, selectSamplesInRangeSQL, id.Dataset, id.Name, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("postgres repository: samples in range: %w", err)
	}

	samples, err := parseSampleList(id, output)
	if err != nil {
		return nil, fmt.Errorf("postgres repository: samples in range parse: %w", err)
	}
	if len(samples) == 0 {
		return nil, domain.ErrNotFound
	}

	return samples, nil
}

func parseSampleList(id domain.MeasurementID, output string) ([]domain.DelaySample, error) {
	trimmed := strings.TrimSpace(output)
	if trimmed == "" {
		return nil, nil
	}

	reader := csv.NewReader(strings.NewReader(trimmed))
	reader.TrimLeadingSpace = true

	var results []domain.DelaySample
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse csv: %w", err)
		}

		if len(record) < 3 {
			return nil, fmt.Errorf("unexpected column count: %d", len(record))
		}

		block, err := strconv.ParseUint(strings.TrimSpace(record[0]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse block number: %w", err)
		}

		observedAt, err := time.Parse(constants.TimeFormat, strings.TrimSpace(record[1]))
		if err != nil {
			return nil, fmt.Errorf("parse timestamp: %w", err)
		}

		delay, err := strconv.ParseInt(strings.TrimSpace(record[2]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse delay: %w", err)
		}

		results = append(results, domain.DelaySample{
			ID:          id,
			Block:       block,
			ObservedAt:  observedAt,
			DelayMillis: delay,
		})
	}

	return results, nil
}

var (
	_ domain.DelayRecorder = (*Repository)(nil)
	_ domain.DelayArchive  = (*Repository)(nil)
)
