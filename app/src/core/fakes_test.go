package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"head-monitor/app/src/domain"
)

type stubLogger struct {
	mu     sync.Mutex
	infos  []string
	errors []string
}

func (l *stubLogger) Printf(_ context.Context, format string, v ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.infos = append(l.infos, fmt.Sprintf(format, v...))
}

func (l *stubLogger) Println(_ context.Context, v ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.infos = append(l.infos, strings.TrimSpace(fmt.Sprintln(v...)))
}

func (l *stubLogger) Errorf(_ context.Context, format string, v ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, fmt.Sprintf(format, v...))
}

func (l *stubLogger) messages() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.infos...)
}

func (l *stubLogger) failures() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.errors...)
}

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time {
	return c.now
}

type targetResponse struct {
	number uint64
	err    error
}

// scriptedTarget replays queued responses and blocks until ctx is done once the script runs out.
type scriptedTarget struct {
	mu         sync.Mutex
	url        string
	heads      []targetResponse
	streams    []targetResponse
	headCalls  int
	streamFrom []uint64
}

func (t *scriptedTarget) Head(ctx context.Context) (uint64, error) {
	t.mu.Lock()
	t.headCalls++
	if len(t.heads) == 0 {
		t.mu.Unlock()
		<-ctx.Done()
		return 0, ctx.Err()
	}
	resp := t.heads[0]
	t.heads = t.heads[1:]
	t.mu.Unlock()
	return resp.number, resp.err
}

func (t *scriptedTarget) Stream(ctx context.Context, fromBlock uint64) (uint64, error) {
	t.mu.Lock()
	t.streamFrom = append(t.streamFrom, fromBlock)
	if len(t.streams) == 0 {
		t.mu.Unlock()
		<-ctx.Done()
		return 0, ctx.Err()
	}
	resp := t.streams[0]
	t.streams = t.streams[1:]
	t.mu.Unlock()
	return resp.number, resp.err
}

func (t *scriptedTarget) URL() string {
	if t.url == "" {
		return "http://portal"
	}
	return t.url
}

func (t *scriptedTarget) requestedFrom() []uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]uint64(nil), t.streamFrom...)
}

func (t *scriptedTarget) headCallCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.headCalls
}

// referenceFunc answers one reference lookup.
type referenceFunc func(ctx context.Context, block uint64) (int64, error)

type fakeReferences struct {
	mu    sync.Mutex
	byURL map[string]referenceFunc
	calls int
}

func newFakeReferences(byURL map[string]referenceFunc) *fakeReferences {
	return &fakeReferences{byURL: byURL}
}

func (f *fakeReferences) BlockTime(ctx context.Context, baseURL string, block uint64) (int64, error) {
	f.mu.Lock()
	f.calls++
	fn, ok := f.byURL[baseURL]
	f.mu.Unlock()
	if !ok {
		return 0, fmt.Errorf("unexpected reference %s", baseURL)
	}
	return fn(ctx, block)
}

func (f *fakeReferences) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func constantTime(ts int64) referenceFunc {
	return func(context.Context, uint64) (int64, error) { return ts, nil }
}

func notFound() referenceFunc {
	return func(context.Context, uint64) (int64, error) { return 0, domain.ErrBlockTimeNotFound }
}

func serverError(url string) referenceFunc {
	return func(context.Context, uint64) (int64, error) {
		return 0, &domain.StatusError{URL: url, Code: 500, Body: "internal"}
	}
}

type recordingRecorder struct {
	mu      sync.Mutex
	samples []domain.DelaySample
}

func (r *recordingRecorder) Record(_ context.Context, sample domain.DelaySample) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples = append(r.samples, sample)
}

func (r *recordingRecorder) recorded() []domain.DelaySample {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.DelaySample(nil), r.samples...)
}

func testID(name string) domain.MeasurementID {
	return domain.MeasurementID{Dataset: "test-dataset", Name: name}
}

func fastStreamConfig() StreamConfig {
	return StreamConfig{HeadRetryDelay: time.Millisecond}
}
