package core

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"head-monitor/app/src/domain"
	"head-monitor/app/src/infra"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMonitor struct {
	id      domain.MeasurementID
	panics  int32
	runs    int32
	started chan string
}

func (m *fakeMonitor) ID() domain.MeasurementID {
	return m.id
}

func (m *fakeMonitor) Run(ctx context.Context) {
	m.started <- infra.CorrelationIDFromContext(ctx)
	if atomic.AddInt32(&m.runs, 1) <= m.panics {
		panic("monitor exploded")
	}
	<-ctx.Done()
}

type fakeMonitorFactory struct {
	mu      sync.Mutex
	built   []domain.MeasurementID
	started chan string
	failFor string
	panics  string
	monitor map[string]*fakeMonitor
}

func (f *fakeMonitorFactory) build(m domain.Measurement) (domain.DelayMonitor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m.ID.Name == f.failFor {
		return nil, errors.New("cannot build " + m.ID.String())
	}
	f.built = append(f.built, m.ID)
	monitor := &fakeMonitor{id: m.ID, started: f.started}
	if m.ID.Name == f.panics {
		monitor.panics = 2
	}
	if f.monitor == nil {
		f.monitor = map[string]*fakeMonitor{}
	}
	f.monitor[m.ID.Name] = monitor
	return monitor, nil
}

func measurementsFor(ids ...domain.MeasurementID) []domain.Measurement {
	result := make([]domain.Measurement, len(ids))
	for i, id := range ids {
		result[i] = domain.Measurement{ID: id}
	}
	return result
}

func TestSupervisorStartsMonitorsInSortedOrder(t *testing.T) {
	t.Log("Шаг 1: передаём измерения в произвольном порядке")
	factory := &fakeMonitorFactory{started: make(chan string, 3)}
	measurements := measurementsFor(
		domain.MeasurementID{Dataset: "solana", Name: "eu"},
		domain.MeasurementID{Dataset: "ethereum", Name: "us"},
		domain.MeasurementID{Dataset: "ethereum", Name: "eu"},
	)
	logger := &stubLogger{}
	supervisor := NewSupervisor(measurements, factory.build, logger)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, supervisor.Start(ctx))

	t.Log("Шаг 2: мониторы созданы по датасету и имени")
	expected := []domain.MeasurementID{
		{Dataset: "ethereum", Name: "eu"},
		{Dataset: "ethereum", Name: "us"},
		{Dataset: "solana", Name: "eu"},
	}
	assert.Equal(t, expected, supervisor.Monitors())
	assert.Equal(t, []string{"monitoring ethereum.eu", "monitoring ethereum.us", "monitoring solana.eu"}, logger.messages())

	t.Log("Шаг 3: каждый монитор получил свой correlation id")
	ids := map[string]bool{}
	for range expected {
		select {
		case id := <-factory.started:
			assert.NotEmpty(t, id)
			ids[id] = true
		case <-time.After(time.Second):
			t.Fatal("monitor was not started")
		}
	}
	assert.Len(t, ids, 3)

	cancel()
	waitOrFail(t, supervisor)
}

func TestSupervisorFailsBeforeStartingAnything(t *testing.T) {
	factory := &fakeMonitorFactory{started: make(chan string, 2), failFor: "broken"}
	supervisor := NewSupervisor(measurementsFor(testID("ok"), testID("broken")), factory.build, nil)

	err := supervisor.Start(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "test-dataset.broken")
	assert.Empty(t, supervisor.Monitors())
	assert.Len(t, factory.started, 0)
}

func TestSupervisorRestartsPanickingMonitor(t *testing.T) {
	t.Log("Шаг 1: один из мониторов дважды паникует при запуске")
	id := testID("bad")
	factory := &fakeMonitorFactory{started: make(chan string, 4), panics: "bad"}
	logger := &stubLogger{}
	supervisor := NewSupervisor(measurementsFor(id, testID("good")), factory.build, logger)
	supervisor.restartDelay = time.Millisecond
	restartsBefore := testutil.ToFloat64(infra.MonitorRestartsTotal.WithLabelValues(id.Dataset, id.Name))

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, supervisor.Start(ctx))

	t.Log("Шаг 2: упавший монитор перезапускается, пока контекст жив")
	for i := 0; i < 4; i++ {
		select {
		case <-factory.started:
		case <-time.After(time.Second):
			t.Fatal("monitor was not started")
		}
	}
	factory.mu.Lock()
	bad := factory.monitor["bad"]
	factory.mu.Unlock()
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&bad.runs) == 3 }, time.Second, 5*time.Millisecond)
	assert.Len(t, factory.built, 2)

	require.Len(t, logger.failures(), 2)
	assert.Contains(t, logger.failures()[0], "monitor test-dataset.bad crashed")
	assert.Contains(t, logger.messages(), "restarting monitor test-dataset.bad in 1ms")
	assert.Equal(t, restartsBefore+2, testutil.ToFloat64(infra.MonitorRestartsTotal.WithLabelValues(id.Dataset, id.Name)))

	cancel()
	waitOrFail(t, supervisor)
}

func TestSupervisorDoesNotRestartAfterShutdown(t *testing.T) {
	factory := &fakeMonitorFactory{started: make(chan string, 1), panics: "late"}
	logger := &stubLogger{}
	supervisor := NewSupervisor(measurementsFor(testID("late")), factory.build, logger)
	supervisor.restartDelay = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, supervisor.Start(ctx))

	select {
	case <-factory.started:
	case <-time.After(time.Second):
		t.Fatal("monitor was not started")
	}
	assert.Eventually(t, func() bool { return len(logger.failures()) == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	waitOrFail(t, supervisor)
	assert.Len(t, factory.started, 0)
}

func TestSupervisorStartTwice(t *testing.T) {
	factory := &fakeMonitorFactory{started: make(chan string, 1)}
	supervisor := NewSupervisor(measurementsFor(testID("once")), factory.build, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, supervisor.Start(ctx))
	assert.ErrorIs(t, supervisor.Start(ctx), ErrSupervisorStarted)

	cancel()
	waitOrFail(t, supervisor)
}

func TestSupervisorWithoutMeasurements(t *testing.T) {
	supervisor := NewSupervisor(nil, (&fakeMonitorFactory{}).build, nil)

	require.NoError(t, supervisor.Start(context.Background()))
	assert.Empty(t, supervisor.Monitors())
	waitOrFail(t, supervisor)
}

func waitOrFail(t *testing.T, supervisor *Supervisor) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		supervisor.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("supervisor did not stop")
	}
}
