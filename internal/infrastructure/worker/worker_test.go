package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeWorker struct {
	name     string
	startErr error
	log      *[]string
	mu       *sync.Mutex
}

func (w *fakeWorker) record(event string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	*w.log = append(*w.log, event+":"+w.name)
}

func (w *fakeWorker) Start(ctx context.Context) error {
	if w.startErr != nil {
		return w.startErr
	}
	w.record("start")
	return nil
}

func (w *fakeWorker) Stop() error {
	w.record("stop")
	return nil
}

func (w *fakeWorker) Name() string { return w.name }

func TestWorkerManager_StartStopOrder(t *testing.T) {
	var (
		log []string
		mu  sync.Mutex
	)
	manager := NewWorkerManager(zap.NewNop())
	manager.Register(&fakeWorker{name: "a", log: &log, mu: &mu})
	manager.Register(&fakeWorker{name: "b", log: &log, mu: &mu})

	require.NoError(t, manager.StartAll(context.Background()))
	assert.True(t, manager.IsRunning())
	assert.Equal(t, 2, manager.GetWorkerCount())
	assert.Error(t, manager.StartAll(context.Background()), "already running")

	require.NoError(t, manager.StopAll())
	assert.False(t, manager.IsRunning())
	assert.Equal(t, []string{"start:a", "start:b", "stop:b", "stop:a"}, log)

	assert.NoError(t, manager.StopAll(), "stopping twice is a no-op")
}

func TestWorkerManager_StartFailureStopsStartedWorkers(t *testing.T) {
	var (
		log []string
		mu  sync.Mutex
	)
	manager := NewWorkerManager(zap.NewNop())
	manager.Register(&fakeWorker{name: "a", log: &log, mu: &mu})
	manager.Register(&fakeWorker{name: "b", log: &log, mu: &mu, startErr: errors.New("boom")})

	err := manager.StartAll(context.Background())
	assert.ErrorContains(t, err, "failed to start worker b")
	assert.False(t, manager.IsRunning())
	assert.Equal(t, []string{"start:a", "stop:a"}, log)
}

func TestNewScheduledWorker_Validation(t *testing.T) {
	job := func(ctx context.Context) error { return nil }

	_, err := NewScheduledWorker("bad", ScheduleConfig{Schedule: "every minute"}, job, zap.NewNop())
	assert.ErrorContains(t, err, "invalid schedule")

	_, err = NewScheduledWorker("nil", ScheduleConfig{Schedule: "@hourly"}, nil, zap.NewNop())
	assert.ErrorContains(t, err, "has no job")

	w, err := NewScheduledWorker("ok", ScheduleConfig{Schedule: "*/5 * * * *"}, job, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, "ok", w.Name())
}

func TestScheduledWorker_RunOnce(t *testing.T) {
	fail := false
	job := func(ctx context.Context) error {
		if fail {
			return errors.New("gateway down")
		}
		return nil
	}
	w, err := NewScheduledWorker("reconciliation", ScheduleConfig{Schedule: "@hourly", Timeout: time.Second}, job, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, w.RunOnce())
	fail = true
	assert.ErrorContains(t, w.RunOnce(), "gateway down")

	stats := w.Stats()
	assert.Equal(t, 2, stats.Runs)
	assert.Equal(t, 1, stats.Failures)
	assert.Equal(t, "gateway down", stats.LastError)
	assert.False(t, stats.LastRun.IsZero())
}

func TestScheduledWorker_RunOnce_AppliesTimeout(t *testing.T) {
	job := func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}
	w, err := NewScheduledWorker("slow", ScheduleConfig{Schedule: "@hourly", Timeout: 20 * time.Millisecond}, job, zap.NewNop())
	require.NoError(t, err)

	assert.ErrorIs(t, w.RunOnce(), context.DeadlineExceeded)
}

func TestScheduledWorker_StartAndStop(t *testing.T) {
	var runs atomic.Int32
	job := func(ctx context.Context) error {
		runs.Add(1)
		return nil
	}
	w, err := NewScheduledWorker("tick", ScheduleConfig{Schedule: "@every 1s"}, job, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, w.Start(context.Background()))
	assert.Error(t, w.Start(context.Background()), "already started")

	assert.Eventually(t, func() bool { return runs.Load() >= 1 }, 3*time.Second, 20*time.Millisecond)

	require.NoError(t, w.Stop())
	assert.NoError(t, w.Stop(), "stopping twice is a no-op")
}
