package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Job is one run of a scheduled worker
type Job func(ctx context.Context) error

// ScheduleConfig holds configuration for a scheduled worker
type ScheduleConfig struct {
	// Schedule is a standard five field cron spec or a descriptor such as "@every 5m"
	Schedule string
	// Timeout bounds a single run; zero means no bound
	Timeout time.Duration
}

// Stats describes the runs of a scheduled worker so far
type Stats struct {
	Runs      int       `json:"runs"`
	Failures  int       `json:"failures"`
	LastRun   time.Time `json:"last_run"`
	LastError string    `json:"last_error,omitempty"`
}

// ScheduledWorker runs a job on a cron schedule, skipping a tick while the previous run is still going
type ScheduledWorker struct {
	name   string
	config ScheduleConfig
	job    Job
	logger *zap.Logger

	mu     sync.Mutex
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
	stats  Stats
}

// NewScheduledWorker creates a worker and validates its schedule
func NewScheduledWorker(name string, config ScheduleConfig, job Job, logger *zap.Logger) (*ScheduledWorker, error) {
	if job == nil {
		return nil, fmt.Errorf("worker %s has no job", name)
	}
	if _, err := cron.ParseStandard(config.Schedule); err != nil {
		return nil, fmt.Errorf("invalid schedule %q for worker %s: %w", config.Schedule, name, err)
	}

	return &ScheduledWorker{
		name:   name,
		config: config,
		job:    job,
		logger: logger.With(zap.String("worker_name", name)),
	}, nil
}

// Name returns the worker name
func (w *ScheduledWorker) Name() string {
	return w.name
}

// Start registers the job and starts the scheduler
func (w *ScheduledWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cron != nil {
		return fmt.Errorf("worker %s already started", w.name)
	}

	logger := newCronLogger(w.logger)
	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	if _, err := c.AddFunc(w.config.Schedule, func() { w.RunOnce() }); err != nil {
		return fmt.Errorf("failed to schedule worker %s: %w", w.name, err)
	}

	w.ctx, w.cancel = context.WithCancel(ctx)
	w.cron = c
	c.Start()

	w.logger.Info("Scheduled worker started", zap.String("schedule", w.config.Schedule))
	return nil
}

// Stop cancels a running job and waits for it to return
func (w *ScheduledWorker) Stop() error {
	w.mu.Lock()
	c, cancel := w.cron, w.cancel
	w.cron = nil
	w.mu.Unlock()

	if c == nil {
		return nil
	}
	cancel()
	<-c.Stop().Done()

	w.logger.Info("Scheduled worker stopped")
	return nil
}

// RunOnce runs the job immediately and records the outcome
func (w *ScheduledWorker) RunOnce() error {
	w.mu.Lock()
	ctx := w.ctx
	w.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}

	if w.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.config.Timeout)
		defer cancel()
	}

	start := time.Now()
	err := w.job(ctx)

	w.mu.Lock()
	w.stats.Runs++
	w.stats.LastRun = start
	w.stats.LastError = ""
	if err != nil {
		w.stats.Failures++
		w.stats.LastError = err.Error()
	}
	w.mu.Unlock()

	if err != nil {
		w.logger.Error("Scheduled job failed",
			zap.Duration("duration", time.Since(start)),
			zap.Error(err))
		return err
	}
	w.logger.Debug("Scheduled job finished", zap.Duration("duration", time.Since(start)))
	return nil
}

// Stats returns a snapshot of the worker's run statistics
func (w *ScheduledWorker) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

// Verify interface compliance
var _ Worker = (*ScheduledWorker)(nil)
