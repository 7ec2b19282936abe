// Package janitor runs Engine.Prune on a cron schedule.
package janitor

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const (
	DefaultSchedule = "@every 5m"
	DefaultTimeout  = 30 * time.Second
)

// Pruner deletes stale login codes. *goNoPassword.Engine satisfies it.
type Pruner interface {
	Prune(ctx context.Context) (int64, error)
}

type Option func(*Janitor)

// WithSchedule sets the cron spec. Standard five-field specs and
// descriptors such as "@hourly" or "@every 10m" are accepted.
func WithSchedule(spec string) Option {
	return func(j *Janitor) { j.schedule = spec }
}

// WithTimeout bounds a single prune run.
func WithTimeout(d time.Duration) Option {
	return func(j *Janitor) { j.timeout = d }
}

func WithLogger(logger *zap.Logger) Option {
	return func(j *Janitor) { j.logger = logger }
}

// Janitor schedules prune runs. Overlapping runs are skipped.
type Janitor struct {
	pruner   Pruner
	schedule string
	timeout  time.Duration
	logger   *zap.Logger
	cron     *cron.Cron

	runs    atomic.Uint64
	removed atomic.Int64
	failed  atomic.Uint64
}

// New validates the schedule and registers the prune job. Call Start to run it.
func New(p Pruner, opts ...Option) (*Janitor, error) {
	if p == nil {
		return nil, errors.New("janitor: nil pruner")
	}

	j := &Janitor{
		pruner:   p,
		schedule: DefaultSchedule,
		timeout:  DefaultTimeout,
	}
	for _, opt := range opts {
		opt(j)
	}
	if j.logger == nil {
		j.logger = zap.NewNop()
	}
	j.logger = j.logger.Named("janitor")
	if j.timeout <= 0 {
		return nil, errors.New("janitor: timeout must be > 0")
	}

	cl := cronLogger{j.logger.Sugar()}
	j.cron = cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	if _, err := j.cron.AddFunc(j.schedule, j.run); err != nil {
		return nil, fmt.Errorf("janitor: invalid schedule %q: %w", j.schedule, err)
	}

	return j, nil
}

func (j *Janitor) Start() {
	j.logger.Info("janitor started", zap.String("schedule", j.schedule))
	j.cron.Start()
}

// Stop stops the scheduler and waits for a running prune, or for ctx.
func (j *Janitor) Stop(ctx context.Context) error {
	done := j.cron.Stop()
	select {
	case <-done.Done():
		j.logger.Info("janitor stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce prunes immediately, outside the schedule.
func (j *Janitor) RunOnce(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	start := time.Now()
	n, err := j.pruner.Prune(ctx)
	j.runs.Add(1)
	if err != nil {
		j.failed.Add(1)
		j.logger.Error("prune failed", zap.Error(err), zap.Duration("duration", time.Since(start)))
		return n, err
	}
	j.removed.Add(n)
	j.logger.Debug("prune finished", zap.Int64("removed", n), zap.Duration("duration", time.Since(start)))
	return n, nil
}

func (j *Janitor) run() {
	_, _ = j.RunOnce(context.Background())
}

// Stats reports totals since New.
type Stats struct {
	Runs    uint64
	Failed  uint64
	Removed int64
}

func (j *Janitor) Stats() Stats {
	return Stats{
		Runs:    j.runs.Load(),
		Failed:  j.failed.Load(),
		Removed: j.removed.Load(),
	}
}

// Next returns the next scheduled run, or the zero time before Start.
func (j *Janitor) Next() time.Time {
	entries := j.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
