// Package worker runs background jobs on an interval and on demand
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrUnknownJob is returned by Trigger for a name that was never registered
var ErrUnknownJob = errors.New("unknown job")

// Job names used by the server
const (
	JobPublish = "publish"
	JobBackup  = "backup"
	JobSyncAll = "sync-all"
)

// JobFunc is one run of a job
type JobFunc func(ctx context.Context) error

type job struct {
	name     string
	interval time.Duration
	run      JobFunc
	trigger  chan struct{}
}

// Runner runs each registered job at most once at a time. Triggers that
// arrive while a job is running are coalesced into one extra run.
type Runner struct {
	logger *zap.Logger

	mu      sync.Mutex
	jobs    map[string]*job
	started bool
}

// NewRunner creates a new Runner
func NewRunner(logger *zap.Logger) *Runner {
	return &Runner{
		logger: logger,
		jobs:   make(map[string]*job),
	}
}

// Register adds a job. A zero interval means the job only runs when
// triggered. Register must be called before Run.
func (r *Runner) Register(name string, interval time.Duration, run JobFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		panic(fmt.Sprintf("worker: Register(%q) after Run", name))
	}
	r.jobs[name] = &job{
		name:     name,
		interval: interval,
		run:      run,
		trigger:  make(chan struct{}, 1),
	}
}

// Trigger asks for a run of the named job as soon as it is idle
func (r *Runner) Trigger(name string) error {
	r.mu.Lock()
	j, ok := r.jobs[name]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}

	select {
	case j.trigger <- struct{}{}:
	default:
		// A run is already pending
	}
	return nil
}

// Run drives every job until ctx is cancelled and then waits for in-flight
// runs to finish.
func (r *Runner) Run(ctx context.Context) error {
	r.mu.Lock()
	r.started = true
	jobs := make([]*job, 0, len(r.jobs))
	for _, j := range r.jobs {
		jobs = append(jobs, j)
	}
	r.mu.Unlock()

	g, ctx := errgroup.WithContext(ctx)
	for _, j := range jobs {
		j := j
		g.Go(func() error {
			r.loop(ctx, j)
			return nil
		})
	}

	return g.Wait()
}

func (r *Runner) loop(ctx context.Context, j *job) {
	var tick <-chan time.Time
	if j.interval > 0 {
		ticker := time.NewTicker(j.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
		case <-j.trigger:
		}
		r.runOnce(ctx, j)
	}
}

func (r *Runner) runOnce(ctx context.Context, j *job) {
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("job panicked", zap.String("job", j.name), zap.Any("panic", p))
		}
	}()

	if err := j.run(ctx); err != nil {
		r.logger.Warn("job failed",
			zap.String("job", j.name),
			zap.Duration("took", time.Since(start)),
			zap.Error(err))
		return
	}

	r.logger.Debug("job finished",
		zap.String("job", j.name),
		zap.Duration("took", time.Since(start)))
}
