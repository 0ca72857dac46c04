// Package workerpool runs units of work with bounded concurrency and a
// per-unit timeout.
//
// A Pool carries the global worker bound and shared statistics. The
// generic ExecuteParallel and ExecuteSettled functions submit a slice of
// tasks to a pool; results always come back in input order.
package workerpool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/leapstack-labs/vaultlint/pkg/core"
)

// ErrPoolClosed is returned for submissions after Shutdown.
var ErrPoolClosed = errors.New("worker pool is closed")

// Task is one unit of work.
type Task[T any] func(ctx context.Context) (T, error)

// WorkerResult is the settled outcome of one task.
type WorkerResult[T any] struct {
	Index    int
	Value    T
	Err      error
	Duration time.Duration
}

// Config configures a Pool.
type Config struct {
	// MaxWorkers bounds units running at once across all calls on the
	// pool. Defaults to GOMAXPROCS.
	MaxWorkers int
	// TaskTimeout bounds each unit. Zero disables the timeout.
	TaskTimeout time.Duration
	Logger      *slog.Logger
}

// Stats is a snapshot of pool counters.
type Stats struct {
	Total       int64         `json:"total"`
	Completed   int64         `json:"completed"`
	Failed      int64         `json:"failed"`
	Active      int64         `json:"active"`
	Queued      int64         `json:"queued"`
	AvgDuration time.Duration `json:"avg_duration"`
}

// Pool bounds and accounts for task execution.
type Pool struct {
	cfg    Config
	sem    *semaphore.Weighted
	logger *slog.Logger

	mu       sync.Mutex
	closed   bool
	inflight sync.WaitGroup
	once     sync.Once

	total     atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	active    atomic.Int64
	queued    atomic.Int64
	elapsed   atomic.Int64
}

// New creates a pool.
func New(cfg Config) *Pool {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = runtime.GOMAXPROCS(0)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Pool{
		cfg:    cfg,
		sem:    semaphore.NewWeighted(int64(cfg.MaxWorkers)),
		logger: logger,
	}
}

// MaxWorkers returns the pool-wide bound.
func (p *Pool) MaxWorkers() int {
	return p.cfg.MaxWorkers
}

func (p *Pool) begin(n int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPoolClosed
	}
	p.inflight.Add(1)
	p.total.Add(int64(n))
	p.queued.Add(int64(n))
	return nil
}

func (p *Pool) limit(concurrency int) int {
	if concurrency <= 0 || concurrency > p.cfg.MaxWorkers {
		return p.cfg.MaxWorkers
	}
	return concurrency
}

type outcome[T any] struct {
	v   T
	err error
}

// run executes one task under the pool bound and timeout. The slot is
// released when the timeout fires even if the task keeps running.
func run[T any](ctx context.Context, p *Pool, task Task[T]) (T, time.Duration, error) {
	var zero T
	if err := p.sem.Acquire(ctx, 1); err != nil {
		p.queued.Add(-1)
		return zero, 0, err
	}
	defer p.sem.Release(1)
	p.queued.Add(-1)
	p.active.Add(1)
	defer p.active.Add(-1)

	start := time.Now()
	tctx, cancel := ctx, context.CancelFunc(func() {})
	if p.cfg.TaskTimeout > 0 {
		tctx, cancel = context.WithTimeout(ctx, p.cfg.TaskTimeout)
	}
	defer cancel()

	done := make(chan outcome[T], 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome[T]{err: fmt.Errorf("task panicked: %v", r)}
			}
		}()
		v, err := task(tctx)
		done <- outcome[T]{v: v, err: err}
	}()

	var out outcome[T]
	select {
	case out = <-done:
	case <-tctx.Done():
		out.err = tctx.Err()
		if ctx.Err() == nil && errors.Is(out.err, context.DeadlineExceeded) {
			out.err = fmt.Errorf("%w after %s", core.ErrTaskTimeout, p.cfg.TaskTimeout)
		}
	}
	d := time.Since(start)
	p.elapsed.Add(int64(d))
	if out.err != nil {
		p.failed.Add(1)
		return zero, d, out.err
	}
	p.completed.Add(1)
	return out.v, d, nil
}

// ExecuteParallel runs tasks with at most concurrency running at once
// (defaulting to the pool bound) and returns their values in input order.
// If any task fails the call returns that error and no values; tasks not
// yet started are skipped and in-flight tasks settle first.
func ExecuteParallel[T any](ctx context.Context, p *Pool, tasks []Task[T], concurrency int) ([]T, error) {
	if err := p.begin(len(tasks)); err != nil {
		return nil, err
	}
	defer p.inflight.Done()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.limit(concurrency))

	results := make([]T, len(tasks))
	for i, task := range tasks {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				p.queued.Add(-1)
				return err
			}
			v, _, err := run(gctx, p, task)
			if err != nil {
				return fmt.Errorf("task %d: %w", i, err)
			}
			results[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		p.logger.Debug("parallel execution failed", "tasks", len(tasks), "error", err)
		return nil, err
	}
	return results, nil
}

// ExecuteSettled runs every task and reports each outcome individually.
// A cancelled ctx marks unstarted tasks with the context error.
func ExecuteSettled[T any](ctx context.Context, p *Pool, tasks []Task[T], concurrency int) ([]WorkerResult[T], error) {
	if err := p.begin(len(tasks)); err != nil {
		return nil, err
	}
	defer p.inflight.Done()

	var g errgroup.Group
	g.SetLimit(p.limit(concurrency))

	results := make([]WorkerResult[T], len(tasks))
	for i, task := range tasks {
		g.Go(func() error {
			results[i].Index = i
			if err := ctx.Err(); err != nil {
				p.queued.Add(-1)
				results[i].Err = err
				return nil
			}
			v, d, err := run(ctx, p, task)
			results[i].Value, results[i].Err, results[i].Duration = v, err, d
			return nil
		})
	}
	_ = g.Wait()
	return results, nil
}

// Stats returns current counters.
func (p *Pool) Stats() Stats {
	s := Stats{
		Total:     p.total.Load(),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
		Active:    p.active.Load(),
		Queued:    p.queued.Load(),
	}
	if n := s.Completed + s.Failed; n > 0 {
		s.AvgDuration = time.Duration(p.elapsed.Load() / n)
	}
	return s
}

// Shutdown rejects new submissions and waits for in-flight calls. It is
// safe to call more than once.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.inflight.Wait()
	p.once.Do(func() {
		s := p.Stats()
		p.logger.Debug("worker pool shut down",
			"total", s.Total,
			"completed", s.Completed,
			"failed", s.Failed)
	})
}
