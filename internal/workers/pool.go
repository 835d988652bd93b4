// Package workers provides a small bounded worker pool used to dispatch
// background pipeline work — an accepted analysis submission — off the
// HTTP request goroutine that accepted it.
package workers

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Task is a unit of background work.
type Task interface {
	Execute(ctx context.Context) error
}

// TaskFunc adapts a plain function to Task.
type TaskFunc func(ctx context.Context) error

func (f TaskFunc) Execute(ctx context.Context) error { return f(ctx) }

// Config configures a Pool. This coordinator dispatches a handful of
// background pipelines at a time (one per symbol's analysis submission),
// not the teacher's 1M-ticks/sec fleet, so the defaults are sized
// accordingly.
type Config struct {
	Name        string
	NumWorkers  int
	QueueSize   int
	TaskTimeout time.Duration
}

// DefaultConfig returns sensible defaults for name.
func DefaultConfig(name string) Config {
	return Config{
		Name:        name,
		NumWorkers:  4,
		QueueSize:   256,
		TaskTimeout: 2 * time.Minute, // a full-analysis pipeline call can run long
	}
}

// Stats is a snapshot of pool activity.
type Stats struct {
	Submitted int64 `json:"submitted"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	TimedOut  int64 `json:"timed_out"`
	Panicked  int64 `json:"panicked"`
}

// ErrStopped is returned by Submit once the pool has been stopped.
var ErrStopped = errors.New("workers: pool is stopped")

// ErrQueueFull is returned by Submit when the task queue has no free slot.
var ErrQueueFull = errors.New("workers: task queue is full")

// Pool runs tasks on a fixed set of worker goroutines.
type Pool struct {
	logger *zap.Logger
	config Config

	queue chan Task
	wg    sync.WaitGroup

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc

	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	timedOut  atomic.Int64
	panicked  atomic.Int64
}

// New constructs a Pool. Start must be called before Submit will succeed.
func New(logger *zap.Logger, config Config) *Pool {
	if config.NumWorkers <= 0 || config.QueueSize <= 0 {
		def := DefaultConfig(config.Name)
		if config.NumWorkers <= 0 {
			config.NumWorkers = def.NumWorkers
		}
		if config.QueueSize <= 0 {
			config.QueueSize = def.QueueSize
		}
	}
	if config.TaskTimeout <= 0 {
		config.TaskTimeout = DefaultConfig(config.Name).TaskTimeout
	}

	return &Pool{
		logger: logger.Named("workers").With(zap.String("pool", config.Name)),
		config: config,
		queue:  make(chan Task, config.QueueSize),
	}
}

// Start launches the worker goroutines. Calling Start on an already
// running pool is a no-op.
func (p *Pool) Start() {
	if p.running.Swap(true) {
		return
	}
	p.ctx, p.cancel = context.WithCancel(context.Background())

	p.logger.Info("starting pool", zap.Int("workers", p.config.NumWorkers), zap.Int("queue_size", p.config.QueueSize))
	for i := 0; i < p.config.NumWorkers; i++ {
		p.wg.Add(1)
		go p.run()
	}
}

func (p *Pool) run() {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case task, ok := <-p.queue:
			if !ok {
				return
			}
			p.execute(task)
		}
	}
}

func (p *Pool) execute(task Task) {
	ctx, cancel := context.WithTimeout(p.ctx, p.config.TaskTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				p.panicked.Add(1)
				p.logger.Error("task panicked", zap.Any("panic", r))
				done <- errors.New("task panicked")
			}
		}()
		done <- task.Execute(ctx)
	}()

	select {
	case err := <-done:
		if err != nil {
			p.failed.Add(1)
			p.logger.Warn("task failed", zap.Error(err))
		} else {
			p.completed.Add(1)
		}
	case <-ctx.Done():
		p.timedOut.Add(1)
		p.logger.Warn("task timed out", zap.Duration("timeout", p.config.TaskTimeout))
	}
}

// Submit enqueues task without blocking. Returns ErrQueueFull if the
// queue has no free slot, ErrStopped if the pool is not running.
func (p *Pool) Submit(task Task) error {
	if !p.running.Load() {
		return ErrStopped
	}
	select {
	case p.queue <- task:
		p.submitted.Add(1)
		return nil
	default:
		return ErrQueueFull
	}
}

// SubmitFunc adapts fn to Task and submits it.
func (p *Pool) SubmitFunc(fn func(ctx context.Context) error) error {
	return p.Submit(TaskFunc(fn))
}

// Stop cancels in-flight work and waits up to 10s for workers to drain.
func (p *Pool) Stop() {
	if !p.running.Swap(false) {
		return
	}
	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		p.logger.Info("pool stopped", zap.Int64("completed", p.completed.Load()))
	case <-time.After(10 * time.Second):
		p.logger.Warn("pool stop timed out")
	}
}

// Stats returns a snapshot of pool counters.
func (p *Pool) Stats() Stats {
	return Stats{
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
		TimedOut:  p.timedOut.Load(),
		Panicked:  p.panicked.Load(),
	}
}

// QueueLength returns the number of tasks currently buffered.
func (p *Pool) QueueLength() int {
	return len(p.queue)
}
