package workers_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/fxdesk/trade-coordinator/internal/workers"
)

func TestSubmitBeforeStartReturnsErrStopped(t *testing.T) {
	p := workers.New(zap.NewNop(), workers.Config{Name: "test"})
	if err := p.SubmitFunc(func(ctx context.Context) error { return nil }); err != workers.ErrStopped {
		t.Fatalf("expected ErrStopped, got %v", err)
	}
}

func TestSubmitRunsTaskAndCountsCompleted(t *testing.T) {
	p := workers.New(zap.NewNop(), workers.DefaultConfig("test"))
	p.Start()
	defer p.Stop()

	done := make(chan struct{})
	if err := p.SubmitFunc(func(ctx context.Context) error {
		close(done)
		return nil
	}); err != nil {
		t.Fatal(err)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task did not run")
	}

	waitForStat(t, p, func(s workers.Stats) bool { return s.Completed == 1 })
}

func TestSubmitCountsFailure(t *testing.T) {
	p := workers.New(zap.NewNop(), workers.DefaultConfig("test"))
	p.Start()
	defer p.Stop()

	if err := p.SubmitFunc(func(ctx context.Context) error { return errors.New("boom") }); err != nil {
		t.Fatal(err)
	}
	waitForStat(t, p, func(s workers.Stats) bool { return s.Failed == 1 })
}

func TestPanicIsRecoveredAndCounted(t *testing.T) {
	p := workers.New(zap.NewNop(), workers.DefaultConfig("test"))
	p.Start()
	defer p.Stop()

	if err := p.SubmitFunc(func(ctx context.Context) error { panic("boom") }); err != nil {
		t.Fatal(err)
	}
	waitForStat(t, p, func(s workers.Stats) bool { return s.Panicked == 1 })
}

func TestTaskTimeoutIsCounted(t *testing.T) {
	p := workers.New(zap.NewNop(), workers.Config{Name: "test", NumWorkers: 1, QueueSize: 1, TaskTimeout: 20 * time.Millisecond})
	p.Start()
	defer p.Stop()

	if err := p.SubmitFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}); err != nil {
		t.Fatal(err)
	}
	waitForStat(t, p, func(s workers.Stats) bool { return s.TimedOut == 1 })
}

func TestSubmitReturnsErrQueueFullWhenSaturated(t *testing.T) {
	p := workers.New(zap.NewNop(), workers.Config{Name: "test", NumWorkers: 1, QueueSize: 1, TaskTimeout: time.Second})
	p.Start()
	defer p.Stop()

	block := make(chan struct{})
	// Occupy the single worker so the queue fills behind it. The sleep
	// gives the worker goroutine time to dequeue the first task before
	// the second fills the (capacity-1) queue buffer.
	if err := p.SubmitFunc(func(ctx context.Context) error { <-block; return nil }); err != nil {
		t.Fatal(err)
	}
	time.Sleep(20 * time.Millisecond)
	if err := p.SubmitFunc(func(ctx context.Context) error { return nil }); err != nil {
		t.Fatal(err)
	}

	err := p.SubmitFunc(func(ctx context.Context) error { return nil })
	close(block)
	if err != workers.ErrQueueFull {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
}

func waitForStat(t *testing.T, p *workers.Pool, cond func(workers.Stats) bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond(p.Stats()) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met, final stats: %+v", p.Stats())
}
