package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestPool_StartStop(t *testing.T) {
	var processed atomic.Int64
	process := func(ctx context.Context, job int) {
		processed.Add(1)
	}

	pool := NewPool(2, 10, process)

	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)

	for i := 0; i < 5; i++ {
		pool.Submit(i)
	}

	time.Sleep(50 * time.Millisecond)

	cancel()
	pool.Stop()

	if processed.Load() != 5 {
		t.Errorf("expected 5 jobs processed, got %d", processed.Load())
	}
}

func TestPool_ConcurrentSubmit(t *testing.T) {
	var processed atomic.Int64
	process := func(ctx context.Context, job int) {
		processed.Add(1)
	}

	pool := NewPool(4, 100, process)

	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)

	for i := 0; i < 100; i++ {
		go func(n int) {
			pool.Submit(n)
		}(i)
	}

	time.Sleep(100 * time.Millisecond)

	cancel()
	pool.Stop()

	if processed.Load() != 100 {
		t.Errorf("expected 100 jobs processed, got %d", processed.Load())
	}
}

func TestPool_StructJobs(t *testing.T) {
	type job struct {
		id   string
		done chan struct{}
	}

	process := func(ctx context.Context, j job) {
		close(j.done)
	}

	pool := NewPool(1, 4, process)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)
	defer pool.Stop()

	done := make(chan struct{})
	pool.Submit(job{id: "j1", done: done})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("job never processed")
	}
}

func TestPool_StopWaitsForInFlight(t *testing.T) {
	var processed atomic.Int64
	process := func(ctx context.Context, job int) {
		time.Sleep(10 * time.Millisecond)
		processed.Add(1)
	}

	pool := NewPool(2, 50, process)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)

	for i := 0; i < 20; i++ {
		pool.Submit(i)
	}

	done := make(chan struct{})
	go func() {
		pool.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("pool.Stop() timed out")
	}

	if processed.Load() != 20 {
		t.Errorf("expected all 20 jobs drained on stop, got %d", processed.Load())
	}
}

func TestPool_ContextCancellationStopsWorkers(t *testing.T) {
	process := func(ctx context.Context, job int) {
		select {
		case <-ctx.Done():
		case <-time.After(100 * time.Millisecond):
		}
	}

	pool := NewPool(2, 10, process)

	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)

	for i := 0; i < 4; i++ {
		pool.Submit(i)
	}

	cancel()

	done := make(chan struct{})
	go func() {
		pool.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("workers did not exit after context cancellation")
	}
}
