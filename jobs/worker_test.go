package jobs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestWorkerPoolRunsAllJobs(t *testing.T) {
	pool := NewWorkerPool(3, nil)
	defer pool.Stop()

	var ran int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		err := pool.Submit(Job{ID: "job", Execute: func(ctx context.Context) error {
			defer wg.Done()
			atomic.AddInt32(&ran, 1)
			return nil
		}})
		if err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}
	wg.Wait()

	if got := atomic.LoadInt32(&ran); got != 20 {
		t.Errorf("expected 20 jobs to run, got %d", got)
	}
}

func TestWorkerPoolSurvivesFailuresAndPanics(t *testing.T) {
	pool := NewWorkerPool(1, nil)
	defer pool.Stop()

	done := make(chan struct{})
	_ = pool.Submit(Job{ID: "fail", Execute: func(ctx context.Context) error { return errors.New("boom") }})
	_ = pool.Submit(Job{ID: "panic", Execute: func(ctx context.Context) error { panic("bad job") }})
	_ = pool.Submit(Job{ID: "ok", Execute: func(ctx context.Context) error { close(done); return nil }})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not recover after failing jobs")
	}
}

func TestStopCancelsJobsAndRejectsSubmit(t *testing.T) {
	pool := NewWorkerPool(1, nil)

	started := make(chan struct{})
	cancelled := make(chan struct{})
	_ = pool.Submit(Job{ID: "long", Execute: func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		close(cancelled)
		return ctx.Err()
	}})
	<-started

	pool.Stop()
	select {
	case <-cancelled:
	default:
		t.Error("expected running job context to be cancelled by Stop")
	}

	if err := pool.Submit(Job{ID: "late", Execute: func(ctx context.Context) error { return nil }}); !errors.Is(err, ErrPoolStopped) {
		t.Errorf("expected ErrPoolStopped, got %v", err)
	}
	pool.Stop()
}
