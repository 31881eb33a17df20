package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestScheduler_RunsImmediatelyAndOnInterval(t *testing.T) {
	var runs int64
	jobs := New(Job{
		Name:     "counter",
		Interval: 25 * time.Millisecond,
		Run: func(context.Context) error {
			atomic.AddInt64(&runs, 1)
			return nil
		},
	})

	jobs.Start(context.Background())
	time.Sleep(90 * time.Millisecond)
	jobs.Stop()

	got := atomic.LoadInt64(&runs)
	if got < 2 {
		t.Errorf("Expected the job to run immediately and then on ticks, got %d runs", got)
	}
}

func TestScheduler_JobErrorDoesNotStopLoop(t *testing.T) {
	var runs int64
	jobs := New(Job{
		Name:     "flaky",
		Interval: 20 * time.Millisecond,
		Run: func(context.Context) error {
			atomic.AddInt64(&runs, 1)
			return errors.New("transient failure")
		},
	})

	jobs.Start(context.Background())
	time.Sleep(70 * time.Millisecond)
	jobs.Stop()

	got := atomic.LoadInt64(&runs)
	if got < 2 {
		t.Errorf("Expected failing job to keep retrying, got %d runs", got)
	}
}

func TestScheduler_StopWaitsForInFlightRun(t *testing.T) {
	done := make(chan struct{})
	jobs := New(Job{
		Name:     "slow",
		Interval: time.Hour,
		Run: func(context.Context) error {
			time.Sleep(30 * time.Millisecond)
			close(done)
			return nil
		},
	})

	jobs.Start(context.Background())
	jobs.Stop()

	select {
	case <-done:
	default:
		t.Errorf("Expected Stop to wait for the in-flight run")
	}
}

func TestScheduler_ContextCancelStopsLoops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var runs int64
	jobs := New(Job{
		Name:     "cancellable",
		Interval: 10 * time.Millisecond,
		Run: func(context.Context) error {
			atomic.AddInt64(&runs, 1)
			return nil
		},
	})

	jobs.Start(ctx)
	time.Sleep(25 * time.Millisecond)
	cancel()
	time.Sleep(25 * time.Millisecond)
	settled := atomic.LoadInt64(&runs)
	time.Sleep(25 * time.Millisecond)

	if got := atomic.LoadInt64(&runs); got != settled {
		t.Errorf("Expected no runs after cancel, had %d then %d", settled, got)
	}
}
