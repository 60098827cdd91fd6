package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	return logger
}

func TestPoolRunsJobsAndDeliversResults(t *testing.T) {
	p := NewPool(2, quietLogger())
	p.Start(context.Background())
	defer p.Stop()

	results := make(chan Result, 1)
	id := p.Submit(func(ctx context.Context) (any, error) {
		return 42, nil
	}, func(r Result) { results <- r })
	if id == "" {
		t.Fatalf("expected a job id")
	}

	select {
	case r := <-results:
		if r.Err != nil {
			t.Fatalf("job error: %v", r.Err)
		}
		if r.Value.(int) != 42 {
			t.Fatalf("value = %v, want 42", r.Value)
		}
		if r.JobID != id {
			t.Fatalf("job id mismatch: %s vs %s", r.JobID, id)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for job result")
	}
}

func TestPoolReportsJobErrors(t *testing.T) {
	p := NewPool(1, quietLogger())
	p.Start(context.Background())
	defer p.Stop()

	wantErr := errors.New("fetch failed")
	results := make(chan Result, 1)
	p.Submit(func(ctx context.Context) (any, error) {
		return nil, wantErr
	}, func(r Result) { results <- r })

	select {
	case r := <-results:
		if !errors.Is(r.Err, wantErr) {
			t.Fatalf("err = %v, want %v", r.Err, wantErr)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out")
	}
}

func TestPoolRecoversFromPanics(t *testing.T) {
	p := NewPool(1, quietLogger())
	p.Start(context.Background())
	defer p.Stop()

	results := make(chan Result, 1)
	p.Submit(func(ctx context.Context) (any, error) {
		panic("boom")
	}, func(r Result) { results <- r })

	select {
	case r := <-results:
		if r.Err == nil {
			t.Fatalf("expected an error from a panicking job")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out")
	}

	// the worker must survive the panic
	done := make(chan Result, 1)
	p.Submit(func(ctx context.Context) (any, error) { return "ok", nil },
		func(r Result) { done <- r })
	select {
	case r := <-done:
		if r.Err != nil {
			t.Fatalf("follow-up job failed: %v", r.Err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("worker did not survive panic")
	}
}

func TestPoolBoundsConcurrency(t *testing.T) {
	p := NewPool(2, quietLogger())
	p.Start(context.Background())
	defer p.Stop()

	var mu sync.Mutex
	running, peak := 0, 0
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		p.Submit(func(ctx context.Context) (any, error) {
			mu.Lock()
			running++
			if running > peak {
				peak = running
			}
			mu.Unlock()
			time.Sleep(20 * time.Millisecond)
			mu.Lock()
			running--
			mu.Unlock()
			return nil, nil
		}, func(Result) { wg.Done() })
	}
	wg.Wait()

	if peak > 2 {
		t.Fatalf("peak concurrency = %d, want <= 2", peak)
	}
}

func TestSubmitAfterStopIsDropped(t *testing.T) {
	p := NewPool(1, quietLogger())
	p.Start(context.Background())
	p.Stop()

	if id := p.Submit(func(ctx context.Context) (any, error) { return nil, nil }, nil); id != "" {
		t.Fatalf("expected empty id after stop, got %s", id)
	}
}
