// Package worker runs background jobs on a bounded goroutine pool so slow
// work (rate fetches, report generation) never blocks checkout. Results
// are delivered through per-job callbacks.
package worker

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"tezgahpos/internal/xid"
)

// Result is delivered to the submitting callback when a job finishes.
type Result struct {
	JobID string
	Value any
	Err   error
}

// Job is the unit of background work. It must honor ctx cancellation.
type Job func(ctx context.Context) (any, error)

type task struct {
	id       string
	job      Job
	callback func(Result)
}

type Pool struct {
	size   int
	logger *logrus.Logger

	mu      sync.Mutex
	tasks   chan task
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
	stopped bool
}

func NewPool(size int, logger *logrus.Logger) *Pool {
	if size <= 0 {
		size = 2
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Pool{size: size, logger: logger}
}

// Start launches the workers. Jobs submitted before Start queue up.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true
	if p.tasks == nil {
		p.tasks = make(chan task, 64)
	}
	ctx, p.cancel = context.WithCancel(ctx)
	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		go p.run(ctx)
	}
}

func (p *Pool) run(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case t, ok := <-p.tasks:
			if !ok {
				return
			}
			p.execute(ctx, t)
		}
	}
}

func (p *Pool) execute(ctx context.Context, t task) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.WithField("job_id", t.id).Errorf("job panicked: %v", r)
			if t.callback != nil {
				t.callback(Result{JobID: t.id, Err: fmt.Errorf("job panicked: %v", r)})
			}
		}
	}()

	value, err := t.job(ctx)
	if err != nil {
		p.logger.WithField("job_id", t.id).WithError(err).Warn("job failed")
	}
	if t.callback != nil {
		t.callback(Result{JobID: t.id, Value: value, Err: err})
	}
}

// Submit queues a job and returns its id. callback may be nil. Submitting
// after Stop returns an empty id and drops the job.
func (p *Pool) Submit(job Job, callback func(Result)) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return ""
	}
	if p.tasks == nil {
		p.tasks = make(chan task, 64)
	}
	id := xid.New("job")
	select {
	case p.tasks <- task{id: id, job: job, callback: callback}:
		return id
	default:
		p.logger.WithField("job_id", id).Warn("job queue full, dropping job")
		return ""
	}
}

// Stop drains nothing: queued jobs not yet started are abandoned, running
// jobs see their context cancelled. Blocks until workers exit.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	cancel := p.cancel
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	p.wg.Wait()
}
