// Package callbackexec implements the shared callback executor thread pool
// that Tables use to deliver InsertOrAssignAsync/EnqueSampleRequest
// completions off of the caller's goroutine.
package callbackexec

import (
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Pool is a bounded pool of goroutines draining a shared task queue.
// Modeled on the PairDB storage-node worker pool, trimmed to the one thing
// the replay service needs: fire-and-forget callback execution with panic
// recovery so one misbehaving Table never wedges the pool.
type Pool struct {
	logger    *zap.Logger
	onPanic   func()
	tasks     chan func()
	wg        sync.WaitGroup
	stopOnce  sync.Once
	stopCh    chan struct{}
	submitted atomic.Uint64
	completed atomic.Uint64
	panicked  atomic.Uint64
}

// New starts a Pool with numWorkers goroutines. numWorkers <= 0 defaults to
// 32, matching the spec's callback_executor_num_threads default. onPanic,
// if non-nil, is invoked (in addition to the panicked counter and the log
// line) every time a task recovers from a panic — the server wires this to
// metrics.Metrics.CallbackPanicsTotal.Inc.
func New(numWorkers int, logger *zap.Logger, onPanic func()) *Pool {
	if numWorkers <= 0 {
		numWorkers = 32
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Pool{
		logger:  logger,
		onPanic: onPanic,
		tasks:   make(chan func(), numWorkers*4),
		stopCh:  make(chan struct{}),
	}
	for i := 0; i < numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	return p
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	for {
		select {
		case <-p.stopCh:
			return
		case task := <-p.tasks:
			p.run(id, task)
		}
	}
}

func (p *Pool) run(id int, task func()) {
	defer func() {
		if r := recover(); r != nil {
			p.panicked.Add(1)
			if p.onPanic != nil {
				p.onPanic()
			}
			p.logger.Error("callback task panicked",
				zap.Int("worker_id", id),
				zap.Any("panic", r))
		}
	}()
	task()
	p.completed.Add(1)
}

// Submit enqueues fn to run on a worker goroutine. It blocks only if every
// worker is busy and the internal queue is full; it never runs fn inline.
func (p *Pool) Submit(fn func()) {
	p.submitted.Add(1)
	select {
	case <-p.stopCh:
		p.logger.Warn("callback submitted after pool stop, dropping")
	case p.tasks <- fn:
	}
}

// Stop stops the workers and waits for the tasks they are running to
// return. Tasks still waiting in the queue are not run.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopCh)
		p.wg.Wait()
	})
}

// Stats is a diagnostic snapshot of the pool's counters.
type Stats struct {
	Submitted uint64
	Completed uint64
	Panicked  uint64
}

// Stats returns a point-in-time snapshot.
func (p *Pool) Stats() Stats {
	return Stats{
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Panicked:  p.panicked.Load(),
	}
}

func (s Stats) String() string {
	return fmt.Sprintf("submitted=%d completed=%d panicked=%d", s.Submitted, s.Completed, s.Panicked)
}
