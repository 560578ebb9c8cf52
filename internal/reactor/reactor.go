// Package reactor drives the two bidirectional streaming RPCs
// (InsertStream, SampleStream) against the rest of the service. It plays
// the role the spec's C++ source gives to grpc::ServerBidiReactor: a
// single-reader/single-writer state machine multiplexing stream reads,
// stream writes, and asynchronous table-completion callbacks. Go's
// streaming handlers already run on their own goroutine and call Recv in
// a blocking loop, so the single-reader invariant falls out for free;
// what the skeleton here still has to provide is the single in-flight
// write, the bounded outbound queue, and a way for a completion callback
// arriving from the table's callback executor (a different goroutine) to
// safely touch reactor state after the reactor may already be torn down.
package reactor

import "sync"

// writer pumps a bounded FIFO of prepared responses onto a stream one at a
// time, mirroring MaybeSendNextResponse/OnWriteDone's single-writer
// discipline. Callers access q/sending directly (package-internal) under
// mu to implement their own admission and back-pressure policy; writer
// itself only owns the pump loop.
type writer[T any] struct {
	mu      sync.Mutex
	cond    *sync.Cond
	q       []T
	sending bool

	send     func(T) error
	finished bool
	err      error
	done     chan struct{}

	// onDrain, if set, runs after each successful send, outside the lock.
	// SampleReactor uses this to re-arm sampling once a write drains the
	// queue below the outward back-pressure cap (spec §5: "writes
	// draining re-arm sampling").
	onDrain func()
}

func newWriter[T any](send func(T) error) *writer[T] {
	w := &writer[T]{send: send, done: make(chan struct{})}
	w.cond = sync.NewCond(&w.mu)
	return w
}

func (w *writer[T]) start() { go w.loop() }

func (w *writer[T]) loop() {
	defer close(w.done)
	for {
		w.mu.Lock()
		for len(w.q) == 0 && !w.finished {
			w.cond.Wait()
		}
		if len(w.q) == 0 {
			w.mu.Unlock()
			return
		}
		item := w.q[0]
		w.sending = true
		w.mu.Unlock()

		err := w.send(item)

		w.mu.Lock()
		w.sending = false
		w.q = w.q[1:]
		if err != nil && !w.finished {
			w.finished = true
			w.err = err
		}
		w.mu.Unlock()

		if err == nil && w.onDrain != nil {
			w.onDrain()
		}
	}
}

// finish stops the pump after it drains whatever is already queued.
// Callers append to q directly without checking finished; a response
// appended after the pump has exited is never sent.
func (w *writer[T]) finish(err error) {
	w.mu.Lock()
	if !w.finished {
		w.finished = true
		if err != nil {
			w.err = err
		}
	}
	w.cond.Broadcast()
	w.mu.Unlock()
}

func (w *writer[T]) wait() error {
	<-w.done
	return w.err
}

// callbackGate lets a reactor accept asynchronous completion callbacks
// from the table's callback executor while guaranteeing that once close
// returns, no later-arriving callback can touch reactor state — the
// "explicit counter" drain primitive the design notes offer as an
// alternative to a weak-pointer upgrade loop. A callback that has already
// passed enter is allowed to finish; close waits for it.
type callbackGate struct {
	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// enter must be called before a guarded callback touches reactor state.
// If it returns false, the callback must do nothing else.
func (g *callbackGate) enter() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return false
	}
	g.wg.Add(1)
	return true
}

func (g *callbackGate) leave() { g.wg.Done() }

// close blocks until every callback that already entered has left, and
// causes every future enter to fail.
func (g *callbackGate) close() {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()
	g.wg.Wait()
}
