package statemachine

import (
	"github.com/arekkw/atomix/internal/stopper"
)

// Executor drives every state-machine callback on a single logical
// thread, so that two callbacks for the same state machine never run
// concurrently — spec §5's "single-threaded cooperative scheduler".
// Work arrives from more than one goroutine in practice (log entries
// from the consensus layer, queries that bypass the log entirely from
// an RPC handler), which is exactly why this serialization point
// exists, mirroring the teacher's pattern of funneling updates onto a
// single owned loop (see resolver.go's readInto select loop).
type Executor struct {
	tasks chan task
	stop  *stopper.Context
}

type task struct {
	fn   func()
	done chan struct{}
}

// NewExecutor starts the executor's worker loop on stop, and stops
// accepting new work once stop begins shutting down. queueDepth sizes
// the task channel; callers that pass a non-positive value get the
// default of 256.
func NewExecutor(stop *stopper.Context, queueDepth int) *Executor {
	if queueDepth <= 0 {
		queueDepth = 256
	}
	e := &Executor{tasks: make(chan task, queueDepth), stop: stop}
	stop.Go(func() error {
		for {
			select {
			case t := <-e.tasks:
				t.fn()
				if t.done != nil {
					close(t.done)
				}
			case <-stop.Stopping():
				return nil
			}
		}
	})
	return e
}

// Execute runs fn on the executor's thread and blocks until it
// completes, or until the executor is stopped first.
func (e *Executor) Execute(fn func()) {
	done := make(chan struct{})
	select {
	case e.tasks <- task{fn: fn, done: done}:
	case <-e.stop.Stopping():
		return
	}
	select {
	case <-done:
	case <-e.stop.Stopping():
	}
}

// Post enqueues fn to run on the executor's thread without waiting for
// it to complete. Used when the caller already has its own way of
// learning the result (e.g. a result channel written inside fn).
func (e *Executor) Post(fn func()) {
	select {
	case e.tasks <- task{fn: fn}:
	case <-e.stop.Stopping():
	}
}
