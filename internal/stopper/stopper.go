// Package stopper provides the goroutine-lifecycle idiom used
// throughout this runtime, adapted from cdc-sink-style codebases'
// stopper.Context (see stdpool's ctx.Go / ctx.Stopping usage when
// tearing down a database connection). A Context bundles a
// cancellation signal with an errgroup so that every background loop
// started from it is waited on, and its failure is observable by the
// owner.
package stopper

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// Context decorates a context.Context with cooperative shutdown: Go
// starts supervised goroutines, Stopping reports when shutdown has
// begun (while in-flight work may still complete), and Stop cancels
// and waits with a grace period.
type Context struct {
	context.Context
	cancel   context.CancelFunc
	group    *errgroup.Group
	stopping chan struct{}
}

// WithContext derives a stopper Context from a parent context.
func WithContext(parent context.Context) *Context {
	ctx, cancel := context.WithCancel(parent)
	group, gctx := errgroup.WithContext(ctx)
	return &Context{
		Context:  gctx,
		cancel:   cancel,
		group:    group,
		stopping: make(chan struct{}),
	}
}

// Go runs fn on a new goroutine tracked by the Context's errgroup. The
// first non-nil error returned by any such goroutine cancels the
// Context.
func (c *Context) Go(fn func() error) {
	c.group.Go(fn)
}

// Stopping returns a channel that is closed once Stop has been called,
// letting background loops begin a clean exit instead of waiting for
// full cancellation.
func (c *Context) Stopping() <-chan struct{} {
	return c.stopping
}

// Stop signals shutdown, then waits up to grace for all goroutines
// started with Go to return before canceling them outright.
func (c *Context) Stop(grace time.Duration) error {
	select {
	case <-c.stopping:
		// already stopping
	default:
		close(c.stopping)
	}

	done := make(chan error, 1)
	go func() { done <- c.group.Wait() }()

	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case err := <-done:
		c.cancel()
		return err
	case <-timer.C:
		c.cancel()
		return <-done
	}
}
