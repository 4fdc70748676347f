package core

import (
	"context"
	"sync"
)

// ExecutionContext binds a dedicated goroutine to a RunLoop.
// It guarantees that all work submitted to it runs on the same goroutine, in
// enqueue order, one item at a time (Thread Affinity).
//
// Use cases:
// 1. Funnelling all access to shared state through one goroutine instead of locks
// 2. Blocking calls that must not stall a timed context
// 3. Simulating Main Thread / UI Thread behavior
type ExecutionContext struct {
	loop *RunLoop

	stopped  chan struct{}
	stopOnce sync.Once
}

// NewExecutionContext creates and starts a new ExecutionContext with default handlers.
func NewExecutionContext() *ExecutionContext {
	return NewExecutionContextWithConfig(DefaultContextConfig())
}

// NewExecutionContextWithConfig creates and starts a new ExecutionContext.
// It immediately spawns the dedicated goroutine.
func NewExecutionContextWithConfig(cfg *ContextConfig) *ExecutionContext {
	resolved := cfg.withDefaults("execution_context")
	ec := &ExecutionContext{
		loop:    NewRunLoopWithConfig(&resolved),
		stopped: make(chan struct{}),
	}

	go ec.runLoop()

	return ec
}

// runLoop occupies the dedicated goroutine until the loop is aborted.
func (ec *ExecutionContext) runLoop() {
	defer close(ec.stopped)
	ec.loop.cfg.Logger.Debug("execution context started", F("context", ec.loop.Name()))
	_ = ec.loop.Run(context.Background())
	ec.loop.cfg.Logger.Debug("execution context stopped", F("context", ec.loop.Name()))
}

// Name returns the name of the context
func (ec *ExecutionContext) Name() string { return ec.loop.Name() }

// Scheduler returns the handle naming this context.
func (ec *ExecutionContext) Scheduler() Scheduler { return ec.loop.Scheduler() }

// Schedule returns a sender that completes on this context's goroutine.
func (ec *ExecutionContext) Schedule() Sender[struct{}] { return ec.Scheduler().Schedule() }

// Enqueue submits a work item. It is safe to call from any goroutine.
// After shutdown the item is rejected and ErrContextClosed returned.
func (ec *ExecutionContext) Enqueue(item WorkItem) error {
	return ec.loop.Enqueue(item)
}

// PostTask submits a closure for execution
func (ec *ExecutionContext) PostTask(task WorkFunc) error {
	return ec.loop.Enqueue(WorkItem{Run: task})
}

// Shutdown stops the context without waiting for its goroutine.
// Unlike Stop(), this method may be called from work running on the context.
//
// After calling Shutdown():
// - New work is rejected
// - The item currently running completes
// - Items still queued are discarded (their operations complete as stopped)
func (ec *ExecutionContext) Shutdown() {
	ec.loop.Abort()
}

// Stop shuts the context down and blocks until its goroutine has exited.
// It must not be called from work running on this context; use Shutdown there.
func (ec *ExecutionContext) Stop() {
	ec.stopOnce.Do(func() {
		ec.loop.Abort()
		<-ec.stopped
	})
}

// Done is closed once the context goroutine has exited.
func (ec *ExecutionContext) Done() <-chan struct{} { return ec.stopped }

// IsClosed returns true if the context no longer accepts work
func (ec *ExecutionContext) IsClosed() bool { return ec.loop.IsClosed() }

// WaitIdle blocks until all currently queued items have completed execution.
// This is implemented by posting a barrier item and waiting for it to execute.
//
// Returns error if:
// - Context is cancelled or deadline exceeded
// - The execution context is closed
//
// Note: Items posted after WaitIdle is called are not waited for.
func (ec *ExecutionContext) WaitIdle(ctx context.Context) error {
	done := make(chan struct{})

	if err := ec.PostTask(func(context.Context) { close(done) }); err != nil {
		return err
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns a snapshot of the context state.
func (ec *ExecutionContext) Stats() ContextStats {
	st := ec.loop.Stats()
	st.Type = "execution_context"
	return st
}
