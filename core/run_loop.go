package core

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

// RunLoop is a FIFO of work items pumped by whichever goroutine calls Run.
//
// It is the engine behind ExecutionContext (which dedicates a goroutine to
// Run) and SyncWait (which pumps a private loop on the calling goroutine).
// Items execute strictly in enqueue order, one at a time.
type RunLoop struct {
	cfg   ContextConfig
	queue *WorkQueue
	wake  chan struct{}

	// mu guards the lifecycle flags; Enqueue checks closed and pushes under
	// it so that no item can be stranded after the loop exits.
	mu        sync.Mutex
	finishing bool
	aborted   bool
	closed    bool

	running  atomic.Bool
	active   atomic.Int32
	executed atomic.Int64
	rejected atomic.Int64
}

// NewRunLoop creates a loop with default handlers.
func NewRunLoop(name string) *RunLoop {
	return NewRunLoopWithConfig(&ContextConfig{Name: name})
}

// NewRunLoopWithConfig creates a loop; nil config fields fall back to defaults.
func NewRunLoopWithConfig(cfg *ContextConfig) *RunLoop {
	return &RunLoop{
		cfg:   cfg.withDefaults("run_loop"),
		queue: NewWorkQueue(),
		wake:  make(chan struct{}, 1),
	}
}

// Name returns the loop name.
func (l *RunLoop) Name() string { return l.cfg.Name }

// Scheduler returns the handle naming this loop.
func (l *RunLoop) Scheduler() Scheduler { return loopScheduler{loop: l} }

// Enqueue appends item to the FIFO. It is safe to call from any goroutine,
// including the one running the loop. After the loop has closed the item is
// rejected: the rejection is reported and ErrContextClosed returned.
func (l *RunLoop) Enqueue(item WorkItem) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		l.rejected.Add(1)
		l.cfg.RejectedTaskHandler.HandleRejectedTask(l.cfg.Name, "closed")
		l.cfg.Metrics.RecordTaskRejected(l.cfg.Name, "closed")
		return fmt.Errorf("enqueue on %q: %w", l.cfg.Name, ErrContextClosed)
	}
	depth := l.queue.Push(item)
	l.mu.Unlock()

	l.cfg.Metrics.RecordQueueDepth(l.cfg.Name, depth)
	l.signal()
	return nil
}

// Finish makes Run return once every queued item has executed. Items may
// still be enqueued until the loop has drained.
func (l *RunLoop) Finish() {
	l.mu.Lock()
	l.finishing = true
	l.mu.Unlock()
	l.signal()
}

// Abort closes the loop immediately: new items are rejected, the item
// currently running completes, and everything still queued is discarded.
func (l *RunLoop) Abort() {
	l.mu.Lock()
	l.aborted = true
	l.closed = true
	l.mu.Unlock()
	l.signal()
}

// IsClosed reports whether the loop refuses new items.
func (l *RunLoop) IsClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

// Run pumps the loop on the calling goroutine until Finish or Abort.
func (l *RunLoop) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return ErrLoopAlreadyRunning
	}
	defer l.running.Store(false)

	runCtx := WithScheduler(ctx, l.Scheduler())
	for {
		item, ok := l.next(runCtx)
		if !ok {
			return nil
		}
		l.execute(runCtx, item)
	}
}

func (l *RunLoop) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// next blocks until an item is runnable or the loop is done.
func (l *RunLoop) next(ctx context.Context) (WorkItem, bool) {
	for {
		l.mu.Lock()
		if l.aborted {
			l.closed = true
			leftovers := l.queue.PopAll()
			l.mu.Unlock()
			l.discard(ctx, leftovers)
			return WorkItem{}, false
		}
		if item, ok := l.queue.Pop(); ok {
			l.mu.Unlock()
			return item, true
		}
		if l.finishing {
			l.closed = true
			l.mu.Unlock()
			return WorkItem{}, false
		}
		l.mu.Unlock()

		<-l.wake
	}
}

func (l *RunLoop) execute(ctx context.Context, item WorkItem) {
	l.active.Add(1)
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			l.cfg.PanicHandler.HandlePanic(ctx, l.cfg.Name, rec, debug.Stack())
			l.cfg.Metrics.RecordTaskPanic(l.cfg.Name, rec)
		}
		l.cfg.Metrics.RecordTaskDuration(l.cfg.Name, time.Since(start))
		l.executed.Add(1)
		l.active.Add(-1)
	}()
	item.Run(ctx)
}

func (l *RunLoop) discard(ctx context.Context, items []WorkItem) {
	if len(items) > 0 {
		l.cfg.Logger.Debug("discarding queued work", F("context", l.cfg.Name), F("count", len(items)))
	}
	for _, item := range items {
		if item.Discard == nil {
			continue
		}
		l.execute(ctx, WorkItem{Run: item.Discard})
	}
}

// Stats returns a snapshot of the loop state.
func (l *RunLoop) Stats() ContextStats {
	return ContextStats{
		Name:     l.cfg.Name,
		Type:     "run_loop",
		Pending:  l.queue.Len(),
		Running:  int(l.active.Load()),
		Executed: l.executed.Load(),
		Rejected: l.rejected.Load(),
		Closed:   l.IsClosed(),
	}
}
