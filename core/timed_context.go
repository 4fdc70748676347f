package core

import (
	"container/heap"
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

// timerEntry is one pending delayed release.
type timerEntry struct {
	deadline time.Time
	seq      uint64
	index    int // heap position, -1 when not in the heap

	fire    func()
	discard func()
}

// timerHeap implements heap.Interface ordered by deadline, ties by insertion order.
type timerHeap []*timerEntry

func (h timerHeap) Len() int { return len(h) }
func (h timerHeap) Less(i, j int) bool {
	if h[i].deadline.Equal(h[j].deadline) {
		return h[i].seq < h[j].seq
	}
	return h[i].deadline.Before(h[j].deadline)
}
func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	item := x.(*timerEntry)
	item.index = len(*h)
	*h = append(*h, item)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil // avoid memory leak
	item.index = -1
	*h = old[0 : n-1]
	return item
}

func (h timerHeap) Peek() *timerEntry {
	if len(h) == 0 {
		return nil
	}
	return h[0]
}

// TimedContext owns a goroutine and a deadline-ordered heap of delayed work.
// Every entry is released no earlier than its deadline, in deadline order,
// either on the timer goroutine or on a designated target scheduler.
type TimedContext struct {
	cfg ContextConfig

	mu      sync.Mutex
	pq      timerHeap
	nextSeq uint64
	closed  bool

	wakeup  chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc
	stopped chan struct{}

	fired     atomic.Int64
	cancelled atomic.Int64
	rejected  atomic.Int64
}

// NewTimedContext creates and starts a TimedContext with default handlers.
func NewTimedContext() *TimedContext {
	return NewTimedContextWithConfig(DefaultContextConfig())
}

// NewTimedContextWithConfig creates and starts a TimedContext.
func NewTimedContextWithConfig(cfg *ContextConfig) *TimedContext {
	ctx, cancel := context.WithCancel(context.Background())
	tc := &TimedContext{
		cfg:     cfg.withDefaults("timed_context"),
		pq:      make(timerHeap, 0),
		wakeup:  make(chan struct{}, 1),
		ctx:     ctx,
		cancel:  cancel,
		stopped: make(chan struct{}),
	}
	heap.Init(&tc.pq)
	go tc.loop()
	return tc
}

// Name returns the name of the context
func (tc *TimedContext) Name() string { return tc.cfg.Name }

// Scheduler returns the handle naming this context.
func (tc *TimedContext) Scheduler() TimedScheduler { return timedScheduler{tc: tc} }

// add inserts e, waking the timer goroutine if e became the earliest entry.
func (tc *TimedContext) add(e *timerEntry) error {
	tc.mu.Lock()
	if tc.closed {
		tc.mu.Unlock()
		tc.rejected.Add(1)
		tc.cfg.RejectedTaskHandler.HandleRejectedTask(tc.cfg.Name, "closed")
		tc.cfg.Metrics.RecordTaskRejected(tc.cfg.Name, "closed")
		return fmt.Errorf("schedule on %q: %w", tc.cfg.Name, ErrContextClosed)
	}
	e.seq = tc.nextSeq
	tc.nextSeq++
	heap.Push(&tc.pq, e)
	earliest := e.index == 0
	depth := len(tc.pq)
	tc.mu.Unlock()

	tc.cfg.Metrics.RecordQueueDepth(tc.cfg.Name, depth)
	if earliest {
		select {
		case tc.wakeup <- struct{}{}:
		default:
		}
	}
	return nil
}

// remove takes e out of the heap. It reports false when e is not pending,
// i.e. it already fired: firing wins over a concurrent cancellation.
func (tc *TimedContext) remove(e *timerEntry) bool {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	if e.index < 0 {
		return false
	}
	heap.Remove(&tc.pq, e.index)
	return true
}

func (tc *TimedContext) loop() {
	defer close(tc.stopped)

	timer := time.NewTimer(time.Hour)
	timer.Stop()

	for {
		// Calculate next run time
		nextRun, pending := tc.calculateNextRun()
		if !pending {
			// No entries, wait indefinitely
			nextRun = 1000 * time.Hour
		}

		timer.Reset(nextRun)

		select {
		case <-tc.ctx.Done():
			timer.Stop()
			tc.discardAll()
			return
		case <-timer.C:
			tc.processExpired()
		case <-tc.wakeup:
			// New earliest entry, need to recalculate
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		}
	}
}

// calculateNextRun determines how long to wait until the next deadline.
func (tc *TimedContext) calculateNextRun() (time.Duration, bool) {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	item := tc.pq.Peek()
	if item == nil {
		return 0, false
	}
	d := time.Until(item.deadline)
	if d < 0 {
		d = 0
	}
	return d, true
}

// processExpired pops every entry whose deadline has passed and releases
// them in deadline order on the timer goroutine.
func (tc *TimedContext) processExpired() {
	tc.mu.Lock()

	now := time.Now()
	var expired []*timerEntry
	for tc.pq.Len() > 0 {
		item := tc.pq.Peek()
		if item.deadline.After(now) {
			break
		}
		heap.Pop(&tc.pq)
		expired = append(expired, item)
	}

	tc.mu.Unlock()

	for _, item := range expired {
		tc.fired.Add(1)
		tc.cfg.Metrics.RecordTimerFired(tc.cfg.Name, now.Sub(item.deadline))
		tc.run(item.fire)
	}
}

func (tc *TimedContext) run(fn func()) {
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			tc.cfg.PanicHandler.HandlePanic(WithScheduler(tc.ctx, tc.Scheduler()), tc.cfg.Name, rec, debug.Stack())
			tc.cfg.Metrics.RecordTaskPanic(tc.cfg.Name, rec)
		}
		tc.cfg.Metrics.RecordTaskDuration(tc.cfg.Name, time.Since(start))
	}()
	fn()
}

func (tc *TimedContext) discardAll() {
	tc.mu.Lock()
	tc.closed = true
	pending := make([]*timerEntry, 0, len(tc.pq))
	for tc.pq.Len() > 0 {
		pending = append(pending, heap.Pop(&tc.pq).(*timerEntry))
	}
	tc.mu.Unlock()

	if len(pending) > 0 {
		tc.cfg.Logger.Debug("discarding pending timers", F("context", tc.cfg.Name), F("count", len(pending)))
	}
	for _, e := range pending {
		if e.discard != nil {
			tc.run(e.discard)
		}
	}
}

// PostDelayedTask runs task on the timer goroutine once delay has elapsed.
func (tc *TimedContext) PostDelayedTask(task WorkFunc, delay time.Duration) error {
	runCtx := WithScheduler(tc.ctx, tc.Scheduler())
	return tc.add(&timerEntry{
		deadline: time.Now().Add(delay),
		index:    -1,
		fire:     func() { task(runCtx) },
	})
}

// Stop stops the timer goroutine, completes every pending entry as stopped
// and waits for the goroutine to exit.
func (tc *TimedContext) Stop() {
	tc.mu.Lock()
	tc.closed = true
	tc.mu.Unlock()
	tc.cancel()
	<-tc.stopped
}

// IsClosed returns true if the context no longer accepts entries
func (tc *TimedContext) IsClosed() bool {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.closed
}

// TaskCount returns the number of pending entries.
func (tc *TimedContext) TaskCount() int {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return len(tc.pq)
}

// Stats returns a snapshot of the context state.
func (tc *TimedContext) Stats() TimerStats {
	return TimerStats{
		Name:      tc.cfg.Name,
		Pending:   tc.TaskCount(),
		Fired:     tc.fired.Load(),
		Cancelled: tc.cancelled.Load(),
		Rejected:  tc.rejected.Load(),
		Closed:    tc.IsClosed(),
	}
}

// =============================================================================
// Timed scheduler handle
// =============================================================================

type timedScheduler struct {
	tc *TimedContext
}

func (s timedScheduler) Name() string { return s.tc.Name() }

// Schedule completes on the timer goroutine as soon as possible.
func (s timedScheduler) Schedule() Sender[struct{}] {
	return s.at(nil, func() time.Time { return time.Now() })
}

func (s timedScheduler) ScheduleAfter(d time.Duration) Sender[struct{}] {
	return s.at(nil, func() time.Time { return time.Now().Add(d) })
}

func (s timedScheduler) ScheduleAt(t time.Time) Sender[struct{}] {
	return s.at(nil, func() time.Time { return t })
}

func (s timedScheduler) ScheduleAfterOn(target Scheduler, d time.Duration) Sender[struct{}] {
	return s.at(target, func() time.Time { return time.Now().Add(d) })
}

// at builds the delayed operation. The deadline is computed when the
// operation starts, not when the sender is built.
func (s timedScheduler) at(target Scheduler, deadline func() time.Time) Sender[struct{}] {
	return SenderFunc[struct{}](func(r Receiver[struct{}]) Operation {
		r = Once("schedule_after", r)
		return NewOperation("schedule_after", func(ctx context.Context) {
			s.start(ctx, r, target, deadline())
		})
	})
}

func (s timedScheduler) start(ctx context.Context, r Receiver[struct{}], target Scheduler, deadline time.Time) {
	if ctx.Err() != nil {
		r.SetStopped(ctx)
		return
	}

	tc := s.tc
	onTimer := WithScheduler(ctx, s)
	e := &timerEntry{deadline: deadline, index: -1}

	// Registered before the entry is visible to the timer goroutine, so
	// fire and discard always observe stopWatch. The callback runs on its
	// own goroutine, which is no context's.
	stopWatch := context.AfterFunc(ctx, func() {
		if tc.remove(e) {
			tc.cancelled.Add(1)
			tc.cfg.Metrics.RecordTimerCancelled(tc.cfg.Name)
			r.SetStopped(detach(ctx))
		}
	})

	e.fire = func() {
		stopWatch()
		if target == nil {
			r.SetValue(onTimer, struct{}{})
			return
		}
		target.Schedule().Connect(ReceiverFuncs[struct{}]{
			Value:   r.SetValue,
			Error:   r.SetError,
			Stopped: r.SetStopped,
		}).Start(onTimer)
	}
	e.discard = func() {
		stopWatch()
		r.SetStopped(onTimer)
	}

	if err := tc.add(e); err != nil {
		stopWatch()
		r.SetError(ctx, err)
		return
	}

	// The stop callback may have run before the entry was in the heap.
	if ctx.Err() != nil && tc.remove(e) {
		stopWatch()
		tc.cancelled.Add(1)
		tc.cfg.Metrics.RecordTimerCancelled(tc.cfg.Name)
		r.SetStopped(ctx)
	}
}
