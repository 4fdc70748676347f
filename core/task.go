package core

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
)

// TaskState is the coarse lifecycle state of a Task.
type TaskState int32

const (
	TaskNotStarted TaskState = iota
	TaskRunning
	TaskSuspended
	TaskCompleted
)

func (s TaskState) String() string {
	switch s {
	case TaskNotStarted:
		return "not_started"
	case TaskRunning:
		return "running"
	case TaskSuspended:
		return "suspended"
	case TaskCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// Task is a suspendable unit of asynchronous computation.
//
// The body runs on its own goroutine, but in lock-step with whichever
// context resumed it: while the body runs, the resuming goroutine is parked,
// and while the body is suspended in Await, the body is parked. The body
// therefore behaves as if it ran on the context that completed the awaited
// operation, and may migrate between contexts at every Await. Anything
// assumed to be bound to one goroutine or context (a lock held across Await,
// see AffineMutex) is a bug in the body, not in the runtime.
//
// A Task is a single-owner sender: it may be connected and started once.
type Task[T any] struct {
	name string
	body func(co *Co) (T, error)

	connected atomic.Bool
	started   atomic.Bool
	state     atomic.Int32

	stopMu        sync.Mutex
	stopRequested bool
	cancel        context.CancelFunc
}

// NewTask creates a Task that runs body when started.
//
// A Task that becomes unreachable without ever being connected to a receiver
// is reported as MisuseTaskDropped: its frame could not be finalized by
// anything else.
func NewTask[T any](body func(co *Co) (T, error)) *Task[T] {
	return NewNamedTask("task", body)
}

// NewNamedTask is NewTask with a name used in misuse reports.
func NewNamedTask[T any](name string, body func(co *Co) (T, error)) *Task[T] {
	t := &Task[T]{name: name, body: body}
	runtime.SetFinalizer(t, func(t *Task[T]) {
		if !t.connected.Load() {
			reportMisuse(MisuseTaskDropped, t.name)
		}
	})
	return t
}

// Go wraps fn as a Task whose body calls fn once with the body's context.
func Go[T any](fn func(ctx context.Context) (T, error)) *Task[T] {
	return NewNamedTask("go", func(co *Co) (T, error) { return fn(co.Context()) })
}

// State returns the current lifecycle state.
func (t *Task[T]) State() TaskState { return TaskState(t.state.Load()) }

// RequestStop asks the task to stop: its next await point completes as
// stopped. Requesting stop before the task starts makes its first await stop.
func (t *Task[T]) RequestStop() {
	t.stopMu.Lock()
	t.stopRequested = true
	cancel := t.cancel
	t.stopMu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Connect binds the task to r. Connecting a task twice is a misuse.
func (t *Task[T]) Connect(r Receiver[T]) Operation {
	if !t.connected.CompareAndSwap(false, true) {
		reportMisuse(MisuseTaskReused, t.name)
		return NewOperation(t.name, func(ctx context.Context) {
			r.SetError(ctx, fmt.Errorf("task %q: %w", t.name, errTaskReused))
		})
	}
	return &taskOperation[T]{task: t, r: Once(t.name, r)}
}

var errTaskReused = errors.New("task already connected")

// =============================================================================
// Task frame
// =============================================================================

// resumeMsg hands control to the body, reporting the context it now runs on.
type resumeMsg struct {
	ctx  context.Context
	back chan suspension
}

// suspension hands control back to the resumer: either an operation to start
// on the resumer's goroutine, or the news that the body has returned.
type suspension struct {
	op   Operation
	ctx  context.Context
	done bool
}

type taskOperation[T any] struct {
	task *Task[T]
	r    Receiver[T]
	co   *Co

	startCtx context.Context
	cancel   context.CancelFunc
	frame    atomic.Pointer[startFrame]

	value T
	err   error
}

func (op *taskOperation[T]) Start(ctx context.Context) {
	t := op.task
	if !t.started.CompareAndSwap(false, true) {
		reportMisuse(MisuseDoubleStart, t.name)
		return
	}

	taskCtx, cancel := context.WithCancel(ctx)
	op.startCtx = ctx
	op.cancel = cancel

	t.stopMu.Lock()
	t.cancel = cancel
	if t.stopRequested {
		cancel()
	}
	t.stopMu.Unlock()

	op.co = &Co{
		base:   taskCtx,
		ctx:    taskCtx,
		resume: make(chan resumeMsg),
		wake:   op.wake,
		state:  &t.state,
	}

	t.state.Store(int32(TaskRunning))
	go op.run()
	op.resumeAndWait(ctx)
}

// run is the body goroutine.
func (op *taskOperation[T]) run() {
	co := op.co
	msg := <-co.resume
	co.ctx = rebase(co.base, msg.ctx)
	co.back = msg.back

	op.value, op.err = callRecover(func() (T, error) { return op.task.body(co) })

	op.task.state.Store(int32(TaskCompleted))
	co.back <- suspension{done: true}
}

// startFrame tracks one awaited operation while the resumer is inside its
// Start, so a completion that arrives before Start returns is looped over
// instead of nesting another resume on the same stack.
type startFrame struct {
	state atomic.Int32
	ctx   context.Context
}

const (
	frameStarting int32 = iota
	frameCompleted
	frameSuspended
)

// resumeAndWait lends the calling goroutine to the body until the body
// suspends or returns. A suspension's operation is started here, so the
// awaited work begins on the context the body was running on. When the body
// returned, the completion is delivered here, on the goroutine of the
// context that resumed it last.
func (op *taskOperation[T]) resumeAndWait(ctx context.Context) {
	for {
		back := make(chan suspension, 1)
		op.co.resume <- resumeMsg{ctx: ctx, back: back}
		s := <-back

		if s.done {
			op.complete()
			return
		}

		f := &startFrame{}
		op.frame.Store(f)
		s.op.Start(s.ctx)
		if f.state.CompareAndSwap(frameStarting, frameSuspended) {
			return
		}

		// Completed before Start returned. On the same context that is an
		// inline completion; from another context the body must resume there.
		next := f.ctx
		if target := CurrentScheduler(next); target != nil && target != CurrentScheduler(ctx) {
			op.redispatch(next, target)
			return
		}
		ctx = next
	}
}

// wake resumes the body after the awaited operation completed on ctx.
func (op *taskOperation[T]) wake(ctx context.Context) {
	if f := op.frame.Load(); f != nil && f.state.Load() == frameStarting {
		f.ctx = ctx
		if f.state.CompareAndSwap(frameStarting, frameCompleted) {
			return
		}
	}
	op.resumeAndWait(ctx)
}

// redispatch resumes the body on target's goroutine. If target can no longer
// run work, the body resumes detached on a fresh goroutine.
func (op *taskOperation[T]) redispatch(ctx context.Context, target Scheduler) {
	target.Schedule().Connect(ReceiverFuncs[struct{}]{
		Value:   func(c context.Context, _ struct{}) { op.resumeAndWait(rebase(ctx, c)) },
		Error:   func(context.Context, error) { go op.resumeAndWait(detach(ctx)) },
		Stopped: func(context.Context) { go op.resumeAndWait(detach(ctx)) },
	}).Start(context.WithoutCancel(ctx))
}

func (op *taskOperation[T]) complete() {
	doneCtx := rebase(op.startCtx, op.co.ctx)
	v, err, stopped := op.value, op.err, op.co.stopSeen
	op.cancel()

	switch {
	case err != nil && IsStopped(err):
		op.r.SetStopped(doneCtx)
	case err != nil:
		op.r.SetError(doneCtx, err)
	case stopped:
		op.r.SetStopped(doneCtx)
	default:
		op.r.SetValue(doneCtx, v)
	}
}

// =============================================================================
// Co: the handle a task body uses to await
// =============================================================================

// Co is the coroutine handle passed to a task body. It must only be used by
// the body it was passed to.
type Co struct {
	base context.Context // the task's own stop source
	ctx  context.Context // base + the scheduler currently running the body

	resume chan resumeMsg
	back   chan suspension
	wake   func(ctx context.Context)
	state  *atomic.Int32

	stopSeen bool
}

// Context returns the body's current environment. It is cancelled when a
// stop has been requested and reports the current scheduler.
func (co *Co) Context() context.Context { return co.ctx }

// Scheduler returns the scheduler currently running the body, or nil when it
// runs on a goroutine that is not a context (a plain caller of Start, or a
// stop callback).
func (co *Co) Scheduler() Scheduler { return CurrentScheduler(co.ctx) }

// StopRequested reports whether a stop has been requested for the task.
func (co *Co) StopRequested() bool { return co.stopSeen || co.base.Err() != nil }

// awaiter is the receiver Await connects the awaited sender to. Every
// completion resumes the body on the completing goroutine.
type awaiter[T any] struct {
	co      *Co
	outcome outcome[T]
}

func (a *awaiter[T]) SetValue(ctx context.Context, v T) {
	a.outcome = outcome[T]{kind: completedValue, value: v}
	a.co.wake(ctx)
}

func (a *awaiter[T]) SetError(ctx context.Context, err error) {
	a.outcome = outcome[T]{kind: completedError, err: err}
	a.co.wake(ctx)
}

func (a *awaiter[T]) SetStopped(ctx context.Context) {
	a.outcome = outcome[T]{kind: completedStopped}
	a.co.wake(ctx)
}

// Await suspends the body until s completes and returns its result.
//
// The body resumes on the goroutine of the context that completed s. If a
// stop was requested (before s started, while it was pending, or by s
// completing stopped), Await returns ErrStopped and every later Await
// returns ErrStopped immediately; the task then completes as stopped once
// the body returns.
func Await[T any](co *Co, s Sender[T]) (T, error) {
	var zero T
	if co.StopRequested() {
		// Connected but never started: the frame owns s and finalizes it as stopped.
		s.Connect(Once[T]("await", ReceiverFuncs[T]{}))
		co.stopSeen = true
		return zero, ErrStopped
	}

	a := &awaiter[T]{co: co}
	op := s.Connect(Once[T]("await", a))

	co.state.Store(int32(TaskSuspended))
	co.back <- suspension{op: op, ctx: co.ctx}

	msg := <-co.resume
	co.back = msg.back
	co.state.Store(int32(TaskRunning))
	co.ctx = rebase(co.base, msg.ctx)

	switch a.outcome.kind {
	case completedError:
		return zero, a.outcome.err
	case completedStopped:
		co.stopSeen = true
		return zero, ErrStopped
	}
	if co.base.Err() != nil {
		co.stopSeen = true
		return zero, ErrStopped
	}
	return a.outcome.value, nil
}

// Yield reschedules the body on its current scheduler, letting queued work
// run first. It is Await(co, co.Scheduler().Schedule()) when running on a
// context, and a no-op otherwise.
func Yield(co *Co) error {
	s := co.Scheduler()
	if s == nil {
		return nil
	}
	_, err := Await(co, s.Schedule())
	return err
}
