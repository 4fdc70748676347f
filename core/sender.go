package core

import (
	"context"
	"fmt"
	"sync/atomic"
)

// =============================================================================
// Operation protocol: Sender / Receiver / Operation
// =============================================================================

// Receiver is the three-way completion sink an operation reports to.
// Exactly one of the three methods is called, exactly once.
//
// The ctx passed to a completion is derived from the ctx the operation was
// started with and reports the scheduler the completion runs on.
type Receiver[T any] interface {
	SetValue(ctx context.Context, v T)
	SetError(ctx context.Context, err error)
	SetStopped(ctx context.Context)
}

// Operation is the started-once state of an asynchronous action.
//
// The ctx handed to Start is the operation's environment: cancelling it is a
// stop request, and CurrentScheduler(ctx) names where Start is running.
// Completing synchronously from inside Start is allowed.
type Operation interface {
	Start(ctx context.Context)
}

// Sender describes an asynchronous action that has not started yet.
// Connect binds it to a receiver and returns the operation to start.
type Sender[T any] interface {
	Connect(r Receiver[T]) Operation
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc[T any] func(r Receiver[T]) Operation

func (f SenderFunc[T]) Connect(r Receiver[T]) Operation { return f(r) }

// ReceiverFuncs adapts three functions to the Receiver interface.
// Nil slots ignore the corresponding completion.
type ReceiverFuncs[T any] struct {
	Value   func(ctx context.Context, v T)
	Error   func(ctx context.Context, err error)
	Stopped func(ctx context.Context)
}

func (r ReceiverFuncs[T]) SetValue(ctx context.Context, v T) {
	if r.Value != nil {
		r.Value(ctx, v)
	}
}

func (r ReceiverFuncs[T]) SetError(ctx context.Context, err error) {
	if r.Error != nil {
		r.Error(ctx, err)
	}
}

func (r ReceiverFuncs[T]) SetStopped(ctx context.Context) {
	if r.Stopped != nil {
		r.Stopped(ctx)
	}
}

// =============================================================================
// Guards for the single-start and single-completion invariants
// =============================================================================

type funcOperation struct {
	name    string
	started atomic.Bool
	start   func(ctx context.Context)
}

// NewOperation wraps start as an Operation that reports a misuse when it is
// started more than once.
func NewOperation(name string, start func(ctx context.Context)) Operation {
	return &funcOperation{name: name, start: start}
}

func (op *funcOperation) Start(ctx context.Context) {
	if !op.started.CompareAndSwap(false, true) {
		reportMisuse(MisuseDoubleStart, op.name)
		return
	}
	op.start(ctx)
}

type onceReceiver[T any] struct {
	name string
	done atomic.Bool
	r    Receiver[T]
}

// Once wraps r so that a second completion is reported as a misuse instead of
// reaching r.
func Once[T any](name string, r Receiver[T]) Receiver[T] {
	if o, ok := r.(*onceReceiver[T]); ok {
		return o
	}
	return &onceReceiver[T]{name: name, r: r}
}

func (o *onceReceiver[T]) claim() bool {
	if o.done.CompareAndSwap(false, true) {
		return true
	}
	reportMisuse(MisuseDoubleCompletion, o.name)
	return false
}

func (o *onceReceiver[T]) SetValue(ctx context.Context, v T) {
	if o.claim() {
		o.r.SetValue(ctx, v)
	}
}

func (o *onceReceiver[T]) SetError(ctx context.Context, err error) {
	if o.claim() {
		o.r.SetError(ctx, err)
	}
}

func (o *onceReceiver[T]) SetStopped(ctx context.Context) {
	if o.claim() {
		o.r.SetStopped(ctx)
	}
}

// =============================================================================
// Factories
// =============================================================================

// Just completes synchronously with v.
func Just[T any](v T) Sender[T] {
	return SenderFunc[T](func(r Receiver[T]) Operation {
		return NewOperation("just", func(ctx context.Context) {
			r.SetValue(ctx, v)
		})
	})
}

// JustError completes synchronously with err.
func JustError[T any](err error) Sender[T] {
	return SenderFunc[T](func(r Receiver[T]) Operation {
		return NewOperation("just_error", func(ctx context.Context) {
			r.SetError(ctx, err)
		})
	})
}

// JustStopped completes synchronously as stopped.
func JustStopped[T any]() Sender[T] {
	return SenderFunc[T](func(r Receiver[T]) Operation {
		return NewOperation("just_stopped", func(ctx context.Context) {
			r.SetStopped(ctx)
		})
	})
}

// Func runs fn synchronously when started and completes with its result.
// An error wrapping ErrStopped completes as stopped; a panic completes with
// a *PanicError.
func Func[T any](fn func(ctx context.Context) (T, error)) Sender[T] {
	return SenderFunc[T](func(r Receiver[T]) Operation {
		return NewOperation("func", func(ctx context.Context) {
			v, err := callRecover(func() (T, error) { return fn(ctx) })
			complete(ctx, r, v, err)
		})
	})
}

// complete routes a (value, error) pair to the matching receiver slot.
func complete[T any](ctx context.Context, r Receiver[T], v T, err error) {
	switch {
	case err == nil:
		r.SetValue(ctx, v)
	case IsStopped(err):
		r.SetStopped(ctx)
	default:
		r.SetError(ctx, err)
	}
}

func callRecover[T any](fn func() (T, error)) (v T, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = newPanicError(rec)
		}
	}()
	return fn()
}

func describe(s Scheduler) string {
	if s == nil {
		return "<inline>"
	}
	return fmt.Sprintf("%q", s.Name())
}
