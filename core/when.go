package core

import (
	"context"
	"sync"
	"time"
)

type completionKind int

const (
	completedValue completionKind = iota
	completedError
	completedStopped
)

type outcome[T any] struct {
	kind  completionKind
	value T
	err   error
}

func (o outcome[T]) deliver(ctx context.Context, r Receiver[T]) {
	switch o.kind {
	case completedValue:
		r.SetValue(ctx, o.value)
	case completedError:
		r.SetError(ctx, o.err)
	default:
		r.SetStopped(ctx)
	}
}

// Race starts every sender and completes with whichever completes first.
// The others are asked to stop; Race completes only after all of them have
// finished, so nothing it started outlives it.
func Race[T any](senders ...Sender[T]) Sender[T] {
	return SenderFunc[T](func(r Receiver[T]) Operation {
		r = Once("race", r)
		return NewOperation("race", func(ctx context.Context) {
			if len(senders) == 0 {
				r.SetStopped(ctx)
				return
			}
			childCtx, cancel := context.WithCancel(ctx)

			var (
				mu        sync.Mutex
				remaining = len(senders)
				winner    *outcome[T]
			)
			finish := func(doneCtx context.Context, o outcome[T]) {
				mu.Lock()
				if winner == nil {
					winner = &o
					cancel()
				}
				remaining--
				last := remaining == 0
				w := *winner
				mu.Unlock()
				if last {
					cancel()
					w.deliver(rebase(ctx, doneCtx), r)
				}
			}

			ops := make([]Operation, len(senders))
			for i, s := range senders {
				ops[i] = s.Connect(ReceiverFuncs[T]{
					Value: func(c context.Context, v T) { finish(c, outcome[T]{kind: completedValue, value: v}) },
					Error: func(c context.Context, err error) { finish(c, outcome[T]{kind: completedError, err: err}) },
					Stopped: func(c context.Context) {
						finish(c, outcome[T]{kind: completedStopped})
					},
				})
			}
			for _, op := range ops {
				op.Start(childCtx)
			}
		})
	})
}

// WhenAll completes with every value in order once all senders succeeded.
// The first error or stop cancels the rest; an error takes precedence over
// a stop in the final result.
func WhenAll[T any](senders ...Sender[T]) Sender[[]T] {
	return SenderFunc[[]T](func(r Receiver[[]T]) Operation {
		r = Once("when_all", r)
		return NewOperation("when_all", func(ctx context.Context) {
			values := make([]T, len(senders))
			if len(senders) == 0 {
				r.SetValue(ctx, values)
				return
			}
			childCtx, cancel := context.WithCancel(ctx)

			var (
				mu        sync.Mutex
				remaining = len(senders)
				failure   *outcome[[]T]
			)
			finish := func(doneCtx context.Context, fail *outcome[[]T]) {
				mu.Lock()
				if fail != nil {
					if failure == nil || (failure.kind == completedStopped && fail.kind == completedError) {
						failure = fail
					}
					cancel()
				}
				remaining--
				last := remaining == 0
				mu.Unlock()
				if !last {
					return
				}
				cancel()
				if failure != nil {
					failure.deliver(rebase(ctx, doneCtx), r)
					return
				}
				r.SetValue(rebase(ctx, doneCtx), values)
			}

			ops := make([]Operation, len(senders))
			for i, s := range senders {
				ops[i] = s.Connect(ReceiverFuncs[T]{
					Value: func(c context.Context, v T) {
						mu.Lock()
						values[i] = v
						mu.Unlock()
						finish(c, nil)
					},
					Error: func(c context.Context, err error) {
						finish(c, &outcome[[]T]{kind: completedError, err: err})
					},
					Stopped: func(c context.Context) {
						finish(c, &outcome[[]T]{kind: completedStopped})
					},
				})
			}
			for _, op := range ops {
				op.Start(childCtx)
			}
		})
	})
}

// TimeoutAfter completes with ErrTimeout once d has elapsed on s.
// It is meant to be raced against real work.
func TimeoutAfter[T any](s TimedScheduler, d time.Duration) Sender[T] {
	return LetValue(s.ScheduleAfter(d), func(struct{}) Sender[T] {
		return JustError[T](ErrTimeout)
	})
}

// WithTimeout races work against TimeoutAfter(s, d). Whichever loses is stopped.
func WithTimeout[T any](work Sender[T], s TimedScheduler, d time.Duration) Sender[T] {
	return Race(work, TimeoutAfter[T](s, d))
}
