package core

import (
	"context"
	"fmt"
)

// SyncWait blocks the calling goroutine until s completes and returns its
// value, its error, or ErrStopped.
//
// While waiting, the caller pumps a private run loop: work scheduled on
// CurrentScheduler of the start context runs on the calling goroutine.
//
// SyncWait must not be called from a task body or work item that the
// completion of s depends on (e.g. from the only goroutine of the context
// s will complete on): that is a re-entrant deadlock and is not detected.
func SyncWait[T any](s Sender[T]) (T, error) {
	return SyncWaitContext(context.Background(), s)
}

// SyncWaitContext is SyncWait with a parent context; cancelling ctx is a
// stop request for s.
func SyncWaitContext[T any](ctx context.Context, s Sender[T]) (T, error) {
	loop := NewRunLoop("sync_wait")

	var res outcome[T]
	op := s.Connect(Once("sync_wait", ReceiverFuncs[T]{
		Value: func(_ context.Context, v T) {
			res = outcome[T]{kind: completedValue, value: v}
			loop.Finish()
		},
		Error: func(_ context.Context, err error) {
			res = outcome[T]{kind: completedError, err: err}
			loop.Finish()
		},
		Stopped: func(context.Context) {
			res = outcome[T]{kind: completedStopped}
			loop.Finish()
		},
	}))
	op.Start(WithScheduler(ctx, loop.Scheduler()))

	if err := loop.Run(ctx); err != nil {
		var zero T
		return zero, fmt.Errorf("sync wait: %w", err)
	}

	switch res.kind {
	case completedError:
		var zero T
		return zero, res.err
	case completedStopped:
		var zero T
		return zero, ErrStopped
	default:
		return res.value, nil
	}
}
