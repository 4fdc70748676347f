package core

import "context"

// =============================================================================
// Composition primitives
// =============================================================================

// Then runs fn on the value of s, on whatever context s completed on.
// Errors and stops propagate untouched. An error returned by fn (or a panic
// inside it) becomes the error completion; an error wrapping ErrStopped
// becomes a stop completion.
func Then[T, U any](s Sender[T], fn func(T) (U, error)) Sender[U] {
	return SenderFunc[U](func(r Receiver[U]) Operation {
		return s.Connect(ReceiverFuncs[T]{
			Value: func(ctx context.Context, v T) {
				u, err := callRecover(func() (U, error) { return fn(v) })
				complete(ctx, r, u, err)
			},
			Error:   r.SetError,
			Stopped: r.SetStopped,
		})
	})
}

// ThenDo is Then for side effects: fn sees the value, the result is empty.
func ThenDo[T any](s Sender[T], fn func(T) error) Sender[struct{}] {
	return Then(s, func(v T) (struct{}, error) {
		return struct{}{}, fn(v)
	})
}

// LetValue chains to the sender fn builds from the value of s. It is how
// work whose continuation is only known after upstream completes is
// expressed, e.g. "schedule elsewhere, then continue".
func LetValue[T, U any](s Sender[T], fn func(T) Sender[U]) Sender[U] {
	return SenderFunc[U](func(r Receiver[U]) Operation {
		return s.Connect(ReceiverFuncs[T]{
			Value: func(ctx context.Context, v T) {
				next, err := callRecover(func() (Sender[U], error) { return fn(v), nil })
				if err != nil {
					r.SetError(ctx, err)
					return
				}
				next.Connect(r).Start(ctx)
			},
			Error:   r.SetError,
			Stopped: r.SetStopped,
		})
	})
}

// UponError recovers from an error completion of s with fn.
func UponError[T any](s Sender[T], fn func(error) (T, error)) Sender[T] {
	return SenderFunc[T](func(r Receiver[T]) Operation {
		return s.Connect(ReceiverFuncs[T]{
			Value: r.SetValue,
			Error: func(ctx context.Context, err error) {
				v, err := callRecover(func() (T, error) { return fn(err) })
				complete(ctx, r, v, err)
			},
			Stopped: r.SetStopped,
		})
	})
}

// UponStopped turns a stop completion of s into the result of fn.
func UponStopped[T any](s Sender[T], fn func() (T, error)) Sender[T] {
	return SenderFunc[T](func(r Receiver[T]) Operation {
		return s.Connect(ReceiverFuncs[T]{
			Value: r.SetValue,
			Error: r.SetError,
			Stopped: func(ctx context.Context) {
				v, err := callRecover(fn)
				complete(ctx, r, v, err)
			},
		})
	})
}

// StartsOn makes s begin execution on sch regardless of the starting goroutine.
func StartsOn[T any](sch Scheduler, s Sender[T]) Sender[T] {
	return LetValue(sch.Schedule(), func(struct{}) Sender[T] { return s })
}

// ContinuesOn makes every completion of s be delivered on sch, regardless of
// which goroutine completed s.
func ContinuesOn[T any](sch Scheduler, s Sender[T]) Sender[T] {
	return SenderFunc[T](func(r Receiver[T]) Operation {
		hop := func(ctx context.Context, deliver func(context.Context)) {
			sch.Schedule().Connect(ReceiverFuncs[struct{}]{
				Value:   func(ctx context.Context, _ struct{}) { deliver(ctx) },
				Error:   r.SetError,
				Stopped: r.SetStopped,
			}).Start(ctx)
		}
		return s.Connect(ReceiverFuncs[T]{
			Value: func(ctx context.Context, v T) {
				hop(ctx, func(ctx context.Context) { r.SetValue(ctx, v) })
			},
			Error: func(ctx context.Context, err error) {
				hop(ctx, func(ctx context.Context) { r.SetError(ctx, err) })
			},
			Stopped: func(ctx context.Context) {
				hop(ctx, r.SetStopped)
			},
		})
	})
}
