package core

import "context"

// WorkFunc is the unit of work (Closure) executed by a run loop.
type WorkFunc func(ctx context.Context)

// WorkItem is what a run loop queue holds: "resume this operation".
//
// Run is executed on the loop's goroutine. Discard, if set, is executed
// instead when the loop shuts down before the item got its turn, so the
// operation owning the item can complete as stopped rather than dangle.
type WorkItem struct {
	Run     WorkFunc
	Discard WorkFunc
}

// =============================================================================
// Context Helper
// =============================================================================

type schedulerKeyType struct{}

var schedulerKey schedulerKeyType

// noScheduler masks an inherited scheduler on a goroutine that belongs to
// no context.
type noScheduler struct{}

// WithScheduler returns a copy of ctx that reports s as the scheduler the
// code observing ctx is currently running on.
func WithScheduler(ctx context.Context, s Scheduler) context.Context {
	return context.WithValue(ctx, schedulerKey, s)
}

// CurrentScheduler retrieves the scheduler the caller is running on, or nil
// when ctx was not produced by one of this package's contexts.
func CurrentScheduler(ctx context.Context) Scheduler {
	s, _ := lookupScheduler(ctx)
	return s
}

func lookupScheduler(ctx context.Context) (Scheduler, bool) {
	if ctx == nil {
		return nil, false
	}
	switch v := ctx.Value(schedulerKey).(type) {
	case Scheduler:
		return v, true
	case noScheduler:
		return nil, true
	default:
		return nil, false
	}
}

// detach returns a copy of ctx that reports no current scheduler. Completions
// delivered on a goroutine outside any context (stop callbacks) carry it.
func detach(ctx context.Context) context.Context {
	return context.WithValue(ctx, schedulerKey, noScheduler{})
}

// rebase keeps the cancellation chain of base while adopting the scheduler
// reported by from, including the absence of one.
func rebase(base, from context.Context) context.Context {
	s, ok := lookupScheduler(from)
	switch {
	case !ok:
		return base
	case s == nil:
		return detach(base)
	default:
		return WithScheduler(base, s)
	}
}
