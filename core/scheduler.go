package core

import (
	"context"
	"time"
)

// Scheduler is a lightweight handle naming an execution context.
//
// Handles are immutable comparable values; two handles are equal (==) iff
// they name the same context. Copying a handle does not copy ownership.
type Scheduler interface {
	// Schedule returns a sender that completes on the named context.
	Schedule() Sender[struct{}]

	// Name identifies the context in logs and errors.
	Name() string
}

// TimedScheduler is a Scheduler that can also release work after a delay.
type TimedScheduler interface {
	Scheduler

	// ScheduleAfter completes on the timed context once d has elapsed.
	ScheduleAfter(d time.Duration) Sender[struct{}]

	// ScheduleAt completes on the timed context once t has been reached.
	ScheduleAt(t time.Time) Sender[struct{}]

	// ScheduleAfterOn waits d on the timed context, then completes on target.
	ScheduleAfterOn(target Scheduler, d time.Duration) Sender[struct{}]
}

// Schedule is shorthand for s.Schedule().
func Schedule(s Scheduler) Sender[struct{}] {
	return s.Schedule()
}

// ScheduleAfter is shorthand for s.ScheduleAfter(d).
func ScheduleAfter(s TimedScheduler, d time.Duration) Sender[struct{}] {
	return s.ScheduleAfter(d)
}

// ScheduleAfterOn waits d on s and then hops to target. A nil target
// completes on the timed context itself.
func ScheduleAfterOn(s TimedScheduler, target Scheduler, d time.Duration) Sender[struct{}] {
	return s.ScheduleAfterOn(target, d)
}

// =============================================================================
// Run loop scheduler handle
// =============================================================================

type loopScheduler struct {
	loop *RunLoop
}

func (s loopScheduler) Name() string { return s.loop.Name() }

func (s loopScheduler) Schedule() Sender[struct{}] {
	return SenderFunc[struct{}](func(r Receiver[struct{}]) Operation {
		r = Once("schedule", r)
		return NewOperation("schedule", func(ctx context.Context) {
			err := s.loop.Enqueue(WorkItem{
				Run: func(context.Context) {
					r.SetValue(WithScheduler(ctx, s), struct{}{})
				},
				Discard: func(context.Context) {
					r.SetStopped(WithScheduler(ctx, s))
				},
			})
			if err != nil {
				r.SetError(ctx, err)
			}
		})
	})
}
