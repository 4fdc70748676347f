package core

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// ScheduleCron returns a sender that completes on the timed context at the
// next activation of a standard five-field cron expression (or a descriptor
// such as "@every 1s"). The activation is computed when the operation starts,
// so reconnecting the sender in a loop yields a periodic subscription.
func (tc *TimedContext) ScheduleCron(expr string) (Sender[struct{}], error) {
	schedule, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("parse cron expression %q: %w", expr, err)
	}
	return ScheduleSchedule(tc.Scheduler(), schedule), nil
}

// ScheduleSchedule completes on s at schedule.Next(now) as evaluated when
// the operation starts.
func ScheduleSchedule(s TimedScheduler, schedule cron.Schedule) Sender[struct{}] {
	return SenderFunc[struct{}](func(r Receiver[struct{}]) Operation {
		return NewOperation("schedule_cron", func(ctx context.Context) {
			next := schedule.Next(time.Now())
			if next.IsZero() {
				r.SetStopped(ctx)
				return
			}
			s.ScheduleAt(next).Connect(r).Start(ctx)
		})
	})
}
