package main

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	executor "github.com/Swind/go-executor"
	"github.com/Swind/go-executor/core"
)

// say prints msg with the name of the scheduler it was started on.
func (e *env) say(msg string) executor.Sender[struct{}] {
	return core.Func(func(ctx context.Context) (struct{}, error) {
		e.printf("%s on %s", msg, schedulerName(ctx))
		return struct{}{}, nil
	})
}

func schedulerName(ctx context.Context) string {
	if s := executor.CurrentScheduler(ctx); s != nil {
		return s.Name()
	}
	return "<none>"
}

func andThen[T any](first executor.Sender[struct{}], next executor.Sender[T]) executor.Sender[T] {
	return executor.LetValue(first, func(struct{}) executor.Sender[T] { return next })
}

// runContinuesOn contrasts moving a chain with ContinuesOn against
// scheduling the rest of it from LetValue.
func runContinuesOn(e *env) error {
	other := e.rt.Context("other")

	e.printf("continues_on:")
	if _, err := executor.SyncWait(andThen(executor.ContinuesOn(other.Scheduler(), e.say("start")), e.say("continue"))); err != nil {
		return err
	}

	e.printf("let_value(schedule):")
	_, err := executor.SyncWait(andThen(e.say("start"), andThen(other.Schedule(), e.say("continue"))))
	return err
}

// runBasicCoroutine awaits a child task five times; each child waits one tick.
func runBasicCoroutine(e *env) error {
	timer := e.rt.Timer().Scheduler()
	child := func(i int) *executor.Task[struct{}] {
		return executor.NewTask(func(co *executor.Co) (struct{}, error) {
			if _, err := executor.Await(co, timer.ScheduleAfter(e.tick)); err != nil {
				return struct{}{}, err
			}
			e.printf("in child %d on %s", i, co.Scheduler().Name())
			return struct{}{}, nil
		})
	}
	parent := executor.NewTask(func(co *executor.Co) (struct{}, error) {
		e.printf("in parent on %s", schedulerName(co.Context()))
		for i := 0; i < 5; i++ {
			if _, err := executor.Await(co, child(i)); err != nil {
				return struct{}{}, err
			}
		}
		return struct{}{}, nil
	})
	_, err := executor.SyncWait[struct{}](parent)
	return err
}

func (e *env) counter(number, count int) *executor.Task[struct{}] {
	timer := e.rt.Timer().Scheduler()
	return executor.NewTask(func(co *executor.Co) (struct{}, error) {
		for i := 0; i < count; i++ {
			if _, err := executor.Await(co, timer.ScheduleAfter(e.tick)); err != nil {
				e.printf("counter %d stopped after %d", number, i)
				return struct{}{}, err
			}
			e.printf("counter %d step %d on %s", number, i, co.Scheduler().Name())
		}
		e.printf("counter %d finished", number)
		return struct{}{}, nil
	})
}

// runAsyncScope spawns a short and a long counter, stops the scope after
// three ticks, and waits for it to drain.
func runAsyncScope(e *env) error {
	scope := e.scope("async_scope")
	other := e.rt.Context("other")

	scope.Spawn(executor.StartsOn[struct{}](other.Scheduler(), e.counter(0, 3)))
	scope.Spawn(e.counter(1, 10))

	if _, err := executor.SyncWait(e.rt.Timer().Scheduler().ScheduleAfter(3*e.tick + e.tick/2)); err != nil {
		return err
	}
	scope.RequestStop()
	if _, err := executor.SyncWait(scope.OnEmpty()); err != nil {
		return err
	}
	e.printf("scope empty, in flight %d", scope.InFlight())
	scope.Close()
	return nil
}

// runCapturedLifetime shows that values captured by a spawned task stay
// alive for as long as the task does.
func runCapturedLifetime(e *env) error {
	scope := e.scope("capture")
	spawnTask := func() {
		value := new(int)
		*value = 13
		scope.Spawn(executor.NewTask(func(co *executor.Co) (struct{}, error) {
			e.printf("value is %d", *value)
			if _, err := executor.Await(co, e.rt.Timer().Scheduler().ScheduleAfter(e.tick)); err != nil {
				return struct{}{}, err
			}
			e.printf("value is still %d on %s", *value, co.Scheduler().Name())
			return struct{}{}, nil
		}))
	}
	spawnTask()
	if _, err := executor.SyncWait(scope.OnEmpty()); err != nil {
		return err
	}
	scope.Close()
	return nil
}

// runContinuationScheduler prints where a task resumes depending on how it
// was started.
func runContinuationScheduler(e *env) error {
	other := e.rt.Context("other")
	report := func(name string) *executor.Task[struct{}] {
		return executor.NewTask(func(co *executor.Co) (struct{}, error) {
			e.printf("%s starts on %s", name, schedulerName(co.Context()))
			if _, err := executor.Await(co, e.rt.Timer().Scheduler().ScheduleAfter(e.tick/10)); err != nil {
				return struct{}{}, err
			}
			e.printf("%s resumes on %s", name, co.Scheduler().Name())
			return struct{}{}, nil
		})
	}

	if _, err := executor.SyncWait[struct{}](report("sync_wait")); err != nil {
		return err
	}

	scope := e.scope("continuation")
	steps := []executor.Sender[struct{}]{
		report("spawn bare"),
		executor.StartsOn[struct{}](other.Scheduler(), report("spawn with starts_on")),
		executor.LetValue(other.Schedule(), func(struct{}) executor.Sender[struct{}] {
			return report("schedule and let_value")
		}),
	}
	for _, step := range steps {
		scope.Spawn(step)
		if _, err := executor.SyncWait(scope.OnEmpty()); err != nil {
			return err
		}
	}
	scope.Close()
	return nil
}

// runLockAcrossAwait holds an AffineMutex across an await; the unlock
// reports that the task moved to another context in between.
func runLockAcrossAwait(e *env) error {
	var reported error
	scope := executor.NewScope(
		executor.WithScopeName("lock"),
		executor.WithScopeLogger(e.logger),
		executor.WithErrorHandler(func(se *core.SpawnError) { reported = se }),
	)
	var mu core.AffineMutex
	scope.Spawn(executor.StartsOn[struct{}](e.rt.Context("other").Scheduler(), executor.NewTask(func(co *executor.Co) (struct{}, error) {
		mu.Lock(co)
		_, err := executor.Await(co, e.rt.Timer().Scheduler().ScheduleAfter(e.tick/10))
		return struct{}{}, errors.Join(err, mu.Unlock(co))
	})))
	if _, err := executor.SyncWait(scope.OnEmpty()); err != nil {
		return err
	}
	scope.Close()
	if reported == nil {
		return errors.New("lock across await went unnoticed")
	}
	e.printf("detected: %v", reported)
	return nil
}

type exampleHardware struct {
	e         *env
	connected atomic.Bool
	total     atomic.Int64
}

func (h *exampleHardware) sendData(i int64) executor.Sender[struct{}] {
	return core.Func(func(context.Context) (struct{}, error) {
		if !h.connected.Load() {
			return struct{}{}, errors.New("hardware disconnected")
		}
		h.e.printf("total sent: %d", h.total.Add(i))
		return struct{}{}, nil
	})
}

func (h *exampleHardware) use() *executor.Task[struct{}] {
	timer := h.e.rt.Timer().Scheduler()
	return executor.NewTask(func(co *executor.Co) (struct{}, error) {
		if !h.connected.Load() {
			return struct{}{}, nil
		}
		if _, err := executor.Await(co, h.sendData(5)); err != nil {
			return struct{}{}, err
		}
		if _, err := executor.Await(co, timer.ScheduleAfter(2*h.e.tick)); err != nil {
			return struct{}{}, err
		}
		_, err := executor.Await(co, h.sendData(3))
		return struct{}{}, err
	})
}

// runAccidentalAsync disconnects the hardware while a task still uses it;
// the failure surfaces at the next await and is absorbed by the scope.
func runAccidentalAsync(e *env) error {
	scope := e.scope("accidental_async")
	hw := &exampleHardware{e: e}
	hw.connected.Store(true)

	scope.Spawn(executor.StartsOn[struct{}](e.rt.Timer().Scheduler(), hw.use()))
	if _, err := executor.SyncWait(e.rt.Timer().Scheduler().ScheduleAfter(e.tick)); err != nil {
		return err
	}
	hw.connected.Store(false)

	if _, err := executor.SyncWait(scope.OnEmpty()); err != nil {
		return err
	}
	for _, se := range scope.Errors() {
		e.printf("spawn %s failed: %v", se.SpawnID, se.Err)
	}
	scope.Close()
	return nil
}

type cycleHardware struct {
	e     *env
	scope *executor.Scope
	value atomic.Int64
}

func (h *cycleHardware) sendAndForget(i int64) {
	timer := h.e.rt.Timer().Scheduler()
	h.scope.Spawn(executor.StartsOn[struct{}](timer, executor.NewTask(func(co *executor.Co) (struct{}, error) {
		if _, err := executor.Await(co, timer.ScheduleAfter(h.e.tick)); err != nil {
			return struct{}{}, err
		}
		h.e.printf("time to do work, value: %d", h.value.Load())
		h.value.Add(i)
		if _, err := executor.Await(co, timer.ScheduleAfter(h.e.tick)); err != nil {
			return struct{}{}, err
		}
		h.e.printf("work is done, value: %d", h.value.Load())
		return struct{}{}, nil
	})))
}

// release requests stop and waits for the scope from outside of it.
func (h *cycleHardware) release(ctx context.Context) error {
	return h.scope.Drain(ctx)
}

// runSynchronizationCycle shows that waiting for a scope from work inside
// it never completes, and that releasing the owner from outside does.
func runSynchronizationCycle(e *env) error {
	hw := &cycleHardware{e: e, scope: e.scope("cycle")}
	timer := e.rt.Timer().Scheduler()
	hw.sendAndForget(3)

	inside := executor.NewTask(func(co *executor.Co) (struct{}, error) {
		_, err := executor.Await(co, executor.WithTimeout(hw.scope.OnEmpty(), timer, 3*e.tick))
		return struct{}{}, err
	})
	var cycleErr error
	hw.scope.Spawn(core.UponError[struct{}](inside, func(err error) (struct{}, error) {
		cycleErr = err
		return struct{}{}, nil
	}))

	if _, err := executor.SyncWait(timer.ScheduleAfter(4 * e.tick)); err != nil {
		return err
	}
	if err := hw.release(context.Background()); err != nil {
		return err
	}
	if !errors.Is(cycleErr, executor.ErrTimeout) {
		return fmt.Errorf("waiting on own scope: got %v, want timeout", cycleErr)
	}
	e.printf("waiting on own scope from inside it: %v", cycleErr)
	e.printf("released from outside, in flight %d", hw.scope.InFlight())
	return nil
}
