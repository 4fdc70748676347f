package core

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func quietScope(opts ...ScopeOption) *Scope {
	return NewScope(append([]ScopeOption{WithScopeLogger(NewNoOpLogger())}, opts...)...)
}

// TestScope_OnEmptyInlineWhenEmpty tests OnEmpty on a scope with nothing in flight
// Main test items:
// 1. The receiver is completed before Start returns
// 2. A second OnEmpty behaves the same
func TestScope_OnEmptyInlineWhenEmpty(t *testing.T) {
	scope := quietScope()
	defer scope.Close()

	for i := 0; i < 2; i++ {
		rec := newRecorder[struct{}]()
		scope.OnEmpty().Connect(rec).Start(context.Background())
		if !rec.completed() || rec.kind != completedValue {
			t.Errorf("OnEmpty #%d did not complete inline with a value", i+1)
		}
	}
}

// TestScope_StopAndDrain tests the stop-then-wait teardown idiom
// Main test items:
// 1. k tasks are spawned, each suspended on an hour-long timer
// 2. RequestStop resumes them all with a stop
// 3. OnEmpty completes, the in-flight count is zero, and the scope can be closed
func TestScope_StopAndDrain(t *testing.T) {
	tc := newTestTimedContext(t, "drain")
	scope := quietScope(WithScopeName("drain"))

	const k = 16
	var stopped atomic.Int32
	for i := 0; i < k; i++ {
		scope.Spawn(NewTask(func(co *Co) (struct{}, error) {
			_, err := Await(co, tc.Scheduler().ScheduleAfter(time.Hour))
			if errors.Is(err, ErrStopped) {
				stopped.Add(1)
			}
			return struct{}{}, err
		}))
	}
	if n := scope.InFlight(); n != k {
		t.Fatalf("InFlight = %d, want %d", n, k)
	}

	scope.RequestStop()
	if _, err := SyncWait(scope.OnEmpty()); err != nil {
		t.Fatalf("OnEmpty: %v", err)
	}

	if n := scope.InFlight(); n != 0 {
		t.Errorf("InFlight after drain = %d", n)
	}
	if stopped.Load() != k {
		t.Errorf("%d tasks observed the stop, want %d", stopped.Load(), k)
	}
	if errs := scope.Errors(); len(errs) != 0 {
		t.Errorf("stops were recorded as errors: %v", errs)
	}

	rec := newRecorder[struct{}]()
	scope.OnEmpty().Connect(rec).Start(context.Background())
	if !rec.completed() {
		t.Error("OnEmpty after drain did not complete inline")
	}
	scope.Close()
	if st := scope.Stats(); !st.Closed || !st.StopRequested || st.Spawned != k {
		t.Errorf("Stats = %+v", st)
	}
}

// TestScope_Drain tests the one-call teardown helper
func TestScope_Drain(t *testing.T) {
	tc := newTestTimedContext(t, "drain-helper")
	scope := quietScope()

	Spawn(scope, Then(tc.Scheduler().ScheduleAfter(time.Hour), func(struct{}) (int, error) { return 1, nil }))
	if err := scope.Drain(context.Background()); err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if !scope.Stats().Closed {
		t.Error("scope not closed after Drain")
	}
}

// TestScope_OnEmptyWaitsForCompletion tests OnEmpty with work completing normally
// Main test items:
// 1. Work is spawned from many goroutines onto an execution context
// 2. OnEmpty completes only after every spawned operation completed
func TestScope_OnEmptyWaitsForCompletion(t *testing.T) {
	ec := newTestExecutionContext(t, "spawn-target")
	scope := quietScope()
	defer scope.Close()

	const producers, each = 4, 50
	var done atomic.Int32
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < each; i++ {
				scope.Spawn(ThenDo(ec.Schedule(), func(struct{}) error {
					done.Add(1)
					return nil
				}))
			}
		}()
	}
	wg.Wait()

	if _, err := SyncWait(scope.OnEmpty()); err != nil {
		t.Fatalf("OnEmpty: %v", err)
	}
	if done.Load() != producers*each {
		t.Errorf("OnEmpty completed with %d of %d operations done", done.Load(), producers*each)
	}
}

// TestScope_OnEmptyIsStoppable tests stopping a pending OnEmpty
func TestScope_OnEmptyIsStoppable(t *testing.T) {
	scope := quietScope()
	trig := newTrigger[struct{}]()
	scope.Spawn(trig)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := SyncWaitContext(ctx, scope.OnEmpty()); !errors.Is(err, ErrStopped) {
		t.Errorf("stopped OnEmpty = %v, want ErrStopped", err)
	}

	trig.fire(struct{}{})
	if scope.InFlight() != 0 {
		t.Errorf("InFlight = %d, want 0", scope.InFlight())
	}
	scope.Close()
}

// TestScope_StoppedOnEmptyIsForgotten tests repeated bounded waits on a busy scope
// Main test items:
// 1. Each OnEmpty bounded by a timeout completes with ErrTimeout
// 2. No waiter is left registered on the scope afterwards
// 3. The stop completion reports no scheduler
func TestScope_StoppedOnEmptyIsForgotten(t *testing.T) {
	tc := newTestTimedContext(t, "bounded")
	scope := quietScope()
	trig := newTrigger[struct{}]()
	scope.Spawn(trig)

	for i := 0; i < 50; i++ {
		if _, err := SyncWait(WithTimeout(scope.OnEmpty(), tc.Scheduler(), time.Millisecond)); !errors.Is(err, ErrTimeout) {
			t.Fatalf("bounded OnEmpty #%d = %v, want ErrTimeout", i+1, err)
		}
	}
	scope.mu.Lock()
	waiting := len(scope.waiters)
	scope.mu.Unlock()
	if waiting != 0 {
		t.Errorf("%d stopped waiters still registered", waiting)
	}

	ctx, cancel := context.WithCancel(WithScheduler(context.Background(), tc.Scheduler()))
	rec := newRecorder[struct{}]()
	scope.OnEmpty().Connect(rec).Start(ctx)
	cancel()
	rec.wait(t)
	if rec.kind != completedStopped {
		t.Errorf("kind = %v, want stopped", rec.kind)
	}
	if s := CurrentScheduler(rec.ctx); s != nil {
		t.Errorf("stop completion reports scheduler %q, want none", s.Name())
	}

	trig.fire(struct{}{})
	scope.Close()
}

// TestScope_ErrorsAreRecorded tests that spawned errors are never dropped
// Main test items:
// 1. An error completion is recorded with a spawn id and the scope name
// 2. The error handler is invoked
// 3. OnEmpty still completes with a value
func TestScope_ErrorsAreRecorded(t *testing.T) {
	errLost := errors.New("connection lost")
	var handled []*SpawnError
	scope := quietScope(WithScopeName("errs"), WithErrorHandler(func(se *SpawnError) {
		handled = append(handled, se)
	}))
	defer scope.Close()

	Spawn(scope, JustError[int](errLost))
	Spawn(scope, Just(1))

	if _, err := SyncWait(scope.OnEmpty()); err != nil {
		t.Fatalf("OnEmpty = %v, want a value", err)
	}
	errs := scope.Errors()
	if len(errs) != 1 || len(handled) != 1 {
		t.Fatalf("recorded %d errors, handled %d, want 1 each", len(errs), len(handled))
	}
	se := errs[0]
	if !errors.Is(se, errLost) || se.Scope != "errs" || len(se.SpawnID) != 26 {
		t.Errorf("SpawnError = %+v", se)
	}
}

// TestScope_MaxErrors tests the cap on retained errors
func TestScope_MaxErrors(t *testing.T) {
	scope := quietScope(WithMaxErrors(2))
	defer scope.Close()

	for i := 0; i < 5; i++ {
		Spawn(scope, JustError[int](errors.New("x")))
	}
	if st := scope.Stats(); st.Errors != 2 || st.DroppedErrors != 3 {
		t.Errorf("Stats = %+v, want 2 errors and 3 dropped", st)
	}
}

// TestScope_CloseMisuse tests closing a busy scope and spawning on a closed one
// Main test items:
// 1. Close with work in flight is reported and the scope stays open
// 2. Spawn after Close is reported and the sender is not started
func TestScope_CloseMisuse(t *testing.T) {
	misuse := captureMisuse(t)
	scope := quietScope()

	trig := newTrigger[struct{}]()
	scope.Spawn(trig)
	scope.Close()
	if scope.Stats().Closed {
		t.Error("busy scope was closed")
	}

	trig.fire(struct{}{})
	scope.Close()

	late := newTrigger[struct{}]()
	scope.Spawn(late)
	select {
	case <-late.started:
		t.Error("sender spawned on a closed scope was started")
	default:
	}

	kinds := misuse.Kinds()
	if len(kinds) != 2 || kinds[0] != MisuseScopeNotEmpty || kinds[1] != MisuseSpawnOnClosedScope {
		t.Errorf("misuse = %v", kinds)
	}
}

// TestScope_TwoTasksStop tests two looping tasks stopped as a group
// Main test items:
// 1. Two tasks tick on a timer until stopped
// 2. After a while the scope is stopped and drained
// 3. Both tasks ticked, saw the stop, and ran their cleanup
func TestScope_TwoTasksStop(t *testing.T) {
	tc := newTestTimedContext(t, "ticker")
	scope := quietScope()

	var ticks [2]atomic.Int32
	var cleaned atomic.Int32
	for i := range ticks {
		scope.Spawn(NewTask(func(co *Co) (struct{}, error) {
			defer cleaned.Add(1)
			for {
				if _, err := Await(co, tc.Scheduler().ScheduleAfter(5*time.Millisecond)); err != nil {
					return struct{}{}, err
				}
				ticks[i].Add(1)
			}
		}))
	}

	time.Sleep(50 * time.Millisecond)
	if err := scope.Drain(context.Background()); err != nil {
		t.Fatalf("Drain: %v", err)
	}

	for i := range ticks {
		if ticks[i].Load() == 0 {
			t.Errorf("task %d never ticked", i)
		}
	}
	if cleaned.Load() != 2 {
		t.Errorf("cleanup ran %d times, want 2", cleaned.Load())
	}
}

// TestScope_ErrorAfterDisconnect tests an error surfacing at the next await
// Main test items:
// 1. A task is suspended on a device operation
// 2. The device disconnects and fails the operation
// 3. The error completes the task and is absorbed by the scope
func TestScope_ErrorAfterDisconnect(t *testing.T) {
	errDisconnected := errors.New("device disconnected")
	scope := quietScope()
	defer scope.Close()

	read := newTrigger[int]()
	var resumed atomic.Bool
	Spawn(scope, NewTask(func(co *Co) (int, error) {
		v, err := Await[int](co, read)
		resumed.Store(true)
		return v, err
	}))
	read.waitStarted(t)
	read.fail(errDisconnected)

	if _, err := SyncWait(scope.OnEmpty()); err != nil {
		t.Fatalf("OnEmpty: %v", err)
	}
	if !resumed.Load() {
		t.Error("task never resumed")
	}
	if errs := scope.Errors(); len(errs) != 1 || !errors.Is(errs[0], errDisconnected) {
		t.Errorf("Errors = %v", errs)
	}
}

// TestScope_ParentCancellation tests WithScopeParent
func TestScope_ParentCancellation(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	scope := quietScope(WithScopeParent(parent))
	defer scope.Close()

	cancel()
	if !scope.StopRequested() {
		t.Error("cancelling the parent did not stop the scope")
	}
}

// TestWithMaxErrors_Negative tests option validation
func TestWithMaxErrors_Negative(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("negative max errors did not panic")
		}
	}()
	NewScope(WithMaxErrors(-1))
}
