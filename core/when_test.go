package core

import (
	"context"
	"errors"
	"testing"
	"time"
)

// TestRace_FirstCompletionWins tests Race with a fast and a slow sender
// Main test items:
// 1. The fast sender's value is the result
// 2. The slow timer entry is cancelled rather than left pending
// 3. Race completes only after the loser finished
func TestRace_FirstCompletionWins(t *testing.T) {
	tc := newTestTimedContext(t, "race")
	ec := newTestExecutionContext(t, "race-worker")

	slow := Then(tc.Scheduler().ScheduleAfter(time.Hour), func(struct{}) (string, error) { return "slow", nil })
	fast := StartsOn(ec.Scheduler(), Just("fast"))

	v, err := SyncWait(Race(slow, fast))
	if err != nil || v != "fast" {
		t.Fatalf("Race = (%q, %v), want (fast, nil)", v, err)
	}
	if st := tc.Stats(); st.Cancelled != 1 || st.Pending != 0 {
		t.Errorf("loser timer Stats = %+v, want 1 cancelled, none pending", st)
	}
}

// TestRace_Empty tests that an empty race completes stopped
func TestRace_Empty(t *testing.T) {
	if _, err := SyncWait(Race[int]()); !errors.Is(err, ErrStopped) {
		t.Errorf("empty Race = %v, want ErrStopped", err)
	}
}

// TestRace_OuterStop tests that stopping the race stops every contestant
func TestRace_OuterStop(t *testing.T) {
	tc := newTestTimedContext(t, "race-stop")
	a := tc.Scheduler().ScheduleAfter(time.Hour)
	b := tc.Scheduler().ScheduleAfter(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := SyncWaitContext(ctx, Race(a, b)); !errors.Is(err, ErrStopped) {
		t.Errorf("stopped Race = %v, want ErrStopped", err)
	}
	if tc.TaskCount() != 0 {
		t.Errorf("%d entries still pending", tc.TaskCount())
	}
}

// TestWhenAll_CollectsInOrder tests that values keep argument order
func TestWhenAll_CollectsInOrder(t *testing.T) {
	tc := newTestTimedContext(t, "when-all")
	after := func(d time.Duration, v int) Sender[int] {
		return Then(tc.Scheduler().ScheduleAfter(d), func(struct{}) (int, error) { return v, nil })
	}

	vs, err := SyncWait(WhenAll(after(20*time.Millisecond, 1), after(0, 2), Just(3)))
	if err != nil {
		t.Fatalf("WhenAll: %v", err)
	}
	if len(vs) != 3 || vs[0] != 1 || vs[1] != 2 || vs[2] != 3 {
		t.Errorf("WhenAll = %v, want [1 2 3]", vs)
	}

	if vs, err := SyncWait(WhenAll[int]()); err != nil || len(vs) != 0 {
		t.Errorf("empty WhenAll = (%v, %v)", vs, err)
	}
}

// TestWhenAll_ErrorCancelsRest tests failure handling
// Main test items:
// 1. The first error stops the pending senders
// 2. The error takes precedence over the stops it caused
func TestWhenAll_ErrorCancelsRest(t *testing.T) {
	tc := newTestTimedContext(t, "when-all-err")
	errBad := errors.New("bad")
	pending := Then(tc.Scheduler().ScheduleAfter(time.Hour), func(struct{}) (int, error) { return 0, nil })
	failing := LetValue(tc.Scheduler().ScheduleAfter(5*time.Millisecond), func(struct{}) Sender[int] {
		return JustError[int](errBad)
	})

	_, err := SyncWait(WhenAll(pending, failing))
	if !errors.Is(err, errBad) {
		t.Errorf("WhenAll = %v, want bad", err)
	}
	if tc.TaskCount() != 0 {
		t.Errorf("%d entries still pending", tc.TaskCount())
	}
}

// TestWithTimeout tests deadline enforcement
// Main test items:
// 1. Work slower than the timeout completes with ErrTimeout
// 2. Work faster than the timeout keeps its value and the timer is cancelled
func TestWithTimeout(t *testing.T) {
	tc := newTestTimedContext(t, "timeout")
	ec := newTestExecutionContext(t, "timeout-worker")

	slow := Then(tc.Scheduler().ScheduleAfter(time.Hour), func(struct{}) (int, error) { return 1, nil })
	if _, err := SyncWait(WithTimeout(slow, tc.Scheduler(), 10*time.Millisecond)); !errors.Is(err, ErrTimeout) {
		t.Errorf("slow work = %v, want ErrTimeout", err)
	}

	fast := StartsOn(ec.Scheduler(), Just(2))
	v, err := SyncWait(WithTimeout(fast, tc.Scheduler(), time.Hour))
	if err != nil || v != 2 {
		t.Errorf("fast work = (%d, %v), want (2, nil)", v, err)
	}
	if tc.TaskCount() != 0 {
		t.Errorf("%d timeout entries still pending", tc.TaskCount())
	}
}
