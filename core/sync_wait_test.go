package core

import (
	"context"
	"errors"
	"testing"
	"time"
)

// TestSyncWait_PumpsPrivateLoop tests work scheduled on the waiting goroutine
// Main test items:
// 1. The root operation starts with the private loop as current scheduler
// 2. Work scheduled back onto that scheduler runs and completes the wait
func TestSyncWait_PumpsPrivateLoop(t *testing.T) {
	var name string
	s := LetValue(Func(func(ctx context.Context) (Scheduler, error) {
		return CurrentScheduler(ctx), nil
	}), func(sch Scheduler) Sender[string] {
		name = sch.Name()
		return Then(sch.Schedule(), func(struct{}) (string, error) { return "pumped", nil })
	})

	v, err := SyncWait(s)
	if err != nil || v != "pumped" {
		t.Errorf("SyncWait = (%q, %v), want (pumped, nil)", v, err)
	}
	if name != "sync_wait" {
		t.Errorf("root started on %q, want the private loop", name)
	}
}

// TestSyncWait_BlocksUntilRemoteCompletion tests waiting on another context
func TestSyncWait_BlocksUntilRemoteCompletion(t *testing.T) {
	tc := newTestTimedContext(t, "remote")

	begin := time.Now()
	if _, err := SyncWait(tc.Scheduler().ScheduleAfter(20 * time.Millisecond)); err != nil {
		t.Fatalf("SyncWait: %v", err)
	}
	if elapsed := time.Since(begin); elapsed < 20*time.Millisecond {
		t.Errorf("returned after %v, before the deadline", elapsed)
	}
}

// TestSyncWaitContext_Cancellation tests that cancelling the parent stops the operation
func TestSyncWaitContext_Cancellation(t *testing.T) {
	tc := newTestTimedContext(t, "cancel-wait")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := SyncWaitContext(ctx, tc.Scheduler().ScheduleAfter(time.Hour))
	if !errors.Is(err, ErrStopped) {
		t.Errorf("SyncWaitContext = %v, want ErrStopped", err)
	}
	if tc.TaskCount() != 0 {
		t.Error("cancelled entry is still pending")
	}
}
