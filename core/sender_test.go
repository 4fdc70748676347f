package core

import (
	"context"
	"errors"
	"testing"
)

// TestFactories tests Just, JustError, JustStopped and Func through SyncWait
// Main test items:
// 1. Each factory completes synchronously with its completion kind
// 2. SyncWait maps them to (value, nil), (zero, err), (zero, ErrStopped)
func TestFactories(t *testing.T) {
	errBoom := errors.New("boom")

	if v, err := SyncWait(Just(42)); err != nil || v != 42 {
		t.Errorf("Just: (%v, %v), want (42, nil)", v, err)
	}
	if _, err := SyncWait(JustError[int](errBoom)); !errors.Is(err, errBoom) {
		t.Errorf("JustError: %v, want boom", err)
	}
	if _, err := SyncWait(JustStopped[int]()); !errors.Is(err, ErrStopped) {
		t.Errorf("JustStopped: %v, want ErrStopped", err)
	}
	v, err := SyncWait(Func(func(ctx context.Context) (string, error) { return "ok", nil }))
	if err != nil || v != "ok" {
		t.Errorf("Func: (%q, %v), want (ok, nil)", v, err)
	}
}

// TestFunc_ErrorRouting tests how Func classifies its result
// Main test items:
// 1. A returned error wrapping ErrStopped completes as stopped
// 2. A panic completes with a *PanicError carrying the value
func TestFunc_ErrorRouting(t *testing.T) {
	rec := newRecorder[int]()
	Func(func(context.Context) (int, error) {
		return 0, errors.Join(errors.New("shutting down"), ErrStopped)
	}).Connect(rec).Start(context.Background())
	if rec.kind != completedStopped {
		t.Errorf("wrapped ErrStopped completed with kind %v, want stopped", rec.kind)
	}

	_, err := SyncWait(Func(func(context.Context) (int, error) { panic("kaboom") }))
	var pe *PanicError
	if !errors.As(err, &pe) {
		t.Fatalf("panic completed with %v, want *PanicError", err)
	}
	if pe.Value != "kaboom" || pe.Stack == "" {
		t.Errorf("PanicError = {%v, %d bytes of stack}", pe.Value, len(pe.Stack))
	}
}

// TestOperation_DoubleStartIsMisuse tests the single-start guard
func TestOperation_DoubleStartIsMisuse(t *testing.T) {
	misuse := captureMisuse(t)

	var starts int
	op := NewOperation("once", func(context.Context) { starts++ })
	op.Start(context.Background())
	op.Start(context.Background())

	if starts != 1 {
		t.Errorf("start body ran %d times, want 1", starts)
	}
	if kinds := misuse.Kinds(); len(kinds) != 1 || kinds[0] != MisuseDoubleStart {
		t.Errorf("misuse = %v, want [%v]", kinds, MisuseDoubleStart)
	}
}

// TestOnce_DoubleCompletionIsMisuse tests the single-completion guard
func TestOnce_DoubleCompletionIsMisuse(t *testing.T) {
	misuse := captureMisuse(t)

	rec := newRecorder[int]()
	r := Once[int]("guarded", rec)
	r.SetValue(context.Background(), 1)
	r.SetError(context.Background(), errors.New("late"))
	r.SetStopped(context.Background())

	if rec.calls != 1 || rec.value != 1 {
		t.Errorf("receiver saw %d completions, value %d", rec.calls, rec.value)
	}
	if kinds := misuse.Kinds(); len(kinds) != 2 {
		t.Errorf("misuse reports = %v, want two double completions", kinds)
	}
	if Once[int]("again", r) != r {
		t.Error("Once must not wrap an already guarded receiver")
	}
}

// TestDefaultMisuseHandlerPanics tests that misuse is fatal by default
func TestDefaultMisuseHandlerPanics(t *testing.T) {
	prev := SetMisuseHandler(nil)
	defer SetMisuseHandler(prev)

	defer func() {
		rec := recover()
		err, ok := rec.(*MisuseError)
		if !ok {
			t.Fatalf("recovered %v, want *MisuseError", rec)
		}
		if err.Kind != MisuseDoubleStart {
			t.Errorf("kind = %v, want %v", err.Kind, MisuseDoubleStart)
		}
	}()
	op := NewOperation("fatal", func(context.Context) {})
	op.Start(context.Background())
	op.Start(context.Background())
	t.Fatal("second Start did not panic")
}

// TestReceiverFuncs_NilSlots tests that unset slots are ignored
func TestReceiverFuncs_NilSlots(t *testing.T) {
	var got int
	r := ReceiverFuncs[int]{Value: func(_ context.Context, v int) { got = v }}
	r.SetError(context.Background(), errors.New("ignored"))
	r.SetStopped(context.Background())
	r.SetValue(context.Background(), 7)

	if got != 7 {
		t.Errorf("value = %d, want 7", got)
	}
}
