package core

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func quietConfig(name string) *ContextConfig {
	return &ContextConfig{Name: name, Logger: NewNoOpLogger()}
}

// newTestExecutionContext starts a quiet execution context stopped at cleanup.
func newTestExecutionContext(t *testing.T, name string) *ExecutionContext {
	t.Helper()
	ec := NewExecutionContextWithConfig(quietConfig(name))
	t.Cleanup(ec.Stop)
	return ec
}

// newTestTimedContext starts a quiet timed context stopped at cleanup.
func newTestTimedContext(t *testing.T, name string) *TimedContext {
	t.Helper()
	tc := NewTimedContextWithConfig(quietConfig(name))
	t.Cleanup(tc.Stop)
	return tc
}

// recorder is a Receiver that remembers its single completion.
type recorder[T any] struct {
	mu    sync.Mutex
	done  chan struct{}
	calls int
	kind  completionKind
	value T
	err   error
	ctx   context.Context
}

func newRecorder[T any]() *recorder[T] {
	return &recorder[T]{done: make(chan struct{})}
}

func (r *recorder[T]) record(ctx context.Context, kind completionKind, v T, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.calls > 1 {
		return
	}
	r.kind, r.value, r.err, r.ctx = kind, v, err, ctx
	close(r.done)
}

func (r *recorder[T]) SetValue(ctx context.Context, v T) {
	r.record(ctx, completedValue, v, nil)
}

func (r *recorder[T]) SetError(ctx context.Context, err error) {
	var zero T
	r.record(ctx, completedError, zero, err)
}

func (r *recorder[T]) SetStopped(ctx context.Context) {
	var zero T
	r.record(ctx, completedStopped, zero, nil)
}

func (r *recorder[T]) completed() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

func (r *recorder[T]) wait(t *testing.T) {
	t.Helper()
	select {
	case <-r.done:
	case <-time.After(2 * time.Second):
		t.Fatal("operation did not complete")
	}
}

// trigger is a sender completed by hand from the test goroutine.
type trigger[T any] struct {
	mu      sync.Mutex
	r       Receiver[T]
	ctx     context.Context
	started chan struct{}
}

func newTrigger[T any]() *trigger[T] {
	return &trigger[T]{started: make(chan struct{})}
}

func (tr *trigger[T]) Connect(r Receiver[T]) Operation {
	return NewOperation("trigger", func(ctx context.Context) {
		tr.mu.Lock()
		tr.r, tr.ctx = r, ctx
		tr.mu.Unlock()
		close(tr.started)
	})
}

func (tr *trigger[T]) waitStarted(t *testing.T) {
	t.Helper()
	select {
	case <-tr.started:
	case <-time.After(2 * time.Second):
		t.Fatal("trigger was never started")
	}
}

func (tr *trigger[T]) fire(v T) {
	tr.mu.Lock()
	r, ctx := tr.r, tr.ctx
	tr.mu.Unlock()
	r.SetValue(ctx, v)
}

func (tr *trigger[T]) fail(err error) {
	tr.mu.Lock()
	r, ctx := tr.r, tr.ctx
	tr.mu.Unlock()
	r.SetError(ctx, err)
}

// misuseLog swaps the process-wide misuse handler for one that records.
type misuseLog struct {
	mu    sync.Mutex
	kinds []MisuseKind
}

func captureMisuse(t *testing.T) *misuseLog {
	t.Helper()
	l := &misuseLog{}
	prev := SetMisuseHandler(func(err *MisuseError) {
		l.mu.Lock()
		l.kinds = append(l.kinds, err.Kind)
		l.mu.Unlock()
	})
	t.Cleanup(func() { SetMisuseHandler(prev) })
	return l
}

func (l *misuseLog) Kinds() []MisuseKind {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]MisuseKind(nil), l.kinds...)
}
