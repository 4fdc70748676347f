package core

import (
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"
)

var (
	// ErrStopped marks a stop completion when it has to travel as an error,
	// e.g. out of SyncWait or out of Await inside a Task body.
	ErrStopped = errors.New("operation stopped")

	// ErrContextClosed is returned when work is handed to a context that has
	// been shut down.
	ErrContextClosed = errors.New("execution context is closed")

	// ErrTimeout is the error completion of TimeoutAfter.
	ErrTimeout = errors.New("operation timed out")

	// ErrLoopAlreadyRunning is returned when Run is called on a loop that is already running.
	ErrLoopAlreadyRunning = errors.New("run loop is already running")

	// ErrAffinityViolation is returned when an AffineMutex is released on a
	// different scheduler than the one it was acquired on.
	ErrAffinityViolation = errors.New("lock released on a different scheduler than it was acquired on")
)

// IsStopped reports whether err represents a stop completion.
func IsStopped(err error) bool {
	return errors.Is(err, ErrStopped)
}

// PanicError wraps a recovered panic value together with the goroutine
// stack trace captured at the point of the panic.
type PanicError struct {
	Value any
	Stack string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v\n\n%s", e.Value, e.Stack)
}

// Unwrap returns the panic value if it was an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

func newPanicError(v any) *PanicError {
	buf := make([]byte, 8192)
	n := runtime.Stack(buf, false)
	return &PanicError{Value: v, Stack: string(buf[:n])}
}

// SpawnError records the failure of an operation spawned into a Scope.
type SpawnError struct {
	Scope   string
	SpawnID string
	Err     error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("scope %q: spawned operation %s failed: %v", e.Scope, e.SpawnID, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// =============================================================================
// Misuse: fatal-by-design programming errors
// =============================================================================

// MisuseKind classifies a misuse of the runtime.
type MisuseKind int

const (
	MisuseDoubleStart MisuseKind = iota
	MisuseDoubleCompletion
	MisuseScopeNotEmpty
	MisuseSpawnOnClosedScope
	MisuseTaskDropped
	MisuseTaskReused
)

func (k MisuseKind) String() string {
	switch k {
	case MisuseDoubleStart:
		return "operation started twice"
	case MisuseDoubleCompletion:
		return "receiver completed twice"
	case MisuseScopeNotEmpty:
		return "scope closed with operations in flight"
	case MisuseSpawnOnClosedScope:
		return "spawn on closed scope"
	case MisuseTaskDropped:
		return "task dropped without being started"
	case MisuseTaskReused:
		return "task connected more than once"
	default:
		return "unknown misuse"
	}
}

// MisuseError describes a misuse. The default handler panics with it.
type MisuseError struct {
	Kind   MisuseKind
	Detail string
}

func (e *MisuseError) Error() string {
	if e.Detail == "" {
		return "executor misuse: " + e.Kind.String()
	}
	return fmt.Sprintf("executor misuse: %s: %s", e.Kind, e.Detail)
}

// MisuseHandler is invoked for every detected misuse.
type MisuseHandler func(err *MisuseError)

// DefaultMisuseHandler terminates the offending goroutine with a panic.
func DefaultMisuseHandler(err *MisuseError) {
	panic(err)
}

var misuseHandler atomic.Pointer[MisuseHandler]

// SetMisuseHandler replaces the process-wide misuse handler and returns the
// previous one. Passing nil restores DefaultMisuseHandler.
func SetMisuseHandler(h MisuseHandler) MisuseHandler {
	if h == nil {
		h = DefaultMisuseHandler
	}
	prev := misuseHandler.Swap(&h)
	if prev == nil {
		return DefaultMisuseHandler
	}
	return *prev
}

func reportMisuse(kind MisuseKind, detail string) {
	err := &MisuseError{Kind: kind, Detail: detail}
	if h := misuseHandler.Load(); h != nil {
		(*h)(err)
		return
	}
	DefaultMisuseHandler(err)
}
