package executor

import (
	"context"
	"time"

	"github.com/Swind/go-executor/core"
)

// Re-export commonly used types from core package for convenience.
// This allows users to import only the executor package for most use cases.

// WorkFunc is the unit of work (Closure) executed by a context
type WorkFunc = core.WorkFunc

// ExecutionContext runs work items on one dedicated goroutine
type ExecutionContext = core.ExecutionContext

// TimedContext releases work at deadlines
type TimedContext = core.TimedContext

// ContextConfig configures execution and timed contexts
type ContextConfig = core.ContextConfig

// Scheduler is a lightweight handle naming an execution context
type Scheduler = core.Scheduler

// TimedScheduler is a Scheduler that can release work after a delay
type TimedScheduler = core.TimedScheduler

// Scope groups spawned operations for joint stop and drain
type Scope = core.Scope

// ScopeOption configures a Scope
type ScopeOption = core.ScopeOption

// Co is the handle a task body awaits with
type Co = core.Co

// Operation protocol
type (
	Sender[T any]        = core.Sender[T]
	Receiver[T any]      = core.Receiver[T]
	Operation            = core.Operation
	Task[T any]          = core.Task[T]
	ReceiverFuncs[T any] = core.ReceiverFuncs[T]
)

// TaskWithResult and ReplyWithResult for generic PostTaskAndReply pattern
type TaskWithResult[T any] = core.TaskWithResult[T]
type ReplyWithResult[T any] = core.ReplyWithResult[T]

// Errors
var (
	ErrStopped       = core.ErrStopped
	ErrContextClosed = core.ErrContextClosed
	ErrTimeout       = core.ErrTimeout
)

// Constructors
var (
	NewExecutionContext           = core.NewExecutionContext
	NewExecutionContextWithConfig = core.NewExecutionContextWithConfig
	NewTimedContext               = core.NewTimedContext
	NewTimedContextWithConfig     = core.NewTimedContextWithConfig
	NewScope                      = core.NewScope
	DefaultContextConfig          = core.DefaultContextConfig
)

// Scope options
var (
	WithScopeName    = core.WithScopeName
	WithScopeParent  = core.WithScopeParent
	WithScopeLogger  = core.WithScopeLogger
	WithScopeMetrics = core.WithScopeMetrics
	WithErrorHandler = core.WithErrorHandler
	WithMaxErrors    = core.WithMaxErrors
)

// CurrentScheduler retrieves the scheduler the caller is running on
var CurrentScheduler = core.CurrentScheduler

// IsStopped reports whether err represents a stop completion
var IsStopped = core.IsStopped

// NewTask creates a Task that runs body when started.
func NewTask[T any](body func(co *Co) (T, error)) *Task[T] {
	return core.NewTask(body)
}

// Await suspends the task body until s completes.
func Await[T any](co *Co, s Sender[T]) (T, error) {
	return core.Await(co, s)
}

// Just completes synchronously with v.
func Just[T any](v T) Sender[T] {
	return core.Just(v)
}

// JustError completes synchronously with err.
func JustError[T any](err error) Sender[T] {
	return core.JustError[T](err)
}

// Then runs fn on the value of s.
func Then[T, U any](s Sender[T], fn func(T) (U, error)) Sender[U] {
	return core.Then(s, fn)
}

// LetValue chains to the sender fn builds from the value of s.
func LetValue[T, U any](s Sender[T], fn func(T) Sender[U]) Sender[U] {
	return core.LetValue(s, fn)
}

// StartsOn makes s begin execution on sch.
func StartsOn[T any](sch Scheduler, s Sender[T]) Sender[T] {
	return core.StartsOn(sch, s)
}

// ContinuesOn delivers every completion of s on sch.
func ContinuesOn[T any](sch Scheduler, s Sender[T]) Sender[T] {
	return core.ContinuesOn(sch, s)
}

// Race completes with whichever sender completes first.
func Race[T any](senders ...Sender[T]) Sender[T] {
	return core.Race(senders...)
}

// WhenAll completes with every value once all senders succeeded.
func WhenAll[T any](senders ...Sender[T]) Sender[[]T] {
	return core.WhenAll(senders...)
}

// WithTimeout races work against a timer on s.
func WithTimeout[T any](work Sender[T], s TimedScheduler, d time.Duration) Sender[T] {
	return core.WithTimeout(work, s, d)
}

// Spawn starts snd inside scope.
func Spawn[T any](scope *Scope, snd Sender[T]) {
	core.Spawn(scope, snd)
}

// SyncWait blocks until s completes.
func SyncWait[T any](s Sender[T]) (T, error) {
	return core.SyncWait(s)
}

// SyncWaitContext is SyncWait with a parent context acting as stop source.
func SyncWaitContext[T any](ctx context.Context, s Sender[T]) (T, error) {
	return core.SyncWaitContext(ctx, s)
}
