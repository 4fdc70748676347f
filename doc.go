// Package executor provides a structured-concurrency runtime for Go.
//
// Work is described as senders (not-yet-started asynchronous operations),
// scheduled onto specific execution contexts, composed with combinators,
// cancelled as a group, and torn down without dangling operations.
//
// # Quick Start
//
// Initialize the global runtime at application startup:
//
//	executor.InitGlobalRuntime(nil)
//	defer executor.ShutdownGlobalRuntime(context.Background())
//
// Spawn a task that hops to a dedicated context and sleeps on the timer:
//
//	rt := executor.GlobalRuntime()
//	ui := rt.Context("ui")
//	rt.Spawn(executor.NewTask(func(co *executor.Co) (struct{}, error) {
//		if _, err := executor.Await(co, ui.Schedule()); err != nil {
//			return struct{}{}, err
//		}
//		// Running on the "ui" goroutine.
//		_, err := executor.Await(co, rt.Timer().Scheduler().ScheduleAfter(time.Second))
//		return struct{}{}, err
//	}))
//
// # Key Concepts
//
// ExecutionContext: a dedicated goroutine running a FIFO of work items. Work
// posted to it runs in order, one item at a time, so state owned by a context
// needs no locks.
//
// TimedContext: a goroutine releasing work at deadlines, in deadline order,
// either on itself or on a target scheduler.
//
// Sender / Receiver / Operation: the operation protocol. Connect binds a sender
// to a receiver; Start runs it; the receiver gets exactly one of value, error
// or stopped. The context passed to Start carries the stop request
// (cancellation) and the current scheduler.
//
// Task: a coroutine-style sender. Its body suspends at Await and resumes on
// whichever context completed the awaited operation.
//
// Scope: tracks spawned operations, stops them as a group, and reports when
// it is empty. A scope must be drained before it is closed.
//
// SyncWait: blocks the calling goroutine until a sender completes, pumping a
// private run loop meanwhile.
//
// # Thread Safety
//
// Enqueue, Spawn, RequestStop and scheduler handles are safe for concurrent
// use. A Task body and its Co handle must only be used by that body.
//
// For more details, see https://github.com/Swind/go-executor
package executor
