package core

import "context"

// TaskWithResult computes a value on the target context.
type TaskWithResult[T any] func(ctx context.Context) (T, error)

// ReplyWithResult receives the result of a TaskWithResult on the reply context.
type ReplyWithResult[T any] func(ctx context.Context, result T, err error)

// TaskAndReply runs task on target and delivers its completion on replyOn.
//
// Execution guarantee (Happens-Before):
// - The task ALWAYS completes before the reply side observes the result
// - A panic inside task becomes a *PanicError error completion
func TaskAndReply[T any](target Scheduler, task TaskWithResult[T], replyOn Scheduler) Sender[T] {
	return ContinuesOn(replyOn, StartsOn(target, Func(task)))
}

// PostTaskAndReplyWithResult runs task on target, then reply on replyOn, as a
// single operation spawned into scope. The reply sees the error of a failed
// task; it is skipped when the operation is stopped.
//
// Example:
//
//	PostTaskAndReplyWithResult(
//	    scope,
//	    worker.Scheduler(),
//	    func(ctx context.Context) (int, error) {
//	        return len("Hello"), nil
//	    },
//	    func(ctx context.Context, length int, err error) {
//	        fmt.Printf("Length: %d\n", length)
//	    },
//	    ui.Scheduler(),
//	)
func PostTaskAndReplyWithResult[T any](
	scope *Scope,
	target Scheduler,
	task TaskWithResult[T],
	reply ReplyWithResult[T],
	replyOn Scheduler,
) {
	work := TaskAndReply(target, task, replyOn)
	Spawn(scope, SenderFunc[struct{}](func(r Receiver[struct{}]) Operation {
		return work.Connect(ReceiverFuncs[T]{
			Value: func(ctx context.Context, v T) {
				_, err := callRecover(func() (struct{}, error) {
					reply(ctx, v, nil)
					return struct{}{}, nil
				})
				complete(ctx, r, struct{}{}, err)
			},
			Error: func(ctx context.Context, taskErr error) {
				var zero T
				_, err := callRecover(func() (struct{}, error) {
					reply(ctx, zero, taskErr)
					return struct{}{}, nil
				})
				complete(ctx, r, struct{}{}, err)
			},
			Stopped: r.SetStopped,
		})
	}))
}
