package core

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/oklog/ulid/v2"
)

// Scope is a structured-concurrency container: it tracks the operations
// spawned into it, lets them be stopped as a group, and exposes OnEmpty to
// wait until the set drains.
//
// A Scope must not be closed while operations are in flight. The teardown
// idiom is RequestStop, then a blocking wait on OnEmpty, then Close (Drain
// does all three).
//
// Hazard: if a spawned operation needs the goroutine or object that is
// blocked waiting on OnEmpty (e.g. an owner whose teardown drains the scope
// while the spawned work re-enters the owner), the wait never completes.
// This is not detected; split "stop" from "release" so the drain happens
// before the owner gives up its last reference.
type Scope struct {
	name    string
	logger  Logger
	metrics Metrics
	onError func(*SpawnError)

	ctx    context.Context
	cancel context.CancelFunc

	inFlight atomic.Int64
	spawned  atomic.Int64

	mu      sync.Mutex
	waiters []*emptyWaiter
	closed  bool

	errMu         sync.Mutex
	errs          []*SpawnError
	maxErrors     int
	droppedErrors int
}

// NewScope creates an empty scope.
func NewScope(opts ...ScopeOption) *Scope {
	cfg := defaultScopeConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	ctx, cancel := context.WithCancel(cfg.parent)
	return &Scope{
		name:      cfg.name,
		logger:    cfg.logger,
		metrics:   cfg.metrics,
		onError:   cfg.onError,
		ctx:       ctx,
		cancel:    cancel,
		maxErrors: cfg.maxErrors,
	}
}

// Name returns the scope name.
func (s *Scope) Name() string { return s.name }

// Spawn starts snd immediately, fire-and-forget, tracking it in the scope.
func (s *Scope) Spawn(snd Sender[struct{}]) {
	Spawn(s, snd)
}

// Spawn starts snd inside sc. The operation starts on the calling goroutine
// with the scope's stop source as its environment; its value is discarded,
// its error is recorded and reported, a stop is silent.
func Spawn[T any](sc *Scope, snd Sender[T]) {
	sc.mu.Lock()
	if sc.closed {
		sc.mu.Unlock()
		reportMisuse(MisuseSpawnOnClosedScope, sc.name)
		return
	}
	n := sc.inFlight.Add(1)
	sc.mu.Unlock()

	sc.spawned.Add(1)
	sc.metrics.RecordScopeInFlight(sc.name, int(n))

	r := &spawnReceiver[T]{scope: sc, id: ulid.Make().String()}
	snd.Connect(Once("spawn", Receiver[T](r))).Start(sc.ctx)
}

// RequestStop asks every spawned operation to stop at its next cancellation point.
func (s *Scope) RequestStop() {
	s.logger.Debug("scope stop requested", F("scope", s.name), F("in_flight", s.InFlight()))
	s.cancel()
}

// StopRequested reports whether RequestStop was called.
func (s *Scope) StopRequested() bool { return s.ctx.Err() != nil }

// InFlight returns the number of spawned operations that have not completed.
func (s *Scope) InFlight() int { return int(s.inFlight.Load()) }

// Errors returns the recorded spawn errors, oldest first.
func (s *Scope) Errors() []*SpawnError {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	out := make([]*SpawnError, len(s.errs))
	copy(out, s.errs)
	return out
}

// OnEmpty returns a sender that completes once no spawned operation is in
// flight. It completes synchronously when the scope is already empty.
// Stopping an OnEmpty operation completes it as stopped.
func (s *Scope) OnEmpty() Sender[struct{}] {
	return SenderFunc[struct{}](func(r Receiver[struct{}]) Operation {
		r = Once("on_empty", r)
		return NewOperation("on_empty", func(ctx context.Context) {
			w := &emptyWaiter{}
			w.fire = func(doneCtx context.Context) {
				if w.claim() {
					w.stop()
					r.SetValue(rebase(ctx, doneCtx), struct{}{})
				}
			}

			s.mu.Lock()
			if s.inFlight.Load() == 0 {
				s.mu.Unlock()
				r.SetValue(ctx, struct{}{})
				return
			}
			w.stop = context.AfterFunc(ctx, func() {
				if w.claim() {
					s.removeWaiter(w)
					r.SetStopped(detach(ctx))
				}
			})
			s.waiters = append(s.waiters, w)
			s.mu.Unlock()
		})
	})
}

// Close releases the scope. Closing with operations in flight is a misuse.
func (s *Scope) Close() {
	s.mu.Lock()
	if n := s.inFlight.Load(); n != 0 {
		s.mu.Unlock()
		reportMisuse(MisuseScopeNotEmpty, s.name)
		return
	}
	s.closed = true
	s.mu.Unlock()
	s.cancel()
}

// Drain requests stop, blocks until the scope is empty, then closes it.
// Cancelling ctx abandons the wait and leaves the scope open.
func (s *Scope) Drain(ctx context.Context) error {
	s.RequestStop()
	if _, err := SyncWaitContext(ctx, s.OnEmpty()); err != nil {
		return err
	}
	s.Close()
	return nil
}

// Stats returns a snapshot of the scope state.
func (s *Scope) Stats() ScopeStats {
	s.errMu.Lock()
	errCount, dropped := len(s.errs), s.droppedErrors
	s.errMu.Unlock()
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	return ScopeStats{
		Name:          s.name,
		InFlight:      s.InFlight(),
		Spawned:       s.spawned.Load(),
		Errors:        errCount,
		DroppedErrors: dropped,
		StopRequested: s.StopRequested(),
		Closed:        closed,
	}
}

func (s *Scope) release(ctx context.Context) {
	n := s.inFlight.Add(-1)
	s.metrics.RecordScopeInFlight(s.name, int(n))
	if n != 0 {
		return
	}

	s.mu.Lock()
	var ready []*emptyWaiter
	if s.inFlight.Load() == 0 {
		ready, s.waiters = s.waiters, nil
	}
	s.mu.Unlock()

	for _, w := range ready {
		w.fire(ctx)
	}
}

func (s *Scope) removeWaiter(w *emptyWaiter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, other := range s.waiters {
		if other == w {
			s.waiters = append(s.waiters[:i], s.waiters[i+1:]...)
			return
		}
	}
}

func (s *Scope) recordError(id string, err error) {
	se := &SpawnError{Scope: s.name, SpawnID: id, Err: err}

	s.errMu.Lock()
	if s.maxErrors > 0 && len(s.errs) >= s.maxErrors {
		s.droppedErrors++
	} else {
		s.errs = append(s.errs, se)
	}
	s.errMu.Unlock()

	s.logger.Error("spawned operation failed", F("scope", s.name), F("spawn_id", id), F("error", err))
	s.metrics.RecordSpawnError(s.name)
	if s.onError != nil {
		s.onError(se)
	}
}

type emptyWaiter struct {
	done atomic.Bool
	fire func(ctx context.Context)
	stop func() bool
}

func (w *emptyWaiter) claim() bool { return w.done.CompareAndSwap(false, true) }

type spawnReceiver[T any] struct {
	scope *Scope
	id    string
}

func (r *spawnReceiver[T]) SetValue(ctx context.Context, _ T) {
	r.scope.release(ctx)
}

func (r *spawnReceiver[T]) SetError(ctx context.Context, err error) {
	r.scope.recordError(r.id, err)
	r.scope.release(ctx)
}

func (r *spawnReceiver[T]) SetStopped(ctx context.Context) {
	r.scope.release(ctx)
}
