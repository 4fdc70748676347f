package executor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/Swind/go-executor/core"
)

// RuntimeConfig configures a Runtime. Nil fields fall back to core defaults.
type RuntimeConfig struct {
	Name                string
	Logger              core.Logger
	Metrics             core.Metrics
	PanicHandler        core.PanicHandler
	RejectedTaskHandler core.RejectedTaskHandler
}

// Runtime bundles what an application typically needs: one timed context,
// named execution contexts created on demand, and a root scope that owns
// everything spawned through it.
type Runtime struct {
	cfg RuntimeConfig

	mu       sync.Mutex
	timer    *core.TimedContext
	contexts map[string]*core.ExecutionContext
	scope    *core.Scope
	closed   bool
}

// RuntimeStats is a snapshot of every context and the root scope.
type RuntimeStats struct {
	Timer    core.TimerStats
	Contexts []core.ContextStats
	Scope    core.ScopeStats
}

// NewRuntime creates a runtime and starts its timed context.
func NewRuntime(cfg *RuntimeConfig) *Runtime {
	var c RuntimeConfig
	if cfg != nil {
		c = *cfg
	}
	if c.Name == "" {
		c.Name = "runtime"
	}
	if c.Logger == nil {
		c.Logger = core.NewDefaultLogger()
	}
	if c.Metrics == nil {
		c.Metrics = &core.NilMetrics{}
	}

	rt := &Runtime{
		cfg:      c,
		contexts: make(map[string]*core.ExecutionContext),
	}
	rt.timer = core.NewTimedContextWithConfig(rt.contextConfig(c.Name + ".timer"))
	rt.scope = core.NewScope(
		core.WithScopeName(c.Name),
		core.WithScopeLogger(c.Logger),
		core.WithScopeMetrics(c.Metrics),
	)
	return rt
}

func (rt *Runtime) contextConfig(name string) *core.ContextConfig {
	return &core.ContextConfig{
		Name:                name,
		Logger:              rt.cfg.Logger,
		Metrics:             rt.cfg.Metrics,
		PanicHandler:        rt.cfg.PanicHandler,
		RejectedTaskHandler: rt.cfg.RejectedTaskHandler,
	}
}

// Name returns the runtime name.
func (rt *Runtime) Name() string { return rt.cfg.Name }

// Timer returns the runtime's timed context.
func (rt *Runtime) Timer() *core.TimedContext { return rt.timer }

// Scope returns the root scope.
func (rt *Runtime) Scope() *core.Scope { return rt.scope }

// Context returns the execution context called name, starting it on first use.
// It panics if the runtime has been shut down.
func (rt *Runtime) Context(name string) *core.ExecutionContext {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	if ec, ok := rt.contexts[name]; ok {
		return ec
	}
	if rt.closed {
		panic(fmt.Sprintf("executor: runtime %q is shut down, cannot create context %q", rt.cfg.Name, name))
	}
	ec := core.NewExecutionContextWithConfig(rt.contextConfig(name))
	rt.contexts[name] = ec
	return ec
}

// Spawn starts snd in the root scope.
func (rt *Runtime) Spawn(snd core.Sender[struct{}]) {
	rt.scope.Spawn(snd)
}

// Shutdown stops everything spawned in the root scope, waits for it to drain,
// then stops every context. Cancelling ctx abandons the drain; the contexts
// are stopped regardless, which completes their pending work as stopped.
func (rt *Runtime) Shutdown(ctx context.Context) error {
	rt.mu.Lock()
	if rt.closed {
		rt.mu.Unlock()
		return nil
	}
	rt.closed = true
	rt.mu.Unlock()

	drainErr := rt.scope.Drain(ctx)

	rt.mu.Lock()
	contexts := make([]*core.ExecutionContext, 0, len(rt.contexts))
	for _, ec := range rt.contexts {
		contexts = append(contexts, ec)
	}
	rt.mu.Unlock()

	rt.timer.Stop()
	for _, ec := range contexts {
		ec.Stop()
	}

	if drainErr != nil && !errors.Is(drainErr, core.ErrStopped) {
		return fmt.Errorf("drain runtime %q: %w", rt.cfg.Name, drainErr)
	}
	if drainErr != nil {
		return fmt.Errorf("drain runtime %q: %w", rt.cfg.Name, ctx.Err())
	}
	rt.cfg.Logger.Info("runtime shut down", core.F("runtime", rt.cfg.Name), core.F("contexts", len(contexts)))
	return nil
}

// IsClosed reports whether Shutdown has been called.
func (rt *Runtime) IsClosed() bool {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.closed
}

// Stats returns a snapshot of every context, sorted by name, and the root scope.
func (rt *Runtime) Stats() RuntimeStats {
	rt.mu.Lock()
	contexts := make([]core.ContextStats, 0, len(rt.contexts))
	for _, ec := range rt.contexts {
		contexts = append(contexts, ec.Stats())
	}
	rt.mu.Unlock()

	sort.Slice(contexts, func(i, j int) bool { return contexts[i].Name < contexts[j].Name })
	return RuntimeStats{
		Timer:    rt.timer.Stats(),
		Contexts: contexts,
		Scope:    rt.scope.Stats(),
	}
}

// =============================================================================
// Global Runtime Helper (Singleton)
// =============================================================================

var (
	globalRuntime *Runtime
	globalMu      sync.Mutex
)

// InitGlobalRuntime initializes the global runtime. Subsequent calls are no-ops
// until ShutdownGlobalRuntime.
func InitGlobalRuntime(cfg *RuntimeConfig) {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalRuntime != nil {
		return // Already initialized
	}

	globalRuntime = NewRuntime(cfg)
}

// GlobalRuntime returns the global runtime instance.
// It panics if InitGlobalRuntime has not been called.
func GlobalRuntime() *Runtime {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalRuntime == nil {
		panic("GlobalRuntime not initialized. Call InitGlobalRuntime() first.")
	}
	return globalRuntime
}

// ShutdownGlobalRuntime drains and stops the global runtime.
func ShutdownGlobalRuntime(ctx context.Context) error {
	globalMu.Lock()
	rt := globalRuntime
	globalRuntime = nil
	globalMu.Unlock()

	if rt == nil {
		return nil
	}
	return rt.Shutdown(ctx)
}
