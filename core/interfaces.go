package core

import (
	"context"
	"time"
)

// =============================================================================
// PanicHandler: Interface for handling work item panics
// =============================================================================

// PanicHandler is called when a work item panics on a context goroutine.
//
// Implementations should be thread-safe as they may be called concurrently
// from different contexts.
type PanicHandler interface {
	// HandlePanic is called when a work item panics.
	//
	// Parameters:
	// - ctx: The context the work item ran with (carries the current scheduler)
	// - contextName: The name of the execution context where the panic occurred
	// - panicInfo: The panic value recovered from the work item
	// - stackTrace: The stack trace at the time of panic
	HandlePanic(ctx context.Context, contextName string, panicInfo any, stackTrace []byte)
}

// DefaultPanicHandler reports panics through a Logger.
type DefaultPanicHandler struct {
	Logger Logger
}

// HandlePanic logs the panic at error level.
func (h *DefaultPanicHandler) HandlePanic(ctx context.Context, contextName string, panicInfo any, stackTrace []byte) {
	logger := h.Logger
	if logger == nil {
		logger = NewDefaultLogger()
	}
	logger.Error("work item panicked",
		F("context", contextName),
		F("panic", panicInfo),
		F("stack", string(stackTrace)))
}

// =============================================================================
// Metrics: Interface for observability and monitoring
// =============================================================================

// Metrics defines the interface for collecting runtime metrics.
// Implementations can send metrics to monitoring systems (Prometheus, StatsD, etc.).
//
// Methods should be non-blocking and fast; they are called from context
// goroutines while work is being executed.
type Metrics interface {
	// RecordTaskDuration records how long a work item took to execute.
	RecordTaskDuration(contextName string, duration time.Duration)

	// RecordTaskPanic records that a work item panicked during execution.
	RecordTaskPanic(contextName string, panicInfo any)

	// RecordQueueDepth records the queue depth observed after an enqueue.
	RecordQueueDepth(contextName string, depth int)

	// RecordTaskRejected records that a work item was rejected (e.g., during shutdown).
	RecordTaskRejected(contextName string, reason string)

	// RecordTimerFired records a released timer entry and how late it fired.
	RecordTimerFired(contextName string, lateness time.Duration)

	// RecordTimerCancelled records a timer entry removed by a stop request.
	RecordTimerCancelled(contextName string)

	// RecordScopeInFlight records the in-flight count of a scope after it changed.
	RecordScopeInFlight(scopeName string, inFlight int)

	// RecordSpawnError records an error completion of a spawned operation.
	RecordSpawnError(scopeName string)
}

// NilMetrics provides a no-op metrics implementation that does nothing.
// This is the default when no metrics interface is provided.
type NilMetrics struct{}

func (m *NilMetrics) RecordTaskDuration(contextName string, duration time.Duration) {}
func (m *NilMetrics) RecordTaskPanic(contextName string, panicInfo any)            {}
func (m *NilMetrics) RecordQueueDepth(contextName string, depth int)               {}
func (m *NilMetrics) RecordTaskRejected(contextName string, reason string)         {}
func (m *NilMetrics) RecordTimerFired(contextName string, lateness time.Duration)  {}
func (m *NilMetrics) RecordTimerCancelled(contextName string)                      {}
func (m *NilMetrics) RecordScopeInFlight(scopeName string, inFlight int)           {}
func (m *NilMetrics) RecordSpawnError(scopeName string)                            {}

// =============================================================================
// RejectedTaskHandler: Interface for handling rejected work
// =============================================================================

// RejectedTaskHandler is called when a context refuses a work item because it
// has been shut down. Enqueue after shutdown is a programming error; this is
// where it gets reported.
//
// Implementations should be thread-safe as they may be called concurrently.
type RejectedTaskHandler interface {
	HandleRejectedTask(contextName string, reason string)
}

// DefaultRejectedTaskHandler reports rejected work through a Logger.
type DefaultRejectedTaskHandler struct {
	Logger Logger
}

// HandleRejectedTask logs the rejected work item.
func (h *DefaultRejectedTaskHandler) HandleRejectedTask(contextName string, reason string) {
	logger := h.Logger
	if logger == nil {
		logger = NewDefaultLogger()
	}
	logger.Warn("work item rejected", F("context", contextName), F("reason", reason))
}

// =============================================================================
// ContextConfig: Configuration for execution and timed contexts
// =============================================================================

// ContextConfig holds configuration options for ExecutionContext, TimedContext
// and RunLoop. All fields are optional; nil fields fall back to defaults.
type ContextConfig struct {
	// Name identifies the context in logs, metrics and stats.
	Name string

	// Logger receives lifecycle and failure messages. Defaults to DefaultLogger.
	Logger Logger

	// PanicHandler is called when a work item panics. Defaults to DefaultPanicHandler.
	PanicHandler PanicHandler

	// Metrics is called to record execution metrics. Defaults to NilMetrics.
	Metrics Metrics

	// RejectedTaskHandler is called when work is rejected. Defaults to DefaultRejectedTaskHandler.
	RejectedTaskHandler RejectedTaskHandler
}

// DefaultContextConfig returns a config with default handlers.
func DefaultContextConfig() *ContextConfig {
	logger := NewDefaultLogger()
	return &ContextConfig{
		Logger:              logger,
		PanicHandler:        &DefaultPanicHandler{Logger: logger},
		Metrics:             &NilMetrics{},
		RejectedTaskHandler: &DefaultRejectedTaskHandler{Logger: logger},
	}
}

// withDefaults returns a copy of cfg with every nil field filled in.
func (cfg *ContextConfig) withDefaults(name string) ContextConfig {
	var out ContextConfig
	if cfg != nil {
		out = *cfg
	}
	if out.Name == "" {
		out.Name = name
	}
	if out.Logger == nil {
		out.Logger = NewDefaultLogger()
	}
	if out.PanicHandler == nil {
		out.PanicHandler = &DefaultPanicHandler{Logger: out.Logger}
	}
	if out.Metrics == nil {
		out.Metrics = &NilMetrics{}
	}
	if out.RejectedTaskHandler == nil {
		out.RejectedTaskHandler = &DefaultRejectedTaskHandler{Logger: out.Logger}
	}
	return out
}
