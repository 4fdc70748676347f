package core

import "context"

const defaultMaxScopeErrors = 1024

type scopeConfig struct {
	name      string
	parent    context.Context
	logger    Logger
	metrics   Metrics
	onError   func(*SpawnError)
	maxErrors int
}

// ScopeOption configures a Scope.
type ScopeOption func(*scopeConfig)

func defaultScopeConfig() scopeConfig {
	return scopeConfig{
		name:      "scope",
		parent:    context.Background(),
		logger:    NewDefaultLogger(),
		metrics:   &NilMetrics{},
		maxErrors: defaultMaxScopeErrors,
	}
}

// WithScopeName sets the name used in logs, metrics and SpawnError.
func WithScopeName(name string) ScopeOption {
	return func(c *scopeConfig) {
		if name != "" {
			c.name = name
		}
	}
}

// WithScopeParent derives the scope's stop source from ctx: cancelling ctx
// is a stop request for the whole scope.
func WithScopeParent(ctx context.Context) ScopeOption {
	return func(c *scopeConfig) {
		if ctx != nil {
			c.parent = ctx
		}
	}
}

// WithScopeLogger sets the logger spawn errors are reported to.
func WithScopeLogger(l Logger) ScopeOption {
	return func(c *scopeConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithScopeMetrics sets the metrics sink for in-flight counts and spawn errors.
func WithScopeMetrics(m Metrics) ScopeOption {
	return func(c *scopeConfig) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithErrorHandler registers fn to be called with every spawn error, on the
// goroutine that completed the failing operation.
func WithErrorHandler(fn func(*SpawnError)) ScopeOption {
	return func(c *scopeConfig) {
		c.onError = fn
	}
}

// WithMaxErrors caps how many spawn errors Errors() retains; later errors are
// still logged and counted. Zero means unlimited. It panics if n is negative.
func WithMaxErrors(n int) ScopeOption {
	return func(c *scopeConfig) {
		if n < 0 {
			panic("executor: max errors must be non-negative")
		}
		c.maxErrors = n
	}
}
