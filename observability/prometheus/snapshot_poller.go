package prometheus

import (
	"context"
	"sync"
	"time"

	"github.com/Swind/go-executor/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// ContextSnapshotProvider provides current execution context stats snapshots.
type ContextSnapshotProvider interface {
	Stats() core.ContextStats
}

// TimerSnapshotProvider provides current timed context stats snapshots.
type TimerSnapshotProvider interface {
	Stats() core.TimerStats
}

// ScopeSnapshotProvider provides current scope stats snapshots.
type ScopeSnapshotProvider interface {
	Stats() core.ScopeStats
}

// SnapshotPoller periodically exports context/timer/scope Stats() snapshots into Prometheus gauges.
type SnapshotPoller struct {
	interval time.Duration

	mu       sync.RWMutex
	contexts map[string]ContextSnapshotProvider
	timers   map[string]TimerSnapshotProvider
	scopes   map[string]ScopeSnapshotProvider

	contextPending  *prom.GaugeVec
	contextRunning  *prom.GaugeVec
	contextExecuted *prom.GaugeVec
	contextRejected *prom.GaugeVec
	contextClosed   *prom.GaugeVec

	timerPending *prom.GaugeVec
	timerFired   *prom.GaugeVec
	timerClosed  *prom.GaugeVec

	scopeSpawned       *prom.GaugeVec
	scopeErrors        *prom.GaugeVec
	scopeDroppedErrors *prom.GaugeVec
	scopeStopRequested *prom.GaugeVec
	scopeClosed        *prom.GaugeVec

	stateMu sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func newGauge(name, help string, labels ...string) *prom.GaugeVec {
	return prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "executor",
		Name:      name,
		Help:      help,
	}, labels)
}

// NewSnapshotPoller creates a snapshot poller and registers its collectors.
func NewSnapshotPoller(reg prom.Registerer, interval time.Duration) (*SnapshotPoller, error) {
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	if interval <= 0 {
		interval = time.Second
	}

	p := &SnapshotPoller{
		interval: interval,
		contexts: make(map[string]ContextSnapshotProvider),
		timers:   make(map[string]TimerSnapshotProvider),
		scopes:   make(map[string]ScopeSnapshotProvider),

		contextPending:  newGauge("context_pending", "Queued work items per context.", "context", "type"),
		contextRunning:  newGauge("context_running", "Work items currently executing per context.", "context", "type"),
		contextExecuted: newGauge("context_executed_total", "Executed work item count snapshot.", "context", "type"),
		contextRejected: newGauge("context_rejected_total", "Rejected work item count snapshot.", "context", "type"),
		contextClosed:   newGauge("context_closed", "Context closed state (1=closed, 0=open).", "context", "type"),

		timerPending: newGauge("timer_pending", "Pending timer entries per timed context.", "context"),
		timerFired:   newGauge("timer_fired_total", "Released timer entry count snapshot.", "context"),
		timerClosed:  newGauge("timer_closed", "Timed context closed state (1=closed, 0=open).", "context"),

		scopeSpawned:       newGauge("scope_spawned_total", "Spawned operation count snapshot.", "scope"),
		scopeErrors:        newGauge("scope_recorded_errors", "Spawn errors retained by the scope.", "scope"),
		scopeDroppedErrors: newGauge("scope_dropped_errors", "Spawn errors beyond the retention cap.", "scope"),
		scopeStopRequested: newGauge("scope_stop_requested", "Scope stop state (1=stop requested, 0=running).", "scope"),
		scopeClosed:        newGauge("scope_closed", "Scope closed state (1=closed, 0=open).", "scope"),
	}

	for _, g := range []**prom.GaugeVec{
		&p.contextPending, &p.contextRunning, &p.contextExecuted, &p.contextRejected, &p.contextClosed,
		&p.timerPending, &p.timerFired, &p.timerClosed,
		&p.scopeSpawned, &p.scopeErrors, &p.scopeDroppedErrors, &p.scopeStopRequested, &p.scopeClosed,
	} {
		registered, err := registerCollector(reg, *g)
		if err != nil {
			return nil, err
		}
		*g = registered
	}
	return p, nil
}

// AddContext adds or replaces an execution context snapshot provider by name.
func (p *SnapshotPoller) AddContext(name string, provider ContextSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	p.mu.Lock()
	p.contexts[normalizeLabel(name, "context")] = provider
	p.mu.Unlock()
}

// AddTimer adds or replaces a timed context snapshot provider by name.
func (p *SnapshotPoller) AddTimer(name string, provider TimerSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	p.mu.Lock()
	p.timers[normalizeLabel(name, "timer")] = provider
	p.mu.Unlock()
}

// AddScope adds or replaces a scope snapshot provider by name.
func (p *SnapshotPoller) AddScope(name string, provider ScopeSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	p.mu.Lock()
	p.scopes[normalizeLabel(name, "scope")] = provider
	p.mu.Unlock()
}

// Start begins periodic polling; repeated calls are no-ops.
func (p *SnapshotPoller) Start(ctx context.Context) {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if p.running {
		p.stateMu.Unlock()
		return
	}
	pollCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true
	p.stateMu.Unlock()

	go p.loop(pollCtx, p.done)
}

// Stop stops periodic polling; repeated calls are safe.
func (p *SnapshotPoller) Stop() {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if !p.running {
		p.stateMu.Unlock()
		return
	}
	cancel := p.cancel
	done := p.done
	p.stateMu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	p.stateMu.Lock()
	p.running = false
	p.cancel = nil
	p.done = nil
	p.stateMu.Unlock()
}

func (p *SnapshotPoller) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.CollectOnce()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.CollectOnce()
		}
	}
}

func boolGauge(v bool) float64 {
	if v {
		return 1
	}
	return 0
}

// CollectOnce takes one snapshot of every registered provider.
func (p *SnapshotPoller) CollectOnce() {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for name, provider := range p.contexts {
		stats := provider.Stats()
		typeLabel := normalizeLabel(stats.Type, "unknown")
		p.contextPending.WithLabelValues(name, typeLabel).Set(float64(stats.Pending))
		p.contextRunning.WithLabelValues(name, typeLabel).Set(float64(stats.Running))
		p.contextExecuted.WithLabelValues(name, typeLabel).Set(float64(stats.Executed))
		p.contextRejected.WithLabelValues(name, typeLabel).Set(float64(stats.Rejected))
		p.contextClosed.WithLabelValues(name, typeLabel).Set(boolGauge(stats.Closed))
	}

	for name, provider := range p.timers {
		stats := provider.Stats()
		p.timerPending.WithLabelValues(name).Set(float64(stats.Pending))
		p.timerFired.WithLabelValues(name).Set(float64(stats.Fired))
		p.timerClosed.WithLabelValues(name).Set(boolGauge(stats.Closed))
	}

	for name, provider := range p.scopes {
		stats := provider.Stats()
		p.scopeSpawned.WithLabelValues(name).Set(float64(stats.Spawned))
		p.scopeErrors.WithLabelValues(name).Set(float64(stats.Errors))
		p.scopeDroppedErrors.WithLabelValues(name).Set(float64(stats.DroppedErrors))
		p.scopeStopRequested.WithLabelValues(name).Set(boolGauge(stats.StopRequested))
		p.scopeClosed.WithLabelValues(name).Set(boolGauge(stats.Closed))
	}
}
