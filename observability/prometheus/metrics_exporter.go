package prometheus

import (
	"errors"
	"fmt"
	"time"

	"github.com/Swind/go-executor/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// ExporterOptions controls collector configuration.
type ExporterOptions struct {
	DurationBuckets []float64
	LatenessBuckets []float64
}

// MetricsExporter adapts core.Metrics to Prometheus collectors.
type MetricsExporter struct {
	workDurationSeconds  *prom.HistogramVec
	workPanicTotal       *prom.CounterVec
	workRejectedTotal    *prom.CounterVec
	queueDepth           *prom.GaugeVec
	timerLatenessSeconds *prom.HistogramVec
	timerCancelledTotal  *prom.CounterVec
	scopeInFlight        *prom.GaugeVec
	spawnErrorTotal      *prom.CounterVec
}

var _ core.Metrics = (*MetricsExporter)(nil)

// defaultLatenessBuckets spans sub-millisecond to one second of timer lateness.
var defaultLatenessBuckets = []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1}

// NewMetricsExporter creates and registers Prometheus collectors for core.Metrics.
func NewMetricsExporter(namespace string, reg prom.Registerer, opts ExporterOptions) (*MetricsExporter, error) {
	if namespace == "" {
		namespace = "executor"
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	buckets := opts.DurationBuckets
	if len(buckets) == 0 {
		buckets = prom.DefBuckets
	}
	lateness := opts.LatenessBuckets
	if len(lateness) == 0 {
		lateness = defaultLatenessBuckets
	}

	durationVec := prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "work_duration_seconds",
		Help:      "Work item execution duration in seconds.",
		Buckets:   buckets,
	}, []string{"context"})
	panicVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "work_panic_total",
		Help:      "Total number of work item panics.",
	}, []string{"context"})
	rejectedVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "work_rejected_total",
		Help:      "Total number of rejected work items.",
	}, []string{"context", "reason"})
	queueDepthVec := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "queue_depth",
		Help:      "Queue depth observed after the last enqueue.",
	}, []string{"context"})
	latenessVec := prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "timer_lateness_seconds",
		Help:      "How late timer entries were released after their deadline.",
		Buckets:   lateness,
	}, []string{"context"})
	cancelledVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "timer_cancelled_total",
		Help:      "Total number of timer entries removed by a stop request.",
	}, []string{"context"})
	inFlightVec := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "scope_in_flight",
		Help:      "Operations spawned into a scope that have not completed.",
	}, []string{"scope"})
	spawnErrVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "scope_spawn_error_total",
		Help:      "Total number of spawned operations that completed with an error.",
	}, []string{"scope"})

	var err error
	if durationVec, err = registerCollector(reg, durationVec); err != nil {
		return nil, err
	}
	if panicVec, err = registerCollector(reg, panicVec); err != nil {
		return nil, err
	}
	if rejectedVec, err = registerCollector(reg, rejectedVec); err != nil {
		return nil, err
	}
	if queueDepthVec, err = registerCollector(reg, queueDepthVec); err != nil {
		return nil, err
	}
	if latenessVec, err = registerCollector(reg, latenessVec); err != nil {
		return nil, err
	}
	if cancelledVec, err = registerCollector(reg, cancelledVec); err != nil {
		return nil, err
	}
	if inFlightVec, err = registerCollector(reg, inFlightVec); err != nil {
		return nil, err
	}
	if spawnErrVec, err = registerCollector(reg, spawnErrVec); err != nil {
		return nil, err
	}

	return &MetricsExporter{
		workDurationSeconds:  durationVec,
		workPanicTotal:       panicVec,
		workRejectedTotal:    rejectedVec,
		queueDepth:           queueDepthVec,
		timerLatenessSeconds: latenessVec,
		timerCancelledTotal:  cancelledVec,
		scopeInFlight:        inFlightVec,
		spawnErrorTotal:      spawnErrVec,
	}, nil
}

// RecordTaskDuration records work item execution duration.
func (m *MetricsExporter) RecordTaskDuration(contextName string, duration time.Duration) {
	if m == nil {
		return
	}
	m.workDurationSeconds.WithLabelValues(normalizeLabel(contextName, "unknown")).Observe(duration.Seconds())
}

// RecordTaskPanic records work item panic events.
func (m *MetricsExporter) RecordTaskPanic(contextName string, panicInfo any) {
	if m == nil {
		return
	}
	m.workPanicTotal.WithLabelValues(normalizeLabel(contextName, "unknown")).Inc()
}

// RecordQueueDepth records queue depth.
func (m *MetricsExporter) RecordQueueDepth(contextName string, depth int) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues(normalizeLabel(contextName, "unknown")).Set(float64(depth))
}

// RecordTaskRejected records work rejection events.
func (m *MetricsExporter) RecordTaskRejected(contextName string, reason string) {
	if m == nil {
		return
	}
	m.workRejectedTotal.WithLabelValues(normalizeLabel(contextName, "unknown"), normalizeLabel(reason, "unknown")).Inc()
}

// RecordTimerFired records how late a timer entry was released.
func (m *MetricsExporter) RecordTimerFired(contextName string, lateness time.Duration) {
	if m == nil {
		return
	}
	if lateness < 0 {
		lateness = 0
	}
	m.timerLatenessSeconds.WithLabelValues(normalizeLabel(contextName, "unknown")).Observe(lateness.Seconds())
}

// RecordTimerCancelled records a timer entry removed by a stop request.
func (m *MetricsExporter) RecordTimerCancelled(contextName string) {
	if m == nil {
		return
	}
	m.timerCancelledTotal.WithLabelValues(normalizeLabel(contextName, "unknown")).Inc()
}

// RecordScopeInFlight records a scope's in-flight count.
func (m *MetricsExporter) RecordScopeInFlight(scopeName string, inFlight int) {
	if m == nil {
		return
	}
	m.scopeInFlight.WithLabelValues(normalizeLabel(scopeName, "unknown")).Set(float64(inFlight))
}

// RecordSpawnError records an error completion of a spawned operation.
func (m *MetricsExporter) RecordSpawnError(scopeName string) {
	if m == nil {
		return
	}
	m.spawnErrorTotal.WithLabelValues(normalizeLabel(scopeName, "unknown")).Inc()
}

func normalizeLabel(v string, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func registerCollector[T prom.Collector](reg prom.Registerer, collector T) (T, error) {
	err := reg.Register(collector)
	if err == nil {
		return collector, nil
	}

	var alreadyRegisteredErr prom.AlreadyRegisteredError
	if errors.As(err, &alreadyRegisteredErr) {
		existing, ok := alreadyRegisteredErr.ExistingCollector.(T)
		if !ok {
			return collector, fmt.Errorf("collector type mismatch for %T", collector)
		}
		return existing, nil
	}

	return collector, err
}
