package prometheus

import (
	"context"
	"testing"
	"time"

	"github.com/Swind/go-executor/core"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type contextStub struct {
	stats core.ContextStats
}

func (s contextStub) Stats() core.ContextStats { return s.stats }

type timerStub struct {
	stats core.TimerStats
}

func (s timerStub) Stats() core.TimerStats { return s.stats }

type scopeStub struct {
	stats core.ScopeStats
}

func (s scopeStub) Stats() core.ScopeStats { return s.stats }

func TestSnapshotPoller_CollectsContextTimerAndScopeStats(t *testing.T) {
	reg := prom.NewRegistry()
	poller, err := NewSnapshotPoller(reg, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("NewSnapshotPoller failed: %v", err)
	}

	poller.AddContext("ctx-a", contextStub{stats: core.ContextStats{
		Type:     "execution_context",
		Pending:  3,
		Running:  1,
		Executed: 10,
		Rejected: 2,
		Closed:   true,
	}})
	poller.AddTimer("timer-a", timerStub{stats: core.TimerStats{
		Pending: 4,
		Fired:   9,
	}})
	poller.AddScope("scope-a", scopeStub{stats: core.ScopeStats{
		Spawned:       5,
		Errors:        2,
		DroppedErrors: 1,
		StopRequested: true,
	}})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	poller.Start(ctx)
	defer poller.Stop()

	assertEventually(t, 2*time.Second, func() bool {
		pending := testutil.ToFloat64(poller.contextPending.WithLabelValues("ctx-a", "execution_context"))
		timerPending := testutil.ToFloat64(poller.timerPending.WithLabelValues("timer-a"))
		spawned := testutil.ToFloat64(poller.scopeSpawned.WithLabelValues("scope-a"))
		return pending == 3 && timerPending == 4 && spawned == 5
	})

	if got := testutil.ToFloat64(poller.contextClosed.WithLabelValues("ctx-a", "execution_context")); got != 1 {
		t.Fatalf("context closed gauge = %v, want 1", got)
	}
	if got := testutil.ToFloat64(poller.contextExecuted.WithLabelValues("ctx-a", "execution_context")); got != 10 {
		t.Fatalf("context executed gauge = %v, want 10", got)
	}
	if got := testutil.ToFloat64(poller.timerClosed.WithLabelValues("timer-a")); got != 0 {
		t.Fatalf("timer closed gauge = %v, want 0", got)
	}
	if got := testutil.ToFloat64(poller.scopeDroppedErrors.WithLabelValues("scope-a")); got != 1 {
		t.Fatalf("scope dropped errors gauge = %v, want 1", got)
	}
	if got := testutil.ToFloat64(poller.scopeStopRequested.WithLabelValues("scope-a")); got != 1 {
		t.Fatalf("scope stop requested gauge = %v, want 1", got)
	}
}

// TestSnapshotPoller_LiveContexts verifies real contexts satisfy the provider interfaces
func TestSnapshotPoller_LiveContexts(t *testing.T) {
	reg := prom.NewRegistry()
	poller, err := NewSnapshotPoller(reg, time.Hour)
	if err != nil {
		t.Fatalf("NewSnapshotPoller failed: %v", err)
	}

	cfg := &core.ContextConfig{Name: "live", Logger: core.NewNoOpLogger()}
	ec := core.NewExecutionContextWithConfig(cfg)
	tc := core.NewTimedContextWithConfig(&core.ContextConfig{Name: "live.timer", Logger: core.NewNoOpLogger()})
	scope := core.NewScope(core.WithScopeName("live"), core.WithScopeLogger(core.NewNoOpLogger()))

	poller.AddContext(ec.Name(), ec)
	poller.AddTimer(tc.Name(), tc)
	poller.AddScope("live", scope)

	ec.Stop()
	tc.Stop()
	scope.Close()
	poller.CollectOnce()

	if got := testutil.ToFloat64(poller.contextClosed.WithLabelValues("live", ec.Stats().Type)); got != 1 {
		t.Fatalf("context closed gauge = %v, want 1", got)
	}
	if got := testutil.ToFloat64(poller.timerClosed.WithLabelValues("live.timer")); got != 1 {
		t.Fatalf("timer closed gauge = %v, want 1", got)
	}
	if got := testutil.ToFloat64(poller.scopeClosed.WithLabelValues("live")); got != 1 {
		t.Fatalf("scope closed gauge = %v, want 1", got)
	}
}

func TestSnapshotPoller_StartStop_Idempotent(t *testing.T) {
	reg := prom.NewRegistry()
	poller, err := NewSnapshotPoller(reg, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("NewSnapshotPoller failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	poller.Start(ctx)
	poller.Start(ctx)
	poller.Stop()
	poller.Stop()
}

func assertEventually(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met within timeout")
}
