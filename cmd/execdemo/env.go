package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	executor "github.com/Swind/go-executor"
	"github.com/Swind/go-executor/core"
	logadapter "github.com/Swind/go-executor/observability/logrus"
	promexporter "github.com/Swind/go-executor/observability/prometheus"
)

const (
	defaultTick = time.Second
	envKey      = "env"
)

// env is what every scenario runs against.
type env struct {
	out     io.Writer
	tick    time.Duration
	logger  core.Logger
	metrics core.Metrics
	rt      *executor.Runtime

	server *http.Server
	poller *promexporter.SnapshotPoller
}

// lockedWriter serializes writes from the goroutines a scenario touches.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

func newEnv(out io.Writer, tick time.Duration, logger core.Logger, metrics core.Metrics) *env {
	if metrics == nil {
		metrics = &core.NilMetrics{}
	}
	return &env{
		out:     &lockedWriter{w: out},
		tick:    tick,
		logger:  logger,
		metrics: metrics,
		rt: executor.NewRuntime(&executor.RuntimeConfig{
			Name:    "execdemo",
			Logger:  logger,
			Metrics: metrics,
		}),
	}
}

func (e *env) printf(format string, args ...any) {
	fmt.Fprintf(e.out, format+"\n", args...)
}

// scope creates a scope reporting through the env's logger and metrics.
func (e *env) scope(name string) *executor.Scope {
	return executor.NewScope(
		executor.WithScopeName(name),
		executor.WithScopeLogger(e.logger),
		executor.WithScopeMetrics(e.metrics),
	)
}

func (e *env) close(ctx context.Context) error {
	var errs []error
	if err := e.rt.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if e.poller != nil {
		e.poller.Stop()
	}
	if e.server != nil {
		if err := e.server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("metrics server: %w", err))
		}
	}
	return errors.Join(errs...)
}

func setupEnv(c *cli.Context) error {
	base := logrus.New()
	if err := logadapter.ParseLevel(base, c.String("log-level")); err != nil {
		return cli.Exit(fmt.Sprintf("invalid --log-level: %v", err), 2)
	}
	logger := logadapter.New(base)

	addr := c.String("metrics-addr")
	if addr == "" {
		c.App.Metadata[envKey] = newEnv(c.App.Writer, c.Duration("tick"), logger, nil)
		return nil
	}

	reg := prometheus.NewRegistry()
	exporter, err := promexporter.NewMetricsExporter("executor", reg, promexporter.ExporterOptions{})
	if err != nil {
		return fmt.Errorf("create metrics exporter: %w", err)
	}
	poller, err := promexporter.NewSnapshotPoller(reg, time.Second)
	if err != nil {
		return fmt.Errorf("create snapshot poller: %w", err)
	}

	e := newEnv(c.App.Writer, c.Duration("tick"), logger, exporter)
	other := e.rt.Context("other")
	poller.AddContext(other.Name(), other)
	poller.AddTimer(e.rt.Timer().Name(), e.rt.Timer())
	poller.AddScope(e.rt.Scope().Name(), e.rt.Scope())
	poller.Start(context.Background())
	e.poller = poller

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	e.server = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := e.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", core.F("addr", addr), core.F("error", err))
		}
	}()

	c.App.Metadata[envKey] = e
	return nil
}

func teardownEnv(c *cli.Context) error {
	e, ok := c.App.Metadata[envKey].(*env)
	if !ok {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.close(ctx)
}

func envFrom(c *cli.Context) *env {
	return c.App.Metadata[envKey].(*env)
}
