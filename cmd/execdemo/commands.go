package main

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

type scenario struct {
	name  string
	usage string
	run   func(e *env) error
}

var scenarios = []scenario{
	{"continues-on", "compare ContinuesOn with LetValue(Schedule)", runContinuesOn},
	{"basic-coroutine", "a task awaiting child tasks on a timer", runBasicCoroutine},
	{"async-scope", "stop and drain two counters spawned into a scope", runAsyncScope},
	{"captured-lifetime", "captured values outlive the spawning function", runCapturedLifetime},
	{"continuation-scheduler", "where a task resumes depending on how it was started", runContinuationScheduler},
	{"lock", "hold a lock across an await", runLockAcrossAwait},
	{"accidental-async", "hardware disconnected while a task still uses it", runAccidentalAsync},
	{"synchronization-cycle", "waiting on a scope from inside it", runSynchronizationCycle},
}

func commands() []*cli.Command {
	cmds := make([]*cli.Command, 0, len(scenarios)+1)
	for _, s := range scenarios {
		cmds = append(cmds, &cli.Command{
			Name:   s.name,
			Usage:  s.usage,
			Action: scenarioAction(s),
		})
	}
	cmds = append(cmds, &cli.Command{
		Name:   "all",
		Usage:  "run every scenario in order",
		Action: allAction,
	})
	return cmds
}

func scenarioAction(s scenario) cli.ActionFunc {
	return func(c *cli.Context) error {
		if err := s.run(envFrom(c)); err != nil {
			return cli.Exit(fmt.Sprintf("%s failed: %v", s.name, err), 1)
		}
		return nil
	}
}

func allAction(c *cli.Context) error {
	e := envFrom(c)
	for _, s := range scenarios {
		e.printf("== %s", s.name)
		if err := s.run(e); err != nil {
			return cli.Exit(fmt.Sprintf("%s failed: %v", s.name, err), 1)
		}
	}
	return nil
}
