// Command execdemo runs the runtime walkthrough scenarios one subcommand at a time.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "execdemo",
		Usage: "walk through execution contexts, tasks and scopes",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Value:   "warn",
				Usage:   "logrus level for runtime messages",
			},
			&cli.StringFlag{
				Name:  "metrics-addr",
				Usage: "serve Prometheus metrics on this address while running (e.g. :9090)",
			},
			&cli.DurationFlag{
				Name:  "tick",
				Value: defaultTick,
				Usage: "base delay used by timed scenarios",
			},
		},
		Metadata: map[string]interface{}{},
		Before:   setupEnv,
		After:    teardownEnv,
		Commands: commands(),
	}
}
