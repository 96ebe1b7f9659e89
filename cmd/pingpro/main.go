package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/davidbond17/pingpro/internal/config"
)

const (
	appName    = "pingpro"
	appVersion = "0.1.0"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", appName, err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    appName,
		Version: appVersion,
		Usage:   "monitor connection quality to a target host",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   config.DefaultConfigPath,
				EnvVars: []string{"PINGPRO_CONFIG"},
				Usage:   "path to the YAML settings file",
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "log store activity for one-shot commands",
			},
		},
		Commands: []*cli.Command{
			runCommand(),
			watchCommand(),
			probeCommand(),
			validateCommand(),
			sessionsCommand(),
			insightsCommand(),
			diagCommand(),
		},
	}
}

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "run the monitor daemon with its HTTP API",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "start", Usage: "start monitoring immediately"},
		},
		Action: func(c *cli.Context) error {
			return runDaemon(c.Context, c.String("config"), daemonOptions{autoStart: c.Bool("start")})
		},
	}
}

func watchCommand() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "run the daemon with a live terminal dashboard",
		Action: func(c *cli.Context) error {
			return runDaemon(c.Context, c.String("config"), daemonOptions{autoStart: true, dashboard: true})
		},
	}
}
