package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/davidbond17/pingpro/internal/config"
	"github.com/davidbond17/pingpro/internal/diag"
	"github.com/davidbond17/pingpro/internal/insights"
	"github.com/davidbond17/pingpro/internal/logging"
	"github.com/davidbond17/pingpro/internal/netwatch"
	"github.com/davidbond17/pingpro/internal/probe"
	"github.com/davidbond17/pingpro/internal/quality"
	"github.com/davidbond17/pingpro/internal/retention"
	"github.com/davidbond17/pingpro/internal/store"
	"github.com/davidbond17/pingpro/pkg/types"
)

func probeCommand() *cli.Command {
	return &cli.Command{
		Name:      "probe",
		Usage:     "probe a host and print the result",
		ArgsUsage: "HOST",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "count", Aliases: []string{"n"}, Value: 1, Usage: "number of probes"},
			&cli.DurationFlag{Name: "timeout", Aliases: []string{"t"}, Value: probe.DefaultTimeout, Usage: "per-probe timeout"},
			&cli.DurationFlag{Name: "interval", Aliases: []string{"i"}, Value: time.Second, Usage: "spacing between probes"},
		},
		Action: func(c *cli.Context) error {
			host := c.Args().First()
			if !probe.IsValidHost(host) {
				return fmt.Errorf("%w: %q", config.ErrInvalidHost, host)
			}
			nt, _, err := netwatch.Detect(c.Context, netwatch.HostLister{})
			if err != nil {
				nt = types.NetworkUnknown
			}
			req := probe.Request{Host: host, Timeout: c.Duration("timeout"), NetworkType: nt}
			samples := probe.Burst(c.Context, probe.NewHTTPProber(), req, c.Int("count"), c.Duration("interval"))
			printSamples(c.App.Writer, host, samples)
			return nil
		},
	}
}

func printSamples(w io.Writer, host string, samples []types.Sample) {
	for i, s := range samples {
		if s.Latency == nil {
			fmt.Fprintf(w, "probe %d to %s: timeout\n", i+1, host)
			continue
		}
		status := "ok"
		if !s.Succeeded {
			status = "failed"
		}
		fmt.Fprintf(w, "probe %d to %s: %.1f ms (%s)\n", i+1, host, *s.Latency, status)
	}
	if len(samples) < 2 {
		return
	}
	stats := types.Summarize(samples)
	result := quality.FromStats(stats)
	fmt.Fprintf(w, "%d probes, %.1f%% loss", stats.Count, stats.PacketLoss)
	if stats.Avg != nil {
		fmt.Fprintf(w, ", min/avg/max %.1f/%.1f/%.1f ms", *stats.Min, *stats.Avg, *stats.Max)
	}
	fmt.Fprintf(w, ", quality %d (%s)\n", result.Score, result.Tier)
}

func validateCommand() *cli.Command {
	return &cli.Command{
		Name:      "validate",
		Usage:     "check that a host is a usable probe target",
		ArgsUsage: "HOST",
		Action: func(c *cli.Context) error {
			host := c.Args().First()
			if !probe.IsValidHost(host) {
				return fmt.Errorf("%w: %q", config.ErrInvalidHost, host)
			}
			fmt.Fprintf(c.App.Writer, "%s -> %s\n", host, probe.BuildURL(host))
			return nil
		},
	}
}

func sessionsCommand() *cli.Command {
	return &cli.Command{
		Name:  "sessions",
		Usage: "inspect and manage saved sessions",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "list saved sessions, newest first",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Value: 20, Usage: "maximum sessions to show"},
				},
				Action: func(c *cli.Context) error {
					return withStore(c, func(ctx context.Context, st store.Store, _ config.Settings) error {
						sessions, err := st.ListSessions(ctx, c.Int("limit"))
						if err != nil {
							return fmt.Errorf("list sessions: %w", err)
						}
						printSessions(c.App.Writer, sessions)
						return nil
					})
				},
			},
			{
				Name:      "delete",
				Usage:     "delete one session",
				ArgsUsage: "ID",
				Action: func(c *cli.Context) error {
					id := c.Args().First()
					if id == "" {
						return errors.New("session id is required")
					}
					return withStore(c, func(ctx context.Context, st store.Store, _ config.Settings) error {
						if err := st.DeleteSession(ctx, id); err != nil {
							return fmt.Errorf("delete session %s: %w", id, err)
						}
						fmt.Fprintf(c.App.Writer, "deleted %s\n", id)
						return nil
					})
				},
			},
			{
				Name:  "purge",
				Usage: "delete sessions older than the retention period, or all with --all",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "all", Usage: "delete every session"},
					&cli.IntFlag{Name: "days", Usage: "override the configured retention in days"},
				},
				Action: func(c *cli.Context) error {
					return withStore(c, func(ctx context.Context, st store.Store, cfg config.Settings) error {
						if c.Bool("all") {
							if err := st.DeleteAll(ctx); err != nil {
								return fmt.Errorf("delete all sessions: %w", err)
							}
							fmt.Fprintln(c.App.Writer, "deleted all sessions")
							return nil
						}
						period := cfg.Retention()
						if days := c.Int("days"); days > 0 {
							period = time.Duration(days) * 24 * time.Hour
						}
						removed, err := retention.New(st, period).RunOnce(ctx)
						if err != nil {
							return err
						}
						fmt.Fprintf(c.App.Writer, "purged %d sessions older than %s\n", removed, period)
						return nil
					})
				},
			},
		},
	}
}

func insightsCommand() *cli.Command {
	return &cli.Command{
		Name:  "insights",
		Usage: "summarize saved sessions",
		Action: func(c *cli.Context) error {
			return withStore(c, func(ctx context.Context, st store.Store, _ config.Settings) error {
				sessions, err := st.ListSessions(ctx, 0)
				if err != nil {
					return fmt.Errorf("list sessions: %w", err)
				}
				printInsights(c.App.Writer, sessions, time.Now())
				return nil
			})
		},
	}
}

func diagCommand() *cli.Command {
	return &cli.Command{
		Name:  "diag",
		Usage: "write a diagnostics bundle",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "bundle path (default: data dir)"},
			&cli.StringFlag{Name: "metrics-url", Usage: "metrics endpoint to scrape (default: listen address)"},
			&cli.DurationFlag{Name: "metrics-timeout", Value: 3 * time.Second, Usage: "metrics scrape timeout"},
			&cli.BoolFlag{Name: "redact", Value: true, Usage: "redact credentials in logs"},
		},
		Action: func(c *cli.Context) error {
			path, err := diag.Run(c.Context, diag.Config{
				ConfigPath:     c.String("config"),
				OutputPath:     c.String("output"),
				MetricsURL:     c.String("metrics-url"),
				MetricsTimeout: c.Duration("metrics-timeout"),
				RedactLogs:     c.Bool("redact"),
			}, diag.Dependencies{})
			if err != nil {
				return fmt.Errorf("write diagnostics bundle: %w", err)
			}
			fmt.Fprintf(c.App.Writer, "diagnostics written to %s\n", path)
			return nil
		},
	}
}

func withStore(c *cli.Context, fn func(ctx context.Context, st store.Store, cfg config.Settings) error) error {
	ctx := c.Context
	cfg, err := config.Load(ctx, c.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger := log.New(io.Discard, "", 0)
	if c.Bool("verbose") {
		logger = logging.New()
	}
	st, err := store.Open(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open session store: %w", err)
	}
	defer st.Close()
	return fn(ctx, st, cfg)
}

func printSessions(w io.Writer, sessions []types.Session) {
	if len(sessions) == 0 {
		fmt.Fprintln(w, "no sessions")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTART\tDURATION\tHOST\tNETWORK\tSAMPLES\tAVG\tLOSS\tSCORE\tKIND")
	for i := range sessions {
		s := &sessions[i]
		stats := s.Stats()
		avg := "--"
		if stats.Avg != nil {
			avg = fmt.Sprintf("%.1f ms", *stats.Avg)
		}
		score := "--"
		if s.QualityScore != nil {
			score = fmt.Sprintf("%d %s", *s.QualityScore, quality.TierFor(*s.QualityScore))
		}
		kind := "foreground"
		if s.IsBackground {
			kind = "background"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%s\t%.1f%%\t%s\t%s\n",
			s.ID,
			s.StartTime.Local().Format(time.DateTime),
			s.Duration(time.Now()).Round(time.Second),
			s.Host,
			s.NetworkType,
			len(s.Samples),
			avg,
			stats.PacketLoss,
			score,
			kind,
		)
	}
	tw.Flush()
}

func printInsights(w io.Writer, sessions []types.Session, now time.Time) {
	list := insights.Generate(sessions, now)
	if len(list) == 0 {
		fmt.Fprintln(w, "not enough history for insights")
		return
	}
	for _, in := range list {
		fmt.Fprintf(w, "* %s\n  %s\n", in.Title, in.Description)
	}
	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PERIOD\tHOURS\tSESSIONS\tAVG\tSCORE")
	for _, p := range insights.TimeOfDay(sessions, now.Location()) {
		avg := "--"
		if p.AvgLatency != nil {
			avg = fmt.Sprintf("%.1f ms", *p.AvgLatency)
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%d\n", p.Name, p.HourRange, p.SessionCount, avg, p.AvgScore)
	}
	tw.Flush()
}
