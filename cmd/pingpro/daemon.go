package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/davidbond17/pingpro/internal/alert"
	"github.com/davidbond17/pingpro/internal/backfill"
	"github.com/davidbond17/pingpro/internal/background"
	"github.com/davidbond17/pingpro/internal/config"
	"github.com/davidbond17/pingpro/internal/dashboard"
	"github.com/davidbond17/pingpro/internal/health"
	"github.com/davidbond17/pingpro/internal/logging"
	"github.com/davidbond17/pingpro/internal/metrics"
	"github.com/davidbond17/pingpro/internal/monitor"
	"github.com/davidbond17/pingpro/internal/netwatch"
	"github.com/davidbond17/pingpro/internal/probe"
	"github.com/davidbond17/pingpro/internal/retention"
	"github.com/davidbond17/pingpro/internal/scheduler"
	"github.com/davidbond17/pingpro/internal/server"
	"github.com/davidbond17/pingpro/internal/store"
	"github.com/davidbond17/pingpro/pkg/types"
)

const (
	backfillInterval  = 30 * time.Second
	retentionInterval = time.Hour
	watchDebounce     = 500 * time.Millisecond
	shutdownTimeout   = 5 * time.Second
)

type daemonOptions struct {
	autoStart bool
	dashboard bool
}

type daemon struct {
	logger     *log.Logger
	metrics    *metrics.Store
	store      store.Store
	backfill   *backfill.Controller
	alerts     *alert.Manager
	observer   *netwatch.Observer
	loop       *monitor.Loop
	scheduler  *scheduler.Scheduler
	background *background.Cycle
	retention  *retention.Cleaner
	settings   *settingsService
	server     *server.Server
}

func runDaemon(ctx context.Context, configPath string, opts daemonOptions) error {
	cfg, err := config.Load(ctx, configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return fmt.Errorf("ensure data dir: %w", err)
	}

	logger := logging.New()
	if opts.dashboard {
		f, err := os.OpenFile(filepath.Join(cfg.DataDir, "pingpro.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer f.Close()
		logger = logging.NewWriter(f)
	}

	d, err := newDaemon(ctx, cfg, configPath, logger)
	if err != nil {
		return err
	}
	defer d.close()

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Printf("pingpro starting (host=%s, storage=%s, listen=%s)", cfg.TargetHost, cfg.Storage, cfg.ListenAddr)
	return d.run(runCtx, configPath, opts)
}

func newDaemon(ctx context.Context, cfg config.Settings, configPath string, logger *log.Logger) (*daemon, error) {
	state, err := config.LoadState(ctx, cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}

	metricsStore := metrics.NewStore()
	st, err := store.Open(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}
	saver := backfill.New(st, backfill.WithLogger(logger), backfill.WithMetrics(metricsStore))

	notifier, err := buildNotifier(cfg, logger)
	if err != nil {
		st.Close()
		return nil, err
	}
	alerts := alert.NewManager(notifier,
		alert.WithLogger(logger),
		alert.WithMetrics(metricsStore),
		alert.WithPermission(state.AlertPermission),
	)

	observer := netwatch.NewObserver(netwatch.HostLister{}, netwatch.WithLogger(logger))
	prober := probe.NewHTTPProber()

	loop := monitor.New(loopConfig(cfg), monitor.Dependencies{
		Prober:        prober,
		Network:       observer,
		Alerts:        alerts,
		Saver:         saver,
		ProbeMetrics:  metricsStore,
		LiveMetrics:   metricsStore,
		WindowMetrics: metricsStore,
		Logger:        logger,
	})

	sched := scheduler.New(scheduler.WithLogger(logger))
	bg := background.New(backgroundSettings(cfg), background.Dependencies{
		Scheduler:    sched,
		Prober:       prober,
		Detector:     hostDetector(logger),
		Saver:        saver,
		Metrics:      metricsStore,
		ProbeMetrics: metricsStore,
		Logger:       logger,
		OnComplete: func(ts time.Time) {
			if _, err := config.UpdateState(context.Background(), cfg.DataDir, func(s *config.State) {
				s.LastBackgroundRun = ts
			}); err != nil {
				logger.Printf("record background run failed: %v", err)
			}
		},
	})

	cleaner := retention.New(st, cfg.Retention(), retention.WithLogger(logger))
	settings := newSettingsService(cfg, configPath, loop, bg, cleaner, logger)
	perms := &permissionService{alerts: alerts, dataDir: cfg.DataDir}
	checker := health.NewChecker(metricsStore, loop, saver, observer)

	srv := server.New(server.Config{
		Addr:         cfg.ListenAddr,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  time.Minute,
	}, server.Dependencies{
		Logger:      logger,
		Monitor:     loop,
		Settings:    settings,
		Permissions: perms,
		Store:       st,
		Metrics:     metricsStore,
		Health:      checker,
	})

	return &daemon{
		logger:     logger,
		metrics:    metricsStore,
		store:      st,
		backfill:   saver,
		alerts:     alerts,
		observer:   observer,
		loop:       loop,
		scheduler:  sched,
		background: bg,
		retention:  cleaner,
		settings:   settings,
		server:     srv,
	}, nil
}

// primeNetwork classifies the host network once so a session started before
// the observer's first tick records the real type.
func (d *daemon) primeNetwork(ctx context.Context) {
	if err := d.observer.Poll(ctx); err != nil {
		d.logger.Printf("initial network poll failed: %v", err)
	}
}

func (d *daemon) run(ctx context.Context, configPath string, opts daemonOptions) error {
	d.background.Register()
	d.primeNetwork(ctx)
	if opts.autoStart {
		d.loop.Start(ctx)
	}

	grp, groupCtx := errgroup.WithContext(ctx)

	grp.Go(func() error {
		d.observer.Run(groupCtx)
		return nil
	})
	grp.Go(func() error {
		d.scheduler.Start(groupCtx)
		return nil
	})
	grp.Go(func() error {
		d.backfill.Run(groupCtx, backfillInterval)
		return nil
	})
	grp.Go(func() error {
		if _, err := d.retention.RunOnce(groupCtx); err != nil && groupCtx.Err() == nil {
			d.logger.Printf("initial retention purge failed: %v", err)
		}
		d.retention.Run(groupCtx, retentionInterval)
		return nil
	})
	grp.Go(func() error {
		err := config.Watch(groupCtx, configPath, watchDebounce, d.logger, func(next config.Settings) {
			d.settings.Reload(groupCtx, next)
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			d.logger.Printf("config watch disabled: %v", err)
		}
		return nil
	})
	grp.Go(func() error {
		return serveHTTP(groupCtx, d.server, d.logger)
	})
	if opts.dashboard {
		dash := dashboard.New(d.loop)
		grp.Go(func() error {
			if err := dash.Run(groupCtx); err != nil {
				return fmt.Errorf("dashboard: %w", err)
			}
			return context.Canceled
		})
	}

	err := grp.Wait()
	d.shutdown()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	d.logger.Printf("pingpro stopped")
	return nil
}

// shutdown ends the active session and gives pending saves one last chance.
func (d *daemon) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := d.loop.Stop(ctx); err != nil {
		d.logger.Printf("stop monitor: %v", err)
	}
	if d.backfill.Pending() > 0 {
		if saved, err := d.backfill.Flush(ctx); err != nil {
			d.logger.Printf("final backfill saved=%d pending=%d err=%v", saved, d.backfill.Pending(), err)
		}
	}
}

func (d *daemon) close() {
	if err := d.store.Close(); err != nil {
		d.logger.Printf("close session store: %v", err)
	}
}

func serveHTTP(ctx context.Context, srv *server.Server, logger *log.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Printf("api listening on http://%s", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func buildNotifier(cfg config.Settings, logger *log.Logger) (alert.Notifier, error) {
	notifiers := []alert.Notifier{alert.NewLogNotifier(logger)}
	if cfg.WebhookURL != "" {
		wh, err := alert.NewWebhookNotifier(alert.WebhookConfig{URL: cfg.WebhookURL}, alert.WebhookDependencies{Logger: logger})
		if err != nil {
			return nil, fmt.Errorf("init webhook notifier: %w", err)
		}
		notifiers = append(notifiers, wh)
	}
	return alert.NewMulti(notifiers...), nil
}

func hostDetector(logger *log.Logger) background.Detector {
	return background.DetectorFunc(func(ctx context.Context) types.NetworkType {
		nt, _, err := netwatch.Detect(ctx, netwatch.HostLister{})
		if err != nil {
			logger.Printf("background network detection failed: %v", err)
			return types.NetworkUnknown
		}
		return nt
	})
}

func loopConfig(cfg config.Settings) monitor.Config {
	return monitor.Config{
		Host:         cfg.TargetHost,
		Interval:     cfg.ProbeInterval(),
		ProbeTimeout: cfg.ProbeTimeout(),
		Policy:       cfg.MonitoringPolicy,
		Thresholds:   thresholds(cfg),
	}
}

func thresholds(cfg config.Settings) alert.Thresholds {
	return alert.Thresholds{
		LatencyMs:            cfg.LatencyThresholdMs,
		PacketLossPct:        cfg.PacketLossThresholdPct,
		Enabled:              cfg.AlertsEnabled,
		AlertOnNetworkChange: cfg.AlertOnNetworkChange,
	}
}

func backgroundSettings(cfg config.Settings) background.Settings {
	return background.Settings{
		Enabled:  cfg.BackgroundEnabled,
		Interval: cfg.BackgroundInterval(),
		WiFiOnly: cfg.BackgroundWiFiOnly,
		Host:     cfg.TargetHost,
	}
}
