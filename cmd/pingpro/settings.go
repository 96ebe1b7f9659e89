package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/davidbond17/pingpro/internal/alert"
	"github.com/davidbond17/pingpro/internal/background"
	"github.com/davidbond17/pingpro/internal/config"
	"github.com/davidbond17/pingpro/pkg/types"
)

type loopControl interface {
	SetPolicy(policy types.MonitoringPolicy)
	SetThresholds(th alert.Thresholds)
	SetProbeTimeout(timeout time.Duration)
	UpdateHost(ctx context.Context, host string) error
	UpdateInterval(ctx context.Context, interval time.Duration) error
}

type backgroundControl interface {
	Update(settings background.Settings)
}

type retentionControl interface {
	SetPeriod(period time.Duration)
}

// settingsService keeps the live components in step with the settings file.
type settingsService struct {
	path       string
	loop       loopControl
	background backgroundControl
	retention  retentionControl
	logger     *log.Logger

	mu      sync.Mutex
	current config.Settings
}

func newSettingsService(cfg config.Settings, path string, loop loopControl, bg backgroundControl, ret retentionControl, logger *log.Logger) *settingsService {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &settingsService{
		path:       path,
		loop:       loop,
		background: bg,
		retention:  ret,
		logger:     logger,
		current:    cfg,
	}
}

func (s *settingsService) Current() config.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Apply validates, applies and persists next.
func (s *settingsService) Apply(ctx context.Context, next config.Settings) error {
	if err := next.Validate(); err != nil {
		return err
	}
	s.apply(ctx, next)
	if s.path == "" {
		return nil
	}
	if err := config.Save(ctx, s.path, next); err != nil {
		return fmt.Errorf("persist settings: %w", err)
	}
	return nil
}

// Reload applies settings read back from disk. Unchanged settings are
// ignored so our own writes do not restart anything.
func (s *settingsService) Reload(ctx context.Context, next config.Settings) {
	if next == s.Current() {
		return
	}
	s.logger.Printf("settings reloaded from %s", s.path)
	s.apply(ctx, next)
}

func (s *settingsService) apply(ctx context.Context, next config.Settings) {
	s.mu.Lock()
	prev := s.current
	s.current = next
	s.mu.Unlock()

	s.loop.SetPolicy(next.MonitoringPolicy)
	s.loop.SetThresholds(thresholds(next))
	s.loop.SetProbeTimeout(next.ProbeTimeout())
	if next.TargetHost != prev.TargetHost {
		if err := s.loop.UpdateHost(ctx, next.TargetHost); err != nil {
			s.logger.Printf("update host: %v", err)
		}
	}
	if next.ProbeIntervalSeconds != prev.ProbeIntervalSeconds {
		if err := s.loop.UpdateInterval(ctx, next.ProbeInterval()); err != nil {
			s.logger.Printf("update interval: %v", err)
		}
	}
	if backgroundSettings(next) != backgroundSettings(prev) {
		s.background.Update(backgroundSettings(next))
	}
	s.retention.SetPeriod(next.Retention())
}

// permissionService records the notification permission in the alert
// manager and the state file.
type permissionService struct {
	alerts  *alert.Manager
	dataDir string
}

func (p *permissionService) HasPermission() bool {
	return p.alerts.HasPermission()
}

func (p *permissionService) SetPermission(ctx context.Context, granted bool) error {
	p.alerts.SetPermission(granted)
	_, err := config.UpdateState(ctx, p.dataDir, func(s *config.State) {
		s.AlertPermission = granted
		s.PermissionUpdatedAt = time.Now().UTC()
	})
	if err != nil {
		return fmt.Errorf("persist permission: %w", err)
	}
	return nil
}
