package config

import (
	"errors"
	"fmt"

	"github.com/davidbond17/pingpro/internal/probe"
)

// MinProbeInterval keeps the loop from saturating the network stack.
const MinProbeInterval = 0.5

var (
	ErrInvalidHost     = errors.New("invalid target host")
	ErrInvalidInterval = errors.New("invalid probe interval")
)

// Validate rejects settings that must never reach the probe loop.
func (s Settings) Validate() error {
	if !probe.IsValidHost(s.TargetHost) {
		return fmt.Errorf("%w: %q", ErrInvalidHost, s.TargetHost)
	}
	if s.ProbeIntervalSeconds < MinProbeInterval {
		return fmt.Errorf("%w: %.2fs is below %.1fs", ErrInvalidInterval, s.ProbeIntervalSeconds, MinProbeInterval)
	}
	if !s.MonitoringPolicy.Valid() {
		return fmt.Errorf("unknown monitoring policy %q", s.MonitoringPolicy)
	}
	if s.DataRetentionDays < 1 {
		return fmt.Errorf("data retention must be at least 1 day, got %d", s.DataRetentionDays)
	}
	if s.LatencyThresholdMs < 0 || s.PacketLossThresholdPct < 0 {
		return errors.New("alert thresholds must not be negative")
	}
	if s.PacketLossThresholdPct > 100 {
		return fmt.Errorf("packet loss threshold %.1f exceeds 100%%", s.PacketLossThresholdPct)
	}
	if s.BackgroundIntervalMinutes < 1 {
		return fmt.Errorf("background interval must be at least 1 minute, got %d", s.BackgroundIntervalMinutes)
	}
	if s.ProbeTimeoutSeconds <= 0 {
		return fmt.Errorf("probe timeout must be positive, got %.2f", s.ProbeTimeoutSeconds)
	}
	switch s.Storage {
	case StorageMemory, StorageBadger:
	case StoragePostgres:
		if s.DatabaseURL == "" {
			return errors.New("database_url is required for postgres storage")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", s.Storage)
	}
	return nil
}
