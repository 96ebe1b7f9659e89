package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/davidbond17/pingpro/pkg/types"
)

const sampleYAML = `
target_host: one.one.one.one
probe_interval_seconds: 2.5
monitoring_policy: WiFi Only
data_retention_days: 7
alerts_enabled: true
latency_threshold_ms: 80
storage: memory
`

func TestLoad(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	if err := os.WriteFile(path, []byte(sampleYAML), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(ctx, path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.TargetHost != "one.one.one.one" {
		t.Fatalf("unexpected host: %s", cfg.TargetHost)
	}
	if cfg.ProbeInterval() != 2500*time.Millisecond {
		t.Fatalf("unexpected interval: %s", cfg.ProbeInterval())
	}
	if cfg.MonitoringPolicy != types.PolicyWiFiOnly {
		t.Fatalf("unexpected policy: %s", cfg.MonitoringPolicy)
	}
	if !cfg.AlertsEnabled || cfg.LatencyThresholdMs != 80 {
		t.Fatalf("unexpected alert settings: %+v", cfg)
	}
	if cfg.PacketLossThresholdPct != 5 || !cfg.AlertOnNetworkChange || !cfg.BackgroundWiFiOnly {
		t.Fatalf("expected defaults for unset keys: %+v", cfg)
	}
	if cfg.Retention() != 7*24*time.Hour {
		t.Fatalf("unexpected retention: %s", cfg.Retention())
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(context.Background(), filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg != Defaults() {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	if cfg.TargetHost != "8.8.8.8" || cfg.ProbeInterval() != time.Second || cfg.MonitoringPolicy != types.PolicyAuto {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.DataRetentionDays != 30 || cfg.LatencyThresholdMs != 150 || cfg.PacketLossThresholdPct != 5 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.BackgroundInterval() != 15*time.Minute || !cfg.BackgroundWiFiOnly || !cfg.AlertOnNetworkChange {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestLoadRejectsUnknownPolicy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("monitoring_policy: sometimes\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(context.Background(), path); err == nil {
		t.Fatalf("expected error for unknown policy")
	}
}

func TestLoadFromEnv(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	if err := os.WriteFile(path, []byte(sampleYAML), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv(envConfigPath, path)

	cfg, err := LoadFromEnv(ctx)
	if err != nil {
		t.Fatalf("LoadFromEnv returned error: %v", err)
	}
	if cfg.DataRetentionDays != 7 {
		t.Fatalf("unexpected retention: %d", cfg.DataRetentionDays)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Settings)
		wantErr error
	}{
		{"empty host", func(s *Settings) { s.TargetHost = "" }, ErrInvalidHost},
		{"bad host", func(s *Settings) { s.TargetHost = "not a host" }, ErrInvalidHost},
		{"fast interval", func(s *Settings) { s.ProbeIntervalSeconds = 0.1 }, ErrInvalidInterval},
		{"policy", func(s *Settings) { s.MonitoringPolicy = "never" }, nil},
		{"retention", func(s *Settings) { s.DataRetentionDays = 0 }, nil},
		{"negative latency", func(s *Settings) { s.LatencyThresholdMs = -1 }, nil},
		{"loss over 100", func(s *Settings) { s.PacketLossThresholdPct = 120 }, nil},
		{"storage", func(s *Settings) { s.Storage = "sqlite" }, nil},
		{"postgres without url", func(s *Settings) { s.Storage = StoragePostgres }, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Defaults()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected validation error")
			}
			if tc.wantErr != nil && !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v got %v", tc.wantErr, err)
			}
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := Defaults()
	cfg.TargetHost = "https://example.com/health"
	cfg.MonitoringPolicy = types.PolicyCellularOnly
	if err := Save(ctx, path, cfg); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("expected temp file to be renamed away, stat err=%v", err)
	}

	loaded, err := Load(ctx, path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if loaded != cfg {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", loaded, cfg)
	}
}

func TestSaveRejectsInvalidHost(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := Defaults()
	cfg.TargetHost = "   "
	if err := Save(context.Background(), path, cfg); !errors.Is(err, ErrInvalidHost) {
		t.Fatalf("expected ErrInvalidHost got %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("invalid settings must not be written")
	}
}
