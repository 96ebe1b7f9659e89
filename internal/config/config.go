package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/davidbond17/pingpro/pkg/types"
)

const (
	envConfigPath     = "PINGPRO_CONFIG"
	DefaultConfigPath = "/etc/pingpro/config.yaml"
)

// Storage backends.
const (
	StorageMemory   = "memory"
	StorageBadger   = "badger"
	StoragePostgres = "postgres"
)

// Settings is the user-facing configuration. Field names follow the YAML keys.
type Settings struct {
	TargetHost                string                 `yaml:"target_host" json:"target_host"`
	ProbeIntervalSeconds      float64                `yaml:"probe_interval_seconds" json:"probe_interval_seconds"`
	MonitoringPolicy          types.MonitoringPolicy `yaml:"monitoring_policy" json:"monitoring_policy"`
	DataRetentionDays         int                    `yaml:"data_retention_days" json:"data_retention_days"`
	AlertsEnabled             bool                   `yaml:"alerts_enabled" json:"alerts_enabled"`
	LatencyThresholdMs        float64                `yaml:"latency_threshold_ms" json:"latency_threshold_ms"`
	PacketLossThresholdPct    float64                `yaml:"packet_loss_threshold_pct" json:"packet_loss_threshold_pct"`
	AlertOnNetworkChange      bool                   `yaml:"alert_on_network_change" json:"alert_on_network_change"`
	BackgroundEnabled         bool                   `yaml:"background_enabled" json:"background_enabled"`
	BackgroundIntervalMinutes int                    `yaml:"background_interval_minutes" json:"background_interval_minutes"`
	BackgroundWiFiOnly        bool                   `yaml:"background_wifi_only" json:"background_wifi_only"`

	DataDir             string  `yaml:"data_dir" json:"data_dir"`
	ListenAddr          string  `yaml:"listen_addr" json:"listen_addr"`
	ProbeTimeoutSeconds float64 `yaml:"probe_timeout_seconds" json:"probe_timeout_seconds"`
	Storage             string  `yaml:"storage" json:"storage"`
	DatabaseURL         string  `yaml:"database_url" json:"-"`
	WebhookURL          string  `yaml:"webhook_url" json:"webhook_url,omitempty"`
}

// Defaults returns the settings used when no file or key overrides them.
func Defaults() Settings {
	return Settings{
		TargetHost:                "8.8.8.8",
		ProbeIntervalSeconds:      1.0,
		MonitoringPolicy:          types.PolicyAuto,
		DataRetentionDays:         30,
		AlertsEnabled:             false,
		LatencyThresholdMs:        150,
		PacketLossThresholdPct:    5,
		AlertOnNetworkChange:      true,
		BackgroundEnabled:         false,
		BackgroundIntervalMinutes: 15,
		BackgroundWiFiOnly:        true,

		DataDir:             "/var/lib/pingpro",
		ListenAddr:          "127.0.0.1:9470",
		ProbeTimeoutSeconds: 5,
		Storage:             StorageBadger,
	}
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

func (s Settings) ProbeInterval() time.Duration {
	return seconds(s.ProbeIntervalSeconds)
}

func (s Settings) ProbeTimeout() time.Duration {
	return seconds(s.ProbeTimeoutSeconds)
}

func (s Settings) BackgroundInterval() time.Duration {
	return time.Duration(s.BackgroundIntervalMinutes) * time.Minute
}

func (s Settings) Retention() time.Duration {
	return time.Duration(s.DataRetentionDays) * 24 * time.Hour
}

// Load overlays the YAML file at path onto Defaults. A missing file yields
// the defaults.
func Load(ctx context.Context, path string) (Settings, error) {
	cfg := Defaults()

	f, err := os.Open(filepath.Clean(path))
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("open config %q: %w", path, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return cfg, fmt.Errorf("read config %q: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %q: %w", path, err)
	}
	policy, err := types.ParseMonitoringPolicy(string(cfg.MonitoringPolicy))
	if err != nil {
		return cfg, fmt.Errorf("parse config %q: %w", path, err)
	}
	cfg.MonitoringPolicy = policy

	return cfg, nil
}

// Path resolves the config file location from the environment.
func Path() string {
	if path := os.Getenv(envConfigPath); path != "" {
		return path
	}
	return DefaultConfigPath
}

func LoadFromEnv(ctx context.Context) (Settings, error) {
	return Load(ctx, Path())
}

// Save validates settings and writes them atomically.
func Save(ctx context.Context, path string, cfg Settings) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return writeAtomic(path, data, 0o640)
}

func writeAtomic(path string, data []byte, perm fs.FileMode) error {
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("ensure config dir %q: %w", dir, err)
		}
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, perm); err != nil {
		return fmt.Errorf("write temp file %q: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("commit file %q: %w", path, err)
	}
	return nil
}
