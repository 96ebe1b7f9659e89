// Package diag writes a support bundle with redacted configuration, state,
// logs and a metrics snapshot.
package diag

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/davidbond17/pingpro/internal/config"
)

const (
	defaultOutputPrefix = "diag_"
	infoFileName        = "diagnostics/info.json"
	configFileName      = "config/config.yaml"
	stateFileName       = "state/state.yaml"
	logFileName         = "pingpro.log"
	logsDirName         = "logs"
	metricsFileName     = "observability/metrics.prom"
	redactedMarker      = "REDACTED"
)

var (
	tokenPattern    = regexp.MustCompile(`(?i)(token=)([^&\s"']+)`)
	bearerPattern   = regexp.MustCompile(`(?i)(authorization:\s*bearer\s+)([A-Za-z0-9\._\-]+)`)
	passwordPattern = regexp.MustCompile(`(?i)(password=)([^&\s"']+)`)
	userinfoPattern = regexp.MustCompile(`(://[^:/@\s]+:)([^@\s]+)(@)`)
)

// Config selects what goes into the bundle.
type Config struct {
	ConfigPath     string
	OutputPath     string
	MetricsURL     string
	MetricsTimeout time.Duration
	RedactLogs     bool
}

// Dependencies provides optional overrides for testing.
type Dependencies struct {
	Now        func() time.Time
	HTTPClient *http.Client
}

type bundleInfo struct {
	GeneratedAt       string          `json:"generated_at"`
	OutputPath        string          `json:"output_path"`
	ConfigPath        string          `json:"config_path,omitempty"`
	DataDir           string          `json:"data_dir,omitempty"`
	Storage           string          `json:"storage,omitempty"`
	TargetHost        string          `json:"target_host,omitempty"`
	AlertPermission   bool            `json:"alert_permission"`
	LastBackgroundRun string          `json:"last_background_run,omitempty"`
	Metrics           *metricsSummary `json:"metrics,omitempty"`
	LogsRedacted      bool            `json:"logs_redacted"`
	Warnings          []string        `json:"warnings,omitempty"`
	GoVersion         string          `json:"go_version"`
}

type metricsSummary struct {
	URL             string   `json:"url"`
	Ready           *float64 `json:"ready,omitempty"`
	Monitoring      *float64 `json:"monitoring_active,omitempty"`
	QualityScore    *float64 `json:"quality_score,omitempty"`
	PendingSessions *float64 `json:"pending_sessions,omitempty"`
}

// Run writes the bundle and returns its path.
func Run(ctx context.Context, cfg Config, deps Dependencies) (string, error) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	now := deps.Now().UTC()

	info := bundleInfo{
		GeneratedAt:  now.Format(time.RFC3339),
		LogsRedacted: cfg.RedactLogs,
		GoVersion:    runtime.Version(),
	}

	settings, err := config.Load(ctx, cfg.ConfigPath)
	if err != nil {
		info.Warnings = append(info.Warnings, fmt.Sprintf("config unavailable (%s): %v", cfg.ConfigPath, err))
		settings = config.Defaults()
	} else {
		info.ConfigPath = cfg.ConfigPath
	}
	info.DataDir = settings.DataDir
	info.Storage = settings.Storage
	info.TargetHost = settings.TargetHost

	outPath := cfg.OutputPath
	if outPath == "" {
		outPath = filepath.Join(settings.DataDir, fmt.Sprintf("%s%s.tar.gz", defaultOutputPrefix, now.Format("20060102T150405Z")))
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return "", fmt.Errorf("ensure output directory %q: %w", filepath.Dir(outPath), err)
	}
	info.OutputPath = outPath

	outFile, err := os.OpenFile(outPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return "", fmt.Errorf("create diagnostics file %q: %w", outPath, err)
	}
	defer outFile.Close()

	gw := gzip.NewWriter(outFile)
	tw := tar.NewWriter(gw)

	if data, err := redactedSettings(settings); err != nil {
		info.Warnings = append(info.Warnings, fmt.Sprintf("failed to encode config: %v", err))
	} else if err := addBytes(tw, data, configFileName); err != nil {
		info.Warnings = append(info.Warnings, fmt.Sprintf("failed to include config: %v", err))
	}

	statePath := config.StatePath(settings.DataDir)
	if _, err := os.Stat(statePath); err == nil {
		if state, err := config.LoadState(ctx, settings.DataDir); err == nil {
			info.AlertPermission = state.AlertPermission
			if !state.LastBackgroundRun.IsZero() {
				info.LastBackgroundRun = state.LastBackgroundRun.UTC().Format(time.RFC3339)
			}
		}
		if err := addFile(tw, statePath, stateFileName); err != nil {
			info.Warnings = append(info.Warnings, fmt.Sprintf("failed to include state %q: %v", statePath, err))
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		info.Warnings = append(info.Warnings, fmt.Sprintf("unable to stat state %q: %v", statePath, err))
	}

	logPath := filepath.Join(settings.DataDir, logFileName)
	if data, err := os.ReadFile(logPath); err == nil {
		if cfg.RedactLogs {
			data = redactSensitive(data)
		}
		if err := addBytes(tw, data, logsDirName+"/"+logFileName); err != nil {
			info.Warnings = append(info.Warnings, fmt.Sprintf("failed to include log %q: %v", logPath, err))
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		info.Warnings = append(info.Warnings, fmt.Sprintf("unable to read log %q: %v", logPath, err))
	}

	metricsURL := cfg.MetricsURL
	if metricsURL == "" && settings.ListenAddr != "" {
		metricsURL = "http://" + settings.ListenAddr + "/metrics"
	}
	if metricsURL != "" {
		timeout := cfg.MetricsTimeout
		if timeout <= 0 {
			timeout = 3 * time.Second
		}
		client := deps.HTTPClient
		if client == nil {
			client = &http.Client{Timeout: timeout}
		}
		scrapeCtx, cancel := context.WithTimeout(ctx, timeout)
		data, err := scrapeMetrics(scrapeCtx, client, metricsURL)
		cancel()
		if err != nil {
			info.Warnings = append(info.Warnings, fmt.Sprintf("metrics scrape failed: %v", err))
		} else {
			if err := addBytes(tw, data, metricsFileName); err != nil {
				info.Warnings = append(info.Warnings, fmt.Sprintf("failed to include metrics snapshot: %v", err))
			}
			summary, warns := summarizeMetrics(data, metricsURL)
			info.Metrics = summary
			info.Warnings = append(info.Warnings, warns...)
		}
	}

	if err := writeInfo(tw, info); err != nil {
		return "", err
	}
	if err := tw.Close(); err != nil {
		return "", fmt.Errorf("finish tar: %w", err)
	}
	if err := gw.Close(); err != nil {
		return "", fmt.Errorf("finish gzip: %w", err)
	}
	return outPath, nil
}

// redactedSettings encodes settings without credentials.
func redactedSettings(s config.Settings) ([]byte, error) {
	if s.DatabaseURL != "" {
		s.DatabaseURL = redactedMarker
	}
	if s.WebhookURL != "" {
		s.WebhookURL = string(redactSensitive([]byte(s.WebhookURL)))
	}
	return yaml.Marshal(s)
}

func writeInfo(tw *tar.Writer, info bundleInfo) error {
	payload, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal diagnostics info: %w", err)
	}
	return addBytes(tw, payload, infoFileName)
}

func addBytes(tw *tar.Writer, data []byte, name string) error {
	header := &tar.Header{
		Name:    name,
		Mode:    0o600,
		Size:    int64(len(data)),
		ModTime: time.Now(),
	}
	if err := tw.WriteHeader(header); err != nil {
		return fmt.Errorf("write tar header for %q: %w", name, err)
	}
	if _, err := tw.Write(data); err != nil {
		return fmt.Errorf("write tar content for %q: %w", name, err)
	}
	return nil
}

func addFile(tw *tar.Writer, src, name string) error {
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("stat %q: %w", src, err)
	}
	file, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %q: %w", src, err)
	}
	defer file.Close()

	header, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return fmt.Errorf("header for %q: %w", src, err)
	}
	header.Name = name
	if err := tw.WriteHeader(header); err != nil {
		return fmt.Errorf("write header for %q: %w", src, err)
	}
	if _, err := io.Copy(tw, file); err != nil {
		return fmt.Errorf("copy %q: %w", src, err)
	}
	return nil
}

func redactSensitive(data []byte) []byte {
	text := string(data)
	for _, pattern := range []*regexp.Regexp{tokenPattern, bearerPattern, passwordPattern} {
		text = pattern.ReplaceAllString(text, "${1}"+redactedMarker)
	}
	text = userinfoPattern.ReplaceAllString(text, "${1}"+redactedMarker+"${3}")
	return []byte(text)
}

func scrapeMetrics(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/plain")
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	return io.ReadAll(resp.Body)
}

func summarizeMetrics(data []byte, url string) (*metricsSummary, []string) {
	summary := &metricsSummary{URL: url}
	targets := map[string]**float64{
		"pingpro_ready":             &summary.Ready,
		"pingpro_monitoring_active": &summary.Monitoring,
		"pingpro_quality_score":     &summary.QualityScore,
		"pingpro_pending_sessions":  &summary.PendingSessions,
	}
	var warnings []string
	for _, line := range strings.Split(string(data), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 || strings.HasPrefix(line, "#") {
			continue
		}
		dst, ok := targets[fields[0]]
		if !ok {
			continue
		}
		v, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("parse %s: %v", fields[0], err))
			continue
		}
		*dst = &v
	}
	return summary, warnings
}
