package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// WebhookConfig holds the static configuration for a WebhookNotifier.
type WebhookConfig struct {
	URL     string
	Timeout time.Duration
}

// WebhookDependencies allow test overrides for HTTP client and logging.
type WebhookDependencies struct {
	HTTPClient *http.Client
	Logger     *log.Logger
}

// WebhookNotifier posts alerts as JSON to a user-supplied endpoint.
type WebhookNotifier struct {
	url        string
	timeout    time.Duration
	httpClient *http.Client
	logger     *log.Logger
}

func NewWebhookNotifier(cfg WebhookConfig, deps WebhookDependencies) (*WebhookNotifier, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("webhook URL is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	httpClient := deps.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &WebhookNotifier{
		url:        cfg.URL,
		timeout:    timeout,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

func (w *WebhookNotifier) Notify(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "pingpro/0.1.0")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("webhook rejected alert: status %s: %w", resp.Status, ErrPermissionDenied)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("webhook failed: status %s", resp.Status)
	}
	w.logger.Printf("alert delivered kind=%s via webhook", alert.Kind)
	return nil
}
