package server

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/davidbond17/pingpro/internal/config"
	"github.com/davidbond17/pingpro/internal/health"
	"github.com/davidbond17/pingpro/internal/metrics"
	"github.com/davidbond17/pingpro/internal/monitor"
	"github.com/davidbond17/pingpro/internal/store"
	"github.com/davidbond17/pingpro/pkg/types"
)

type fakeMonitor struct {
	mu      sync.Mutex
	running bool
	starts  int
	stops   int
}

func (f *fakeMonitor) Snapshot() monitor.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	snap := monitor.Snapshot{State: monitor.StateIdle, Host: "8.8.8.8"}
	if f.running {
		snap.IsMonitoring = true
		snap.State = monitor.StateRunning
		snap.AvgLatency = types.Float(25)
	}
	return snap
}

func (f *fakeMonitor) Start(ctx context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running = true
	f.starts++
}

func (f *fakeMonitor) Stop(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running = false
	f.stops++
	return nil
}

type fakeSettings struct {
	mu      sync.Mutex
	current config.Settings
	applied int
}

func (f *fakeSettings) Current() config.Settings {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

func (f *fakeSettings) Apply(ctx context.Context, s config.Settings) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = s
	f.applied++
	return nil
}

type fakePermissions struct {
	granted bool
}

func (f *fakePermissions) HasPermission() bool { return f.granted }

func (f *fakePermissions) SetPermission(ctx context.Context, granted bool) error {
	f.granted = granted
	return nil
}

type testEnv struct {
	srv      *Server
	monitor  *fakeMonitor
	settings *fakeSettings
	perms    *fakePermissions
	store    *store.MemoryStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		monitor:  &fakeMonitor{},
		settings: &fakeSettings{current: config.Defaults()},
		perms:    &fakePermissions{},
		store:    store.NewMemoryStore(),
	}
	env.srv = New(Config{}, Dependencies{
		Logger:      log.New(io.Discard, "", 0),
		Monitor:     env.monitor,
		Settings:    env.settings,
		Permissions: env.perms,
		Store:       env.store,
		Metrics:     metrics.NewStore(),
		Now:         func() time.Time { return time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC) },
	})
	return env
}

func (e *testEnv) do(method, path, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	rr := httptest.NewRecorder()
	e.srv.Handler.ServeHTTP(rr, req)
	return rr
}

func seedSession(t *testing.T, st store.Store, start time.Time, latency float64, score int) types.Session {
	t.Helper()
	s := types.NewSession("8.8.8.8", types.NetworkWiFi, start)
	s.Append(types.Sample{Timestamp: start, Latency: types.Float(latency), Succeeded: true})
	s.Close(start.Add(time.Minute), score)
	if err := st.SaveSession(context.Background(), *s); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}
	return *s
}

func TestStartStopAndStatus(t *testing.T) {
	env := newTestEnv(t)
	env.perms.granted = true

	if rr := env.do(http.MethodPost, "/api/v1/monitor/start", ""); rr.Code != http.StatusOK {
		t.Fatalf("start status %d", rr.Code)
	}
	rr := env.do(http.MethodGet, "/api/v1/status", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status code %d", rr.Code)
	}
	var status struct {
		IsMonitoring    bool   `json:"is_monitoring"`
		State           string `json:"state"`
		AlertPermission bool   `json:"alert_permission"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if !status.IsMonitoring || status.State != "running" || !status.AlertPermission {
		t.Fatalf("unexpected status %+v", status)
	}

	if rr := env.do(http.MethodPost, "/api/v1/monitor/stop", ""); rr.Code != http.StatusOK {
		t.Fatalf("stop status %d", rr.Code)
	}
	if env.monitor.starts != 1 || env.monitor.stops != 1 {
		t.Fatalf("expected one start and one stop, got %d/%d", env.monitor.starts, env.monitor.stops)
	}
}

func TestUpdateHostRejectsInvalid(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(http.MethodPut, "/api/v1/monitor/host", `{"host":"   "}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	if env.settings.applied != 0 {
		t.Fatalf("invalid host must not be applied")
	}

	rr = env.do(http.MethodPut, "/api/v1/monitor/host", `{"host":"1.1.1.1"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if got := env.settings.Current().TargetHost; got != "1.1.1.1" {
		t.Fatalf("expected host applied, got %q", got)
	}
}

func TestUpdateIntervalClampsToMinimum(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(http.MethodPut, "/api/v1/monitor/interval", `{"seconds":0.1}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if got := env.settings.Current().ProbeIntervalSeconds; got != config.MinProbeInterval {
		t.Fatalf("expected clamp to %.1f, got %.2f", config.MinProbeInterval, got)
	}
	if rr := env.do(http.MethodPut, "/api/v1/monitor/interval", `{"seconds":0}`); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for zero interval, got %d", rr.Code)
	}
}

func TestSettingsMergeAndValidate(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(http.MethodPut, "/api/v1/settings", `{"alerts_enabled":true,"latency_threshold_ms":90}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	got := env.settings.Current()
	if !got.AlertsEnabled || got.LatencyThresholdMs != 90 || got.TargetHost != "8.8.8.8" {
		t.Fatalf("unexpected merged settings %+v", got)
	}

	rr = env.do(http.MethodPut, "/api/v1/settings", `{"data_retention_days":0}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid retention, got %d", rr.Code)
	}

	rr = env.do(http.MethodGet, "/api/v1/settings", "")
	var body map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decode settings: %v", err)
	}
	if _, ok := body["database_url"]; ok {
		t.Fatalf("database url must not be exposed")
	}
}

func TestAlertPermission(t *testing.T) {
	env := newTestEnv(t)
	if rr := env.do(http.MethodPost, "/api/v1/alerts/permission", `{}`); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without granted, got %d", rr.Code)
	}
	rr := env.do(http.MethodPost, "/api/v1/alerts/permission", `{"granted":true}`)
	if rr.Code != http.StatusOK || !env.perms.granted {
		t.Fatalf("expected permission granted, got %d", rr.Code)
	}
}

func TestSessionsLifecycle(t *testing.T) {
	env := newTestEnv(t)
	base := time.Date(2024, 6, 14, 9, 0, 0, 0, time.UTC)
	older := seedSession(t, env.store, base, 20, 90)
	newer := seedSession(t, env.store, base.Add(time.Hour), 40, 75)

	rr := env.do(http.MethodGet, "/api/v1/sessions?limit=10", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("list status %d", rr.Code)
	}
	var list struct {
		Items []struct {
			ID          string `json:"id"`
			QualityTier string `json:"quality_tier"`
		} `json:"items"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list.Items) != 2 || list.Items[0].ID != newer.ID || list.Items[1].ID != older.ID {
		t.Fatalf("expected newest first, got %+v", list.Items)
	}
	if list.Items[1].QualityTier != "Excellent" {
		t.Fatalf("unexpected tier %q", list.Items[1].QualityTier)
	}

	rr = env.do(http.MethodGet, "/api/v1/sessions/"+older.ID, "")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"samples"`) {
		t.Fatalf("get status %d body %s", rr.Code, rr.Body.String())
	}

	if rr := env.do(http.MethodDelete, "/api/v1/sessions/"+older.ID, ""); rr.Code != http.StatusNoContent {
		t.Fatalf("delete status %d", rr.Code)
	}
	if rr := env.do(http.MethodGet, "/api/v1/sessions/"+older.ID, ""); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", rr.Code)
	}
	if rr := env.do(http.MethodDelete, "/api/v1/sessions/"+older.ID, ""); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 deleting missing session, got %d", rr.Code)
	}

	if rr := env.do(http.MethodDelete, "/api/v1/sessions", ""); rr.Code != http.StatusNoContent {
		t.Fatalf("delete all status %d", rr.Code)
	}
	remaining, _ := env.store.ListSessions(context.Background(), 0)
	if len(remaining) != 0 {
		t.Fatalf("expected empty store, got %d", len(remaining))
	}
}

func TestInsights(t *testing.T) {
	env := newTestEnv(t)
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	seedSession(t, env.store, now.Add(-2*time.Hour), 20, 90)
	env.monitor.Start(context.Background())

	rr := env.do(http.MethodGet, "/api/v1/insights", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("insights status %d", rr.Code)
	}
	var resp struct {
		Insights        []map[string]any `json:"insights"`
		TimeOfDay       []map[string]any `json:"time_of_day"`
		Recommendations []map[string]any `json:"recommendations"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode insights: %v", err)
	}
	if len(resp.Insights) == 0 || len(resp.TimeOfDay) != 4 || len(resp.Recommendations) == 0 {
		t.Fatalf("unexpected insights payload %+v", resp)
	}
}

func TestHealthEndpoints(t *testing.T) {
	env := newTestEnv(t)
	if rr := env.do(http.MethodGet, "/healthz", ""); rr.Code != http.StatusOK {
		t.Fatalf("healthz status %d", rr.Code)
	}
	if rr := env.do(http.MethodGet, "/readyz", ""); rr.Code != http.StatusOK {
		t.Fatalf("readyz status %d", rr.Code)
	}
	rr := env.do(http.MethodGet, "/metrics", "")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "pingpro_") {
		t.Fatalf("metrics status %d", rr.Code)
	}
}

type pendingCount int

func (p pendingCount) Pending() int { return int(p) }

func TestReadyzReportsPendingSessions(t *testing.T) {
	srv := New(Config{}, Dependencies{
		Health: health.NewChecker(nil, nil, pendingCount(2), nil),
	})
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "2 sessions awaiting save") {
		t.Fatalf("unexpected body %q", rr.Body.String())
	}
}
