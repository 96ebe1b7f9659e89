package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/davidbond17/pingpro/internal/config"
	"github.com/davidbond17/pingpro/internal/health"
	"github.com/davidbond17/pingpro/internal/insights"
	"github.com/davidbond17/pingpro/internal/metrics"
	"github.com/davidbond17/pingpro/internal/monitor"
	"github.com/davidbond17/pingpro/internal/probe"
	"github.com/davidbond17/pingpro/internal/store"
)

const (
	defaultListLimit     = 50
	insightsHistoryLimit = 1000
)

// Config controls HTTP server settings.
type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// Monitor is the command and read surface of the live loop.
type Monitor interface {
	Snapshot() monitor.Snapshot
	Start(ctx context.Context)
	Stop(ctx context.Context) error
}

// Settings applies and persists configuration changes to every running
// component.
type Settings interface {
	Current() config.Settings
	Apply(ctx context.Context, s config.Settings) error
}

// Permissions records whether the user allows notifications.
type Permissions interface {
	HasPermission() bool
	SetPermission(ctx context.Context, granted bool) error
}

// Dependencies holds external collaborators required by the server.
type Dependencies struct {
	Logger      *log.Logger
	Monitor     Monitor
	Settings    Settings
	Permissions Permissions
	Store       store.Store
	Metrics     *metrics.Store
	Health      *health.Checker
	Now         func() time.Time
}

// Server wraps http.Server for convenience.
type Server struct {
	*http.Server
	cfg  Config
	deps Dependencies
}

type statusResponse struct {
	monitor.Snapshot
	AlertPermission bool `json:"alert_permission"`
}

// New constructs an HTTP server exposing the monitor controls and history.
func New(cfg Config, deps Dependencies) *Server {
	if cfg.Addr == "" {
		cfg.Addr = config.Defaults().ListenAddr
	}
	if deps.Logger == nil {
		deps.Logger = log.New(io.Discard, "", 0)
	}
	if deps.Store == nil {
		deps.Store = store.NewMemoryStore()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	r := mux.NewRouter()
	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/status", statusHandler(deps)).Methods(http.MethodGet)
	api.HandleFunc("/monitor/start", startHandler(deps)).Methods(http.MethodPost)
	api.HandleFunc("/monitor/stop", stopHandler(deps)).Methods(http.MethodPost)
	api.HandleFunc("/monitor/host", updateHostHandler(deps)).Methods(http.MethodPut)
	api.HandleFunc("/monitor/interval", updateIntervalHandler(deps)).Methods(http.MethodPut)
	api.HandleFunc("/settings", getSettingsHandler(deps)).Methods(http.MethodGet)
	api.HandleFunc("/settings", putSettingsHandler(deps)).Methods(http.MethodPut)
	api.HandleFunc("/alerts/permission", permissionHandler(deps)).Methods(http.MethodPost)
	api.HandleFunc("/sessions", listSessionsHandler(deps)).Methods(http.MethodGet)
	api.HandleFunc("/sessions", deleteAllSessionsHandler(deps)).Methods(http.MethodDelete)
	api.HandleFunc("/sessions/{id}", getSessionHandler(deps)).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}", deleteSessionHandler(deps)).Methods(http.MethodDelete)
	api.HandleFunc("/insights", insightsHandler(deps)).Methods(http.MethodGet)

	if deps.Metrics != nil {
		r.Handle("/metrics", metrics.NewHTTPHandler(deps.Metrics)).Methods(http.MethodGet)
	}
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	r.HandleFunc("/readyz", readyHandler(deps)).Methods(http.MethodGet)

	s := &http.Server{
		Addr:         cfg.Addr,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return &Server{Server: s, cfg: cfg, deps: deps}
}

func statusHandler(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Monitor == nil {
			http.Error(w, "monitor unavailable", http.StatusServiceUnavailable)
			return
		}
		resp := statusResponse{Snapshot: deps.Monitor.Snapshot()}
		if deps.Permissions != nil {
			resp.AlertPermission = deps.Permissions.HasPermission()
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func startHandler(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Monitor == nil {
			http.Error(w, "monitor unavailable", http.StatusServiceUnavailable)
			return
		}
		deps.Monitor.Start(r.Context())
		writeJSON(w, http.StatusOK, deps.Monitor.Snapshot())
	}
}

func stopHandler(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Monitor == nil {
			http.Error(w, "monitor unavailable", http.StatusServiceUnavailable)
			return
		}
		if err := deps.Monitor.Stop(r.Context()); err != nil {
			deps.Logger.Printf("stop monitor: %v", err)
		}
		writeJSON(w, http.StatusOK, deps.Monitor.Snapshot())
	}
}

func updateHostHandler(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Settings == nil {
			http.Error(w, "settings unavailable", http.StatusServiceUnavailable)
			return
		}
		var req struct {
			Host string `json:"host"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if !probe.IsValidHost(req.Host) {
			http.Error(w, config.ErrInvalidHost.Error(), http.StatusBadRequest)
			return
		}
		next := deps.Settings.Current()
		next.TargetHost = req.Host
		applySettings(w, r, deps, next)
	}
}

func updateIntervalHandler(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Settings == nil {
			http.Error(w, "settings unavailable", http.StatusServiceUnavailable)
			return
		}
		var req struct {
			Seconds float64 `json:"seconds"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if req.Seconds <= 0 {
			http.Error(w, config.ErrInvalidInterval.Error(), http.StatusBadRequest)
			return
		}
		if req.Seconds < config.MinProbeInterval {
			req.Seconds = config.MinProbeInterval
		}
		next := deps.Settings.Current()
		next.ProbeIntervalSeconds = req.Seconds
		applySettings(w, r, deps, next)
	}
}

func getSettingsHandler(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Settings == nil {
			http.Error(w, "settings unavailable", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, http.StatusOK, deps.Settings.Current())
	}
}

// putSettingsHandler merges the body over the current settings, so clients
// may send only the fields they change.
func putSettingsHandler(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Settings == nil {
			http.Error(w, "settings unavailable", http.StatusServiceUnavailable)
			return
		}
		next := deps.Settings.Current()
		if err := json.NewDecoder(r.Body).Decode(&next); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		applySettings(w, r, deps, next)
	}
}

func applySettings(w http.ResponseWriter, r *http.Request, deps Dependencies, next config.Settings) {
	if err := next.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := deps.Settings.Apply(r.Context(), next); err != nil {
		deps.Logger.Printf("apply settings failed: %v", err)
		http.Error(w, "unable to apply settings", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, deps.Settings.Current())
}

func permissionHandler(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Permissions == nil {
			http.Error(w, "alerts unavailable", http.StatusServiceUnavailable)
			return
		}
		var req struct {
			Granted *bool `json:"granted"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if req.Granted == nil {
			http.Error(w, "granted is required", http.StatusBadRequest)
			return
		}
		if err := deps.Permissions.SetPermission(r.Context(), *req.Granted); err != nil {
			deps.Logger.Printf("record alert permission failed: %v", err)
			http.Error(w, "unable to record permission", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, struct {
			Granted bool `json:"granted"`
		}{Granted: deps.Permissions.HasPermission()})
	}
}

func listSessionsHandler(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := defaultListLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			if v, err := strconv.Atoi(raw); err == nil && v > 0 {
				limit = v
			}
		}
		sessions, err := deps.Store.ListSessions(r.Context(), limit)
		if err != nil {
			deps.Logger.Printf("list sessions failed: %v", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		items := make([]sessionSummary, 0, len(sessions))
		for i := range sessions {
			items = append(items, summarize(&sessions[i]))
		}
		writeJSON(w, http.StatusOK, struct {
			Items []sessionSummary `json:"items"`
		}{Items: items})
	}
}

func getSessionHandler(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		session, err := deps.Store.GetSession(r.Context(), id)
		if err != nil {
			if errors.Is(err, store.ErrSessionNotFound) {
				http.Error(w, "session not found", http.StatusNotFound)
			} else {
				deps.Logger.Printf("get session %s failed: %v", id, err)
				http.Error(w, "internal error", http.StatusInternalServerError)
			}
			return
		}
		writeJSON(w, http.StatusOK, struct {
			sessionSummary
			Samples any `json:"samples"`
		}{sessionSummary: summarize(&session), Samples: session.Samples})
	}
}

func deleteSessionHandler(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		if err := deps.Store.DeleteSession(r.Context(), id); err != nil {
			if errors.Is(err, store.ErrSessionNotFound) {
				http.Error(w, "session not found", http.StatusNotFound)
			} else {
				deps.Logger.Printf("delete session %s failed: %v", id, err)
				http.Error(w, "internal error", http.StatusInternalServerError)
			}
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func deleteAllSessionsHandler(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Store.DeleteAll(r.Context()); err != nil {
			deps.Logger.Printf("delete all sessions failed: %v", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func insightsHandler(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessions, err := deps.Store.ListSessions(r.Context(), insightsHistoryLimit)
		if err != nil {
			deps.Logger.Printf("list sessions for insights failed: %v", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		now := deps.Now()
		resp := struct {
			Insights        []insights.Insight        `json:"insights"`
			TimeOfDay       []insights.Period         `json:"time_of_day"`
			Recommendations []insights.Recommendation `json:"recommendations,omitempty"`
		}{
			Insights:  insights.Generate(sessions, now),
			TimeOfDay: insights.TimeOfDay(sessions, now.Location()),
		}
		if resp.Insights == nil {
			resp.Insights = []insights.Insight{}
		}
		if deps.Monitor != nil {
			snap := deps.Monitor.Snapshot()
			resp.Recommendations = insights.Recommend(snap.AvgLatency, snap.PacketLoss)
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func readyHandler(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Health == nil {
			w.WriteHeader(http.StatusOK)
			return
		}
		ready, reasons := deps.Health.Ready(deps.Now())
		if !ready {
			http.Error(w, health.Summary(reasons), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
