package metrics

import (
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pingpro"

// ReadinessCategory captures a categorized readiness reason with severity.
type ReadinessCategory struct {
	Name     string
	Severity string
}

// Store owns a private Prometheus registry and implements every recorder
// interface in this package.
type Store struct {
	registry *prometheus.Registry

	probes           *prometheus.CounterVec
	probeLatency     *prometheus.HistogramVec
	monitoringActive prometheus.Gauge
	currentLatency   prometheus.Gauge
	qualityScore     prometheus.Gauge
	packetLoss       prometheus.Gauge
	windowDepth      prometheus.Gauge
	windowEvictions  prometheus.Counter
	alertsFired      *prometheus.CounterVec
	alertsSuppressed *prometheus.CounterVec
	alertsFailed     *prometheus.CounterVec
	sessionsSaved    *prometheus.CounterVec
	saveFailures     prometheus.Counter
	pendingSessions  prometheus.Gauge
	backgroundCycles *prometheus.CounterVec
	ready            prometheus.Gauge
	readyTransitions *prometheus.CounterVec
	readyCategories  *prometheus.GaugeVec

	readyState atomic.Int64
}

// NewStore constructs a Store with zeroed metrics.
func NewStore() *Store {
	s := &Store{
		registry: prometheus.NewRegistry(),
		probes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "probes_total",
			Help:      "Reachability probes executed, by mode and result.",
		}, []string{"mode", "result"}),
		probeLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "probe_latency_milliseconds",
			Help:      "Round-trip time of successful probes.",
			Buckets:   []float64{10, 20, 50, 100, 150, 200, 300, 500, 1000, 2500, 5000},
		}, []string{"mode"}),
		monitoringActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "monitoring_active",
			Help:      "Whether the foreground monitoring loop is running (1=running).",
		}),
		currentLatency: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "current_latency_milliseconds",
			Help:      "Latency of the most recent foreground probe, 0 when it failed.",
		}),
		qualityScore: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "quality_score",
			Help:      "Connection quality score over the live window (0-100).",
		}),
		packetLoss: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "packet_loss_percent",
			Help:      "Packet loss over the live window.",
		}),
		windowDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "window_samples",
			Help:      "Samples currently held in the live window.",
		}),
		windowEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "window_evictions_total",
			Help:      "Samples evicted from the live window.",
		}),
		alertsFired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_fired_total",
			Help:      "Alerts dispatched to the notifier, by kind.",
		}, []string{"kind"}),
		alertsSuppressed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_suppressed_total",
			Help:      "Alerts suppressed by debounce, by kind.",
		}, []string{"kind"}),
		alertsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_failed_total",
			Help:      "Alerts the notifier failed to deliver, by kind.",
		}, []string{"kind"}),
		sessionsSaved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_saved_total",
			Help:      "Completed sessions written to storage.",
		}, []string{"kind"}),
		saveFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_save_failures_total",
			Help:      "Session save attempts that failed.",
		}),
		pendingSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_sessions",
			Help:      "Completed sessions held in memory awaiting a successful save.",
		}),
		backgroundCycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "background_cycles_total",
			Help:      "Background resume cycles, by outcome.",
		}, []string{"outcome"}),
		ready: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ready",
			Help:      "Whether the monitor considers itself ready (1=ready).",
		}),
		readyTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ready_transitions_total",
			Help:      "Count of readiness state transitions by resulting state.",
		}, []string{"state"}),
		readyCategories: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ready_categories_info",
			Help:      "Categories associated with the most recent readiness evaluation.",
		}, []string{"category", "severity"}),
	}

	s.registry.MustRegister(
		s.probes, s.probeLatency, s.monitoringActive, s.currentLatency,
		s.qualityScore, s.packetLoss, s.windowDepth, s.windowEvictions,
		s.alertsFired, s.alertsSuppressed, s.alertsFailed,
		s.sessionsSaved, s.saveFailures, s.pendingSessions,
		s.backgroundCycles, s.ready, s.readyTransitions, s.readyCategories,
	)
	return s
}

// Registry exposes the underlying registry for tests and extra collectors.
func (s *Store) Registry() *prometheus.Registry {
	return s.registry
}

func (s *Store) ObserveWindowDepth(depth int) {
	s.windowDepth.Set(float64(depth))
}

func (s *Store) IncWindowEvictions() {
	s.windowEvictions.Inc()
}

func (s *Store) ObserveProbe(mode string, succeeded bool, latency time.Duration) {
	result := "failure"
	if succeeded {
		result = "success"
		s.probeLatency.WithLabelValues(mode).Observe(float64(latency) / float64(time.Millisecond))
	}
	s.probes.WithLabelValues(mode, result).Inc()
}

func (s *Store) ObserveLive(active bool, currentMs *float64, score int, packetLossPct float64) {
	if !active {
		s.monitoringActive.Set(0)
		s.currentLatency.Set(0)
		s.qualityScore.Set(0)
		s.packetLoss.Set(0)
		return
	}
	s.monitoringActive.Set(1)
	if currentMs != nil {
		s.currentLatency.Set(*currentMs)
	} else {
		s.currentLatency.Set(0)
	}
	s.qualityScore.Set(float64(score))
	s.packetLoss.Set(packetLossPct)
}

func (s *Store) IncAlertFired(kind string) {
	s.alertsFired.WithLabelValues(kind).Inc()
}

func (s *Store) IncAlertSuppressed(kind string) {
	s.alertsSuppressed.WithLabelValues(kind).Inc()
}

func (s *Store) IncAlertFailed(kind string) {
	s.alertsFailed.WithLabelValues(kind).Inc()
}

func (s *Store) IncSessionSaved(background bool) {
	kind := ModeForeground
	if background {
		kind = ModeBackground
	}
	s.sessionsSaved.WithLabelValues(kind).Inc()
}

func (s *Store) IncSessionSaveFailed() {
	s.saveFailures.Inc()
}

func (s *Store) ObservePendingSessions(n int) {
	if n < 0 {
		n = 0
	}
	s.pendingSessions.Set(float64(n))
}

func (s *Store) IncBackgroundCycle(outcome string) {
	s.backgroundCycles.WithLabelValues(outcome).Inc()
}

// ObserveReadiness records the latest readiness evaluation. Transitions are
// counted only when the state flips.
func (s *Store) ObserveReadiness(ready bool, categories []ReadinessCategory) {
	prev := s.readyState.Load()
	s.readyCategories.Reset()
	if ready {
		if prev != 1 {
			s.readyTransitions.WithLabelValues("ready").Inc()
		}
		s.readyState.Store(1)
		s.ready.Set(1)
		return
	}
	if prev == 1 {
		s.readyTransitions.WithLabelValues("not_ready").Inc()
	}
	s.readyState.Store(0)
	s.ready.Set(0)
	for _, c := range categories {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			continue
		}
		s.readyCategories.WithLabelValues(name, normalizeSeverity(c.Severity)).Set(1)
	}
}

func normalizeSeverity(severity string) string {
	severity = strings.TrimSpace(strings.ToLower(severity))
	switch severity {
	case "":
		return "unknown"
	case "info", "informational":
		return "info"
	case "warn", "warning":
		return "warning"
	case "critical", "crit":
		return "critical"
	default:
		return severity
	}
}

// NewHTTPHandler serves the registry in the Prometheus exposition format.
func NewHTTPHandler(store *Store) http.Handler {
	return promhttp.HandlerFor(store.registry, promhttp.HandlerOpts{})
}
