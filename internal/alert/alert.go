package alert

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/davidbond17/pingpro/internal/metrics"
	"github.com/davidbond17/pingpro/pkg/types"
)

// DefaultDebounce is the minimum spacing between two alerts of the same kind.
const DefaultDebounce = 300 * time.Second

// ImprovementDelta is the score gain over the previous pass that counts as an
// improvement.
const ImprovementDelta = 20

// ErrPermissionDenied is returned by notifiers that lost the right to deliver.
// The manager stops sending until permission is granted again.
var ErrPermissionDenied = errors.New("notification permission denied")

type Kind string

const (
	KindLatencyHigh        Kind = "latency_high"
	KindPacketLossHigh     Kind = "packet_loss_high"
	KindNetworkChanged     Kind = "network_changed"
	KindConnectionImproved Kind = "connection_improved"
)

type Alert struct {
	Kind      Kind      `json:"kind"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Timestamp time.Time `json:"timestamp"`
}

// Thresholds mirror the user's alert settings.
type Thresholds struct {
	LatencyMs            float64
	PacketLossPct        float64
	Enabled              bool
	AlertOnNetworkChange bool
}

// Manager decides whether an alert fires and hands it to a Notifier. Each
// kind is debounced independently for the lifetime of the process.
type Manager struct {
	notifier Notifier
	debounce time.Duration
	now      func() time.Time
	dispatch func(func())
	logger   *log.Logger
	metrics  metrics.AlertRecorder

	mu         sync.Mutex
	permission bool
	lastFired  map[Kind]time.Time
	prevScore  int
	hasPrev    bool
}

type Option func(*Manager)

func WithNow(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

func WithDebounce(d time.Duration) Option {
	return func(m *Manager) {
		if d >= 0 {
			m.debounce = d
		}
	}
}

// WithDispatcher replaces the goroutine used to deliver notifications.
// Tests pass a synchronous dispatcher.
func WithDispatcher(dispatch func(func())) Option {
	return func(m *Manager) {
		if dispatch != nil {
			m.dispatch = dispatch
		}
	}
}

func WithLogger(logger *log.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

func WithMetrics(rec metrics.AlertRecorder) Option {
	return func(m *Manager) {
		if rec != nil {
			m.metrics = rec
		}
	}
}

// WithPermission sets the initial permission state.
func WithPermission(granted bool) Option {
	return func(m *Manager) {
		m.permission = granted
	}
}

func NewManager(notifier Notifier, opts ...Option) *Manager {
	if notifier == nil {
		notifier = Noop{}
	}
	m := &Manager{
		notifier:  notifier,
		debounce:  DefaultDebounce,
		now:       time.Now,
		dispatch:  func(fn func()) { go fn() },
		logger:    log.New(io.Discard, "", 0),
		metrics:   metrics.NoopAlertRecorder{},
		lastFired: make(map[Kind]time.Time),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) SetPermission(granted bool) {
	m.mu.Lock()
	m.permission = granted
	m.mu.Unlock()
}

func (m *Manager) HasPermission() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.permission
}

// CheckThresholds fires latency and packet loss alerts when alerts are
// enabled and the current window exceeds the configured limits.
func (m *Manager) CheckThresholds(avgLatency *float64, packetLossPct float64, th Thresholds) {
	if !th.Enabled || !m.HasPermission() {
		return
	}
	if avgLatency != nil && *avgLatency > th.LatencyMs {
		m.send(KindLatencyHigh,
			"High Latency Detected",
			fmt.Sprintf("Your ping is %dms (threshold: %dms)", int(*avgLatency), int(th.LatencyMs)))
	}
	if packetLossPct > th.PacketLossPct {
		m.send(KindPacketLossHigh,
			"Packet Loss Detected",
			fmt.Sprintf("You're experiencing %.1f%% packet loss", packetLossPct))
	}
}

func (m *Manager) NotifyNetworkChange(from, to types.NetworkType, th Thresholds) {
	if !th.AlertOnNetworkChange || !m.HasPermission() {
		return
	}
	m.send(KindNetworkChanged,
		"Network Changed",
		fmt.Sprintf("Switched from %s to %s", from, to))
}

// ObserveScore records score as the previous score and fires an improvement
// alert when it beats the last observed score by more than ImprovementDelta.
func (m *Manager) ObserveScore(score int) {
	m.mu.Lock()
	prev, hadPrev := m.prevScore, m.hasPrev
	m.prevScore, m.hasPrev = score, true
	m.mu.Unlock()

	if !hadPrev || score-prev <= ImprovementDelta {
		return
	}
	m.NotifyImprovement(score)
}

func (m *Manager) NotifyImprovement(score int) {
	if !m.HasPermission() {
		return
	}
	m.send(KindConnectionImproved,
		"Connection Improved",
		fmt.Sprintf("Your quality score is now %d", score))
}

// send reports whether the alert was handed to the notifier.
func (m *Manager) send(kind Kind, title, body string) bool {
	now := m.now()

	m.mu.Lock()
	if last, ok := m.lastFired[kind]; ok && now.Sub(last) < m.debounce {
		m.mu.Unlock()
		m.metrics.IncAlertSuppressed(string(kind))
		return false
	}
	m.lastFired[kind] = now
	m.mu.Unlock()

	m.metrics.IncAlertFired(string(kind))
	alert := Alert{Kind: kind, Title: title, Body: body, Timestamp: now.UTC()}
	m.dispatch(func() {
		m.deliver(alert)
	})
	return true
}

func (m *Manager) deliver(alert Alert) {
	err := m.notifier.Notify(context.Background(), alert)
	if err == nil {
		return
	}
	m.metrics.IncAlertFailed(string(alert.Kind))
	if errors.Is(err, ErrPermissionDenied) {
		m.SetPermission(false)
		m.logger.Printf("alert permission revoked kind=%s", alert.Kind)
		return
	}
	m.logger.Printf("alert delivery failed kind=%s err=%v", alert.Kind, err)
}
