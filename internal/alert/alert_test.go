package alert

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/davidbond17/pingpro/pkg/types"
)

type recordingNotifier struct {
	mu     sync.Mutex
	alerts []Alert
	err    error
}

func (r *recordingNotifier) Notify(ctx context.Context, alert Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, alert)
	return r.err
}

func (r *recordingNotifier) count(kind Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, a := range r.alerts {
		if a.Kind == kind {
			n++
		}
	}
	return n
}

type countingRecorder struct {
	fired, suppressed, failed map[string]int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{fired: map[string]int{}, suppressed: map[string]int{}, failed: map[string]int{}}
}

func (c *countingRecorder) IncAlertFired(kind string)      { c.fired[kind]++ }
func (c *countingRecorder) IncAlertSuppressed(kind string) { c.suppressed[kind]++ }
func (c *countingRecorder) IncAlertFailed(kind string)     { c.failed[kind]++ }

func runInline(fn func()) { fn() }

func newTestManager(n Notifier, clock *time.Time, opts ...Option) *Manager {
	base := []Option{
		WithNow(func() time.Time { return *clock }),
		WithDispatcher(runInline),
		WithPermission(true),
	}
	return NewManager(n, append(base, opts...)...)
}

var enabled = Thresholds{LatencyMs: 150, PacketLossPct: 5, Enabled: true, AlertOnNetworkChange: true}

func TestDebounceSuppressesWithinWindow(t *testing.T) {
	n := &recordingNotifier{}
	clock := time.Unix(1_700_000_000, 0)
	m := newTestManager(n, &clock)
	high := 400.0

	m.CheckThresholds(&high, 0, enabled)
	clock = clock.Add(100 * time.Second)
	m.CheckThresholds(&high, 0, enabled)

	if got := n.count(KindLatencyHigh); got != 1 {
		t.Fatalf("expected 1 latency alert within debounce, got %d", got)
	}
}

func TestDebounceAllowsAfterWindow(t *testing.T) {
	n := &recordingNotifier{}
	clock := time.Unix(1_700_000_000, 0)
	m := newTestManager(n, &clock)
	high := 400.0

	m.CheckThresholds(&high, 0, enabled)
	clock = clock.Add(400 * time.Second)
	m.CheckThresholds(&high, 0, enabled)

	if got := n.count(KindLatencyHigh); got != 2 {
		t.Fatalf("expected 2 latency alerts, got %d", got)
	}
}

func TestDebounceIsPerKind(t *testing.T) {
	n := &recordingNotifier{}
	clock := time.Unix(1_700_000_000, 0)
	rec := newCountingRecorder()
	m := newTestManager(n, &clock, WithMetrics(rec))
	high := 400.0

	m.CheckThresholds(&high, 50, enabled)
	clock = clock.Add(10 * time.Second)
	m.NotifyNetworkChange(types.NetworkWiFi, types.NetworkCellular, enabled)
	m.CheckThresholds(&high, 50, enabled)

	if n.count(KindLatencyHigh) != 1 || n.count(KindPacketLossHigh) != 1 || n.count(KindNetworkChanged) != 1 {
		t.Fatalf("unexpected alerts %+v", n.alerts)
	}
	if rec.suppressed[string(KindLatencyHigh)] != 1 || rec.suppressed[string(KindPacketLossHigh)] != 1 {
		t.Fatalf("expected suppressions to be recorded, got %+v", rec.suppressed)
	}
	if rec.fired[string(KindNetworkChanged)] != 1 {
		t.Fatalf("expected fired network change, got %+v", rec.fired)
	}
}

func TestCheckThresholdsRequiresEnabledAndPermission(t *testing.T) {
	n := &recordingNotifier{}
	clock := time.Unix(0, 0)
	high := 999.0

	m := newTestManager(n, &clock)
	disabled := enabled
	disabled.Enabled = false
	m.CheckThresholds(&high, 90, disabled)

	m.SetPermission(false)
	m.CheckThresholds(&high, 90, enabled)

	if len(n.alerts) != 0 {
		t.Fatalf("expected no alerts, got %+v", n.alerts)
	}
}

func TestCheckThresholdsIgnoresMissingLatency(t *testing.T) {
	n := &recordingNotifier{}
	clock := time.Unix(0, 0)
	m := newTestManager(n, &clock)

	m.CheckThresholds(nil, 5, enabled)
	if len(n.alerts) != 0 {
		t.Fatalf("loss equal to threshold and absent latency must not alert, got %+v", n.alerts)
	}
}

func TestNetworkChangeRequiresFlag(t *testing.T) {
	n := &recordingNotifier{}
	clock := time.Unix(0, 0)
	m := newTestManager(n, &clock)

	th := enabled
	th.AlertOnNetworkChange = false
	m.NotifyNetworkChange(types.NetworkWiFi, types.NetworkWired, th)
	if len(n.alerts) != 0 {
		t.Fatalf("expected network change alert to be gated")
	}

	th.AlertOnNetworkChange = true
	th.Enabled = false
	m.NotifyNetworkChange(types.NetworkWiFi, types.NetworkWired, th)
	if n.count(KindNetworkChanged) != 1 {
		t.Fatalf("network change alerts do not depend on threshold alerts")
	}
	if n.alerts[0].Body != "Switched from WiFi to Wired" {
		t.Fatalf("unexpected body %q", n.alerts[0].Body)
	}
}

func TestObserveScoreImprovement(t *testing.T) {
	n := &recordingNotifier{}
	clock := time.Unix(0, 0)
	m := newTestManager(n, &clock, WithDebounce(0))

	m.ObserveScore(40)
	m.ObserveScore(60)
	if n.count(KindConnectionImproved) != 0 {
		t.Fatalf("a gain of exactly 20 must not fire")
	}
	m.ObserveScore(30)
	m.ObserveScore(51)
	if n.count(KindConnectionImproved) != 1 {
		t.Fatalf("expected improvement alert, got %+v", n.alerts)
	}
}

func TestObserveScoreUpdatesPreviousWithoutPermission(t *testing.T) {
	n := &recordingNotifier{}
	clock := time.Unix(0, 0)
	m := newTestManager(n, &clock)

	m.SetPermission(false)
	m.ObserveScore(10)
	m.ObserveScore(90)
	m.SetPermission(true)
	m.ObserveScore(95)

	if len(n.alerts) != 0 {
		t.Fatalf("expected previous score to track every pass, got %+v", n.alerts)
	}
}

func TestPermissionDeniedRevokesPermission(t *testing.T) {
	n := &recordingNotifier{err: ErrPermissionDenied}
	clock := time.Unix(0, 0)
	rec := newCountingRecorder()
	m := newTestManager(n, &clock, WithMetrics(rec))
	high := 500.0

	m.CheckThresholds(&high, 0, enabled)
	if m.HasPermission() {
		t.Fatalf("expected permission to be revoked")
	}
	if rec.failed[string(KindLatencyHigh)] != 1 {
		t.Fatalf("expected failure to be recorded")
	}

	n.err = nil
	clock = clock.Add(time.Hour)
	m.CheckThresholds(&high, 0, enabled)
	if len(n.alerts) != 1 {
		t.Fatalf("expected suppression until permission granted, got %d", len(n.alerts))
	}

	m.SetPermission(true)
	m.CheckThresholds(&high, 0, enabled)
	if len(n.alerts) != 2 {
		t.Fatalf("expected delivery after permission granted, got %d", len(n.alerts))
	}
}

func TestDeliveryFailureDoesNotRetry(t *testing.T) {
	n := &recordingNotifier{err: errors.New("boom")}
	clock := time.Unix(0, 0)
	m := newTestManager(n, &clock)
	high := 500.0

	m.CheckThresholds(&high, 0, enabled)
	m.CheckThresholds(&high, 0, enabled)
	if len(n.alerts) != 1 {
		t.Fatalf("expected single attempt, got %d", len(n.alerts))
	}
	if !m.HasPermission() {
		t.Fatalf("generic failures must keep permission")
	}
}

func TestMultiJoinsErrors(t *testing.T) {
	ok := &recordingNotifier{}
	bad := &recordingNotifier{err: ErrPermissionDenied}
	err := NewMulti(ok, nil, bad).Notify(context.Background(), Alert{Kind: KindLatencyHigh})
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected joined permission error, got %v", err)
	}
	if len(ok.alerts) != 1 || len(bad.alerts) != 1 {
		t.Fatalf("expected both notifiers called")
	}
}
