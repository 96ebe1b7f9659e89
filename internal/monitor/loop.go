// Package monitor runs the foreground probe loop: one probe per interval
// against the configured host, sliding-window statistics, quality scoring,
// alert evaluation and monitoring policy enforcement.
package monitor

import (
	"context"
	"io"
	"log"
	"sync"
	"time"

	"github.com/davidbond17/pingpro/internal/alert"
	"github.com/davidbond17/pingpro/internal/metrics"
	"github.com/davidbond17/pingpro/internal/netwatch"
	"github.com/davidbond17/pingpro/internal/probe"
	"github.com/davidbond17/pingpro/internal/quality"
	"github.com/davidbond17/pingpro/internal/queue"
	"github.com/davidbond17/pingpro/pkg/types"
)

const (
	// MinInterval keeps the loop from saturating the network stack.
	MinInterval     = 500 * time.Millisecond
	DefaultInterval = time.Second
)

// Config is the per-session configuration of the loop.
type Config struct {
	Host         string
	Interval     time.Duration
	ProbeTimeout time.Duration
	Policy       types.MonitoringPolicy
	Thresholds   alert.Thresholds
	WindowSize   int
}

// Alerter receives the per-cycle alert inputs.
type Alerter interface {
	CheckThresholds(avgLatency *float64, packetLossPct float64, th alert.Thresholds)
	NotifyNetworkChange(from, to types.NetworkType, th alert.Thresholds)
	ObserveScore(score int)
}

// Saver receives sessions when they end.
type Saver interface {
	Save(ctx context.Context, session types.Session) error
}

type noopAlerter struct{}

func (noopAlerter) CheckThresholds(*float64, float64, alert.Thresholds)                        {}
func (noopAlerter) NotifyNetworkChange(types.NetworkType, types.NetworkType, alert.Thresholds) {}
func (noopAlerter) ObserveScore(int)                                                           {}

type noopSaver struct{}

func (noopSaver) Save(context.Context, types.Session) error { return nil }

// Dependencies are the collaborators injected into a Loop.
type Dependencies struct {
	Prober        probe.Prober
	Network       netwatch.Source
	Alerts        Alerter
	Saver         Saver
	ProbeMetrics  metrics.ProbeRecorder
	LiveMetrics   metrics.LiveRecorder
	WindowMetrics metrics.WindowRecorder
	Logger        *log.Logger
	Now           func() time.Time
}

// Loop is the Idle/Running state machine. At most one probe cycle runs at a
// time, and results of a cycle that completes after its run was stopped are
// discarded.
type Loop struct {
	prober   probe.Prober
	network  netwatch.Source
	alerts   Alerter
	saver    Saver
	probeRec metrics.ProbeRecorder
	liveRec  metrics.LiveRecorder
	logger   *log.Logger
	now      func() time.Time

	minInterval time.Duration

	// opMu serializes Start, Stop and the update operations.
	opMu sync.Mutex

	mu         sync.Mutex
	cfg        Config
	state      State
	session    *types.Session
	window     *queue.Window
	lastType   types.NetworkType
	generation uint64
	cancel     context.CancelFunc
	done       chan struct{}
	snapshot   Snapshot

	subMu sync.Mutex
	subs  map[chan Snapshot]struct{}
}

func New(cfg Config, deps Dependencies) *Loop {
	if deps.Prober == nil {
		deps.Prober = probe.NewHTTPProber()
	}
	if deps.Network == nil {
		deps.Network = netwatch.NewStatic(types.NetworkUnknown)
	}
	if deps.Alerts == nil {
		deps.Alerts = noopAlerter{}
	}
	if deps.Saver == nil {
		deps.Saver = noopSaver{}
	}
	if deps.ProbeMetrics == nil {
		deps.ProbeMetrics = metrics.NoopProbeRecorder{}
	}
	if deps.LiveMetrics == nil {
		deps.LiveMetrics = metrics.NoopLiveRecorder{}
	}
	if deps.Logger == nil {
		deps.Logger = log.New(io.Discard, "", 0)
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = probe.DefaultTimeout
	}
	if !cfg.Policy.Valid() {
		cfg.Policy = types.PolicyAuto
	}
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = queue.DefaultWindowSize
	}

	window := queue.NewWindow(cfg.WindowSize)
	if deps.WindowMetrics != nil {
		window.SetMetricsRecorder(deps.WindowMetrics)
	}

	l := &Loop{
		prober:      deps.Prober,
		network:     deps.Network,
		alerts:      deps.Alerts,
		saver:       deps.Saver,
		probeRec:    deps.ProbeMetrics,
		liveRec:     deps.LiveMetrics,
		logger:      deps.Logger,
		now:         deps.Now,
		minInterval: MinInterval,
		cfg:         cfg,
		state:       StateIdle,
		window:      window,
		subs:        make(map[chan Snapshot]struct{}),
	}
	l.snapshot = idleSnapshot(cfg.Host, l.intervalLocked(), deps.Network.CurrentType(), deps.Network.Connected())
	return l
}

func (l *Loop) intervalLocked() time.Duration {
	if l.cfg.Interval < l.minInterval {
		return l.minInterval
	}
	return l.cfg.Interval
}

func (l *Loop) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *Loop) Config() Config {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cfg
}

func (l *Loop) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshot
}

// Start creates a new session and begins probing. It is a no-op while
// running. Cancelling ctx does not stop the loop; use Stop.
func (l *Loop) Start(ctx context.Context) {
	l.opMu.Lock()
	defer l.opMu.Unlock()
	l.start(ctx)
}

func (l *Loop) start(ctx context.Context) {
	l.mu.Lock()
	if l.state == StateRunning {
		l.mu.Unlock()
		return
	}

	nt := l.network.CurrentType()
	now := l.now()
	if ShouldPause(l.cfg.Policy, nt) {
		l.logger.Printf("monitor start policy=%s network=%s: outside policy, pausing on next change", l.cfg.Policy, nt)
	}

	l.state = StateRunning
	l.session = types.NewSession(l.cfg.Host, nt, now.UTC())
	l.window.Reset()
	l.lastType = nt
	l.generation++
	gen := l.generation

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	l.cancel = cancel
	done := make(chan struct{})
	l.done = done

	started := l.session.StartTime
	l.snapshot = idleSnapshot(l.cfg.Host, l.intervalLocked(), nt, l.network.Connected())
	l.snapshot.IsMonitoring = true
	l.snapshot.State = StateRunning
	l.snapshot.SessionID = l.session.ID
	l.snapshot.StartedAt = &started
	snap := l.snapshot
	l.mu.Unlock()

	l.logger.Printf("monitor started session=%s host=%s interval=%s network=%s", snap.SessionID, snap.Host, snap.Interval, nt)
	l.liveRec.ObserveLive(true, nil, snap.QualityScore, 0)
	l.publish()

	go l.run(runCtx, gen, done)
}

// Stop ends the active session and hands it to the saver. It waits for the
// running cycle to exit or for ctx to expire. A failed save is logged and
// does not affect the loop state.
func (l *Loop) Stop(ctx context.Context) error {
	l.opMu.Lock()
	defer l.opMu.Unlock()
	return l.stop(ctx)
}

func (l *Loop) stop(ctx context.Context) error {
	l.mu.Lock()
	if l.state != StateRunning {
		l.mu.Unlock()
		return nil
	}
	finished, done := l.stopLocked()
	l.mu.Unlock()

	l.publish()
	l.liveRec.ObserveLive(false, nil, 0, 0)

	var waitErr error
	select {
	case <-done:
	case <-ctx.Done():
		waitErr = ctx.Err()
	}
	l.persist(ctx, finished)
	return waitErr
}

// stopLocked transitions to Idle and returns the closed session along with
// the channel closed when the run goroutine exits.
func (l *Loop) stopLocked() (types.Session, chan struct{}) {
	l.state = StateIdle
	l.generation++
	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
	done := l.done
	l.done = nil

	final := quality.FromStats(l.session.Stats())
	l.session.Close(l.now().UTC(), final.Score)
	finished := l.session.Clone()
	l.session = nil
	l.window.Reset()
	l.snapshot = idleSnapshot(l.cfg.Host, l.intervalLocked(), l.lastType, l.network.Connected())
	return finished, done
}

func (l *Loop) persist(ctx context.Context, session types.Session) {
	score := 0
	if session.QualityScore != nil {
		score = *session.QualityScore
	}
	l.logger.Printf("monitor stopped session=%s samples=%d score=%d", session.ID, len(session.Samples), score)
	if err := l.saver.Save(context.WithoutCancel(ctx), session); err != nil {
		l.logger.Printf("monitor session kept in memory session=%s err=%v", session.ID, err)
	}
}

// UpdateHost changes the target. A running loop is restarted so the new
// host gets its own session.
func (l *Loop) UpdateHost(ctx context.Context, host string) error {
	l.opMu.Lock()
	defer l.opMu.Unlock()

	l.mu.Lock()
	l.cfg.Host = host
	running := l.state == StateRunning
	if !running {
		l.snapshot.Host = host
	}
	l.mu.Unlock()
	return l.restart(ctx, running)
}

// UpdateInterval changes the cadence, restarting a running loop.
func (l *Loop) UpdateInterval(ctx context.Context, interval time.Duration) error {
	l.opMu.Lock()
	defer l.opMu.Unlock()

	l.mu.Lock()
	if interval <= 0 {
		interval = DefaultInterval
	}
	l.cfg.Interval = interval
	running := l.state == StateRunning
	if !running {
		l.snapshot.Interval = l.intervalLocked()
	}
	l.mu.Unlock()
	return l.restart(ctx, running)
}

func (l *Loop) restart(ctx context.Context, running bool) error {
	if !running {
		return nil
	}
	err := l.stop(ctx)
	l.start(ctx)
	return err
}

func (l *Loop) SetPolicy(policy types.MonitoringPolicy) {
	if !policy.Valid() {
		return
	}
	l.mu.Lock()
	l.cfg.Policy = policy
	l.mu.Unlock()
}

func (l *Loop) SetThresholds(th alert.Thresholds) {
	l.mu.Lock()
	l.cfg.Thresholds = th
	l.mu.Unlock()
}

func (l *Loop) SetProbeTimeout(timeout time.Duration) {
	if timeout <= 0 {
		return
	}
	l.mu.Lock()
	l.cfg.ProbeTimeout = timeout
	l.mu.Unlock()
}

func (l *Loop) run(ctx context.Context, gen uint64, done chan struct{}) {
	defer close(done)
	for {
		interval, ok := l.cycle(ctx, gen)
		if !ok || ctx.Err() != nil {
			return
		}
		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// cycle runs one probe and folds its sample into the session. It reports
// the sleep before the next cycle and whether the run should continue.
func (l *Loop) cycle(ctx context.Context, gen uint64) (time.Duration, bool) {
	l.mu.Lock()
	if l.generation != gen || l.state != StateRunning {
		l.mu.Unlock()
		return 0, false
	}
	host := l.cfg.Host
	timeout := l.cfg.ProbeTimeout
	l.mu.Unlock()

	nt := l.network.CurrentType()
	connected := l.network.Connected()
	sample := l.prober.Probe(ctx, host, timeout, nt)

	l.mu.Lock()
	if l.generation != gen || l.state != StateRunning {
		l.mu.Unlock()
		return 0, false
	}
	l.probeRec.ObserveProbe(metrics.ModeForeground, sample.Succeeded, latencyDuration(sample))

	l.session.Append(sample)
	l.window.Push(sample)
	stats := l.window.Stats()
	result := quality.FromStats(stats)

	cfg := l.cfg
	from := l.lastType
	changed := nt != from
	pause := changed && ShouldPause(cfg.Policy, nt)
	l.lastType = nt

	l.snapshot.NetworkType = nt
	l.snapshot.Connected = connected
	l.snapshot.CurrentLatency = stats.Current
	l.snapshot.MinLatency = stats.Min
	l.snapshot.MaxLatency = stats.Max
	l.snapshot.AvgLatency = stats.Avg
	l.snapshot.PacketLoss = stats.PacketLoss
	l.snapshot.QualityScore = result.Score
	l.snapshot.QualityTier = result.Tier
	l.snapshot.Breakdown = result.Breakdown
	l.snapshot.WindowSamples = l.window.Len()
	l.snapshot.SessionSamples = len(l.session.Samples)
	l.snapshot.LastCycle = sample.Timestamp

	var (
		finished types.Session
		stopped  bool
	)
	if pause {
		finished, _ = l.stopLocked()
		stopped = true
	}
	interval := l.intervalLocked()
	l.mu.Unlock()

	l.liveRec.ObserveLive(!stopped, stats.Current, result.Score, stats.PacketLoss)
	l.alerts.CheckThresholds(stats.Avg, stats.PacketLoss, cfg.Thresholds)
	l.alerts.ObserveScore(result.Score)
	if changed {
		l.logger.Printf("monitor network changed from=%s to=%s policy=%s", from, nt, cfg.Policy)
		l.alerts.NotifyNetworkChange(from, nt, cfg.Thresholds)
	}
	l.publish()

	if stopped {
		l.logger.Printf("monitor paused by policy=%s network=%s", cfg.Policy, nt)
		l.persist(ctx, finished)
		return 0, false
	}
	return interval, true
}

func latencyDuration(s types.Sample) time.Duration {
	if s.Latency == nil {
		return 0
	}
	return time.Duration(*s.Latency * float64(time.Millisecond))
}

// Subscribe returns a channel that always holds the most recent snapshot.
// Slow readers skip intermediate snapshots. The returned func unsubscribes.
func (l *Loop) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)
	ch <- l.Snapshot()
	l.subMu.Lock()
	l.subs[ch] = struct{}{}
	l.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			l.subMu.Lock()
			delete(l.subs, ch)
			l.subMu.Unlock()
		})
	}
}

// publish pushes the current snapshot rather than a captured one so a late
// cycle cannot overwrite a newer state.
func (l *Loop) publish() {
	l.subMu.Lock()
	defer l.subMu.Unlock()
	snap := l.Snapshot()
	for ch := range l.subs {
		select {
		case ch <- snap:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}
