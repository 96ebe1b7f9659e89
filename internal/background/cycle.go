// Package background runs the externally triggered probe burst that keeps
// measuring while the foreground loop is not running.
package background

import (
	"context"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/davidbond17/pingpro/internal/metrics"
	"github.com/davidbond17/pingpro/internal/probe"
	"github.com/davidbond17/pingpro/internal/quality"
	"github.com/davidbond17/pingpro/internal/scheduler"
	"github.com/davidbond17/pingpro/pkg/types"
)

const (
	ProbeCount      = 5
	ProbeSpacing    = time.Second
	ProbeTimeout    = 5 * time.Second
	DefaultInterval = 15 * time.Minute
)

// Settings control when and how the cycle runs.
type Settings struct {
	Enabled  bool
	Interval time.Duration
	WiFiOnly bool
	Host     string
}

// Detector reports the current network type at trigger time.
type Detector interface {
	Detect(ctx context.Context) types.NetworkType
}

type DetectorFunc func(ctx context.Context) types.NetworkType

func (f DetectorFunc) Detect(ctx context.Context) types.NetworkType {
	return f(ctx)
}

// Saver receives completed background sessions.
type Saver interface {
	Save(ctx context.Context, session types.Session) error
}

type Dependencies struct {
	Scheduler    scheduler.BackgroundScheduler
	Prober       probe.Prober
	Detector     Detector
	Saver        Saver
	Metrics      metrics.BackgroundRecorder
	ProbeMetrics metrics.ProbeRecorder
	Logger       *log.Logger
	Now          func() time.Time
	// OnComplete is called with the end time of every cycle that saved a
	// session.
	OnComplete func(time.Time)
}

// Result describes one trigger.
type Result struct {
	Outcome string
	Session *types.Session
}

// Cycle handles background triggers. Triggers that arrive while one is in
// flight are ignored.
type Cycle struct {
	scheduler  scheduler.BackgroundScheduler
	prober     probe.Prober
	detector   Detector
	saver      Saver
	metrics    metrics.BackgroundRecorder
	probeRec   metrics.ProbeRecorder
	logger     *log.Logger
	now        func() time.Time
	onComplete func(time.Time)

	spacing  time.Duration
	timeout  time.Duration
	inFlight atomic.Bool

	mu       sync.Mutex
	settings Settings
}

func New(settings Settings, deps Dependencies) *Cycle {
	if settings.Interval <= 0 {
		settings.Interval = DefaultInterval
	}
	c := &Cycle{
		scheduler:  deps.Scheduler,
		prober:     deps.Prober,
		detector:   deps.Detector,
		saver:      deps.Saver,
		metrics:    deps.Metrics,
		probeRec:   deps.ProbeMetrics,
		logger:     deps.Logger,
		now:        deps.Now,
		onComplete: deps.OnComplete,
		spacing:    ProbeSpacing,
		timeout:    ProbeTimeout,
		settings:   settings,
	}
	if c.prober == nil {
		c.prober = probe.NewHTTPProber()
	}
	if c.detector == nil {
		c.detector = DetectorFunc(func(context.Context) types.NetworkType { return types.NetworkUnknown })
	}
	if c.metrics == nil {
		c.metrics = metrics.NoopBackgroundRecorder{}
	}
	if c.probeRec == nil {
		c.probeRec = metrics.NoopProbeRecorder{}
	}
	if c.logger == nil {
		c.logger = log.New(io.Discard, "", 0)
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

func (c *Cycle) Settings() Settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings
}

// Register installs the trigger handler and schedules the first run when
// background monitoring is enabled.
func (c *Cycle) Register() {
	if c.scheduler == nil {
		return
	}
	c.scheduler.OnTrigger(func(ctx context.Context) {
		c.HandleBackgroundTrigger(ctx)
	})
	c.scheduleNext()
}

// Update applies new settings, rescheduling or cancelling as needed.
func (c *Cycle) Update(settings Settings) {
	if settings.Interval <= 0 {
		settings.Interval = DefaultInterval
	}
	c.mu.Lock()
	c.settings = settings
	c.mu.Unlock()

	if !settings.Enabled {
		c.Disable()
		return
	}
	c.scheduleNext()
}

// Disable cancels any scheduled trigger.
func (c *Cycle) Disable() {
	c.mu.Lock()
	c.settings.Enabled = false
	c.mu.Unlock()
	if c.scheduler != nil {
		c.scheduler.Cancel()
	}
}

func (c *Cycle) scheduleNext() {
	s := c.Settings()
	if !s.Enabled || c.scheduler == nil {
		return
	}
	c.scheduler.ScheduleNext(s.Interval)
}

// HandleBackgroundTrigger runs one burst. Cancellation of ctx is honored
// between probes; samples collected before it are still saved.
func (c *Cycle) HandleBackgroundTrigger(ctx context.Context) Result {
	if !c.inFlight.CompareAndSwap(false, true) {
		c.metrics.IncBackgroundCycle(metrics.OutcomeBusy)
		c.logger.Printf("background trigger ignored: cycle in flight")
		return Result{Outcome: metrics.OutcomeBusy}
	}
	defer c.inFlight.Store(false)

	c.scheduleNext()
	settings := c.Settings()

	nt := c.detector.Detect(ctx)
	if settings.WiFiOnly && nt != types.NetworkWiFi {
		c.metrics.IncBackgroundCycle(metrics.OutcomeSkipped)
		c.logger.Printf("background cycle skipped network=%s wifi_only=true", nt)
		return Result{Outcome: metrics.OutcomeSkipped}
	}

	req := probe.Request{Host: settings.Host, Timeout: c.timeout, NetworkType: nt}
	samples := probe.Burst(ctx, c.prober, req, ProbeCount, c.spacing)
	for _, s := range samples {
		var latency time.Duration
		if s.Latency != nil {
			latency = time.Duration(*s.Latency * float64(time.Millisecond))
		}
		c.probeRec.ObserveProbe(metrics.ModeBackground, s.Succeeded, latency)
	}
	if len(samples) == 0 {
		c.metrics.IncBackgroundCycle(metrics.OutcomeEmpty)
		c.logger.Printf("background cycle collected no samples err=%v", ctx.Err())
		return Result{Outcome: metrics.OutcomeEmpty}
	}

	session := c.buildSession(settings.Host, nt, samples)
	if err := c.saver.Save(context.WithoutCancel(ctx), session); err != nil {
		c.logger.Printf("background session kept in memory session=%s err=%v", session.ID, err)
	}
	c.metrics.IncBackgroundCycle(metrics.OutcomeCompleted)
	c.logger.Printf("background cycle completed session=%s samples=%d score=%d network=%s", session.ID, len(session.Samples), *session.QualityScore, nt)
	if c.onComplete != nil {
		c.onComplete(*session.EndTime)
	}
	return Result{Outcome: metrics.OutcomeCompleted, Session: &session}
}

// buildSession back-dates the burst so sample i sits i seconds after a
// start n seconds before now.
func (c *Cycle) buildSession(host string, nt types.NetworkType, samples []types.Sample) types.Session {
	now := c.now().UTC()
	start := now.Add(-time.Duration(len(samples)) * time.Second)

	session := types.NewSession(host, nt, start)
	session.IsBackground = true
	for i, s := range samples {
		s.Timestamp = start.Add(time.Duration(i) * time.Second)
		s.Host = host
		s.NetworkType = nt
		session.Append(s)
	}
	session.Close(now, quality.FromStats(session.Stats()).Score)
	return *session
}
