package metrics

import "time"

type WindowRecorder interface {
	ObserveWindowDepth(depth int)
	IncWindowEvictions()
}

type NoopWindowRecorder struct{}

func (NoopWindowRecorder) ObserveWindowDepth(depth int) {}
func (NoopWindowRecorder) IncWindowEvictions()          {}

// Probe modes.
const (
	ModeForeground = "foreground"
	ModeBackground = "background"
)

type ProbeRecorder interface {
	ObserveProbe(mode string, succeeded bool, latency time.Duration)
}

type NoopProbeRecorder struct{}

func (NoopProbeRecorder) ObserveProbe(mode string, succeeded bool, latency time.Duration) {}

type LiveRecorder interface {
	ObserveLive(active bool, currentMs *float64, score int, packetLossPct float64)
}

type NoopLiveRecorder struct{}

func (NoopLiveRecorder) ObserveLive(active bool, currentMs *float64, score int, packetLossPct float64) {
}

type AlertRecorder interface {
	IncAlertFired(kind string)
	IncAlertSuppressed(kind string)
	IncAlertFailed(kind string)
}

type NoopAlertRecorder struct{}

func (NoopAlertRecorder) IncAlertFired(kind string)      {}
func (NoopAlertRecorder) IncAlertSuppressed(kind string) {}
func (NoopAlertRecorder) IncAlertFailed(kind string)     {}

type SessionRecorder interface {
	IncSessionSaved(background bool)
	IncSessionSaveFailed()
	ObservePendingSessions(n int)
}

type NoopSessionRecorder struct{}

func (NoopSessionRecorder) IncSessionSaved(background bool) {}
func (NoopSessionRecorder) IncSessionSaveFailed()           {}
func (NoopSessionRecorder) ObservePendingSessions(n int)    {}

// Background cycle outcomes.
const (
	OutcomeCompleted = "completed"
	OutcomeSkipped   = "skipped"
	OutcomeEmpty     = "empty"
	OutcomeBusy      = "busy"
)

type BackgroundRecorder interface {
	IncBackgroundCycle(outcome string)
}

type NoopBackgroundRecorder struct{}

func (NoopBackgroundRecorder) IncBackgroundCycle(outcome string) {}
