package health

import (
	"fmt"
	"strings"
	"time"

	"github.com/davidbond17/pingpro/internal/metrics"
	"github.com/davidbond17/pingpro/internal/monitor"
)

const stallFactor = 3

const (
	categoryMonitorStalled  = "MONITOR_STALLED"
	categorySessionsPending = "SESSIONS_PENDING"
	categoryNetworkDown     = "NETWORK_DOWN"
)

const (
	severityInfo     = "info"
	severityWarning  = "warning"
	severityCritical = "critical"
)

// MonitorView is the read side of the live loop.
type MonitorView interface {
	Snapshot() monitor.Snapshot
	Config() monitor.Config
}

type PendingCounter interface {
	Pending() int
}

type ConnectivitySource interface {
	Connected() bool
}

// Checker evaluates readiness conditions for the daemon. Any source may be
// nil, in which case its condition is skipped.
type Checker struct {
	metrics *metrics.Store
	monitor MonitorView
	pending PendingCounter
	network ConnectivitySource
}

// NewChecker constructs a readiness checker bound to the provided metrics store.
func NewChecker(store *metrics.Store, mon MonitorView, pending PendingCounter, network ConnectivitySource) *Checker {
	return &Checker{
		metrics: store,
		monitor: mon,
		pending: pending,
		network: network,
	}
}

// Ready evaluates all readiness conditions and returns the overall status and reasons for failure.
func (c *Checker) Ready(now time.Time) (bool, []string) {
	reasons := make([]string, 0, 3)
	categories := make([]metrics.ReadinessCategory, 0, 3)
	appendCategory := func(name, severity string) {
		categories = append(categories, metrics.ReadinessCategory{
			Name:     name,
			Severity: severity,
		})
	}

	if c.monitor != nil {
		snap := c.monitor.Snapshot()
		if snap.IsMonitoring {
			cfg := c.monitor.Config()
			allowed := stallFactor*cfg.Interval + cfg.ProbeTimeout
			last := snap.LastCycle
			if last.IsZero() && snap.StartedAt != nil {
				last = *snap.StartedAt
			}
			if !last.IsZero() && now.Sub(last) > allowed {
				reasons = append(reasons, fmt.Sprintf("monitor stalled (%s since last cycle)", now.Sub(last).Round(time.Second)))
				appendCategory(categoryMonitorStalled, severityCritical)
			}
		}
	}

	if c.pending != nil {
		if n := c.pending.Pending(); n > 0 {
			reasons = append(reasons, fmt.Sprintf("%d sessions awaiting save", n))
			appendCategory(categorySessionsPending, severityWarning)
		}
	}

	if c.network != nil && !c.network.Connected() {
		reasons = append(reasons, "no network interface connected")
		appendCategory(categoryNetworkDown, severityInfo)
	}

	ready := len(reasons) == 0
	if c.metrics != nil {
		if ready {
			c.metrics.ObserveReadiness(true, nil)
		} else {
			c.metrics.ObserveReadiness(false, categories)
		}
	}
	if !ready {
		return false, reasons
	}
	return true, nil
}

// Summary joins reasons for display.
func Summary(reasons []string) string {
	return strings.Join(reasons, "; ")
}
