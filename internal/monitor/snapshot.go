package monitor

import (
	"time"

	"github.com/davidbond17/pingpro/internal/quality"
	"github.com/davidbond17/pingpro/pkg/types"
)

type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
)

// Snapshot is the read-only view of the loop published to presentation.
// Latency aggregates cover the sliding window, not the whole session.
type Snapshot struct {
	IsMonitoring   bool              `json:"is_monitoring"`
	State          State             `json:"state"`
	NetworkType    types.NetworkType `json:"network_type"`
	Connected      bool              `json:"connected"`
	CurrentLatency *float64          `json:"current_latency_ms,omitempty"`
	MinLatency     *float64          `json:"min_latency_ms,omitempty"`
	MaxLatency     *float64          `json:"max_latency_ms,omitempty"`
	AvgLatency     *float64          `json:"avg_latency_ms,omitempty"`
	PacketLoss     float64           `json:"packet_loss_pct"`
	QualityScore   int               `json:"quality_score"`
	QualityTier    quality.Tier      `json:"quality_tier"`
	Breakdown      quality.Breakdown `json:"breakdown"`
	SessionID      string            `json:"session_id,omitempty"`
	Host           string            `json:"host"`
	Interval       time.Duration     `json:"interval_ns"`
	WindowSamples  int               `json:"window_samples"`
	SessionSamples int               `json:"session_samples"`
	StartedAt      *time.Time        `json:"started_at,omitempty"`
	LastCycle      time.Time         `json:"last_cycle,omitempty"`
}

func idleSnapshot(host string, interval time.Duration, nt types.NetworkType, connected bool) Snapshot {
	return Snapshot{
		State:       StateIdle,
		NetworkType: nt,
		Connected:   connected,
		QualityTier: quality.TierPoor,
		Host:        host,
		Interval:    interval,
	}
}
