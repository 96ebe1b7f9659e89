package server

import (
	"time"

	"github.com/davidbond17/pingpro/internal/quality"
	"github.com/davidbond17/pingpro/pkg/types"
)

// sessionSummary is the list view of a session without its samples.
type sessionSummary struct {
	ID           string            `json:"id"`
	StartTime    time.Time         `json:"start_time"`
	EndTime      *time.Time        `json:"end_time,omitempty"`
	Host         string            `json:"host"`
	NetworkType  types.NetworkType `json:"network_type"`
	IsBackground bool              `json:"is_background"`
	QualityScore *int              `json:"quality_score,omitempty"`
	QualityTier  quality.Tier      `json:"quality_tier,omitempty"`
	Stats        types.Stats       `json:"stats"`
}

func summarize(s *types.Session) sessionSummary {
	out := sessionSummary{
		ID:           s.ID,
		StartTime:    s.StartTime,
		EndTime:      s.EndTime,
		Host:         s.Host,
		NetworkType:  s.NetworkType,
		IsBackground: s.IsBackground,
		QualityScore: s.QualityScore,
		Stats:        s.Stats(),
	}
	if s.QualityScore != nil {
		out.QualityTier = quality.TierFor(*s.QualityScore)
	}
	return out
}
