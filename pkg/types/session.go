package types

import (
	"time"

	"github.com/google/uuid"
)

// Session is a bounded run of samples against one host, network type and
// cadence. A session with a nil EndTime is active.
type Session struct {
	ID           string      `json:"id" yaml:"id"`
	StartTime    time.Time   `json:"start_time" yaml:"start_time"`
	EndTime      *time.Time  `json:"end_time,omitempty" yaml:"end_time,omitempty"`
	Host         string      `json:"host" yaml:"host"`
	NetworkType  NetworkType `json:"network_type" yaml:"network_type"`
	QualityScore *int        `json:"quality_score,omitempty" yaml:"quality_score,omitempty"`
	IsBackground bool        `json:"is_background" yaml:"is_background"`
	Samples      []Sample    `json:"samples" yaml:"samples"`
}

// NewSession returns an active session with a fresh identifier.
func NewSession(host string, networkType NetworkType, start time.Time) *Session {
	return &Session{
		ID:          uuid.NewString(),
		StartTime:   start,
		Host:        host,
		NetworkType: networkType,
	}
}

func (s *Session) Active() bool {
	return s.EndTime == nil
}

// Append adds a sample, clamping its timestamp so samples never go backwards.
func (s *Session) Append(sample Sample) {
	if n := len(s.Samples); n > 0 {
		if last := s.Samples[n-1].Timestamp; sample.Timestamp.Before(last) {
			sample.Timestamp = last
		}
	}
	s.Samples = append(s.Samples, sample)
}

// Close stamps the end time and final quality score.
func (s *Session) Close(end time.Time, score int) {
	s.EndTime = &end
	s.QualityScore = &score
}

func (s *Session) Stats() Stats {
	return Summarize(s.Samples)
}

// Duration is measured up to now for an active session.
func (s *Session) Duration(now time.Time) time.Duration {
	if s.EndTime == nil {
		return now.Sub(s.StartTime)
	}
	return s.EndTime.Sub(s.StartTime)
}

// Clone returns a deep copy safe to hand to another goroutine.
func (s *Session) Clone() Session {
	out := *s
	if s.EndTime != nil {
		end := *s.EndTime
		out.EndTime = &end
	}
	if s.QualityScore != nil {
		score := *s.QualityScore
		out.QualityScore = &score
	}
	out.Samples = make([]Sample, len(s.Samples))
	copy(out.Samples, s.Samples)
	return out
}
