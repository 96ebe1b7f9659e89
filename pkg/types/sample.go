package types

import "time"

// Sample is the recorded outcome of one probe. A nil Latency means the probe
// timed out or failed.
type Sample struct {
	Timestamp   time.Time   `json:"ts" yaml:"ts"`
	Latency     *float64    `json:"latency_ms,omitempty" yaml:"latency_ms,omitempty"`
	Succeeded   bool        `json:"succeeded" yaml:"succeeded"`
	Host        string      `json:"host" yaml:"host"`
	NetworkType NetworkType `json:"network_type" yaml:"network_type"`
}

func (s Sample) TimedOut() bool {
	return s.Latency == nil
}

// Stats are latency aggregates over a sample set. Min, Max and Avg only
// consider samples with a latency and are nil when there are none.
type Stats struct {
	Count      int      `json:"count"`
	Failed     int      `json:"failed"`
	Min        *float64 `json:"min_ms,omitempty"`
	Max        *float64 `json:"max_ms,omitempty"`
	Avg        *float64 `json:"avg_ms,omitempty"`
	PacketLoss float64  `json:"packet_loss_pct"`
	Current    *float64 `json:"current_ms,omitempty"`
}

// Summarize computes Stats over samples in order.
func Summarize(samples []Sample) Stats {
	stats := Stats{Count: len(samples)}
	if len(samples) == 0 {
		return stats
	}

	var (
		sum      float64
		measured int
		min, max float64
	)
	for _, s := range samples {
		if !s.Succeeded {
			stats.Failed++
		}
		if s.Latency == nil {
			continue
		}
		v := *s.Latency
		if measured == 0 || v < min {
			min = v
		}
		if measured == 0 || v > max {
			max = v
		}
		sum += v
		measured++
	}
	if measured > 0 {
		avg := sum / float64(measured)
		stats.Min = &min
		stats.Max = &max
		stats.Avg = &avg
	}
	stats.PacketLoss = float64(stats.Failed) / float64(len(samples)) * 100
	if last := samples[len(samples)-1].Latency; last != nil {
		v := *last
		stats.Current = &v
	}
	return stats
}

// Float returns a pointer to v.
func Float(v float64) *float64 {
	return &v
}
