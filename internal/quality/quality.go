// Package quality maps latency, jitter and loss aggregates to a single
// connection-quality score.
package quality

import "github.com/davidbond17/pingpro/pkg/types"

type Tier string

const (
	TierExcellent Tier = "Excellent"
	TierGood      Tier = "Good"
	TierFair      Tier = "Fair"
	TierPoor      Tier = "Poor"
)

type Breakdown struct {
	LatencyScore    int `json:"latency_score"`
	PacketLossScore int `json:"packet_loss_score"`
	StabilityScore  int `json:"stability_score"`
}

type Result struct {
	Score     int       `json:"score"`
	Tier      Tier      `json:"tier"`
	Breakdown Breakdown `json:"breakdown"`
}

type step struct {
	below float64
	score int
}

var (
	latencySteps = []step{{20, 100}, {50, 90}, {100, 75}, {150, 60}, {200, 40}, {300, 20}}
	lossSteps    = []step{{0.5, 100}, {1, 95}, {2, 85}, {5, 70}, {10, 50}, {20, 30}}
	jitterSteps  = []step{{0.1, 100}, {0.2, 95}, {0.5, 85}, {1.0, 70}, {2.0, 50}}
)

const (
	latencyFloor = 5
	lossFloor    = 10
	jitterFloor  = 30
)

// Score is deterministic and has no side effects. Each sub-score deducts its
// shortfall from 100; the total is clamped to [0, 100].
func Score(avg, min, max *float64, packetLossPct float64) Result {
	b := Breakdown{
		LatencyScore:    latencyScore(avg),
		PacketLossScore: stepped(packetLossPct, lossSteps, lossFloor),
		StabilityScore:  stabilityScore(min, max, avg),
	}

	total := 100 - (100 - b.LatencyScore) - (100 - b.PacketLossScore) - (100 - b.StabilityScore)
	if total < 0 {
		total = 0
	}
	if total > 100 {
		total = 100
	}
	return Result{Score: total, Tier: TierFor(total), Breakdown: b}
}

// FromStats scores a precomputed aggregate.
func FromStats(s types.Stats) Result {
	return Score(s.Avg, s.Min, s.Max, s.PacketLoss)
}

func TierFor(score int) Tier {
	switch {
	case score >= 80:
		return TierExcellent
	case score >= 60:
		return TierGood
	case score >= 40:
		return TierFair
	default:
		return TierPoor
	}
}

func latencyScore(avg *float64) int {
	if avg == nil {
		return 0
	}
	return stepped(*avg, latencySteps, latencyFloor)
}

func stabilityScore(min, max, avg *float64) int {
	if min == nil || max == nil || avg == nil || *avg <= 0 {
		return 100
	}
	ratio := (*max - *min) / *avg
	return stepped(ratio, jitterSteps, jitterFloor)
}

func stepped(v float64, steps []step, floor int) int {
	for _, s := range steps {
		if v < s.below {
			return s.score
		}
	}
	return floor
}
