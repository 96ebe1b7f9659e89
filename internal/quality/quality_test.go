package quality

import (
	"testing"
	"time"

	"github.com/davidbond17/pingpro/pkg/types"
)

func f(v float64) *float64 { return &v }

func TestScoreAllAbsent(t *testing.T) {
	res := Score(nil, nil, nil, 0)
	if res.Breakdown.LatencyScore != 0 {
		t.Fatalf("expected latency score 0 got %d", res.Breakdown.LatencyScore)
	}
	if res.Breakdown.PacketLossScore != 100 || res.Breakdown.StabilityScore != 100 {
		t.Fatalf("unexpected breakdown %+v", res.Breakdown)
	}
	if res.Score != 0 || res.Tier != TierPoor {
		t.Fatalf("expected score 0/Poor got %d/%s", res.Score, res.Tier)
	}
}

func TestScorePerfectConnection(t *testing.T) {
	res := Score(f(12), f(11), f(12.5), 0)
	if res.Score != 100 || res.Tier != TierExcellent {
		t.Fatalf("expected 100/Excellent got %d/%s", res.Score, res.Tier)
	}
}

func TestScoreTraceFiveProbes(t *testing.T) {
	base := time.Unix(0, 0)
	latencies := []*float64{f(10), f(20), f(30), nil, f(15)}
	samples := make([]types.Sample, 0, len(latencies))
	for i, l := range latencies {
		samples = append(samples, types.Sample{
			Timestamp: base.Add(time.Duration(i) * time.Second),
			Latency:   l,
			Succeeded: l != nil,
			Host:      "8.8.8.8",
		})
	}

	stats := types.Summarize(samples)
	if *stats.Avg != 18.75 || *stats.Min != 10 || *stats.Max != 30 || stats.PacketLoss != 20 {
		t.Fatalf("unexpected aggregates %+v", stats)
	}

	res := FromStats(stats)
	want := Breakdown{LatencyScore: 100, PacketLossScore: 10, StabilityScore: 50}
	if res.Breakdown != want {
		t.Fatalf("unexpected breakdown %+v want %+v", res.Breakdown, want)
	}
	if res.Score != 0 || res.Tier != TierPoor {
		t.Fatalf("expected clamped 0/Poor got %d/%s", res.Score, res.Tier)
	}
}

func TestLatencySteps(t *testing.T) {
	cases := []struct {
		avg  float64
		want int
	}{
		{0, 100}, {19.99, 100}, {20, 90}, {49, 90}, {50, 75}, {99, 75},
		{100, 60}, {149, 60}, {150, 40}, {199, 40}, {200, 20}, {299, 20}, {300, 5}, {5000, 5},
	}
	for _, tc := range cases {
		if got := Score(f(tc.avg), nil, nil, 0).Breakdown.LatencyScore; got != tc.want {
			t.Fatalf("latency %v: got %d want %d", tc.avg, got, tc.want)
		}
	}
}

func TestPacketLossSteps(t *testing.T) {
	cases := []struct {
		loss float64
		want int
	}{
		{0, 100}, {0.49, 100}, {0.5, 95}, {1, 85}, {2, 70}, {5, 50}, {10, 30}, {19.9, 30}, {20, 10}, {100, 10},
	}
	for _, tc := range cases {
		if got := Score(nil, nil, nil, tc.loss).Breakdown.PacketLossScore; got != tc.want {
			t.Fatalf("loss %v: got %d want %d", tc.loss, got, tc.want)
		}
	}
}

func TestStabilityTreatsMissingAsStable(t *testing.T) {
	if got := Score(f(0), f(0), f(0), 0).Breakdown.StabilityScore; got != 100 {
		t.Fatalf("expected zero average to be stable, got %d", got)
	}
	if got := Score(f(40), nil, f(80), 0).Breakdown.StabilityScore; got != 100 {
		t.Fatalf("expected missing min to be stable, got %d", got)
	}
	if got := Score(f(10), f(0), f(100), 0).Breakdown.StabilityScore; got != 30 {
		t.Fatalf("expected ratio 10 to score 30, got %d", got)
	}
}

func TestTierBoundaries(t *testing.T) {
	cases := map[int]Tier{100: TierExcellent, 80: TierExcellent, 79: TierGood, 60: TierGood, 59: TierFair, 40: TierFair, 39: TierPoor, 0: TierPoor}
	for score, want := range cases {
		if got := TierFor(score); got != want {
			t.Fatalf("TierFor(%d) = %s want %s", score, got, want)
		}
	}
}

func TestScoreMonotonic(t *testing.T) {
	grid := []float64{0, 0.3, 0.7, 1.5, 4, 9, 15, 19, 25, 40, 60, 90, 120, 160, 220, 280, 400, 1000}

	for _, loss := range []float64{0, 3, 12} {
		prev := 101
		for _, avg := range grid {
			got := Score(f(avg), f(avg), f(avg), loss).Score
			if got > prev {
				t.Fatalf("score increased with avg latency %v (loss %v): %d > %d", avg, loss, got, prev)
			}
			prev = got
		}
	}

	for _, avg := range []float64{10, 80, 250} {
		prev := 101
		for _, loss := range grid {
			if loss > 100 {
				continue
			}
			got := Score(f(avg), f(avg), f(avg), loss).Score
			if got > prev {
				t.Fatalf("score increased with loss %v (avg %v): %d > %d", loss, avg, got, prev)
			}
			prev = got
		}
	}

	for _, avg := range []float64{10, 80, 250} {
		prev := 101
		for _, ratio := range grid {
			spread := ratio * avg
			got := Score(f(avg), f(avg-spread/2), f(avg+spread/2), 0).Score
			if got > prev {
				t.Fatalf("score increased with jitter ratio %v (avg %v): %d > %d", ratio, avg, got, prev)
			}
			prev = got
		}
	}
}

func TestScoreBoundsOverGrid(t *testing.T) {
	vals := []float64{0, 1, 10, 49, 101, 250, 999}
	for _, a := range vals {
		for _, lo := range vals {
			for _, hi := range vals {
				for _, loss := range []float64{0, 1.5, 7, 50, 100} {
					res := Score(f(a), f(lo), f(hi), loss)
					if res.Score < 0 || res.Score > 100 {
						t.Fatalf("score out of range: %d", res.Score)
					}
					if res.Tier != TierFor(res.Score) {
						t.Fatalf("tier mismatch for score %d", res.Score)
					}
				}
			}
		}
	}
}
