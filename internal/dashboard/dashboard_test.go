package dashboard

import (
	"strings"
	"testing"
	"time"

	"github.com/davidbond17/pingpro/internal/insights"
	"github.com/davidbond17/pingpro/internal/monitor"
	"github.com/davidbond17/pingpro/internal/quality"
	"github.com/davidbond17/pingpro/pkg/types"
)

func TestFormatIdle(t *testing.T) {
	out := Format(monitor.Snapshot{
		State:       monitor.StateIdle,
		Host:        "8.8.8.8",
		Interval:    time.Second,
		NetworkType: types.NetworkWiFi,
		Connected:   true,
		QualityTier: quality.TierPoor,
	})
	for _, want := range []string{"idle", "8.8.8.8 every 1s", "Current:  --", "Loss:     0.0%"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Samples:") {
		t.Fatalf("idle output should not show sample counts:\n%s", out)
	}
}

func TestFormatRunning(t *testing.T) {
	out := Format(monitor.Snapshot{
		IsMonitoring:   true,
		State:          monitor.StateRunning,
		Host:           "example.com",
		Interval:       2 * time.Second,
		NetworkType:    types.NetworkCellular,
		Connected:      false,
		CurrentLatency: types.Float(42.4),
		AvgLatency:     types.Float(40),
		MinLatency:     types.Float(30),
		MaxLatency:     types.Float(55),
		PacketLoss:     12.5,
		QualityScore:   65,
		QualityTier:    quality.TierGood,
		Breakdown:      quality.Breakdown{LatencyScore: 90, PacketLossScore: 50, StabilityScore: 85},
		WindowSamples:  8,
		SessionSamples: 20,
	})
	for _, want := range []string{
		"monitoring",
		"(disconnected)",
		"Current:  42 ms",
		"Min/Max:  30 ms / 55 ms",
		"Loss:     12.5%",
		"[blue]65 Good",
		"latency 90  loss 50  stability 85",
		"8 in window, 20 in session",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestFormatRecommendations(t *testing.T) {
	if got := FormatRecommendations(nil); !strings.Contains(got, "waiting") {
		t.Fatalf("unexpected empty rendering %q", got)
	}
	out := FormatRecommendations(insights.Recommend(types.Float(25), 0.2))
	if lines := strings.Count(out, "\n"); lines != len(insights.Activities) {
		t.Fatalf("expected %d lines, got %d", len(insights.Activities), lines)
	}
	if !strings.Contains(out, "[yellow]Competitive Gaming") {
		t.Fatalf("expected competitive gaming in yellow:\n%s", out)
	}
}
