package types

import (
	"encoding/json"
	"testing"
	"time"
)

func sampleAt(ts time.Time, latency *float64) Sample {
	return Sample{
		Timestamp:   ts,
		Latency:     latency,
		Succeeded:   latency != nil,
		Host:        "8.8.8.8",
		NetworkType: NetworkWiFi,
	}
}

func TestSummarizeEmpty(t *testing.T) {
	stats := Summarize(nil)
	if stats.Count != 0 || stats.PacketLoss != 0 {
		t.Fatalf("unexpected stats for empty input: %+v", stats)
	}
	if stats.Min != nil || stats.Max != nil || stats.Avg != nil || stats.Current != nil {
		t.Fatalf("expected absent aggregates, got %+v", stats)
	}
}

func TestSummarizeMixedSamples(t *testing.T) {
	base := time.Unix(1000, 0).UTC()
	samples := []Sample{
		sampleAt(base, Float(10)),
		sampleAt(base.Add(time.Second), Float(20)),
		sampleAt(base.Add(2*time.Second), Float(30)),
		sampleAt(base.Add(3*time.Second), nil),
		sampleAt(base.Add(4*time.Second), Float(15)),
	}

	stats := Summarize(samples)
	if stats.Count != 5 || stats.Failed != 1 {
		t.Fatalf("unexpected counts: %+v", stats)
	}
	if *stats.Min != 10 || *stats.Max != 30 {
		t.Fatalf("unexpected min/max: %v/%v", *stats.Min, *stats.Max)
	}
	if *stats.Avg != 18.75 {
		t.Fatalf("expected avg 18.75 got %v", *stats.Avg)
	}
	if stats.PacketLoss != 20 {
		t.Fatalf("expected 20%% loss got %v", stats.PacketLoss)
	}
	if stats.Current == nil || *stats.Current != 15 {
		t.Fatalf("expected current latency 15, got %v", stats.Current)
	}
}

func TestSummarizeAllFailed(t *testing.T) {
	base := time.Unix(0, 0)
	stats := Summarize([]Sample{sampleAt(base, nil), sampleAt(base, nil)})
	if stats.Avg != nil || stats.Min != nil {
		t.Fatalf("expected nil aggregates when all failed: %+v", stats)
	}
	if stats.PacketLoss != 100 {
		t.Fatalf("expected 100%% loss got %v", stats.PacketLoss)
	}
	if stats.Current != nil {
		t.Fatalf("expected nil current latency")
	}
}

func TestSessionAppendKeepsTimestampsOrdered(t *testing.T) {
	start := time.Unix(2000, 0).UTC()
	s := NewSession("example.com", NetworkWired, start)
	if !s.Active() || s.ID == "" {
		t.Fatalf("expected active session with id, got %+v", s)
	}

	s.Append(sampleAt(start.Add(5*time.Second), Float(12)))
	s.Append(sampleAt(start.Add(2*time.Second), Float(14)))

	if !s.Samples[1].Timestamp.Equal(s.Samples[0].Timestamp) {
		t.Fatalf("expected out-of-order sample to be clamped, got %s", s.Samples[1].Timestamp)
	}

	end := start.Add(10 * time.Second)
	s.Close(end, 87)
	if s.Active() {
		t.Fatalf("expected session to be closed")
	}
	if *s.QualityScore != 87 {
		t.Fatalf("unexpected score %d", *s.QualityScore)
	}
	if got := s.Duration(time.Time{}); got != 10*time.Second {
		t.Fatalf("unexpected duration %s", got)
	}
}

func TestSessionCloneIsIndependent(t *testing.T) {
	s := NewSession("example.com", NetworkWiFi, time.Unix(0, 0))
	s.Append(sampleAt(time.Unix(1, 0), Float(5)))
	clone := s.Clone()

	s.Append(sampleAt(time.Unix(2, 0), Float(6)))
	if len(clone.Samples) != 1 {
		t.Fatalf("expected clone to keep one sample, got %d", len(clone.Samples))
	}
}

func TestSessionJSONContract(t *testing.T) {
	payload := []byte(`{
        "id": "sess-1",
        "start_time": "2025-10-22T20:11:33Z",
        "host": "8.8.8.8",
        "network_type": "Cellular",
        "is_background": true,
        "quality_score": 64,
        "samples": [
            {"ts": "2025-10-22T20:11:33Z", "latency_ms": 42.5, "succeeded": true, "host": "8.8.8.8", "network_type": "Cellular"},
            {"ts": "2025-10-22T20:11:34Z", "succeeded": false, "host": "8.8.8.8", "network_type": "Cellular"}
        ]
    }`)

	var s Session
	if err := json.Unmarshal(payload, &s); err != nil {
		t.Fatalf("unmarshal session: %v", err)
	}
	if !s.Active() {
		t.Fatalf("expected missing end_time to decode as active")
	}
	if s.NetworkType != NetworkCellular || !s.IsBackground {
		t.Fatalf("unexpected session: %+v", s)
	}
	if len(s.Samples) != 2 || s.Samples[0].Latency == nil || *s.Samples[0].Latency != 42.5 {
		t.Fatalf("unexpected samples: %+v", s.Samples)
	}
	if !s.Samples[1].TimedOut() {
		t.Fatalf("expected second sample to be a timeout")
	}
}

func TestParsePolicyAndNetworkType(t *testing.T) {
	cases := map[string]MonitoringPolicy{
		"":              PolicyAuto,
		"Auto":          PolicyAuto,
		"WiFi Only":     PolicyWiFiOnly,
		"cellular-only": PolicyCellularOnly,
	}
	for in, want := range cases {
		got, err := ParseMonitoringPolicy(in)
		if err != nil {
			t.Fatalf("ParseMonitoringPolicy(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("ParseMonitoringPolicy(%q) = %q want %q", in, got, want)
		}
	}
	if _, err := ParseMonitoringPolicy("ethernet_only"); err == nil {
		t.Fatalf("expected error for unknown policy")
	}
	if ParseNetworkType("Wi-Fi") != NetworkWiFi || ParseNetworkType("bogus") != NetworkUnknown {
		t.Fatalf("unexpected network type parsing")
	}
}
