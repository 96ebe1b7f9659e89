package queue

import (
	"testing"
	"time"

	"github.com/davidbond17/pingpro/pkg/types"
)

func sampleAt(i int) types.Sample {
	v := float64(i)
	return types.Sample{
		Timestamp: time.Unix(int64(i), 0).UTC(),
		Latency:   &v,
		Succeeded: true,
		Host:      "8.8.8.8",
	}
}

type countingRecorder struct {
	depth     int
	evictions int
}

func (r *countingRecorder) ObserveWindowDepth(depth int) { r.depth = depth }
func (r *countingRecorder) IncWindowEvictions()          { r.evictions++ }

func TestWindowEvictsOldestOnOverflow(t *testing.T) {
	w := NewWindow(DefaultWindowSize)
	for i := 0; i < 60; i++ {
		if w.Push(sampleAt(i)) {
			t.Fatalf("did not expect eviction at %d", i)
		}
	}
	if w.Len() != 60 {
		t.Fatalf("expected len 60 got %d", w.Len())
	}

	if !w.Push(sampleAt(60)) {
		t.Fatalf("expected eviction on 61st push")
	}
	samples := w.Samples()
	if len(samples) != 60 {
		t.Fatalf("expected len 60 after overflow got %d", len(samples))
	}
	if *samples[0].Latency != 1 {
		t.Fatalf("expected oldest sample 0 evicted, head is %v", *samples[0].Latency)
	}
	if *samples[59].Latency != 60 {
		t.Fatalf("expected newest sample at tail, got %v", *samples[59].Latency)
	}
}

func TestWindowNeverExceedsCapacity(t *testing.T) {
	w := NewWindow(5)
	for i := 0; i < 500; i++ {
		w.Push(sampleAt(i))
		if w.Len() > 5 {
			t.Fatalf("window exceeded capacity at push %d", i)
		}
	}
	if w.Evicted() != 495 {
		t.Fatalf("expected 495 evictions got %d", w.Evicted())
	}
}

func TestWindowStatsAndReset(t *testing.T) {
	w := NewWindow(3)
	rec := &countingRecorder{}
	w.SetMetricsRecorder(rec)

	w.Push(sampleAt(10))
	w.Push(types.Sample{Timestamp: time.Unix(11, 0), Host: "8.8.8.8"})
	w.Push(sampleAt(30))
	w.Push(sampleAt(20))

	stats := w.Stats()
	if stats.Count != 3 || stats.Failed != 1 {
		t.Fatalf("unexpected counts %+v", stats)
	}
	if *stats.Min != 20 || *stats.Max != 30 || *stats.Avg != 25 {
		t.Fatalf("unexpected aggregates %+v", stats)
	}
	if rec.evictions != 1 || rec.depth != 3 {
		t.Fatalf("unexpected recorder state %+v", rec)
	}

	w.Reset()
	if w.Len() != 0 || rec.depth != 0 {
		t.Fatalf("expected empty window after reset")
	}
	if w.Stats().Avg != nil {
		t.Fatalf("expected nil avg after reset")
	}
}
