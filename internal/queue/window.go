package queue

import (
	"sync"

	"github.com/davidbond17/pingpro/internal/metrics"
	"github.com/davidbond17/pingpro/pkg/types"
)

// DefaultWindowSize is the number of recent samples kept for live stats.
const DefaultWindowSize = 60

// Window is a bounded FIFO of the most recent samples. Pushing into a full
// window evicts the oldest sample.
type Window struct {
	mu       sync.Mutex
	capacity int
	items    []types.Sample
	evicted  uint64
	metrics  metrics.WindowRecorder
}

func NewWindow(capacity int) *Window {
	if capacity <= 0 {
		capacity = DefaultWindowSize
	}
	return &Window{
		capacity: capacity,
		items:    make([]types.Sample, 0, capacity),
		metrics:  metrics.NoopWindowRecorder{},
	}
}

func (w *Window) SetMetricsRecorder(rec metrics.WindowRecorder) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if rec == nil {
		rec = metrics.NoopWindowRecorder{}
	}
	w.metrics = rec
}

// Push appends a sample and reports whether the oldest one was evicted.
func (w *Window) Push(sample types.Sample) (evicted bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.items) >= w.capacity {
		copy(w.items, w.items[1:])
		w.items = w.items[:len(w.items)-1]
		evicted = true
		w.evicted++
		w.metrics.IncWindowEvictions()
	}
	w.items = append(w.items, sample)
	w.metrics.ObserveWindowDepth(len(w.items))
	return evicted
}

// Samples returns a copy in insertion order.
func (w *Window) Samples() []types.Sample {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]types.Sample, len(w.items))
	copy(out, w.items)
	return out
}

func (w *Window) Stats() types.Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return types.Summarize(w.items)
}

func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.items)
}

func (w *Window) Capacity() int {
	return w.capacity
}

func (w *Window) Evicted() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.evicted
}

func (w *Window) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.items = w.items[:0]
	w.metrics.ObserveWindowDepth(0)
}
