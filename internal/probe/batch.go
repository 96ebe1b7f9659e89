package probe

import (
	"context"
	"time"

	"github.com/davidbond17/pingpro/pkg/types"
)

// Burst runs count sequential probes, waiting spacing after each probe
// completes before starting the next. Cancellation is only observed between
// probes: an in-flight probe finishes under its own timeout and its sample is
// kept.
func Burst(ctx context.Context, p Prober, req Request, count int, spacing time.Duration) []types.Sample {
	if count <= 0 {
		return nil
	}
	detached := context.WithoutCancel(ctx)

	samples := make([]types.Sample, 0, count)
	for i := 0; i < count; i++ {
		if ctx.Err() != nil {
			break
		}
		if i > 0 && spacing > 0 && !sleep(ctx, spacing) {
			break
		}
		samples = append(samples, p.Probe(detached, req.Host, req.Timeout, req.NetworkType))
	}
	return samples
}

// sleep waits d and reports false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
