package retention

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"time"
)

// DefaultInterval is how often Run checks for expired sessions.
const DefaultInterval = time.Hour

// Purger deletes sessions that started before cutoff.
type Purger interface {
	PurgeBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// Cleaner removes sessions older than the retention period.
type Cleaner struct {
	store  Purger
	now    func() time.Time
	logger *log.Logger

	mu     sync.Mutex
	period time.Duration
}

type Option func(*Cleaner)

func WithNow(now func() time.Time) Option {
	return func(c *Cleaner) {
		if now != nil {
			c.now = now
		}
	}
}

func WithLogger(logger *log.Logger) Option {
	return func(c *Cleaner) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func New(store Purger, period time.Duration, opts ...Option) *Cleaner {
	c := &Cleaner{
		store:  store,
		period: period,
		now:    time.Now,
		logger: log.New(io.Discard, "", 0),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetPeriod changes the retention period used by the next run.
func (c *Cleaner) SetPeriod(period time.Duration) {
	c.mu.Lock()
	c.period = period
	c.mu.Unlock()
}

func (c *Cleaner) Period() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.period
}

// RunOnce purges sessions that started more than the retention period ago.
// A non-positive period disables purging.
func (c *Cleaner) RunOnce(ctx context.Context) (int, error) {
	period := c.Period()
	if period <= 0 {
		return 0, nil
	}
	cutoff := c.now().Add(-period)
	removed, err := c.store.PurgeBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge sessions before %s: %w", cutoff.UTC().Format(time.RFC3339), err)
	}
	if removed > 0 {
		c.logger.Printf("retention purged sessions=%d cutoff=%s", removed, cutoff.UTC().Format(time.RFC3339))
	}
	return removed, nil
}

// Run purges immediately and then every interval until ctx is cancelled.
func (c *Cleaner) Run(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = DefaultInterval
	}
	if _, err := c.RunOnce(ctx); err != nil {
		c.logger.Printf("retention run failed: %v", err)
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := c.RunOnce(ctx); err != nil && ctx.Err() == nil {
				c.logger.Printf("retention run failed: %v", err)
			}
		}
	}
}
