package backfill

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/davidbond17/pingpro/internal/metrics"
	"github.com/davidbond17/pingpro/pkg/types"
)

// Saver is the write side of the session store.
type Saver interface {
	SaveSession(ctx context.Context, session types.Session) error
}

// Controller hands completed sessions to the store. A session whose save
// fails stays pending in memory until a later Flush succeeds.
type Controller struct {
	store      Saver
	limiter    *rate.Limiter
	maxPending int
	logger     *log.Logger
	metrics    metrics.SessionRecorder

	mu      sync.Mutex
	pending []types.Session
}

type Option func(*Controller)

func WithRate(opsPerSecond float64, burst int) Option {
	return func(c *Controller) {
		if opsPerSecond > 0 {
			if burst <= 0 {
				burst = int(opsPerSecond)
			}
			if burst <= 0 {
				burst = 1
			}
			c.limiter = rate.NewLimiter(rate.Limit(opsPerSecond), burst)
		}
	}
}

// WithMaxPending bounds the number of sessions held for retry. The oldest
// pending session is dropped when the bound is exceeded.
func WithMaxPending(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.maxPending = n
		}
	}
}

func WithLogger(logger *log.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithMetrics(rec metrics.SessionRecorder) Option {
	return func(c *Controller) {
		if rec != nil {
			c.metrics = rec
		}
	}
}

func New(store Saver, opts ...Option) *Controller {
	c := &Controller{
		store:      store,
		limiter:    rate.NewLimiter(rate.Limit(5), 10),
		maxPending: 256,
		logger:     log.New(io.Discard, "", 0),
		metrics:    metrics.NoopSessionRecorder{},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.recordPending()
	return c
}

// Save persists session. On failure the session is queued for Flush and the
// error is returned for logging only: callers must not roll back state.
func (c *Controller) Save(ctx context.Context, session types.Session) error {
	if err := c.store.SaveSession(ctx, session); err != nil {
		c.metrics.IncSessionSaveFailed()
		c.enqueue(session)
		c.logger.Printf("session save failed id=%s background=%t pending=%d err=%v", session.ID, session.IsBackground, c.Pending(), err)
		return fmt.Errorf("save session %s: %w", session.ID, err)
	}
	c.metrics.IncSessionSaved(session.IsBackground)
	return nil
}

func (c *Controller) enqueue(session types.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.pending {
		if c.pending[i].ID == session.ID {
			c.pending[i] = session
			return
		}
	}
	c.pending = append(c.pending, session)
	if over := len(c.pending) - c.maxPending; over > 0 {
		for _, dropped := range c.pending[:over] {
			c.logger.Printf("session dropped from retry queue id=%s", dropped.ID)
		}
		c.pending = append([]types.Session(nil), c.pending[over:]...)
	}
	c.metrics.ObservePendingSessions(len(c.pending))
}

// Flush retries pending sessions in order, paced by the limiter. It stops at
// the first failure and reports how many sessions were saved.
func (c *Controller) Flush(ctx context.Context) (int, error) {
	saved := 0
	for {
		c.mu.Lock()
		if len(c.pending) == 0 {
			c.mu.Unlock()
			return saved, nil
		}
		next := c.pending[0]
		c.mu.Unlock()

		if err := c.limiter.Wait(ctx); err != nil {
			return saved, err
		}
		if err := c.store.SaveSession(ctx, next); err != nil {
			c.metrics.IncSessionSaveFailed()
			return saved, fmt.Errorf("retry session %s: %w", next.ID, err)
		}
		c.metrics.IncSessionSaved(next.IsBackground)
		saved++
		c.remove(next.ID)
	}
}

func (c *Controller) remove(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.pending {
		if c.pending[i].ID == id {
			c.pending = append(c.pending[:i], c.pending[i+1:]...)
			break
		}
	}
	c.metrics.ObservePendingSessions(len(c.pending))
}

// Run flushes pending sessions every interval until ctx is cancelled.
func (c *Controller) Run(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = 30 * time.Second
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if c.Pending() == 0 {
				continue
			}
			saved, err := c.Flush(ctx)
			if saved > 0 {
				c.logger.Printf("backfill saved sessions=%d pending=%d", saved, c.Pending())
			}
			if err != nil && ctx.Err() == nil {
				c.logger.Printf("backfill retry failed pending=%d err=%v", c.Pending(), err)
			}
		}
	}
}

func (c *Controller) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// PendingSessions returns copies of the sessions awaiting a successful save.
func (c *Controller) PendingSessions() []types.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]types.Session, 0, len(c.pending))
	for i := range c.pending {
		out = append(out, c.pending[i].Clone())
	}
	return out
}

func (c *Controller) recordPending() {
	c.metrics.ObservePendingSessions(c.Pending())
}
