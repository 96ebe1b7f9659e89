package scheduler

import (
	"context"
	"io"
	"log"
	"sync"
	"time"
)

// BackgroundScheduler is the boundary to whatever wakes the process for
// background work. Timing is best effort: a trigger never fires before its
// delay has elapsed but may fire later.
type BackgroundScheduler interface {
	ScheduleNext(delay time.Duration)
	OnTrigger(handler func(ctx context.Context))
	Cancel()
}

// DefaultBudget bounds a single background run. The handler's context is
// cancelled when it expires.
const DefaultBudget = 30 * time.Second

// Scheduler is an in-process BackgroundScheduler driven by a ticker. At most
// one handler runs at a time.
type Scheduler struct {
	tickResolution time.Duration
	budget         time.Duration
	now            func() time.Time
	logger         *log.Logger

	mu        sync.Mutex
	base      context.Context
	handler   func(ctx context.Context)
	next      time.Time
	pending   bool
	running   bool
	cancelRun context.CancelFunc
	wg        sync.WaitGroup
}

type Option func(*Scheduler)

func WithTickResolution(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.tickResolution = d
		}
	}
}

func WithNow(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

func WithBudget(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.budget = d
		}
	}
}

func WithLogger(logger *log.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		tickResolution: time.Second,
		budget:         DefaultBudget,
		now:            time.Now,
		logger:         log.New(io.Discard, "", 0),
		base:           context.Background(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Scheduler) OnTrigger(handler func(ctx context.Context)) {
	s.mu.Lock()
	s.handler = handler
	s.mu.Unlock()
}

// ScheduleNext replaces any pending trigger with one due after delay.
func (s *Scheduler) ScheduleNext(delay time.Duration) {
	if delay < 0 {
		delay = 0
	}
	s.mu.Lock()
	s.next = s.now().Add(delay)
	s.pending = true
	s.mu.Unlock()
}

// Cancel drops the pending trigger and expires a running handler.
func (s *Scheduler) Cancel() {
	s.mu.Lock()
	s.pending = false
	cancel := s.cancelRun
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Pending reports the due time of the next trigger, if any.
func (s *Scheduler) Pending() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next, s.pending
}

// Start drives triggers until ctx is cancelled, then waits for a running
// handler to return.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.base = ctx
	s.mu.Unlock()

	ticker := time.NewTicker(s.tickResolution)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.Cancel()
			s.wg.Wait()
			return
		case <-ticker.C:
			s.tick(s.now())
		}
	}
}

// Wait blocks until no handler is running.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) tick(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.pending || s.handler == nil || now.Before(s.next) {
		return
	}
	if s.running {
		return
	}
	s.pending = false
	s.running = true

	ctx, cancel := context.WithTimeout(s.base, s.budget)
	s.cancelRun = cancel
	handler := s.handler
	due := s.next

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		start := s.now()
		handler(ctx)
		expired := ctx.Err() != nil
		cancel()

		s.mu.Lock()
		s.running = false
		s.cancelRun = nil
		s.mu.Unlock()

		s.logger.Printf("scheduler run finished due=%s took=%s expired=%t", due.UTC().Format(time.RFC3339), s.now().Sub(start), expired)
	}()
}
