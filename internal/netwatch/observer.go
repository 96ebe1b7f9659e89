package netwatch

import (
	"context"
	"io"
	"log"
	"sync"
	"time"

	"github.com/davidbond17/pingpro/pkg/types"
)

const DefaultPollInterval = time.Second

// Observer polls an InterfaceLister and publishes the classification.
type Observer struct {
	lister   InterfaceLister
	interval time.Duration
	logger   *log.Logger

	mu        sync.RWMutex
	current   types.NetworkType
	connected bool
	listeners []func(types.NetworkType)
}

type Option func(*Observer)

func WithPollInterval(d time.Duration) Option {
	return func(o *Observer) {
		if d > 0 {
			o.interval = d
		}
	}
}

func WithLogger(logger *log.Logger) Option {
	return func(o *Observer) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func NewObserver(lister InterfaceLister, opts ...Option) *Observer {
	if lister == nil {
		lister = HostLister{}
	}
	o := &Observer{
		lister:   lister,
		interval: DefaultPollInterval,
		logger:   log.New(io.Discard, "", 0),
		current:  types.NetworkUnknown,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Observer) CurrentType() types.NetworkType {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.current
}

func (o *Observer) Connected() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.connected
}

func (o *Observer) OnChange(fn func(types.NetworkType)) {
	if fn == nil {
		return
	}
	o.mu.Lock()
	o.listeners = append(o.listeners, fn)
	o.mu.Unlock()
}

// Poll refreshes the classification once and notifies listeners when the
// type changed.
func (o *Observer) Poll(ctx context.Context) error {
	ifaces, err := o.lister.Interfaces(ctx)
	if err != nil {
		return err
	}
	nt, connected := Classify(ifaces)

	o.mu.Lock()
	changed := nt != o.current
	prev := o.current
	o.current = nt
	o.connected = connected
	listeners := append([]func(types.NetworkType){}, o.listeners...)
	o.mu.Unlock()

	if changed {
		o.logger.Printf("netwatch type changed from=%s to=%s connected=%t", prev, nt, connected)
		for _, fn := range listeners {
			fn(nt)
		}
	}
	return nil
}

// Run polls until ctx is cancelled.
func (o *Observer) Run(ctx context.Context) {
	if err := o.Poll(ctx); err != nil {
		o.logger.Printf("netwatch poll failed: %v", err)
	}
	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := o.Poll(ctx); err != nil && ctx.Err() == nil {
				o.logger.Printf("netwatch poll failed: %v", err)
			}
		}
	}
}

// Static is a Source whose type is set by the caller.
type Static struct {
	mu        sync.RWMutex
	current   types.NetworkType
	connected bool
	listeners []func(types.NetworkType)
}

func NewStatic(nt types.NetworkType) *Static {
	return &Static{current: nt, connected: nt != types.NetworkUnknown}
}

func (s *Static) CurrentType() types.NetworkType {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

func (s *Static) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

func (s *Static) OnChange(fn func(types.NetworkType)) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

func (s *Static) Set(nt types.NetworkType) {
	s.mu.Lock()
	changed := s.current != nt
	s.current = nt
	s.connected = nt != types.NetworkUnknown
	listeners := append([]func(types.NetworkType){}, s.listeners...)
	s.mu.Unlock()
	if changed {
		for _, fn := range listeners {
			fn(nt)
		}
	}
}

func (s *Static) SetConnected(connected bool) {
	s.mu.Lock()
	s.connected = connected
	s.mu.Unlock()
}
