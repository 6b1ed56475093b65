// Package network tracks connectivity transitions and publishes them on the
// event bus. The platform's connectivity signal is abstracted behind
// ConnectivitySource so the monitor can run against a browser bridge, an OS
// probe, or a scripted source in tests.
package network

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/curalink/syncengine/eventbus"
	"github.com/curalink/syncengine/logging"
	"github.com/curalink/syncengine/metrics"
	"github.com/curalink/syncengine/store"
)

// ConnectivitySource is the platform's binary online/offline signal.
type ConnectivitySource interface {
	// Online reports the current connectivity flag
	Online() bool

	// Watch streams connectivity transitions until ctx is cancelled
	Watch(ctx context.Context) <-chan bool
}

// ManualSource is a ConnectivitySource driven by explicit Set calls. It
// backs tests and the demo binary, and can bridge any platform callback.
type ManualSource struct {
	mu      sync.Mutex
	online  bool
	watches []chan bool
}

// NewManualSource creates a source with the given initial state.
func NewManualSource(online bool) *ManualSource {
	return &ManualSource{online: online}
}

func (s *ManualSource) Online() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.online
}

// Set flips the connectivity flag and notifies every watcher.
func (s *ManualSource) Set(online bool) {
	s.mu.Lock()
	if s.online == online {
		s.mu.Unlock()
		return
	}
	s.online = online
	watches := make([]chan bool, len(s.watches))
	copy(watches, s.watches)
	s.mu.Unlock()

	for _, ch := range watches {
		ch <- online
	}
}

func (s *ManualSource) Watch(ctx context.Context) <-chan bool {
	ch := make(chan bool, 8)
	s.mu.Lock()
	s.watches = append(s.watches, ch)
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		for i, w := range s.watches {
			if w == ch {
				s.watches = append(s.watches[:i], s.watches[i+1:]...)
				break
			}
		}
		s.mu.Unlock()
	}()

	return ch
}

// Monitor publishes network:online / network:offline transitions and keeps
// the store adapter's network flag in step. Initial state is read from the
// source at construction time.
type Monitor struct {
	src     ConnectivitySource
	store   store.Store
	bus     *eventbus.Bus
	metrics *metrics.Registry
	log     *logging.Logger

	online atomic.Bool
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// NewMonitor creates a monitor. Call Start to begin watching transitions.
func NewMonitor(src ConnectivitySource, st store.Store, bus *eventbus.Bus, reg *metrics.Registry, log *logging.Logger) *Monitor {
	m := &Monitor{
		src:     src,
		store:   st,
		bus:     bus,
		metrics: reg,
		log:     log.WithComponent(logging.Component("network")),
	}
	m.online.Store(src.Online())
	reg.SetOnline(m.online.Load())
	return m
}

// IsOnline reports the last observed connectivity state.
func (m *Monitor) IsOnline() bool {
	return m.online.Load()
}

// OnStatusChange registers a convenience listener that receives the new
// state on every transition. The returned func detaches it; detaching twice
// is safe.
func (m *Monitor) OnStatusChange(cb func(online bool)) func() {
	id := m.bus.Subscribe(func(e eventbus.Event) {
		if n, ok := e.(eventbus.NetworkStatusChanged); ok {
			cb(n.Online)
		}
	})
	return func() { m.bus.Unsubscribe(id) }
}

// Start begins consuming the connectivity signal.
func (m *Monitor) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})

	ch := m.src.Watch(ctx)
	go func() {
		defer close(m.done)
		for {
			select {
			case <-ctx.Done():
				return
			case online, ok := <-ch:
				if !ok {
					return
				}
				m.transition(ctx, online)
			}
		}
	}()
}

func (m *Monitor) transition(ctx context.Context, online bool) {
	if !m.online.CompareAndSwap(!online, online) {
		return // no transition
	}

	m.metrics.SetOnline(online)
	m.log.Info("connectivity changed", slog.Bool("online", online))

	// Keep the adapter's fast-fail behavior in step with reality.
	if err := m.store.SetNetworkEnabled(ctx, online); err != nil {
		m.log.LogError(ctx, err, "store network toggle failed")
	}

	m.bus.Publish(eventbus.NetworkStatusChanged{Online: online, At: time.Now()})
}

// Stop detaches the connectivity handler. Safe to call more than once.
func (m *Monitor) Stop() {
	m.once.Do(func() {
		if m.cancel != nil {
			m.cancel()
			<-m.done
		}
	})
}
