// Package netmon watches network reachability and reports edges.
//
// A Source produces raw path updates, which may repeat the same state many
// times (one per interface or address change). Monitor collapses them into
// transitions: an event is emitted only when the online state differs from
// the last one observed. The first observation is always emitted so that
// consumers learn the initial state.
package netmon

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Source delivers raw online/offline samples until ctx is cancelled. It
// must close the returned channel when it stops.
type Source interface {
	Updates(ctx context.Context) (<-chan bool, error)
}

// Transition is an edge of the reachability state
type Transition struct {
	Online bool
	At     time.Time
}

// Monitor turns raw source updates into edge-triggered transitions
type Monitor struct {
	source Source
	logger *slog.Logger

	current atomic.Bool
	started atomic.Bool

	mu     sync.Mutex
	events chan Transition
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a monitor over source
func New(source Source, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		source: source,
		logger: logger.With("component", "netmon"),
		events: make(chan Transition, 1),
	}
}

// Events returns the transition channel of the current run. It is closed
// when the monitor stops or its source ends; a restarted monitor has a new
// channel.
func (m *Monitor) Events() <-chan Transition {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.events
}

// Current reports the last state the monitor observed
func (m *Monitor) Current() bool {
	return m.current.Load()
}

// Start begins reading the source on a background goroutine. A stopped
// monitor can be started again.
func (m *Monitor) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	updates, err := m.source.Updates(ctx)
	if err != nil {
		cancel()
		return err
	}

	m.mu.Lock()
	events := m.events
	if m.started.Load() {
		events = make(chan Transition, 1)
		m.events = events
	}
	m.cancel = cancel
	m.mu.Unlock()
	m.started.Store(true)

	m.wg.Add(1)
	go m.run(ctx, updates, events)
	return nil
}

// Stop cancels the source and waits for the monitor goroutine
func (m *Monitor) Stop() {
	if !m.started.Load() {
		return
	}
	m.mu.Lock()
	cancel := m.cancel
	m.mu.Unlock()
	cancel()
	m.wg.Wait()
}

func (m *Monitor) run(ctx context.Context, updates <-chan bool, events chan<- Transition) {
	defer m.wg.Done()
	defer close(events)

	seen := false
	var last bool

	for {
		select {
		case <-ctx.Done():
			return
		case online, ok := <-updates:
			if !ok {
				return
			}
			if seen && online == last {
				continue
			}
			seen = true
			last = online
			m.current.Store(online)
			m.logger.Info("network state changed", "online", online)

			select {
			case events <- Transition{Online: online, At: time.Now()}:
			case <-ctx.Done():
				return
			}
		}
	}
}

// StaticSource reports a fixed state once. Used when reachability checks
// are disabled.
type StaticSource bool

// Updates implements Source
func (s StaticSource) Updates(ctx context.Context) (<-chan bool, error) {
	ch := make(chan bool, 1)
	ch <- bool(s)
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch, nil
}
