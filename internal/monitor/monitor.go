// Package monitor runs the polling loop that turns telemetry snapshots into a
// single monitoring state and a stream of events.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/skobkin/rtsstop-web/internal/hook"
	"github.com/skobkin/rtsstop-web/internal/metrics"
	"github.com/skobkin/rtsstop-web/internal/selector"
	"github.com/skobkin/rtsstop-web/internal/telemetry"
)

const (
	DefaultTitle              = "Nothing to capture"
	DefaultHookAcquireTimeout = 60 * time.Second
	DefaultHookLossTimeout    = 10 * time.Second
	DefaultClearHeartbeat     = 5 * time.Second
)

// Source yields one telemetry snapshot per call.
type Source interface {
	Snapshot() (telemetry.Snapshot, error)
	RegionName() string
	Close() error
}

// Selector ranks the candidates of one snapshot, best first.
type Selector interface {
	Select(ctx context.Context, entries []telemetry.RawEntry) []selector.Candidate
}

// Options configures a Monitor.
type Options struct {
	Interval           time.Duration
	DefaultTitle       string
	PercentileWindow   int
	HookAcquireTimeout time.Duration
	HookLossTimeout    time.Duration
	ClearHeartbeat     time.Duration
	CategoryRules      []CategoryRule
}

// Stats are loop counters since start.
type Stats struct {
	Ticks          uint64 `json:"ticks"`
	RegionErrors   uint64 `json:"region_errors"`
	SkippedEntries uint64 `json:"skipped_entries"`
	Hooks          uint64 `json:"hooks"`
	Losses         uint64 `json:"losses"`
	Timeouts       uint64 `json:"timeouts"`
	Region         string `json:"region"`
}

// Monitor owns the polling loop. Run drives it; every other method is safe
// for concurrent use.
type Monitor struct {
	opts       Options
	source     Source
	selector   Selector
	machine    *hook.Machine
	tracker    *metrics.PercentileTracker
	categories categoryMatcher
	logger     *slog.Logger

	// loop-owned
	tickMu     sync.Mutex
	cleared    bool
	lastClear  time.Time
	regionDown bool

	mu          sync.RWMutex
	state       State
	candidates  []selector.Candidate
	stats       Stats
	listeners   []Listener
	subscribers map[*subscriber]struct{}

	closeOnce sync.Once
	closeErr  error
}

// New constructs a Monitor in the "nothing monitored" state.
func New(opts Options, source Source, sel Selector, logger *slog.Logger) (*Monitor, error) {
	if opts.Interval <= 0 {
		return nil, fmt.Errorf("interval must be > 0")
	}
	if source == nil {
		return nil, fmt.Errorf("source is required")
	}
	if sel == nil {
		return nil, fmt.Errorf("selector is required")
	}
	if opts.DefaultTitle == "" {
		opts.DefaultTitle = DefaultTitle
	}
	if opts.HookAcquireTimeout <= 0 {
		opts.HookAcquireTimeout = DefaultHookAcquireTimeout
	}
	if opts.HookLossTimeout <= 0 {
		opts.HookLossTimeout = DefaultHookLossTimeout
	}
	if opts.ClearHeartbeat <= 0 {
		opts.ClearHeartbeat = DefaultClearHeartbeat
	}
	categories, err := newCategoryMatcher(opts.CategoryRules)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	m := &Monitor{
		opts:     opts,
		source:   source,
		selector: sel,
		machine: hook.NewMachine(
			hook.TicksFor(opts.HookAcquireTimeout, opts.Interval),
			hook.TicksFor(opts.HookLossTimeout, opts.Interval),
		),
		tracker:     metrics.NewPercentileTracker(opts.PercentileWindow),
		categories:  categories,
		logger:      logger.With("component", "monitor"),
		subscribers: make(map[*subscriber]struct{}),
	}
	m.state = m.defaultState(time.Time{})
	return m, nil
}

// Interval returns the polling cadence.
func (m *Monitor) Interval() time.Duration {
	return m.opts.Interval
}

// DefaultTitle returns the title reported while nothing is monitored.
func (m *Monitor) DefaultTitle() string {
	return m.opts.DefaultTitle
}

// OnEvent registers a listener. Listeners run on the loop goroutine in
// registration order and must not block.
func (m *Monitor) OnEvent(l Listener) {
	if l == nil {
		return
	}
	m.mu.Lock()
	m.listeners = append(m.listeners, l)
	m.mu.Unlock()
}

// Run polls until ctx is canceled, then publishes a final cleared state and
// releases the source.
func (m *Monitor) Run(ctx context.Context) error {
	m.logger.Info("monitor started", "interval", m.opts.Interval)

	ticker := time.NewTicker(m.opts.Interval)
	defer ticker.Stop()

loop:
	for {
		if ctx.Err() != nil {
			break
		}
		m.tick(ctx, time.Now())

		select {
		case <-ctx.Done():
			break loop
		case <-ticker.C:
		}
	}

	m.logger.Info("monitor stopping", "reason", ctx.Err())
	m.shutdown(time.Now())
	return m.Close()
}

// Latest returns a copy of the current state.
func (m *Monitor) Latest() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Candidates returns the ranked candidate list of the last tick.
func (m *Monitor) Candidates() []selector.Candidate {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.candidates)
}

// Stats returns a copy of the loop counters.
func (m *Monitor) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stats
}

// Ready reports whether the loop completed at least one tick.
func (m *Monitor) Ready() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stats.Ticks > 0
}

// Subscribe registers a channel receiving every event. When a consumer falls
// behind, the oldest pending event is dropped. The current state is queued
// immediately once the loop has ticked.
func (m *Monitor) Subscribe() (<-chan Event, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sub := newSubscriber()
	m.subscribers[sub] = struct{}{}

	if m.stats.Ticks > 0 {
		kind := KindCleared
		if m.state.IsMonitoring {
			kind = KindMetrics
		}
		sub.send(Event{Kind: kind, Timestamp: m.state.UpdatedAt, State: m.state})
	}

	return sub.channel(), func() { m.removeSubscriber(sub) }
}

func (m *Monitor) removeSubscriber(sub *subscriber) {
	m.mu.Lock()
	delete(m.subscribers, sub)
	m.mu.Unlock()
	sub.close()
}

// Close releases the source and closes all subscriber channels. Safe for
// repeated use.
func (m *Monitor) Close() error {
	m.closeOnce.Do(func() {
		m.tickMu.Lock()
		defer m.tickMu.Unlock()

		var errs []error
		if err := m.source.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close telemetry source: %w", err))
		}

		m.mu.Lock()
		subs := m.subscribers
		m.subscribers = make(map[*subscriber]struct{})
		m.mu.Unlock()
		for sub := range subs {
			sub.close()
		}

		m.closeErr = errors.Join(errs...)
	})
	return m.closeErr
}

func (m *Monitor) tick(ctx context.Context, now time.Time) {
	m.tickMu.Lock()
	defer m.tickMu.Unlock()

	var (
		entries []telemetry.RawEntry
		skipped int
	)
	snap, err := m.source.Snapshot()
	if err != nil {
		if !m.regionDown {
			m.logger.Info("telemetry region unavailable", "err", err)
			m.regionDown = true
		}
	} else {
		m.regionDown = false
		entries = snap.Entries
		skipped = snap.Skipped
	}

	candidates := m.selector.Select(ctx, entries)
	best, found := selector.Best(candidates)
	signal := m.machine.Observe(found, best.ProcessID)

	var events []Event
	next := m.Latest()

	if found {
		if signal == hook.SignalHooked {
			m.tracker.Reset()
			m.logger.Info("hooked process",
				"pid", best.ProcessID,
				"name", best.ProcessName,
				"title", best.WindowTitle,
				"api", best.Metrics.GraphicsAPI,
			)
		}
		m.tracker.Push(best.Metrics.FrameTimeMS)
		next = m.stateFor(best, now)
		if signal == hook.SignalHooked {
			events = append(events, Event{Kind: KindHooked, Timestamp: now, State: next})
		}
		events = append(events, Event{Kind: KindMetrics, Timestamp: now, State: next})
		m.cleared = false
	} else {
		switch signal {
		case hook.SignalLost:
			m.tracker.Reset()
			m.logger.Info("hook lost", "budget", m.opts.HookLossTimeout)
			next = m.defaultState(now)
			events = append(events, Event{Kind: KindHookLost, Timestamp: now, State: next})
		case hook.SignalTimeout:
			m.logger.Warn("hook acquisition timed out", "budget", m.opts.HookAcquireTimeout)
			next = m.defaultState(now)
			events = append(events, Event{Kind: KindAcquireTimeout, Timestamp: now, State: next})
		}

		if !m.cleared || now.Sub(m.lastClear) >= m.opts.ClearHeartbeat {
			next = m.defaultState(now)
			events = append(events, Event{Kind: KindCleared, Timestamp: now, State: next})
			m.cleared = true
			m.lastClear = now
		}
	}

	m.mu.Lock()
	m.stats.Ticks++
	if err != nil {
		m.stats.RegionErrors++
	}
	m.stats.SkippedEntries += uint64(skipped)
	switch signal {
	case hook.SignalHooked:
		m.stats.Hooks++
	case hook.SignalLost:
		m.stats.Losses++
	case hook.SignalTimeout:
		m.stats.Timeouts++
	}
	m.stats.Region = m.source.RegionName()
	m.candidates = candidates
	if len(events) > 0 {
		m.state = next
	}
	m.mu.Unlock()

	m.dispatch(events)
}

// shutdown publishes one final cleared state regardless of edge tracking.
func (m *Monitor) shutdown(now time.Time) {
	m.tickMu.Lock()
	defer m.tickMu.Unlock()

	m.machine.Reset()
	m.tracker.Reset()
	m.cleared = true
	m.lastClear = now

	state := m.defaultState(now)
	m.mu.Lock()
	m.state = state
	m.candidates = nil
	m.mu.Unlock()

	m.dispatch([]Event{{Kind: KindCleared, Timestamp: now, State: state}})
}

func (m *Monitor) dispatch(events []Event) {
	if len(events) == 0 {
		return
	}

	m.mu.RLock()
	listeners := slices.Clone(m.listeners)
	subs := make([]*subscriber, 0, len(m.subscribers))
	for sub := range m.subscribers {
		subs = append(subs, sub)
	}
	m.mu.RUnlock()

	for _, event := range events {
		for _, l := range listeners {
			l(event)
		}
		for _, sub := range subs {
			sub.send(event)
		}
	}
}

func (m *Monitor) stateFor(c selector.Candidate, now time.Time) State {
	title := c.WindowTitle
	if title == "" {
		title = c.ProcessName
	}
	return State{
		ProcessID:          c.ProcessID,
		ProcessName:        c.ProcessName,
		WindowTitle:        title,
		Category:           m.categories.match(c.ProcessName, c.WindowTitle),
		FPS:                c.Metrics.FPS,
		FrameTimeMS:        c.Metrics.FrameTimeMS,
		OnePercentLowFPS:   m.tracker.OnePercentLow(),
		MinFPS:             c.Metrics.MinFPS,
		AvgFPS:             c.Metrics.AvgFPS,
		MaxFPS:             c.Metrics.MaxFPS,
		InstantFrameTimeMS: c.Metrics.InstantFrameTimeMS,
		GraphicsAPI:        c.Metrics.GraphicsAPI,
		Architecture:       c.Metrics.Architecture,
		Fullscreen:         c.Fullscreen,
		Foreground:         c.Foreground,
		IsMonitoring:       true,
		Hook:               m.machine.State(),
		UpdatedAt:          now,
	}
}

func (m *Monitor) defaultState(now time.Time) State {
	return State{
		WindowTitle: m.opts.DefaultTitle,
		Hook:        m.machine.State(),
		UpdatedAt:   now,
	}
}
