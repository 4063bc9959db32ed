package activity

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/matheus3301/nestsync/internal/bus"
)

// State is the user's engagement with the client.
type State string

const (
	Active State = "ACTIVE"
	Idle   State = "IDLE"
	Hidden State = "HIDDEN"
)

// DefaultThreshold is how long without interaction before ACTIVE becomes IDLE.
const DefaultThreshold = 30 * time.Second

// validTransitions defines allowed state transitions.
var validTransitions = map[State][]State{
	Active: {Idle, Hidden},
	Idle:   {Active, Hidden},
	Hidden: {Active, Idle},
}

// Change is the payload of activity.state_changed events.
type Change struct {
	From State
	To   State
}

// Monitor tracks interaction recency and visibility and derives the polling
// cadence from them.
type Monitor struct {
	mu           sync.RWMutex
	current      State
	lastActivity time.Time
	threshold    time.Duration
	now          func() time.Time
	bus          *bus.Bus
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

// NewMonitor creates a monitor in the ACTIVE state.
func NewMonitor(threshold time.Duration, b *bus.Bus, opts ...Option) *Monitor {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	m := &Monitor{
		current:   Active,
		threshold: threshold,
		now:       time.Now,
		bus:       b,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.lastActivity = m.now()
	return m
}

// Current returns the current state.
func (m *Monitor) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// LastActivity returns the time of the most recent user action.
func (m *Monitor) LastActivity() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastActivity
}

// Touch records a user action (typing, sending, navigating).
func (m *Monitor) Touch() {
	m.mu.Lock()
	m.lastActivity = m.now()
	if m.current == Hidden {
		m.mu.Unlock()
		return
	}
	change, err := m.transitionLocked(Active)
	m.mu.Unlock()
	m.emit(change, err)
}

// Check demotes ACTIVE to IDLE once the threshold has passed without
// interaction. It is driven by a timer.
func (m *Monitor) Check() {
	m.mu.Lock()
	if m.current != Active || m.now().Sub(m.lastActivity) < m.threshold {
		m.mu.Unlock()
		return
	}
	change, err := m.transitionLocked(Idle)
	m.mu.Unlock()
	m.emit(change, err)
}

// SetVisible records a tab visibility change.
func (m *Monitor) SetVisible(visible bool) {
	m.mu.Lock()
	target := Hidden
	if visible {
		target = Active
		if m.now().Sub(m.lastActivity) >= m.threshold {
			target = Idle
		}
		if m.current != Hidden {
			target = m.current
		}
	}
	change, err := m.transitionLocked(target)
	m.mu.Unlock()
	m.emit(change, err)
}

// Interval scales a base polling interval by the current state: unchanged
// while ACTIVE, doubled while IDLE, zero (paused) while HIDDEN.
func (m *Monitor) Interval(base time.Duration) time.Duration {
	switch m.Current() {
	case Idle:
		return 2 * base
	case Hidden:
		return 0
	default:
		return base
	}
}

// Transition attempts to move to a new state. Returns error if transition is invalid.
func (m *Monitor) Transition(to State) error {
	m.mu.Lock()
	change, err := m.transitionLocked(to)
	m.mu.Unlock()
	m.emit(change, err)
	return err
}

// transitionLocked returns a nil change when already in the target state.
func (m *Monitor) transitionLocked(to State) (*Change, error) {
	if m.current == to {
		return nil, nil
	}
	if !slices.Contains(validTransitions[m.current], to) {
		return nil, fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	change := &Change{From: m.current, To: to}
	m.current = to
	return change, nil
}

func (m *Monitor) emit(change *Change, err error) {
	if err != nil || change == nil || m.bus == nil {
		return
	}
	m.bus.Emit(bus.ActivityChanged, *change)
}
