package activity

import (
	"sync"
	"testing"
	"time"

	"github.com/matheus3301/nestsync/internal/bus"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func testMonitor(t *testing.T, b *bus.Bus) (*Monitor, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC)}
	return NewMonitor(30*time.Second, b, WithClock(clock.Now)), clock
}

func TestInitialState(t *testing.T) {
	m, _ := testMonitor(t, nil)
	if m.Current() != Active {
		t.Errorf("initial state = %s, want ACTIVE", m.Current())
	}
}

func TestIdleAfterThreshold(t *testing.T) {
	m, clock := testMonitor(t, nil)

	clock.Advance(29 * time.Second)
	m.Check()
	if m.Current() != Active {
		t.Fatalf("state = %s before threshold, want ACTIVE", m.Current())
	}

	clock.Advance(time.Second)
	m.Check()
	if m.Current() != Idle {
		t.Errorf("state = %s after threshold, want IDLE", m.Current())
	}
}

func TestTouchResetsActivity(t *testing.T) {
	m, clock := testMonitor(t, nil)

	clock.Advance(40 * time.Second)
	m.Check()
	m.Touch()
	if m.Current() != Active {
		t.Fatalf("state = %s after touch, want ACTIVE", m.Current())
	}

	clock.Advance(20 * time.Second)
	m.Check()
	if m.Current() != Active {
		t.Errorf("state = %s, want ACTIVE (activity timestamp was reset)", m.Current())
	}
}

func TestHiddenAndVisible(t *testing.T) {
	m, clock := testMonitor(t, nil)

	m.SetVisible(false)
	if m.Current() != Hidden {
		t.Fatalf("state = %s, want HIDDEN", m.Current())
	}

	// Touch while hidden refreshes the timestamp but does not unhide.
	m.Touch()
	if m.Current() != Hidden {
		t.Errorf("state = %s after touch while hidden, want HIDDEN", m.Current())
	}

	m.SetVisible(true)
	if m.Current() != Active {
		t.Errorf("state = %s after quick return, want ACTIVE", m.Current())
	}

	m.SetVisible(false)
	clock.Advance(5 * time.Minute)
	m.SetVisible(true)
	if m.Current() != Idle {
		t.Errorf("state = %s after long absence, want IDLE", m.Current())
	}
}

func TestVisibleWhileVisibleKeepsState(t *testing.T) {
	m, clock := testMonitor(t, nil)
	clock.Advance(time.Minute)
	m.Check()

	m.SetVisible(true)
	if m.Current() != Idle {
		t.Errorf("state = %s, want IDLE unchanged", m.Current())
	}
}

func TestInterval(t *testing.T) {
	m, clock := testMonitor(t, nil)
	base := 3 * time.Second

	if got := m.Interval(base); got != base {
		t.Errorf("ACTIVE interval = %v, want %v", got, base)
	}

	clock.Advance(time.Minute)
	m.Check()
	if got := m.Interval(base); got != 2*base {
		t.Errorf("IDLE interval = %v, want %v", got, 2*base)
	}

	m.SetVisible(false)
	if got := m.Interval(base); got != 0 {
		t.Errorf("HIDDEN interval = %v, want 0", got)
	}
}

func TestInvalidTransition(t *testing.T) {
	tests := []struct {
		from State
		to   State
	}{
		{Hidden, Hidden},
		{Active, State("BOGUS")},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			m, _ := testMonitor(t, nil)
			if tt.from != Active {
				if err := m.Transition(tt.from); err != nil {
					t.Fatal(err)
				}
			}
			err := m.Transition(tt.to)
			if tt.from == tt.to {
				if err != nil {
					t.Errorf("self transition error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Errorf("Transition(%s -> %s) should fail", tt.from, tt.to)
			}
			if m.Current() != tt.from {
				t.Errorf("state = %s, want %s (unchanged)", m.Current(), tt.from)
			}
		})
	}
}

func TestTransitionEmitsEvent(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("activity.", 10)
	defer unsub()

	m, _ := testMonitor(t, b)
	m.SetVisible(false)
	m.SetVisible(false) // no-op, no event

	evt := <-ch
	if evt.Kind != bus.ActivityChanged {
		t.Errorf("event kind = %q, want %s", evt.Kind, bus.ActivityChanged)
	}
	change, ok := evt.Payload.(Change)
	if !ok {
		t.Fatalf("payload type = %T, want Change", evt.Payload)
	}
	if change.From != Active || change.To != Hidden {
		t.Errorf("change = %v -> %v, want ACTIVE -> HIDDEN", change.From, change.To)
	}

	select {
	case evt := <-ch:
		t.Errorf("unexpected second event: %+v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}
