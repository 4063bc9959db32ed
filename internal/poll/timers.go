package poll

import (
	"context"
	"sync"
	"time"
)

// Timers holds named periodic timers. Start and Stop are idempotent, so a
// remount or a repeated visibility event never leaves duplicate timers behind.
type Timers struct {
	mu      sync.Mutex
	handles map[string]*handle
	parent  context.Context
}

type handle struct {
	cancel context.CancelFunc
}

// NewTimers creates an empty timer set. Callbacks receive a context derived
// from parent that is cancelled when their timer stops.
func NewTimers(parent context.Context) *Timers {
	return &Timers{
		handles: make(map[string]*handle),
		parent:  parent,
	}
}

// Start runs fn every every() until stopped. The interval is re-read before
// each wait so cadence changes apply without a restart; a non-positive
// interval stops the timer. Returns false if name is already running.
func (t *Timers) Start(name string, every func() time.Duration, fn func(ctx context.Context)) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.handles[name]; ok {
		return false
	}
	ctx, cancel := context.WithCancel(t.parent)
	h := &handle{cancel: cancel}
	t.handles[name] = h
	go t.loop(ctx, name, h, every, fn)
	return true
}

func (t *Timers) loop(ctx context.Context, name string, h *handle, every func() time.Duration, fn func(ctx context.Context)) {
	defer t.remove(name, h)
	for {
		d := every()
		if d <= 0 {
			return
		}
		timer := time.NewTimer(d)
		select {
		case <-timer.C:
			fn(ctx)
		case <-ctx.Done():
			timer.Stop()
			return
		}
	}
}

// remove drops name only if it still refers to h, so a restarted timer is
// not removed by its predecessor's exit.
func (t *Timers) remove(name string, h *handle) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if cur, ok := t.handles[name]; ok && cur == h {
		delete(t.handles, name)
	}
	h.cancel()
}

// Stop cancels the named timer. Returns false if it was not running.
func (t *Timers) Stop(name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	h, ok := t.handles[name]
	if !ok {
		return false
	}
	delete(t.handles, name)
	h.cancel()
	return true
}

// StopAll cancels every timer.
func (t *Timers) StopAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for name, h := range t.handles {
		h.cancel()
		delete(t.handles, name)
	}
}

// Running reports whether name is scheduled.
func (t *Timers) Running(name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.handles[name]
	return ok
}

// Len returns the number of scheduled timers.
func (t *Timers) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.handles)
}
