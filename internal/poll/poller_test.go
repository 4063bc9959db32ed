package poll

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/matheus3301/nestsync/internal/activity"
	"github.com/matheus3301/nestsync/internal/bus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type counter struct{ n atomic.Int32 }

func (c *counter) job(name string, every time.Duration) Job {
	return Job{Name: name, Every: every, Run: func(context.Context) { c.n.Add(1) }}
}

func TestPollerTicksWhileVisible(t *testing.T) {
	b := bus.New()
	monitor := activity.NewMonitor(time.Minute, b)
	var messages counter

	p := NewPoller(monitor, b, nil, nil, messages.job("messages", 5*time.Millisecond))
	p.Start(context.Background())
	defer p.Stop()

	assert.Equal(t, 1, p.Scheduled())
	require.Eventually(t, func() bool { return messages.n.Load() >= 3 }, time.Second, time.Millisecond)
}

func TestPollerHiddenStopsAllTimers(t *testing.T) {
	b := bus.New()
	monitor := activity.NewMonitor(time.Minute, b)
	var messages, unread, checks counter

	p := NewPoller(monitor, b, nil, nil,
		messages.job("messages", time.Hour),
		unread.job("unread", time.Hour),
		Job{Name: "activity", Every: time.Hour, Fixed: true, Run: func(context.Context) { checks.n.Add(1) }},
	)
	p.Start(context.Background())
	defer p.Stop()
	require.Equal(t, 3, p.Scheduled())

	monitor.SetVisible(false)
	require.Eventually(t, func() bool { return p.Scheduled() == 0 }, time.Second, time.Millisecond)
	assert.Zero(t, messages.n.Load())
	assert.Zero(t, unread.n.Load())
}

func TestPollerResumeRefreshesOnce(t *testing.T) {
	b := bus.New()
	monitor := activity.NewMonitor(time.Minute, b)
	var messages, unread, checks counter

	p := NewPoller(monitor, b, nil, nil,
		messages.job("messages", time.Hour),
		unread.job("unread", time.Hour),
		Job{Name: "activity", Every: time.Hour, Fixed: true, Run: func(context.Context) { checks.n.Add(1) }},
	)
	p.Start(context.Background())
	defer p.Stop()

	monitor.SetVisible(false)
	require.Eventually(t, func() bool { return p.Scheduled() == 0 }, time.Second, time.Millisecond)

	monitor.SetVisible(true)
	require.Eventually(t, func() bool { return p.Scheduled() == 3 }, time.Second, time.Millisecond)

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), messages.n.Load())
	assert.Equal(t, int32(1), unread.n.Load())
	assert.Zero(t, checks.n.Load(), "fixed jobs are not part of the catch-up refresh")
}

func TestPollerStartHidden(t *testing.T) {
	b := bus.New()
	monitor := activity.NewMonitor(time.Minute, b)
	monitor.SetVisible(false)
	var messages counter

	p := NewPoller(monitor, b, nil, nil, messages.job("messages", time.Millisecond))
	p.Start(context.Background())
	defer p.Stop()

	assert.Zero(t, p.Scheduled())
	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, messages.n.Load())
}

func TestPollerStopIsIdempotent(t *testing.T) {
	b := bus.New()
	monitor := activity.NewMonitor(time.Minute, b)
	var messages counter

	p := NewPoller(monitor, b, nil, nil, messages.job("messages", time.Hour))
	p.Start(context.Background())
	p.Start(context.Background())
	assert.Equal(t, 1, p.Scheduled())

	p.Stop()
	p.Stop()
	assert.Zero(t, p.Scheduled())
	assert.Zero(t, b.Subscribers())
}

func TestPollerRefreshNow(t *testing.T) {
	b := bus.New()
	monitor := activity.NewMonitor(time.Minute, b)
	monitor.SetVisible(false)
	var messages, unread counter

	p := NewPoller(monitor, b, nil, nil, messages.job("messages", time.Hour), unread.job("unread", time.Hour))
	p.RefreshNow(context.Background())

	assert.Equal(t, int32(1), messages.n.Load())
	assert.Equal(t, int32(1), unread.n.Load())
}
