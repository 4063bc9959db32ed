package poll

import (
	"context"
	"sync"
	"time"

	"github.com/matheus3301/nestsync/internal/activity"
	"github.com/matheus3301/nestsync/internal/bus"
	"github.com/matheus3301/nestsync/internal/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Job is one periodic background task.
type Job struct {
	Name  string
	Every time.Duration
	// Fixed jobs keep their interval regardless of activity and are not part
	// of the catch-up refresh on resume.
	Fixed bool
	Run   func(ctx context.Context)
}

// Poller drives a set of jobs at a cadence derived from the activity monitor.
// While the tab is hidden no timer is scheduled at all; on return every
// non-fixed job runs once immediately before timers resume.
type Poller struct {
	monitor *activity.Monitor
	bus     *bus.Bus
	jobs    []Job
	logger  *zap.Logger
	metrics *metrics.Metrics

	mu     sync.Mutex
	timers *Timers
	cancel context.CancelFunc
	done   chan struct{}
}

// NewPoller creates a stopped poller.
func NewPoller(monitor *activity.Monitor, b *bus.Bus, logger *zap.Logger, m *metrics.Metrics, jobs ...Job) *Poller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{
		monitor: monitor,
		bus:     b,
		jobs:    jobs,
		logger:  logger,
		metrics: m,
	}
}

// Start schedules the jobs and follows visibility changes. Calling Start on a
// running poller does nothing.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return
	}
	ctx, p.cancel = context.WithCancel(ctx)
	p.timers = NewTimers(ctx)
	p.done = make(chan struct{})

	ch, unsub := p.bus.Subscribe("activity.", 16)
	if p.monitor.Current() != activity.Hidden {
		p.startTimers()
	}
	go p.watch(ctx, ch, unsub, p.timers, p.done)
}

// Stop tears down every timer and the visibility subscription. Safe to call
// more than once.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel, done, timers := p.cancel, p.done, p.timers
	p.cancel = nil
	p.mu.Unlock()
	if cancel == nil {
		return
	}
	timers.StopAll()
	cancel()
	<-done
}

// Scheduled returns the number of live timers.
func (p *Poller) Scheduled() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.timers == nil {
		return 0
	}
	return p.timers.Len()
}

// RefreshNow runs every non-fixed job once, concurrently, and waits for them.
// It ignores visibility: an explicit refresh always goes to the network.
func (p *Poller) RefreshNow(ctx context.Context) {
	g, ctx := errgroup.WithContext(ctx)
	for _, job := range p.jobs {
		if job.Fixed {
			continue
		}
		g.Go(func() error {
			job.Run(ctx)
			return nil
		})
	}
	_ = g.Wait()
}

func (p *Poller) watch(ctx context.Context, ch <-chan bus.Event, unsub func(), timers *Timers, done chan struct{}) {
	defer close(done)
	defer unsub()
	for {
		select {
		case evt, ok := <-ch:
			if !ok {
				return
			}
			change, ok := evt.Payload.(activity.Change)
			if !ok {
				continue
			}
			p.handleChange(ctx, timers, change)
		case <-ctx.Done():
			return
		}
	}
}

func (p *Poller) handleChange(ctx context.Context, timers *Timers, change activity.Change) {
	switch {
	case change.To == activity.Hidden:
		timers.StopAll()
		p.logger.Debug("polling paused", zap.String("from", string(change.From)))
	case change.From == activity.Hidden:
		p.logger.Debug("polling resumed", zap.String("to", string(change.To)))
		p.RefreshNow(ctx)
		if ctx.Err() != nil {
			return
		}
		p.mu.Lock()
		p.startTimers()
		p.mu.Unlock()
	}
}

// startTimers must be called with p.mu held.
func (p *Poller) startTimers() {
	for _, job := range p.jobs {
		every := func() time.Duration {
			if job.Fixed {
				if p.monitor.Current() == activity.Hidden {
					return 0
				}
				return job.Every
			}
			return p.monitor.Interval(job.Every)
		}
		p.timers.Start(job.Name, every, func(ctx context.Context) {
			p.metrics.PollTick(job.Name)
			job.Run(ctx)
		})
	}
}
