package sync

import (
	"context"
	"errors"
	stdsync "sync"

	"github.com/matheus3301/nestsync/internal/activity"
	"github.com/matheus3301/nestsync/internal/metrics"
	"github.com/matheus3301/nestsync/internal/model"
	"github.com/matheus3301/nestsync/internal/poll"
	"go.uber.org/zap"
)

// Manager owns the inbox and at most one open conversation, and wires their
// polling to the activity monitor.
type Manager struct {
	owner   string
	deps    Deps
	opts    Options
	monitor *activity.Monitor
	metrics *metrics.Metrics
	logger  *zap.Logger
	inbox   *Inbox

	mu          stdsync.Mutex
	ctx         context.Context
	cancel      context.CancelFunc
	inboxPoller *poll.Poller
	active      *Engine
	poller      *poll.Poller
}

// NewManager creates a manager for ownerID. The monitor also serves as the
// polling cadence unless deps sets one.
func NewManager(ownerID string, deps Deps, opts Options, monitor *activity.Monitor, m *metrics.Metrics) *Manager {
	if deps.Cadence == nil {
		deps.Cadence = monitor
	}
	deps = deps.withDefaults()
	opts = opts.withDefaults()
	return &Manager{
		owner:   ownerID,
		deps:    deps,
		opts:    opts,
		monitor: monitor,
		metrics: m,
		logger:  deps.Logger,
		inbox:   NewInbox(ownerID, deps, opts),
		ctx:     context.Background(),
	}
}

// Start begins background polling and loads the inbox without waiting for
// it. Polling stops when ctx ends or Close is called.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	if m.cancel != nil {
		m.mu.Unlock()
		return
	}
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.inboxPoller = poll.NewPoller(m.monitor, m.deps.Bus, m.logger, m.metrics,
		m.inbox.Job(),
		poll.Job{
			Name:  "activity",
			Every: m.opts.ActivityCheck,
			Fixed: true,
			Run:   func(context.Context) { m.monitor.Check() },
		},
	)
	runCtx, poller := m.ctx, m.inboxPoller
	m.mu.Unlock()

	poller.Start(runCtx)
	go func() {
		if err := m.inbox.Fetch(runCtx, false); err != nil {
			m.logger.Warn("initial inbox load failed", zap.Error(err))
		}
	}()
}

// Detach returns a context that keeps ctx's values but not its cancellation,
// and ends when the manager closes. Work a caller may abandon, such as a send
// with retries, runs under it.
func (m *Manager) Detach(ctx context.Context) (context.Context, context.CancelFunc) {
	m.mu.Lock()
	parent := m.ctx
	m.mu.Unlock()

	detached, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stop := context.AfterFunc(parent, cancel)
	return detached, func() {
		stop()
		cancel()
	}
}

// Open makes peer the active conversation. The previous conversation's
// polling is torn down first. The initial load is a foreground fetch; its
// error is returned but the conversation stays open so it can be retried.
func (m *Manager) Open(ctx context.Context, peer model.Peer) (*Engine, error) {
	if peer.SenderID == "" {
		peer.SenderID = m.owner
	}

	m.mu.Lock()
	if m.poller != nil {
		m.poller.Stop()
	}
	e := NewEngine(peer, m.deps, m.opts)
	p := poll.NewPoller(m.monitor, m.deps.Bus, m.logger, m.metrics, e.Jobs()...)
	m.active, m.poller = e, p
	runCtx := m.ctx
	m.mu.Unlock()

	m.logger.Info("conversation opened",
		zap.String("receiver_id", peer.ReceiverID),
		zap.String("property_id", peer.PropertyID))

	err := e.FetchMessages(ctx, false)
	_ = e.RefreshUnreadCount(ctx)

	m.mu.Lock()
	if m.poller == p {
		p.Start(runCtx)
	}
	m.mu.Unlock()
	return e, err
}

// Active returns the open conversation.
func (m *Manager) Active() (*Engine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return nil, ErrNoConversation
	}
	return m.active, nil
}

// Owner returns the user the manager syncs for.
func (m *Manager) Owner() string {
	return m.owner
}

// Inbox returns the inbox.
func (m *Manager) Inbox() *Inbox {
	return m.inbox
}

// Polling returns the number of live timers across the inbox and the open
// conversation.
func (m *Manager) Polling() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	if m.inboxPoller != nil {
		n += m.inboxPoller.Scheduled()
	}
	if m.poller != nil {
		n += m.poller.Scheduled()
	}
	return n
}

// Refresh forces an immediate fetch of everything being polled.
func (m *Manager) Refresh(ctx context.Context) error {
	var errs []error
	if err := m.inbox.Fetch(ctx, false); err != nil {
		errs = append(errs, err)
	}
	if e, err := m.Active(); err == nil {
		if err := e.FetchMessages(ctx, false); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close stops all polling.
func (m *Manager) Close() {
	m.mu.Lock()
	cancel, inboxPoller, poller := m.cancel, m.inboxPoller, m.poller
	m.cancel, m.poller = nil, nil
	m.mu.Unlock()

	if poller != nil {
		poller.Stop()
	}
	if inboxPoller != nil {
		inboxPoller.Stop()
	}
	if cancel != nil {
		cancel()
	}
}
