package sync

import (
	"context"
	"errors"
	"fmt"
	"slices"
	stdsync "sync"
	"sync/atomic"
	"time"

	"github.com/matheus3301/nestsync/internal/bus"
	"github.com/matheus3301/nestsync/internal/cache"
	"github.com/matheus3301/nestsync/internal/model"
	"github.com/matheus3301/nestsync/internal/poll"
	"github.com/matheus3301/nestsync/internal/scheduler"
	"go.uber.org/zap"
)

// View is a point-in-time copy of one conversation's state.
type View struct {
	Key         string           `json:"key"`
	Peer        model.Peer       `json:"peer"`
	Messages    []model.Message  `json:"messages"`
	UnreadCount int              `json:"unreadCount"`
	Loading     bool             `json:"loading"`
	Err         string           `json:"error,omitempty"`
	Pagination  model.Pagination `json:"pagination"`
}

// Engine synchronizes one conversation between the server and local state.
// Sends are optimistic; fetches merge the server page into the local list.
type Engine struct {
	peer      model.Peer
	deps      Deps
	opts      Options
	key       string
	unreadKey string
	logger    *zap.Logger

	mu         stdsync.Mutex
	messages   []model.Message
	unread     int
	loading    bool
	err        error
	pagination model.Pagination
	pinned     map[string]pin
	guard      fetchGuard
}

// NewEngine creates an engine for the conversation identified by peer.
func NewEngine(peer model.Peer, deps Deps, opts Options) *Engine {
	deps = deps.withDefaults()
	return &Engine{
		peer: peer,
		deps: deps,
		opts: opts.withDefaults(),
		key: cache.Key("conversation", map[string]string{
			"u1":         peer.SenderID,
			"u2":         peer.ReceiverID,
			"propertyId": peer.PropertyID,
		}),
		unreadKey: unreadKey(peer.SenderID),
		logger: deps.Logger.With(
			zap.String("receiver_id", peer.ReceiverID),
			zap.String("property_id", peer.PropertyID)),
		messages:   []model.Message{},
		pagination: model.EmptyConversationPage().Pagination,
		pinned:     make(map[string]pin),
	}
}

func unreadKey(userID string) string {
	return cache.Key("unread", map[string]string{"user": userID})
}

// Peer returns the conversation identity.
func (e *Engine) Peer() model.Peer {
	return e.peer
}

// Key returns the cache key of the conversation.
func (e *Engine) Key() string {
	return e.key
}

// Snapshot returns a copy of the current state.
func (e *Engine) Snapshot() View {
	e.mu.Lock()
	defer e.mu.Unlock()
	v := View{
		Key:         e.key,
		Peer:        e.peer,
		Messages:    slices.Clone(e.messages),
		UnreadCount: e.unread,
		Loading:     e.loading,
		Pagination:  e.pagination,
	}
	if e.err != nil {
		v.Err = e.err.Error()
	}
	return v
}

// Subscribe returns conversation events for every open engine.
func (e *Engine) Subscribe(buf int) (<-chan bus.Event, func()) {
	return e.deps.Bus.Subscribe("conversation.", buf)
}

// SendMessage validates content, shows it immediately as a sending message
// and submits it. On failure the entry stays in the list as failed and the
// original error is returned.
func (e *Engine) SendMessage(ctx context.Context, content string) (model.Message, error) {
	req, optimistic, err := e.deps.Sender.Prepare(e.peer, content)
	if err != nil {
		return model.Message{}, err
	}

	e.mu.Lock()
	e.messages = append(e.messages, optimistic)
	e.mu.Unlock()
	e.deps.Bus.Emit(bus.MessageSending, optimistic)
	e.changed()

	sent, err := e.deps.Sender.Deliver(ctx, optimistic.ID, req)
	if err != nil {
		failed := optimistic
		failed.Status = model.StatusFailed
		e.mu.Lock()
		if i := indexOf(e.messages, optimistic.ID); i >= 0 {
			e.messages[i].Status = model.StatusFailed
		}
		e.mu.Unlock()
		e.deps.Bus.Emit(bus.MessageFailed, failed)
		e.changed()
		return failed, err
	}

	confirmed := *sent
	confirmed.Status = model.StatusSent
	confirmed.CreatedAt = optimistic.CreatedAt

	e.mu.Lock()
	e.pinned[confirmed.ID] = pin{createdAt: optimistic.CreatedAt, confirmedAt: e.deps.Now()}
	// A fetch may have merged the server copy already.
	e.messages = slices.DeleteFunc(e.messages, func(m model.Message) bool { return m.ID == confirmed.ID })
	if i := indexOf(e.messages, optimistic.ID); i >= 0 {
		e.messages[i] = confirmed
	} else {
		e.messages = append(e.messages, confirmed)
		slices.SortStableFunc(e.messages, byCreatedAt)
	}
	e.mu.Unlock()

	e.deps.Cache.Expire(e.key)
	e.deps.Bus.Emit(bus.MessageSent, confirmed)
	e.changed()
	return confirmed, nil
}

// RetryMessage resubmits a failed message under a new temp id.
func (e *Engine) RetryMessage(ctx context.Context, id string) (model.Message, error) {
	e.mu.Lock()
	i := indexOf(e.messages, id)
	if i < 0 || e.messages[i].Status != model.StatusFailed {
		e.mu.Unlock()
		return model.Message{}, fmt.Errorf("retry %s: %w", id, ErrNotRetryable)
	}
	content := e.messages[i].Content
	e.messages = slices.Delete(e.messages, i, i+1)
	e.mu.Unlock()

	return e.SendMessage(ctx, content)
}

// FetchMessages loads the conversation and merges it into local state.
// Silent fetches come from polling: they may be served from a fresh cache
// entry and never report errors. Foreground fetches always hit the network and
// report an error when there is nothing to show.
func (e *Engine) FetchMessages(ctx context.Context, silent bool) error {
	start := e.deps.Now()
	interval := guardInterval(e.deps.Cadence, e.opts.MessageInterval)

	e.mu.Lock()
	prev, ok := e.guard.begin(start, interval)
	if !ok {
		e.mu.Unlock()
		e.logger.Debug("fetch skipped", zap.Bool("silent", silent), zap.Duration("interval", interval))
		return nil
	}
	if !silent {
		e.loading = true
	}
	e.mu.Unlock()
	if !silent {
		e.changed()
	}

	fetched, src, err := cache.ReadThrough(ctx, e.deps.Cache, e.key, !silent, e.loader(silent))

	e.mu.Lock()
	if !silent {
		e.loading = false
	}
	if err != nil {
		e.guard.rollback(start, prev)
		empty := len(e.messages) == 0
		if !silent && empty {
			e.err = err
		}
		e.mu.Unlock()
		e.changed()
		if silent || !empty {
			e.logger.Warn("fetch messages failed", zap.Bool("silent", silent), zap.Error(err))
			return nil
		}
		return err
	}
	// A joined or cached load may predate this call; merge against the time
	// the page was actually requested.
	e.messages = mergeMessages(e.messages, fetched.page.Messages, e.pinned, fetched.requestedAt)
	e.prunePins(fetched.requestedAt)
	e.pagination = fetched.page.Pagination
	e.err = nil
	n := len(e.messages)
	e.mu.Unlock()

	e.logger.Debug("messages fetched", zap.String("source", string(src)), zap.Int("count", n))
	e.changed()
	return nil
}

// fetchedPage is the cached form of a conversation page.
type fetchedPage struct {
	page        model.ConversationPage
	requestedAt time.Time
}

// prunePins drops pins of messages that left the list after a page requested
// after their confirmation. The caller holds e.mu.
func (e *Engine) prunePins(requestedAt time.Time) {
	for id, p := range e.pinned {
		if p.confirmedAt.Before(requestedAt) && indexOf(e.messages, id) < 0 {
			delete(e.pinned, id)
		}
	}
}

func (e *Engine) loader(silent bool) cache.Loader[fetchedPage] {
	attempts := e.deps.Scheduler.Config().MaxRetries
	if silent {
		// The next poll is the retry.
		attempts = 1
	}
	q := model.ConversationQuery{
		Page:       1,
		Limit:      e.opts.PageLimit,
		SortBy:     "createdAt",
		SortOrder:  "desc",
		PropertyID: e.peer.PropertyID,
	}
	return func(ctx context.Context) (fetchedPage, time.Duration, error) {
		requestedAt := e.deps.Now()
		var empty atomic.Bool
		page, err := scheduler.Retry(ctx, e.deps.Scheduler, "fetch", PriorityFetch, attempts,
			func(ctx context.Context) (model.ConversationPage, error) {
				p, err := e.deps.Transport.GetConversation(ctx, e.peer.SenderID, e.peer.ReceiverID, q)
				if errors.Is(err, model.ErrNotFound) || (err == nil && p == nil) {
					empty.Store(true)
					return model.EmptyConversationPage(), nil
				}
				if err != nil {
					return model.ConversationPage{}, err
				}
				empty.Store(false)
				return *p, nil
			})
		if err != nil {
			return fetchedPage{}, 0, err
		}
		if empty.Load() {
			return fetchedPage{page: page, requestedAt: requestedAt}, e.opts.EmptyTTL, nil
		}
		// Newest page first on the wire; keep the cached copy chronological.
		msgs := slices.Clone(page.Messages)
		slices.Reverse(msgs)
		page.Messages = msgs
		return fetchedPage{page: page, requestedAt: requestedAt}, e.opts.ConversationTTL, nil
	}
}

// MarkAsRead marks one message read locally, then tells the server. Server
// failures are only logged.
func (e *Engine) MarkAsRead(ctx context.Context, id string) error {
	e.mu.Lock()
	i := indexOf(e.messages, id)
	if i < 0 {
		e.mu.Unlock()
		return fmt.Errorf("message %s: %w", id, model.ErrNotFound)
	}
	m := &e.messages[i]
	if m.IsRead || m.Local() {
		e.mu.Unlock()
		return nil
	}
	m.IsRead = true
	if m.ReceiverID == e.peer.SenderID {
		e.unread = max(0, e.unread-1)
	}
	e.mu.Unlock()
	e.changed()

	_, err := scheduler.Enqueue(ctx, e.deps.Scheduler, "read", PriorityRead, func(ctx context.Context) (*model.Message, error) {
		return e.deps.Transport.MarkAsRead(ctx, id)
	})
	if err != nil {
		e.logger.Warn("mark as read failed", zap.String("msg_id", id), zap.Error(err))
	}
	e.deps.Cache.Expire(e.key)
	e.deps.Cache.Expire(e.unreadKey)
	return nil
}

// MarkConversationAsRead marks every message addressed to the current user
// read locally, then tells the server. Server failures are only logged.
func (e *Engine) MarkConversationAsRead(ctx context.Context) error {
	e.mu.Lock()
	n := 0
	for i := range e.messages {
		m := &e.messages[i]
		if m.ReceiverID == e.peer.SenderID && !m.IsRead && !m.Local() {
			m.IsRead = true
			n++
		}
	}
	e.unread = max(0, e.unread-n)
	e.mu.Unlock()
	if n > 0 {
		e.changed()
	}

	err := e.deps.Scheduler.Submit(ctx, "read", PriorityRead, func(ctx context.Context) error {
		return e.deps.Transport.MarkConversationAsRead(ctx, e.peer.SenderID, e.peer.ReceiverID)
	})
	if err != nil {
		e.logger.Warn("mark conversation as read failed", zap.Error(err))
	}
	e.deps.Cache.Expire(e.key)
	e.deps.Cache.Expire(e.unreadKey)
	return nil
}

// RefreshUnreadCount reloads the current user's unread counter. A 404 means
// zero. Failures are only logged.
func (e *Engine) RefreshUnreadCount(ctx context.Context) error {
	n, _, err := cache.ReadThrough(ctx, e.deps.Cache, e.unreadKey, false, func(ctx context.Context) (int, time.Duration, error) {
		n, err := scheduler.Enqueue(ctx, e.deps.Scheduler, "unread", PriorityUnread, func(ctx context.Context) (int, error) {
			return e.deps.Transport.GetUnreadCount(ctx, e.peer.SenderID)
		})
		if errors.Is(err, model.ErrNotFound) {
			return 0, e.opts.EmptyTTL, nil
		}
		if err != nil {
			return 0, 0, err
		}
		return n, e.opts.UnreadTTL, nil
	})
	if err != nil {
		e.logger.Warn("refresh unread count failed", zap.Error(err))
		return nil
	}

	e.mu.Lock()
	changed := e.unread != max(0, n)
	e.unread = max(0, n)
	e.mu.Unlock()
	if changed {
		e.changed()
	}
	return nil
}

// Jobs returns the background polls of this conversation.
func (e *Engine) Jobs() []poll.Job {
	return []poll.Job{
		{
			Name:  "messages",
			Every: e.opts.MessageInterval,
			Run:   func(ctx context.Context) { _ = e.FetchMessages(ctx, true) },
		},
		{
			Name:  "unread",
			Every: e.opts.UnreadInterval,
			Run:   func(ctx context.Context) { _ = e.RefreshUnreadCount(ctx) },
		},
	}
}

func (e *Engine) changed() {
	e.deps.Bus.Emit(bus.ConversationUpdated, e.key)
}
