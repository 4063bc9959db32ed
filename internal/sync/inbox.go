package sync

import (
	"context"
	"errors"
	"fmt"
	"slices"
	stdsync "sync"
	"time"

	"github.com/matheus3301/nestsync/internal/bus"
	"github.com/matheus3301/nestsync/internal/cache"
	"github.com/matheus3301/nestsync/internal/model"
	"github.com/matheus3301/nestsync/internal/poll"
	"github.com/matheus3301/nestsync/internal/scheduler"
	"go.uber.org/zap"
)

// InboxView is a point-in-time copy of the conversation list.
type InboxView struct {
	OwnerID          string               `json:"ownerId"`
	Conversations    []model.Conversation `json:"conversations"`
	TotalUnreadCount int                  `json:"totalUnreadCount"`
	Loading          bool                 `json:"loading"`
	Err              string               `json:"error,omitempty"`
}

// Inbox keeps the list of conversations of one user.
type Inbox struct {
	owner  string
	deps   Deps
	opts   Options
	key    string
	logger *zap.Logger

	mu      stdsync.Mutex
	list    model.ConversationList
	loading bool
	err     error
	guard   fetchGuard
}

// NewInbox creates the inbox of ownerID.
func NewInbox(ownerID string, deps Deps, opts Options) *Inbox {
	deps = deps.withDefaults()
	return &Inbox{
		owner:  ownerID,
		deps:   deps,
		opts:   opts.withDefaults(),
		key:    cache.Key("inbox", map[string]string{"owner": ownerID}),
		logger: deps.Logger.With(zap.String("owner_id", ownerID)),
		list:   model.ConversationList{Conversations: []model.Conversation{}},
	}
}

// Snapshot returns a copy of the current list.
func (in *Inbox) Snapshot() InboxView {
	in.mu.Lock()
	defer in.mu.Unlock()
	v := InboxView{
		OwnerID:          in.owner,
		Conversations:    slices.Clone(in.list.Conversations),
		TotalUnreadCount: in.list.TotalUnreadCount,
		Loading:          in.loading,
	}
	if in.err != nil {
		v.Err = in.err.Error()
	}
	return v
}

// Fetch reloads the conversation list. The silent/foreground rules and the
// minimum interval guard are the same as for conversation fetches.
func (in *Inbox) Fetch(ctx context.Context, silent bool) error {
	start := in.deps.Now()
	interval := guardInterval(in.deps.Cadence, in.opts.InboxInterval)

	in.mu.Lock()
	prev, ok := in.guard.begin(start, interval)
	if !ok {
		in.mu.Unlock()
		in.logger.Debug("inbox fetch skipped", zap.Bool("silent", silent))
		return nil
	}
	if !silent {
		in.loading = true
	}
	in.mu.Unlock()

	attempts := in.deps.Scheduler.Config().MaxRetries
	if silent {
		attempts = 1
	}
	list, _, err := cache.ReadThrough(ctx, in.deps.Cache, in.key, !silent, func(ctx context.Context) (model.ConversationList, time.Duration, error) {
		l, err := scheduler.Retry(ctx, in.deps.Scheduler, "inbox", PriorityInbox, attempts,
			func(ctx context.Context) (*model.ConversationList, error) {
				l, err := in.deps.Transport.GetConversationsList(ctx, in.owner)
				if errors.Is(err, model.ErrNotFound) {
					return nil, nil
				}
				return l, err
			})
		if err != nil {
			return model.ConversationList{}, 0, err
		}
		if l == nil {
			return model.ConversationList{Conversations: []model.Conversation{}}, in.opts.EmptyTTL, nil
		}
		return *l, in.opts.InboxTTL, nil
	})

	in.mu.Lock()
	if !silent {
		in.loading = false
	}
	if err != nil {
		in.guard.rollback(start, prev)
		empty := len(in.list.Conversations) == 0
		if !silent && empty {
			in.err = err
		}
		in.mu.Unlock()
		if silent || !empty {
			in.logger.Warn("fetch inbox failed", zap.Bool("silent", silent), zap.Error(err))
			return nil
		}
		return err
	}
	in.list = list
	if in.list.Conversations == nil {
		in.list.Conversations = []model.Conversation{}
	}
	in.err = nil
	in.mu.Unlock()

	in.deps.Bus.Emit(bus.InboxUpdated, in.owner)
	return nil
}

// MarkRead clears the unread counter of one conversation locally, then marks
// it read on the server. Server failures are only logged.
func (in *Inbox) MarkRead(ctx context.Context, conversationID string) error {
	in.mu.Lock()
	i := slices.IndexFunc(in.list.Conversations, func(c model.Conversation) bool { return c.ID == conversationID })
	if i < 0 {
		in.mu.Unlock()
		return fmt.Errorf("conversation %s: %w", conversationID, model.ErrNotFound)
	}
	// The list may be a cached snapshot; copy before writing.
	in.list.Conversations = slices.Clone(in.list.Conversations)
	conv := &in.list.Conversations[i]
	cleared := conv.UnreadCount
	conv.UnreadCount = 0
	in.list.TotalUnreadCount = max(0, in.list.TotalUnreadCount-cleared)
	other, ok := conv.Counterpart(in.owner)
	in.mu.Unlock()
	in.deps.Bus.Emit(bus.InboxUpdated, in.owner)

	if ok {
		err := in.deps.Scheduler.Submit(ctx, "read", PriorityRead, func(ctx context.Context) error {
			return in.deps.Transport.MarkConversationAsRead(ctx, in.owner, other.ID)
		})
		if err != nil {
			in.logger.Warn("mark conversation as read failed", zap.String("conversation_id", conversationID), zap.Error(err))
		}
	}
	in.deps.Cache.Expire(in.key)
	in.deps.Cache.Expire(unreadKey(in.owner))
	return nil
}

// Job returns the background poll of the inbox.
func (in *Inbox) Job() poll.Job {
	return poll.Job{
		Name:  "inbox",
		Every: in.opts.InboxInterval,
		Run:   func(ctx context.Context) { _ = in.Fetch(ctx, true) },
	}
}
