package sync

import (
	"context"
	"errors"
	"time"

	"github.com/matheus3301/nestsync/internal/bus"
	"github.com/matheus3301/nestsync/internal/cache"
	"github.com/matheus3301/nestsync/internal/model"
	"github.com/matheus3301/nestsync/internal/outbox"
	"github.com/matheus3301/nestsync/internal/scheduler"
	"go.uber.org/zap"
)

// Scheduler priorities. Sends (outbox.SendPriority) outrank everything.
const (
	PriorityFetch  = 5
	PriorityInbox  = 4
	PriorityUnread = 3
	PriorityRead   = 2
)

var (
	// ErrNotRetryable is returned when retrying a message that has not failed.
	ErrNotRetryable = errors.New("message is not in failed state")
	// ErrNoConversation is returned when no conversation is open.
	ErrNoConversation = errors.New("no open conversation")
)

// Transport is the marketplace messaging API.
type Transport interface {
	SendMessage(ctx context.Context, req model.SendRequest) (*model.Message, error)
	GetConversation(ctx context.Context, userID1, userID2 string, q model.ConversationQuery) (*model.ConversationPage, error)
	MarkAsRead(ctx context.Context, messageID string) (*model.Message, error)
	MarkConversationAsRead(ctx context.Context, userID1, userID2 string) error
	GetUnreadCount(ctx context.Context, userID string) (int, error)
	GetConversationsList(ctx context.Context, ownerID string) (*model.ConversationList, error)
}

// Cadence scales a base polling interval by user activity. A zero result
// means polling is paused.
type Cadence interface {
	Interval(base time.Duration) time.Duration
}

// Deps are the shared collaborators of engines and the inbox. Scheduler and
// Cache are process-wide.
type Deps struct {
	Transport Transport
	Scheduler *scheduler.Scheduler
	Cache     *cache.Cache
	Bus       *bus.Bus
	Sender    *outbox.Sender
	Cadence   Cadence
	Logger    *zap.Logger
	Now       func() time.Time
}

func (d Deps) withDefaults() Deps {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Sender == nil {
		d.Sender = outbox.NewSender(d.Transport, d.Scheduler, d.Logger)
	}
	return d
}

// Options holds polling intervals, cache TTLs and paging.
type Options struct {
	MessageInterval time.Duration
	UnreadInterval  time.Duration
	InboxInterval   time.Duration
	ActivityCheck   time.Duration

	ConversationTTL time.Duration
	UnreadTTL       time.Duration
	EmptyTTL        time.Duration
	InboxTTL        time.Duration

	PageLimit int
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		MessageInterval: 3 * time.Second,
		UnreadInterval:  5 * time.Second,
		InboxInterval:   8 * time.Second,
		ActivityCheck:   5 * time.Second,
		ConversationTTL: 10 * time.Second,
		UnreadTTL:       5 * time.Second,
		EmptyTTL:        5 * time.Second,
		InboxTTL:        10 * time.Second,
		PageLimit:       50,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	fill := func(v *time.Duration, def time.Duration) {
		if *v <= 0 {
			*v = def
		}
	}
	fill(&o.MessageInterval, d.MessageInterval)
	fill(&o.UnreadInterval, d.UnreadInterval)
	fill(&o.InboxInterval, d.InboxInterval)
	fill(&o.ActivityCheck, d.ActivityCheck)
	fill(&o.ConversationTTL, d.ConversationTTL)
	fill(&o.UnreadTTL, d.UnreadTTL)
	fill(&o.EmptyTTL, d.EmptyTTL)
	fill(&o.InboxTTL, d.InboxTTL)
	if o.PageLimit <= 0 {
		o.PageLimit = d.PageLimit
	}
	return o
}

// fetchGuard tracks the start of the last fetch and rejects a new one that
// comes sooner than half the current polling interval. The caller holds the
// owning mutex.
type fetchGuard struct {
	last time.Time
}

// begin reports whether a fetch may start at now. On success it returns a
// token that rollback uses to disarm the guard if the fetch fails.
func (g *fetchGuard) begin(now time.Time, interval time.Duration) (time.Time, bool) {
	if !g.last.IsZero() && now.Sub(g.last) < interval/2 {
		return time.Time{}, false
	}
	prev := g.last
	g.last = now
	return prev, true
}

func (g *fetchGuard) rollback(started, prev time.Time) {
	if g.last.Equal(started) {
		g.last = prev
	}
}

// guardInterval is the current polling interval for base. While polling is
// paused the base interval applies, so explicit fetches are still throttled.
func guardInterval(c Cadence, base time.Duration) time.Duration {
	if c == nil {
		return base
	}
	if iv := c.Interval(base); iv > 0 {
		return iv
	}
	return base
}
