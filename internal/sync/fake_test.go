package sync

import (
	"context"
	"fmt"
	"slices"
	stdsync "sync"
	"testing"
	"time"

	"github.com/matheus3301/nestsync/internal/bus"
	"github.com/matheus3301/nestsync/internal/cache"
	"github.com/matheus3301/nestsync/internal/model"
	"github.com/matheus3301/nestsync/internal/scheduler"
	"go.uber.org/zap"
)

// fakeTransport is an in-memory marketplace API with injectable failures.
type fakeTransport struct {
	mu       stdsync.Mutex
	messages []model.Message
	unread   map[string]int
	inbox    *model.ConversationList
	nextID   int
	base     time.Time

	sendErr  error
	fetchErr error
	readErr  error
	sendGate chan struct{}
	// fetchGate holds conversation reads after they have taken their
	// snapshot; fetchHeld is signalled once per held read.
	fetchGate chan struct{}
	fetchHeld chan struct{}
	// sendGates holds the send of a given content.
	sendGates map[string]chan struct{}

	sends      int
	fetches    int
	reads      []string
	convReads  int
	unreadGets int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		unread: make(map[string]int),
		base:   time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC),
	}
}

func (f *fakeTransport) seed(msgs ...model.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, msgs...)
}

func (f *fakeTransport) set(fn func(f *fakeTransport)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeTransport) SendMessage(ctx context.Context, req model.SendRequest) (*model.Message, error) {
	f.mu.Lock()
	gate := f.sendGate
	if g, ok := f.sendGates[req.Content]; ok {
		gate = g
	}
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends++
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.nextID++
	msg := model.Message{
		ID:         fmt.Sprintf("srv-%d", f.nextID),
		Content:    req.Content,
		SenderID:   req.SenderID,
		ReceiverID: req.ReceiverID,
		PropertyID: req.PropertyID,
		// Server clock is ahead of the client.
		CreatedAt: time.Now().Add(time.Hour),
	}
	f.messages = append(f.messages, msg)
	return &msg, nil
}

func (f *fakeTransport) GetConversation(ctx context.Context, u1, u2 string, q model.ConversationQuery) (*model.ConversationPage, error) {
	page, gate, held, err := f.conversation(u1, u2, q)
	if gate != nil {
		if held != nil {
			held <- struct{}{}
		}
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return page, err
}

func (f *fakeTransport) conversation(u1, u2 string, q model.ConversationQuery) (*model.ConversationPage, chan struct{}, chan struct{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	if f.fetchErr != nil {
		return nil, f.fetchGate, f.fetchHeld, f.fetchErr
	}
	var out []model.Message
	// Newest first, as requested by the engine.
	for i := len(f.messages) - 1; i >= 0; i-- {
		m := f.messages[i]
		if (m.SenderID == u1 && m.ReceiverID == u2) || (m.SenderID == u2 && m.ReceiverID == u1) {
			out = append(out, m)
		}
	}
	if len(out) == 0 {
		return nil, f.fetchGate, f.fetchHeld, fmt.Errorf("get conversation: %w", model.ErrNotFound)
	}
	return &model.ConversationPage{
		Messages:   out,
		Pagination: model.Pagination{Page: q.Page, TotalPages: 1, Total: len(out)},
	}, f.fetchGate, f.fetchHeld, nil
}

func (f *fakeTransport) MarkAsRead(_ context.Context, id string) (*model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads = append(f.reads, id)
	if f.readErr != nil {
		return nil, f.readErr
	}
	for i := range f.messages {
		if f.messages[i].ID == id {
			f.messages[i].IsRead = true
			m := f.messages[i]
			return &m, nil
		}
	}
	return nil, model.ErrNotFound
}

func (f *fakeTransport) MarkConversationAsRead(_ context.Context, u1, u2 string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.convReads++
	return f.readErr
}

func (f *fakeTransport) GetUnreadCount(_ context.Context, user string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unreadGets++
	n, ok := f.unread[user]
	if !ok {
		return 0, fmt.Errorf("unread: %w", model.ErrNotFound)
	}
	return n, nil
}

func (f *fakeTransport) GetConversationsList(_ context.Context, owner string) (*model.ConversationList, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	if f.inbox == nil {
		return nil, model.ErrNotFound
	}
	l := *f.inbox
	return &l, nil
}

func (f *fakeTransport) drop(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = slices.DeleteFunc(f.messages, func(m model.Message) bool { return m.ID == id })
}

func (f *fakeTransport) counts() (sends, fetches int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sends, f.fetches
}

// fixedCadence reports a constant polling interval.
type fixedCadence time.Duration

func (c fixedCadence) Interval(time.Duration) time.Duration { return time.Duration(c) }

var testPeer = model.Peer{
	SenderID:     "seeker-1",
	ReceiverID:   "landlord-1",
	PropertyID:   "prop-1",
	ReceiverType: "landlord",
}

func testDeps(t *testing.T, tr *fakeTransport) Deps {
	t.Helper()
	logger, _ := zap.NewDevelopment()
	return Deps{
		Transport: tr,
		Scheduler: scheduler.New(scheduler.Config{
			MaxConcurrent:     4,
			ConnectionTimeout: time.Second,
			RetryDelay:        time.Millisecond,
			MaxRetries:        2,
		}, logger, nil),
		Cache:  cache.New(),
		Bus:    bus.New(),
		Logger: logger,
		// No guard unless a test sets one.
		Cadence: fixedCadence(0),
	}
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.MessageInterval = time.Nanosecond
	opts.InboxInterval = time.Nanosecond
	return opts
}

func incoming(id, content string, at time.Time) model.Message {
	return model.Message{
		ID:         id,
		Content:    content,
		SenderID:   testPeer.ReceiverID,
		ReceiverID: testPeer.SenderID,
		PropertyID: testPeer.PropertyID,
		CreatedAt:  at,
	}
}
