package model

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/matheus3301/nestsync/internal/api"
	"github.com/matheus3301/nestsync/internal/client"
	nest "github.com/matheus3301/nestsync/internal/model"
	intsync "github.com/matheus3301/nestsync/internal/sync"
)

// Daemon is the part of the control client the UI uses.
type Daemon interface {
	Status(ctx context.Context) (*api.Status, error)
	Inbox(ctx context.Context) (*intsync.InboxView, error)
	MarkInboxRead(ctx context.Context, conversationID string) (*intsync.InboxView, error)
	Open(ctx context.Context, req api.OpenRequest) (*intsync.View, error)
	Conversation(ctx context.Context) (*intsync.View, error)
	Send(ctx context.Context, content string) (*nest.Message, error)
	Retry(ctx context.Context, id string) (*nest.Message, error)
	MarkRead(ctx context.Context, id string) (*intsync.View, error)
	Touch(ctx context.Context) (string, error)
	SetVisible(ctx context.Context, visible bool) (string, error)
}

// TouchInterval limits how often key presses are reported as activity.
const TouchInterval = 2 * time.Second

// ViewModel mirrors daemon state for the views. The daemon owns the sync
// logic; the UI only reads its snapshots and forwards user intent.
type ViewModel struct {
	daemon Daemon
	now    func() time.Time

	mu        sync.RWMutex
	status    *api.Status
	inbox     *intsync.InboxView
	conv      *intsync.View
	lastTouch time.Time
	onChange  func()

	Flash Flash
}

// pendingID marks the placeholder shown while a send is in flight.
const pendingID = "pending"

// NewViewModel creates a view model backed by d.
func NewViewModel(d Daemon) *ViewModel {
	return &ViewModel{daemon: d, now: time.Now}
}

// Refresh reloads status, inbox and the open conversation.
func (vm *ViewModel) Refresh(ctx context.Context) error {
	st, err := vm.daemon.Status(ctx)
	if err != nil {
		return err
	}
	inbox, err := vm.daemon.Inbox(ctx)
	if err != nil {
		return err
	}
	var conv *intsync.View
	if st.Conversation != "" {
		if conv, err = vm.daemon.Conversation(ctx); err != nil && !isStatus(err, http.StatusConflict) {
			return err
		}
	}

	vm.mu.Lock()
	vm.status, vm.inbox, vm.conv = st, inbox, conv
	vm.mu.Unlock()
	return nil
}

// Open makes c the daemon's active conversation and marks it read.
func (vm *ViewModel) Open(ctx context.Context, c nest.Conversation) error {
	owner := vm.owner()
	other, ok := c.Counterpart(owner)
	if !ok {
		return fmt.Errorf("conversation %s has no counterpart", c.ID)
	}
	req := api.OpenRequest{ReceiverID: other.ID, ReceiverType: other.Role}
	if c.Property != nil {
		req.PropertyID = c.Property.ID
	}

	view, err := vm.daemon.Open(ctx, req)
	if err != nil {
		return err
	}
	vm.setConversation(view)

	if c.UnreadCount > 0 {
		if inbox, err := vm.daemon.MarkInboxRead(ctx, c.ID); err == nil {
			vm.mu.Lock()
			vm.inbox = inbox
			vm.mu.Unlock()
		}
		if view, err := vm.daemon.MarkRead(ctx, ""); err == nil {
			vm.setConversation(view)
		}
	}
	return nil
}

// SetOnChange registers fn to run when state changes outside Refresh.
func (vm *ViewModel) SetOnChange(fn func()) {
	vm.mu.Lock()
	vm.onChange = fn
	vm.mu.Unlock()
}

// Send submits text. It shows the message as sending right away; a failed
// send stays in the thread and can be retried.
func (vm *ViewModel) Send(ctx context.Context, text string) error {
	vm.showPending(text)
	_, err := vm.daemon.Send(ctx, text)
	vm.reloadConversation(ctx)
	var apiErr *client.APIError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &apiErr) && apiErr.Failed != nil:
		vm.Flash.Err("Send failed: " + apiErr.Message + " (R to retry)")
	case errors.As(err, &apiErr) && apiErr.Code == http.StatusUnprocessableEntity:
		vm.Flash.Warn(apiErr.Message)
	default:
		vm.Flash.Err("Send failed: " + err.Error())
	}
	return err
}

// RetryFailed resends the most recent failed message, if any.
func (vm *ViewModel) RetryFailed(ctx context.Context) error {
	conv := vm.Conversation()
	if conv == nil {
		return nil
	}
	i := -1
	for j, m := range slices.Backward(conv.Messages) {
		if m.Status == nest.StatusFailed {
			i = j
			break
		}
	}
	if i < 0 {
		vm.Flash.Info("Nothing to retry")
		return nil
	}
	_, err := vm.daemon.Retry(ctx, conv.Messages[i].ID)
	vm.reloadConversation(ctx)
	if err != nil {
		vm.Flash.Err("Retry failed: " + err.Error())
		return err
	}
	vm.Flash.Info("Message sent")
	return nil
}

// MarkAllRead marks the open conversation read.
func (vm *ViewModel) MarkAllRead(ctx context.Context) error {
	view, err := vm.daemon.MarkRead(ctx, "")
	if err != nil {
		vm.Flash.Err("Mark read failed: " + err.Error())
		return err
	}
	vm.setConversation(view)
	return nil
}

// Touch reports user activity, at most once per TouchInterval. It returns
// whether the daemon was called.
func (vm *ViewModel) Touch(ctx context.Context) bool {
	now := vm.now()
	vm.mu.Lock()
	if !vm.lastTouch.IsZero() && now.Sub(vm.lastTouch) < TouchInterval {
		vm.mu.Unlock()
		return false
	}
	vm.lastTouch = now
	vm.mu.Unlock()

	_, err := vm.daemon.Touch(ctx)
	return err == nil
}

// SetVisible tells the daemon whether anyone is looking.
func (vm *ViewModel) SetVisible(ctx context.Context, visible bool) error {
	_, err := vm.daemon.SetVisible(ctx, visible)
	return err
}

func (vm *ViewModel) Status() *api.Status {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.status
}

func (vm *ViewModel) Inbox() *intsync.InboxView {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.inbox
}

func (vm *ViewModel) Conversation() *intsync.View {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.conv
}

func (vm *ViewModel) owner() string {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	if vm.status != nil {
		return vm.status.UserID
	}
	if vm.inbox != nil {
		return vm.inbox.OwnerID
	}
	return ""
}

func (vm *ViewModel) setConversation(v *intsync.View) {
	vm.mu.Lock()
	vm.conv = v
	vm.mu.Unlock()
}

func (vm *ViewModel) showPending(text string) {
	vm.mu.Lock()
	if vm.conv == nil {
		vm.mu.Unlock()
		return
	}
	conv := *vm.conv
	conv.Messages = append(slices.Clone(conv.Messages), nest.Message{
		ID:         pendingID,
		Content:    text,
		SenderID:   conv.Peer.SenderID,
		ReceiverID: conv.Peer.ReceiverID,
		PropertyID: conv.Peer.PropertyID,
		CreatedAt:  vm.now(),
		Status:     nest.StatusSending,
	})
	vm.conv = &conv
	notify := vm.onChange
	vm.mu.Unlock()

	if notify != nil {
		notify()
	}
}

func (vm *ViewModel) reloadConversation(ctx context.Context) {
	if view, err := vm.daemon.Conversation(ctx); err == nil {
		vm.setConversation(view)
	}
}

func isStatus(err error, code int) bool {
	var apiErr *client.APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}
