package bus

import (
	"time"

	"github.com/google/uuid"
)

// Event kinds published by the sync core. Subscribers filter by prefix, so
// "conversation." matches every conversation event.
const (
	ConversationUpdated = "conversation.updated"
	MessageSending      = "conversation.message_sending"
	MessageSent         = "conversation.message_sent"
	MessageFailed       = "conversation.message_failed"
	InboxUpdated        = "inbox.updated"
	ActivityChanged     = "activity.state_changed"
)

// Event is a notification published on the bus.
type Event struct {
	ID        string
	Kind      string
	Timestamp time.Time
	Payload   any
}

// NewEvent stamps a new event with an id and the current time.
func NewEvent(kind string, payload any) Event {
	return Event{
		ID:        uuid.NewString(),
		Kind:      kind,
		Timestamp: time.Now(),
		Payload:   payload,
	}
}
