package api

import (
	"time"

	"github.com/matheus3301/nestsync/internal/activity"
	"github.com/matheus3301/nestsync/internal/model"
	"github.com/matheus3301/nestsync/internal/scheduler"
)

// Status is the body of GET /status.
type Status struct {
	Profile      string          `json:"profile"`
	UserID       string          `json:"userId"`
	PID          int             `json:"pid"`
	Started      time.Time       `json:"started"`
	Activity     activity.State  `json:"activity"`
	LastActivity time.Time       `json:"lastActivity"`
	Timers       int             `json:"timers"`
	Scheduler    scheduler.Stats `json:"scheduler"`
	CacheEntries int             `json:"cacheEntries"`
	Conversation string          `json:"conversation,omitempty"`
}

// OpenRequest is the body of POST /conversation/open. SenderID defaults to
// the profile's user.
type OpenRequest struct {
	SenderID     string `json:"senderId"`
	ReceiverID   string `json:"receiverId" validate:"required"`
	PropertyID   string `json:"propertyId"`
	ReceiverType string `json:"receiverType" validate:"omitempty,oneof=student landlord"`
}

// Peer converts r into the conversation identity.
func (r OpenRequest) Peer() model.Peer {
	return model.Peer{
		SenderID:     r.SenderID,
		ReceiverID:   r.ReceiverID,
		PropertyID:   r.PropertyID,
		ReceiverType: r.ReceiverType,
	}
}

// SendRequest is the body of POST /conversation/messages.
type SendRequest struct {
	Content string `json:"content"`
}

// VisibilityRequest is the body of POST /activity/visibility.
type VisibilityRequest struct {
	Visible bool `json:"visible"`
}

// ActivityResponse reports the monitor state after an activity call.
type ActivityResponse struct {
	State activity.State `json:"state"`
}

// Error is the body of every non-2xx response. Message carries the failed
// entry when a send or retry did not go through.
type Error struct {
	Error   string         `json:"error"`
	Message *model.Message `json:"message,omitempty"`
}
