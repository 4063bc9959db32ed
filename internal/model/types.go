package model

import (
	"errors"
	"time"
)

// MessageMaxLength is the maximum message content length in characters.
const MessageMaxLength = 2000

// ErrNotFound is matched by transport errors that mean "no data yet".
var ErrNotFound = errors.New("not found")

// Status is the delivery state of a message as seen by this client.
type Status string

const (
	StatusSending Status = "sending"
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
)

// Message represents a single inquiry message.
type Message struct {
	ID         string    `json:"id"`
	Content    string    `json:"content"`
	SenderID   string    `json:"senderId"`
	ReceiverID string    `json:"receiverId"`
	PropertyID string    `json:"propertyId,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	Status     Status    `json:"status,omitempty"`
	IsRead     bool      `json:"isRead"`
	IsEdited   bool      `json:"isEdited"`
}

// Local reports whether the message only exists on this client.
func (m Message) Local() bool {
	return m.Status == StatusSending || m.Status == StatusFailed
}

// User is a conversation participant.
type User struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	Role string `json:"role,omitempty"`
}

// PropertyRef is the listing a conversation is about.
type PropertyRef struct {
	ID    string `json:"id"`
	Title string `json:"title,omitempty"`
}

// Conversation is one entry of the inbox view.
type Conversation struct {
	ID           string       `json:"id"`
	Participants []User       `json:"participants"`
	LastMessage  *Message     `json:"lastMessage,omitempty"`
	UnreadCount  int          `json:"unreadCount"`
	Property     *PropertyRef `json:"property,omitempty"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}

// Counterpart returns the first participant that is not userID.
func (c Conversation) Counterpart(userID string) (User, bool) {
	for _, p := range c.Participants {
		if p.ID != userID {
			return p, true
		}
	}
	return User{}, false
}

// Peer identifies one conversation from the current user's point of view.
type Peer struct {
	SenderID     string `json:"senderId"`
	ReceiverID   string `json:"receiverId"`
	PropertyID   string `json:"propertyId"`
	ReceiverType string `json:"receiverType"`
}

// SendRequest is the payload of a message submission.
type SendRequest struct {
	SenderID     string `json:"senderId" validate:"required"`
	ReceiverID   string `json:"receiverId" validate:"required"`
	Content      string `json:"content" validate:"required,max=2000"`
	PropertyID   string `json:"propertyId" validate:"required"`
	ReceiverType string `json:"receiverType" validate:"required"`
}

// ConversationQuery holds paging and filtering for a conversation fetch.
type ConversationQuery struct {
	Page       int
	Limit      int
	SortBy     string
	SortOrder  string
	PropertyID string
}

// Pagination describes a page of a conversation.
type Pagination struct {
	Page       int `json:"page"`
	TotalPages int `json:"totalPages"`
	Total      int `json:"total"`
}

// ConversationPage is the result of a conversation fetch.
type ConversationPage struct {
	Messages   []Message  `json:"messages"`
	Pagination Pagination `json:"pagination"`
}

// EmptyConversationPage is what a conversation with no messages yet looks like.
func EmptyConversationPage() ConversationPage {
	return ConversationPage{
		Messages:   []Message{},
		Pagination: Pagination{Page: 1, TotalPages: 1, Total: 0},
	}
}

// ConversationList is the inbox payload.
type ConversationList struct {
	Conversations    []Conversation `json:"conversations"`
	TotalUnreadCount int            `json:"totalUnreadCount"`
}

// UnreadCount is the unread counter payload.
type UnreadCount struct {
	UnreadCount int `json:"unreadCount"`
}
