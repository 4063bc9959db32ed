package store

// User is a marketplace account.
type User struct {
	ID   string
	Name string
	Role string
}

// Property is a listing conversations can refer to.
type Property struct {
	ID      string
	Title   string
	OwnerID string
}

// Message is a stored message. CreatedAt is in unix milliseconds.
type Message struct {
	ID         string
	SenderID   string
	ReceiverID string
	PropertyID string
	Content    string
	IsRead     bool
	IsEdited   bool
	CreatedAt  int64
}

// ConversationSummary is the latest message of one conversation of a user
// together with that user's unread count in it.
type ConversationSummary struct {
	CounterpartID string
	PropertyID    string
	Last          Message
	UnreadCount   int
}

// ConversationFilter selects one page of a conversation.
type ConversationFilter struct {
	UserID1    string
	UserID2    string
	PropertyID string
	Page       int
	Limit      int
	Desc       bool
}
