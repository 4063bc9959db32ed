package views

import (
	"testing"
	"time"

	"github.com/matheus3301/nestsync/internal/activity"
	"github.com/matheus3301/nestsync/internal/api"
	nest "github.com/matheus3301/nestsync/internal/model"
	intsync "github.com/matheus3301/nestsync/internal/sync"
	"github.com/matheus3301/nestsync/internal/tui/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func inboxFixture() *intsync.InboxView {
	return &intsync.InboxView{
		OwnerID:          "s1",
		TotalUnreadCount: 2,
		Conversations: []nest.Conversation{
			{
				ID:           "l1_s1_p1",
				Participants: []nest.User{{ID: "s1"}, {ID: "l1", Name: "Ana", Role: "landlord"}},
				Property:     &nest.PropertyRef{ID: "p1", Title: "Studio near campus"},
				LastMessage:  &nest.Message{Content: "still available?"},
				UnreadCount:  2,
			},
			{
				ID:           "l2_s1_",
				Participants: []nest.User{{ID: "s1"}, {ID: "l2"}},
				LastMessage:  &nest.Message{Content: "thanks"},
			},
		},
	}
}

func TestInboxTableSelection(t *testing.T) {
	table := NewInboxTable(DefaultTheme())

	_, ok := table.Selected()
	assert.False(t, ok)

	table.Update(inboxFixture())
	assert.Equal(t, 3, table.GetRowCount())
	assert.Equal(t, " Ana", table.GetCell(1, 0).Text)
	assert.Equal(t, " Studio near campus", table.GetCell(1, 1).Text)
	assert.Equal(t, " 2", table.GetCell(1, 3).Text)
	assert.Equal(t, " l2", table.GetCell(2, 0).Text)

	c, ok := table.Selected()
	require.True(t, ok)
	assert.Equal(t, "l1_s1_p1", c.ID)

	table.Select(2, 0)
	table.Update(inboxFixture())
	c, ok = table.Selected()
	require.True(t, ok)
	assert.Equal(t, "l2_s1_", c.ID)
}

func TestInboxTableEmpty(t *testing.T) {
	table := NewInboxTable(DefaultTheme())
	table.Update(nil)
	assert.Equal(t, 1, table.GetRowCount())
	_, ok := table.Selected()
	assert.False(t, ok)
}

func TestThreadViewMarksLocalMessages(t *testing.T) {
	tv := NewThreadView(DefaultTheme())
	tv.Update(&intsync.View{
		Peer: nest.Peer{SenderID: "s1", ReceiverID: "l1", PropertyID: "p1"},
		Messages: []nest.Message{
			{ID: "m1", SenderID: "l1", Content: "hello there"},
			{ID: "tmp-1", SenderID: "s1", Content: "on my way", Status: nest.StatusSending},
			{ID: "tmp-2", SenderID: "s1", Content: "lost", Status: nest.StatusFailed},
		},
		UnreadCount: 1,
	})

	text := tv.GetText(true)
	assert.Contains(t, text, "hello there")
	assert.Contains(t, text, "new")
	assert.Contains(t, text, "You")
	assert.Contains(t, text, "sending...")
	assert.Contains(t, text, "failed, R to retry")
	assert.Contains(t, tv.GetTitle(), "l1 about p1 (1 unread)")
}

func TestThreadViewPlaceholders(t *testing.T) {
	tv := NewThreadView(DefaultTheme())
	tv.Update(nil)
	assert.Contains(t, tv.GetText(true), "Select a conversation")

	tv.Update(&intsync.View{Peer: nest.Peer{SenderID: "s1", ReceiverID: "l1"}})
	assert.Contains(t, tv.GetText(true), "No messages yet")

	tv.Update(&intsync.View{Peer: nest.Peer{SenderID: "s1", ReceiverID: "l1"}, Err: "server unreachable"})
	text := tv.GetText(true)
	assert.Contains(t, text, "server unreachable")
	assert.NotContains(t, text, "No messages yet")
}

func TestStatusBar(t *testing.T) {
	sb := NewStatusBar(DefaultTheme())
	sb.Update(nil, nil, nil)
	assert.Contains(t, sb.GetText(true), "connecting")

	sb.Update(&api.Status{Profile: "main", UserID: "s1", Activity: activity.Active, Timers: 3},
		&model.FlashMessage{Text: "Message sent", Level: model.FlashInfo},
		[]string{"q:quit"})
	text := sb.GetText(true)
	assert.Contains(t, text, "main s1 | ACTIVE | 3 timers")
	assert.Contains(t, text, "q:quit")
	assert.Contains(t, text, "Message sent")
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "hi 👍", sanitize("hi 👍\U0001F3FD"))
	assert.Equal(t, "👨👩", sanitize("👨\u200d👩"))
	assert.Equal(t, "plain", sanitize("plain"))
}

func TestFormatTimestamp(t *testing.T) {
	now := time.Date(2026, 10, 18, 15, 0, 0, 0, time.UTC)
	assert.Equal(t, "", formatTimestamp(time.Time{}, now))
	assert.Equal(t, "09:30", formatTimestamp(time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC), now))
	assert.Equal(t, "Oct 17", formatTimestamp(time.Date(2026, 10, 17, 9, 30, 0, 0, time.UTC), now))
}
