package views

import (
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"
	nest "github.com/matheus3301/nestsync/internal/model"
	intsync "github.com/matheus3301/nestsync/internal/sync"
	"github.com/rivo/tview"
)

// InboxTable lists the user's conversations, most recent first as the
// daemon returns them.
type InboxTable struct {
	*tview.Table
	theme         *Theme
	conversations []nest.Conversation
}

// NewInboxTable creates the inbox table.
func NewInboxTable(theme *Theme) *InboxTable {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false).
		SetFixed(1, 0)
	table.SetBorder(true)
	table.SetBorderColor(theme.BorderColor)
	table.SetBackgroundColor(theme.BgColor)
	table.SetSelectedStyle(tcell.StyleDefault.
		Foreground(theme.CursorFg).
		Background(theme.CursorBg))
	table.SetTitle(" Inbox ")
	table.SetTitleColor(theme.TitleColor)

	return &InboxTable{Table: table, theme: theme}
}

// Update renders view, keeping the selection on the same row.
func (t *InboxTable) Update(view *intsync.InboxView) {
	row, _ := t.GetSelection()
	t.Clear()
	t.conversations = nil

	for col, h := range []string{"WITH", "PROPERTY", "LAST MESSAGE", "UNREAD", "WHEN"} {
		t.SetCell(0, col, tview.NewTableCell(" "+h).
			SetSelectable(false).
			SetTextColor(t.theme.HeaderColor).
			SetAttributes(tcell.AttrBold))
	}
	if view == nil {
		return
	}

	t.conversations = view.Conversations
	t.SetTitle(fmt.Sprintf(" Inbox (%d unread) ", view.TotalUnreadCount))
	for i, c := range view.Conversations {
		r := i + 1
		color := t.theme.FgColor
		if c.UnreadCount > 0 {
			color = t.theme.UnreadColor
		}
		unread := ""
		if c.UnreadCount > 0 {
			unread = fmt.Sprintf("%d", c.UnreadCount)
		}
		t.SetCell(r, 0, tview.NewTableCell(" "+counterpartName(c, view.OwnerID)).SetTextColor(color).SetMaxWidth(24))
		t.SetCell(r, 1, tview.NewTableCell(" "+propertyName(c)).SetTextColor(color).SetMaxWidth(30))
		t.SetCell(r, 2, tview.NewTableCell(" "+lastMessage(c)).SetTextColor(color).SetExpansion(1))
		t.SetCell(r, 3, tview.NewTableCell(" "+unread).SetTextColor(color).SetAlign(tview.AlignRight))
		t.SetCell(r, 4, tview.NewTableCell(" "+formatTimestamp(c.UpdatedAt, time.Now())).SetTextColor(color))
	}

	if len(view.Conversations) > 0 {
		t.Select(min(max(row, 1), len(view.Conversations)), 0)
	}
}

// Selected returns the conversation under the cursor.
func (t *InboxTable) Selected() (nest.Conversation, bool) {
	row, _ := t.GetSelection()
	i := row - 1
	if i < 0 || i >= len(t.conversations) {
		return nest.Conversation{}, false
	}
	return t.conversations[i], true
}

func counterpartName(c nest.Conversation, owner string) string {
	other, ok := c.Counterpart(owner)
	if !ok {
		return "?"
	}
	if other.Name != "" {
		return sanitize(other.Name)
	}
	return other.ID
}

func propertyName(c nest.Conversation) string {
	if c.Property == nil {
		return ""
	}
	if c.Property.Title != "" {
		return sanitize(c.Property.Title)
	}
	return c.Property.ID
}

func lastMessage(c nest.Conversation) string {
	if c.LastMessage == nil {
		return ""
	}
	return sanitize(c.LastMessage.Content)
}

// formatTimestamp shows the time for today and the date otherwise.
func formatTimestamp(t, now time.Time) string {
	if t.IsZero() {
		return ""
	}
	t = t.In(now.Location())
	if t.Year() == now.Year() && t.YearDay() == now.YearDay() {
		return t.Format("15:04")
	}
	return t.Format("Jan 02")
}
