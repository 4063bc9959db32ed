package views

import (
	"fmt"
	"strings"
	"time"

	nest "github.com/matheus3301/nestsync/internal/model"
	intsync "github.com/matheus3301/nestsync/internal/sync"
	"github.com/rivo/tview"
)

// ThreadView displays the open conversation, oldest message first.
type ThreadView struct {
	*tview.TextView
	theme *Theme
}

// NewThreadView creates the conversation view.
func NewThreadView(theme *Theme) *ThreadView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWordWrap(true)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTitleColor(theme.TitleColor)
	tv.SetTitle(" Conversation ")

	return &ThreadView{TextView: tv, theme: theme}
}

// Update renders view scrolled to the newest message.
func (tv *ThreadView) Update(view *intsync.View) {
	tv.Clear()
	if view == nil {
		tv.SetTitle(" Conversation ")
		_, _ = fmt.Fprint(tv, "Select a conversation in the inbox.")
		return
	}

	title := " " + view.Peer.ReceiverID
	if view.Peer.PropertyID != "" {
		title += " about " + view.Peer.PropertyID
	}
	if view.UnreadCount > 0 {
		title += fmt.Sprintf(" (%d unread)", view.UnreadCount)
	}
	tv.SetTitle(title + " ")

	var b strings.Builder
	if view.Err != "" {
		fmt.Fprintf(&b, "[%s]%s[-]\n\n", tag(tv.theme.FailedColor), tview.Escape(view.Err))
	}
	if len(view.Messages) == 0 && view.Err == "" {
		b.WriteString("No messages yet. Press i to write one.\n")
	}
	now := time.Now()
	for _, m := range view.Messages {
		tv.writeMessage(&b, m, view.Peer.SenderID, now)
	}
	_, _ = fmt.Fprint(tv, b.String())
	tv.ScrollToEnd()
}

func (tv *ThreadView) writeMessage(b *strings.Builder, m nest.Message, me string, now time.Time) {
	sender := m.SenderID
	if sender == me {
		sender = "You"
	}
	var mark string
	switch m.Status {
	case nest.StatusSending:
		mark = fmt.Sprintf(" [%s]sending...[-]", tag(tv.theme.SendingColor))
	case nest.StatusFailed:
		mark = fmt.Sprintf(" [%s]failed, R to retry[-]", tag(tv.theme.FailedColor))
	default:
		if m.SenderID != me && !m.IsRead {
			mark = fmt.Sprintf(" [%s]new[-]", tag(tv.theme.UnreadColor))
		}
	}
	fmt.Fprintf(b, "[::b]%s[-:-:-] [::d]%s[-:-:-]%s\n%s\n\n",
		tview.Escape(sender), formatTimestamp(m.CreatedAt, now), mark, tview.Escape(sanitize(m.Content)))
}

// sanitize drops code points that tcell renders with the wrong width: skin
// tone modifiers, zero width joiners and variation selectors.
func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 0x1F3FB && r <= 0x1F3FF,
			r == 0x200D,
			r >= 0xFE00 && r <= 0xFE0F,
			r >= 0xE0100 && r <= 0xE01EF:
			return -1
		}
		return r
	}, s)
}
