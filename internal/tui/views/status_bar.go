package views

import (
	"fmt"
	"strings"

	"github.com/matheus3301/nestsync/internal/api"
	"github.com/matheus3301/nestsync/internal/tui/model"
	"github.com/rivo/tview"
)

// StatusBar shows daemon state, key hints and flash messages.
type StatusBar struct {
	*tview.TextView
	theme *Theme
}

// NewStatusBar creates a new status bar.
func NewStatusBar(theme *Theme) *StatusBar {
	tv := tview.NewTextView().SetDynamicColors(true)
	tv.SetBackgroundColor(tview.Styles.MoreContrastBackgroundColor)
	return &StatusBar{TextView: tv, theme: theme}
}

// Update renders the bar.
func (sb *StatusBar) Update(st *api.Status, flash *model.FlashMessage, hints []string) {
	sb.Clear()

	var b strings.Builder
	if st == nil {
		b.WriteString(" [::b]connecting...[-:-:-]")
	} else {
		fmt.Fprintf(&b, " [::b]%s[-:-:-] %s | %s | %d timers | %d queued",
			tview.Escape(st.Profile), tview.Escape(st.UserID), st.Activity, st.Timers, st.Scheduler.Queued)
	}
	if len(hints) > 0 {
		fmt.Fprintf(&b, " | [::d]%s[-:-:-]", strings.Join(hints, " "))
	}
	if flash != nil {
		color := sb.theme.FlashInfoColor
		switch flash.Level {
		case model.FlashWarn:
			color = sb.theme.FlashWarnColor
		case model.FlashErr:
			color = sb.theme.FlashErrColor
		}
		fmt.Fprintf(&b, " | [%s]%s[-]", tag(color), tview.Escape(flash.Text))
	}
	_, _ = fmt.Fprint(sb, b.String())
}
