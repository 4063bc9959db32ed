package views

import (
	"strings"

	"github.com/gdamore/tcell/v2"
	nest "github.com/matheus3301/nestsync/internal/model"
	"github.com/rivo/tview"
)

// Composer is the text input for sending messages.
type Composer struct {
	*tview.InputField
	onSend func(text string)
}

// NewComposer creates a message composer capped at the message length limit.
func NewComposer(theme *Theme) *Composer {
	input := tview.NewInputField().
		SetLabel(" > ").
		SetFieldWidth(0).
		SetPlaceholder("write a message, enter to send").
		SetAcceptanceFunc(tview.InputFieldMaxLength(nest.MessageMaxLength))
	input.SetFieldBackgroundColor(theme.BgColor)

	c := &Composer{InputField: input}
	input.SetDoneFunc(func(key tcell.Key) {
		if key != tcell.KeyEnter || c.onSend == nil {
			return
		}
		if text := strings.TrimSpace(c.GetText()); text != "" {
			c.onSend(text)
			c.SetText("")
		}
	})
	return c
}

// SetOnSend sets the callback when a message is submitted.
func (c *Composer) SetOnSend(fn func(text string)) {
	c.onSend = fn
}
