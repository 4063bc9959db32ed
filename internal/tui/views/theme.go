package views

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
)

// Theme holds color constants for the TUI.
type Theme struct {
	BgColor        tcell.Color
	FgColor        tcell.Color
	BorderColor    tcell.Color
	TitleColor     tcell.Color
	HeaderColor    tcell.Color
	CursorFg       tcell.Color
	CursorBg       tcell.Color
	UnreadColor    tcell.Color
	SendingColor   tcell.Color
	FailedColor    tcell.Color
	FlashInfoColor tcell.Color
	FlashWarnColor tcell.Color
	FlashErrColor  tcell.Color
}

// DefaultTheme returns a k9s-inspired dark theme.
func DefaultTheme() *Theme {
	return &Theme{
		BgColor:        tcell.ColorBlack,
		FgColor:        tcell.ColorCadetBlue,
		BorderColor:    tcell.ColorDodgerBlue,
		TitleColor:     tcell.ColorFuchsia,
		HeaderColor:    tcell.ColorWhite,
		CursorFg:       tcell.ColorBlack,
		CursorBg:       tcell.ColorAqua,
		UnreadColor:    tcell.ColorOrange,
		SendingColor:   tcell.ColorGray,
		FailedColor:    tcell.ColorOrangeRed,
		FlashInfoColor: tcell.ColorNavajoWhite,
		FlashWarnColor: tcell.ColorOrange,
		FlashErrColor:  tcell.ColorOrangeRed,
	}
}

// tag renders c as a tview color tag value.
func tag(c tcell.Color) string {
	return fmt.Sprintf("#%06x", c.Hex())
}
