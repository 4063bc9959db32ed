package keys

import (
	"testing"

	"github.com/gdamore/tcell/v2"
	"github.com/stretchr/testify/assert"
)

func TestPageBindingsWin(t *testing.T) {
	r := NewRegistry()
	var got []string
	r.Add(Global, &Action{Name: "refresh", Key: tcell.KeyRune, Rune: 'r', Description: "r:refresh",
		Handler: func() { got = append(got, "global") }})
	r.Add("thread", &Action{Name: "retry", Key: tcell.KeyRune, Rune: 'r', Description: "r:retry",
		Handler: func() { got = append(got, "thread") }})

	assert.True(t, r.Handle("thread", tcell.KeyRune, 'r'))
	assert.True(t, r.Handle("inbox", tcell.KeyRune, 'r'))
	assert.False(t, r.Handle("inbox", tcell.KeyRune, 'x'))
	assert.Equal(t, []string{"thread", "global"}, got)
}

func TestSpecialKeys(t *testing.T) {
	r := NewRegistry()
	hit := false
	r.Add("thread", &Action{Name: "back", Key: tcell.KeyEscape, Handler: func() { hit = true }})

	assert.False(t, r.Handle("thread", tcell.KeyRune, 'q'))
	assert.True(t, r.Handle("thread", tcell.KeyEscape, 0))
	assert.True(t, hit)
}

func TestHintsOrderAndReplace(t *testing.T) {
	r := NewRegistry()
	r.Add(Global, &Action{Name: "quit", Key: tcell.KeyRune, Rune: 'q', Description: "q:quit"})
	r.Add("inbox", &Action{Name: "open", Key: tcell.KeyEnter, Description: "enter:open"})
	r.Add("inbox", &Action{Name: "read", Key: tcell.KeyRune, Rune: 'm', Description: "m:read"})
	r.Add("inbox", &Action{Name: "secret", Key: tcell.KeyRune, Rune: 'z', Hidden: true})
	r.Add("inbox", &Action{Name: "open", Key: tcell.KeyEnter, Description: "enter:view"})

	assert.Equal(t, []string{"enter:view", "m:read", "q:quit"}, r.Hints("inbox"))
	assert.Equal(t, []string{"q:quit"}, r.Hints(Global))
}
