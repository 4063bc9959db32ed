package keys

import (
	"github.com/gdamore/tcell/v2"
)

// Global is the scope whose bindings apply on every page.
const Global = ""

// Action represents a keybinding action.
type Action struct {
	Name        string
	Key         tcell.Key
	Rune        rune
	Description string
	Handler     func()
	Hidden      bool
}

// Matches returns true if key (and r, for printable keys) trigger this action.
func (a *Action) Matches(key tcell.Key, r rune) bool {
	if a.Key != tcell.KeyRune {
		return key == a.Key
	}
	return key == tcell.KeyRune && r == a.Rune
}

// Registry holds keybindings per page, in registration order.
type Registry struct {
	scopes map[string][]*Action
}

// NewRegistry creates a new keybinding registry.
func NewRegistry() *Registry {
	return &Registry{scopes: make(map[string][]*Action)}
}

// Add registers a binding for page, or for every page when page is Global.
// A binding with the same name in the same scope is replaced.
func (r *Registry) Add(page string, a *Action) {
	actions := r.scopes[page]
	for i, existing := range actions {
		if existing.Name == a.Name {
			actions[i] = a
			return
		}
	}
	r.scopes[page] = append(actions, a)
}

// Hints returns the descriptions shown in the status bar for page: page
// bindings first, then global ones.
func (r *Registry) Hints(page string) []string {
	var hints []string
	for _, scope := range []string{page, Global} {
		for _, a := range r.scopes[scope] {
			if !a.Hidden {
				hints = append(hints, a.Description)
			}
		}
		if page == Global {
			break
		}
	}
	return hints
}

// HandleEvent dispatches a key event to the first matching action, page
// bindings before global ones. Returns true if a handler matched.
func (r *Registry) HandleEvent(page string, ev *tcell.EventKey) bool {
	return r.Handle(page, ev.Key(), ev.Rune())
}

// Handle is HandleEvent for an already decoded key.
func (r *Registry) Handle(page string, key tcell.Key, ch rune) bool {
	for _, scope := range []string{page, Global} {
		for _, a := range r.scopes[scope] {
			if a.Matches(key, ch) {
				a.Handler()
				return true
			}
		}
	}
	return false
}
