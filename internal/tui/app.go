package tui

import (
	"context"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/nestsync/internal/tui/keys"
	"github.com/matheus3301/nestsync/internal/tui/model"
	"github.com/matheus3301/nestsync/internal/tui/views"
	"github.com/rivo/tview"
)

const (
	pageInbox  = "inbox"
	pageThread = "thread"

	refreshInterval = 2 * time.Second
	requestTimeout  = 10 * time.Second
	// sendTimeout covers the daemon's send retries.
	sendTimeout = time.Minute
)

// App is the main TUI application shell.
type App struct {
	app       *tview.Application
	pages     *tview.Pages
	vm        *model.ViewModel
	registry  *keys.Registry
	statusBar *views.StatusBar
	inbox     *views.InboxTable
	thread    *views.ThreadView
	composer  *views.Composer
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewApp creates the TUI application for a running daemon.
func NewApp(d model.Daemon) *App {
	ctx, cancel := context.WithCancel(context.Background())
	theme := views.DefaultTheme()

	a := &App{
		app:       tview.NewApplication(),
		pages:     tview.NewPages(),
		vm:        model.NewViewModel(d),
		registry:  keys.NewRegistry(),
		statusBar: views.NewStatusBar(theme),
		inbox:     views.NewInboxTable(theme),
		thread:    views.NewThreadView(theme),
		composer:  views.NewComposer(theme),
		ctx:       ctx,
		cancel:    cancel,
	}

	a.setupBindings()
	a.setupCallbacks()
	a.setupLayout()

	return a
}

func (a *App) setupBindings() {
	a.registry.Add(keys.Global, &keys.Action{
		Name: "quit", Key: tcell.KeyRune, Rune: 'q',
		Description: "q:quit",
		Handler:     a.app.Stop,
	})
	a.registry.Add(keys.Global, &keys.Action{
		Name: "refresh", Key: tcell.KeyRune, Rune: 'r',
		Description: "r:refresh",
		Handler:     func() { go a.refresh() },
	})
	a.registry.Add(pageThread, &keys.Action{
		Name: "compose", Key: tcell.KeyRune, Rune: 'i',
		Description: "i:write",
		Handler:     func() { a.app.SetFocus(a.composer.InputField) },
	})
	a.registry.Add(pageThread, &keys.Action{
		Name: "retry", Key: tcell.KeyRune, Rune: 'R',
		Description: "R:retry",
		Handler: func() {
			a.asyncWithin(sendTimeout, func(ctx context.Context) { _ = a.vm.RetryFailed(ctx) })
		},
	})
	a.registry.Add(pageThread, &keys.Action{
		Name: "read", Key: tcell.KeyRune, Rune: 'm',
		Description: "m:mark read",
		Handler: func() {
			a.async(func(ctx context.Context) { _ = a.vm.MarkAllRead(ctx) })
		},
	})
	a.registry.Add(pageThread, &keys.Action{
		Name: "back", Key: tcell.KeyEscape,
		Description: "esc:inbox",
		Handler:     a.showInbox,
	})
}

func (a *App) setupCallbacks() {
	a.inbox.SetSelectedFunc(func(row, col int) {
		c, ok := a.inbox.Selected()
		if !ok {
			return
		}
		a.async(func(ctx context.Context) {
			if err := a.vm.Open(ctx, c); err != nil {
				a.vm.Flash.Err("Open failed: " + err.Error())
				return
			}
			a.app.QueueUpdate(func() {
				a.pages.SwitchToPage(pageThread)
				a.app.SetFocus(a.thread)
			})
		})
	})

	a.composer.SetOnSend(func(text string) {
		a.asyncWithin(sendTimeout, func(ctx context.Context) { _ = a.vm.Send(ctx, text) })
	})

	a.vm.SetOnChange(func() { a.app.QueueUpdateDraw(a.render) })
}

func (a *App) setupLayout() {
	threadFlex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.thread, 0, 1, true).
		AddItem(a.composer, 1, 0, false)

	a.pages.AddPage(pageInbox, a.inbox, true, true)
	a.pages.AddPage(pageThread, threadFlex, true, false)

	root := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.pages, 0, 1, true).
		AddItem(a.statusBar, 1, 0, false)

	a.app.SetRoot(root, true)

	a.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		go a.vm.Touch(a.ctx)

		if a.app.GetFocus() == a.composer.InputField {
			if event.Key() == tcell.KeyEscape {
				a.app.SetFocus(a.thread)
				return nil
			}
			return event
		}

		page, _ := a.pages.GetFrontPage()
		if a.registry.HandleEvent(page, event) {
			return nil
		}
		return event
	})
}

func (a *App) showInbox() {
	a.pages.SwitchToPage(pageInbox)
	a.app.SetFocus(a.inbox)
}

// async runs fn off the UI goroutine and redraws when it returns.
func (a *App) async(fn func(ctx context.Context)) {
	a.asyncWithin(requestTimeout, fn)
}

func (a *App) asyncWithin(timeout time.Duration, fn func(ctx context.Context)) {
	go func() {
		ctx, cancel := context.WithTimeout(a.ctx, timeout)
		defer cancel()
		fn(ctx)
		a.app.QueueUpdateDraw(a.render)
	}()
}

func (a *App) refresh() {
	ctx, cancel := context.WithTimeout(a.ctx, requestTimeout)
	defer cancel()
	if err := a.vm.Refresh(ctx); err != nil {
		a.vm.Flash.Err("Daemon unreachable: " + err.Error())
	}
	a.app.QueueUpdateDraw(a.render)
}

// render copies view model state into the widgets. It must run on the UI
// goroutine.
func (a *App) render() {
	page, _ := a.pages.GetFrontPage()
	a.inbox.Update(a.vm.Inbox())
	a.thread.Update(a.vm.Conversation())
	a.statusBar.Update(a.vm.Status(), a.vm.Flash.Get(), a.registry.Hints(page))
}

func (a *App) startRefreshLoop() {
	ticker := time.NewTicker(refreshInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				a.refresh()
			case <-a.ctx.Done():
				return
			}
		}
	}()
}

// Run starts the TUI. The daemon treats the session as a visible tab until
// Run returns.
func (a *App) Run() error {
	if err := a.vm.SetVisible(a.ctx, true); err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		_ = a.vm.SetVisible(ctx, false)
	}()
	defer a.cancel()

	go func() {
		a.refresh()
		a.startRefreshLoop()
	}()

	return a.app.Run()
}

// Stop gracefully shuts down the TUI.
func (a *App) Stop() {
	a.cancel()
	a.app.Stop()
}
