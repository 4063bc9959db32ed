package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/matheus3301/nestsync/internal/api"
	"github.com/matheus3301/nestsync/internal/client"
	"github.com/matheus3301/nestsync/internal/lock"
	"github.com/matheus3301/nestsync/internal/model"
	"github.com/matheus3301/nestsync/internal/profile"
	intsync "github.com/matheus3301/nestsync/internal/sync"
)

func main() {
	profileFlag := flag.String("profile", "", "profile name (overrides config default)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	flag.Parse()

	name := profile.Resolve(*profileFlag)
	if err := profile.ValidateName(name); err != nil {
		fatal(err)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	// Commands that do not need a running daemon.
	switch args[0] {
	case "init":
		cmdInit(name, args[1:])
		return
	case "profiles":
		cmdProfiles(*jsonFlag)
		return
	}

	c := client.New(profile.SocketPath(name))
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	out := printer{json: *jsonFlag}
	switch args[0] {
	case "status":
		st, err := c.Status(ctx)
		check(name, err)
		out.status(st)
	case "open":
		fs := flag.NewFlagSet("open", flag.ExitOnError)
		property := fs.String("property", "", "property id")
		role := fs.String("role", "", "receiver role (student|landlord)")
		_ = fs.Parse(args[1:])
		if fs.NArg() != 1 {
			usage("nestctl open [--property <id>] [--role <role>] <receiver-id>")
		}
		view, err := c.Open(ctx, api.OpenRequest{ReceiverID: fs.Arg(0), PropertyID: *property, ReceiverType: *role})
		check(name, err)
		out.conversation(view)
	case "show":
		view, err := c.Conversation(ctx)
		check(name, err)
		out.conversation(view)
	case "send":
		if len(args) < 2 {
			usage("nestctl send <text>")
		}
		msg, err := c.Send(ctx, strings.Join(args[1:], " "))
		checkSend(name, err)
		out.message(msg)
	case "retry":
		if len(args) != 2 {
			usage("nestctl retry <message-id>")
		}
		msg, err := c.Retry(ctx, args[1])
		checkSend(name, err)
		out.message(msg)
	case "read":
		id := ""
		if len(args) > 1 {
			id = args[1]
		}
		view, err := c.MarkRead(ctx, id)
		check(name, err)
		out.conversation(view)
	case "refresh":
		view, err := c.RefreshConversation(ctx)
		if isConflict(err) {
			inbox, err := c.RefreshInbox(ctx)
			check(name, err)
			out.inbox(inbox)
			return
		}
		check(name, err)
		out.conversation(view)
	case "inbox":
		var (
			inbox *intsync.InboxView
			err   error
		)
		switch {
		case len(args) == 3 && args[1] == "read":
			inbox, err = c.MarkInboxRead(ctx, args[2])
		case len(args) == 2 && args[1] == "refresh":
			inbox, err = c.RefreshInbox(ctx)
		case len(args) == 1:
			inbox, err = c.Inbox(ctx)
		default:
			usage("nestctl inbox [refresh | read <conversation-id>]")
		}
		check(name, err)
		out.inbox(inbox)
	case "touch":
		state, err := c.Touch(ctx)
		check(name, err)
		out.activity(state)
	case "hide", "show-tab":
		state, err := c.SetVisible(ctx, args[0] == "show-tab")
		check(name, err)
		out.activity(state)
	case "metrics":
		text, err := c.Metrics(ctx)
		check(name, err)
		fmt.Print(text)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: nestctl [--profile <name>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  init <api-url> <user-id> <role>  Create or update the profile")
	fmt.Fprintln(os.Stderr, "  profiles                         List profiles")
	fmt.Fprintln(os.Stderr, "  status                           Show daemon status")
	fmt.Fprintln(os.Stderr, "  open [--property id] <user-id>   Open a conversation")
	fmt.Fprintln(os.Stderr, "  show                             Show the open conversation")
	fmt.Fprintln(os.Stderr, "  send <text>                      Send a message")
	fmt.Fprintln(os.Stderr, "  retry <message-id>               Resend a failed message")
	fmt.Fprintln(os.Stderr, "  read [message-id]                Mark a message or the conversation read")
	fmt.Fprintln(os.Stderr, "  refresh                          Fetch now")
	fmt.Fprintln(os.Stderr, "  inbox [refresh | read <id>]      Show or update the inbox")
	fmt.Fprintln(os.Stderr, "  touch                            Record user activity")
	fmt.Fprintln(os.Stderr, "  hide | show-tab                  Change visibility")
	fmt.Fprintln(os.Stderr, "  metrics                          Dump Prometheus metrics")
}

func cmdInit(name string, args []string) {
	if len(args) != 3 {
		usage("nestctl init <api-url> <user-id> <student|landlord>")
	}
	p := &profile.Profile{Name: name, APIURL: args[0], UserID: args[1], Role: args[2], Token: os.Getenv("NESTSYNC_TOKEN")}
	if err := profile.Save(p); err != nil {
		fatal(err)
	}
	fmt.Printf("Profile %q saved to %s\n", name, profile.FilePath(name))
}

func cmdProfiles(jsonOut bool) {
	names, err := profile.List()
	if err != nil {
		fatal(err)
	}
	type entry struct {
		Name    string `json:"name"`
		Running bool   `json:"running"`
		PID     int    `json:"pid,omitempty"`
	}
	entries := make([]entry, 0, len(names))
	for _, n := range names {
		e := entry{Name: n}
		if _, err := client.New(profile.SocketPath(n)).Status(context.Background()); err == nil {
			e.Running = true
			if info, err := lock.Read(profile.Dir(n)); err == nil {
				e.PID = info.PID
			}
		}
		entries = append(entries, e)
	}
	if jsonOut {
		outputJSON(entries)
		return
	}
	if len(entries) == 0 {
		fmt.Println("No profiles found. Create one with: nestctl init <api-url> <user-id> <role>")
		return
	}
	for _, e := range entries {
		state := "stopped"
		if e.Running {
			state = fmt.Sprintf("running (PID %d)", e.PID)
		}
		fmt.Printf("%-20s %s\n", e.Name, state)
	}
}

func isConflict(err error) bool {
	var apiErr *client.APIError
	return errors.As(err, &apiErr) && apiErr.Code == 409
}

func check(name string, err error) {
	if err == nil {
		return
	}
	if errors.Is(err, client.ErrDaemonNotRunning) {
		fatal(fmt.Errorf("no daemon for profile %q; start it with: nestd --profile %s", name, name))
	}
	fatal(err)
}

func checkSend(name string, err error) {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) && apiErr.Failed != nil {
		fatal(fmt.Errorf("%s; retry with: nestctl retry %s", apiErr.Message, apiErr.Failed.ID))
	}
	check(name, err)
}

func usage(line string) {
	fmt.Fprintln(os.Stderr, "usage: "+line)
	os.Exit(1)
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

type printer struct {
	json bool
}

func (p printer) status(st *api.Status) {
	if p.json {
		outputJSON(st)
		return
	}
	fmt.Printf("Profile:      %s (%s)\n", st.Profile, st.UserID)
	fmt.Printf("PID:          %d, up %s\n", st.PID, time.Since(st.Started).Round(time.Second))
	fmt.Printf("Activity:     %s (last %s ago)\n", st.Activity, time.Since(st.LastActivity).Round(time.Second))
	fmt.Printf("Timers:       %d\n", st.Timers)
	fmt.Printf("Scheduler:    %d active, %d queued\n", st.Scheduler.Active, st.Scheduler.Queued)
	fmt.Printf("Cache:        %d entries\n", st.CacheEntries)
	if st.Conversation != "" {
		fmt.Printf("Conversation: %s\n", st.Conversation)
	}
}

func (p printer) conversation(v *intsync.View) {
	if p.json {
		outputJSON(v)
		return
	}
	fmt.Printf("%s <-> %s", v.Peer.SenderID, v.Peer.ReceiverID)
	if v.Peer.PropertyID != "" {
		fmt.Printf(" about %s", v.Peer.PropertyID)
	}
	fmt.Printf(" (%d unread)\n", v.UnreadCount)
	if v.Err != "" {
		fmt.Printf("error: %s\n", v.Err)
	}
	if len(v.Messages) == 0 {
		fmt.Println("No messages yet.")
		return
	}
	for _, m := range v.Messages {
		fmt.Println(formatMessage(m, v.Peer.SenderID))
	}
}

func (p printer) message(m *model.Message) {
	if p.json {
		outputJSON(m)
		return
	}
	fmt.Println(formatMessage(*m, m.SenderID))
}

func (p printer) inbox(v *intsync.InboxView) {
	if p.json {
		outputJSON(v)
		return
	}
	if v.Err != "" {
		fmt.Printf("error: %s\n", v.Err)
	}
	if len(v.Conversations) == 0 {
		fmt.Println("No conversations.")
		return
	}
	for _, c := range v.Conversations {
		other, _ := c.Counterpart(v.OwnerID)
		who := other.ID
		if other.Name != "" {
			who = other.Name
		}
		about := ""
		if c.Property != nil {
			about = c.Property.Title
			if about == "" {
				about = c.Property.ID
			}
		}
		last := ""
		if c.LastMessage != nil {
			last = c.LastMessage.Content
		}
		fmt.Printf("%-40s %-16s %-28s %2d  %s\n", c.ID, who, about, c.UnreadCount, last)
	}
	fmt.Printf("Total unread: %d\n", v.TotalUnreadCount)
}

func (p printer) activity(state string) {
	if p.json {
		outputJSON(map[string]string{"state": state})
		return
	}
	fmt.Println(state)
}

func formatMessage(m model.Message, me string) string {
	dir := "<"
	if m.SenderID == me {
		dir = ">"
	}
	mark := ""
	switch {
	case m.Status == model.StatusSending:
		mark = " [sending]"
	case m.Status == model.StatusFailed:
		mark = " [failed]"
	case m.SenderID != me && !m.IsRead:
		mark = " [new]"
	}
	return fmt.Sprintf("%s %s %s %s%s", m.CreatedAt.Local().Format("Jan 02 15:04"), dir, m.ID, m.Content, mark)
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
	}
}
