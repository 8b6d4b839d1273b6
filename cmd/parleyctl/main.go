package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/matheus3301/parley/internal/api"
	"github.com/matheus3301/parley/internal/client"
	"github.com/matheus3301/parley/internal/config"
	"github.com/matheus3301/parley/internal/lock"
	"github.com/matheus3301/parley/internal/session"
)

func main() {
	flags := pflag.NewFlagSet("parleyctl", pflag.ContinueOnError)
	sessionFlag := flags.StringP("session", "s", "", "session name (overrides config default)")
	jsonFlag := flags.Bool("json", false, "output in JSON format")
	refreshFlag := flags.Bool("refresh", false, "chats: refetch instead of reading the cache")
	moreFlag := flags.Bool("more", false, "messages: load one older page first")
	flags.Usage = printUsage
	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		os.Exit(1)
	}

	args := flags.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	// Commands that do not talk to a daemon.
	switch args[0] {
	case "sessions":
		cmdSessionsList(*jsonFlag)
		return
	case "config":
		if len(args) < 2 || args[1] != "init" {
			fail("usage: parleyctl config init")
		}
		cmdConfigInit()
		return
	}

	sessionName, err := session.ResolveValid(*sessionFlag)
	if err != nil {
		fail("error: %v", err)
	}

	socketPath := session.SocketPath(sessionName)
	c, err := client.New(socketPath)
	if err != nil {
		fail("error: cannot connect to daemon for session %q: %v", sessionName, err)
	}
	defer func() { _ = c.Close() }()

	if args[0] == "watch" {
		cmdWatch(c, args[1:], *jsonFlag)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	out := &printer{json: *jsonFlag}
	switch args[0] {
	case "status":
		out.status(c.Session.GetStatus(ctx))
	case "chats":
		out.chats(c.Chat.ListChats(ctx, *refreshFlag))
	case "details":
		out.any(c.Chat.GetChatDetails(ctx, chatArg(args)))
	case "messages":
		out.messages(c.Chat.ListMessages(ctx, chatArg(args), *moreFlag))
	case "contacts":
		out.any(c.Chat.ListContacts(ctx))
	case "send":
		if len(args) < 3 {
			fail("usage: parleyctl send <chat-id> <text...>")
		}
		resp, err := c.Message.SendMessage(ctx, args[1], strings.Join(args[2:], " "))
		out.sent(resp, err)
	case "type":
		out.done(c.Message.Keystroke(ctx, chatArg(args)))
	case "stop-typing":
		out.done(c.Message.StopTyping(ctx, chatArg(args)))
	case "subscribe":
		out.command(c.Sync.Subscribe(ctx, chatArg(args)))
	case "unsubscribe":
		out.command(c.Sync.Unsubscribe(ctx, chatArg(args)))
	case "typing":
		out.typing(c.Sync.GetTyping(ctx, chatArg(args)))
	case "online":
		out.online(c.Sync.GetOnline(ctx))
	case "reconnect":
		out.done(c.Sync.Reconnect(ctx))
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: parleyctl [--session <name>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  status                  Show connection status")
	fmt.Fprintln(os.Stderr, "  chats [--refresh]       List chats, most recent first")
	fmt.Fprintln(os.Stderr, "  details <chat>          Show chat details")
	fmt.Fprintln(os.Stderr, "  messages <chat> [--more]  Show loaded messages")
	fmt.Fprintln(os.Stderr, "  contacts                List contacts and pending requests")
	fmt.Fprintln(os.Stderr, "  send <chat> <text...>   Send a message")
	fmt.Fprintln(os.Stderr, "  type <chat>             Report a keystroke")
	fmt.Fprintln(os.Stderr, "  stop-typing <chat>      Stop the typing indicator")
	fmt.Fprintln(os.Stderr, "  subscribe <chat>        Subscribe to a chat's live events")
	fmt.Fprintln(os.Stderr, "  unsubscribe <chat>      Unsubscribe from a chat")
	fmt.Fprintln(os.Stderr, "  typing <chat>           Show who is typing")
	fmt.Fprintln(os.Stderr, "  online                  Show online users")
	fmt.Fprintln(os.Stderr, "  reconnect               Reconnect with a fresh retry budget")
	fmt.Fprintln(os.Stderr, "  watch [namespace...]    Stream daemon events")
	fmt.Fprintln(os.Stderr, "  sessions                List known sessions")
	fmt.Fprintln(os.Stderr, "  config init             Write a default config file")
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func chatArg(args []string) string {
	if len(args) < 2 {
		fail("usage: parleyctl %s <chat-id>", args[0])
	}
	return args[1]
}

func cmdWatch(c *client.Client, namespaces []string, jsonOut bool) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := c.Session.WatchEvents(ctx, &api.WatchEventsRequest{Namespaces: namespaces}, func(evt *api.Event) error {
		if jsonOut {
			outputJSON(evt)
			return nil
		}
		ts := time.UnixMilli(evt.TimestampUnixMs).Format("15:04:05.000")
		fmt.Printf("%s %-28s %s\n", ts, evt.Kind, evt.Payload)
		return nil
	})
	if err != nil && ctx.Err() == nil {
		fail("error: %v", err)
	}
}

func cmdSessionsList(jsonOut bool) {
	type sessionInfo struct {
		Name    string `json:"name"`
		Path    string `json:"path"`
		Running bool   `json:"running"`
		PID     int    `json:"pid,omitempty"`
		Server  string `json:"server,omitempty"`
	}

	names, err := session.List()
	if err != nil {
		fail("error: %v", err)
	}
	var sessions []sessionInfo
	for _, name := range names {
		info := sessionInfo{Name: name, Path: session.Dir(name)}
		if holder, err := lock.Inspect(info.Path); err == nil {
			info.Running = true
			info.PID = holder.PID
			info.Server = holder.Server
		}
		sessions = append(sessions, info)
	}

	if jsonOut {
		outputJSON(sessions)
		return
	}
	if len(sessions) == 0 {
		fmt.Println("No sessions found.")
		return
	}
	for _, s := range sessions {
		running := "stopped"
		if s.Running {
			running = fmt.Sprintf("running, pid %d, %s", s.PID, s.Server)
		}
		fmt.Printf("%-20s %s (%s)\n", s.Name, s.Path, running)
	}
}

func cmdConfigInit() {
	path := session.ConfigPath()
	if _, err := os.Stat(path); err == nil {
		fail("error: %s already exists", path)
	}
	if err := config.Save(path, config.Default()); err != nil {
		fail("error: %v", err)
	}
	fmt.Printf("Wrote %s\n", path)
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
	}
}
