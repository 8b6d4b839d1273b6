package main

import (
	"fmt"
	"strings"

	"github.com/matheus3301/parley/internal/api"
)

// printer renders responses, exiting on error.
type printer struct {
	json bool
}

func (p *printer) check(err error) {
	if err != nil {
		fail("error: %v", err)
	}
}

func (p *printer) any(v any, err error) {
	p.check(err)
	outputJSON(v)
}

func (p *printer) done(err error) {
	p.check(err)
	if !p.json {
		fmt.Println("OK")
	}
}

func (p *printer) status(resp *api.GetStatusResponse, err error) {
	p.check(err)
	if p.json {
		outputJSON(resp)
		return
	}
	fmt.Printf("Session:    %s\n", resp.Session)
	fmt.Printf("Server:     %s\n", resp.Server)
	fmt.Printf("Status:     %s\n", resp.Status)
	fmt.Printf("Uptime:     %dms\n", resp.UptimeMs)
	fmt.Printf("Queued:     %d\n", resp.QueuedCommands)
	fmt.Printf("Subscribed: %s\n", strings.Join(resp.SubscribedChats, ", "))
	fmt.Printf("Online:     %d users\n", len(resp.OnlineUsers))
}

func (p *printer) chats(resp *api.ListChatsResponse, err error) {
	p.check(err)
	if p.json {
		outputJSON(resp)
		return
	}
	if len(resp.Chats) == 0 {
		fmt.Println("No chats.")
		return
	}
	for _, c := range resp.Chats {
		unread := ""
		if c.UnreadCount > 0 {
			unread = fmt.Sprintf(" (%d)", c.UnreadCount)
		}
		fmt.Printf("%-24s %-6s %s%s  %s\n", c.ID, c.Type, c.Name, unread, c.LastMessage)
	}
}

func (p *printer) messages(resp *api.ListMessagesResponse, err error) {
	p.check(err)
	if p.json {
		outputJSON(resp)
		return
	}
	// newest first on the wire, oldest first on screen
	for i := len(resp.Messages) - 1; i >= 0; i-- {
		m := resp.Messages[i]
		sender := m.Sender()
		if sender == "" {
			sender = "*"
		}
		content := m.Content
		if m.DeletedAt != nil {
			content = "[deleted]"
		} else if m.EditedAt != nil {
			content += " (edited)"
		}
		fmt.Printf("%s %-12s %s\n", m.CreatedAt.Local().Format("01-02 15:04"), sender, content)
	}
	if resp.HasMore {
		fmt.Println("-- older messages available (--more)")
	}
}

func (p *printer) sent(resp *api.SendMessageResponse, err error) {
	p.check(err)
	if p.json {
		outputJSON(resp)
		return
	}
	fmt.Printf("Sent %s\n", resp.Message.ID)
}

func (p *printer) command(resp *api.CommandResponse, err error) {
	p.check(err)
	if p.json {
		outputJSON(resp)
		return
	}
	if resp.Queued {
		fmt.Println("Queued until connected")
		return
	}
	fmt.Println("OK")
}

func (p *printer) typing(resp *api.GetTypingResponse, err error) {
	p.check(err)
	if p.json {
		outputJSON(resp)
		return
	}
	if len(resp.UserIDs) == 0 {
		fmt.Println("Nobody is typing.")
		return
	}
	fmt.Printf("Typing: %s\n", strings.Join(resp.UserIDs, ", "))
}

func (p *printer) online(resp *api.GetOnlineResponse, err error) {
	p.check(err)
	if p.json {
		outputJSON(resp)
		return
	}
	for _, id := range resp.UserIDs {
		fmt.Println(id)
	}
}
