package sync

import (
	"slices"
	"time"

	"github.com/matheus3301/parley/internal/store"
)

// Outcome describes what ApplyMessage did with an incoming message.
type Outcome int

const (
	// Duplicate means the message was already in the most recent page.
	Duplicate Outcome = iota
	// Confirmed means an optimistic placeholder was replaced in place.
	Confirmed
	// Inserted means the message was prepended to the most recent page.
	Inserted
)

func (o Outcome) String() string {
	switch o {
	case Duplicate:
		return "duplicate"
	case Confirmed:
		return "confirmed"
	default:
		return "inserted"
	}
}

// ApplyMessage merges a server message into a chat's pages. clientID is the
// optimistic id echoed by the server, if any. Without it, the oldest
// placeholder in the first page with the same sender and content is
// confirmed.
func ApplyMessage(mp store.MessagePages, msg store.Message, clientID string) (store.MessagePages, Outcome) {
	var first []store.Message
	if len(mp.Pages) > 0 {
		first = mp.Pages[0].Items
	}
	if slices.ContainsFunc(first, func(m store.Message) bool { return m.ID == msg.ID }) {
		return mp, Duplicate
	}

	idx := -1
	if clientID != "" {
		idx = slices.IndexFunc(first, func(m store.Message) bool {
			return m.IsOptimistic() && m.ID == clientID
		})
	}
	if idx < 0 {
		// newest first, so the oldest candidate is the last match
		for i := len(first) - 1; i >= 0; i-- {
			m := first[i]
			if m.IsOptimistic() && m.Sender() == msg.Sender() && m.Content == msg.Content {
				idx = i
				break
			}
		}
	}

	var items []store.Message
	outcome := Inserted
	if idx >= 0 {
		items = slices.Clone(first)
		items[idx] = msg
		outcome = Confirmed
	} else {
		items = make([]store.Message, 0, len(first)+1)
		items = append(items, msg)
		items = append(items, first...)
	}

	out := store.MessagePages{Pages: slices.Clone(mp.Pages)}
	if len(out.Pages) == 0 {
		out.Pages = []store.Page{{}}
	}
	out.Pages[0].Items = items
	return out, outcome
}

// ApplyChatMessage moves msg into its chat's last-message fields, bumps the
// unread counter for other people's messages and re-sorts the list. A
// message the summary already points at, or one older than it, is not
// applied again.
func ApplyChatMessage(chats []store.ChatSummary, msg store.Message, localUserID string) ([]store.ChatSummary, bool) {
	i := slices.IndexFunc(chats, func(c store.ChatSummary) bool { return c.ID == msg.ChatID })
	if i < 0 || chats[i].LastMessageID == msg.ID {
		return chats, false
	}
	if last := chats[i].LastMessageAt; last != nil && msg.CreatedAt.Before(*last) {
		return chats, false
	}
	out := slices.Clone(chats)
	c := out[i]
	at := msg.CreatedAt
	c.LastMessageID = msg.ID
	c.LastMessage = msg.Content
	c.LastMessageAt = &at
	if localUserID == "" || msg.Sender() != localUserID {
		c.UnreadCount++
	}
	out[i] = c
	SortChats(out)
	return out, true
}

// SortChats orders chats by last message time, newest first. Ties keep
// their relative order and chats without messages go last.
func SortChats(chats []store.ChatSummary) {
	slices.SortStableFunc(chats, func(a, b store.ChatSummary) int {
		switch {
		case a.LastMessageAt == nil && b.LastMessageAt == nil:
			return 0
		case a.LastMessageAt == nil:
			return 1
		case b.LastMessageAt == nil:
			return -1
		}
		return b.LastMessageAt.Compare(*a.LastMessageAt)
	})
}

// ApplyEdit replaces content and edit timestamps of the edited message in
// every loaded page.
func ApplyEdit(mp store.MessagePages, edited store.Message) (store.MessagePages, bool) {
	return mapMessage(mp, edited.ID, func(m store.Message) (store.Message, bool) {
		if m.Content == edited.Content && timeEqual(m.EditedAt, edited.EditedAt) && m.UpdatedAt.Equal(edited.UpdatedAt) {
			return m, false
		}
		m.Content = edited.Content
		m.EditedAt = edited.EditedAt
		m.UpdatedAt = edited.UpdatedAt
		return m, true
	})
}

// ApplyChatEdit refreshes the summary text when the edited message is the
// chat's last message. Order is unchanged.
func ApplyChatEdit(chats []store.ChatSummary, edited store.Message) ([]store.ChatSummary, bool) {
	i := slices.IndexFunc(chats, func(c store.ChatSummary) bool { return c.ID == edited.ChatID })
	if i < 0 {
		return chats, false
	}
	c := chats[i]
	var isLast bool
	if c.LastMessageID != "" {
		isLast = c.LastMessageID == edited.ID
	} else {
		isLast = c.LastMessageAt != nil && c.LastMessageAt.Equal(edited.CreatedAt)
	}
	if !isLast || c.LastMessage == edited.Content {
		return chats, false
	}
	out := slices.Clone(chats)
	out[i].LastMessage = edited.Content
	return out, true
}

// ApplyDelete soft-deletes a message. The first deletion time wins.
func ApplyDelete(mp store.MessagePages, messageID string, at time.Time) (store.MessagePages, bool) {
	return mapMessage(mp, messageID, func(m store.Message) (store.Message, bool) {
		if m.DeletedAt != nil {
			return m, false
		}
		m.DeletedAt = &at
		return m, true
	})
}

// ApplyReactionAdded adds user to the emoji's aggregate, creating it if
// needed. Re-adding an existing user changes nothing.
func ApplyReactionAdded(mp store.MessagePages, messageID, emoji string, user store.ReactionUser) (store.MessagePages, bool) {
	return mapMessage(mp, messageID, func(m store.Message) (store.Message, bool) {
		i := slices.IndexFunc(m.Reactions, func(r store.Reaction) bool { return r.Emoji == emoji })
		if i < 0 {
			m.Reactions = append(slices.Clone(m.Reactions), store.Reaction{
				Emoji: emoji,
				Count: 1,
				Users: []store.ReactionUser{user},
			})
			return m, true
		}
		r := m.Reactions[i]
		if slices.ContainsFunc(r.Users, func(u store.ReactionUser) bool { return u.ID == user.ID }) {
			return m, false
		}
		r.Users = append(slices.Clone(r.Users), user)
		r.Count = len(r.Users)
		m.Reactions = slices.Clone(m.Reactions)
		m.Reactions[i] = r
		return m, true
	})
}

// ApplyReactionRemoved drops userID from the emoji's aggregate and removes
// the aggregate once nobody is left.
func ApplyReactionRemoved(mp store.MessagePages, messageID, emoji, userID string) (store.MessagePages, bool) {
	return mapMessage(mp, messageID, func(m store.Message) (store.Message, bool) {
		i := slices.IndexFunc(m.Reactions, func(r store.Reaction) bool { return r.Emoji == emoji })
		if i < 0 {
			return m, false
		}
		r := m.Reactions[i]
		users := slices.DeleteFunc(slices.Clone(r.Users), func(u store.ReactionUser) bool { return u.ID == userID })
		if len(users) == len(r.Users) {
			return m, false
		}
		reactions := slices.Clone(m.Reactions)
		if len(users) == 0 {
			reactions = slices.Delete(reactions, i, i+1)
		} else {
			r.Users = users
			r.Count = len(users)
			reactions[i] = r
		}
		m.Reactions = reactions
		return m, true
	})
}

// ResetUnread zeroes a chat's unread counter.
func ResetUnread(chats []store.ChatSummary, chatID string) ([]store.ChatSummary, bool) {
	return mapChats(chats, func(c store.ChatSummary) (store.ChatSummary, bool) {
		if c.ID != chatID || c.UnreadCount == 0 {
			return c, false
		}
		c.UnreadCount = 0
		return c, true
	})
}

// SetOtherUserOnline patches the online flag of direct chats with userID.
func SetOtherUserOnline(chats []store.ChatSummary, userID string, online bool) ([]store.ChatSummary, bool) {
	return mapChats(chats, func(c store.ChatSummary) (store.ChatSummary, bool) {
		if c.Type != store.ChatDirect || c.OtherUserID != userID || c.OtherUserOnline == online {
			return c, false
		}
		c.OtherUserOnline = online
		return c, true
	})
}

// RemoveChat filters chatID out of the list.
func RemoveChat(chats []store.ChatSummary, chatID string) ([]store.ChatSummary, bool) {
	if !slices.ContainsFunc(chats, func(c store.ChatSummary) bool { return c.ID == chatID }) {
		return chats, false
	}
	return slices.DeleteFunc(slices.Clone(chats), func(c store.ChatSummary) bool { return c.ID == chatID }), true
}

func mapMessage(mp store.MessagePages, id string, fn func(store.Message) (store.Message, bool)) (store.MessagePages, bool) {
	var out store.MessagePages
	changed := false
	for pi, page := range mp.Pages {
		copied := false
		for mi, m := range page.Items {
			if m.ID != id {
				continue
			}
			next, ok := fn(m)
			if !ok {
				continue
			}
			if !changed {
				out = store.MessagePages{Pages: slices.Clone(mp.Pages)}
				changed = true
			}
			if !copied {
				out.Pages[pi].Items = slices.Clone(page.Items)
				copied = true
			}
			out.Pages[pi].Items[mi] = next
		}
	}
	if !changed {
		return mp, false
	}
	return out, true
}

func mapChats(chats []store.ChatSummary, fn func(store.ChatSummary) (store.ChatSummary, bool)) ([]store.ChatSummary, bool) {
	var out []store.ChatSummary
	for i, c := range chats {
		next, ok := fn(c)
		if !ok {
			continue
		}
		if out == nil {
			out = slices.Clone(chats)
		}
		out[i] = next
	}
	if out == nil {
		return chats, false
	}
	return out, true
}

func timeEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
