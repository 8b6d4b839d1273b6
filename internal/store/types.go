package store

import (
	"strings"
	"time"
)

// OptimisticPrefix marks message ids created locally before the server has
// confirmed them.
const OptimisticPrefix = "temp-"

type ChatType string

const (
	ChatDirect ChatType = "direct"
	ChatGroup  ChatType = "group"
)

// ChatSummary is one row of the chat list.
type ChatSummary struct {
	ID              string     `json:"id"`
	Type            ChatType   `json:"type"`
	Name            string     `json:"name"`
	Avatar          string     `json:"avatar,omitempty"`
	LastMessageID   string     `json:"lastMessageId,omitempty"`
	LastMessage     string     `json:"lastMessage,omitempty"`
	LastMessageAt   *time.Time `json:"lastMessageAt,omitempty"`
	UnreadCount     int        `json:"unreadCount"`
	PinnedAt        *time.Time `json:"pinnedAt,omitempty"`
	ArchivedAt      *time.Time `json:"archivedAt,omitempty"`
	IsMuted         bool       `json:"isMuted,omitempty"`
	OtherUserID     string     `json:"otherUserId,omitempty"`
	OtherUserOnline bool       `json:"otherUserOnline,omitempty"`
}

// Participant is a member of a chat as returned by the details endpoint.
type Participant struct {
	ID      string          `json:"id"`
	UserID  string          `json:"userId"`
	IsAdmin bool            `json:"isAdmin"`
	User    ParticipantUser `json:"user"`
}

type ParticipantUser struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Image    *string `json:"image"`
	IsOnline bool    `json:"isOnline"`
}

// ChatDetails extends a summary with group metadata.
type ChatDetails struct {
	ChatSummary
	Description        string        `json:"description,omitempty"`
	Participants       []Participant `json:"participants,omitempty"`
	CurrentUserIsAdmin bool          `json:"currentUserIsAdmin,omitempty"`
}

type ReactionUser struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Image *string `json:"image"`
}

// Reaction aggregates the users who reacted to a message with one emoji.
// Count always equals len(Users) and Users is never empty.
type Reaction struct {
	Emoji string         `json:"emoji"`
	Count int            `json:"count"`
	Users []ReactionUser `json:"users"`
}

type Message struct {
	ID              string     `json:"id"`
	ChatID          string     `json:"chatId"`
	SenderID        *string    `json:"senderId"`
	Type            string     `json:"type"`
	Content         string     `json:"content"`
	ReplyToID       *string    `json:"replyToId,omitempty"`
	ForwardedFromID *string    `json:"forwardedFromId,omitempty"`
	EditedAt        *time.Time `json:"editedAt,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
	DeletedAt       *time.Time `json:"deletedAt,omitempty"`
	Reactions       []Reaction `json:"reactions,omitempty"`
}

// IsOptimistic reports whether m is a local placeholder.
func (m Message) IsOptimistic() bool {
	return strings.HasPrefix(m.ID, OptimisticPrefix)
}

// Sender returns the sender id, or "" for system messages.
func (m Message) Sender() string {
	if m.SenderID == nil {
		return ""
	}
	return *m.SenderID
}

// Page is one page of a chat's history, newest message first.
type Page struct {
	Items      []Message `json:"items"`
	NextCursor string    `json:"nextCursor,omitempty"`
}

// MessagePages is the paginated message cache of one chat. Pages[0] holds
// the most recent messages.
type MessagePages struct {
	Pages []Page `json:"pages"`
}

// NextCursor returns the cursor for loading older messages, or "" when the
// history is exhausted.
func (mp MessagePages) NextCursor() string {
	if len(mp.Pages) == 0 {
		return ""
	}
	return mp.Pages[len(mp.Pages)-1].NextCursor
}

// Messages flattens all loaded pages, newest first.
func (mp MessagePages) Messages() []Message {
	var out []Message
	for _, p := range mp.Pages {
		out = append(out, p.Items...)
	}
	return out
}

type User struct {
	ID       string     `json:"id"`
	Name     string     `json:"name"`
	Email    string     `json:"email"`
	Image    *string    `json:"image,omitempty"`
	IsOnline bool       `json:"isOnline,omitempty"`
	LastSeen *time.Time `json:"lastSeen,omitempty"`
}

type Contact struct {
	ID        string    `json:"id"`
	User      User      `json:"user"`
	CreatedAt time.Time `json:"createdAt"`
}

// PendingRequest is an inbound (From set) or outbound (To set) contact
// request.
type PendingRequest struct {
	ID        string    `json:"id"`
	Direction string    `json:"direction"`
	From      *User     `json:"from,omitempty"`
	To        *User     `json:"to,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}
