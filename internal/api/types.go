package api

import (
	"encoding/json"

	"github.com/matheus3301/parley/internal/status"
	"github.com/matheus3301/parley/internal/store"
)

// Empty is used by calls with nothing to send or return.
type Empty struct{}

type GetStatusRequest struct{}

type GetStatusResponse struct {
	Session         string       `json:"session"`
	Server          string       `json:"server"`
	Status          status.State `json:"status"`
	UptimeMs        int64        `json:"uptimeMs"`
	QueuedCommands  int          `json:"queuedCommands"`
	SubscribedChats []string     `json:"subscribedChats"`
	OnlineUsers     []string     `json:"onlineUsers"`
	TypingIn        []string     `json:"typingIn"`
}

// WatchEventsRequest selects bus events by kind prefix. No namespaces means
// every event.
type WatchEventsRequest struct {
	Namespaces []string `json:"namespaces,omitempty"`
}

type Event struct {
	ID              string          `json:"id"`
	Kind            string          `json:"kind"`
	TimestampUnixMs int64           `json:"timestampUnixMs"`
	Payload         json.RawMessage `json:"payload,omitempty"`
}

type ListChatsRequest struct {
	Refresh bool `json:"refresh,omitempty"`
}

type ListChatsResponse struct {
	Chats []store.ChatSummary `json:"chats"`
}

type GetChatDetailsRequest struct {
	ChatID string `json:"chatId"`
}

type GetChatDetailsResponse struct {
	Details store.ChatDetails `json:"details"`
}

// ListMessagesRequest returns the loaded history of a chat, newest first.
// LoadMore fetches one older page before answering.
type ListMessagesRequest struct {
	ChatID   string `json:"chatId"`
	LoadMore bool   `json:"loadMore,omitempty"`
}

type ListMessagesResponse struct {
	Messages []store.Message `json:"messages"`
	HasMore  bool            `json:"hasMore"`
}

type ListContactsRequest struct{}

type ListContactsResponse struct {
	Contacts []store.Contact        `json:"contacts"`
	Pending  []store.PendingRequest `json:"pending"`
}

type SendMessageRequest struct {
	ChatID  string `json:"chatId"`
	Content string `json:"content"`
}

type SendMessageResponse struct {
	Message store.Message `json:"message"`
}

type ChatRequest struct {
	ChatID string `json:"chatId"`
}

// CommandResponse reports whether an outbound command was held in the
// queue because the transport is not connected.
type CommandResponse struct {
	Queued bool `json:"queued"`
}

type GetTypingResponse struct {
	ChatID  string   `json:"chatId"`
	UserIDs []string `json:"userIds"`
}

type GetOnlineResponse struct {
	UserIDs []string `json:"userIds"`
}
