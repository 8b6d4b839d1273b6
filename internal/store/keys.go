package store

import "strings"

// Key identifies a cached resource.
type Key string

const (
	KeyChats           Key = "chats"
	KeyContacts        Key = "contacts"
	KeyPendingRequests Key = "pending-requests"

	ChatDetailsPrefix = "chat-details/"
	MessagesPrefix    = "messages/"
)

func ChatDetailsKey(chatID string) Key { return Key(ChatDetailsPrefix + chatID) }

func MessagesKey(chatID string) Key { return Key(MessagesPrefix + chatID) }

// HasPrefix reports whether k starts with prefix.
func (k Key) HasPrefix(prefix string) bool {
	return strings.HasPrefix(string(k), prefix)
}
