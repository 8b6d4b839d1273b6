package bus

import "time"

// Event kinds published by the daemon. Subscribers filter by namespace
// prefix ("session.", "presence.", "cache.", "notify.").
const (
	KindStatusChanged  = "session.status_changed"
	KindTypingChanged  = "presence.typing_changed"
	KindOnlineChanged  = "presence.online_changed"
	KindSubscribed     = "presence.subscribed_chats"
	KindUpdated        = "cache.updated"
	KindInvalidated    = "cache.invalidated"
	KindRemoved        = "cache.removed"
	KindMessageApplied = "cache.message_applied"
	KindNotifyInfo     = "notify.info"
	KindNotifySuccess  = "notify.success"
	KindNotifyError    = "notify.error"
)

// Event represents an application event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// Notification is the payload of notify.* events: a short user-facing text.
type Notification struct {
	ChatID string `json:"chatId,omitempty"`
	Text   string `json:"text"`
}
