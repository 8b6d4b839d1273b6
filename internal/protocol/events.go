package protocol

import (
	"encoding/json"
	"time"
)

const (
	TypePresence            EventType = "presence"
	TypeTyping              EventType = "typing"
	TypeStopTyping          EventType = "stop_typing"
	TypeUserOnline          EventType = "user_online"
	TypeUserOffline         EventType = "user_offline"
	TypeMessage             EventType = "message"
	TypeMessageEdited       EventType = "message_edited"
	TypeMessageDeleted      EventType = "message_deleted"
	TypeReadReceipt         EventType = "read_receipt"
	TypeDeliveryReceipt     EventType = "delivery_receipt"
	TypeReactionAdded       EventType = "reaction_added"
	TypeReactionRemoved     EventType = "reaction_removed"
	TypeContactRequest      EventType = "contact_request"
	TypeContactAccepted     EventType = "contact_accepted"
	TypeContactRemoved      EventType = "contact_removed"
	TypeRemovedFromChat     EventType = "removed_from_chat"
	TypeAddedToChat         EventType = "added_to_chat"
	TypeParticipantsChanged EventType = "participants_changed"
	TypeChatSettingsUpdated EventType = "chat_settings_updated"
	TypeError               EventType = "error"
)

// Event is an inbound server event. The set of implementations is closed;
// unrecognized types decode to Unknown.
type Event interface {
	Type() EventType
}

// Presence is sent by the server after every successful connection.
type Presence struct {
	Status          string   `json:"status"`
	SubscribedChats []string `json:"subscribedChats"`
}

// TypingEvent reports that a user started typing. UserID is empty when the
// server omits it.
type TypingEvent struct {
	ChatID string `json:"chatId"`
	UserID string `json:"userId,omitempty"`
}

// StopTypingEvent reports that a user stopped typing.
type StopTypingEvent struct {
	ChatID string `json:"chatId"`
	UserID string `json:"userId,omitempty"`
}

type UserOnline struct {
	UserID string `json:"userId"`
}

type UserOffline struct {
	UserID string `json:"userId"`
}

// MessagePayload is the wire shape of a chat message. ClientID echoes the
// optimistic placeholder id when the server supports correlation.
type MessagePayload struct {
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
	ClientID        string     `json:"clientId,omitempty"`
}

type NewMessage struct {
	MessagePayload
}

// MessageEdited carries the full edited message; EditedAt is always set.
type MessageEdited struct {
	MessagePayload
}

type MessageDeleted struct {
	ChatID    string `json:"chatId"`
	MessageID string `json:"messageId"`
}

type ReadReceipt struct {
	ChatID string    `json:"chatId"`
	UserID string    `json:"userId"`
	ReadAt time.Time `json:"readAt"`
}

type DeliveryReceipt struct {
	ChatID      string    `json:"chatId"`
	MessageIDs  []string  `json:"messageIds"`
	UserID      string    `json:"userId"`
	DeliveredAt time.Time `json:"deliveredAt"`
}

// UserRef is the abbreviated user attached to reactions.
type UserRef struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Image *string `json:"image"`
}

// ContactUser is the user attached to contact events.
type ContactUser struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Email string  `json:"email"`
	Image *string `json:"image"`
}

type ReactionPayload struct {
	MessageID string  `json:"messageId"`
	ChatID    string  `json:"chatId"`
	UserID    string  `json:"userId"`
	Emoji     string  `json:"emoji"`
	User      UserRef `json:"user"`
}

type ReactionAdded struct {
	ReactionPayload
}

type ReactionRemoved struct {
	ReactionPayload
}

type ContactRequest struct {
	ID        string      `json:"id"`
	From      ContactUser `json:"from"`
	CreatedAt time.Time   `json:"createdAt"`
}

type ContactAccepted struct {
	ID         string      `json:"id"`
	User       ContactUser `json:"user"`
	AcceptedAt time.Time   `json:"acceptedAt"`
}

type ContactRemoved struct {
	ChatID      string `json:"chatId"`
	ContactName string `json:"contactName"`
}

// RemovedFromChat is received when the local user leaves or is removed from
// a group. RemovedBy is nil when the user left on their own.
type RemovedFromChat struct {
	ChatID    string  `json:"chatId"`
	ChatName  string  `json:"chatName"`
	RemovedBy *string `json:"removedBy"`
}

type AddedToChat struct {
	ChatID string `json:"chatId"`
}

type ParticipantsChanged struct {
	ChatID string `json:"chatId"`
}

type ChatSettingsUpdated struct {
	ChatID   string `json:"chatId"`
	IsMuted  *bool  `json:"isMuted,omitempty"`
	IsPinned *bool  `json:"isPinned,omitempty"`
}

type ServerError struct {
	Message string `json:"message"`
}

// Unknown holds a frame whose type this client does not recognize.
type Unknown struct {
	Kind    EventType
	Payload json.RawMessage
}

func (Presence) Type() EventType            { return TypePresence }
func (TypingEvent) Type() EventType         { return TypeTyping }
func (StopTypingEvent) Type() EventType     { return TypeStopTyping }
func (UserOnline) Type() EventType          { return TypeUserOnline }
func (UserOffline) Type() EventType         { return TypeUserOffline }
func (NewMessage) Type() EventType          { return TypeMessage }
func (MessageEdited) Type() EventType       { return TypeMessageEdited }
func (MessageDeleted) Type() EventType      { return TypeMessageDeleted }
func (ReadReceipt) Type() EventType         { return TypeReadReceipt }
func (DeliveryReceipt) Type() EventType     { return TypeDeliveryReceipt }
func (ReactionAdded) Type() EventType       { return TypeReactionAdded }
func (ReactionRemoved) Type() EventType     { return TypeReactionRemoved }
func (ContactRequest) Type() EventType      { return TypeContactRequest }
func (ContactAccepted) Type() EventType     { return TypeContactAccepted }
func (ContactRemoved) Type() EventType      { return TypeContactRemoved }
func (RemovedFromChat) Type() EventType     { return TypeRemovedFromChat }
func (AddedToChat) Type() EventType         { return TypeAddedToChat }
func (ParticipantsChanged) Type() EventType { return TypeParticipantsChanged }
func (ChatSettingsUpdated) Type() EventType { return TypeChatSettingsUpdated }
func (ServerError) Type() EventType         { return TypeError }
func (u Unknown) Type() EventType           { return u.Kind }
