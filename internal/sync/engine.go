// Package sync applies server-pushed events to the local query cache and the
// presence store.
package sync

import (
	"fmt"
	gosync "sync"

	"go.uber.org/zap"

	"github.com/matheus3301/parley/internal/bus"
	"github.com/matheus3301/parley/internal/clock"
	"github.com/matheus3301/parley/internal/dispatch"
	"github.com/matheus3301/parley/internal/presence"
	"github.com/matheus3301/parley/internal/protocol"
	"github.com/matheus3301/parley/internal/store"
)

// Sender transmits outbound commands. *transport.Transport satisfies it.
type Sender interface {
	Send(protocol.Command)
}

// MessageApplied is the payload of cache.message_applied.
type MessageApplied struct {
	ChatID    string `json:"chatId"`
	MessageID string `json:"messageId"`
	Outcome   string `json:"outcome"`
}

type Options struct {
	Cache       *store.Cache
	Presence    *presence.Store
	Dispatcher  *dispatch.Dispatcher
	Sender      Sender
	Bus         *bus.Bus
	Clock       clock.Clock
	Logger      *zap.Logger
	LocalUserID string
}

// Engine binds reconcile functions to dispatcher subscriptions.
type Engine struct {
	cache       *store.Cache
	presence    *presence.Store
	dispatcher  *dispatch.Dispatcher
	sender      Sender
	bus         *bus.Bus
	clock       clock.Clock
	logger      *zap.Logger
	localUserID string

	mu               gosync.Mutex
	scope            *dispatch.Scope
	hasConnectedOnce bool
}

func NewEngine(opts Options) *Engine {
	e := &Engine{
		cache:       opts.Cache,
		presence:    opts.Presence,
		dispatcher:  opts.Dispatcher,
		sender:      opts.Sender,
		bus:         opts.Bus,
		clock:       opts.Clock,
		logger:      opts.Logger,
		localUserID: opts.LocalUserID,
	}
	if e.clock == nil {
		e.clock = clock.Real()
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	return e
}

// Start registers all handlers. Calling Start twice is a no-op.
func (e *Engine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.scope != nil {
		return
	}
	e.scope = &dispatch.Scope{}
	e.hasConnectedOnce = false

	d, s := e.dispatcher, e.scope
	if e.presence != nil {
		e.presence.Register(d, s)
	}
	s.Add(dispatch.On(d, e.onPresence))
	s.Add(dispatch.On(d, e.onError))
	s.Add(dispatch.On(d, e.onUserOnline))
	s.Add(dispatch.On(d, e.onUserOffline))
	s.Add(dispatch.On(d, e.onMessage))
	s.Add(dispatch.On(d, e.onMessageEdited))
	s.Add(dispatch.On(d, e.onMessageDeleted))
	s.Add(dispatch.On(d, e.onReadReceipt))
	s.Add(dispatch.On(d, e.onDeliveryReceipt))
	s.Add(dispatch.On(d, e.onReactionAdded))
	s.Add(dispatch.On(d, e.onReactionRemoved))
	s.Add(dispatch.On(d, e.onParticipantsChanged))
	s.Add(dispatch.On(d, e.onChatSettingsUpdated))
	s.Add(dispatch.On(d, e.onContactRequest))
	s.Add(dispatch.On(d, e.onContactAccepted))
	s.Add(dispatch.On(d, e.onContactRemoved))
	s.Add(dispatch.On(d, e.onRemovedFromChat))
	s.Add(dispatch.On(d, e.onAddedToChat))
	e.logger.Info("sync engine started")
}

// Stop releases every subscription. Events dispatched afterwards have no
// effect.
func (e *Engine) Stop() {
	e.mu.Lock()
	scope := e.scope
	e.scope = nil
	e.mu.Unlock()
	if scope != nil {
		scope.Close()
		e.logger.Info("sync engine stopped")
	}
}

func (e *Engine) onPresence(p protocol.Presence) {
	if e.presence != nil {
		e.presence.SetSubscribedChats(p.SubscribedChats)
	}
	e.mu.Lock()
	reconnect := e.hasConnectedOnce
	e.hasConnectedOnce = true
	e.mu.Unlock()

	if !reconnect {
		return
	}
	e.logger.Info("reconnected, invalidating chats and messages")
	e.cache.Invalidate(store.KeyChats)
	e.cache.InvalidatePrefix(store.MessagesPrefix)
}

func (e *Engine) onError(p protocol.ServerError) {
	e.logger.Warn("server error", zap.String("message", p.Message))
}

func (e *Engine) onUserOnline(p protocol.UserOnline) {
	store.Modify(e.cache, store.KeyChats, func(chats []store.ChatSummary) ([]store.ChatSummary, bool) {
		return SetOtherUserOnline(chats, p.UserID, true)
	})
}

func (e *Engine) onUserOffline(p protocol.UserOffline) {
	store.Modify(e.cache, store.KeyChats, func(chats []store.ChatSummary) ([]store.ChatSummary, bool) {
		return SetOtherUserOnline(chats, p.UserID, false)
	})
}

func (e *Engine) onMessage(p protocol.NewMessage) {
	msg := messageFromPayload(p.MessagePayload)

	outcome := Inserted
	store.Modify(e.cache, store.MessagesKey(msg.ChatID), func(mp store.MessagePages) (store.MessagePages, bool) {
		var next store.MessagePages
		next, outcome = ApplyMessage(mp, msg, p.ClientID)
		return next, outcome != Duplicate
	})

	if outcome != Duplicate {
		store.Modify(e.cache, store.KeyChats, func(chats []store.ChatSummary) ([]store.ChatSummary, bool) {
			return ApplyChatMessage(chats, msg, e.localUserID)
		})
		e.bus.Publish(bus.Event{
			Kind:    bus.KindMessageApplied,
			Payload: MessageApplied{ChatID: msg.ChatID, MessageID: msg.ID, Outcome: outcome.String()},
		})
	}
	e.logger.Debug("message event",
		zap.String("chat_id", msg.ChatID),
		zap.String("msg_id", msg.ID),
		zap.Stringer("outcome", outcome),
	)

	if p.SenderID != nil && e.presence != nil {
		e.presence.RemoveTyping(msg.ChatID, *p.SenderID)
	}
}

func (e *Engine) onMessageEdited(p protocol.MessageEdited) {
	edited := messageFromPayload(p.MessagePayload)
	store.Modify(e.cache, store.MessagesKey(edited.ChatID), func(mp store.MessagePages) (store.MessagePages, bool) {
		return ApplyEdit(mp, edited)
	})
	store.Modify(e.cache, store.KeyChats, func(chats []store.ChatSummary) ([]store.ChatSummary, bool) {
		return ApplyChatEdit(chats, edited)
	})
}

func (e *Engine) onMessageDeleted(p protocol.MessageDeleted) {
	now := e.clock.Now()
	store.Modify(e.cache, store.MessagesKey(p.ChatID), func(mp store.MessagePages) (store.MessagePages, bool) {
		return ApplyDelete(mp, p.MessageID, now)
	})
	e.cache.Invalidate(store.KeyChats)
}

func (e *Engine) onReadReceipt(p protocol.ReadReceipt) {
	if e.localUserID == "" || p.UserID != e.localUserID {
		return
	}
	store.Modify(e.cache, store.KeyChats, func(chats []store.ChatSummary) ([]store.ChatSummary, bool) {
		return ResetUnread(chats, p.ChatID)
	})
}

func (e *Engine) onDeliveryReceipt(p protocol.DeliveryReceipt) {
	e.logger.Debug("delivery receipt",
		zap.String("chat_id", p.ChatID),
		zap.String("user_id", p.UserID),
		zap.Strings("msg_ids", p.MessageIDs),
	)
}

func (e *Engine) onReactionAdded(p protocol.ReactionAdded) {
	user := store.ReactionUser{ID: p.User.ID, Name: p.User.Name, Image: p.User.Image}
	if user.ID == "" {
		user.ID = p.UserID
	}
	store.Modify(e.cache, store.MessagesKey(p.ChatID), func(mp store.MessagePages) (store.MessagePages, bool) {
		return ApplyReactionAdded(mp, p.MessageID, p.Emoji, user)
	})
}

func (e *Engine) onReactionRemoved(p protocol.ReactionRemoved) {
	store.Modify(e.cache, store.MessagesKey(p.ChatID), func(mp store.MessagePages) (store.MessagePages, bool) {
		return ApplyReactionRemoved(mp, p.MessageID, p.Emoji, p.UserID)
	})
}

func (e *Engine) onParticipantsChanged(p protocol.ParticipantsChanged) {
	e.cache.Invalidate(store.ChatDetailsKey(p.ChatID), store.KeyChats)
}

func (e *Engine) onChatSettingsUpdated(protocol.ChatSettingsUpdated) {
	e.cache.Invalidate(store.KeyChats)
}

func (e *Engine) onContactRequest(p protocol.ContactRequest) {
	e.cache.Invalidate(store.KeyPendingRequests)
	e.bus.Notify(bus.KindNotifyInfo, "", fmt.Sprintf("%s sent you a contact request", p.From.Name))
}

func (e *Engine) onContactAccepted(p protocol.ContactAccepted) {
	e.cache.Invalidate(store.KeyContacts, store.KeyPendingRequests, store.KeyChats)
	e.bus.Notify(bus.KindNotifySuccess, "", fmt.Sprintf("%s accepted your contact request", p.User.Name))
}

func (e *Engine) onContactRemoved(p protocol.ContactRemoved) {
	e.dropChat(p.ChatID)
	e.cache.Invalidate(store.KeyContacts)
	e.bus.Notify(bus.KindNotifyInfo, p.ChatID, fmt.Sprintf("%s removed you as a contact", p.ContactName))
}

func (e *Engine) onRemovedFromChat(p protocol.RemovedFromChat) {
	e.dropChat(p.ChatID)
	if p.RemovedBy != nil {
		e.bus.Notify(bus.KindNotifyInfo, p.ChatID, fmt.Sprintf("You were removed from %q", p.ChatName))
	}
}

func (e *Engine) onAddedToChat(p protocol.AddedToChat) {
	if e.sender != nil {
		e.sender.Send(protocol.Subscribe(p.ChatID))
	}
	e.cache.Invalidate(store.KeyChats)
	e.bus.Notify(bus.KindNotifyInfo, p.ChatID, "You were added to a group")
}

// dropChat removes every trace of a chat the user can no longer see.
func (e *Engine) dropChat(chatID string) {
	store.Modify(e.cache, store.KeyChats, func(chats []store.ChatSummary) ([]store.ChatSummary, bool) {
		return RemoveChat(chats, chatID)
	})
	e.cache.Remove(store.ChatDetailsKey(chatID), store.MessagesKey(chatID))
}

func messageFromPayload(p protocol.MessagePayload) store.Message {
	return store.Message{
		ID:              p.ID,
		ChatID:          p.ChatID,
		SenderID:        p.SenderID,
		Type:            p.Type,
		Content:         p.Content,
		ReplyToID:       p.ReplyToID,
		ForwardedFromID: p.ForwardedFromID,
		EditedAt:        p.EditedAt,
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.UpdatedAt,
		DeletedAt:       p.DeletedAt,
	}
}
