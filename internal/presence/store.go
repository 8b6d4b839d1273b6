// Package presence holds the ephemeral, server-pushed state of a session:
// connection status, who is typing where, who is online and which chats the
// server has us subscribed to. Nothing here is persisted.
package presence

import (
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/matheus3301/parley/internal/bus"
	"github.com/matheus3301/parley/internal/dispatch"
	"github.com/matheus3301/parley/internal/protocol"
	"github.com/matheus3301/parley/internal/status"
)

// TypingChange is the payload of presence.typing_changed.
type TypingChange struct {
	ChatID  string   `json:"chatId"`
	UserIDs []string `json:"userIds"`
}

// OnlineChange is the payload of presence.online_changed.
type OnlineChange struct {
	UserID string `json:"userId"`
	Online bool   `json:"online"`
}

type Store struct {
	machine *status.Machine
	bus     *bus.Bus
	log     *zap.Logger

	mu         sync.RWMutex
	typing     map[string][]string
	online     map[string]struct{}
	subscribed []string
}

func New(m *status.Machine, b *bus.Bus, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		machine: m,
		bus:     b,
		log:     log,
		typing:  make(map[string][]string),
		online:  make(map[string]struct{}),
	}
}

// Register binds the store to the dispatcher. Subscriptions are tracked by
// scope.
func (s *Store) Register(d *dispatch.Dispatcher, scope *dispatch.Scope) {
	scope.Add(dispatch.On(d, func(e protocol.TypingEvent) {
		if e.UserID != "" {
			s.AddTyping(e.ChatID, e.UserID)
		}
	}))
	scope.Add(dispatch.On(d, func(e protocol.StopTypingEvent) {
		if e.UserID != "" {
			s.RemoveTyping(e.ChatID, e.UserID)
		}
	}))
	scope.Add(dispatch.On(d, func(e protocol.UserOnline) {
		s.SetOnline(e.UserID, true)
	}))
	scope.Add(dispatch.On(d, func(e protocol.UserOffline) {
		s.SetOnline(e.UserID, false)
	}))
}

// SetStatus records a transport status change. It matches transport.StatusFunc.
func (s *Store) SetStatus(st status.State) {
	if err := s.machine.Transition(st); err != nil {
		s.log.Warn("unexpected status change", zap.String("to", string(st)), zap.Error(err))
	}
}

func (s *Store) Status() status.State {
	return s.machine.Current()
}

// AddTyping marks userID as typing in chatID. Returns false if it already was.
func (s *Store) AddTyping(chatID, userID string) bool {
	s.mu.Lock()
	users := s.typing[chatID]
	if slices.Contains(users, userID) {
		s.mu.Unlock()
		return false
	}
	users = append(slices.Clone(users), userID)
	s.typing[chatID] = users
	s.mu.Unlock()

	s.publishTyping(chatID, users)
	return true
}

// RemoveTyping clears userID from chatID's typing set. Returns false if the
// user was not typing there.
func (s *Store) RemoveTyping(chatID, userID string) bool {
	s.mu.Lock()
	users, changed := s.removeTypingLocked(chatID, userID)
	s.mu.Unlock()

	if changed {
		s.publishTyping(chatID, users)
	}
	return changed
}

func (s *Store) removeTypingLocked(chatID, userID string) ([]string, bool) {
	users := s.typing[chatID]
	i := slices.Index(users, userID)
	if i < 0 {
		return users, false
	}
	users = slices.Delete(slices.Clone(users), i, i+1)
	if len(users) == 0 {
		delete(s.typing, chatID)
	} else {
		s.typing[chatID] = users
	}
	return users, true
}

// TypingUsers returns the users typing in chatID, in the order they started.
func (s *Store) TypingUsers(chatID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.typing[chatID])
}

// SetOnline toggles membership in the online set. Going offline also purges
// the user from every typing set.
func (s *Store) SetOnline(userID string, online bool) {
	var purged []TypingChange

	s.mu.Lock()
	_, was := s.online[userID]
	if online {
		s.online[userID] = struct{}{}
	} else {
		delete(s.online, userID)
		for chatID := range s.typing {
			if users, ok := s.removeTypingLocked(chatID, userID); ok {
				purged = append(purged, TypingChange{ChatID: chatID, UserIDs: users})
			}
		}
	}
	s.mu.Unlock()

	for _, p := range purged {
		s.publishTyping(p.ChatID, p.UserIDs)
	}
	if was != online {
		s.bus.Publish(bus.Event{Kind: bus.KindOnlineChanged, Payload: OnlineChange{UserID: userID, Online: online}})
	}
}

func (s *Store) IsOnline(userID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.online[userID]
	return ok
}

// OnlineUsers returns the online set, sorted.
func (s *Store) OnlineUsers() []string {
	s.mu.RLock()
	users := make([]string, 0, len(s.online))
	for id := range s.online {
		users = append(users, id)
	}
	s.mu.RUnlock()
	slices.Sort(users)
	return users
}

func (s *Store) SetSubscribedChats(chats []string) {
	s.mu.Lock()
	s.subscribed = slices.Clone(chats)
	s.mu.Unlock()
	s.bus.Publish(bus.Event{Kind: bus.KindSubscribed, Payload: slices.Clone(chats)})
}

func (s *Store) SubscribedChats() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.subscribed)
}

// Reset clears all ephemeral state and forces the status to disconnected.
func (s *Store) Reset() {
	s.mu.Lock()
	s.typing = make(map[string][]string)
	s.online = make(map[string]struct{})
	s.subscribed = nil
	s.mu.Unlock()
	s.machine.Reset()
}

func (s *Store) publishTyping(chatID string, users []string) {
	s.bus.Publish(bus.Event{
		Kind:    bus.KindTypingChanged,
		Payload: TypingChange{ChatID: chatID, UserIDs: slices.Clone(users)},
	})
}
