// Package typing turns local keystrokes into typing/stop_typing commands.
package typing

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/parley/internal/clock"
	"github.com/matheus3301/parley/internal/protocol"
)

const DefaultIdleTimeout = 3 * time.Second

// Sender transmits outbound commands.
type Sender interface {
	Send(protocol.Command)
}

type chatState struct {
	timer *clock.Timer
	gen   uint64
}

// Debouncer tracks, per chat, whether the local user is typing. The first
// keystroke sends typing; idleness or Stop sends stop_typing.
type Debouncer struct {
	sender Sender
	clock  clock.Clock
	idle   time.Duration
	log    *zap.Logger

	mu    sync.Mutex
	chats map[string]*chatState
	gen   uint64
}

func New(sender Sender, clk clock.Clock, idle time.Duration, log *zap.Logger) *Debouncer {
	if clk == nil {
		clk = clock.Real()
	}
	if idle <= 0 {
		idle = DefaultIdleTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Debouncer{
		sender: sender,
		clock:  clk,
		idle:   idle,
		log:    log,
		chats:  make(map[string]*chatState),
	}
}

// Keystroke records activity in chatID and restarts its idle timer.
// Commands are sent with mu held so typing and stop_typing for one chat
// cannot be reordered.
func (d *Debouncer) Keystroke(chatID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	st, typing := d.chats[chatID]
	if typing {
		st.timer.Stop()
	} else {
		st = &chatState{}
		d.chats[chatID] = st
		d.log.Debug("typing started", zap.String("chat_id", chatID))
		d.sender.Send(protocol.Typing(chatID))
	}
	d.gen++
	gen := d.gen
	st.gen = gen
	st.timer = d.clock.AfterFunc(d.idle, func() { d.expire(chatID, gen) })
}

// Stop ends typing in chatID immediately. It does nothing when idle.
func (d *Debouncer) Stop(chatID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	st, typing := d.chats[chatID]
	if !typing {
		return
	}
	st.timer.Stop()
	delete(d.chats, chatID)
	d.sender.Send(protocol.StopTyping(chatID))
}

// StopAll ends typing everywhere.
func (d *Debouncer) StopAll() {
	d.mu.Lock()
	defer d.mu.Unlock()

	chats := make([]string, 0, len(d.chats))
	for id, st := range d.chats {
		st.timer.Stop()
		chats = append(chats, id)
	}
	d.chats = make(map[string]*chatState)
	sort.Strings(chats)
	for _, id := range chats {
		d.sender.Send(protocol.StopTyping(id))
	}
}

// Active returns the chats the local user is currently typing in, sorted.
func (d *Debouncer) Active() []string {
	d.mu.Lock()
	chats := make([]string, 0, len(d.chats))
	for id := range d.chats {
		chats = append(chats, id)
	}
	d.mu.Unlock()
	sort.Strings(chats)
	return chats
}

// expire fires after the idle timeout. A timer that lost the race with a
// newer keystroke or Stop finds a different generation and does nothing.
func (d *Debouncer) expire(chatID string, gen uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	st, ok := d.chats[chatID]
	if !ok || st.gen != gen {
		return
	}
	delete(d.chats, chatID)
	d.log.Debug("typing idle", zap.String("chat_id", chatID))
	d.sender.Send(protocol.StopTyping(chatID))
}
