// Package dispatch routes decoded server events to registered handlers.
package dispatch

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/matheus3301/parley/internal/protocol"
)

// Handler receives a decoded event.
type Handler func(protocol.Event)

// Dispatcher is a typed publish/subscribe layer over inbound events.
// Handlers run synchronously on the dispatching goroutine, in registration
// order.
type Dispatcher struct {
	mu       sync.Mutex
	handlers map[protocol.EventType][]*Subscription
	log      *zap.Logger
}

// Subscription is the handle returned by Subscribe. Close is idempotent.
type Subscription struct {
	d      *Dispatcher
	typ    protocol.EventType
	fn     Handler
	active atomic.Bool
}

func New(log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{
		handlers: make(map[protocol.EventType][]*Subscription),
		log:      log,
	}
}

// Subscribe registers fn for events of the given type. Unknown types may be
// subscribed to by their raw name.
func (d *Dispatcher) Subscribe(typ protocol.EventType, fn Handler) *Subscription {
	sub := &Subscription{d: d, typ: typ, fn: fn}
	sub.active.Store(true)

	d.mu.Lock()
	d.handlers[typ] = append(d.handlers[typ], sub)
	d.mu.Unlock()
	return sub
}

// On registers a handler for the event variant E.
func On[E protocol.Event](d *Dispatcher, fn func(E)) *Subscription {
	var zero E
	return d.Subscribe(zero.Type(), func(evt protocol.Event) {
		if e, ok := evt.(E); ok {
			fn(e)
		}
	})
}

// Close unregisters the handler. A handler closed while a dispatch is in
// progress is not invoked for the rest of that dispatch.
func (s *Subscription) Close() {
	if s == nil || !s.active.CompareAndSwap(true, false) {
		return
	}
	d := s.d
	d.mu.Lock()
	defer d.mu.Unlock()
	subs := d.handlers[s.typ]
	for i, other := range subs {
		if other == s {
			// copy so that snapshots held by in-flight dispatches stay intact
			next := make([]*Subscription, 0, len(subs)-1)
			next = append(next, subs[:i]...)
			next = append(next, subs[i+1:]...)
			if len(next) == 0 {
				delete(d.handlers, s.typ)
			} else {
				d.handlers[s.typ] = next
			}
			return
		}
	}
}

// Dispatch invokes every handler registered for evt's type at the time of
// the call.
func (d *Dispatcher) Dispatch(evt protocol.Event) {
	d.mu.Lock()
	subs := d.handlers[evt.Type()]
	d.mu.Unlock()

	if len(subs) == 0 {
		if _, unknown := evt.(protocol.Unknown); unknown {
			d.log.Debug("unhandled event type", zap.String("type", string(evt.Type())))
		}
		return
	}
	for _, sub := range subs {
		if sub.active.Load() {
			sub.fn(evt)
		}
	}
}

// DispatchEnvelope decodes env and dispatches the result. Payloads that
// fail to decode are logged and dropped.
func (d *Dispatcher) DispatchEnvelope(env protocol.Envelope) {
	evt, err := protocol.Decode(env)
	if err != nil {
		d.log.Warn("dropping undecodable event",
			zap.String("type", string(env.Type)),
			zap.Error(err),
		)
		return
	}
	d.Dispatch(evt)
}

// Count returns the number of live handlers for typ.
func (d *Dispatcher) Count(typ protocol.EventType) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.handlers[typ])
}
