package status

import (
	"testing"

	"github.com/matheus3301/parley/internal/bus"
)

func TestInitialState(t *testing.T) {
	m := NewMachine(nil)
	if m.Current() != Disconnected {
		t.Errorf("initial state = %s, want disconnected", m.Current())
	}
}

func TestValidTransitions(t *testing.T) {
	tests := []struct {
		from State
		to   State
	}{
		{Disconnected, Connecting},
		{Connecting, Connected},
		{Connecting, Reconnecting},
		{Connecting, Disconnected},
		{Connected, Reconnecting},
		{Connected, Disconnected},
		{Reconnecting, Connected},
		{Reconnecting, Disconnected},
		{Reconnecting, Connecting},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			m := NewMachine(nil)
			walkTo(t, m, tt.from)
			if err := m.Transition(tt.to); err != nil {
				t.Errorf("Transition(%s -> %s) error = %v", tt.from, tt.to, err)
			}
			if m.Current() != tt.to {
				t.Errorf("state = %s, want %s", m.Current(), tt.to)
			}
		})
	}
}

func TestInvalidTransition(t *testing.T) {
	m := NewMachine(nil)
	if err := m.Transition(Connected); err == nil {
		t.Error("Transition(disconnected -> connected) should fail; must go through connecting")
	}
	if err := m.Transition(Reconnecting); err == nil {
		t.Error("Transition(disconnected -> reconnecting) should fail")
	}
}

func TestSameStateIsNoop(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("session.", 10)
	defer unsub()

	m := NewMachine(b)
	walkTo(t, m, Reconnecting)
	for len(ch) > 0 {
		<-ch
	}

	if err := m.Transition(Reconnecting); err != nil {
		t.Fatalf("Transition(reconnecting -> reconnecting) error = %v", err)
	}
	if len(ch) != 0 {
		t.Errorf("got %d events for a same-state transition, want 0", len(ch))
	}
}

func TestTransitionEmitsEvent(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("session.", 10)
	defer unsub()

	m := NewMachine(b)
	if err := m.Transition(Connecting); err != nil {
		t.Fatal(err)
	}

	evt := <-ch
	if evt.Kind != bus.KindStatusChanged {
		t.Errorf("event kind = %q, want %s", evt.Kind, bus.KindStatusChanged)
	}
	change, ok := evt.Payload.(StatusChange)
	if !ok {
		t.Fatalf("payload type = %T, want StatusChange", evt.Payload)
	}
	if change.From != Disconnected || change.To != Connecting {
		t.Errorf("change = %v -> %v, want disconnected -> connecting", change.From, change.To)
	}
}

// TestDropAndRecoverCycle walks the reconnect loop:
// connecting → connected → reconnecting → connected.
func TestDropAndRecoverCycle(t *testing.T) {
	m := NewMachine(nil)
	steps := []State{Connecting, Connected, Reconnecting, Reconnecting, Connected}
	for _, s := range steps {
		if err := m.Transition(s); err != nil {
			t.Fatalf("Transition to %s: %v (current: %s)", s, err, m.Current())
		}
	}
	if m.Current() != Connected {
		t.Errorf("final state = %s, want connected", m.Current())
	}
}

func TestReset(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("session.", 10)
	defer unsub()

	m := NewMachine(b)
	walkTo(t, m, Connected)
	for len(ch) > 0 {
		<-ch
	}

	m.Reset()
	if m.Current() != Disconnected {
		t.Errorf("state after Reset = %s, want disconnected", m.Current())
	}
	evt := <-ch
	if change := evt.Payload.(StatusChange); change.From != Connected || change.To != Disconnected {
		t.Errorf("change = %+v, want connected -> disconnected", change)
	}
}

// walkTo is a helper that transitions the machine to a target state.
func walkTo(t *testing.T, m *Machine, target State) {
	t.Helper()
	paths := map[State][]State{
		Disconnected: {},
		Connecting:   {Connecting},
		Connected:    {Connecting, Connected},
		Reconnecting: {Connecting, Connected, Reconnecting},
	}
	for _, s := range paths[target] {
		if err := m.Transition(s); err != nil {
			t.Fatalf("walkTo(%s): %v", target, err)
		}
	}
}
