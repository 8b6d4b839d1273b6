package dispatch

import "sync"

// Scope groups subscriptions that share a lifetime. Closing the scope
// closes every subscription added to it; subscriptions added after Close
// are closed immediately.
type Scope struct {
	mu     sync.Mutex
	subs   []*Subscription
	closed bool
}

// Add tracks sub and returns it.
func (s *Scope) Add(sub *Subscription) *Subscription {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		sub.Close()
		return sub
	}
	s.subs = append(s.subs, sub)
	s.mu.Unlock()
	return sub
}

func (s *Scope) Close() {
	s.mu.Lock()
	subs := s.subs
	s.subs = nil
	s.closed = true
	s.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
}
