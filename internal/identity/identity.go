// Package identity exposes the current user session to the sync core. The
// core only reads identities; signing in happens elsewhere.
package identity

import (
	"strings"
	"sync"
)

// Identity is the current session. An empty UserID means no session.
type Identity struct {
	UserID      string `json:"userId,omitempty"`
	IsAnonymous bool   `json:"isAnonymous"`
}

// Guest is the identity of a device with no session.
var Guest = Identity{}

// Authenticated reports whether the session belongs to a signed-in,
// non-anonymous user.
func (i Identity) Authenticated() bool {
	return strings.TrimSpace(i.UserID) != "" && !i.IsAnonymous
}

// Provider supplies the current identity and change notifications.
type Provider interface {
	Current() Identity
	Subscribe(fn func(Identity)) (unsubscribe func())
}

// Session is an in-process Provider driven by Set.
type Session struct {
	mu        sync.Mutex
	current   Identity
	listeners map[int]func(Identity)
	next      int
}

// NewSession creates a Session starting at initial.
func NewSession(initial Identity) *Session {
	return &Session{current: initial, listeners: make(map[int]func(Identity))}
}

func (s *Session) Current() Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Set replaces the identity and notifies subscribers when it changed.
func (s *Session) Set(id Identity) {
	s.mu.Lock()
	if s.current == id {
		s.mu.Unlock()
		return
	}
	s.current = id
	fns := make([]func(Identity), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(id)
	}
}

func (s *Session) Subscribe(fn func(Identity)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.next
	s.next++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// Static is a fixed Provider, used per request by the HTTP layer.
type Static Identity

func (s Static) Current() Identity { return Identity(s) }

func (s Static) Subscribe(func(Identity)) func() { return func() {} }
