package app

import (
	"errors"
	"sync"

	"github.com/ayusman/doccapture/internal/crop"
)

// ErrSessionNotFound is returned for an unknown or finished session ID.
var ErrSessionNotFound = errors.New("crop session not found")

// Sessions holds the open manual crop sessions by ID.
type Sessions struct {
	mu       sync.Mutex
	sessions map[string]*crop.ManualSession
}

// NewSessions creates an empty registry.
func NewSessions() *Sessions {
	return &Sessions{sessions: make(map[string]*crop.ManualSession)}
}

// Add registers s under its ID.
func (r *Sessions) Add(s *crop.ManualSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID()] = s
}

// Get returns the session with the given ID.
func (r *Sessions) Get(id string) (*crop.ManualSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Remove forgets the session without closing it.
func (r *Sessions) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// Len returns the number of open sessions.
func (r *Sessions) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// CloseAll closes and forgets every session.
func (r *Sessions) CloseAll() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*crop.ManualSession)
	r.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}
