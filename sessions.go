package main

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"logocrop/editor"
)

// liveSession serialises the requests of one browser tab against its editing
// session.
type liveSession struct {
	mu       sync.Mutex
	id       string
	name     string
	openedAt time.Time
	// touched is guarded by mu.
	touched time.Time
	session *editor.Session
}

type sessionRegistry struct {
	mu       sync.Mutex
	sessions map[string]*liveSession
	now      func() time.Time
}

func newSessionRegistry() *sessionRegistry {
	return &sessionRegistry{sessions: make(map[string]*liveSession), now: time.Now}
}

func (r *sessionRegistry) add(name string, s *editor.Session) *liveSession {
	now := r.now()
	ls := &liveSession{
		id:       uuid.NewString(),
		name:     name,
		openedAt: now,
		touched:  now,
		session:  s,
	}
	r.mu.Lock()
	r.sessions[ls.id] = ls
	r.mu.Unlock()
	return ls
}

func (r *sessionRegistry) get(id string) (*liveSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ls, ok := r.sessions[id]
	return ls, ok
}

func (r *sessionRegistry) remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

func (r *sessionRegistry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// snapshot returns the open sessions. Session locks must be taken only after
// the registry lock is released; handlers hold a session lock while removing.
func (r *sessionRegistry) snapshot() []*liveSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	open := make([]*liveSession, 0, len(r.sessions))
	for _, ls := range r.sessions {
		open = append(open, ls)
	}
	return open
}

// expire cancels and removes sessions untouched for longer than idle and
// returns how many were dropped.
func (r *sessionRegistry) expire(idle time.Duration) int {
	deadline := r.now().Add(-idle)
	var n int
	for _, ls := range r.snapshot() {
		ls.mu.Lock()
		if ls.touched.Before(deadline) {
			ls.session.Cancel()
			r.remove(ls.id)
			n++
		}
		ls.mu.Unlock()
	}
	return n
}

// closeAll cancels every open session.
func (r *sessionRegistry) closeAll() {
	for _, ls := range r.snapshot() {
		ls.mu.Lock()
		ls.session.Cancel()
		r.remove(ls.id)
		ls.mu.Unlock()
	}
}
