package api

import (
	"sync"
	"time"

	"github.com/yangwenmai/storyteller/internal/session"
)

// Registry holds the live composing sessions by ID.
type Registry struct {
	newSession func() *session.Session
	now        func() time.Time

	mu       sync.Mutex
	sessions map[string]*registryEntry
}

type registryEntry struct {
	sess    *session.Session
	touched time.Time
}

// NewRegistry creates a Registry that builds sessions with factory.
func NewRegistry(factory func() *session.Session) *Registry {
	return &Registry{
		newSession: factory,
		now:        time.Now,
		sessions:   make(map[string]*registryEntry),
	}
}

// Create starts and registers a new session.
func (r *Registry) Create() *session.Session {
	sess := r.newSession()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sess.ID()] = &registryEntry{sess: sess, touched: r.now()}
	return sess
}

// Get returns the session with id and marks it as used.
func (r *Registry) Get(id string) (*session.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	e.touched = r.now()
	return e.sess, true
}

// Delete closes and forgets the session with id.
func (r *Registry) Delete(id string) bool {
	r.mu.Lock()
	e, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if ok {
		e.sess.Close()
	}
	return ok
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// EvictIdle closes sessions neither requested nor changed within ttl and
// returns how many were evicted.
func (r *Registry) EvictIdle(ttl time.Duration) int {
	cutoff := r.now().Add(-ttl)

	r.mu.Lock()
	var idle []*session.Session
	for id, e := range r.sessions {
		if e.touched.After(cutoff) || e.sess.UpdatedAt().After(cutoff) {
			continue
		}
		idle = append(idle, e.sess)
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	for _, sess := range idle {
		sess.Close()
	}
	return len(idle)
}

// CloseAll closes every session and waits for their generations to finish.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	all := make([]*session.Session, 0, len(r.sessions))
	for id, e := range r.sessions {
		all = append(all, e.sess)
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	for _, sess := range all {
		sess.Close()
	}
	for _, sess := range all {
		sess.Wait()
	}
}
