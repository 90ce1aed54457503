package api

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/RobinCoderZhao/optimist-daily/internal/session"
)

type sessionEntry struct {
	id       string
	userID   int
	sess     *session.Session
	lastUsed time.Time
}

// sessionRegistry tracks live feed sessions by ID. Sessions are private to
// the user who created them.
type sessionRegistry struct {
	mu      sync.Mutex
	entries map[string]*sessionEntry
	ttl     time.Duration
	now     func() time.Time
}

func newSessionRegistry(ttl time.Duration) *sessionRegistry {
	return &sessionRegistry{
		entries: make(map[string]*sessionEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (r *sessionRegistry) add(userID int, sess *session.Session) string {
	id := uuid.NewString()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[id] = &sessionEntry{id: id, userID: userID, sess: sess, lastUsed: r.now()}
	return id
}

// get returns the session if it exists and belongs to userID, and marks it
// as used.
func (r *sessionRegistry) get(id string, userID int) (*session.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok || e.userID != userID {
		return nil, false
	}
	e.lastUsed = r.now()
	return e.sess, true
}

// forUser returns every session owned by userID.
func (r *sessionRegistry) forUser(userID int) []*session.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*session.Session
	for _, e := range r.entries {
		if e.userID == userID {
			out = append(out, e.sess)
		}
	}
	return out
}

// remove deletes and closes the session if it belongs to userID.
func (r *sessionRegistry) remove(id string, userID int) bool {
	r.mu.Lock()
	e, ok := r.entries[id]
	if ok && e.userID == userID {
		delete(r.entries, id)
	}
	r.mu.Unlock()

	if !ok || e.userID != userID {
		return false
	}
	e.sess.Close()
	return true
}

// reap closes sessions unused for longer than the TTL and returns how many
// were closed.
func (r *sessionRegistry) reap() int {
	cutoff := r.now().Add(-r.ttl)

	r.mu.Lock()
	var expired []*sessionEntry
	for id, e := range r.entries {
		if e.lastUsed.Before(cutoff) {
			expired = append(expired, e)
			delete(r.entries, id)
		}
	}
	r.mu.Unlock()

	for _, e := range expired {
		e.sess.Close()
	}
	return len(expired)
}

func (r *sessionRegistry) closeAll() {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[string]*sessionEntry)
	r.mu.Unlock()

	for _, e := range entries {
		e.sess.Close()
	}
}

func (r *sessionRegistry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
