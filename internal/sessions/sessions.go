// Package sessions tracks connected camera client sessions, adapted from
// a pub/sub hub registry. Camera sessions are pure producers: nothing is
// broadcast back to them, so a fan-out Out channel and BackpressurePolicy
// have no referent here and are dropped; what survives is the bookkeeping
// shape (Add/Remove/Count/Snapshot, idempotent Close).
package sessions

import (
	"sync"
	"sync/atomic"

	"github.com/vistream/detectd/internal/logging"
	"github.com/vistream/detectd/internal/metrics"
)

// Session represents one accepted client connection: one TCP socket
// producing a stream of frames (and optionally split-mode preprocessed
// tensors) under a single ClientID, until it sends a sentinel or the
// connection closes.
type Session struct {
	ClientID  int
	Closed    chan struct{}
	closeOnce sync.Once

	lastImageID atomic.Int64
}

// Close signals the session is done (idempotent).
func (s *Session) Close() {
	s.closeOnce.Do(func() { close(s.Closed) })
}

// NewSession builds a Session for the given client id.
func NewSession(clientID int) *Session {
	return &Session{ClientID: clientID, Closed: make(chan struct{})}
}

// RecordImageID updates the last-seen image_id for this session, used by
// tests and logging to assert per-client ordering is preserved end to end.
func (s *Session) RecordImageID(id int) { s.lastImageID.Store(int64(id)) }

// LastImageID returns the most recently recorded image_id.
func (s *Session) LastImageID() int { return int(s.lastImageID.Load()) }

// Registry tracks the set of currently connected sessions.
type Registry struct {
	mu       sync.RWMutex
	sessions map[*Session]struct{}
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry { return &Registry{sessions: make(map[*Session]struct{})} }

// Add registers a session with the registry.
func (r *Registry) Add(s *Session) {
	r.mu.Lock()
	prev := len(r.sessions)
	r.sessions[s] = struct{}{}
	cur := len(r.sessions)
	r.mu.Unlock()
	metrics.SetActiveSessions(cur)
	if prev == 0 && cur == 1 {
		logging.L().Info("sessions_first_connected")
	}
}

// Remove unregisters a session; safe to call multiple times.
func (r *Registry) Remove(s *Session) {
	r.mu.Lock()
	_, existed := r.sessions[s]
	if existed {
		delete(r.sessions, s)
	}
	cur := len(r.sessions)
	r.mu.Unlock()
	select {
	case <-s.Closed:
	default:
		s.Close()
	}
	metrics.SetActiveSessions(cur)
	if existed && cur == 0 {
		logging.L().Info("sessions_last_disconnected")
	}
}

// Snapshot returns a slice copy of the currently registered sessions.
func (r *Registry) Snapshot() []*Session {
	r.mu.RLock()
	out := make([]*Session, 0, len(r.sessions))
	for s := range r.sessions {
		out = append(out, s)
	}
	r.mu.RUnlock()
	return out
}

// Count returns the number of active sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	n := len(r.sessions)
	r.mu.RUnlock()
	return n
}
