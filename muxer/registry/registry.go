// Package registry tracks the lifecycle of active MuxerCore sessions,
// giving the status server a thread-safe list to report via
// /debug/streams.
package registry

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Session records one MuxerCore instance's identity and start time, for
// reporting only: the registry does not own the MuxerCore's lifecycle.
type Session struct {
	ID        uuid.UUID
	Path      string
	StartedAt time.Time
}

// Registry manages the set of currently-running muxer sessions.
type Registry struct {
	log *slog.Logger

	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
}

// New creates a Registry. If log is nil, slog.Default() is used.
func New(log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		log:      log.With("component", "muxer-registry"),
		sessions: make(map[uuid.UUID]*Session),
	}
}

// Add registers a new session for the given output path.
func (r *Registry) Add(id uuid.UUID, path string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := &Session{
		ID:        id,
		Path:      path,
		StartedAt: time.Now(),
	}
	r.sessions[id] = s
	r.log.Info("muxer session registered", "id", id, "path", path)
	return s
}

// Remove unregisters a session by id.
func (r *Registry) Remove(id uuid.UUID) {
	r.mu.Lock()
	_, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	if ok {
		r.log.Info("muxer session removed", "id", id)
	}
}

// List returns all currently registered sessions.
func (r *Registry) List() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	return sessions
}
