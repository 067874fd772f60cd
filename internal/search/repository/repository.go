package repository

import (
	"sync"
	"time"

	"fractionax_search/internal/pipeline"

	"github.com/google/uuid"
)

// Repository keeps live sessions in memory. Sessions hold timers and
// in-flight requests, so they are never serialized.
type Repository struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*pipeline.Session
}

func New() *Repository {
	return &Repository{sessions: make(map[uuid.UUID]*pipeline.Session)}
}

func (r *Repository) Save(s *pipeline.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID()] = s
}

func (r *Repository) Get(id uuid.UUID) (*pipeline.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Delete removes and returns the session.
func (r *Repository) Delete(id uuid.UUID) (*pipeline.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	return s, ok
}

// RemoveIdle removes and returns sessions last active before cutoff.
func (r *Repository) RemoveIdle(cutoff time.Time) []*pipeline.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	var idle []*pipeline.Session
	for id, s := range r.sessions {
		if s.LastActive().Before(cutoff) {
			idle = append(idle, s)
			delete(r.sessions, id)
		}
	}
	return idle
}

// RemoveAll empties the repository.
func (r *Repository) RemoveAll() []*pipeline.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := make([]*pipeline.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		all = append(all, s)
	}
	r.sessions = make(map[uuid.UUID]*pipeline.Session)
	return all
}

func (r *Repository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
