package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/mailmerge/mailmerge/internal/model"
)

// SessionStore keeps one Session per chat user
type SessionStore interface {
	// Get returns ErrNotFound when the user has no session
	Get(ctx context.Context, userID int64) (*model.Session, error)
	// Save creates or replaces the user's session
	Save(ctx context.Context, session *model.Session) error
	// Delete removes the user's session; deleting a missing session is not an error
	Delete(ctx context.Context, userID int64) error
	// List returns every stored session ordered by user ID
	List(ctx context.Context) ([]*model.Session, error)
}

// MemorySessionStore keeps sessions in process memory
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[int64]model.Session
}

// NewMemorySessionStore creates a new MemorySessionStore
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[int64]model.Session)}
}

// Get returns a copy of the stored session
func (r *MemorySessionStore) Get(_ context.Context, userID int64) (*model.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return &s, nil
}

// Save stores a copy of session
func (r *MemorySessionStore) Save(_ context.Context, session *model.Session) error {
	if session == nil || session.UserID == 0 {
		return ErrInvalidInput
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions[session.UserID] = *session
	return nil
}

// Delete removes the user's session
func (r *MemorySessionStore) Delete(_ context.Context, userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, userID)
	return nil
}

// List returns copies of all sessions
func (r *MemorySessionStore) List(_ context.Context) ([]*model.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*model.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		s := s
		out = append(out, &s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}
