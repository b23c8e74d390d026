package sessions

import (
	"context"
	"errors"
	"sync"
	"time"
)

var _ Repo = (*InMemoryRepo)(nil)

// InMemoryRepo is a thread-safe in-memory implementation of Repo.
// Suitable for tests and single-instance deployments; sessions do not
// survive a restart.
type InMemoryRepo struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	states   map[string]string // state token -> session ID
}

// NewInMemoryRepo creates a new in-memory session repository.
func NewInMemoryRepo() *InMemoryRepo {
	return &InMemoryRepo{
		sessions: make(map[string]*Session),
		states:   make(map[string]string),
	}
}

// Create stores a new pending session and indexes its state token.
func (r *InMemoryRepo) Create(_ context.Context, session *Session) error {
	if session == nil {
		return errors.New("session cannot be nil")
	}
	if session.ID == "" {
		return errors.New("session ID cannot be empty")
	}
	if session.State == "" {
		return errors.New("session state cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[session.ID]; exists {
		return ErrDuplicateID
	}

	// Store a copy to prevent external modifications
	r.sessions[session.ID] = session.Clone()
	r.states[session.State] = session.ID
	return nil
}

// Get retrieves a session by ID.
func (r *InMemoryRepo) Get(_ context.Context, sessionID string) (*Session, error) {
	if sessionID == "" {
		return nil, errors.New("session ID cannot be empty")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	session, exists := r.sessions[sessionID]
	if !exists || session.Expired(time.Now().UTC()) {
		return nil, ErrNotFound
	}

	// Return a copy to prevent external modifications
	return session.Clone(), nil
}

// GetByState resolves a session through the state index.
func (r *InMemoryRepo) GetByState(_ context.Context, state string) (*Session, error) {
	if state == "" {
		return nil, errors.New("state cannot be empty")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	sessionID, exists := r.states[state]
	if !exists {
		return nil, ErrNotFound
	}

	session, exists := r.sessions[sessionID]
	if !exists || session.Expired(time.Now().UTC()) {
		return nil, ErrNotFound
	}

	return session.Clone(), nil
}

// MarkCompleted transitions a pending session to completed.
func (r *InMemoryRepo) MarkCompleted(ctx context.Context, sessionID string, tokens *TokenBundle) error {
	if tokens == nil {
		return errors.New("tokens cannot be nil")
	}
	return r.markTerminal(ctx, sessionID, func(s *Session) {
		s.Status = StatusCompleted
		bundle := *tokens
		s.Tokens = &bundle
	})
}

// MarkFailed transitions a pending session to failed.
func (r *InMemoryRepo) MarkFailed(ctx context.Context, sessionID string, message string) error {
	return r.markTerminal(ctx, sessionID, func(s *Session) {
		s.Status = StatusFailed
		s.ErrorMessage = message
	})
}

func (r *InMemoryRepo) markTerminal(_ context.Context, sessionID string, mutate func(*Session)) error {
	if sessionID == "" {
		return errors.New("session ID cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	session, exists := r.sessions[sessionID]
	if !exists || session.Expired(time.Now().UTC()) {
		return ErrNotFound
	}
	if session.Status != StatusPending {
		return ErrNotPending
	}

	// Mutate in place; ExpiresAt is left untouched so a terminal
	// transition never extends the flow deadline.
	mutate(session)
	return nil
}

// DeleteExpired sweeps sessions whose deadline has passed.
func (r *InMemoryRepo) DeleteExpired(_ context.Context, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, session := range r.sessions {
		if !now.Before(session.ExpiresAt) {
			delete(r.states, session.State)
			delete(r.sessions, id)
		}
	}
	return nil
}

// Ping always succeeds for the in-memory store.
func (r *InMemoryRepo) Ping(_ context.Context) error {
	return nil
}

// Close is a no-op for the in-memory store.
func (r *InMemoryRepo) Close() error {
	return nil
}
