package fakesessionrepo

import (
	"context"
	"sync"
	"time"

	"github.com/dovidio/colino-backend/sessions"
)

var _ sessions.Repo = (*FakeSessionRepo)(nil)

// FakeSessionRepo is a map-backed test double for sessions.Repo. The
// error fields, when set, override the corresponding operation so tests
// can exercise store-failure paths.
type FakeSessionRepo struct {
	lock     sync.RWMutex
	sessions map[string]*sessions.Session
	states   map[string]string // state token -> session ID

	CreateErr error
	GetErr    error
	MarkErr   error
	PingErr   error
}

func NewFakeSessionRepo() *FakeSessionRepo {
	return &FakeSessionRepo{
		sessions: make(map[string]*sessions.Session),
		states:   make(map[string]string),
	}
}

// Seed inserts a session without any validation, bypassing CreateErr.
// Useful for arranging expired or terminal sessions in tests.
func (sr *FakeSessionRepo) Seed(session *sessions.Session) {
	sr.lock.Lock()
	defer sr.lock.Unlock()

	sr.sessions[session.ID] = session.Clone()
	sr.states[session.State] = session.ID
}

func (sr *FakeSessionRepo) Create(_ context.Context, session *sessions.Session) error {
	if sr.CreateErr != nil {
		return sr.CreateErr
	}

	sr.lock.Lock()
	defer sr.lock.Unlock()

	if _, ok := sr.sessions[session.ID]; ok {
		return sessions.ErrDuplicateID
	}
	sr.sessions[session.ID] = session.Clone()
	sr.states[session.State] = session.ID
	return nil
}

func (sr *FakeSessionRepo) Get(_ context.Context, sessionID string) (*sessions.Session, error) {
	if sr.GetErr != nil {
		return nil, sr.GetErr
	}

	sr.lock.RLock()
	defer sr.lock.RUnlock()

	session, ok := sr.sessions[sessionID]
	if !ok || session.Expired(time.Now().UTC()) {
		return nil, sessions.ErrNotFound
	}
	return session.Clone(), nil
}

func (sr *FakeSessionRepo) GetByState(_ context.Context, state string) (*sessions.Session, error) {
	if sr.GetErr != nil {
		return nil, sr.GetErr
	}

	sr.lock.RLock()
	defer sr.lock.RUnlock()

	sessionID, ok := sr.states[state]
	if !ok {
		return nil, sessions.ErrNotFound
	}
	session, ok := sr.sessions[sessionID]
	if !ok || session.Expired(time.Now().UTC()) {
		return nil, sessions.ErrNotFound
	}
	return session.Clone(), nil
}

func (sr *FakeSessionRepo) MarkCompleted(_ context.Context, sessionID string, tokens *sessions.TokenBundle) error {
	return sr.markTerminal(sessionID, func(s *sessions.Session) {
		s.Status = sessions.StatusCompleted
		bundle := *tokens
		s.Tokens = &bundle
	})
}

func (sr *FakeSessionRepo) MarkFailed(_ context.Context, sessionID string, message string) error {
	return sr.markTerminal(sessionID, func(s *sessions.Session) {
		s.Status = sessions.StatusFailed
		s.ErrorMessage = message
	})
}

func (sr *FakeSessionRepo) markTerminal(sessionID string, mutate func(*sessions.Session)) error {
	if sr.MarkErr != nil {
		return sr.MarkErr
	}

	sr.lock.Lock()
	defer sr.lock.Unlock()

	session, ok := sr.sessions[sessionID]
	if !ok || session.Expired(time.Now().UTC()) {
		return sessions.ErrNotFound
	}
	if session.Status != sessions.StatusPending {
		return sessions.ErrNotPending
	}
	mutate(session)
	return nil
}

func (sr *FakeSessionRepo) DeleteExpired(_ context.Context, now time.Time) error {
	sr.lock.Lock()
	defer sr.lock.Unlock()

	for id, session := range sr.sessions {
		if !now.Before(session.ExpiresAt) {
			delete(sr.states, session.State)
			delete(sr.sessions, id)
		}
	}
	return nil
}

func (sr *FakeSessionRepo) Ping(_ context.Context) error {
	return sr.PingErr
}

func (sr *FakeSessionRepo) Close() error {
	return nil
}
