package sessions

import (
	"context"
	"time"
)

// Repo defines the interface for session storage operations. Every
// handler invocation goes through the store; nothing about a flow is
// cached in process, so any backend instance can serve any step of the
// flow.
//
// MarkCompleted and MarkFailed are conditional writes guarded on the
// session still being pending. The guard makes the terminal transition
// happen exactly once under concurrent callbacks: the loser observes
// ErrNotPending and treats it as a no-op. Neither call moves the
// session's expiry.
type Repo interface {
	// Create stores a new pending session together with its state
	// lookup entry. Returns ErrDuplicateID if the ID is already taken.
	Create(ctx context.Context, session *Session) error

	// Get retrieves a session by ID. Expired sessions are reported as
	// ErrNotFound whether or not the backend reaped them.
	Get(ctx context.Context, sessionID string) (*Session, error)

	// GetByState resolves the session that issued the given state
	// token. Used by the provider callback, which only carries state.
	GetByState(ctx context.Context, state string) (*Session, error)

	// MarkCompleted transitions a pending session to completed and
	// attaches the token bundle. Returns ErrNotPending when the
	// session is already terminal.
	MarkCompleted(ctx context.Context, sessionID string, tokens *TokenBundle) error

	// MarkFailed transitions a pending session to failed with a
	// human-readable reason. Returns ErrNotPending when the session is
	// already terminal.
	MarkFailed(ctx context.Context, sessionID string, message string) error

	// DeleteExpired removes sessions whose deadline is at or before
	// now. Backends with native key expiry may make this a no-op.
	DeleteExpired(ctx context.Context, now time.Time) error

	// Ping reports whether the backing store is reachable.
	Ping(ctx context.Context) error

	// Close releases any underlying connections.
	Close() error
}
