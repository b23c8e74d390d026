package sessions

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// stateTokenBytes is the entropy of the anti-forgery state parameter.
// 32 bytes encodes to a 43-character URL-safe token.
const stateTokenBytes = 32

// Status tracks where a session is in the authorization flow.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// TokenBundle holds the provider tokens captured when a flow completes.
// ExpiresAt is the absolute access-token expiry as a unix timestamp,
// derived from ExpiresIn at exchange time so disconnected clients do not
// need a synchronized clock with the service.
type TokenBundle struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at"`
	Scope        string `json:"scope,omitempty"`
}

// Session tracks a single authorization-code flow between the initiate
// call and the final poll. Sessions are short-lived (minutes) and never
// outlive ExpiresAt; the store is the only coordination point between
// the handler that creates a session, the provider callback that
// completes it, and the client polling for the outcome.
type Session struct {
	ID           string       `json:"id"`                      // Opaque identifier the client polls with (UUID)
	State        string       `json:"state"`                   // Anti-forgery token round-tripped through the provider
	Status       Status       `json:"status"`                  // pending until the callback lands, then completed or failed
	Tokens       *TokenBundle `json:"tokens,omitempty"`        // Set only when Status == completed
	ErrorMessage string       `json:"error_message,omitempty"` // Set only when Status == failed
	CreatedAt    time.Time    `json:"created_at"`
	ExpiresAt    time.Time    `json:"expires_at"` // Absolute flow deadline; past this the session is gone
}

// New creates a pending session with a fresh identifier and state token,
// expiring ttl from now.
func New(ttl time.Duration) (*Session, error) {
	state, err := generateRandomString(stateTokenBytes)
	if err != nil {
		return nil, fmt.Errorf("[sessions New] failed to generate state token: %w", err)
	}

	now := time.Now().UTC()
	return &Session{
		ID:        uuid.NewString(),
		State:     state,
		Status:    StatusPending,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}, nil
}

// Expired reports whether the flow deadline has been reached. Readers
// treat an expired session as not found even when the backing store has
// not reaped the record yet.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Terminal reports whether the session has reached a final status.
func (s *Session) Terminal() bool {
	return s.Status == StatusCompleted || s.Status == StatusFailed
}

// Clone returns a deep copy so stored sessions cannot be mutated through
// a returned pointer.
func (s *Session) Clone() *Session {
	clone := *s
	if s.Tokens != nil {
		tokens := *s.Tokens
		clone.Tokens = &tokens
	}
	return &clone
}

// generateRandomString returns a URL-safe token with length bytes of
// cryptographic randomness.
func generateRandomString(length int) (string, error) {
	randomBytes := make([]byte, length)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", fmt.Errorf("[generateRandomString] rand.Read: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(randomBytes), nil
}
