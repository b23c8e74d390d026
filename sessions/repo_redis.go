package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var redisSessionPrefix = "session/"
var redisStatePrefix = "state/"

// markTerminalRetries bounds the optimistic-transaction retry loop. A
// racing writer flips the session terminal on its first attempt, so the
// loser re-reads and lands on ErrNotPending well within this cap.
const markTerminalRetries = 5

var _ Repo = (*RedisRepo)(nil)

// RedisRepo stores sessions in Redis with the flow deadline enforced as
// native key TTL. Works with any number of service instances sharing
// one Redis.
type RedisRepo struct {
	client *redis.Client
}

// NewRedisRepo connects to the Redis at redisURL and verifies the
// connection before returning.
func NewRedisRepo(redisURL string) (*RedisRepo, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opt)
	// check redis connection
	_, err = rdb.Ping(context.Background()).Result()
	if err != nil {
		return nil, err
	}
	return &RedisRepo{client: rdb}, nil
}

func redisSessionKey(sessionID string) string {
	return redisSessionPrefix + sessionID
}

func redisStateKey(state string) string {
	return redisStatePrefix + state
}

// Create stores a new pending session and its state lookup entry, both
// expiring at the session deadline.
func (r *RedisRepo) Create(ctx context.Context, session *Session) error {
	if session == nil {
		return errors.New("session cannot be nil")
	}
	if session.ID == "" {
		return errors.New("session ID cannot be empty")
	}
	if session.State == "" {
		return errors.New("session state cannot be empty")
	}

	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("[RedisRepo Create] session %s expires in the past", session.ID)
	}

	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("[RedisRepo Create] failed to marshal session: %w", err)
	}

	created, err := r.client.SetNX(ctx, redisSessionKey(session.ID), payload, ttl).Result()
	if err != nil {
		return fmt.Errorf("[RedisRepo Create] failed to store session: %w", err)
	}
	if !created {
		return ErrDuplicateID
	}

	// The state entry shares the session TTL; once either key expires
	// the flow is unrecoverable anyway.
	if err := r.client.Set(ctx, redisStateKey(session.State), session.ID, ttl).Err(); err != nil {
		return fmt.Errorf("[RedisRepo Create] failed to store state lookup: %w", err)
	}
	return nil
}

// Get retrieves a session by ID.
func (r *RedisRepo) Get(ctx context.Context, sessionID string) (*Session, error) {
	if sessionID == "" {
		return nil, errors.New("session ID cannot be empty")
	}

	data, err := r.client.Get(ctx, redisSessionKey(sessionID)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("[RedisRepo Get] failed to read session: %w", err)
	}

	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("[RedisRepo Get] failed to unmarshal session: %w", err)
	}
	if session.Expired(time.Now().UTC()) {
		return nil, ErrNotFound
	}
	return &session, nil
}

// GetByState resolves a session through the state lookup entry.
func (r *RedisRepo) GetByState(ctx context.Context, state string) (*Session, error) {
	if state == "" {
		return nil, errors.New("state cannot be empty")
	}

	sessionID, err := r.client.Get(ctx, redisStateKey(state)).Result()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("[RedisRepo GetByState] failed to read state lookup: %w", err)
	}
	return r.Get(ctx, sessionID)
}

// MarkCompleted transitions a pending session to completed.
func (r *RedisRepo) MarkCompleted(ctx context.Context, sessionID string, tokens *TokenBundle) error {
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
func (r *RedisRepo) MarkFailed(ctx context.Context, sessionID string, message string) error {
	return r.markTerminal(ctx, sessionID, func(s *Session) {
		s.Status = StatusFailed
		s.ErrorMessage = message
	})
}

// markTerminal runs the pending-only guard as an optimistic WATCH
// transaction: read under WATCH, check the status, write back with the
// TTL preserved. A concurrent write to the key aborts the transaction
// and the loop re-reads, so exactly one caller wins the transition.
func (r *RedisRepo) markTerminal(ctx context.Context, sessionID string, mutate func(*Session)) error {
	if sessionID == "" {
		return errors.New("session ID cannot be empty")
	}

	key := redisSessionKey(sessionID)
	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err == redis.Nil {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("[RedisRepo markTerminal] failed to read session: %w", err)
		}

		var session Session
		if err := json.Unmarshal(data, &session); err != nil {
			return fmt.Errorf("[RedisRepo markTerminal] failed to unmarshal session: %w", err)
		}
		if session.Expired(time.Now().UTC()) {
			return ErrNotFound
		}
		if session.Status != StatusPending {
			return ErrNotPending
		}

		mutate(&session)
		payload, err := json.Marshal(&session)
		if err != nil {
			return fmt.Errorf("[RedisRepo markTerminal] failed to marshal session: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			// KeepTTL so the terminal transition never extends the
			// flow deadline.
			pipe.Set(ctx, key, payload, redis.KeepTTL)
			return nil
		})
		return err
	}

	for i := 0; i < markTerminalRetries; i++ {
		err := r.client.Watch(ctx, txf, key)
		if err == redis.TxFailedErr {
			continue
		}
		return err
	}
	return fmt.Errorf("[RedisRepo markTerminal] transaction contention on session %s", sessionID)
}

// DeleteExpired is a no-op: Redis reaps expired keys natively.
func (r *RedisRepo) DeleteExpired(_ context.Context, _ time.Time) error {
	return nil
}

// Ping reports whether Redis is reachable.
func (r *RedisRepo) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close releases the Redis client.
func (r *RedisRepo) Close() error {
	return r.client.Close()
}
