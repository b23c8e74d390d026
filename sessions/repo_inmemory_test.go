package sessions_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dovidio/colino-backend/sessions"
	"github.com/stretchr/testify/require"
)

func newPendingSession(t *testing.T) *sessions.Session {
	t.Helper()
	session, err := sessions.New(10 * time.Minute)
	require.NoError(t, err)
	return session
}

func newExpiredSession(t *testing.T) *sessions.Session {
	t.Helper()
	session := newPendingSession(t)
	session.CreatedAt = time.Now().UTC().Add(-20 * time.Minute)
	session.ExpiresAt = time.Now().UTC().Add(-10 * time.Minute)
	return session
}

func testTokens() *sessions.TokenBundle {
	return &sessions.TokenBundle{
		AccessToken:  "ya29.access",
		RefreshToken: "1//refresh",
		TokenType:    "Bearer",
		ExpiresIn:    3599,
		ExpiresAt:    time.Now().Add(time.Hour).Unix(),
		Scope:        "https://www.googleapis.com/auth/youtube.readonly",
	}
}

func TestInMemoryRepo_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	repo := sessions.NewInMemoryRepo()

	t.Run("roundtrip", func(t *testing.T) {
		session := newPendingSession(t)
		require.NoError(t, repo.Create(ctx, session))

		got, err := repo.Get(ctx, session.ID)
		require.NoError(t, err)
		require.Equal(t, session.ID, got.ID)
		require.Equal(t, session.State, got.State)
		require.Equal(t, sessions.StatusPending, got.Status)
	})

	t.Run("duplicate ID", func(t *testing.T) {
		session := newPendingSession(t)
		require.NoError(t, repo.Create(ctx, session))
		require.ErrorIs(t, repo.Create(ctx, session), sessions.ErrDuplicateID)
	})

	t.Run("unknown ID", func(t *testing.T) {
		_, err := repo.Get(ctx, "nonexistent")
		require.ErrorIs(t, err, sessions.ErrNotFound)
	})

	t.Run("expired session reads as not found", func(t *testing.T) {
		session := newExpiredSession(t)
		require.NoError(t, repo.Create(ctx, session))

		_, err := repo.Get(ctx, session.ID)
		require.ErrorIs(t, err, sessions.ErrNotFound)
	})

	t.Run("returned session is a copy", func(t *testing.T) {
		session := newPendingSession(t)
		require.NoError(t, repo.Create(ctx, session))

		got, err := repo.Get(ctx, session.ID)
		require.NoError(t, err)
		got.Status = sessions.StatusFailed

		again, err := repo.Get(ctx, session.ID)
		require.NoError(t, err)
		require.Equal(t, sessions.StatusPending, again.Status)
	})
}

func TestInMemoryRepo_GetByState(t *testing.T) {
	ctx := context.Background()
	repo := sessions.NewInMemoryRepo()

	t.Run("resolves session", func(t *testing.T) {
		session := newPendingSession(t)
		require.NoError(t, repo.Create(ctx, session))

		got, err := repo.GetByState(ctx, session.State)
		require.NoError(t, err)
		require.Equal(t, session.ID, got.ID)
	})

	t.Run("unknown state", func(t *testing.T) {
		_, err := repo.GetByState(ctx, "nonexistent")
		require.ErrorIs(t, err, sessions.ErrNotFound)
	})

	t.Run("expired session reads as not found", func(t *testing.T) {
		session := newExpiredSession(t)
		require.NoError(t, repo.Create(ctx, session))

		_, err := repo.GetByState(ctx, session.State)
		require.ErrorIs(t, err, sessions.ErrNotFound)
	})
}

func TestInMemoryRepo_MarkCompleted(t *testing.T) {
	ctx := context.Background()
	repo := sessions.NewInMemoryRepo()

	t.Run("attaches tokens", func(t *testing.T) {
		session := newPendingSession(t)
		require.NoError(t, repo.Create(ctx, session))

		require.NoError(t, repo.MarkCompleted(ctx, session.ID, testTokens()))

		got, err := repo.Get(ctx, session.ID)
		require.NoError(t, err)
		require.Equal(t, sessions.StatusCompleted, got.Status)
		require.NotNil(t, got.Tokens)
		require.Equal(t, "ya29.access", got.Tokens.AccessToken)
	})

	t.Run("second transition is rejected", func(t *testing.T) {
		session := newPendingSession(t)
		require.NoError(t, repo.Create(ctx, session))

		require.NoError(t, repo.MarkCompleted(ctx, session.ID, testTokens()))
		require.ErrorIs(t, repo.MarkCompleted(ctx, session.ID, testTokens()), sessions.ErrNotPending)
		require.ErrorIs(t, repo.MarkFailed(ctx, session.ID, "late failure"), sessions.ErrNotPending)
	})

	t.Run("unknown session", func(t *testing.T) {
		require.ErrorIs(t, repo.MarkCompleted(ctx, "nonexistent", testTokens()), sessions.ErrNotFound)
	})

	t.Run("expired session", func(t *testing.T) {
		session := newExpiredSession(t)
		require.NoError(t, repo.Create(ctx, session))

		require.ErrorIs(t, repo.MarkCompleted(ctx, session.ID, testTokens()), sessions.ErrNotFound)
	})

	t.Run("deadline is not extended", func(t *testing.T) {
		session := newPendingSession(t)
		require.NoError(t, repo.Create(ctx, session))

		require.NoError(t, repo.MarkCompleted(ctx, session.ID, testTokens()))

		got, err := repo.Get(ctx, session.ID)
		require.NoError(t, err)
		require.Equal(t, session.ExpiresAt.Unix(), got.ExpiresAt.Unix())
	})
}

func TestInMemoryRepo_MarkFailed(t *testing.T) {
	ctx := context.Background()
	repo := sessions.NewInMemoryRepo()

	session := newPendingSession(t)
	require.NoError(t, repo.Create(ctx, session))

	require.NoError(t, repo.MarkFailed(ctx, session.ID, "access_denied: user declined"))

	got, err := repo.Get(ctx, session.ID)
	require.NoError(t, err)
	require.Equal(t, sessions.StatusFailed, got.Status)
	require.Equal(t, "access_denied: user declined", got.ErrorMessage)
	require.Nil(t, got.Tokens)
}

func TestInMemoryRepo_ConcurrentTransitions(t *testing.T) {
	ctx := context.Background()
	repo := sessions.NewInMemoryRepo()

	session := newPendingSession(t)
	require.NoError(t, repo.Create(ctx, session))

	const racers = 16
	results := make(chan error, racers)
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- repo.MarkCompleted(ctx, session.ID, testTokens())
		}()
	}
	wg.Wait()
	close(results)

	var wins, noops int
	for err := range results {
		switch {
		case err == nil:
			wins++
		case err == sessions.ErrNotPending:
			noops++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	require.Equal(t, 1, wins)
	require.Equal(t, racers-1, noops)
}

func TestInMemoryRepo_DeleteExpired(t *testing.T) {
	ctx := context.Background()
	repo := sessions.NewInMemoryRepo()

	live := newPendingSession(t)
	expired := newExpiredSession(t)
	require.NoError(t, repo.Create(ctx, live))
	require.NoError(t, repo.Create(ctx, expired))

	require.NoError(t, repo.DeleteExpired(ctx, time.Now().UTC()))

	_, err := repo.Get(ctx, live.ID)
	require.NoError(t, err)

	_, err = repo.Get(ctx, expired.ID)
	require.ErrorIs(t, err, sessions.ErrNotFound)
	_, err = repo.GetByState(ctx, expired.State)
	require.ErrorIs(t, err, sessions.ErrNotFound)
}
