package sessions

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisRepoBasics(t *testing.T) {
	t.Skip("live test, need redis running locally")
	assert := assert.New(t)
	ctx := context.Background()

	repo, err := NewRedisRepo("redis://localhost:6379/0")
	require.NoError(t, err)
	defer repo.Close()

	session, err := New(time.Minute)
	require.NoError(t, err)

	assert.NoError(repo.Create(ctx, session))
	assert.ErrorIs(repo.Create(ctx, session), ErrDuplicateID)

	got, err := repo.Get(ctx, session.ID)
	assert.NoError(err)
	assert.Equal(session.ID, got.ID)
	assert.Equal(StatusPending, got.Status)

	byState, err := repo.GetByState(ctx, session.State)
	assert.NoError(err)
	assert.Equal(session.ID, byState.ID)

	tokens := &TokenBundle{
		AccessToken:  "ya29.access",
		RefreshToken: "1//refresh",
		TokenType:    "Bearer",
		ExpiresIn:    3599,
		ExpiresAt:    time.Now().Add(time.Hour).Unix(),
	}
	assert.NoError(repo.MarkCompleted(ctx, session.ID, tokens))
	assert.ErrorIs(repo.MarkCompleted(ctx, session.ID, tokens), ErrNotPending)
	assert.ErrorIs(repo.MarkFailed(ctx, session.ID, "late"), ErrNotPending)

	completed, err := repo.Get(ctx, session.ID)
	assert.NoError(err)
	assert.Equal(StatusCompleted, completed.Status)
	assert.NotNil(completed.Tokens)

	_, err = repo.Get(ctx, "nonexistent")
	assert.ErrorIs(err, ErrNotFound)
}

func TestRedisRepoExpiry(t *testing.T) {
	t.Skip("live test, need redis running locally")
	assert := assert.New(t)
	ctx := context.Background()

	repo, err := NewRedisRepo("redis://localhost:6379/0")
	require.NoError(t, err)
	defer repo.Close()

	session, err := New(2 * time.Second)
	require.NoError(t, err)
	assert.NoError(repo.Create(ctx, session))

	time.Sleep(3 * time.Second)

	_, err = repo.Get(ctx, session.ID)
	assert.ErrorIs(err, ErrNotFound)
	_, err = repo.GetByState(ctx, session.State)
	assert.ErrorIs(err, ErrNotFound)
	assert.ErrorIs(repo.MarkFailed(ctx, session.ID, "too late"), ErrNotFound)
}
