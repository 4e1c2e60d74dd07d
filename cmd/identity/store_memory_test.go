package identity

import (
	"context"
	"testing"
	"time"

	"github.com/haontuhcmut/chat-app/cmd/identity/ids"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_CreateAndLookup(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemoryStore(cheapParams())

	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	u, err := s.CreateUser(ctx, CreateUserInput{
		Email:     "Alice@Example.com",
		Username:  "Alice",
		FirstName: "Alice",
		Password:  "very-strong-password",
		Now:       now,
	})
	require.NoError(t, err)
	assert.True(t, ids.ValidUserID(u.ID))
	assert.Equal(t, RoleUser, u.Role)
	assert.Equal(t, now, u.CreatedAt)

	got, err := s.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, u, got)

	for _, login := range []string{"alice", "ALICE", "alice@example.com", " Alice@EXAMPLE.com "} {
		ua, err := s.GetUserAuthByLogin(ctx, login)
		require.NoError(t, err, login)
		assert.Equal(t, u.ID, ua.User.ID)

		ok, err := VerifyPassword("very-strong-password", ua.PasswordHash)
		require.NoError(t, err)
		assert.True(t, ok)
	}

	_, err = s.GetUserAuthByLogin(ctx, "bob")
	assert.True(t, IsNotFound(err))
	_, err = s.GetUserByID(ctx, ids.NewUserID())
	assert.True(t, IsNotFound(err))
}

func TestMemoryStore_CreateUser_Conflicts(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemoryStore(cheapParams())

	_, err := s.CreateUser(ctx, CreateUserInput{Email: "a@example.com", Username: "alice", Password: "very-strong-password"})
	require.NoError(t, err)

	_, err = s.CreateUser(ctx, CreateUserInput{Email: "b@example.com", Username: "ALICE", Password: "very-strong-password"})
	field, ok := IsConflict(err)
	require.True(t, ok, "err=%v", err)
	assert.Equal(t, "username", field)

	_, err = s.CreateUser(ctx, CreateUserInput{Email: "A@Example.com", Username: "bob", Password: "very-strong-password"})
	field, ok = IsConflict(err)
	require.True(t, ok, "err=%v", err)
	assert.Equal(t, "email", field)
}

func TestMemoryStore_CreateUser_InvalidInput(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemoryStore(cheapParams())

	tests := []CreateUserInput{
		{Email: "not-an-email", Username: "alice", Password: "very-strong-password"},
		{Email: "a@example.com", Username: "", Password: "very-strong-password"},
		{Email: "a@example.com", Username: "al@ice", Password: "very-strong-password"},
		{Email: "a@example.com", Username: "alice", Password: "short"},
	}
	for _, in := range tests {
		_, err := s.CreateUser(ctx, in)
		assert.True(t, IsInvalidInput(err), "input=%+v err=%v", in, err)
	}
}

func TestMemoryStore_RefreshPointer(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemoryStore(cheapParams())

	u, err := s.CreateUser(ctx, CreateUserInput{Email: "a@example.com", Username: "alice", Password: "very-strong-password"})
	require.NoError(t, err)

	_, ok, err := s.RefreshJTI(ctx, u.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetRefreshJTI(ctx, u.ID, "jti-1"))
	require.NoError(t, s.SetRefreshJTI(ctx, u.ID, "jti-2"))
	jti, ok, err := s.RefreshJTI(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "jti-2", jti)

	require.NoError(t, s.SetRefreshJTI(ctx, u.ID, ""))
	_, ok, err = s.RefreshJTI(ctx, u.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.True(t, IsNotFound(s.SetRefreshJTI(ctx, "missing", "x")))
}

func TestMemoryStore_ClearRefreshJTI_OnlyWhenCurrent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemoryStore(cheapParams())

	u, err := s.CreateUser(ctx, CreateUserInput{Email: "a@example.com", Username: "alice", Password: "very-strong-password"})
	require.NoError(t, err)
	require.NoError(t, s.SetRefreshJTI(ctx, u.ID, "jti-2"))

	cleared, err := s.ClearRefreshJTI(ctx, u.ID, "jti-1")
	require.NoError(t, err)
	assert.False(t, cleared)
	jti, ok, err := s.RefreshJTI(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "jti-2", jti)

	cleared, err = s.ClearRefreshJTI(ctx, u.ID, "jti-2")
	require.NoError(t, err)
	assert.True(t, cleared)
	_, ok, err = s.RefreshJTI(ctx, u.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.ClearRefreshJTI(ctx, "missing", "x")
	assert.True(t, IsNotFound(err))
}
