// Package storagetest содержит общий набор проверок контракта хранилища
// пользователей. Каждая реализация хранилища прогоняет его в своих тестах.
package storagetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/account-service/internal/models"
)

// Store контракт хранилища пользователей.
type Store interface {
	Create(ctx context.Context, user *models.User) error
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	FindByVerificationToken(ctx context.Context, token string) (*models.User, error)
	FindByResetToken(ctx context.Context, token string) (*models.User, error)
	Update(ctx context.Context, user *models.User) error
	Ping(ctx context.Context) error
}

// NewUser возвращает неподтверждённого пользователя с токеном подтверждения.
func NewUser(username, email string) *models.User {
	tok := uuid.NewString()
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &models.User{
		ID:                uuid.NewString(),
		Username:          username,
		Email:             email,
		PasswordHash:      "$argon2id$v=19$m=1024,t=1,p=1$c2FsdHNhbHQ$a2V5a2V5a2V5",
		VerificationToken: &tok,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// Run прогоняет все проверки. newStore должен возвращать пустое хранилище.
func Run(t *testing.T, newStore func(t *testing.T) Store) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(t *testing.T, s Store)
	}{
		{"create and get", testCreateAndGet},
		{"duplicate username", testDuplicateUsername},
		{"duplicate email", testDuplicateEmail},
		{"not found", testNotFound},
		{"verification token lifecycle", testVerificationToken},
		{"reset token lifecycle", testResetToken},
		{"stale version", testStaleVersion},
		{"update missing record", testUpdateMissing},
		{"concurrent updates", testConcurrentUpdates},
		{"ping", testPing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, newStore(t))
		})
	}
}

func testCreateAndGet(t *testing.T, s Store) {
	ctx := context.Background()
	user := NewUser("alice", "alice@example.com")

	require.NoError(t, s.Create(ctx, user))
	assert.Equal(t, int64(1), user.Version)

	byName, err := s.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, user.ID, byName.ID)
	assert.Equal(t, "alice@example.com", byName.Email)
	assert.Equal(t, user.PasswordHash, byName.PasswordHash)
	assert.False(t, byName.IsEmailVerified)
	require.NotNil(t, byName.VerificationToken)
	assert.Equal(t, *user.VerificationToken, *byName.VerificationToken)
	assert.Nil(t, byName.ResetToken)
	assert.Equal(t, int64(1), byName.Version)
	assert.WithinDuration(t, user.CreatedAt, byName.CreatedAt, time.Millisecond)

	byEmail, err := s.GetByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, "alice", byEmail.Username)
}

func testDuplicateUsername(t *testing.T, s Store) {
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, NewUser("alice", "alice@example.com")))

	err := s.Create(ctx, NewUser("alice", "other@example.com"))
	assert.ErrorIs(t, err, models.ErrConflict)

	_, err = s.GetByEmail(ctx, "other@example.com")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func testDuplicateEmail(t *testing.T, s Store) {
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, NewUser("alice", "alice@example.com")))

	err := s.Create(ctx, NewUser("bob", "alice@example.com"))
	assert.ErrorIs(t, err, models.ErrConflict)

	_, err = s.GetByUsername(ctx, "bob")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func testNotFound(t *testing.T, s Store) {
	ctx := context.Background()

	_, err := s.GetByUsername(ctx, "ghost")
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, err = s.GetByEmail(ctx, "ghost@example.com")
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, err = s.FindByVerificationToken(ctx, "nope")
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, err = s.FindByResetToken(ctx, "nope")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func testVerificationToken(t *testing.T, s Store) {
	ctx := context.Background()
	user := NewUser("alice", "alice@example.com")
	tok := *user.VerificationToken
	require.NoError(t, s.Create(ctx, user))

	found, err := s.FindByVerificationToken(ctx, tok)
	require.NoError(t, err)
	assert.Equal(t, "alice", found.Username)

	updatedAt := user.CreatedAt.Add(time.Hour)
	found.IsEmailVerified = true
	found.VerificationToken = nil
	found.UpdatedAt = updatedAt
	require.NoError(t, s.Update(ctx, found))
	assert.True(t, found.UpdatedAt.Equal(updatedAt))
	assert.Equal(t, int64(2), found.Version)

	_, err = s.FindByVerificationToken(ctx, tok)
	assert.ErrorIs(t, err, models.ErrNotFound)

	stored, err := s.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, stored.IsEmailVerified)
	assert.Nil(t, stored.VerificationToken)
	assert.Equal(t, int64(2), stored.Version)
	assert.True(t, stored.UpdatedAt.Equal(updatedAt), "stored %v, want %v", stored.UpdatedAt, updatedAt)
}

func testResetToken(t *testing.T, s Store) {
	ctx := context.Background()
	user := NewUser("alice", "alice@example.com")
	require.NoError(t, s.Create(ctx, user))

	first := uuid.NewString()
	expires := time.Now().UTC().Add(time.Hour).Truncate(time.Millisecond)
	user.ResetToken = &first
	user.ResetTokenExpiresAt = &expires
	require.NoError(t, s.Update(ctx, user))

	found, err := s.FindByResetToken(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, "alice", found.Username)
	require.NotNil(t, found.ResetTokenExpiresAt)
	assert.WithinDuration(t, expires, *found.ResetTokenExpiresAt, time.Millisecond)

	// токен сброса и токен подтверждения живут в разных пространствах
	_, err = s.FindByVerificationToken(ctx, first)
	assert.ErrorIs(t, err, models.ErrNotFound)

	second := uuid.NewString()
	found.ResetToken = &second
	require.NoError(t, s.Update(ctx, found))

	_, err = s.FindByResetToken(ctx, first)
	assert.ErrorIs(t, err, models.ErrNotFound)
	again, err := s.FindByResetToken(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, "alice", again.Username)
}

func testStaleVersion(t *testing.T, s Store) {
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, NewUser("alice", "alice@example.com")))

	a, err := s.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	b, err := s.GetByUsername(ctx, "alice")
	require.NoError(t, err)

	a.IsEmailVerified = true
	a.VerificationToken = nil
	require.NoError(t, s.Update(ctx, a))

	b.PasswordHash = "changed"
	err = s.Update(ctx, b)
	assert.ErrorIs(t, err, models.ErrVersionConflict)
	assert.Equal(t, int64(1), b.Version)

	stored, err := s.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.NotEqual(t, "changed", stored.PasswordHash)
}

func testUpdateMissing(t *testing.T, s Store) {
	user := NewUser("ghost", "ghost@example.com")
	user.Version = 1
	err := s.Update(context.Background(), user)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func testConcurrentUpdates(t *testing.T, s Store) {
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, NewUser("alice", "alice@example.com")))

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for range workers {
		u, err := s.GetByUsername(ctx, "alice")
		require.NoError(t, err)
		wg.Add(1)
		go func(u *models.User) {
			defer wg.Done()
			u.IsEmailVerified = true
			u.VerificationToken = nil
			err := s.Update(ctx, u)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case assert.ErrorIs(t, err, models.ErrVersionConflict):
				conflicts++
			}
		}(u)
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, workers-1, conflicts)
}

func testPing(t *testing.T, s Store) {
	assert.NoError(t, s.Ping(context.Background()))
}
