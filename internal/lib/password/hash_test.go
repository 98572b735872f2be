package password

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/magabrotheeeer/account-service/internal/config"
	"github.com/magabrotheeeer/account-service/internal/models"
)

func newTestHasher() *Hasher {
	return New(Params{
		MemoryKiB:     1024,
		Iterations:    1,
		Parallelism:   1,
		KeyLength:     32,
		SaltLength:    16,
		MaxConcurrent: 2,
	})
}

func TestHash(t *testing.T) {
	h := newTestHasher()
	ctx := context.Background()

	tests := []struct {
		name     string
		password string
	}{
		{name: "regular password", password: "password123"},
		{name: "password with special chars", password: "p@ssw0rd!@#$%^&*()"},
		{name: "unicode password", password: "пароль-пароль"},
		{name: "short password", password: "pw"},
		{name: "empty password", password: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hash, err := h.Hash(ctx, tt.password)
			require.NoError(t, err)
			assert.True(t, strings.HasPrefix(hash, "$argon2id$v=19$m=1024,t=1,p=1$"))

			ok, err := h.Verify(ctx, hash, tt.password)
			require.NoError(t, err)
			assert.True(t, ok)
		})
	}
}

func TestVerify(t *testing.T) {
	h := newTestHasher()
	ctx := context.Background()

	correctHash, err := h.Hash(ctx, "correct_password")
	require.NoError(t, err)
	anotherHash, err := h.Hash(ctx, "another_password")
	require.NoError(t, err)

	tests := []struct {
		name        string
		hash        string
		password    string
		shouldMatch bool
	}{
		{name: "matching password", hash: correctHash, password: "correct_password", shouldMatch: true},
		{name: "wrong password", hash: correctHash, password: "wrong_password"},
		{name: "different hash same password", hash: anotherHash, password: "correct_password"},
		{name: "empty password", hash: correctHash, password: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := h.Verify(ctx, tt.hash, tt.password)
			require.NoError(t, err)
			assert.Equal(t, tt.shouldMatch, ok)
		})
	}
}

func TestHash_SaltMakesHashesDistinct(t *testing.T) {
	h := newTestHasher()
	ctx := context.Background()

	hash1, err := h.Hash(ctx, "same")
	require.NoError(t, err)
	hash2, err := h.Hash(ctx, "same")
	require.NoError(t, err)

	assert.NotEqual(t, hash1, hash2)
}

func TestVerify_UsesParamsFromHash(t *testing.T) {
	ctx := context.Background()
	old := New(Params{MemoryKiB: 2048, Iterations: 2, Parallelism: 2, KeyLength: 16, SaltLength: 8})
	hash, err := old.Hash(ctx, "secret")
	require.NoError(t, err)

	ok, err := newTestHasher().Verify(ctx, hash, "secret")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVerify_LegacyBcrypt(t *testing.T) {
	legacy, err := bcrypt.GenerateFromPassword([]byte("legacy-password"), bcrypt.MinCost)
	require.NoError(t, err)

	h := newTestHasher()
	ok, err := h.Verify(context.Background(), string(legacy), "legacy-password")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.Verify(context.Background(), string(legacy), "nope")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerify_MalformedHash(t *testing.T) {
	h := newTestHasher()

	for _, encoded := range []string{
		"",
		"plaintext",
		"$argon2id$v=19$m=1024,t=1,p=1$notbase64!$abc",
		"$argon2id$v=18$m=1024,t=1,p=1$c2FsdA$a2V5",
		"$argon2i$v=19$m=1024,t=1,p=1$c2FsdA$a2V5",
		"$2a$10$short",
		"$argon2id$v=19$m=65536,t=1,p=0$c2FsdHNhbHQ$a2V5a2V5",
		"$argon2id$v=19$m=65536,t=0,p=1$c2FsdHNhbHQ$a2V5a2V5",
		"$argon2id$v=19$m=0,t=1,p=1$c2FsdHNhbHQ$a2V5a2V5",
		"$argon2id$v=19$m=4294967295,t=1,p=1$c2FsdHNhbHQ$a2V5a2V5",
		"$argon2id$v=19$m=1024,t=1,p=1$$a2V5a2V5",
	} {
		ok, err := h.Verify(context.Background(), encoded, "password")
		assert.False(t, ok, encoded)
		assert.ErrorIs(t, err, models.ErrHashing, encoded)
	}
}

func TestHash_RespectsContextWhenSaturated(t *testing.T) {
	h := New(Params{MemoryKiB: 1024, Iterations: 1, Parallelism: 1, KeyLength: 32, SaltLength: 16, MaxConcurrent: 1})
	h.sem <- struct{}{}
	defer h.release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := h.Hash(ctx, "password")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestParamsFromConfig_Defaults(t *testing.T) {
	p := ParamsFromConfig(config.Hasher{MaxConcurrent: 3})

	assert.Equal(t, DefaultParams.MemoryKiB, p.MemoryKiB)
	assert.Equal(t, DefaultParams.Iterations, p.Iterations)
	assert.Equal(t, DefaultParams.Parallelism, p.Parallelism)
	assert.Equal(t, DefaultParams.KeyLength, p.KeyLength)
	assert.Equal(t, DefaultParams.SaltLength, p.SaltLength)
	assert.Equal(t, 3, p.MaxConcurrent)
}
