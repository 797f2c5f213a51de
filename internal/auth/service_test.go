package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"codemail/backend/internal/domain"
	"codemail/backend/internal/storage/memory"
)

func newTestService() (*Service, *memory.Store) {
	store := memory.NewStore()
	return NewService(store, nil, WithBcryptCost(bcrypt.MinCost)), store
}

func TestService_EnsureAdmin(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService()

	created, err := svc.EnsureAdmin(ctx, " Admin@TempMail.local ", "admin123")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = svc.EnsureAdmin(ctx, "admin@tempmail.local", "other-password")
	require.NoError(t, err)
	assert.False(t, created, "existing admin must be left untouched")

	admin, err := store.GetAdminUserByUsername(ctx, "admin@tempmail.local")
	require.NoError(t, err)
	assert.True(t, CheckPassword("admin123", admin.PasswordHash))
	assert.NotEqual(t, "admin123", admin.PasswordHash)
}

func TestService_Authenticate(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()
	_, err := svc.EnsureAdmin(ctx, "admin@tempmail.local", "admin123")
	require.NoError(t, err)

	t.Run("正确凭证", func(t *testing.T) {
		admin, err := svc.Authenticate(ctx, "ADMIN@tempmail.local", "admin123")
		require.NoError(t, err)
		assert.Equal(t, "admin@tempmail.local", admin.Username)
	})

	t.Run("密码错误", func(t *testing.T) {
		_, err := svc.Authenticate(ctx, "admin@tempmail.local", "wrong")
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
	})

	t.Run("用户不存在", func(t *testing.T) {
		_, err := svc.Authenticate(ctx, "nobody@tempmail.local", "admin123")
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
	})
}

func TestService_SetPassword(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	require.NoError(t, svc.SetPassword(ctx, "ops", "first-pass"))
	_, err := svc.Authenticate(ctx, "ops", "first-pass")
	require.NoError(t, err)

	require.NoError(t, svc.SetPassword(ctx, "ops", "second-pass"))
	_, err = svc.Authenticate(ctx, "ops", "first-pass")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Authenticate(ctx, "ops", "second-pass")
	assert.NoError(t, err)

	assert.ErrorIs(t, svc.SetPassword(ctx, "ops", "123"), domain.ErrInvalidInput)
	assert.ErrorIs(t, svc.SetPassword(ctx, " ", "long-enough"), domain.ErrInvalidInput)
}

func TestService_Hash(t *testing.T) {
	svc, _ := newTestService()
	hash, err := svc.hash("password123")
	require.NoError(t, err)
	assert.True(t, CheckPassword("password123", hash))
	assert.False(t, CheckPassword("password124", hash))
}
