package jwt

import (
	"strings"
	"testing"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codemail/backend/internal/clock"
	"codemail/backend/internal/domain"
)

var secret = strings.Repeat("s", 32)

func fixtures(now time.Time) (*domain.AccessCode, *domain.Mailbox) {
	code := &domain.AccessCode{
		ID:        "code-1",
		Code:      "ABC12345",
		CreatedAt: now,
		ExpiresAt: now.Add(12 * time.Hour),
	}
	mailbox := &domain.Mailbox{
		ID:        "mb-1",
		Address:   "abcdefghij@tempmail.local",
		SessionID: code.ID,
		CreatedAt: now,
		ExpiresAt: code.ExpiresAt,
	}
	return code, mailbox
}

func TestManager_UserSession(t *testing.T) {
	start := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
	clk := clock.NewMock(start)
	m := NewManager(secret, "codemail", 24*time.Hour, clk)
	code, mailbox := fixtures(start)

	token, err := m.IssueUserSession(code, mailbox)
	require.NoError(t, err)

	t.Run("exp 等于访问码过期时间", func(t *testing.T) {
		clk.Set(start.Add(11 * time.Hour))
		session, err := m.Verify(token)
		require.NoError(t, err)
		assert.True(t, code.ExpiresAt.Equal(session.ExpiresAt))
		assert.Equal(t, domain.RoleUser, session.Role)
		assert.Equal(t, code.ID, session.Subject)
		assert.Equal(t, mailbox.Address, session.Email)
	})

	t.Run("过期当刻仍然有效", func(t *testing.T) {
		clk.Set(code.ExpiresAt)
		_, err := m.Verify(token)
		require.NoError(t, err)
		assert.False(t, code.IsExpired(clk.Now()))

		clk.Set(code.ExpiresAt.Add(time.Nanosecond))
		_, err = m.Verify(token)
		assert.ErrorIs(t, err, ErrExpiredToken)
		assert.True(t, code.IsExpired(clk.Now()))
	})

	t.Run("过期后返回 Expired", func(t *testing.T) {
		clk.Set(code.ExpiresAt.Add(time.Second))
		_, err := m.Verify(token)
		assert.ErrorIs(t, err, domain.ErrExpired)
		assert.ErrorIs(t, err, ErrExpiredToken)
	})
}

func TestManager_AdminSession(t *testing.T) {
	start := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
	clk := clock.NewMock(start)
	m := NewManager(secret, "codemail", 24*time.Hour, clk)

	token, exp, err := m.IssueAdminSession(&domain.AdminUser{ID: "admin-1", Username: "root"})
	require.NoError(t, err)
	assert.Equal(t, start.Add(24*time.Hour), exp)

	session, err := m.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, session.Role)
	assert.Equal(t, "root", session.Username)

	assert.NoError(t, RequireRole(session, domain.RoleAdmin))
	assert.ErrorIs(t, RequireRole(session, domain.RoleUser), domain.ErrForbidden)
	assert.ErrorIs(t, RequireRole(nil, domain.RoleAdmin), domain.ErrForbidden)

	clk.Advance(25 * time.Hour)
	_, err = m.Verify(token)
	assert.ErrorIs(t, err, domain.ErrExpired)
}

func TestManager_Invalid(t *testing.T) {
	start := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
	clk := clock.NewMock(start)
	m := NewManager(secret, "codemail", time.Hour, clk)
	code, mailbox := fixtures(start)

	token, err := m.IssueUserSession(code, mailbox)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"空令牌", ""},
		{"乱码", "not-a-jwt"},
		{"篡改签名", token[:len(token)-2] + "xx"},
		{"其他密钥签发", mustSign(t, strings.Repeat("o", 32), Claims{Role: "user", RegisteredClaims: gojwt.RegisteredClaims{Subject: "x", Issuer: "codemail", ExpiresAt: gojwt.NewNumericDate(start.Add(time.Hour))}})},
		{"未知角色", mustSign(t, secret, Claims{Role: "root", RegisteredClaims: gojwt.RegisteredClaims{Subject: "x", Issuer: "codemail", ExpiresAt: gojwt.NewNumericDate(start.Add(time.Hour))}})},
		{"缺少 exp", mustSign(t, secret, Claims{Role: "user", RegisteredClaims: gojwt.RegisteredClaims{Subject: "x", Issuer: "codemail"}})},
		{"错误签发者", mustSign(t, secret, Claims{Role: "user", RegisteredClaims: gojwt.RegisteredClaims{Subject: "x", Issuer: "other", ExpiresAt: gojwt.NewNumericDate(start.Add(time.Hour))}})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.Verify(tt.token)
			assert.ErrorIs(t, err, domain.ErrInvalid)
		})
	}

	t.Run("拒绝 none 算法", func(t *testing.T) {
		unsigned := gojwt.NewWithClaims(gojwt.SigningMethodNone, Claims{Role: "user", RegisteredClaims: gojwt.RegisteredClaims{Subject: "x", Issuer: "codemail", ExpiresAt: gojwt.NewNumericDate(start.Add(time.Hour))}})
		s, err := unsigned.SignedString(gojwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		_, err = m.Verify(s)
		assert.ErrorIs(t, err, domain.ErrInvalid)
	})
}

func mustSign(t *testing.T, key string, claims Claims) string {
	t.Helper()
	s, err := gojwt.NewWithClaims(gojwt.SigningMethodHS256, claims).SignedString([]byte(key))
	require.NoError(t, err)
	return s
}
