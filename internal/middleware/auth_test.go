package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codemail/backend/internal/auth/jwt"
	"codemail/backend/internal/clock"
	"codemail/backend/internal/domain"
)

const testSecret = "test-secret-key-for-development-32-chars-long-at-least"

func setupRouter(t *testing.T) (*gin.Engine, *jwt.Manager, *clock.Mock) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	clk := clock.NewMock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	manager := jwt.NewManager(testSecret, "codemail", time.Hour, clk)
	auth := NewSessionAuth(manager, nil)

	r := gin.New()
	r.GET("/user", auth.RequireRole(domain.RoleUser), func(c *gin.Context) {
		session, ok := GetSession(c)
		require.True(t, ok)
		c.JSON(http.StatusOK, gin.H{"sub": session.Subject})
	})
	r.GET("/admin", auth.RequireRole(domain.RoleAdmin), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r, manager, clk
}

func doRequest(r http.Handler, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestSessionAuth(t *testing.T) {
	r, manager, clk := setupRouter(t)

	userToken, err := manager.IssueUserSession(
		&domain.AccessCode{ID: "code-1", ExpiresAt: clk.Now().Add(time.Hour)},
		&domain.Mailbox{Address: "abc@tempmail.local"},
	)
	require.NoError(t, err)
	adminToken, _, err := manager.IssueAdminSession(&domain.AdminUser{ID: "admin-1", Username: "admin"})
	require.NoError(t, err)

	t.Run("缺少令牌", func(t *testing.T) {
		rec := doRequest(r, "/user", "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.JSONEq(t, `{"error":"Not authenticated"}`, rec.Body.String())
	})

	t.Run("无效令牌", func(t *testing.T) {
		rec := doRequest(r, "/user", "not-a-token")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.JSONEq(t, `{"error":"Invalid token"}`, rec.Body.String())
	})

	t.Run("用户令牌访问用户接口", func(t *testing.T) {
		rec := doRequest(r, "/user", userToken)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"sub":"code-1"}`, rec.Body.String())
	})

	t.Run("用户令牌访问管理接口", func(t *testing.T) {
		rec := doRequest(r, "/admin", userToken)
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.JSONEq(t, `{"error":"Admin access required"}`, rec.Body.String())
	})

	t.Run("管理员令牌访问用户接口", func(t *testing.T) {
		rec := doRequest(r, "/user", adminToken)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("管理员令牌访问管理接口", func(t *testing.T) {
		rec := doRequest(r, "/admin", adminToken)
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("过期令牌", func(t *testing.T) {
		clk.Advance(2 * time.Hour)
		rec := doRequest(r, "/user", userToken)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.JSONEq(t, `{"error":"Session expired"}`, rec.Body.String())
	})
}
